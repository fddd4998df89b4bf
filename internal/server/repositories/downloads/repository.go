package downloads

import (
	"context"

	"github.com/sparkleops/dbdistrib/internal/server/models"
)

// Repository persists download records. The table is append-only: records
// are created exactly once per download attempt and never mutated.
type Repository interface {
	Create(ctx context.Context, d *models.Download) (*models.Download, error)
}
