package servers

import (
	"context"

	"github.com/sparkleops/dbdistrib/internal/server/models"
)

// ServerPatch carries optional field updates; nil leaves a field untouched.
type ServerPatch struct {
	Name     *string
	DNS      *string
	IsActive *bool
}

type Repository interface {
	Create(ctx context.Context, name, dns string, isActive bool) (*models.Server, error)
	Update(ctx context.Context, id string, patch ServerPatch) (*models.Server, error)
	GetByID(ctx context.Context, id string) (*models.Server, error)
	ListActive(ctx context.Context) ([]*models.Server, error)
	ListPage(ctx context.Context, limit, offset int) ([]*models.Server, error)
	Count(ctx context.Context) (int, error)
}
