// Package downloads provides the PostgreSQL-backed repository for the
// append-only artifact download log.
package downloads

import (
	"context"
	"fmt"

	"github.com/sparkleops/dbdistrib/internal/dbx"
	"github.com/sparkleops/dbdistrib/internal/server/models"
)

// PostgresRepository implements download-log storage over a dbx.DBTX
// (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, d *models.Download) (*models.Download, error) {
	query := `
		INSERT INTO downloads (job_id, downloaded_by, ip_address, user_agent, success)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, job_id, downloaded_by, ip_address, user_agent, success, created_at`

	var created models.Download
	err := r.db.QueryRowContext(ctx, query,
		d.JobID, d.DownloadedBy, d.IPAddress, d.UserAgent, d.Success,
	).Scan(
		&created.ID, &created.JobID, &created.DownloadedBy,
		&created.IPAddress, &created.UserAgent, &created.Success, &created.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return &created, nil
}
