// Package jobs provides the PostgreSQL-backed repository for backup jobs,
// including the FIFO poll query and the compare-and-swap status updates the
// coordinator's state machine relies on.
package jobs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/sparkleops/dbdistrib/internal/common"
	"github.com/sparkleops/dbdistrib/internal/dbx"
	"github.com/sparkleops/dbdistrib/internal/server/models"
)

const jobColumns = "id, ticket, server, database, requested_by, status, blob_path, sha256, etag, error, completed_at, created_at, updated_at"

// PostgresRepository implements job storage over a dbx.DBTX
// (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func scanJob(row interface{ Scan(...any) error }) (*models.Job, error) {
	var (
		j      models.Job
		status string
	)
	if err := row.Scan(
		&j.ID, &j.Ticket, &j.Server, &j.Database, &j.RequestedBy, &status,
		&j.BlobPath, &j.SHA256, &j.ETag, &j.Error, &j.CompletedAt,
		&j.CreatedAt, &j.UpdatedAt,
	); err != nil {
		return nil, err
	}
	j.Status = models.JobStatus(status)
	return &j, nil
}

func (r *PostgresRepository) Create(ctx context.Context, job *models.Job) (*models.Job, error) {
	query := `
		INSERT INTO jobs (ticket, server, database, requested_by, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING ` + jobColumns
	created, err := scanJob(r.db.QueryRowContext(ctx, query,
		job.Ticket, job.Server, job.Database, job.RequestedBy, string(job.Status)))
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return created, nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE id = $1`
	j, err := scanJob(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return j, nil
}

func (r *PostgresRepository) List(ctx context.Context, f Filter) ([]*models.Job, error) {
	var (
		conds []string
		args  []any
	)
	if f.Status != nil {
		args = append(args, string(*f.Status))
		conds = append(conds, "status = $"+strconv.Itoa(len(args)))
	}
	if f.Ticket != nil {
		args = append(args, *f.Ticket)
		conds = append(conds, "ticket = $"+strconv.Itoa(len(args)))
	}
	if f.RequestedBy != nil {
		args = append(args, *f.RequestedBy)
		conds = append(conds, "requested_by = $"+strconv.Itoa(len(args)))
	}

	query := `SELECT ` + jobColumns + ` FROM jobs`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at DESC"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to select jobs: %w", err)
	}
	defer rows.Close()

	var result []*models.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, j)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *PostgresRepository) NextPending(ctx context.Context, serverDNS string) (*models.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs
		WHERE status = 'PENDING' AND server = $1
		ORDER BY created_at ASC
		LIMIT 1`
	j, err := scanJob(r.db.QueryRowContext(ctx, query, serverDNS))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return j, nil
}

func (r *PostgresRepository) MarkRunning(ctx context.Context, id string, from models.JobStatus, blobPath string) (*models.Job, error) {
	query := `
		UPDATE jobs
		SET status = 'RUNNING',
			blob_path = COALESCE(blob_path, $3),
			updated_at = now()
		WHERE id = $1 AND status = $2
		RETURNING ` + jobColumns
	j, err := scanJob(r.db.QueryRowContext(ctx, query, id, string(from), blobPath))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrConflict
	}
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return j, nil
}

func (r *PostgresRepository) MarkCompleted(ctx context.Context, id, blobPath, sha256 string, etag *string, completedAt time.Time) (*models.Job, error) {
	query := `
		UPDATE jobs
		SET status = 'COMPLETED',
			blob_path = COALESCE(blob_path, $2),
			sha256 = $3,
			etag = COALESCE($4, etag),
			completed_at = $5,
			error = NULL,
			updated_at = now()
		WHERE id = $1 AND status = 'RUNNING'
		RETURNING ` + jobColumns
	j, err := scanJob(r.db.QueryRowContext(ctx, query, id, blobPath, sha256, etag, completedAt))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrConflict
	}
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return j, nil
}

func (r *PostgresRepository) MarkFailed(ctx context.Context, id, errText string) (*models.Job, error) {
	query := `
		UPDATE jobs
		SET status = 'FAILED',
			error = $2,
			updated_at = now()
		WHERE id = $1 AND status <> 'COMPLETED'
		RETURNING ` + jobColumns
	j, err := scanJob(r.db.QueryRowContext(ctx, query, id, errText))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrConflict
	}
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return j, nil
}
