// Package servers provides the PostgreSQL-backed repository for the server
// registry.
package servers

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/sparkleops/dbdistrib/internal/common"
	"github.com/sparkleops/dbdistrib/internal/dbx"
	"github.com/sparkleops/dbdistrib/internal/server/models"
)

const serverColumns = "id, name, dns, is_active, created_at, updated_at"

// PostgresRepository implements server storage over a dbx.DBTX
// (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func scanServer(row interface{ Scan(...any) error }) (*models.Server, error) {
	var s models.Server
	if err := row.Scan(&s.ID, &s.Name, &s.DNS, &s.IsActive, &s.CreatedAt, &s.UpdatedAt); err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *PostgresRepository) Create(ctx context.Context, name, dns string, isActive bool) (*models.Server, error) {
	query := `
		INSERT INTO servers (name, dns, is_active)
		VALUES ($1, $2, $3)
		RETURNING ` + serverColumns
	s, err := scanServer(r.db.QueryRowContext(ctx, query, name, dns, isActive))
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return s, nil
}

func (r *PostgresRepository) Update(ctx context.Context, id string, patch ServerPatch) (*models.Server, error) {
	query := `
		UPDATE servers
		SET name = COALESCE($2, name),
			dns = COALESCE($3, dns),
			is_active = COALESCE($4, is_active),
			updated_at = now()
		WHERE id = $1
		RETURNING ` + serverColumns
	s, err := scanServer(r.db.QueryRowContext(ctx, query, id, patch.Name, patch.DNS, patch.IsActive))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return s, nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.Server, error) {
	query := `SELECT ` + serverColumns + ` FROM servers WHERE id = $1`
	s, err := scanServer(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return s, nil
}

func (r *PostgresRepository) list(ctx context.Context, query string, args ...any) ([]*models.Server, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to select servers: %w", err)
	}
	defer rows.Close()

	var result []*models.Server
	for rows.Next() {
		s, err := scanServer(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *PostgresRepository) ListActive(ctx context.Context) ([]*models.Server, error) {
	query := `SELECT ` + serverColumns + ` FROM servers WHERE is_active ORDER BY name`
	return r.list(ctx, query)
}

func (r *PostgresRepository) ListPage(ctx context.Context, limit, offset int) ([]*models.Server, error) {
	query := `SELECT ` + serverColumns + ` FROM servers ORDER BY name LIMIT $1 OFFSET $2`
	return r.list(ctx, query, limit, offset)
}

func (r *PostgresRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM servers`).Scan(&n); err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}
