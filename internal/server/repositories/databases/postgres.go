// Package databases provides the PostgreSQL-backed repository for the
// per-server database registry.
package databases

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/sparkleops/dbdistrib/internal/common"
	"github.com/sparkleops/dbdistrib/internal/dbx"
	"github.com/sparkleops/dbdistrib/internal/server/models"
)

const databaseColumns = "id, server_id, db_name, is_active, created_at, updated_at"

// PostgresRepository implements database-registry storage over a dbx.DBTX
// (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func scanDatabase(row interface{ Scan(...any) error }) (*models.Database, error) {
	var d models.Database
	if err := row.Scan(&d.ID, &d.ServerID, &d.DBName, &d.IsActive, &d.CreatedAt, &d.UpdatedAt); err != nil {
		return nil, err
	}
	return &d, nil
}

func (r *PostgresRepository) Create(ctx context.Context, serverID, dbName string, isActive bool) (*models.Database, error) {
	query := `
		INSERT INTO server_databases (server_id, db_name, is_active)
		VALUES ($1, $2, $3)
		RETURNING ` + databaseColumns
	d, err := scanDatabase(r.db.QueryRowContext(ctx, query, serverID, dbName, isActive))
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return d, nil
}

func (r *PostgresRepository) Update(ctx context.Context, id string, patch DatabasePatch) (*models.Database, error) {
	query := `
		UPDATE server_databases
		SET db_name = COALESCE($2, db_name),
			is_active = COALESCE($3, is_active),
			updated_at = now()
		WHERE id = $1
		RETURNING ` + databaseColumns
	d, err := scanDatabase(r.db.QueryRowContext(ctx, query, id, patch.DBName, patch.IsActive))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return d, nil
}

func (r *PostgresRepository) list(ctx context.Context, query string, args ...any) ([]*models.Database, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to select databases: %w", err)
	}
	defer rows.Close()

	var result []*models.Database
	for rows.Next() {
		d, err := scanDatabase(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *PostgresRepository) ListActiveByServer(ctx context.Context, serverID string) ([]*models.Database, error) {
	query := `SELECT ` + databaseColumns + ` FROM server_databases
		WHERE server_id = $1 AND is_active ORDER BY db_name`
	return r.list(ctx, query, serverID)
}

func (r *PostgresRepository) ListByServer(ctx context.Context, serverID string) ([]*models.Database, error) {
	query := `SELECT ` + databaseColumns + ` FROM server_databases
		WHERE server_id = $1 ORDER BY db_name`
	return r.list(ctx, query, serverID)
}

func (r *PostgresRepository) FindByName(ctx context.Context, serverID, dbName string) (*models.Database, error) {
	query := `SELECT ` + databaseColumns + ` FROM server_databases
		WHERE server_id = $1 AND lower(db_name) = lower($2)`
	d, err := scanDatabase(r.db.QueryRowContext(ctx, query, serverID, dbName))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return d, nil
}
