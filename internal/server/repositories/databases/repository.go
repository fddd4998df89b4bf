package databases

import (
	"context"

	"github.com/sparkleops/dbdistrib/internal/server/models"
)

// DatabasePatch carries optional field updates; nil leaves a field untouched.
type DatabasePatch struct {
	DBName   *string
	IsActive *bool
}

type Repository interface {
	Create(ctx context.Context, serverID, dbName string, isActive bool) (*models.Database, error)
	Update(ctx context.Context, id string, patch DatabasePatch) (*models.Database, error)
	ListActiveByServer(ctx context.Context, serverID string) ([]*models.Database, error)
	ListByServer(ctx context.Context, serverID string) ([]*models.Database, error)
	// FindByName matches the database name case-insensitively within a server.
	// Returns common.ErrNotFound when the database is not registered.
	FindByName(ctx context.Context, serverID, dbName string) (*models.Database, error)
}
