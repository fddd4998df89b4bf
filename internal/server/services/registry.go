// Package services implements the application core: the registry of backup
// targets, the job coordinator state machine, and the download log.
package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/sparkleops/dbdistrib/internal/common"
	"github.com/sparkleops/dbdistrib/internal/dbx"
	"github.com/sparkleops/dbdistrib/internal/server/models"
	"github.com/sparkleops/dbdistrib/internal/server/repositories/databases"
	"github.com/sparkleops/dbdistrib/internal/server/repositories/repomanager"
	"github.com/sparkleops/dbdistrib/internal/server/repositories/servers"
)

// ServerWithDatabases is one row of the paginated admin listing.
type ServerWithDatabases struct {
	Server          *models.Server
	Databases       []*models.Database
	TotalDatabases  int
	ActiveDatabases int
}

// ServerPage is a page of the admin server listing.
type ServerPage struct {
	Items      []*ServerWithDatabases
	Page       int
	PageSize   int
	Total      int
	TotalPages int
}

// RegistryService owns the catalog of backup targets: servers and the
// databases hosted on each.
type RegistryService struct {
	db    *sql.DB
	repos repomanager.RepositoryManager
}

func NewRegistryService(db *sql.DB, repos repomanager.RepositoryManager) *RegistryService {
	return &RegistryService{db: db, repos: repos}
}

func (s *RegistryService) ListServers(ctx context.Context) ([]*models.Server, error) {
	return s.repos.Servers(s.db).ListActive(ctx)
}

func (s *RegistryService) CreateServer(ctx context.Context, name, dns string, isActive bool) (*models.Server, error) {
	return s.repos.Servers(s.db).Create(ctx, name, dns, isActive)
}

func (s *RegistryService) UpdateServer(ctx context.Context, id string, patch servers.ServerPatch) (*models.Server, error) {
	return s.repos.Servers(s.db).Update(ctx, id, patch)
}

// ListDatabases returns the active databases of a server, name-ascending.
// The server must exist, but may be inactive: its registry is still visible.
func (s *RegistryService) ListDatabases(ctx context.Context, serverID string) ([]*models.Database, error) {
	if _, err := s.repos.Servers(s.db).GetByID(ctx, serverID); err != nil {
		return nil, err
	}
	return s.repos.Databases(s.db).ListActiveByServer(ctx, serverID)
}

// CreateDatabase registers a database under an active server. Registering
// under an inactive server is rejected: new catalog entries for a
// decommissioned host are almost certainly a mistake.
func (s *RegistryService) CreateDatabase(ctx context.Context, serverID, dbName string, isActive bool) (*models.Database, error) {
	server, err := s.repos.Servers(s.db).GetByID(ctx, serverID)
	if err != nil {
		return nil, err
	}
	if !server.IsActive {
		return nil, common.NewValidationError("serverId", "server is inactive")
	}
	return s.repos.Databases(s.db).Create(ctx, serverID, dbName, isActive)
}

func (s *RegistryService) UpdateDatabase(ctx context.Context, id string, patch databases.DatabasePatch) (*models.Database, error) {
	return s.repos.Databases(s.db).Update(ctx, id, patch)
}

// AdminServerPage returns one page of all servers (active or not) with their
// full database registries and per-server counts. The count, the page query
// and the per-server reads run in one transaction so the page is consistent
// with its total under concurrent registry writes.
func (s *RegistryService) AdminServerPage(ctx context.Context, page, pageSize int) (*ServerPage, error) {
	var out *ServerPage
	if err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		serverRepo := s.repos.Servers(tx)
		dbRepo := s.repos.Databases(tx)

		total, err := serverRepo.Count(ctx)
		if err != nil {
			return err
		}

		items := []*ServerWithDatabases{}
		list, err := serverRepo.ListPage(ctx, pageSize, (page-1)*pageSize)
		if err != nil {
			return err
		}
		for _, srv := range list {
			dbs, err := dbRepo.ListByServer(ctx, srv.ID)
			if err != nil {
				return err
			}
			active := 0
			for _, d := range dbs {
				if d.IsActive {
					active++
				}
			}
			items = append(items, &ServerWithDatabases{
				Server:          srv,
				Databases:       dbs,
				TotalDatabases:  len(dbs),
				ActiveDatabases: active,
			})
		}

		totalPages := 0
		if total > 0 {
			totalPages = (total + pageSize - 1) / pageSize
		}

		out = &ServerPage{
			Items:      items,
			Page:       page,
			PageSize:   pageSize,
			Total:      total,
			TotalPages: totalPages,
		}
		return nil
	}); err != nil {
		return nil, err
	}
	return out, nil
}

// Availability checks whether the (server, database) pair may receive new
// jobs: the server must be active, and the database must either be absent
// from the registry (ad-hoc backups of uncatalogued databases are allowed)
// or present and active. Returns the server so callers can snapshot its DNS.
func (s *RegistryService) Availability(ctx context.Context, serverID, dbName string) (*models.Server, error) {
	server, err := s.repos.Servers(s.db).GetByID(ctx, serverID)
	if errors.Is(err, common.ErrNotFound) {
		return nil, common.NewValidationError("serverId", "server is not available")
	}
	if err != nil {
		return nil, err
	}
	if !server.IsActive {
		return nil, common.NewValidationError("serverId", "server is not available")
	}

	registered, err := s.repos.Databases(s.db).FindByName(ctx, serverID, dbName)
	if errors.Is(err, common.ErrNotFound) {
		return server, nil
	}
	if err != nil {
		return nil, fmt.Errorf("database lookup: %w", err)
	}
	if !registered.IsActive {
		return nil, common.NewValidationError("database", "database is not active")
	}
	return server, nil
}
