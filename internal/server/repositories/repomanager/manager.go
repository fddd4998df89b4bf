package repomanager

import (
	"context"
	"database/sql"

	"github.com/sparkleops/dbdistrib/internal/dbx"
	"github.com/sparkleops/dbdistrib/internal/server/repositories/databases"
	"github.com/sparkleops/dbdistrib/internal/server/repositories/downloads"
	"github.com/sparkleops/dbdistrib/internal/server/repositories/jobs"
	"github.com/sparkleops/dbdistrib/internal/server/repositories/servers"
)

// RepositoryManager vends repositories bound to a DBTX, allowing a service
// to use the same repository code inside and outside a transaction.
type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Servers(db dbx.DBTX) servers.Repository
	Databases(db dbx.DBTX) databases.Repository
	Jobs(db dbx.DBTX) jobs.Repository
	Downloads(db dbx.DBTX) downloads.Repository
}
