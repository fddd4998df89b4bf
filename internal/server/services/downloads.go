package services

import (
	"context"
	"database/sql"

	"github.com/sparkleops/dbdistrib/internal/common"
	"github.com/sparkleops/dbdistrib/internal/dbx"
	"github.com/sparkleops/dbdistrib/internal/server/auth"
	"github.com/sparkleops/dbdistrib/internal/server/models"
	"github.com/sparkleops/dbdistrib/internal/server/repositories/repomanager"
)

// DownloadService records download attempts against completed artifacts.
// Records are audit evidence: append-only, one per attempt, successful or
// not.
type DownloadService struct {
	db    *sql.DB
	repos repomanager.RepositoryManager
}

func NewDownloadService(db *sql.DB, repos repomanager.RepositoryManager) *DownloadService {
	return &DownloadService{db: db, repos: repos}
}

// Record stores one download attempt. Developers may only record downloads
// of their own jobs; success defaults to true when unspecified. The job read
// and the append happen in one transaction so the record always points at a
// job that existed when the check ran.
func (s *DownloadService) Record(ctx context.Context, p *models.Principal, role auth.Role, jobID, downloadedBy string, ip, userAgent *string, success *bool) (*models.Download, error) {
	if downloadedBy == "" {
		downloadedBy = p.Identity()
	}
	ok := true
	if success != nil {
		ok = *success
	}

	var rec *models.Download
	if err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		job, err := s.repos.Jobs(tx).GetByID(ctx, jobID)
		if err != nil {
			return err
		}
		if role == auth.RoleDeveloper && job.RequestedBy != p.Identity() {
			return common.ErrForbidden
		}

		rec, err = s.repos.Downloads(tx).Create(ctx, &models.Download{
			JobID:        job.ID,
			DownloadedBy: downloadedBy,
			IPAddress:    ip,
			UserAgent:    userAgent,
			Success:      ok,
		})
		return err
	}); err != nil {
		return nil, err
	}
	return rec, nil
}
