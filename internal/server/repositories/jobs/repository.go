package jobs

import (
	"context"
	"time"

	"github.com/sparkleops/dbdistrib/internal/server/models"
)

// Filter narrows job listings; nil fields match everything.
type Filter struct {
	Status      *models.JobStatus
	Ticket      *string
	RequestedBy *string
}

// Repository persists jobs. All Mark* methods are conditional updates
// (compare-and-swap on the current status): when the row no longer holds the
// expected status, they return common.ErrConflict without modifying anything,
// and the caller re-evaluates against the fresh status.
type Repository interface {
	Create(ctx context.Context, job *models.Job) (*models.Job, error)
	GetByID(ctx context.Context, id string) (*models.Job, error)
	// List returns matching jobs, newest first.
	List(ctx context.Context, f Filter) ([]*models.Job, error)
	// NextPending returns the oldest PENDING job for the server (FIFO), or
	// common.ErrNotFound when the queue is empty.
	NextPending(ctx context.Context, serverDNS string) (*models.Job, error)

	// MarkRunning transitions from the expected status to RUNNING. The blob
	// path is assigned only if the row has none yet; an assigned path is
	// immutable.
	MarkRunning(ctx context.Context, id string, from models.JobStatus, blobPath string) (*models.Job, error)
	// MarkCompleted transitions RUNNING -> COMPLETED, records the checksum,
	// optional entity tag and completion time, and clears the error.
	MarkCompleted(ctx context.Context, id, blobPath, sha256 string, etag *string, completedAt time.Time) (*models.Job, error)
	// MarkFailed transitions any non-COMPLETED status to FAILED and records
	// the error text. The blob path is left as-is; partial artifacts are an
	// external cleanup concern.
	MarkFailed(ctx context.Context, id, errText string) (*models.Job, error)
}
