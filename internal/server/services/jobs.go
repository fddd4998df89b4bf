package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/sparkleops/dbdistrib/internal/common"
	"github.com/sparkleops/dbdistrib/internal/server/auth"
	"github.com/sparkleops/dbdistrib/internal/server/config"
	"github.com/sparkleops/dbdistrib/internal/server/models"
	"github.com/sparkleops/dbdistrib/internal/server/repositories/jobs"
	"github.com/sparkleops/dbdistrib/internal/server/repositories/repomanager"
	"github.com/sparkleops/dbdistrib/internal/server/storage"
)

// nowFunc is a seam for tests.
var nowFunc = time.Now

// CredentialBroker issues time-boxed URLs scoped to one object key and one
// permission.
type CredentialBroker interface {
	IssueReadURL(ctx context.Context, key string, ttl time.Duration) (string, error)
	IssueWriteURL(ctx context.Context, key string, ttl time.Duration) (string, error)
}

// RunnerUpdate is the tagged union of transition reports a runner may send.
// Exactly one of the three shapes applies to a report; they carry different
// required fields and are parsed as distinct variants, not one blob of
// optional fields.
type RunnerUpdate interface {
	isRunnerUpdate()
}

// RunningUpdate claims a job. BlobPath is set when the runner has already
// begun writing to a path of its own choosing.
type RunningUpdate struct {
	BlobPath *string
}

// CompletedUpdate reports a finished upload with its checksum.
type CompletedUpdate struct {
	BlobPath    *string
	SHA256      string
	ETag        *string
	CompletedAt *time.Time
}

// FailedUpdate reports a terminal failure.
type FailedUpdate struct {
	Error string
}

func (RunningUpdate) isRunnerUpdate()   {}
func (CompletedUpdate) isRunnerUpdate() {}
func (FailedUpdate) isRunnerUpdate()    {}

// TransitionResult is the coordinator's answer to a runner report. DestURL
// is set on a successful RUNNING report: a write credential scoped to the
// job's blob path, whether generated or runner-supplied.
type TransitionResult struct {
	Job      *models.Job
	BlobPath string
	DestURL  string
}

// ReadSAS is an issued read credential for a completed artifact.
type ReadSAS struct {
	URL      string
	TTLHours int
}

// JobService is the job coordinator: it owns the
// PENDING -> RUNNING -> {COMPLETED|FAILED} state machine, decides what may
// happen to a job and by whom, and is the only component mutating job state.
type JobService struct {
	db       *sql.DB
	repos    repomanager.RepositoryManager
	registry *RegistryService
	broker   CredentialBroker
	config   *config.Config
}

func NewJobService(db *sql.DB, repos repomanager.RepositoryManager, registry *RegistryService, broker CredentialBroker, cfg *config.Config) *JobService {
	return &JobService{
		db:       db,
		repos:    repos,
		registry: registry,
		broker:   broker,
		config:   cfg,
	}
}

// Create validates the target against the registry and records a PENDING
// job. The server DNS and database name are snapshotted onto the job; the
// target is not re-checked on later transitions.
func (s *JobService) Create(ctx context.Context, p *models.Principal, serverID, database, ticket string) (*models.Job, error) {
	server, err := s.registry.Availability(ctx, serverID, database)
	if err != nil {
		return nil, err
	}

	return s.repos.Jobs(s.db).Create(ctx, &models.Job{
		Ticket:      ticket,
		Server:      server.DNS,
		Database:    database,
		RequestedBy: p.Identity(),
		Status:      models.JobStatusPending,
	})
}

// ListFilter narrows the job listing.
type ListFilter struct {
	Status *models.JobStatus
	Ticket *string
}

// List returns jobs visible to the principal, newest first. Admins and
// auditors see everything; developers only their own.
func (s *JobService) List(ctx context.Context, p *models.Principal, role auth.Role, f ListFilter) ([]*models.Job, error) {
	filter := jobs.Filter{Status: f.Status, Ticket: f.Ticket}
	if role == auth.RoleDeveloper {
		requester := p.Identity()
		filter.RequestedBy = &requester
	}
	return s.repos.Jobs(s.db).List(ctx, filter)
}

// Get returns one job, applying the same visibility rule as List.
func (s *JobService) Get(ctx context.Context, p *models.Principal, role auth.Role, id string) (*models.Job, error) {
	job, err := s.repos.Jobs(s.db).GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if role == auth.RoleDeveloper && job.RequestedBy != p.Identity() {
		return nil, common.ErrForbidden
	}
	return job, nil
}

// NextPending returns the oldest PENDING job for the server (FIFO per
// server), or common.ErrNotFound when there is no work. Polling is read-only;
// claiming happens via a RUNNING report.
func (s *JobService) NextPending(ctx context.Context, serverDNS string) (*models.Job, error) {
	return s.repos.Jobs(s.db).NextPending(ctx, serverDNS)
}

// ReportTransition applies one runner-reported transition through the state
// machine. Every status change is a compare-and-swap against the status the
// decision was made on; losing a race re-evaluates against the fresh status
// instead of blindly overwriting.
func (s *JobService) ReportTransition(ctx context.Context, id string, update RunnerUpdate) (*TransitionResult, error) {
	repo := s.repos.Jobs(s.db)

	job, err := repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	switch u := update.(type) {
	case RunningUpdate:
		return s.applyRunning(ctx, repo, job, u)
	case CompletedUpdate:
		return s.applyCompleted(ctx, repo, job, u)
	case FailedUpdate:
		return s.applyFailed(ctx, repo, job, u)
	default:
		return nil, common.NewValidationError("status", "unsupported status transition")
	}
}

func (s *JobService) applyRunning(ctx context.Context, repo jobs.Repository, job *models.Job, u RunningUpdate) (*TransitionResult, error) {
	// Two attempts: the first CAS can lose to a concurrent PENDING->RUNNING
	// claim, after which the retry re-evaluates against RUNNING (a legal,
	// idempotent repeat).
	for attempt := 0; attempt < 2; attempt++ {
		if job.Status != models.JobStatusPending && job.Status != models.JobStatusRunning {
			return nil, fmt.Errorf("%w: job is not pending or running", common.ErrConflict)
		}

		blobPath := storage.BuildBlobPath(s.config.StoragePrefix, job.Server, job.Database, job.Ticket, nowFunc())
		if job.BlobPath != nil {
			blobPath = *job.BlobPath
		}
		if u.BlobPath != nil {
			blobPath = *u.BlobPath
		}

		updated, err := repo.MarkRunning(ctx, job.ID, job.Status, blobPath)
		if errors.Is(err, common.ErrConflict) {
			job, err = repo.GetByID(ctx, job.ID)
			if err != nil {
				return nil, err
			}
			continue
		}
		if err != nil {
			return nil, err
		}

		result := &TransitionResult{Job: updated}
		if updated.BlobPath != nil {
			result.BlobPath = *updated.BlobPath
		}
		destURL, err := s.broker.IssueWriteURL(ctx, result.BlobPath, s.config.WriteSASTTL)
		if err != nil {
			return nil, fmt.Errorf("issue write url: %w", err)
		}
		result.DestURL = destURL
		return result, nil
	}

	return nil, fmt.Errorf("%w: job is not pending or running", common.ErrConflict)
}

func (s *JobService) applyCompleted(ctx context.Context, repo jobs.Repository, job *models.Job, u CompletedUpdate) (*TransitionResult, error) {
	if job.Status != models.JobStatusRunning {
		return nil, fmt.Errorf("%w: job must be running to complete", common.ErrConflict)
	}
	if job.BlobPath == nil && u.BlobPath == nil {
		return nil, common.NewValidationError("blobPath", "blob path required for completion")
	}

	sha256, err := NormalizeSHA256(u.SHA256)
	if err != nil {
		return nil, err
	}

	blobPath := ""
	if u.BlobPath != nil {
		blobPath = *u.BlobPath
	} else {
		blobPath = *job.BlobPath
	}

	completedAt := nowFunc()
	if u.CompletedAt != nil {
		completedAt = *u.CompletedAt
	}

	updated, err := repo.MarkCompleted(ctx, job.ID, blobPath, sha256, u.ETag, completedAt)
	if errors.Is(err, common.ErrConflict) {
		// Lost a race: the job left RUNNING between read and write.
		return nil, fmt.Errorf("%w: job must be running to complete", common.ErrConflict)
	}
	if err != nil {
		return nil, err
	}
	return &TransitionResult{Job: updated}, nil
}

func (s *JobService) applyFailed(ctx context.Context, repo jobs.Repository, job *models.Job, u FailedUpdate) (*TransitionResult, error) {
	if job.Status == models.JobStatusCompleted {
		return nil, fmt.Errorf("%w: completed jobs cannot fail", common.ErrConflict)
	}

	updated, err := repo.MarkFailed(ctx, job.ID, u.Error)
	if errors.Is(err, common.ErrConflict) {
		// A concurrent transition completed the job first.
		return nil, fmt.Errorf("%w: completed jobs cannot fail", common.ErrConflict)
	}
	if err != nil {
		return nil, err
	}
	return &TransitionResult{Job: updated}, nil
}

// IssueReadSAS issues a read credential for a completed job's artifact,
// applying the same visibility rule as Get. The TTL is caller-configurable
// in whole hours up to the configured ceiling; the default applies when the
// caller passes nil.
func (s *JobService) IssueReadSAS(ctx context.Context, p *models.Principal, role auth.Role, id string, ttlHours *int) (*ReadSAS, error) {
	job, err := s.Get(ctx, p, role, id)
	if err != nil {
		return nil, err
	}
	if job.BlobPath == nil || *job.BlobPath == "" {
		return nil, common.NewValidationError("blobPath", "job is missing blob path")
	}

	ttl := s.config.DefaultSASTTLHours
	if ttlHours != nil {
		ttl = *ttlHours
	}
	if ttl < 1 || ttl > s.config.MaxSASTTLHours {
		return nil, common.NewValidationError("ttlHours",
			fmt.Sprintf("must be between 1 and %d", s.config.MaxSASTTLHours))
	}

	url, err := s.broker.IssueReadURL(ctx, *job.BlobPath, time.Duration(ttl)*time.Hour)
	if err != nil {
		return nil, fmt.Errorf("issue read url: %w", err)
	}
	return &ReadSAS{URL: url, TTLHours: ttl}, nil
}
