package services

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/sparkleops/dbdistrib/internal/common"
	"github.com/sparkleops/dbdistrib/internal/dbx"
	"github.com/sparkleops/dbdistrib/internal/server/auth"
	"github.com/sparkleops/dbdistrib/internal/server/config"
	"github.com/sparkleops/dbdistrib/internal/server/models"
	databasesrepo "github.com/sparkleops/dbdistrib/internal/server/repositories/databases"
	downloadsrepo "github.com/sparkleops/dbdistrib/internal/server/repositories/downloads"
	jobsrepo "github.com/sparkleops/dbdistrib/internal/server/repositories/jobs"
	serversrepo "github.com/sparkleops/dbdistrib/internal/server/repositories/servers"
)

// --- fakes ---

type fakeServersRepo struct {
	byID map[string]*models.Server
}

func (f *fakeServersRepo) Create(ctx context.Context, name, dns string, isActive bool) (*models.Server, error) {
	return nil, errors.New("not implemented")
}
func (f *fakeServersRepo) Update(ctx context.Context, id string, patch serversrepo.ServerPatch) (*models.Server, error) {
	return nil, errors.New("not implemented")
}
func (f *fakeServersRepo) GetByID(ctx context.Context, id string) (*models.Server, error) {
	s, ok := f.byID[id]
	if !ok {
		return nil, common.ErrNotFound
	}
	return s, nil
}
func (f *fakeServersRepo) ListActive(context.Context) ([]*models.Server, error) { return nil, nil }
func (f *fakeServersRepo) ListPage(context.Context, int, int) ([]*models.Server, error) {
	return nil, nil
}
func (f *fakeServersRepo) Count(context.Context) (int, error) { return 0, nil }

type fakeDatabasesRepo struct {
	byName map[string]*models.Database // key: serverID + "/" + lower(name)
}

func (f *fakeDatabasesRepo) Create(ctx context.Context, serverID, dbName string, isActive bool) (*models.Database, error) {
	return nil, errors.New("not implemented")
}
func (f *fakeDatabasesRepo) Update(ctx context.Context, id string, patch databasesrepo.DatabasePatch) (*models.Database, error) {
	return nil, errors.New("not implemented")
}
func (f *fakeDatabasesRepo) ListActiveByServer(context.Context, string) ([]*models.Database, error) {
	return nil, nil
}
func (f *fakeDatabasesRepo) ListByServer(context.Context, string) ([]*models.Database, error) {
	return nil, nil
}
func (f *fakeDatabasesRepo) FindByName(ctx context.Context, serverID, dbName string) (*models.Database, error) {
	d, ok := f.byName[serverID+"/"+strings.ToLower(dbName)]
	if !ok {
		return nil, common.ErrNotFound
	}
	return d, nil
}

// fakeJobsRepo keeps one job and enforces the same conditional-update
// semantics as the real repository, so coordinator races can be simulated
// via onMarkRunning.
type fakeJobsRepo struct {
	job *models.Job

	created    []*models.Job
	lastFilter jobsrepo.Filter

	// onMarkRunning runs before the status check, letting a test flip the
	// stored status to simulate a concurrent claim.
	onMarkRunning func()
}

func (f *fakeJobsRepo) Create(ctx context.Context, job *models.Job) (*models.Job, error) {
	j := *job
	j.ID = "job-1"
	j.CreatedAt = time.Now()
	f.created = append(f.created, &j)
	return &j, nil
}

func (f *fakeJobsRepo) GetByID(ctx context.Context, id string) (*models.Job, error) {
	if f.job == nil || f.job.ID != id {
		return nil, common.ErrNotFound
	}
	j := *f.job
	return &j, nil
}

func (f *fakeJobsRepo) List(ctx context.Context, filter jobsrepo.Filter) ([]*models.Job, error) {
	f.lastFilter = filter
	if f.job == nil {
		return nil, nil
	}
	return []*models.Job{f.job}, nil
}

func (f *fakeJobsRepo) NextPending(ctx context.Context, serverDNS string) (*models.Job, error) {
	if f.job == nil || f.job.Server != serverDNS || f.job.Status != models.JobStatusPending {
		return nil, common.ErrNotFound
	}
	return f.job, nil
}

func (f *fakeJobsRepo) MarkRunning(ctx context.Context, id string, from models.JobStatus, blobPath string) (*models.Job, error) {
	if f.onMarkRunning != nil {
		f.onMarkRunning()
		f.onMarkRunning = nil
	}
	if f.job == nil || f.job.ID != id || f.job.Status != from {
		return nil, common.ErrConflict
	}
	f.job.Status = models.JobStatusRunning
	if f.job.BlobPath == nil {
		f.job.BlobPath = &blobPath
	}
	j := *f.job
	return &j, nil
}

func (f *fakeJobsRepo) MarkCompleted(ctx context.Context, id, blobPath, sha256 string, etag *string, completedAt time.Time) (*models.Job, error) {
	if f.job == nil || f.job.ID != id || f.job.Status != models.JobStatusRunning {
		return nil, common.ErrConflict
	}
	f.job.Status = models.JobStatusCompleted
	if f.job.BlobPath == nil {
		f.job.BlobPath = &blobPath
	}
	f.job.SHA256 = &sha256
	f.job.ETag = etag
	f.job.CompletedAt = &completedAt
	f.job.Error = nil
	j := *f.job
	return &j, nil
}

func (f *fakeJobsRepo) MarkFailed(ctx context.Context, id, errText string) (*models.Job, error) {
	if f.job == nil || f.job.ID != id || f.job.Status == models.JobStatusCompleted {
		return nil, common.ErrConflict
	}
	f.job.Status = models.JobStatusFailed
	f.job.Error = &errText
	j := *f.job
	return &j, nil
}

type fakeDownloadsRepo struct {
	created *models.Download
}

func (f *fakeDownloadsRepo) Create(ctx context.Context, d *models.Download) (*models.Download, error) {
	rec := *d
	rec.ID = "dl-1"
	rec.CreatedAt = time.Now()
	f.created = &rec
	return &rec, nil
}

type fakeRepoManager struct {
	servers   *fakeServersRepo
	databases *fakeDatabasesRepo
	jobs      *fakeJobsRepo
	downloads *fakeDownloadsRepo
}

func (m *fakeRepoManager) RunMigrations(context.Context, *sql.DB) error { return nil }
func (m *fakeRepoManager) Servers(dbx.DBTX) serversrepo.Repository     { return m.servers }
func (m *fakeRepoManager) Databases(dbx.DBTX) databasesrepo.Repository { return m.databases }
func (m *fakeRepoManager) Jobs(dbx.DBTX) jobsrepo.Repository           { return m.jobs }
func (m *fakeRepoManager) Downloads(dbx.DBTX) downloadsrepo.Repository { return m.downloads }

type fakeBroker struct {
	readURL  string
	writeURL string
	err      error

	lastKey string
	lastTTL time.Duration
}

func (b *fakeBroker) IssueReadURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	b.lastKey, b.lastTTL = key, ttl
	return b.readURL, b.err
}
func (b *fakeBroker) IssueWriteURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	b.lastKey, b.lastTTL = key, ttl
	return b.writeURL, b.err
}

// --- helpers ---

func strPtr(s string) *string { return &s }

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.LoadDefaults()
	cfg.StoragePrefix = "raw-backups"
	return cfg
}

func newJobFixture(t *testing.T, status models.JobStatus) (*JobService, *fakeJobsRepo, *fakeBroker) {
	t.Helper()
	rm := &fakeRepoManager{
		servers: &fakeServersRepo{byID: map[string]*models.Server{
			"srv-1": {ID: "srv-1", Name: "SQL01", DNS: "sql01.corp.local", IsActive: true},
		}},
		databases: &fakeDatabasesRepo{byName: map[string]*models.Database{
			"srv-1/crm": {ID: "db-1", ServerID: "srv-1", DBName: "CRM", IsActive: true},
		}},
		jobs:      &fakeJobsRepo{},
		downloads: &fakeDownloadsRepo{},
	}
	if status != "" {
		rm.jobs.job = &models.Job{
			ID:          "job-1",
			Ticket:      "T-100",
			Server:      "sql01.corp.local",
			Database:    "CRM",
			RequestedBy: "dev@corp.local",
			Status:      status,
		}
	}
	broker := &fakeBroker{readURL: "https://blob/read", writeURL: "https://blob/write"}
	registry := NewRegistryService(nil, rm)
	svc := NewJobService(nil, rm, registry, broker, testConfig())
	return svc, rm.jobs, broker
}

func devPrincipal() *models.Principal {
	return &models.Principal{SubjectID: "sub-1", Username: "dev", Email: "dev@corp.local"}
}

// --- creation ---

func TestJobCreate_SnapshotsTarget(t *testing.T) {
	svc, repo, _ := newJobFixture(t, "")

	job, err := svc.Create(context.Background(), devPrincipal(), "srv-1", "CRM", "T-100")
	if err != nil {
		t.Fatalf("Create error: %v", err)
	}
	if job.Status != models.JobStatusPending {
		t.Errorf("status = %s, want PENDING", job.Status)
	}
	if job.Server != "sql01.corp.local" {
		t.Errorf("server snapshot = %q, want DNS name", job.Server)
	}
	if job.RequestedBy != "dev@corp.local" {
		t.Errorf("requestedBy = %q, want email", job.RequestedBy)
	}
	if len(repo.created) != 1 {
		t.Fatalf("created %d jobs, want 1", len(repo.created))
	}
}

func TestJobCreate_RequesterFallsBackToUsername(t *testing.T) {
	svc, _, _ := newJobFixture(t, "")
	p := &models.Principal{SubjectID: "sub-1", Username: "dev"}

	job, err := svc.Create(context.Background(), p, "srv-1", "CRM", "T-100")
	if err != nil {
		t.Fatalf("Create error: %v", err)
	}
	if job.RequestedBy != "dev" {
		t.Errorf("requestedBy = %q, want username fallback", job.RequestedBy)
	}
}

func TestJobCreate_UnknownServer(t *testing.T) {
	svc, _, _ := newJobFixture(t, "")

	_, err := svc.Create(context.Background(), devPrincipal(), "srv-missing", "CRM", "T-100")
	if !errors.Is(err, common.ErrInvalidInput) {
		t.Fatalf("want ErrInvalidInput, got %v", err)
	}
}

// --- transitions ---

func TestReportTransition_PendingToRunning_GeneratesKey(t *testing.T) {
	svc, repo, broker := newJobFixture(t, models.JobStatusPending)

	fixed := time.Date(2025, 3, 7, 9, 5, 0, 0, time.UTC)
	nowFunc = func() time.Time { return fixed }
	defer func() { nowFunc = time.Now }()

	res, err := svc.ReportTransition(context.Background(), "job-1", RunningUpdate{})
	if err != nil {
		t.Fatalf("ReportTransition error: %v", err)
	}
	if res.Job.Status != models.JobStatusRunning {
		t.Errorf("status = %s, want RUNNING", res.Job.Status)
	}
	want := "raw-backups/sql01.corp.local/CRM/2025/03/07/T-100/db_full_CRM_20250307_0905.bak"
	if res.BlobPath != want {
		t.Errorf("blob path = %q, want %q", res.BlobPath, want)
	}
	if res.DestURL != "https://blob/write" {
		t.Errorf("dest URL = %q, want a write credential for the generated key", res.DestURL)
	}
	if broker.lastKey != want {
		t.Errorf("broker key = %q, want the generated key", broker.lastKey)
	}
	if repo.job.BlobPath == nil || *repo.job.BlobPath != want {
		t.Errorf("stored blob path = %v, want %q", repo.job.BlobPath, want)
	}
}

func TestReportTransition_RunnerSuppliedPathGetsWriteURL(t *testing.T) {
	svc, _, broker := newJobFixture(t, models.JobStatusPending)

	res, err := svc.ReportTransition(context.Background(), "job-1",
		RunningUpdate{BlobPath: strPtr("custom/path.bak")})
	if err != nil {
		t.Fatalf("ReportTransition error: %v", err)
	}
	if res.DestURL != "https://blob/write" {
		t.Errorf("dest URL = %q, want broker write URL", res.DestURL)
	}
	if broker.lastKey != "custom/path.bak" {
		t.Errorf("broker key = %q, want runner-supplied path", broker.lastKey)
	}
	if broker.lastTTL != testConfig().WriteSASTTL {
		t.Errorf("write TTL = %v, want %v", broker.lastTTL, testConfig().WriteSASTTL)
	}
}

func TestReportTransition_RunningToRunning_Idempotent(t *testing.T) {
	svc, repo, _ := newJobFixture(t, models.JobStatusRunning)
	repo.job.BlobPath = strPtr("existing/path.bak")

	res, err := svc.ReportTransition(context.Background(), "job-1", RunningUpdate{})
	if err != nil {
		t.Fatalf("ReportTransition error: %v", err)
	}
	if res.BlobPath != "existing/path.bak" {
		t.Errorf("blob path = %q, want existing path preserved", res.BlobPath)
	}
}

func TestReportTransition_RunningRaceRetries(t *testing.T) {
	svc, repo, _ := newJobFixture(t, models.JobStatusPending)
	// Another runner claims the job between our read and our update; the
	// retry re-evaluates against RUNNING and succeeds as a repeat claim.
	repo.onMarkRunning = func() {
		repo.job.Status = models.JobStatusRunning
		repo.job.BlobPath = strPtr("winner/path.bak")
	}

	res, err := svc.ReportTransition(context.Background(), "job-1", RunningUpdate{})
	if err != nil {
		t.Fatalf("ReportTransition error: %v", err)
	}
	if res.Job.Status != models.JobStatusRunning {
		t.Errorf("status = %s, want RUNNING", res.Job.Status)
	}
	if res.BlobPath != "winner/path.bak" {
		t.Errorf("blob path = %q, want the first claimant's path", res.BlobPath)
	}
}

func TestReportTransition_RunningFromTerminal(t *testing.T) {
	for _, status := range []models.JobStatus{models.JobStatusCompleted, models.JobStatusFailed} {
		t.Run(string(status), func(t *testing.T) {
			svc, _, _ := newJobFixture(t, status)
			_, err := svc.ReportTransition(context.Background(), "job-1", RunningUpdate{})
			if !errors.Is(err, common.ErrConflict) {
				t.Fatalf("want ErrConflict, got %v", err)
			}
		})
	}
}

func TestReportTransition_Completed(t *testing.T) {
	svc, repo, _ := newJobFixture(t, models.JobStatusRunning)
	repo.job.BlobPath = strPtr("p/a.bak")

	res, err := svc.ReportTransition(context.Background(), "job-1", CompletedUpdate{
		SHA256: "  ABCDEF0123456789ABCDEF0123456789ABCDEF0123456789ABCDEF0123456789  ",
		ETag:   strPtr(`"etag-1"`),
	})
	if err != nil {
		t.Fatalf("ReportTransition error: %v", err)
	}
	if res.Job.Status != models.JobStatusCompleted {
		t.Errorf("status = %s, want COMPLETED", res.Job.Status)
	}
	if res.Job.SHA256 == nil || *res.Job.SHA256 != "abcdef0123456789abcdef0123456789abcdef0123456789abcdef0123456789" {
		t.Errorf("sha256 = %v, want trimmed lowercase digest", res.Job.SHA256)
	}
	if res.Job.CompletedAt == nil {
		t.Error("completedAt not defaulted")
	}
}

func TestReportTransition_CompletedBadChecksumLeavesRunning(t *testing.T) {
	svc, repo, _ := newJobFixture(t, models.JobStatusRunning)
	repo.job.BlobPath = strPtr("p/a.bak")

	_, err := svc.ReportTransition(context.Background(), "job-1", CompletedUpdate{SHA256: "nope"})
	if !errors.Is(err, common.ErrInvalidInput) {
		t.Fatalf("want ErrInvalidInput, got %v", err)
	}
	if repo.job.Status != models.JobStatusRunning {
		t.Errorf("status = %s, want RUNNING untouched", repo.job.Status)
	}
}

func TestReportTransition_CompletedWithoutBlobPath(t *testing.T) {
	svc, _, _ := newJobFixture(t, models.JobStatusRunning)

	_, err := svc.ReportTransition(context.Background(), "job-1", CompletedUpdate{
		SHA256: strings.Repeat("ab", 32),
	})
	if !errors.Is(err, common.ErrInvalidInput) {
		t.Fatalf("want ErrInvalidInput, got %v", err)
	}
}

func TestReportTransition_CompletedNotFromRunning(t *testing.T) {
	for _, status := range []models.JobStatus{models.JobStatusPending, models.JobStatusCompleted, models.JobStatusFailed} {
		t.Run(string(status), func(t *testing.T) {
			svc, _, _ := newJobFixture(t, status)
			_, err := svc.ReportTransition(context.Background(), "job-1", CompletedUpdate{
				SHA256:   strings.Repeat("ab", 32),
				BlobPath: strPtr("p/a.bak"),
			})
			if !errors.Is(err, common.ErrConflict) {
				t.Fatalf("want ErrConflict, got %v", err)
			}
		})
	}
}

func TestReportTransition_Failed(t *testing.T) {
	for _, status := range []models.JobStatus{models.JobStatusPending, models.JobStatusRunning, models.JobStatusFailed} {
		t.Run(string(status), func(t *testing.T) {
			svc, repo, _ := newJobFixture(t, status)
			res, err := svc.ReportTransition(context.Background(), "job-1",
				FailedUpdate{Error: "disk full"})
			if err != nil {
				t.Fatalf("ReportTransition error: %v", err)
			}
			if res.Job.Status != models.JobStatusFailed {
				t.Errorf("status = %s, want FAILED", res.Job.Status)
			}
			if repo.job.Error == nil || *repo.job.Error != "disk full" {
				t.Errorf("error = %v, want recorded text", repo.job.Error)
			}
		})
	}
}

func TestReportTransition_FailedFromCompleted(t *testing.T) {
	svc, _, _ := newJobFixture(t, models.JobStatusCompleted)

	_, err := svc.ReportTransition(context.Background(), "job-1", FailedUpdate{Error: "late"})
	if !errors.Is(err, common.ErrConflict) {
		t.Fatalf("want ErrConflict, got %v", err)
	}
}

func TestReportTransition_UnknownJob(t *testing.T) {
	svc, _, _ := newJobFixture(t, "")

	_, err := svc.ReportTransition(context.Background(), "job-none", RunningUpdate{})
	if !errors.Is(err, common.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

// --- visibility ---

func TestJobGet_DeveloperOwnerOnly(t *testing.T) {
	svc, _, _ := newJobFixture(t, models.JobStatusPending)

	if _, err := svc.Get(context.Background(), devPrincipal(), auth.RoleDeveloper, "job-1"); err != nil {
		t.Fatalf("owner Get error: %v", err)
	}

	other := &models.Principal{SubjectID: "sub-2", Email: "other@corp.local"}
	_, err := svc.Get(context.Background(), other, auth.RoleDeveloper, "job-1")
	if !errors.Is(err, common.ErrForbidden) {
		t.Fatalf("want ErrForbidden, got %v", err)
	}

	if _, err := svc.Get(context.Background(), other, auth.RoleAuditor, "job-1"); err != nil {
		t.Fatalf("auditor Get error: %v", err)
	}
}

func TestJobList_DeveloperScoped(t *testing.T) {
	svc, repo, _ := newJobFixture(t, models.JobStatusPending)

	if _, err := svc.List(context.Background(), devPrincipal(), auth.RoleDeveloper, ListFilter{}); err != nil {
		t.Fatalf("List error: %v", err)
	}
	if repo.lastFilter.RequestedBy == nil || *repo.lastFilter.RequestedBy != "dev@corp.local" {
		t.Errorf("filter.RequestedBy = %v, want developer identity", repo.lastFilter.RequestedBy)
	}

	if _, err := svc.List(context.Background(), devPrincipal(), auth.RoleAdmin, ListFilter{}); err != nil {
		t.Fatalf("List error: %v", err)
	}
	if repo.lastFilter.RequestedBy != nil {
		t.Errorf("admin filter scoped to %v, want unscoped", repo.lastFilter.RequestedBy)
	}
}

// --- read credentials ---

func TestIssueReadSAS_DefaultTTL(t *testing.T) {
	svc, repo, broker := newJobFixture(t, models.JobStatusCompleted)
	repo.job.BlobPath = strPtr("p/a.bak")

	sas, err := svc.IssueReadSAS(context.Background(), devPrincipal(), auth.RoleDeveloper, "job-1", nil)
	if err != nil {
		t.Fatalf("IssueReadSAS error: %v", err)
	}
	if sas.URL != "https://blob/read" {
		t.Errorf("url = %q", sas.URL)
	}
	if sas.TTLHours != testConfig().DefaultSASTTLHours {
		t.Errorf("ttl = %d, want default %d", sas.TTLHours, testConfig().DefaultSASTTLHours)
	}
	if broker.lastTTL != time.Duration(testConfig().DefaultSASTTLHours)*time.Hour {
		t.Errorf("broker ttl = %v", broker.lastTTL)
	}
}

func TestIssueReadSAS_TTLBounds(t *testing.T) {
	svc, repo, _ := newJobFixture(t, models.JobStatusCompleted)
	repo.job.BlobPath = strPtr("p/a.bak")

	for _, hours := range []int{0, -1, testConfig().MaxSASTTLHours + 1} {
		_, err := svc.IssueReadSAS(context.Background(), devPrincipal(), auth.RoleDeveloper, "job-1", &hours)
		if !errors.Is(err, common.ErrInvalidInput) {
			t.Fatalf("ttl %d: want ErrInvalidInput, got %v", hours, err)
		}
	}

	hours := testConfig().MaxSASTTLHours
	if _, err := svc.IssueReadSAS(context.Background(), devPrincipal(), auth.RoleDeveloper, "job-1", &hours); err != nil {
		t.Fatalf("ttl at ceiling: %v", err)
	}
}

func TestIssueReadSAS_MissingBlobPath(t *testing.T) {
	svc, _, _ := newJobFixture(t, models.JobStatusPending)

	_, err := svc.IssueReadSAS(context.Background(), devPrincipal(), auth.RoleDeveloper, "job-1", nil)
	if !errors.Is(err, common.ErrInvalidInput) {
		t.Fatalf("want ErrInvalidInput, got %v", err)
	}
}

func TestIssueReadSAS_NonOwnerForbidden(t *testing.T) {
	svc, repo, _ := newJobFixture(t, models.JobStatusCompleted)
	repo.job.BlobPath = strPtr("p/a.bak")

	other := &models.Principal{SubjectID: "sub-2", Email: "other@corp.local"}
	_, err := svc.IssueReadSAS(context.Background(), other, auth.RoleDeveloper, "job-1", nil)
	if !errors.Is(err, common.ErrForbidden) {
		t.Fatalf("want ErrForbidden, got %v", err)
	}
}
