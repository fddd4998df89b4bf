package models

import "time"

// JobStatus is the lifecycle state of a backup job.
type JobStatus string

const (
	JobStatusPending   JobStatus = "PENDING"
	JobStatusRunning   JobStatus = "RUNNING"
	JobStatusCompleted JobStatus = "COMPLETED"
	JobStatusFailed    JobStatus = "FAILED"
)

// ParseJobStatus validates a status string against the closed enum.
func ParseJobStatus(s string) (JobStatus, bool) {
	switch JobStatus(s) {
	case JobStatusPending, JobStatusRunning, JobStatusCompleted, JobStatusFailed:
		return JobStatus(s), true
	}
	return "", false
}

// Terminal reports whether no further transition is permitted from s.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// Job is one backup request and its lifecycle record.
//
// Server and Database are snapshots captured at creation time, not live
// foreign keys: job history must survive server renames and deactivation.
// Do not "fix" this into a join.
type Job struct {
	ID          string
	Ticket      string
	Server      string
	Database    string
	RequestedBy string
	Status      JobStatus

	// BlobPath is assigned once the job leaves PENDING and is immutable
	// thereafter. Re-running a backup creates a new job.
	BlobPath *string
	// SHA256 is set iff the job is COMPLETED, lowercase hex.
	SHA256 *string
	// ETag is the storage entity tag reported by the runner, if any.
	ETag        *string
	Error       *string
	CompletedAt *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Download is one append-only record of an artifact download attempt.
type Download struct {
	ID           string
	JobID        string
	DownloadedBy string
	IPAddress    *string
	UserAgent    *string
	Success      bool
	CreatedAt    time.Time
}
