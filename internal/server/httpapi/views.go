package httpapi

import (
	"time"

	"github.com/sparkleops/dbdistrib/internal/server/models"
	"github.com/sparkleops/dbdistrib/internal/server/services"
)

// Wire representations. Models stay tag-free; the view layer owns field
// naming on the wire.

type serverView struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	DNS       string    `json:"dns"`
	IsActive  bool      `json:"isActive"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func toServerView(s *models.Server) serverView {
	return serverView{
		ID:        s.ID,
		Name:      s.Name,
		DNS:       s.DNS,
		IsActive:  s.IsActive,
		CreatedAt: s.CreatedAt,
		UpdatedAt: s.UpdatedAt,
	}
}

func toServerViews(list []*models.Server) []serverView {
	out := make([]serverView, 0, len(list))
	for _, s := range list {
		out = append(out, toServerView(s))
	}
	return out
}

type databaseView struct {
	ID        string    `json:"id"`
	ServerID  string    `json:"serverId"`
	DBName    string    `json:"dbName"`
	IsActive  bool      `json:"isActive"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func toDatabaseView(d *models.Database) databaseView {
	return databaseView{
		ID:        d.ID,
		ServerID:  d.ServerID,
		DBName:    d.DBName,
		IsActive:  d.IsActive,
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
}

func toDatabaseViews(list []*models.Database) []databaseView {
	out := make([]databaseView, 0, len(list))
	for _, d := range list {
		out = append(out, toDatabaseView(d))
	}
	return out
}

type serverWithDatabasesView struct {
	serverView
	Databases       []databaseView `json:"databases"`
	TotalDatabases  int            `json:"totalDatabases"`
	ActiveDatabases int            `json:"activeDatabases"`
}

type serverPageView struct {
	Items      []serverWithDatabasesView `json:"items"`
	Page       int                       `json:"page"`
	PageSize   int                       `json:"pageSize"`
	Total      int                       `json:"total"`
	TotalPages int                       `json:"totalPages"`
}

func toServerPageView(p *services.ServerPage) serverPageView {
	items := make([]serverWithDatabasesView, 0, len(p.Items))
	for _, it := range p.Items {
		items = append(items, serverWithDatabasesView{
			serverView:      toServerView(it.Server),
			Databases:       toDatabaseViews(it.Databases),
			TotalDatabases:  it.TotalDatabases,
			ActiveDatabases: it.ActiveDatabases,
		})
	}
	return serverPageView{
		Items:      items,
		Page:       p.Page,
		PageSize:   p.PageSize,
		Total:      p.Total,
		TotalPages: p.TotalPages,
	}
}

type jobView struct {
	ID          string     `json:"id"`
	Ticket      string     `json:"ticket"`
	Server      string     `json:"server"`
	Database    string     `json:"database"`
	RequestedBy string     `json:"requestedBy"`
	Status      string     `json:"status"`
	BlobPath    *string    `json:"blobPath,omitempty"`
	SHA256      *string    `json:"sha256,omitempty"`
	ETag        *string    `json:"etag,omitempty"`
	Error       *string    `json:"error,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

func toJobView(j *models.Job) jobView {
	return jobView{
		ID:          j.ID,
		Ticket:      j.Ticket,
		Server:      j.Server,
		Database:    j.Database,
		RequestedBy: j.RequestedBy,
		Status:      string(j.Status),
		BlobPath:    j.BlobPath,
		SHA256:      j.SHA256,
		ETag:        j.ETag,
		Error:       j.Error,
		CompletedAt: j.CompletedAt,
		CreatedAt:   j.CreatedAt,
		UpdatedAt:   j.UpdatedAt,
	}
}

// jobCreatedView is the create acknowledgement: the caller already knows the
// rest of the payload it just sent.
type jobCreatedView struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

func toJobCreatedView(j *models.Job) jobCreatedView {
	return jobCreatedView{ID: j.ID, Status: string(j.Status)}
}

// runnerJobView is the claim-candidate payload. The runner gets only what it
// needs to perform the backup; requester identity stays on the human surface.
type runnerJobView struct {
	ID       string `json:"id"`
	Database string `json:"database"`
	Ticket   string `json:"ticket"`
	Server   string `json:"server"`
}

func toRunnerJobView(j *models.Job) runnerJobView {
	return runnerJobView{ID: j.ID, Database: j.Database, Ticket: j.Ticket, Server: j.Server}
}

func toJobViews(list []*models.Job) []jobView {
	out := make([]jobView, 0, len(list))
	for _, j := range list {
		out = append(out, toJobView(j))
	}
	return out
}

// transitionView is a jobView plus the write credential issued on a RUNNING
// report. The job's own blobPath field already carries the assigned key.
type transitionView struct {
	jobView
	DestURL string `json:"destUrl,omitempty"`
}

func toTransitionView(res *services.TransitionResult) transitionView {
	return transitionView{
		jobView: toJobView(res.Job),
		DestURL: res.DestURL,
	}
}

type downloadView struct {
	ID           string    `json:"id"`
	JobID        string    `json:"jobId"`
	DownloadedBy string    `json:"downloadedBy"`
	IPAddress    *string   `json:"ipAddress,omitempty"`
	UserAgent    *string   `json:"userAgent,omitempty"`
	Success      bool      `json:"success"`
	CreatedAt    time.Time `json:"createdAt"`
}

func toDownloadView(d *models.Download) downloadView {
	return downloadView{
		ID:           d.ID,
		JobID:        d.JobID,
		DownloadedBy: d.DownloadedBy,
		IPAddress:    d.IPAddress,
		UserAgent:    d.UserAgent,
		Success:      d.Success,
		CreatedAt:    d.CreatedAt,
	}
}
