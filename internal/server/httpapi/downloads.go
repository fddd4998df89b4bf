package httpapi

import (
	"encoding/json"
	"net"
	"net/http"

	"github.com/sparkleops/dbdistrib/internal/common"
	"github.com/sparkleops/dbdistrib/internal/logging"
	"github.com/sparkleops/dbdistrib/internal/server/services"
)

type DownloadsHandler struct {
	downloads *services.DownloadService
	log       logging.Logger
}

func NewDownloadsHandler(downloads *services.DownloadService, log logging.Logger) *DownloadsHandler {
	return &DownloadsHandler{downloads: downloads, log: log}
}

type recordDownloadRequest struct {
	JobID        string `json:"jobId"`
	DownloadedBy string `json:"downloadedBy"`
	Success      *bool  `json:"success"`
}

func (h *DownloadsHandler) Record(w http.ResponseWriter, r *http.Request) {
	p, role, ok := principalFrom(r.Context())
	if !ok {
		writeError(r.Context(), h.log, w, common.ErrUnauthenticated)
		return
	}

	var req recordDownloadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(r.Context(), h.log, w, common.NewValidationError("body", "invalid JSON"))
		return
	}
	if err := uuidField("jobId", req.JobID); err != nil {
		writeError(r.Context(), h.log, w, err)
		return
	}

	var ip *string
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil && host != "" {
		ip = &host
	}
	var userAgent *string
	if ua := r.UserAgent(); ua != "" {
		userAgent = &ua
	}

	rec, err := h.downloads.Record(r.Context(), p, role, req.JobID, req.DownloadedBy, ip, userAgent, req.Success)
	if err != nil {
		writeError(r.Context(), h.log, w, err)
		return
	}
	writeData(w, http.StatusOK, toDownloadView(rec))
}
