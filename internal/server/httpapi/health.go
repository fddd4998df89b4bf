package httpapi

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"

	"github.com/sparkleops/dbdistrib/internal/common"
	"github.com/sparkleops/dbdistrib/internal/logging"
)

// StorageChecker reports whether the artifact store is reachable.
type StorageChecker interface {
	Ready(ctx context.Context) error
}

type HealthHandler struct {
	db      *sql.DB
	storage StorageChecker
	log     logging.Logger
}

func NewHealthHandler(db *sql.DB, storage StorageChecker, log logging.Logger) *HealthHandler {
	return &HealthHandler{db: db, storage: storage, log: log}
}

func (h *HealthHandler) Live(w http.ResponseWriter, r *http.Request) {
	writeData(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Ready verifies both hard dependencies: the job repository and the artifact
// store. Either failing means the service cannot do useful work.
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	if err := h.db.PingContext(r.Context()); err != nil {
		h.log.Warn(r.Context(), "readiness: database unreachable", "error", err)
		writeError(r.Context(), h.log, w, fmt.Errorf("%w: database", common.ErrUnavailable))
		return
	}
	if err := h.storage.Ready(r.Context()); err != nil {
		h.log.Warn(r.Context(), "readiness: storage unreachable", "error", err)
		writeError(r.Context(), h.log, w, fmt.Errorf("%w: storage", common.ErrUnavailable))
		return
	}
	writeData(w, http.StatusOK, map[string]string{"status": "ready"})
}
