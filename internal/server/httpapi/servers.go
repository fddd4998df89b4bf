package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/sparkleops/dbdistrib/internal/common"
	"github.com/sparkleops/dbdistrib/internal/logging"
	"github.com/sparkleops/dbdistrib/internal/server/repositories/databases"
	"github.com/sparkleops/dbdistrib/internal/server/repositories/servers"
	"github.com/sparkleops/dbdistrib/internal/server/services"
)

type ServersHandler struct {
	registry *services.RegistryService
	log      logging.Logger
}

func NewServersHandler(registry *services.RegistryService, log logging.Logger) *ServersHandler {
	return &ServersHandler{registry: registry, log: log}
}

func (h *ServersHandler) List(w http.ResponseWriter, r *http.Request) {
	list, err := h.registry.ListServers(r.Context())
	if err != nil {
		writeError(r.Context(), h.log, w, err)
		return
	}
	writeData(w, http.StatusOK, toServerViews(list))
}

type createServerRequest struct {
	Name     string `json:"name"`
	DNS      string `json:"dns"`
	IsActive *bool  `json:"isActive"`
}

func (h *ServersHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createServerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(r.Context(), h.log, w, common.NewValidationError("body", "invalid JSON"))
		return
	}
	if req.Name == "" {
		writeError(r.Context(), h.log, w, common.NewValidationError("name", "required"))
		return
	}
	if req.DNS == "" {
		writeError(r.Context(), h.log, w, common.NewValidationError("dns", "required"))
		return
	}
	active := true
	if req.IsActive != nil {
		active = *req.IsActive
	}

	s, err := h.registry.CreateServer(r.Context(), req.Name, req.DNS, active)
	if err != nil {
		writeError(r.Context(), h.log, w, err)
		return
	}
	writeData(w, http.StatusOK, toServerView(s))
}

type updateServerRequest struct {
	Name     *string `json:"name"`
	DNS      *string `json:"dns"`
	IsActive *bool   `json:"isActive"`
}

func (h *ServersHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(r.Context(), h.log, w, err)
		return
	}
	var req updateServerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(r.Context(), h.log, w, common.NewValidationError("body", "invalid JSON"))
		return
	}

	s, err := h.registry.UpdateServer(r.Context(), id, servers.ServerPatch{
		Name:     req.Name,
		DNS:      req.DNS,
		IsActive: req.IsActive,
	})
	if err != nil {
		writeError(r.Context(), h.log, w, err)
		return
	}
	writeData(w, http.StatusOK, toServerView(s))
}

func (h *ServersHandler) ListDatabases(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(r.Context(), h.log, w, err)
		return
	}
	list, err := h.registry.ListDatabases(r.Context(), id)
	if err != nil {
		writeError(r.Context(), h.log, w, err)
		return
	}
	writeData(w, http.StatusOK, toDatabaseViews(list))
}

type createDatabaseRequest struct {
	DBName   string `json:"dbName"`
	IsActive *bool  `json:"isActive"`
}

func (h *ServersHandler) CreateDatabase(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(r.Context(), h.log, w, err)
		return
	}
	var req createDatabaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(r.Context(), h.log, w, common.NewValidationError("body", "invalid JSON"))
		return
	}
	if req.DBName == "" {
		writeError(r.Context(), h.log, w, common.NewValidationError("dbName", "required"))
		return
	}
	active := true
	if req.IsActive != nil {
		active = *req.IsActive
	}

	d, err := h.registry.CreateDatabase(r.Context(), id, req.DBName, active)
	if err != nil {
		writeError(r.Context(), h.log, w, err)
		return
	}
	writeData(w, http.StatusOK, toDatabaseView(d))
}

type updateDatabaseRequest struct {
	DBName   *string `json:"dbName"`
	IsActive *bool   `json:"isActive"`
}

func (h *ServersHandler) UpdateDatabase(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(r.Context(), h.log, w, err)
		return
	}
	var req updateDatabaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(r.Context(), h.log, w, common.NewValidationError("body", "invalid JSON"))
		return
	}

	d, err := h.registry.UpdateDatabase(r.Context(), id, databases.DatabasePatch{
		DBName:   req.DBName,
		IsActive: req.IsActive,
	})
	if err != nil {
		writeError(r.Context(), h.log, w, err)
		return
	}
	writeData(w, http.StatusOK, toDatabaseView(d))
}

// AdminList serves the paginated admin view: every server, active or not,
// with its full database registry.
func (h *ServersHandler) AdminList(w http.ResponseWriter, r *http.Request) {
	page, err := positiveQueryInt(r, "page", 1, 0)
	if err != nil {
		writeError(r.Context(), h.log, w, err)
		return
	}
	pageSize, err := positiveQueryInt(r, "pageSize", 20, maxPageSize)
	if err != nil {
		writeError(r.Context(), h.log, w, err)
		return
	}

	result, err := h.registry.AdminServerPage(r.Context(), page, pageSize)
	if err != nil {
		writeError(r.Context(), h.log, w, err)
		return
	}
	writeData(w, http.StatusOK, toServerPageView(result))
}

// maxPageSize caps the admin listing page.
const maxPageSize = 100
