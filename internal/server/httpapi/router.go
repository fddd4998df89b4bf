// Package httpapi exposes the coordination service over HTTP: a public
// health surface, a JWT-authenticated human API and a shared-secret runner
// API, each on its own subrouter.
package httpapi

import (
	"database/sql"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/sparkleops/dbdistrib/internal/logging"
	"github.com/sparkleops/dbdistrib/internal/server/auth"
	"github.com/sparkleops/dbdistrib/internal/server/config"
	"github.com/sparkleops/dbdistrib/internal/server/services"
)

// RouterDeps bundles everything the router needs.
type RouterDeps struct {
	DB        *sql.DB
	Config    *config.Config
	Logger    logging.Logger
	Human     auth.Authenticator
	Runner    *auth.RunnerAuthenticator
	Storage   StorageChecker
	Registry  *services.RegistryService
	Jobs      *services.JobService
	Downloads *services.DownloadService
}

// NewRouter wires the full HTTP surface. The returned stop function releases
// router-owned background state (the rate limiter's cache janitor) and should
// run during shutdown.
func NewRouter(deps RouterDeps) (*mux.Router, func()) {
	log := deps.Logger

	router := mux.NewRouter()
	router.Use(requestIDMiddleware)

	// Health (public).
	healthHandler := NewHealthHandler(deps.DB, deps.Storage, log)
	router.HandleFunc("/health/live", healthHandler.Live).Methods("GET")
	router.HandleFunc("/health/ready", healthHandler.Ready).Methods("GET")

	jobsHandler := NewJobsHandler(deps.Jobs, log)

	// Runner routes (shared secret + per-client rate limit). Registered
	// before the human /jobs/{id} routes so /jobs/next is not captured as an
	// id.
	limiter := newRateLimiter(deps.Config.RunnerPollRPS, deps.Config.RunnerPollBurst, log)
	runnerRouter := router.PathPrefix("/jobs").Subrouter()
	runnerRouter.Use(runnerAuthMiddleware(deps.Runner, log))
	runnerRouter.Use(limiter.middleware)
	runnerRouter.HandleFunc("/next", jobsHandler.Next).Methods("GET")
	runnerRouter.HandleFunc("/{id}", jobsHandler.Report).Methods("PATCH")

	// Human routes (JWT).
	humanRouter := router.NewRoute().Subrouter()
	humanRouter.Use(humanAuthMiddleware(deps.Human, deps.Config, log))

	serversHandler := NewServersHandler(deps.Registry, log)
	humanRouter.HandleFunc("/servers", serversHandler.List).Methods("GET")
	humanRouter.HandleFunc("/servers", requireAdmin(log, serversHandler.Create)).Methods("POST")
	humanRouter.HandleFunc("/servers/{id}", requireAdmin(log, serversHandler.Update)).Methods("PATCH")
	humanRouter.HandleFunc("/servers/{id}/databases", serversHandler.ListDatabases).Methods("GET")
	humanRouter.HandleFunc("/servers/{id}/databases", requireAdmin(log, serversHandler.CreateDatabase)).Methods("POST")
	humanRouter.HandleFunc("/databases/{id}", requireAdmin(log, serversHandler.UpdateDatabase)).Methods("PATCH")
	humanRouter.HandleFunc("/admin/servers", requireAdmin(log, serversHandler.AdminList)).Methods("GET")

	humanRouter.HandleFunc("/jobs", jobsHandler.Create).Methods("POST")
	humanRouter.HandleFunc("/jobs", jobsHandler.List).Methods("GET")
	humanRouter.HandleFunc("/jobs/{id}", jobsHandler.Get).Methods("GET")
	humanRouter.HandleFunc("/jobs/{id}/sas", jobsHandler.IssueSAS).Methods("POST")

	downloadsHandler := NewDownloadsHandler(deps.Downloads, log)
	humanRouter.HandleFunc("/downloads", downloadsHandler.Record).Methods("POST")

	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, errorBody{
			StatusCode: http.StatusNotFound,
			Error:      "Not Found",
			Message:    "resource not found",
		})
	})

	return router, limiter.stop
}
