// Package api implements the coordinator's HTTP/JSON surface: the
// admin-facing catalog/allocation endpoints (operator auth) and the
// worker-facing claim/status/upload/complete endpoints (AK/SK auth).
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/cuemby/cascade/pkg/apierr"
	"github.com/cuemby/cascade/pkg/credential"
	"github.com/cuemby/cascade/pkg/cron"
	"github.com/cuemby/cascade/pkg/dispatcher"
	"github.com/cuemby/cascade/pkg/events"
	"github.com/cuemby/cascade/pkg/log"
	"github.com/cuemby/cascade/pkg/metrics"
	"github.com/cuemby/cascade/pkg/registry"
	"github.com/cuemby/cascade/pkg/storage"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
)

// Server embeds a handle to every core engine component, built with
// NewServer(...) and started with Start(addr), wrapping an
// http.Server around a gorilla/mux.Router.
type Server struct {
	store         storage.Store
	cred          *credential.Store
	registry      *registry.Registry
	dispatcher    *dispatcher.Dispatcher
	scheduler     *cron.Scheduler
	broker        *events.Broker
	operatorToken string
	logger        zerolog.Logger

	router *mux.Router
	http   *http.Server
}

// NewServer builds the coordinator API over its component
// dependencies, injected rather than fetched from globals so tests
// can spin up isolated instances (the "process-wide state" note).
func NewServer(
	store storage.Store,
	cred *credential.Store,
	reg *registry.Registry,
	disp *dispatcher.Dispatcher,
	sched *cron.Scheduler,
	broker *events.Broker,
	operatorToken string,
) *Server {
	s := &Server{
		store:         store,
		cred:          cred,
		registry:      reg,
		dispatcher:    disp,
		scheduler:     sched,
		broker:        broker,
		operatorToken: operatorToken,
		logger:        log.WithComponent("api"),
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() *mux.Router {
	r := mux.NewRouter()
	r.Use(s.requestMetricsMiddleware)

	r.HandleFunc("/healthz", metrics.HealthHandler()).Methods(http.MethodGet)
	r.HandleFunc("/ready", metrics.ReadyHandler()).Methods(http.MethodGet)
	r.HandleFunc("/live", metrics.LivenessHandler()).Methods(http.MethodGet)
	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	// Worker-facing, AK/SK authenticated.
	r.HandleFunc("/cascade/heartbeat", s.requireWorkerAuth(s.handleHeartbeat)).Methods(http.MethodPost)
	r.HandleFunc("/cascade/claim-task", s.requireWorkerAuth(s.handleClaimTask)).Methods(http.MethodPost)
	r.HandleFunc("/cascade/task-status", s.requireWorkerAuth(s.handleTaskStatus)).Methods(http.MethodPut)
	r.HandleFunc("/cascade/upload-articles", s.requireWorkerAuth(s.handleUploadArticles)).Methods(http.MethodPost)
	r.HandleFunc("/cascade/report-completion", s.requireWorkerAuth(s.handleReportCompletion)).Methods(http.MethodPost)

	// Operator-facing node management.
	r.HandleFunc("/cascade/nodes", s.requireOperatorAuth(s.handleCreateNode)).Methods(http.MethodPost)
	r.HandleFunc("/cascade/nodes", s.requireOperatorAuth(s.handleListNodes)).Methods(http.MethodGet)
	r.HandleFunc("/cascade/nodes/{id}", s.requireOperatorAuth(s.handleUpdateNode)).Methods(http.MethodPut)
	r.HandleFunc("/cascade/nodes/{id}", s.requireOperatorAuth(s.handleDeleteNode)).Methods(http.MethodDelete)
	r.HandleFunc("/cascade/nodes/{id}/credentials", s.requireOperatorAuth(s.handleIssueCredentials)).Methods(http.MethodPost)

	// Operator-facing dispatch/allocation/scheduler control.
	r.HandleFunc("/cascade/dispatch-task", s.requireOperatorAuth(s.handleDispatchTask)).Methods(http.MethodPost)
	r.HandleFunc("/cascade/allocations", s.requireOperatorAuth(s.handleListAllocations)).Methods(http.MethodGet)
	r.HandleFunc("/cascade/pending-allocations", s.requireOperatorAuth(s.handlePendingAllocations)).Methods(http.MethodGet)
	r.HandleFunc("/cascade/start-scheduler", s.requireOperatorAuth(s.handleStartScheduler)).Methods(http.MethodPost)
	r.HandleFunc("/cascade/stop-scheduler", s.requireOperatorAuth(s.handleStopScheduler)).Methods(http.MethodPost)
	r.HandleFunc("/cascade/reload-scheduler", s.requireOperatorAuth(s.handleReloadScheduler)).Methods(http.MethodPost)
	r.HandleFunc("/cascade/feed-status", s.requireOperatorAuth(s.handleFeedStatus)).Methods(http.MethodGet)
	r.HandleFunc("/cascade/sync-logs", s.requireOperatorAuth(s.handleListSyncLogs)).Methods(http.MethodGet)

	// Operator-facing catalog management.
	r.HandleFunc("/cascade/feeds", s.requireOperatorAuth(s.handleCreateFeed)).Methods(http.MethodPost)
	r.HandleFunc("/cascade/feeds", s.requireOperatorAuth(s.handleListFeeds)).Methods(http.MethodGet)
	r.HandleFunc("/cascade/feeds/{id}", s.requireOperatorAuth(s.handleGetFeed)).Methods(http.MethodGet)
	r.HandleFunc("/cascade/feeds/{id}", s.requireOperatorAuth(s.handleUpdateFeed)).Methods(http.MethodPut)
	r.HandleFunc("/cascade/feeds/{id}", s.requireOperatorAuth(s.handleDeleteFeed)).Methods(http.MethodDelete)

	r.HandleFunc("/cascade/tasks", s.requireOperatorAuth(s.handleCreateTask)).Methods(http.MethodPost)
	r.HandleFunc("/cascade/tasks", s.requireOperatorAuth(s.handleListTasks)).Methods(http.MethodGet)
	r.HandleFunc("/cascade/tasks/{id}", s.requireOperatorAuth(s.handleGetTask)).Methods(http.MethodGet)
	r.HandleFunc("/cascade/tasks/{id}", s.requireOperatorAuth(s.handleUpdateTask)).Methods(http.MethodPut)
	r.HandleFunc("/cascade/tasks/{id}", s.requireOperatorAuth(s.handleDeleteTask)).Methods(http.MethodDelete)

	return r
}

// Start begins serving HTTP on addr, blocking until Stop is called.
func (s *Server) Start(addr string) error {
	s.http = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	s.logger.Info().Str("addr", addr).Msg("api server listening")
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("api server: %w", err)
	}
	return nil
}

// Stop gracefully shuts down the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}

func (s *Server) requestMetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		timer := metrics.NewTimer()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := r.URL.Path
		if m, err := mux.CurrentRoute(r).GetPathTemplate(); err == nil {
			route = m
		}
		metrics.APIRequestsTotal.WithLabelValues(route, fmt.Sprintf("%d", rec.status)).Inc()
		timer.ObserveDurationVec(metrics.APIRequestDuration, route)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// decodeJSON rejects unknown fields, closing every request body's
// schema (the "reject writes with unknown keys" applied to the whole
// wire contract, not just sync_config).
func decodeJSON(r *http.Request, dst interface{}) *apierr.Error {
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return apierr.Validation("malformed request body: " + err.Error())
	}
	return nil
}
