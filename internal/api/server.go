// Package api exposes the thin administrative HTTP surface over the
// alert engine: lifecycle operations, read-only views, and health.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/fleetwatch/fleetwatch/internal/alertmgr"
	"github.com/fleetwatch/fleetwatch/internal/engine"
	"github.com/fleetwatch/fleetwatch/internal/types"
	"github.com/fleetwatch/fleetwatch/internal/version"
)

// AlertEngine is the engine surface the API depends on.
type AlertEngine interface {
	AcknowledgeAlert(ctx context.Context, id, by string) (*types.Alert, error)
	ResolveAlert(ctx context.Context, id, by string) (*types.Alert, error)
	GetActiveAlerts(ctx context.Context) ([]*types.Alert, error)
	GetAlertStats(ctx context.Context) (*alertmgr.Stats, error)
	GetMetrics() engine.Metrics
}

// Pinger probes a collaborator's reachability for the health endpoint.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server provides the admin HTTP endpoints
type Server struct {
	engine    AlertEngine
	store     Pinger
	logger    zerolog.Logger
	logBuffer *LogBuffer
	startTime time.Time
	srv       *http.Server
}

// NewServer creates an admin API server listening on the given port.
func NewServer(eng AlertEngine, store Pinger, logBuffer *LogBuffer, logger zerolog.Logger, port string) *Server {
	s := &Server{
		engine:    eng,
		store:     store,
		logger:    logger.With().Str("component", "api").Logger(),
		logBuffer: logBuffer,
		startTime: time.Now(),
	}

	r := mux.NewRouter()
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/metrics", promhttp.Handler().ServeHTTP).Methods(http.MethodGet)
	r.HandleFunc("/api/alerts", s.handleAlerts).Methods(http.MethodGet)
	r.HandleFunc("/api/alerts/stats", s.handleStats).Methods(http.MethodGet)
	r.HandleFunc("/api/alerts/{id}/acknowledge", s.handleAcknowledge).Methods(http.MethodPost)
	r.HandleFunc("/api/alerts/{id}/resolve", s.handleResolve).Methods(http.MethodPost)
	r.HandleFunc("/api/metrics", s.handleEngineMetrics).Methods(http.MethodGet)
	r.HandleFunc("/api/logs", s.handleLogs).Methods(http.MethodGet)

	s.srv = &http.Server{
		Addr:         ":" + port,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Start serves until the listener fails or Stop is called.
func (s *Server) Start() error {
	s.logger.Info().Str("address", s.srv.Addr).Msg("Starting admin API")
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop shuts the server down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

// Handler returns the configured HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}

// operatorRequest is the body for acknowledge/resolve operations
type operatorRequest struct {
	By string `json:"by"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	components := map[string]string{"store": "healthy"}
	status := http.StatusOK
	if s.store != nil {
		if err := s.store.Ping(r.Context()); err != nil {
			components["store"] = "unhealthy"
			status = http.StatusServiceUnavailable
		}
	}

	writeJSON(w, status, map[string]interface{}{
		"status":     statusWord(status),
		"components": components,
		"version":    version.GetVersion(),
		"uptime":     time.Since(s.startTime).String(),
		"time":       time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleAlerts(w http.ResponseWriter, r *http.Request) {
	alerts, err := s.engine.GetActiveAlerts(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"alerts": alerts,
		"count":  len(alerts),
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.engine.GetAlertStats(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleAcknowledge(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var req operatorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.By == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "body must include a non-empty 'by' field"})
		return
	}

	alert, err := s.engine.AcknowledgeAlert(r.Context(), id, req.By)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, alert)
}

func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var req operatorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.By == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "body must include a non-empty 'by' field"})
		return
	}

	alert, err := s.engine.ResolveAlert(r.Context(), id, req.By)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, alert)
}

func (s *Server) handleEngineMetrics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.GetMetrics())
}

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	var entries []LogEntry
	if s.logBuffer != nil {
		entries = s.logBuffer.RecentEntries(200)
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"entries": entries,
		"count":   len(entries),
	})
}

// writeError maps lifecycle errors onto HTTP statuses: unknown alerts are
// 404, illegal transitions are 409, everything else is a 500.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case alertmgr.IsNotFound(err):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
	case alertmgr.IsInvalidState(err):
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
	default:
		s.logger.Error().Err(err).Str("path", r.URL.Path).Msg("Admin operation failed")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func statusWord(status int) string {
	if status == http.StatusOK {
		return "healthy"
	}
	return "unhealthy"
}
