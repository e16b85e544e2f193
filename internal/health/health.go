// Package health exposes HTTP health, readiness, and metrics endpoints
// for the ledger service.
package health

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/tabpress/tabledger/internal/content"
	"github.com/tabpress/tabledger/internal/engine"
	"github.com/tabpress/tabledger/internal/pgdb"
)

// TransitionFunc applies one content transition atomically.
type TransitionFunc func(ctx context.Context, old, new *content.Snapshot) error

// Server provides the health endpoints and the admin transition
// endpoint.
type Server struct {
	manager    *pgdb.Manager
	port       int
	started    time.Time
	log        zerolog.Logger
	srv        *http.Server
	transition TransitionFunc
}

// Response is the /health payload.
type Response struct {
	Status        string         `json:"status"`
	UptimeSeconds int64          `json:"uptime_seconds"`
	Queries       int64          `json:"queries"`
	MaxBackends   int            `json:"max_backends,omitempty"`
	OpenBackends  int            `json:"open_backends,omitempty"`
	Pool          *poolTelemetry `json:"pool,omitempty"`
}

type poolTelemetry struct {
	TotalConns    int32 `json:"total_conns"`
	IdleConns     int32 `json:"idle_conns"`
	AcquiredConns int32 `json:"acquired_conns"`
	MaxConns      int32 `json:"max_conns"`
}

// NewServer creates a health server backed by the connection manager.
func NewServer(manager *pgdb.Manager, port int, log zerolog.Logger) *Server {
	return &Server{
		manager: manager,
		port:    port,
		started: time.Now(),
		log:     log,
	}
}

// OnTransition registers the handler backing the admin transition
// endpoint. Must be called before Start.
func (h *Server) OnTransition(fn TransitionFunc) {
	h.transition = fn
}

// Start starts the HTTP server in the background.
func (h *Server) Start() {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", h.handleHealth)
	mux.HandleFunc("/ready", h.handleReady)
	mux.Handle("/metrics", promhttp.Handler())
	if h.transition != nil {
		mux.HandleFunc("/admin/transition", h.handleTransition)
	}

	h.srv = &http.Server{
		Addr:    fmt.Sprintf(":%d", h.port),
		Handler: mux,
	}

	h.log.Info().Int("port", h.port).Msg("Health server listening")
	go func() {
		if err := h.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			h.log.Error().Err(err).Msg("Health server error")
		}
	}()
}

// Stop shuts the server down gracefully.
func (h *Server) Stop(ctx context.Context) {
	if h.srv == nil {
		return
	}
	if err := h.srv.Shutdown(ctx); err != nil {
		h.log.Error().Err(err).Msg("Failed to shutdown health server")
	}
}

func (h *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	snapshot := h.manager.Snapshot()
	response := Response{
		Status:        "healthy",
		UptimeSeconds: int64(time.Since(h.started).Seconds()),
		Queries:       snapshot.Queries,
		MaxBackends:   snapshot.MaxConnections,
		OpenBackends:  snapshot.OpenedConnections,
	}
	if t := h.manager.Telemetry(); t != nil {
		response.Pool = &poolTelemetry{
			TotalConns:    t.TotalConns,
			IdleConns:     t.IdleConns,
			AcquiredConns: t.AcquiredConns,
			MaxConns:      t.MaxConns,
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

func (h *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if err := h.manager.Ping(r.Context()); err != nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(map[string]string{
			"status": "unready",
			"error":  err.Error(),
		})
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ready"})
}

// transitionRequest is the admin payload: old is null on creation.
type transitionRequest struct {
	Old *content.Snapshot `json:"old"`
	New *content.Snapshot `json:"new"`
}

func (h *Server) handleTransition(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed. Use POST to apply a transition.", http.StatusMethodNotAllowed)
		return
	}

	var req transitionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("Invalid request body: %v", err), http.StatusBadRequest)
		return
	}
	if req.New == nil {
		http.Error(w, "Missing new snapshot", http.StatusBadRequest)
		return
	}

	if err := h.transition(r.Context(), req.Old, req.New); err != nil {
		var forbidden *engine.ForbiddenTransitionError
		if errors.As(err, &forbidden) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusForbidden)
			json.NewEncoder(w).Encode(map[string]string{
				"status": "forbidden",
				"error":  forbidden.Error(),
			})
			return
		}
		h.log.Error().Err(err).Str("content_id", req.New.ID).Msg("Transition failed")
		http.Error(w, fmt.Sprintf("Transition failed: %v", err), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "applied"})
}
