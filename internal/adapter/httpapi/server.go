// Package httpapi exposes the REST surface: alert queries, diagnostics,
// health, metrics, and the WebSocket upgrade path.
package httpapi

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/couchcryptid/storm-alert-relay/internal/hub"
	"github.com/couchcryptid/storm-alert-relay/internal/store"
)

// PushStatus reports the push source's health. Nil means the source is
// disabled.
type PushStatus interface {
	Connected() bool
	Received() uint64
}

// PullStatus reports the pull source's health.
type PullStatus interface {
	LastSuccess() time.Time
}

// Server is the HTTP front of the relay.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
	store      *store.Store
	hub        *hub.Hub
	push       PushStatus
	pull       PullStatus
	clock      clockwork.Clock
	startedAt  time.Time
}

// NewServer wires the router. push and pull may be nil when the matching
// source is disabled.
func NewServer(addr string, st *store.Store, h *hub.Hub, push PushStatus, pull PullStatus, logger *slog.Logger, clock clockwork.Clock) *Server {
	s := &Server{
		logger:    logger.With("component", "http"),
		store:     st,
		hub:       h,
		push:      push,
		pull:      pull,
		clock:     clock,
		startedAt: clock.Now().UTC(),
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Route("/api", func(r chi.Router) {
		r.Get("/alerts", s.handleListAlerts)
		r.Get("/alerts/{productID}", s.handleGetAlert)
		r.Delete("/alerts/{productID}", s.handleDeleteAlert)
		r.Get("/stats", s.handleStats)
		r.Get("/recent", s.handleRecent)
		r.Get("/status", s.handleStatus)
	})
	r.Get("/health", s.handleHealth)
	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/ws", h.ServeWS)

	s.httpServer = &http.Server{
		Addr:        addr,
		Handler:     r,
		ReadTimeout: 10 * time.Second,
		// No WriteTimeout: it would sever long-lived WebSocket connections.
		IdleTimeout: 60 * time.Second,
	}
	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

func (s *Server) handleListAlerts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	phenomenon := strings.ToUpper(q.Get("phenomenon"))
	state := strings.ToUpper(q.Get("state"))
	significance := strings.ToUpper(q.Get("significance"))

	alerts := s.store.Snapshot()
	filtered := alerts[:0]
	for _, a := range alerts {
		if phenomenon != "" && a.Phenomenon != phenomenon {
			continue
		}
		if significance != "" && string(a.Significance) != significance {
			continue
		}
		if state != "" && !a.TouchesState(state) {
			continue
		}
		filtered = append(filtered, a)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"alerts": filtered,
		"count":  len(filtered),
	})
}

func (s *Server) handleGetAlert(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "productID")
	alert, ok := s.store.Get(id)
	if !ok {
		writeError(w, http.StatusNotFound, "alert not found")
		return
	}
	writeJSON(w, http.StatusOK, alert)
}

func (s *Server) handleDeleteAlert(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "productID")
	if !s.store.Delete(id) {
		writeError(w, http.StatusNotFound, "alert not found")
		return
	}
	s.logger.Info("alert deleted via api", "product_id", id)
	writeJSON(w, http.StatusOK, map[string]any{"deleted": true, "product_id": id})
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.store.Stats())
}

func (s *Server) handleRecent(w http.ResponseWriter, _ *http.Request) {
	recent := s.store.Recent()
	if recent == nil {
		recent = []store.ProductRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"products": recent,
		"count":    len(recent),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	now := s.clock.Now().UTC()
	status := map[string]any{
		"alert_count":    s.store.Len(),
		"subscribers":    s.hub.SubscriberCount(),
		"uptime_seconds": int(now.Sub(s.startedAt).Seconds()),
		"server_time":    now,
	}

	pushStatus := map[string]any{"enabled": s.push != nil}
	if s.push != nil {
		pushStatus["connected"] = s.push.Connected()
		pushStatus["products_received"] = s.push.Received()
	}
	status["push"] = pushStatus

	pullStatus := map[string]any{"enabled": s.pull != nil}
	if s.pull != nil {
		last := s.pull.LastSuccess()
		if !last.IsZero() {
			pullStatus["last_success"] = last
		}
	}
	status["pull"] = pullStatus

	writeJSON(w, http.StatusOK, status)
}

// handleHealth reports liveness plus enough source state for a subscriber to
// tell a quiet feed from a dead one.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	pull := map[string]any{"enabled": s.pull != nil}
	if s.pull != nil {
		if last := s.pull.LastSuccess(); !last.IsZero() {
			pull["last_success"] = last
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "healthy",
		"alert_count": s.store.Len(),
		"push": map[string]any{
			"enabled":   s.push != nil,
			"connected": s.push != nil && s.push.Connected(),
		},
		"pull": pull,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // best-effort response
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
