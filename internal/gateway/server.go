// Package gateway serves a read-only HTTP/WebSocket view of threads and
// live events. The orchestrator stays the only writer.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dohr-michael/loom/internal/events"
	"github.com/dohr-michael/loom/internal/flows"
	"github.com/dohr-michael/loom/internal/storage"
)

// Server is the loom inspection server.
type Server struct {
	httpServer *http.Server
	bus        *events.Bus
	store      flows.HistoryStore
	costs      *storage.CostTracker
}

// NewServer creates a gateway bound to host:port.
func NewServer(bus *events.Bus, store flows.HistoryStore, costs *storage.CostTracker, host string, port int) *Server {
	s := &Server{
		bus:   bus,
		store: store,
		costs: costs,
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)

	r.Get("/api/health", s.handleHealth)
	r.Get("/api/events", s.handleRecentEvents)
	r.Get("/api/threads", s.handleThreads)
	r.Get("/api/threads/{id}/events", s.handleThreadEvents)
	r.Get("/api/threads/{id}/usage", s.handleThreadUsage)
	r.Get("/api/ws", s.handleWS)

	s.httpServer = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", host, port),
		Handler: r,
	}
	return s
}

// Start begins listening. It blocks until the server is stopped.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return err
	}
	slog.Info("loom gateway listening", "addr", ln.Addr().String())
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, map[string]string{"status": "ok"})
}

func (s *Server) handleRecentEvents(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		fmt.Sscanf(v, "%d", &limit)
	}
	writeJSON(w, s.bus.History(limit))
}

func (s *Server) handleThreads(w http.ResponseWriter, r *http.Request) {
	metas, err := s.store.Threads(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, metas)
}

func (s *Server) handleThreadEvents(w http.ResponseWriter, r *http.Request) {
	threadID := chi.URLParam(r, "id")
	evts, err := s.store.Load(r.Context(), threadID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if evts == nil {
		http.Error(w, "thread not found", http.StatusNotFound)
		return
	}
	writeJSON(w, evts)
}

func (s *Server) handleThreadUsage(w http.ResponseWriter, r *http.Request) {
	if s.costs == nil {
		http.Error(w, "cost tracking not available", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, s.costs.Usage(chi.URLParam(r, "id")))
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("encode response", "error", err)
	}
}
