// Package dashboard serves the live state of a run over HTTP.
package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httplog"

	"github.com/afishnamedqwerty/GEPA-AIME/internal/workflow"
)

// StateHolder keeps the latest snapshot published by the orchestrator.
type StateHolder struct {
	mu   sync.RWMutex
	snap workflow.Snapshot
	set  bool
}

// Update replaces the held snapshot. It matches workflow.Deps.Observer.
func (h *StateHolder) Update(s workflow.Snapshot) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.snap = s
	h.set = true
}

// Get returns the held snapshot and whether one has been published.
func (h *StateHolder) Get() (workflow.Snapshot, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.snap, h.set
}

// Options configures the server.
type Options struct {
	Addr       string
	RequestLog bool // Log requests with httplog (writes to stdout)
	Logger     *slog.Logger
}

// Server is the read-only status endpoint.
type Server struct {
	opts   Options
	state  *StateHolder
	router chi.Router
	logger *slog.Logger
}

// NewServer builds the router for state.
func NewServer(state *StateHolder, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	s := &Server{
		opts:   opts,
		state:  state,
		logger: opts.Logger.With("component", "dashboard"),
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	if opts.RequestLog {
		r.Use(httplog.RequestLogger(httplog.NewLogger("aime", httplog.Options{JSON: true, Concise: true})))
	}
	r.Get("/healthz", s.handleHealth)
	r.Get("/api/state", s.handleState)
	r.Get("/", s.handleChecklist)
	s.router = r
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.opts.Addr)
	if err != nil {
		return fmt.Errorf("dashboard listen on %s: %w", s.opts.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("dashboard listening", "addr", ln.Addr().String())
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("dashboard shutdown: %w", err)
		}
		return nil
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte("ok\n"))
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.state.Get()
	if !ok {
		http.Error(w, "no run in progress", http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(snap); err != nil {
		s.logger.Warn("encode state", "error", err)
	}
}

func (s *Server) handleChecklist(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.state.Get()
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if !ok {
		w.Write([]byte("waiting for run\n"))
		return
	}
	fmt.Fprintf(w, "Goal: %s\nState: %s (iteration %d)\n\n%s\n", snap.Goal, snap.State, snap.Iteration, snap.Checklist)
}
