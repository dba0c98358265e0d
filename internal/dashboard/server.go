// Package dashboard is the view adapter: it exposes the transaction snapshot,
// the static compliance datasets and a live snapshot stream over HTTP.
package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"compliancedash/internal/feed/memorystore"
	"compliancedash/internal/feed/poller"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// StatsProvider reports feed refresh counters.
type StatsProvider interface {
	Stats() poller.Stats
}

// Server is the HTTP front of the dashboard.
type Server struct {
	store  *memorystore.SnapshotStore
	stats  StatsProvider
	hub    *Hub
	logger *zap.Logger
	router *chi.Mux

	mu       sync.Mutex
	server   *http.Server
	shutdown bool
}

// NewServer creates a Server. stats may be nil.
func NewServer(store *memorystore.SnapshotStore, stats StatsProvider, logger *zap.Logger) *Server {
	s := &Server{
		store:  store,
		stats:  stats,
		hub:    NewHub(store, logger.Named("stream")),
		logger: logger,
		router: chi.NewRouter(),
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.requestLogger)
	s.router.Use(middleware.Recoverer)
}

func (s *Server) setupRoutes() {
	s.router.Get("/healthz", s.handleHealth)

	s.router.Route("/api", func(r chi.Router) {
		r.Get("/transactions", s.handleTransactions)
		r.Get("/compliance", s.handleCompliance)
		r.Get("/news", s.handleNews)
		r.Get("/feed/stats", s.handleFeedStats)
	})

	// Live snapshot stream
	s.router.Get("/ws", s.hub.ServeHTTP)
}

// Start listens on addr until Shutdown is called. It returns nil after a
// graceful shutdown, including one that happened before Start.
func (s *Server) Start(addr string) error {
	s.mu.Lock()
	if s.shutdown {
		s.mu.Unlock()
		return nil
	}
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	srv := s.server
	s.mu.Unlock()

	s.logger.Info("starting http server", zap.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown disconnects stream clients and gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.hub.Close()

	s.mu.Lock()
	s.shutdown = true
	srv := s.server
	s.mu.Unlock()

	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

// Router returns the underlying chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, r, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.store.Current().Version,
		"clients": s.hub.Clients(),
	})
}

// handleTransactions serves the current snapshot. Before the first
// successful fetch this is version 0 with no records.
func (s *Server) handleTransactions(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, r, http.StatusOK, s.store.Current())
}

func (s *Server) handleCompliance(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, r, http.StatusOK, ComplianceRates())
}

func (s *Server) handleNews(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, r, http.StatusOK, RegulatoryNews())
}

func (s *Server) handleFeedStats(w http.ResponseWriter, r *http.Request) {
	if s.stats == nil {
		s.writeJSON(w, r, http.StatusServiceUnavailable, map[string]string{"error": "feed poller not running"})
		return
	}
	s.writeJSON(w, r, http.StatusOK, s.stats.Stats())
}

func (s *Server) writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("failed to encode response",
			zap.String("path", r.URL.Path),
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.Error(err),
		)
	}
}

// requestLogger logs one line per request with its status and duration.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		s.logger.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}
