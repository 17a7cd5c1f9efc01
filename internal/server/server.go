// Package server exposes component operations over HTTP
package server

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/schaermu/ecm/internal/component"
	"github.com/schaermu/ecm/internal/ecm"
	"github.com/schaermu/ecm/internal/fetch"
	"github.com/schaermu/ecm/internal/resolve"
	"github.com/schaermu/ecm/internal/update"
	"github.com/schaermu/ecm/internal/version"
)

// Service is the set of component operations served over HTTP.
// *ecm.Manager implements it.
type Service interface {
	List() component.Forest
	Add(ctx context.Context, manifestURL string) (ecm.Result, error)
	Update(ctx context.Context, name string) (ecm.Result, error)
	UpdateAll(ctx context.Context) ([]ecm.Result, error)
	Delete(ctx context.Context, name string) error
	CheckUpdates(ctx context.Context) ([]update.Available, error)
	RegenerateIndex(ctx context.Context) (string, error)
	Orphans(ctx context.Context) ([]string, error)
	Reload(ctx context.Context) error
}

// Options configures a Server
type Options struct {
	// HookSecret enables POST /hooks/refresh when set
	HookSecret []byte
	// Debounce delays refreshes triggered by the hook
	Debounce time.Duration
	// Metrics is served at /metrics when set
	Metrics http.Handler
}

// Server implements the HTTP API. Mutating calls are serialized.
type Server struct {
	svc     Service
	logger  *slog.Logger
	secret  []byte
	metrics http.Handler
	hub     *Hub

	opMu sync.Mutex // serializes mutating operations

	// guarded by opMu
	watchPath   string
	manifestSum [sha256.Size]byte

	refreshMu      sync.Mutex // guards refreshRunning and refreshPending
	refreshRunning bool
	refreshPending bool
	debounce       *debouncer
}

// New creates a server for svc
func New(svc Service, opts Options, logger *slog.Logger) *Server {
	if opts.Debounce <= 0 {
		opts.Debounce = 2 * time.Second
	}
	return &Server{
		svc:      svc,
		logger:   logger,
		secret:   opts.HookSecret,
		metrics:  opts.Metrics,
		hub:      NewHub(logger),
		debounce: &debouncer{delay: opts.Debounce},
	}
}

// Hub returns the event hub; register it as the manager's publisher
func (s *Server) Hub() *Hub {
	return s.hub
}

// Handler returns the HTTP routes
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Get("/components", s.handleList)
	r.Post("/components", s.handleAdd)
	r.Post("/components/{name}/update", s.handleUpdate)
	r.Delete("/components/{name}", s.handleDelete)
	r.Get("/updates", s.handleUpdates)
	r.Post("/index", s.handleIndex)
	r.Get("/orphans", s.handleOrphans)
	r.Get("/events", s.hub.ServeHTTP)
	if len(s.secret) > 0 {
		r.Post("/hooks/refresh", s.handleRefreshHook)
	}
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics)
	}
	return r
}

// Serve serves on l until ctx is cancelled
func (s *Server) Serve(ctx context.Context, l net.Listener) error {
	server := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 20, // 1 MB
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server starting", "addr", l.Addr().String())
		if err := server.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("shutting down server")
		s.hub.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()))
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type errorResponse struct {
	Error string `json:"error"`
}

// statusFor maps operation errors to HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, component.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, component.ErrProtected):
		return http.StatusForbidden
	case errors.Is(err, component.ErrManifestFormat), errors.Is(err, version.ErrFormat):
		return http.StatusUnprocessableEntity
	case errors.Is(err, resolve.ErrCycle):
		return http.StatusConflict
	case errors.Is(err, fetch.ErrNetwork):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", "error", err)
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func (s *Server) handleList(w http.ResponseWriter, _ *http.Request) {
	forest := s.svc.List()
	if forest == nil {
		forest = component.Forest{}
	}
	writeJSON(w, http.StatusOK, forest)
}

type addRequest struct {
	Manifest string `json:"manifest"`
}

func (s *Server) handleAdd(w http.ResponseWriter, r *http.Request) {
	var req addRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil || req.Manifest == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "body must be {\"manifest\": \"<url>\"}"})
		return
	}

	s.opMu.Lock()
	defer s.opMu.Unlock()
	defer s.noteManifest()

	res, err := s.svc.Add(r.Context(), req.Manifest)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	s.opMu.Lock()
	defer s.opMu.Unlock()
	defer s.noteManifest()

	res, err := s.svc.Update(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	s.opMu.Lock()
	defer s.opMu.Unlock()
	defer s.noteManifest()

	if err := s.svc.Delete(r.Context(), chi.URLParam(r, "name")); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleUpdates(w http.ResponseWriter, r *http.Request) {
	available, err := s.svc.CheckUpdates(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	if available == nil {
		available = []update.Available{}
	}
	writeJSON(w, http.StatusOK, available)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	s.opMu.Lock()
	defer s.opMu.Unlock()
	defer s.noteManifest()

	text, err := s.svc.RegenerateIndex(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/javascript; charset=utf-8")
	_, _ = w.Write([]byte(text))
}

func (s *Server) handleOrphans(w http.ResponseWriter, r *http.Request) {
	orphans, err := s.svc.Orphans(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	if orphans == nil {
		orphans = []string{}
	}
	writeJSON(w, http.StatusOK, orphans)
}
