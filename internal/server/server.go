// ABOUTME: HTTP server for the admin API: routing, middleware, and lifecycle
// ABOUTME: Public reads are open; writes sit behind the JWT middleware

package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/uniintel/admin-gateway/internal/auth"
	"github.com/uniintel/admin-gateway/internal/config"
	"github.com/uniintel/admin-gateway/internal/resource"
)

// Version is the service version reported by the identity endpoint.
const Version = "1.2.0"

// Server wires the resource service and auth layer into an HTTP API.
type Server struct {
	service    *resource.Service
	verifier   *auth.JWTVerifier
	cfg        *config.Config
	logger     *slog.Logger
	httpServer *http.Server
	digest     *http.Client
}

// New creates the admin API server.
func New(service *resource.Service, verifier *auth.JWTVerifier, cfg *config.Config, logger *slog.Logger) *Server {
	s := &Server{
		service:  service,
		verifier: verifier,
		cfg:      cfg,
		logger:   logger.With("component", "server"),
		digest:   &http.Client{Timeout: 30 * time.Second},
	}

	mux := http.NewServeMux()
	s.registerRoutes(mux)

	s.httpServer = &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           s.logRequests(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// registerRoutes registers every API route on the given mux.
func (s *Server) registerRoutes(mux *http.ServeMux) {
	requireAuth := auth.Middleware(s.verifier)
	protect := func(h http.HandlerFunc) http.HandlerFunc {
		return requireAuth(h).ServeHTTP
	}

	mux.HandleFunc("GET /", s.handleIdentity)
	mux.HandleFunc("GET /health", s.handleHealth)

	mux.HandleFunc("POST /api/auth/login", s.handleLogin)
	mux.HandleFunc("POST /api/sync-intelligence", protect(s.handleSyncIntelligence))

	for _, kind := range []resource.Kind{resource.Ads, resource.Newspapers, resource.Articles} {
		base := "/api/" + kind.Collection
		mux.HandleFunc("GET "+base, s.handleList(kind))
		mux.HandleFunc("POST "+base, protect(s.handleCreate(kind)))
		mux.HandleFunc("DELETE "+base+"/{id}", protect(s.handleDelete(kind)))
	}
	mux.HandleFunc("PUT /api/articles/{id}", protect(s.handleUpdateArticle))

	mux.HandleFunc("GET /api/blueprints", s.handleBlueprintList)
	mux.HandleFunc("GET /api/blueprints/active", s.handleBlueprintActive)
	mux.HandleFunc("POST /api/blueprints", protect(s.handleBlueprintSave))
	mux.HandleFunc("POST /api/blueprints/publish/{id}", protect(s.handleBlueprintPublish))
	mux.HandleFunc("GET /api/blueprints/history/{id}", s.handleBlueprintHistory)
}

// Handler returns the full middleware-wrapped handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Run starts the HTTP server and blocks until the context is canceled.
// Returns nil on graceful shutdown, or an error if the server fails.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP server listening", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("context canceled, initiating shutdown")
	case err := <-errCh:
		s.logger.Error("server error", "error", err)
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(shutdownCtx)
}

// statusRecorder captures the response status for request logging.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start),
		)
	})
}

// sendJSON writes a JSON response with the given status.
func (s *Server) sendJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Error("failed to encode response", "error", err)
	}
}

// sendJSONError writes a JSON error response.
func (s *Server) sendJSONError(w http.ResponseWriter, status int, message string) {
	s.sendJSON(w, status, map[string]string{"error": message})
}
