package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/crozzbite/phylactery/internal/graph"
	"github.com/crozzbite/phylactery/internal/otel"
	"github.com/crozzbite/phylactery/internal/tenant"
)

const defaultTimeout = 60 * time.Second

// Server holds all dependencies for the execution graph's HTTP API.
type Server struct {
	router        *chi.Mux
	graphRuntime  *graph.Runtime
	tenantManager *tenant.Manager
	apiKeys       map[string]string
	corsOrigins   []string
	startTime     time.Time
}

// Option configures the Server.
type Option func(*Server)

// WithTenantManager sets the tenant manager for per-tenant rate limiting and budgets.
func WithTenantManager(tm *tenant.Manager) Option {
	return func(s *Server) { s.tenantManager = tm }
}

// WithCORSOrigins sets allowed CORS origins (e.g. ["*"] for MVP).
func WithCORSOrigins(origins []string) Option {
	return func(s *Server) { s.corsOrigins = origins }
}

// WithGraphRuntime mounts the zero-trust execution graph's RPC surface
// at /v1/threads/{thread_id}/*.
func WithGraphRuntime(rt *graph.Runtime) Option {
	return func(s *Server) { s.graphRuntime = rt }
}

// NewServer builds a Server with the required API keys and optional Option(s).
func NewServer(apiKeys map[string]string, opts ...Option) *Server {
	s := &Server{
		router:      chi.NewRouter(),
		apiKeys:     apiKeys,
		corsOrigins: []string{"*"},
		startTime:   time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.apiKeys == nil {
		s.apiKeys = make(map[string]string)
	}
	return s
}

// Routes returns the configured http.Handler (chi router with all middleware and routes).
func (s *Server) Routes() http.Handler {
	r := s.router
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(otel.MiddlewareWithStatus())
	r.Use(CORSMiddleware(s.corsOrigins))

	// Unauthenticated
	r.Get("/health", s.handleHealth)
	r.Get("/v1/health", s.handleHealth)

	// Authenticated API group
	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(s.apiKeys))
		r.Use(RateLimitMiddleware(s.tenantManager))
		r.Use(middleware.Timeout(defaultTimeout))

		r.Post("/v1/threads/{thread_id}/invoke", s.handleGraphInvoke)
		r.Post("/v1/threads/{thread_id}/cancel", s.handleGraphCancel)
		r.Get("/v1/threads/{thread_id}/history", s.handleGraphHistory)
		r.Get("/v1/threads/{thread_id}/audit", s.handleGraphAudit)
	})

	return r
}
