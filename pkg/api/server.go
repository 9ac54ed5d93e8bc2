package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/platinummonkey/keystone-auth/pkg/config"
	"github.com/platinummonkey/keystone-auth/pkg/httputil"
	"github.com/platinummonkey/keystone-auth/pkg/middleware"
	"github.com/platinummonkey/keystone-auth/pkg/observability"
	"github.com/platinummonkey/keystone-auth/pkg/session"
)

// ServerOptions are the collaborators the server routes to. Backend,
// Resolver and Sessions are required.
type ServerOptions struct {
	Backend  AuthBackend
	Resolver middleware.UserResolver
	Sessions *session.Manager
	Settings config.SettingsSource
	Throttle middleware.Throttle
	Health   *observability.HealthChecker
	Registry *prometheus.Registry
	Metrics  *observability.AuthMetrics
	Logger   *observability.Logger
	// Tracing wraps the server in an OpenTelemetry handler
	Tracing bool
}

// Server is the HTTP host for the auth views
type Server struct {
	cfg          *config.Config
	opts         ServerOptions
	router       *mux.Router
	handler      http.Handler
	authHandlers *AuthHandlers
}

// NewServer creates a server with the auth, health and metrics routes
func NewServer(cfg *config.Config, opts ServerOptions) *Server {
	if opts.Logger == nil {
		opts.Logger = observability.NopLogger()
	}
	s := &Server{
		cfg:    cfg,
		opts:   opts,
		router: mux.NewRouter(),
	}
	s.authHandlers = NewAuthHandlers(opts.Backend, cfg, opts.Settings, opts.Logger, opts.Metrics).
		WithTrustedProxies(cfg.Server.TrustedProxies)
	if opts.Throttle != nil {
		s.authHandlers.WithLoginThrottle(opts.Throttle)
	}

	s.setupRoutes()
	s.handler = s.buildHandler()
	return s
}

// setupRoutes configures the auth views. Health and metrics routes are
// mounted outside the session middleware in buildHandler.
func (s *Server) setupRoutes() {
	s.authHandlers.RegisterRoutes(s.router)
}

// buildHandler wraps the router, outermost first: panic recovery, request
// ids and access logging for everything, then metrics, the session and
// the current user for the views.
func (s *Server) buildHandler() http.Handler {
	root := mux.NewRouter()
	if s.opts.Health != nil {
		observability.RegisterHealthRoutes(root, s.opts.Health)
	}
	if s.opts.Registry != nil {
		root.Handle("/metrics", observability.MetricsHandler(s.opts.Registry)).Methods("GET")
	}

	views := httputil.Chain(
		observability.HTTPMetricsMiddleware(s.opts.Metrics, "auth"),
		s.opts.Sessions.Middleware,
		middleware.NewAuthMiddleware(s.opts.Resolver, s.opts.Logger).Handler,
	)(s.router)
	root.PathPrefix("/").Handler(views)

	handler := httputil.Chain(
		httputil.RecoveryMiddleware,
		httputil.RequestIDMiddleware(s.opts.Logger),
		httputil.LoggingMiddleware,
	)(root)
	if s.opts.Tracing {
		handler = otelhttp.NewHandler(handler, "keystone-auth")
	}
	return handler
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// RouteRegistrar is an interface for types that can register routes
type RouteRegistrar interface {
	RegisterRoutes(router *mux.Router)
}

// RegisterRoutes lets the host mount its own views behind the same
// session and user middleware
func (s *Server) RegisterRoutes(registrar RouteRegistrar) {
	registrar.RegisterRoutes(s.router)
}
