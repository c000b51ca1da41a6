package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/kumc-bmi/heron-portal/pkg/access"
	"github.com/kumc-bmi/heron-portal/pkg/audit"
	"github.com/kumc-bmi/heron-portal/pkg/enterprise"
	"github.com/kumc-bmi/heron-portal/pkg/identity"
	"github.com/kumc-bmi/heron-portal/pkg/middleware"
	"github.com/kumc-bmi/heron-portal/pkg/observability"
	"github.com/kumc-bmi/heron-portal/pkg/records"
	"github.com/kumc-bmi/heron-portal/pkg/sponsorship"
)

// Server wires the portal services behind HTTP handlers
type Server struct {
	provider    identity.Provider
	sessions    *identity.Sessions
	engine      *access.Engine
	sponsorship *sponsorship.Service
	store       records.Store
	archive     records.Archive
	browser     enterprise.Browser
	trail       *audit.Trail
	logger      *observability.Logger
	metrics     *observability.Metrics
	loginLimit  *middleware.RateLimiter
}

// ServerOption customizes optional server collaborators
type ServerOption func(*Server)

// WithLoginRateLimiter guards the login endpoints with the limiter
func WithLoginRateLimiter(rl *middleware.RateLimiter) ServerOption {
	return func(s *Server) { s.loginLimit = rl }
}

// WithBrowser enables the directory search endpoint
func WithBrowser(b enterprise.Browser) ServerOption {
	return func(s *Server) { s.browser = b }
}

// WithMetrics instruments the API routes
func WithMetrics(m *observability.Metrics) ServerOption {
	return func(s *Server) { s.metrics = m }
}

// NewServer assembles the API server. archive may be a NoopArchive and
// trail may be nil; everything else is required.
func NewServer(provider identity.Provider, sessions *identity.Sessions, engine *access.Engine,
	svc *sponsorship.Service, store records.Store, archive records.Archive,
	trail *audit.Trail, logger *observability.Logger, opts ...ServerOption) *Server {
	s := &Server{
		provider:    provider,
		sessions:    sessions,
		engine:      engine,
		sponsorship: svc,
		store:       store,
		archive:     archive,
		trail:       trail,
		logger:      logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Router builds the route table. Authenticated routes go through the
// session middleware; login routes optionally through the rate limiter.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logging(s.logger))
	r.Use(middleware.Recovery(s.logger))

	login := r.PathPrefix("/auth").Subrouter()
	if s.loginLimit != nil {
		login.Use(s.loginLimit.Middleware)
	}
	login.HandleFunc("/login", s.handleLogin).Methods(http.MethodGet)
	login.HandleFunc("/callback", s.handleCallback).Methods(http.MethodGet)

	r.HandleFunc("/auth/logout", s.handleLogout).Methods(http.MethodPost)

	v1 := r.PathPrefix("/api/v1").Subrouter()
	v1.Use(s.sessions.Middleware)
	v1.HandleFunc("/checklist", s.handleChecklist).Methods(http.MethodGet)
	v1.HandleFunc("/agreement", s.handleSignAgreement).Methods(http.MethodPost)
	v1.HandleFunc("/disclaimer", s.handleDisclaimer).Methods(http.MethodGet)
	v1.HandleFunc("/disclaimer/acknowledge", s.handleAcknowledge).Methods(http.MethodPost)
	v1.HandleFunc("/directory/search", s.handleDirectorySearch).Methods(http.MethodGet)
	v1.HandleFunc("/sponsorships", s.handleFileSponsorship).Methods(http.MethodPost)
	v1.HandleFunc("/review/pending", s.handlePending).Methods(http.MethodGet)
	v1.HandleFunc("/review/decisions", s.handleDecisions).Methods(http.MethodPost)
	v1.HandleFunc("/terminations", s.handleTerminate).Methods(http.MethodPost)
	v1.HandleFunc("/users/{id}/history", s.handleHistory).Methods(http.MethodGet)

	if s.metrics != nil {
		r.Use(func(next http.Handler) http.Handler {
			return s.metrics.InstrumentHandler("api", next)
		})
	}
	return r
}
