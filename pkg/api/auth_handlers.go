package api

import (
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/kumc-bmi/heron-portal/pkg/httputil"
	"github.com/kumc-bmi/heron-portal/pkg/identity"
)

// handleLogin starts the identity provider's login flow
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if err := s.provider.Begin(w, r, uuid.NewString()); err != nil {
		s.logger.WithError(err).WithField("provider", s.provider.Name()).
			Error("failed to start login")
		httputil.WriteInternalError(w)
	}
}

// handleCallback completes the login flow and issues a session
func (s *Server) handleCallback(w http.ResponseWriter, r *http.Request) {
	ticket, err := s.provider.Complete(r)
	if err != nil {
		switch {
		case errors.Is(err, identity.ErrReplay):
			httputil.WriteUnauthorized(w, "ticket already redeemed")
		case errors.Is(err, identity.ErrAuthFailed):
			httputil.WriteUnauthorized(w, "authentication failed")
		default:
			s.logger.WithError(err).WithField("provider", s.provider.Name()).
				Error("login callback failed")
			httputil.WriteInternalError(w)
		}
		return
	}

	s.sessions.Issue(w, ticket)
	s.logger.WithField("principal", ticket.Principal).
		WithField("provider", ticket.Provider).
		Info("session issued")
	httputil.WriteSuccess(w, map[string]string{
		"principal": ticket.Principal,
		"provider":  ticket.Provider,
	})
}

// handleLogout revokes the caller's session. Safe without one.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(identity.SessionCookie); err == nil {
		s.sessions.Revoke(w, cookie.Value)
	}
	httputil.WriteNoContent(w)
}
