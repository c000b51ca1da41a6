package api

import (
	"errors"
	"net/http"

	"github.com/kumc-bmi/heron-portal/pkg/access"
	"github.com/kumc-bmi/heron-portal/pkg/audit"
	"github.com/kumc-bmi/heron-portal/pkg/enterprise"
	"github.com/kumc-bmi/heron-portal/pkg/httputil"
	"github.com/kumc-bmi/heron-portal/pkg/identity"
	"github.com/kumc-bmi/heron-portal/pkg/records"
	"github.com/kumc-bmi/heron-portal/pkg/sponsorship"
)

// ticket pulls the authenticated ticket out of the request, writing the
// 401 itself when the session middleware was bypassed somehow.
func (s *Server) ticket(w http.ResponseWriter, r *http.Request) (identity.Ticket, bool) {
	t := identity.TicketFromContext(r.Context())
	if t == nil {
		httputil.WriteUnauthorized(w, "authentication required")
		return identity.Ticket{}, false
	}
	return *t, true
}

// record appends an audit event when the trail is configured
func (s *Server) record(r *http.Request, eventType audit.EventType, userID, detail string) {
	if s.trail == nil {
		return
	}
	s.trail.Record(r.Context(), eventType, userID, httputil.ClientIP(r), detail)
}

// writeResolveError maps capability resolution failures. A principal the
// directory does not know is an integrity fault between the identity
// provider and the directory, reported as a server-side problem. Routine
// denials carry their reason as the envelope kind.
func (s *Server) writeResolveError(w http.ResponseWriter, r *http.Request, principal string, err error) {
	if np, ok := access.Denied(err); ok {
		s.record(r, audit.EventAccessDenied, principal, np.Error())
		httputil.WriteForbidden(w, string(np.Reason), np.Error())
		return
	}
	switch {
	case errors.Is(err, access.ErrEmptyTicket):
		httputil.WriteUnauthorized(w, "authentication required")
	case errors.Is(err, enterprise.ErrNotFound):
		s.record(r, audit.EventIntegrityFault, principal, err.Error())
		httputil.WriteIntegrityError(w, "authenticated user is not in the enterprise directory; contact the administrator")
	case errors.Is(err, enterprise.ErrNotOwner):
		s.record(r, audit.EventNotOwner, principal, err.Error())
		httputil.WriteForbidden(w, "not_owner", "agent not recognized by this enterprise")
	default:
		s.logger.WithError(err).Error("capability resolution failed")
		httputil.WriteInternalError(w)
	}
}

// writeWorkflowError maps sponsorship workflow failures
func (s *Server) writeWorkflowError(w http.ResponseWriter, r *http.Request, principal string, err error) {
	if ve, ok := sponsorship.Invalid(err); ok {
		httputil.WriteValidationFailed(w, ve.Messages)
		return
	}
	switch {
	case errors.Is(err, sponsorship.ErrDuplicate):
		httputil.WriteErrorMessage(w, http.StatusConflict, err.Error())
	case errors.Is(err, sponsorship.ErrWrongOrg):
		s.record(r, audit.EventNotOwner, principal, err.Error())
		httputil.WriteForbidden(w, "wrong_org", "decisions must be for the reviewer's own organization")
	case errors.Is(err, enterprise.ErrNotOwner):
		s.record(r, audit.EventNotOwner, principal, err.Error())
		httputil.WriteForbidden(w, "not_owner", "agent not recognized by this enterprise")
	case errors.Is(err, records.ErrNotFound):
		httputil.WriteNotFound(w, "no such sponsorship request")
	default:
		s.logger.WithError(err).Error("sponsorship operation failed")
		httputil.WriteInternalError(w)
	}
}
