package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/kumc-bmi/heron-portal/pkg/audit"
	"github.com/kumc-bmi/heron-portal/pkg/enterprise"
	"github.com/kumc-bmi/heron-portal/pkg/httputil"
	"github.com/kumc-bmi/heron-portal/pkg/records"
)

// handleChecklist shows the caller's onboarding status
func (s *Server) handleChecklist(w http.ResponseWriter, r *http.Request) {
	ticket, ok := s.ticket(w, r)
	if !ok {
		return
	}

	cl, err := s.engine.Checklist(r.Context(), ticket)
	if err != nil {
		s.writeResolveError(w, r, ticket.Principal, err)
		return
	}
	httputil.WriteSuccess(w, cl)
}

type signAgreementRequest struct {
	FullName  string `json:"full_name"`
	Signature string `json:"signature"`
}

// handleSignAgreement records the caller's system access agreement and
// archives a durable copy. Signing happens once; a second attempt fails.
func (s *Server) handleSignAgreement(w http.ResponseWriter, r *http.Request) {
	ticket, ok := s.ticket(w, r)
	if !ok {
		return
	}

	var req signAgreementRequest
	if err := httputil.DecodeJSON(w, r, &req); err != nil {
		httputil.WriteErrorMessage(w, http.StatusBadRequest, err.Error())
		return
	}
	var msgs []string
	if strings.TrimSpace(req.FullName) == "" {
		msgs = append(msgs, "full name is required")
	}
	if strings.TrimSpace(req.Signature) == "" {
		msgs = append(msgs, "signature is required")
	}
	if len(msgs) > 0 {
		httputil.WriteValidationFailed(w, msgs)
		return
	}

	agent, err := s.engine.ResolveAffiliate(r.Context(), ticket)
	if err != nil {
		s.writeResolveError(w, r, ticket.Principal, err)
		return
	}

	saa := records.SystemAccessAgreement{
		UserID:    agent.UserID,
		FullName:  req.FullName,
		Signature: req.Signature,
		SignedAt:  time.Now(),
	}
	if err := s.store.SaveAgreement(r.Context(), saa); err != nil {
		httputil.WriteErrorMessage(w, http.StatusConflict, err.Error())
		return
	}
	s.record(r, audit.EventAgreementSigned, agent.UserID, "system access agreement signed")

	// The database row is authoritative; a failed archive copy is an
	// operator problem, not the user's.
	if err := s.archive.Store(r.Context(), saa); err != nil {
		s.logger.WithField("user", agent.UserID).WithError(err).
			Error("failed to archive signed agreement")
	}

	httputil.WriteCreated(w, saa)
}

// handleDisclaimer returns the current disclaimer version
func (s *Server) handleDisclaimer(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.ticket(w, r); !ok {
		return
	}

	d, err := s.store.RecentDisclaimer(r.Context())
	if err != nil {
		s.logger.WithError(err).Error("failed to load disclaimer")
		httputil.WriteIntegrityError(w, "no current disclaimer is configured")
		return
	}
	httputil.WriteSuccess(w, d)
}

type acknowledgeRequest struct {
	DisclaimerID int64 `json:"disclaimer_id"`
}

// handleAcknowledge records that the caller read the current disclaimer
func (s *Server) handleAcknowledge(w http.ResponseWriter, r *http.Request) {
	ticket, ok := s.ticket(w, r)
	if !ok {
		return
	}

	var req acknowledgeRequest
	if err := httputil.DecodeJSON(w, r, &req); err != nil {
		httputil.WriteErrorMessage(w, http.StatusBadRequest, err.Error())
		return
	}

	agent, err := s.engine.ResolveAffiliate(r.Context(), ticket)
	if err != nil {
		s.writeResolveError(w, r, ticket.Principal, err)
		return
	}

	current, err := s.store.RecentDisclaimer(r.Context())
	if err != nil {
		s.logger.WithError(err).Error("failed to load disclaimer")
		httputil.WriteIntegrityError(w, "no current disclaimer is configured")
		return
	}
	if req.DisclaimerID != current.ID {
		httputil.WriteValidationFailed(w, []string{"acknowledged disclaimer is not the current version"})
		return
	}

	if err := s.store.Acknowledge(r.Context(), agent.UserID, current.ID); err != nil {
		s.logger.WithError(err).Error("failed to record acknowledgement")
		httputil.WriteInternalError(w)
		return
	}
	httputil.WriteNoContent(w)
}

// handleDirectorySearch browses the enterprise directory by name prefix.
// Sponsors use it to find the people they are sponsoring.
func (s *Server) handleDirectorySearch(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.ticket(w, r); !ok {
		return
	}
	if s.browser == nil {
		httputil.WriteErrorMessage(w, http.StatusServiceUnavailable, "directory search is not enabled")
		return
	}

	filter := enterprise.SearchFilter{
		Surname:   r.URL.Query().Get("surname"),
		GivenName: r.URL.Query().Get("given_name"),
	}
	if m := r.URL.Query().Get("max"); m != "" {
		if n, err := strconv.Atoi(m); err == nil {
			filter.Max = n
		}
	}
	if filter.Surname == "" && filter.GivenName == "" {
		httputil.WriteValidationFailed(w, []string{"a surname or given name prefix is required"})
		return
	}

	agents, err := s.browser.Search(r.Context(), filter)
	if err != nil {
		s.logger.WithError(err).Error("directory search failed")
		httputil.WriteInternalError(w)
		return
	}
	httputil.WriteSuccess(w, agents)
}
