package api

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/kumc-bmi/heron-portal/pkg/audit"
	"github.com/kumc-bmi/heron-portal/pkg/httputil"
	"github.com/kumc-bmi/heron-portal/pkg/records"
	"github.com/kumc-bmi/heron-portal/pkg/sponsorship"
)

// handleFileSponsorship files a sponsorship request batch. Only holders
// of the sponsor capability get this far; everything else about the
// form is judged by the workflow service.
func (s *Server) handleFileSponsorship(w http.ResponseWriter, r *http.Request) {
	ticket, ok := s.ticket(w, r)
	if !ok {
		return
	}

	sponsor, err := s.engine.ResolveSponsor(r.Context(), ticket)
	if err != nil {
		s.writeResolveError(w, r, ticket.Principal, err)
		return
	}

	var in sponsorship.FileInput
	if err := httputil.DecodeJSON(w, r, &in); err != nil {
		httputil.WriteErrorMessage(w, http.StatusBadRequest, err.Error())
		return
	}

	rows, err := s.sponsorship.FileRequest(r.Context(), *sponsor, in)
	if err != nil {
		s.writeWorkflowError(w, r, sponsor.Agent.UserID, err)
		return
	}
	s.record(r, audit.EventSponsorshipFile, sponsor.Agent.UserID,
		fmt.Sprintf("filed %q for %d user(s)", in.Title, len(rows)))
	httputil.WriteCreated(w, rows)
}

// handlePending lists the requests awaiting the caller's organization
func (s *Server) handlePending(w http.ResponseWriter, r *http.Request) {
	ticket, ok := s.ticket(w, r)
	if !ok {
		return
	}

	reviewer, err := s.engine.ResolveReviewer(r.Context(), ticket)
	if err != nil {
		s.writeResolveError(w, r, ticket.Principal, err)
		return
	}

	pending, err := s.sponsorship.Pending(r.Context(), *reviewer)
	if err != nil {
		s.writeWorkflowError(w, r, reviewer.Agent.UserID, err)
		return
	}
	httputil.WriteSuccess(w, map[string]interface{}{
		"org":     reviewer.Org,
		"pending": pending,
	})
}

type decisionsRequest struct {
	Org       records.Org            `json:"org"`
	Decisions []sponsorship.Decision `json:"decisions"`
}

// handleDecisions applies a reviewer's decision batch
func (s *Server) handleDecisions(w http.ResponseWriter, r *http.Request) {
	ticket, ok := s.ticket(w, r)
	if !ok {
		return
	}

	reviewer, err := s.engine.ResolveReviewer(r.Context(), ticket)
	if err != nil {
		s.writeResolveError(w, r, ticket.Principal, err)
		return
	}

	var req decisionsRequest
	if err := httputil.DecodeJSON(w, r, &req); err != nil {
		httputil.WriteErrorMessage(w, http.StatusBadRequest, err.Error())
		return
	}
	var msgs []string
	if !req.Org.Valid() {
		msgs = append(msgs, fmt.Sprintf("unknown organization %q", req.Org))
	}
	for _, d := range req.Decisions {
		if d.SponsorshipID == "" {
			msgs = append(msgs, "decision is missing a sponsorship id")
		}
		if !d.Status.Valid() {
			msgs = append(msgs, fmt.Sprintf("unknown decision %q on %s", d.Status, d.SponsorshipID))
		}
	}
	if len(msgs) > 0 {
		httputil.WriteValidationFailed(w, msgs)
		return
	}

	applied, err := s.sponsorship.Approve(r.Context(), *reviewer, req.Org, req.Decisions)
	if err != nil {
		s.writeWorkflowError(w, r, reviewer.Agent.UserID, err)
		return
	}
	if applied {
		s.record(r, audit.EventApprovalApplied, reviewer.Agent.UserID,
			fmt.Sprintf("%d decision(s) for %s", len(req.Decisions), req.Org))
	}
	httputil.WriteSuccess(w, map[string]bool{"applied": applied})
}

type terminateRequest struct {
	UserID string `json:"user_id"`
	Reason string `json:"reason"`
}

// handleTerminate ends a user's sponsored access. Reviewer capability
// is required; the history row names the reviewer as the actor.
func (s *Server) handleTerminate(w http.ResponseWriter, r *http.Request) {
	ticket, ok := s.ticket(w, r)
	if !ok {
		return
	}

	reviewer, err := s.engine.ResolveReviewer(r.Context(), ticket)
	if err != nil {
		s.writeResolveError(w, r, ticket.Principal, err)
		return
	}

	var req terminateRequest
	if err := httputil.DecodeJSON(w, r, &req); err != nil {
		httputil.WriteErrorMessage(w, http.StatusBadRequest, err.Error())
		return
	}
	var msgs []string
	if strings.TrimSpace(req.UserID) == "" {
		msgs = append(msgs, "user id is required")
	}
	if strings.TrimSpace(req.Reason) == "" {
		msgs = append(msgs, "a termination reason is required")
	}
	if len(msgs) > 0 {
		httputil.WriteValidationFailed(w, msgs)
		return
	}

	if err := s.sponsorship.Terminate(r.Context(), req.UserID, req.Reason, reviewer.Agent.UserID); err != nil {
		s.writeWorkflowError(w, r, reviewer.Agent.UserID, err)
		return
	}
	s.record(r, audit.EventTermination, req.UserID,
		fmt.Sprintf("terminated by %s: %s", reviewer.Agent.UserID, req.Reason))
	httputil.WriteNoContent(w)
}

// handleHistory lists a user's status-change history, newest first
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	ticket, ok := s.ticket(w, r)
	if !ok {
		return
	}

	if _, err := s.engine.ResolveReviewer(r.Context(), ticket); err != nil {
		s.writeResolveError(w, r, ticket.Principal, err)
		return
	}

	userID := mux.Vars(r)["id"]
	history, err := s.store.History(r.Context(), userID)
	if err != nil {
		s.logger.WithField("user", userID).WithError(err).Error("failed to load history")
		httputil.WriteInternalError(w)
		return
	}
	httputil.WriteSuccess(w, history)
}
