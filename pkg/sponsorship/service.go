package sponsorship

import (
	"context"
	"errors"
	"fmt"

	"github.com/kumc-bmi/heron-portal/pkg/access"
	"github.com/kumc-bmi/heron-portal/pkg/enterprise"
	"github.com/kumc-bmi/heron-portal/pkg/notify"
	"github.com/kumc-bmi/heron-portal/pkg/observability"
	"github.com/kumc-bmi/heron-portal/pkg/records"
)

// Service runs the sponsorship workflow over the record store. All
// notifications go through the best-effort dispatcher; a write that
// succeeded is never rolled back because mail failed.
type Service struct {
	store      records.Store
	enterprise *enterprise.Enterprise
	dispatcher *notify.Dispatcher
	logger     *observability.Logger
	metrics    *observability.Metrics
	otel       *observability.OTelMetrics
}

// NewService creates the workflow service. metrics and otel may be nil.
func NewService(store records.Store, ent *enterprise.Enterprise, dispatcher *notify.Dispatcher,
	logger *observability.Logger, metrics *observability.Metrics, otel *observability.OTelMetrics) *Service {
	return &Service{
		store:      store,
		enterprise: ent,
		dispatcher: dispatcher,
		logger:     logger,
		metrics:    metrics,
		otel:       otel,
	}
}

func (s *Service) countFiling(accessType records.AccessType, result string) {
	if s.metrics != nil {
		s.metrics.SponsorshipsFiledTotal.WithLabelValues(string(accessType), result).Inc()
	}
}

// FileRequest validates and persists a sponsor's filing. Validation
// problems are collected and returned together; a duplicate of an
// earlier filing aborts the whole batch. On success every sponsored id
// becomes one row, inserted in a single transaction, and the review
// committee is notified best-effort.
func (s *Service) FileRequest(ctx context.Context, sponsor access.Sponsor, in FileInput) ([]records.Sponsorship, error) {
	// The sponsor capability must still belong to this enterprise
	sponsorAgent, err := s.enterprise.Recognize(ctx, sponsor.Agent)
	if err != nil {
		s.countFiling(in.AccessType, "error")
		return nil, fmt.Errorf("failed to recognize sponsor: %w", err)
	}

	nonEmployees, expires, signatureDate, msgs := in.validate()

	// Every sponsored id, employee or not, must resolve in the directory;
	// unresolvable ids are reported alongside the structural problems
	for _, id := range in.EmployeeIDs {
		if _, err := s.enterprise.Affiliate(ctx, id); err != nil {
			if errors.Is(err, enterprise.ErrNotFound) {
				msgs = append(msgs, fmt.Sprintf("%s is not in the enterprise directory", id))
				continue
			}
			s.countFiling(in.AccessType, "error")
			return nil, fmt.Errorf("failed to resolve %s: %w", id, err)
		}
	}
	for _, ne := range nonEmployees {
		if _, err := s.enterprise.Affiliate(ctx, ne.ID); err != nil {
			if errors.Is(err, enterprise.ErrNotFound) {
				msgs = append(msgs, fmt.Sprintf("%s is not in the enterprise directory", ne.ID))
				continue
			}
			s.countFiling(in.AccessType, "error")
			return nil, fmt.Errorf("failed to resolve %s: %w", ne.ID, err)
		}
	}

	if len(msgs) > 0 {
		s.countFiling(in.AccessType, "invalid")
		return nil, &ValidationError{Messages: msgs}
	}

	dup, err := s.store.DuplicateExists(ctx, sponsorAgent.UserID, in.Title, in.Description, in.AccessType)
	if err != nil {
		s.countFiling(in.AccessType, "error")
		return nil, fmt.Errorf("failed to check for duplicates: %w", err)
	}
	if dup {
		s.countFiling(in.AccessType, "duplicate")
		return nil, fmt.Errorf("%w: %q was already filed", ErrDuplicate, in.Title)
	}

	var signatureName *string
	if in.SignatureName != "" {
		signatureName = &in.SignatureName
	}

	rows := make([]records.Sponsorship, 0, len(in.EmployeeIDs)+len(nonEmployees))
	for _, id := range in.EmployeeIDs {
		rows = append(rows, records.Sponsorship{
			UserID: id, SponsorID: sponsorAgent.UserID, AccessType: in.AccessType,
			Title: in.Title, Description: in.Description, Employee: true,
			Expires: expires, SignatureName: signatureName, SignatureDate: signatureDate,
		})
	}
	for _, ne := range nonEmployees {
		var desc *string
		if ne.Description != "" {
			d := ne.Description
			desc = &d
		}
		rows = append(rows, records.Sponsorship{
			UserID: ne.ID, SponsorID: sponsorAgent.UserID, AccessType: in.AccessType,
			Title: in.Title, Description: in.Description, Employee: false,
			UserDescription: desc,
			Expires:         expires, SignatureName: signatureName, SignatureDate: signatureDate,
		})
	}

	if err := s.store.InsertSponsorships(ctx, rows); err != nil {
		s.countFiling(in.AccessType, "error")
		return nil, fmt.Errorf("failed to file sponsorship: %w", err)
	}
	s.countFiling(in.AccessType, "filed")
	s.logger.WithField("sponsor", sponsorAgent.UserID).
		WithField("title", in.Title).
		WithField("subjects", len(rows)).
		Info("sponsorship filed")

	s.notifyReviewers(ctx, sponsorAgent, in.Title, rows)
	return rows, nil
}

// notifyReviewers mails the active review roster about a filing
func (s *Service) notifyReviewers(ctx context.Context, sponsor enterprise.Agent, title string, rows []records.Sponsorship) {
	reviewers, err := s.store.ActiveReviewers(ctx)
	if err != nil {
		s.logger.WithError(err).Error("failed to load review roster for filing notice")
		return
	}
	emails := s.reviewerEmails(ctx, reviewers)
	if len(emails) == 0 {
		s.logger.Warn("no reviewer addresses resolved; filing notice skipped")
		return
	}
	s.dispatcher.Dispatch(ctx, notify.KindFiling, notify.FilingNotice(sponsor, title, rows, emails))
}

func (s *Service) reviewerEmails(ctx context.Context, reviewers []records.Reviewer) []string {
	var emails []string
	for _, r := range reviewers {
		agent, err := s.enterprise.Affiliate(ctx, r.UserID)
		if err != nil {
			s.logger.WithField("reviewer", r.UserID).WithError(err).
				Warn("reviewer did not resolve in directory")
			continue
		}
		if agent.Email != "" {
			emails = append(emails, agent.Email)
		}
	}
	return emails
}

// Approve applies a reviewer's decision batch for their organization.
// An empty batch applies nothing and reports applied=false. Each
// decision commits independently; the committed post-state decides
// whether anyone is notified.
func (s *Service) Approve(ctx context.Context, reviewer access.Reviewer, org records.Org, decisions []Decision) (bool, error) {
	if org != reviewer.Org {
		return false, wrongOrgError(org, reviewer.Org)
	}
	if len(decisions) == 0 {
		return false, nil
	}

	for _, d := range decisions {
		sp, err := s.store.ApplyDecision(ctx, d.SponsorshipID, org, d.Status, reviewer.Agent.UserID)
		if err != nil {
			return false, fmt.Errorf("failed to apply decision on %s: %w", d.SponsorshipID, err)
		}
		if s.metrics != nil {
			s.metrics.ApprovalDecisionsTotal.WithLabelValues(string(org), string(d.Status)).Inc()
		}
		if s.otel != nil {
			s.otel.RecordApprovalDecision(ctx, string(org), string(d.Status))
		}
		s.logger.WithField("sponsorship_id", sp.ID).
			WithField("org", string(org)).
			WithField("status", string(d.Status)).
			WithField("reviewer", reviewer.Agent.UserID).
			Info("approval decision recorded")

		s.notifyDecision(ctx, sp, d.Status, org)
	}
	return true, nil
}

// notifyDecision mails the subject after a decision lands: approval
// mail once every org has approved, deferral mail on any deferral.
func (s *Service) notifyDecision(ctx context.Context, sp records.Sponsorship, status records.Status, org records.Org) {
	sponsor, err := s.enterprise.Affiliate(ctx, sp.SponsorID)
	if err != nil {
		s.logger.WithField("sponsor", sp.SponsorID).WithError(err).
			Warn("sponsor did not resolve; decision notice skipped")
		return
	}

	user, err := s.enterprise.Affiliate(ctx, sp.UserID)
	if err != nil {
		s.logger.WithField("user", sp.UserID).WithError(err).
			Warn("subject did not resolve; notifying sponsor only")
	}
	if user.Email == "" {
		// Subjects without a mailbox hear about it through the sponsor
		user = enterprise.Agent{UserID: sp.UserID, Surname: sp.UserID, Email: sponsor.Email}
	}

	switch {
	case status == records.StatusApproved && sp.FullyApproved():
		s.dispatcher.Dispatch(ctx, notify.KindApproval, notify.ApprovalNotice(user, sponsor, sp.Title))
		if sp.Employee {
			if err := s.store.RegisterProjectUser(ctx, sp.UserID, user.FullName()); err != nil {
				s.logger.WithField("user", sp.UserID).WithError(err).
					Error("failed to register approved user with repository")
			}
		}
	case status == records.StatusDeferred:
		s.dispatcher.Dispatch(ctx, notify.KindDeferral, notify.DeferralNotice(user, sponsor, sp.Title, org))
	}
}

// Terminate ends a user's sponsored access: every live sponsorship is
// expired and one history row is appended, even when nothing was live.
func (s *Service) Terminate(ctx context.Context, userID, reason, actor string) error {
	if err := s.store.TerminateUser(ctx, userID, reason, actor); err != nil {
		return fmt.Errorf("failed to terminate %s: %w", userID, err)
	}
	if s.metrics != nil {
		s.metrics.TerminationsTotal.Inc()
	}
	s.logger.WithField("user", userID).
		WithField("actor", actor).
		WithField("reason", reason).
		Info("sponsorship terminated")
	return nil
}

// Pending lists the requests awaiting the reviewer's organization
func (s *Service) Pending(ctx context.Context, reviewer access.Reviewer) ([]records.Sponsorship, error) {
	pending, err := s.store.PendingForOrg(ctx, reviewer.Org)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending requests: %w", err)
	}
	if s.metrics != nil {
		s.metrics.PendingReviewQueueLength.WithLabelValues(string(reviewer.Org)).Set(float64(len(pending)))
	}
	return pending, nil
}
