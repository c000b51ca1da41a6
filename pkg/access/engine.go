package access

import (
	"context"
	"errors"
	"fmt"

	"github.com/kumc-bmi/heron-portal/pkg/enterprise"
	"github.com/kumc-bmi/heron-portal/pkg/identity"
	"github.com/kumc-bmi/heron-portal/pkg/observability"
	"github.com/kumc-bmi/heron-portal/pkg/records"
	"github.com/kumc-bmi/heron-portal/pkg/training"
)

// Engine resolves tickets into capabilities. All prerequisite facts
// come from the directory, training registry, and record store on each
// call; the engine caches nothing.
type Engine struct {
	enterprise *enterprise.Enterprise
	training   training.Registry
	store      records.Store
	logger     *observability.Logger
	metrics    *observability.Metrics
	otel       *observability.OTelMetrics
}

// NewEngine creates the decision engine. otel may be nil.
func NewEngine(ent *enterprise.Enterprise, reg training.Registry, store records.Store,
	logger *observability.Logger, metrics *observability.Metrics, otel *observability.OTelMetrics) *Engine {
	return &Engine{
		enterprise: ent,
		training:   reg,
		store:      store,
		logger:     logger,
		metrics:    metrics,
		otel:       otel,
	}
}

func (e *Engine) record(ctx context.Context, capability string, err error) {
	result := "granted"
	if err != nil {
		if _, denied := Denied(err); denied {
			result = "denied"
		} else {
			result = "error"
		}
	}
	if e.metrics != nil {
		e.metrics.AccessDecisionsTotal.WithLabelValues(capability, result).Inc()
	}
	if e.otel != nil {
		e.otel.RecordAccessDecision(ctx, capability, result)
	}
}

// ResolveAffiliate maps a ticket to its directory agent. A ticket whose
// principal is missing from the directory is an integrity fault between
// the identity provider and the directory, never a permission denial.
func (e *Engine) ResolveAffiliate(ctx context.Context, ticket identity.Ticket) (agent enterprise.Agent, err error) {
	defer func() { e.record(ctx, "affiliate", err) }()

	if ticket.Principal == "" {
		return enterprise.Agent{}, ErrEmptyTicket
	}

	agent, err = e.enterprise.Affiliate(ctx, ticket.Principal)
	if err != nil {
		if errors.Is(err, enterprise.ErrNotFound) {
			e.logger.WithField("principal", ticket.Principal).
				Error("authenticated principal missing from directory")
		}
		return enterprise.Agent{}, err
	}
	return agent, nil
}

// ResolveRepositoryUser grants query access: the affiliate must have a
// basis for access (qualified faculty, executive, or a live fully
// approved sponsorship), a signed system access agreement, and current
// training. Checks run in that order and the first failure is returned.
func (e *Engine) ResolveRepositoryUser(ctx context.Context, ticket identity.Ticket) (user *RepositoryUser, err error) {
	defer func() { e.record(ctx, "repository_user", err) }()

	agent, err := e.ResolveAffiliate(ctx, ticket)
	if err != nil {
		return nil, err
	}

	basis, err := e.accessBasis(ctx, agent)
	if err != nil {
		return nil, err
	}
	if !basis {
		return nil, &NoPermissionError{Reason: ReasonNotSponsored,
			Detail: fmt.Sprintf("%s has no faculty appointment or approved sponsorship", agent.UserID)}
	}

	signed, err := e.store.HasAgreement(ctx, agent.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to check agreement: %w", err)
	}
	if !signed {
		return nil, &NoPermissionError{Reason: ReasonNoAgreement,
			Detail: "system access agreement not signed"}
	}

	rec, err := e.training.Current(ctx, agent.UserID)
	if err != nil {
		if errors.Is(err, training.ErrNoTraining) || errors.Is(err, training.ErrExpired) {
			return nil, &NoPermissionError{Reason: ReasonNoTraining, Detail: err.Error()}
		}
		return nil, fmt.Errorf("failed to check training: %w", err)
	}

	acked, err := e.store.AcknowledgedRecent(ctx, agent.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to check disclaimer: %w", err)
	}

	return &RepositoryUser{
		Agent:                  agent,
		TrainingExpires:        rec.Expires,
		DisclaimerAcknowledged: acked,
	}, nil
}

// accessBasis reports whether the agent has any standing to query:
// qualified faculty, executive roster, or an active sponsorship.
func (e *Engine) accessBasis(ctx context.Context, agent enterprise.Agent) (bool, error) {
	if e.enterprise.IsQualifiedFaculty(agent) {
		return true, nil
	}
	exec, err := e.store.IsExecutive(ctx, agent.UserID)
	if err != nil {
		return false, fmt.Errorf("failed to check executive roster: %w", err)
	}
	if exec {
		return true, nil
	}
	active, err := e.store.ActiveSponsorships(ctx, agent.UserID)
	if err != nil {
		return false, fmt.Errorf("failed to check sponsorships: %w", err)
	}
	return len(active) > 0, nil
}

// ResolveSponsor grants the right to file sponsorship requests:
// qualified faculty or executive roster, plus a signed agreement.
func (e *Engine) ResolveSponsor(ctx context.Context, ticket identity.Ticket) (sponsor *Sponsor, err error) {
	defer func() { e.record(ctx, "sponsor", err) }()

	agent, err := e.ResolveAffiliate(ctx, ticket)
	if err != nil {
		return nil, err
	}

	if !e.enterprise.IsQualifiedFaculty(agent) {
		exec, err := e.store.IsExecutive(ctx, agent.UserID)
		if err != nil {
			return nil, fmt.Errorf("failed to check executive roster: %w", err)
		}
		if !exec {
			return nil, &NoPermissionError{Reason: ReasonNotFaculty,
				Detail: fmt.Sprintf("%s is not qualified faculty", agent.UserID)}
		}
	}

	signed, err := e.store.HasAgreement(ctx, agent.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to check agreement: %w", err)
	}
	if !signed {
		return nil, &NoPermissionError{Reason: ReasonNoAgreement,
			Detail: "system access agreement not signed"}
	}

	return &Sponsor{Agent: agent}, nil
}

// ResolveReviewer grants the right to decide requests for the single
// organization the reviewer is rostered under.
func (e *Engine) ResolveReviewer(ctx context.Context, ticket identity.Ticket) (reviewer *Reviewer, err error) {
	defer func() { e.record(ctx, "reviewer", err) }()

	agent, err := e.ResolveAffiliate(ctx, ticket)
	if err != nil {
		return nil, err
	}

	entry, err := e.store.ReviewerFor(ctx, agent.UserID)
	if err != nil {
		if errors.Is(err, records.ErrNotFound) {
			return nil, &NoPermissionError{Reason: ReasonNotReviewer,
				Detail: fmt.Sprintf("%s is not on the review roster", agent.UserID)}
		}
		return nil, fmt.Errorf("failed to check review roster: %w", err)
	}
	if !entry.Active {
		return nil, &NoPermissionError{Reason: ReasonNotReviewer,
			Detail: fmt.Sprintf("%s is no longer an active reviewer", agent.UserID)}
	}

	return &Reviewer{Agent: agent, Org: entry.Org}, nil
}
