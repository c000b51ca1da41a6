package access

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kumc-bmi/heron-portal/pkg/enterprise"
	"github.com/kumc-bmi/heron-portal/pkg/identity"
	"github.com/kumc-bmi/heron-portal/pkg/training"
)

// Checklist is a user's onboarding status page: every prerequisite
// fact, resolved fresh, plus the capabilities those facts add up to.
type Checklist struct {
	Affiliate              enterprise.Agent `json:"affiliate"`
	QualifiedFaculty       bool             `json:"qualified_faculty"`
	Executive              bool             `json:"executive"`
	Sponsored              bool             `json:"sponsored"`
	SignedAgreement        bool             `json:"signed_agreement"`
	TrainingCurrent        bool             `json:"training_current"`
	TrainingExpires        *time.Time       `json:"training_expires,omitempty"`
	DisclaimerAcknowledged bool             `json:"disclaimer_acknowledged"`

	CanQuery   bool `json:"can_query"`
	CanSponsor bool `json:"can_sponsor"`
}

// Checklist gathers the facts behind the resolve operations without
// failing on the first missing one, so the portal can show the user
// everything left to do.
func (e *Engine) Checklist(ctx context.Context, ticket identity.Ticket) (Checklist, error) {
	agent, err := e.ResolveAffiliate(ctx, ticket)
	if err != nil {
		return Checklist{}, err
	}

	cl := Checklist{
		Affiliate:        agent,
		QualifiedFaculty: e.enterprise.IsQualifiedFaculty(agent),
	}

	cl.Executive, err = e.store.IsExecutive(ctx, agent.UserID)
	if err != nil {
		return Checklist{}, fmt.Errorf("failed to check executive roster: %w", err)
	}

	active, err := e.store.ActiveSponsorships(ctx, agent.UserID)
	if err != nil {
		return Checklist{}, fmt.Errorf("failed to check sponsorships: %w", err)
	}
	cl.Sponsored = len(active) > 0

	cl.SignedAgreement, err = e.store.HasAgreement(ctx, agent.UserID)
	if err != nil {
		return Checklist{}, fmt.Errorf("failed to check agreement: %w", err)
	}

	rec, err := e.training.Current(ctx, agent.UserID)
	switch {
	case err == nil:
		cl.TrainingCurrent = true
		expires := rec.Expires
		cl.TrainingExpires = &expires
	case errors.Is(err, training.ErrNoTraining), errors.Is(err, training.ErrExpired):
		// left unchecked on the page
	default:
		return Checklist{}, fmt.Errorf("failed to check training: %w", err)
	}

	cl.DisclaimerAcknowledged, err = e.store.AcknowledgedRecent(ctx, agent.UserID)
	if err != nil {
		return Checklist{}, fmt.Errorf("failed to check disclaimer: %w", err)
	}

	basis := cl.QualifiedFaculty || cl.Executive || cl.Sponsored
	cl.CanQuery = basis && cl.SignedAgreement && cl.TrainingCurrent
	cl.CanSponsor = (cl.QualifiedFaculty || cl.Executive) && cl.SignedAgreement
	return cl, nil
}
