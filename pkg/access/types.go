// Package access is the decision engine: it converts authenticated
// tickets into capability values. Capabilities are plain structs that
// only this package constructs; holding one is the proof of authority,
// and nothing downstream re-checks or downcasts.
package access

import (
	"errors"
	"fmt"
	"time"

	"github.com/kumc-bmi/heron-portal/pkg/enterprise"
	"github.com/kumc-bmi/heron-portal/pkg/records"
)

// RepositoryUser may run queries against the repository
type RepositoryUser struct {
	Agent                  enterprise.Agent `json:"agent"`
	TrainingExpires        time.Time        `json:"training_expires"`
	DisclaimerAcknowledged bool             `json:"disclaimer_acknowledged"`
}

// Sponsor may file sponsorship requests for other users
type Sponsor struct {
	Agent enterprise.Agent `json:"agent"`
}

// Reviewer may decide sponsorship requests on behalf of exactly one
// organization.
type Reviewer struct {
	Agent enterprise.Agent `json:"agent"`
	Org   records.Org      `json:"org"`
}

// Reason classifies why a permission was denied
type Reason string

// Denial reasons. Each maps to a distinct remediation the user can take.
const (
	ReasonNotSponsored Reason = "not_sponsored"
	ReasonNotFaculty   Reason = "not_faculty"
	ReasonNoTraining   Reason = "no_training"
	ReasonNoAgreement  Reason = "no_agreement"
	ReasonNotReviewer  Reason = "not_reviewer"
)

// NoPermissionError is a routine denial: the user exists but lacks a
// prerequisite for the requested capability.
type NoPermissionError struct {
	Reason Reason
	Detail string
}

func (e *NoPermissionError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("no permission: %s", e.Reason)
	}
	return fmt.Sprintf("no permission: %s: %s", e.Reason, e.Detail)
}

// Denied extracts a NoPermissionError, if err is one
func Denied(err error) (*NoPermissionError, bool) {
	var np *NoPermissionError
	if errors.As(err, &np) {
		return np, true
	}
	return nil, false
}

// ErrEmptyTicket reports a request with no authenticated principal
var ErrEmptyTicket = errors.New("empty ticket")
