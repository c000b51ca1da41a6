// Package sponsorship implements the filing, review, and termination
// workflow for sponsored repository access.
package sponsorship

import (
	"errors"
	"fmt"
	"strings"

	"github.com/kumc-bmi/heron-portal/pkg/records"
)

// FileInput is a sponsor's filing form. Validation collects every
// problem before rejecting, so the sponsor fixes the form once.
type FileInput struct {
	Title       string             `json:"title"`
	Description string             `json:"description"`
	AccessType  records.AccessType `json:"access_type"`
	// EmployeeIDs are directory principals
	EmployeeIDs []string `json:"employee_ids"`
	// NonEmployees is the free-text "id [description]; ..." field
	NonEmployees string `json:"non_employees"`
	// Expiration is MM/DD/YYYY; empty means no expiration
	Expiration string `json:"expiration"`
	// Signature fields, required for data access requests
	SignatureName string `json:"signature_name"`
	SignatureDate string `json:"signature_date"`
}

// NonEmployee is one parsed entry from the non-employee field
type NonEmployee struct {
	ID          string
	Description string
}

// Decision is one reviewer decision on one request
type Decision struct {
	SponsorshipID string         `json:"sponsorship_id"`
	Status        records.Status `json:"status"`
}

// ValidationError carries every collected problem with a filing
type ValidationError struct {
	Messages []string
}

func (e *ValidationError) Error() string {
	return "invalid sponsorship filing: " + strings.Join(e.Messages, "; ")
}

// Invalid extracts a ValidationError, if err is one
func Invalid(err error) (*ValidationError, bool) {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve, true
	}
	return nil, false
}

// ErrDuplicate reports a filing matching an earlier one by the same
// sponsor on title, description, and access type. The whole filing is
// rejected.
var ErrDuplicate = errors.New("duplicate sponsorship filing")

// ErrWrongOrg reports a reviewer submitting decisions for an
// organization other than their own. Treated as a security violation.
var ErrWrongOrg = errors.New("decision org does not match reviewer org")

// wrongOrgError builds the detailed form of ErrWrongOrg
func wrongOrgError(got, own records.Org) error {
	return fmt.Errorf("%w: submitted %s, rostered %s", ErrWrongOrg, got, own)
}
