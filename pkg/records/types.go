// Package records is the access record store: system access agreements,
// sponsorship rows with per-organization approval state, append-only
// status history, reviewer and executive rosters, and disclaimers.
package records

import (
	"context"
	"errors"
	"time"
)

// Org identifies one of the approving organizations
type Org string

// The three organizations whose reviewers must each approve a
// sponsorship before it grants access.
const (
	OrgKUH  Org = "kuh"
	OrgUKP  Org = "ukp"
	OrgKUMC Org = "kumc"
)

// Orgs lists every approving organization
var Orgs = []Org{OrgKUH, OrgUKP, OrgKUMC}

// Valid reports whether o names a known organization
func (o Org) Valid() bool {
	return o == OrgKUH || o == OrgUKP || o == OrgKUMC
}

// Status is a per-organization approval decision. Absence of a decision
// is modeled as a nil *Status, not a third value.
type Status string

const (
	// StatusApproved grants the org's consent
	StatusApproved Status = "A"
	// StatusDeferred withholds consent; the request stays reviewable
	StatusDeferred Status = "D"
)

// Valid reports whether s is a known decision
func (s Status) Valid() bool {
	return s == StatusApproved || s == StatusDeferred
}

// AccessType is the kind of repository access being sponsored
type AccessType string

const (
	// AccessViewOnly permits querying aggregate counts
	AccessViewOnly AccessType = "VIEW_ONLY"
	// AccessDataAccess permits patient-level data extraction and
	// requires a signed data use statement on the request
	AccessDataAccess AccessType = "DATA_ACCESS"
)

// Valid reports whether t is a known access type
func (t AccessType) Valid() bool {
	return t == AccessViewOnly || t == AccessDataAccess
}

// OrgApproval is one organization's decision on a sponsorship
type OrgApproval struct {
	Status     *Status    `json:"status,omitempty"`
	ApprovedBy *string    `json:"approved_by,omitempty"`
	ApprovedAt *time.Time `json:"approved_at,omitempty"`
}

// Sponsorship is one sponsored subject on one project. A filing with N
// subjects produces N rows sharing title/description/sponsor.
type Sponsorship struct {
	ID              string     `json:"id"`
	UserID          string     `json:"user_id"`
	SponsorID       string     `json:"sponsor_id"`
	AccessType      AccessType `json:"access_type"`
	Title           string     `json:"title"`
	Description     string     `json:"description"`
	Employee        bool       `json:"employee"`
	UserDescription *string    `json:"user_description,omitempty"`
	Expires         *time.Time `json:"expires,omitempty"`
	SignatureName   *string    `json:"signature_name,omitempty"`
	SignatureDate   *time.Time `json:"signature_date,omitempty"`

	Approvals map[Org]OrgApproval `json:"approvals"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// FullyApproved reports whether every organization has approved
func (s Sponsorship) FullyApproved() bool {
	for _, org := range Orgs {
		a, ok := s.Approvals[org]
		if !ok || a.Status == nil || *a.Status != StatusApproved {
			return false
		}
	}
	return true
}

// Expired reports whether the sponsorship has lapsed as of now
func (s Sponsorship) Expired(now time.Time) bool {
	return s.Expires != nil && !s.Expires.After(now)
}

// HistoryEntry is one append-only status-change record. Rows are never
// updated or deleted.
type HistoryEntry struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Change    string    `json:"change"`
	Reason    string    `json:"reason"`
	ChangedBy string    `json:"changed_by"`
	ChangedAt time.Time `json:"changed_at"`
}

// Status-change history verbs
const (
	ChangeTerminate = "Terminate"
	ChangeExpire    = "Expire"
)

// SystemAccessAgreement is a signed system access agreement. One per
// user; presence is checked, the document is never re-signed.
type SystemAccessAgreement struct {
	UserID    string    `json:"user_id"`
	FullName  string    `json:"full_name"`
	Signature string    `json:"signature"`
	SignedAt  time.Time `json:"signed_at"`
}

// Disclaimer is a version of the usage disclaimer. Exactly one row is
// recent at a time.
type Disclaimer struct {
	ID     int64  `json:"id"`
	URL    string `json:"url"`
	Text   string `json:"text"`
	Recent bool   `json:"recent"`
}

// Acknowledgement records that a user acknowledged a disclaimer version
type Acknowledgement struct {
	UserID       string    `json:"user_id"`
	DisclaimerID int64     `json:"disclaimer_id"`
	AckedAt      time.Time `json:"acked_at"`
}

// Reviewer is a DROC roster entry binding a user to one organization
type Reviewer struct {
	UserID string `json:"user_id"`
	Org    Org    `json:"org"`
	Active bool   `json:"active"`
}

// ErrNotFound reports a missing record
var ErrNotFound = errors.New("record not found")

// Store is the access record store contract. One SQL implementation
// serves production (postgres) and tests (sqlite).
type Store interface {
	// Agreements
	SaveAgreement(ctx context.Context, saa SystemAccessAgreement) error
	Agreement(ctx context.Context, userID string) (SystemAccessAgreement, error)
	HasAgreement(ctx context.Context, userID string) (bool, error)

	// Disclaimers
	RecentDisclaimer(ctx context.Context) (Disclaimer, error)
	Acknowledge(ctx context.Context, userID string, disclaimerID int64) error
	AcknowledgedRecent(ctx context.Context, userID string) (bool, error)

	// Sponsorships
	InsertSponsorships(ctx context.Context, rows []Sponsorship) error
	DuplicateExists(ctx context.Context, sponsorID, title, description string, accessType AccessType) (bool, error)
	SponsorshipByID(ctx context.Context, id string) (Sponsorship, error)
	PendingForOrg(ctx context.Context, org Org) ([]Sponsorship, error)
	ApplyDecision(ctx context.Context, id string, org Org, status Status, approvedBy string) (Sponsorship, error)
	ActiveSponsorships(ctx context.Context, userID string) ([]Sponsorship, error)

	// Termination and expiration
	TerminateUser(ctx context.Context, userID, reason, changedBy string) error
	AppendHistory(ctx context.Context, entry HistoryEntry) error
	ExpireDue(ctx context.Context, now time.Time) ([]Sponsorship, error)
	PendingOlderThan(ctx context.Context, age time.Duration) ([]Sponsorship, error)
	History(ctx context.Context, userID string) ([]HistoryEntry, error)

	// Rosters
	ReviewerFor(ctx context.Context, userID string) (Reviewer, error)
	ActiveReviewers(ctx context.Context) ([]Reviewer, error)
	IsExecutive(ctx context.Context, userID string) (bool, error)

	// Repository project-user registration
	RegisterProjectUser(ctx context.Context, userID, fullName string) error
}
