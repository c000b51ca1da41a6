package enterprise

import (
	"context"
	"errors"
)

// Agent is an identity resolved from the enterprise directory. Agents are
// immutable once constructed; every resolution is a fresh directory query
// and equality is by user id.
type Agent struct {
	UserID    string `json:"user_id"`
	GivenName string `json:"given_name"`
	Surname   string `json:"surname"`
	Title     string `json:"title,omitempty"`
	Email     string `json:"email"`
	Faculty   bool   `json:"faculty"`
	JobCode   string `json:"job_code,omitempty"`
}

// FullName returns the display name for notifications and signatures
func (a Agent) FullName() string {
	if a.GivenName == "" {
		return a.Surname
	}
	return a.GivenName + " " + a.Surname
}

// Same reports whether two agents refer to the same directory identity
func (a Agent) Same(other Agent) bool {
	return a.UserID == other.UserID
}

// ErrNotFound reports that a principal has no record in the enterprise
// directory. When the principal authenticated, this is an integrity fault
// between the identity provider and the directory, not a routine denial.
var ErrNotFound = errors.New("not in enterprise directory")

// Directory resolves principal names to directory attributes. Lookups
// round-trip on every call; implementations must not cache.
type Directory interface {
	Lookup(ctx context.Context, name string) (Agent, error)
}

// SearchFilter narrows a directory browse (surname/given-name prefix)
type SearchFilter struct {
	Surname   string
	GivenName string
	Max       int
}

// Browser supports directory search for the sponsorship form's people
// picker. Separate from Directory so most callers depend only on Lookup.
type Browser interface {
	Search(ctx context.Context, filter SearchFilter) ([]Agent, error)
}
