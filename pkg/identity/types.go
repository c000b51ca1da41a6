// Package identity authenticates browser requests and turns them into
// tickets. A ticket proves who the caller is and nothing more; all
// authority decisions happen downstream of it.
package identity

import (
	"errors"
	"net/http"
	"time"
)

// Ticket is an authenticated principal name plus provenance. Tickets
// carry no permissions.
type Ticket struct {
	Principal  string            `json:"principal"`
	Provider   string            `json:"provider"`
	IssuedAt   time.Time         `json:"issued_at"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// ErrAuthFailed reports that the identity provider rejected the
// credentials or assertion.
var ErrAuthFailed = errors.New("authentication failed")

// ErrReplay reports a service ticket presented more than once
var ErrReplay = errors.New("ticket already redeemed")

// Provider is one way of authenticating a browser. Begin sends the
// user to the provider's login; Complete consumes the provider's
// response and yields a Ticket.
type Provider interface {
	Name() string
	Begin(w http.ResponseWriter, r *http.Request, state string) error
	Complete(r *http.Request) (Ticket, error)
}
