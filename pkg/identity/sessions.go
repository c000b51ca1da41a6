package identity

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/kumc-bmi/heron-portal/pkg/contextkeys"
)

// SessionCookie is the browser session cookie name
const SessionCookie = "heron_session"

// Sessions maps opaque session tokens to tickets. Entries expire on a
// sliding window sized at construction; an expired or evicted session
// just sends the user back through login.
type Sessions struct {
	store  *expirable.LRU[string, Ticket]
	secure bool
}

// NewSessions creates a session store holding up to size sessions for ttl
func NewSessions(size int, ttl time.Duration, secure bool) *Sessions {
	if size <= 0 {
		size = 8192
	}
	if ttl <= 0 {
		ttl = 8 * time.Hour
	}
	return &Sessions{
		store:  expirable.NewLRU[string, Ticket](size, nil, ttl),
		secure: secure,
	}
}

// Issue creates a session for the ticket and sets the cookie
func (s *Sessions) Issue(w http.ResponseWriter, ticket Ticket) string {
	token := uuid.NewString()
	s.store.Add(token, ticket)
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return token
}

// Ticket resolves a session token, reporting whether it is live
func (s *Sessions) Ticket(token string) (Ticket, bool) {
	return s.store.Get(token)
}

// Revoke drops a session, used by logout
func (s *Sessions) Revoke(w http.ResponseWriter, token string) {
	s.store.Remove(token)
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   s.secure,
		MaxAge:   -1,
	})
}

// Middleware rejects requests without a live session and installs the
// ticket and principal in the request context.
func (s *Sessions) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(SessionCookie)
		if err != nil {
			http.Error(w, "authentication required", http.StatusUnauthorized)
			return
		}
		ticket, ok := s.Ticket(cookie.Value)
		if !ok {
			http.Error(w, "session expired", http.StatusUnauthorized)
			return
		}
		ctx := contextkeys.WithTicket(r.Context(), &ticket)
		ctx = contextkeys.WithUserID(ctx, ticket.Principal)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// TicketFromContext retrieves the authenticated ticket installed by
// Middleware, or nil when the request is unauthenticated.
func TicketFromContext(ctx context.Context) *Ticket {
	if t, ok := ctx.Value(contextkeys.TicketKey).(*Ticket); ok {
		return t
	}
	return nil
}
