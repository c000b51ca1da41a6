package identity

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionsIssueAndResolve(t *testing.T) {
	s := NewSessions(16, time.Minute, false)
	rec := httptest.NewRecorder()

	token := s.Issue(rec, Ticket{Principal: "john.smith", Provider: "cas"})
	require.NotEmpty(t, token)

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, SessionCookie, cookies[0].Name)
	assert.Equal(t, token, cookies[0].Value)
	assert.True(t, cookies[0].HttpOnly)

	ticket, ok := s.Ticket(token)
	require.True(t, ok)
	assert.Equal(t, "john.smith", ticket.Principal)
}

func TestSessionsRevoke(t *testing.T) {
	s := NewSessions(16, time.Minute, false)
	rec := httptest.NewRecorder()
	token := s.Issue(rec, Ticket{Principal: "john.smith"})

	s.Revoke(httptest.NewRecorder(), token)

	_, ok := s.Ticket(token)
	assert.False(t, ok)
}

func TestMiddlewareInstallsTicket(t *testing.T) {
	s := NewSessions(16, time.Minute, false)
	rec := httptest.NewRecorder()
	token := s.Issue(rec, Ticket{Principal: "john.smith", Provider: "cas"})

	var seen *Ticket
	handler := s.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = TicketFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/checklist", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookie, Value: token})
	handler.ServeHTTP(httptest.NewRecorder(), req)

	require.NotNil(t, seen)
	assert.Equal(t, "john.smith", seen.Principal)
}

func TestMiddlewareRejectsAnonymous(t *testing.T) {
	s := NewSessions(16, time.Minute, false)
	handler := s.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not run")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/checklist", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMiddlewareRejectsUnknownSession(t *testing.T) {
	s := NewSessions(16, time.Minute, false)
	handler := s.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not run")
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/checklist", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookie, Value: "stale-token"})
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
