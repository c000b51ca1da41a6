// Package contextkeys provides centralized context key definitions.
//
// All context keys used across the portal are defined here so that
// producers and consumers of a value agree on the key and documented type.
package contextkeys

import "context"

// Key is the type for context keys to prevent collisions
type Key string

const (
	// TicketKey contains the authenticated *identity.Ticket
	// Set by: identity.Middleware after provider validation
	// Required by: access decision endpoints
	TicketKey Key = "ticket"

	// AgentKey contains the resolved *enterprise.Agent
	// Set by: access middleware once the affiliate resolves
	AgentKey Key = "agent"

	// RequestIDKey contains the request ID string (UUID)
	// Set by: HTTP middleware
	// Used by: logger, audit trail, tracing
	RequestIDKey Key = "request_id"

	// UserIDKey contains the directory user id string
	// Set by: identity middleware after authentication
	// Used by: logger, audit trail
	UserIDKey Key = "user_id"

	// LoggerKey contains *observability.Logger
	// Set by: observability middleware
	LoggerKey Key = "logger"
)

// WithTicket adds the authenticated ticket to the context
func WithTicket(ctx context.Context, ticket interface{}) context.Context {
	return context.WithValue(ctx, TicketKey, ticket)
}

// WithAgent adds the resolved agent to the context
func WithAgent(ctx context.Context, agent interface{}) context.Context {
	return context.WithValue(ctx, AgentKey, agent)
}

// WithRequestID adds the request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// RequestID retrieves the request ID from the context, or "" if absent
func RequestID(ctx context.Context) string {
	if v, ok := ctx.Value(RequestIDKey).(string); ok {
		return v
	}
	return ""
}

// WithUserID adds the directory user id to the context
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, UserIDKey, userID)
}

// UserID retrieves the directory user id from the context, or "" if absent
func UserID(ctx context.Context) string {
	if v, ok := ctx.Value(UserIDKey).(string); ok {
		return v
	}
	return ""
}
