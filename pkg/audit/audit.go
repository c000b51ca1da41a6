// Package audit writes the append-only security audit trail. Recording
// is best-effort: a failed audit write is logged and counted but never
// blocks or fails the operation that triggered it.
package audit

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/kumc-bmi/heron-portal/pkg/contextkeys"
	"github.com/kumc-bmi/heron-portal/pkg/observability"
)

// EventType categorizes audit events
type EventType string

// Audited event categories. Denials and ownership violations feed the
// security review; workflow events feed the compliance record.
const (
	EventAccessDenied    EventType = "access.denied"
	EventIntegrityFault  EventType = "access.integrity_fault"
	EventNotOwner        EventType = "access.not_owner"
	EventSponsorshipFile EventType = "sponsorship.filed"
	EventApprovalApplied EventType = "sponsorship.approval"
	EventTermination     EventType = "sponsorship.terminated"
	EventAgreementSigned EventType = "agreement.signed"
)

// Event is one audit trail entry
type Event struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	EventType EventType `json:"event_type"`
	UserID    string    `json:"user_id,omitempty"`
	RequestID string    `json:"request_id,omitempty"`
	IPAddress string    `json:"ip_address,omitempty"`
	Detail    string    `json:"detail,omitempty"`
}

// Trail records audit events to the portal database
type Trail struct {
	db     *sql.DB
	logger *observability.Logger
	now    func() time.Time
}

// NewTrail creates the audit trail and ensures its table exists
func NewTrail(db *sql.DB, logger *observability.Logger) (*Trail, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	t := &Trail{db: db, logger: logger, now: time.Now}
	if err := t.ensureTable(); err != nil {
		return nil, fmt.Errorf("failed to ensure audit table: %w", err)
	}
	return t, nil
}

func (t *Trail) ensureTable() error {
	_, err := t.db.Exec(`
		CREATE TABLE IF NOT EXISTS audit_events (
			id          VARCHAR(36) PRIMARY KEY,
			timestamp   TIMESTAMP NOT NULL,
			event_type  VARCHAR(64) NOT NULL,
			user_id     VARCHAR(64),
			request_id  VARCHAR(64),
			ip_address  VARCHAR(45),
			detail      TEXT
		)`)
	if err != nil {
		return err
	}
	_, err = t.db.Exec(`CREATE INDEX IF NOT EXISTS idx_audit_events_user ON audit_events (user_id, timestamp)`)
	return err
}

// Record appends one event. The request id is taken from the context
// when present. Failures are swallowed after logging.
func (t *Trail) Record(ctx context.Context, eventType EventType, userID, ipAddress, detail string) {
	event := Event{
		ID:        uuid.NewString(),
		Timestamp: t.now(),
		EventType: eventType,
		UserID:    userID,
		RequestID: contextkeys.RequestID(ctx),
		IPAddress: ipAddress,
		Detail:    detail,
	}

	_, err := t.db.ExecContext(ctx, `
		INSERT INTO audit_events (id, timestamp, event_type, user_id, request_id, ip_address, detail)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		event.ID, event.Timestamp, string(event.EventType),
		event.UserID, event.RequestID, event.IPAddress, event.Detail)
	if err != nil {
		t.logger.WithError(err).
			WithField("event_type", string(eventType)).
			WithField("user_id", userID).
			Error("failed to record audit event")
	}
}

// RecentForUser lists a user's latest events, newest first
func (t *Trail) RecentForUser(ctx context.Context, userID string, limit int) ([]Event, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := t.db.QueryContext(ctx, `
		SELECT id, timestamp, event_type, user_id, request_id, ip_address, detail
		FROM audit_events
		WHERE user_id = $1
		ORDER BY timestamp DESC
		LIMIT $2`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit events: %w", err)
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var e Event
		var eventType string
		var uid, reqID, ip, detail sql.NullString
		if err := rows.Scan(&e.ID, &e.Timestamp, &eventType, &uid, &reqID, &ip, &detail); err != nil {
			return nil, fmt.Errorf("failed to scan audit event: %w", err)
		}
		e.EventType = EventType(eventType)
		e.UserID = uid.String
		e.RequestID = reqID.String
		e.IPAddress = ip.String
		e.Detail = detail.String
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read audit events: %w", err)
	}
	return out, nil
}
