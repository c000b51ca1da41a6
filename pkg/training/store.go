package training

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/kumc-bmi/heron-portal/pkg/observability"
)

// SQLRegistry reads training records from the training database. The
// schema is owned by the compliance office; this store only reads it.
type SQLRegistry struct {
	db     *sql.DB
	logger *observability.Logger
	now    func() time.Time
}

// NewSQLRegistry creates a registry over the training database
func NewSQLRegistry(db *sql.DB, logger *observability.Logger) *SQLRegistry {
	return &SQLRegistry{db: db, logger: logger, now: time.Now}
}

// Current returns the user's latest training record if it is unexpired
func (r *SQLRegistry) Current(ctx context.Context, userID string) (Record, error) {
	query := `
		SELECT user_id, course, completed, expires
		FROM training_records
		WHERE user_id = $1
		ORDER BY expires DESC
		LIMIT 1`

	var rec Record
	err := r.db.QueryRowContext(ctx, query, userID).Scan(
		&rec.UserID, &rec.Course, &rec.Completed, &rec.Expires)
	if err == sql.ErrNoRows {
		return Record{}, ErrNoTraining
	}
	if err != nil {
		return Record{}, fmt.Errorf("failed to query training records: %w", err)
	}

	if rec.Expires.Before(r.now()) {
		r.logger.WithField("user_id", userID).
			WithField("expired", rec.Expires.Format("2006-01-02")).
			Debug("training lapsed")
		return Record{}, fmt.Errorf("%w: lapsed %s", ErrExpired, rec.Expires.Format("2006-01-02"))
	}
	return rec, nil
}

// StaticRegistry is an in-memory Registry for tests and development
type StaticRegistry struct {
	Records map[string]Record
	Now     func() time.Time
}

// Current implements Registry
func (r *StaticRegistry) Current(_ context.Context, userID string) (Record, error) {
	rec, ok := r.Records[userID]
	if !ok {
		return Record{}, ErrNoTraining
	}
	now := time.Now
	if r.Now != nil {
		now = r.Now
	}
	if rec.Expires.Before(now()) {
		return Record{}, ErrExpired
	}
	return rec, nil
}
