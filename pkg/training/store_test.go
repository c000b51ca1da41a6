package training

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kumc-bmi/heron-portal/pkg/observability"
)

func newTestRegistry(t *testing.T) (*SQLRegistry, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	r := NewSQLRegistry(db, observability.NewLogger(observability.ErrorLevel, io.Discard))
	r.now = func() time.Time { return time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC) }
	return r, mock
}

func TestCurrent(t *testing.T) {
	r, mock := newTestRegistry(t)

	completed := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	expires := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery("SELECT user_id, course, completed, expires").
		WithArgs("john.smith").
		WillReturnRows(sqlmock.NewRows([]string{"user_id", "course", "completed", "expires"}).
			AddRow("john.smith", "Human Subjects Research", completed, expires))

	rec, err := r.Current(context.Background(), "john.smith")
	require.NoError(t, err)
	assert.Equal(t, "Human Subjects Research", rec.Course)
	assert.Equal(t, expires, rec.Expires)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCurrentNoTraining(t *testing.T) {
	r, mock := newTestRegistry(t)

	mock.ExpectQuery("SELECT user_id, course, completed, expires").
		WithArgs("bill.student").
		WillReturnRows(sqlmock.NewRows([]string{"user_id", "course", "completed", "expires"}))

	_, err := r.Current(context.Background(), "bill.student")
	assert.ErrorIs(t, err, ErrNoTraining)
}

func TestCurrentExpired(t *testing.T) {
	r, mock := newTestRegistry(t)

	completed := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	expires := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery("SELECT user_id, course, completed, expires").
		WithArgs("todd.ryan").
		WillReturnRows(sqlmock.NewRows([]string{"user_id", "course", "completed", "expires"}).
			AddRow("todd.ryan", "Human Subjects Research", completed, expires))

	_, err := r.Current(context.Background(), "todd.ryan")
	assert.ErrorIs(t, err, ErrExpired)
	assert.Contains(t, err.Error(), "2024-01-01")
}

func TestStaticRegistry(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	r := &StaticRegistry{
		Records: map[string]Record{
			"john.smith": {UserID: "john.smith", Expires: now.AddDate(0, 6, 0)},
			"todd.ryan":  {UserID: "todd.ryan", Expires: now.AddDate(-1, 0, 0)},
		},
		Now: func() time.Time { return now },
	}

	_, err := r.Current(context.Background(), "john.smith")
	assert.NoError(t, err)

	_, err = r.Current(context.Background(), "todd.ryan")
	assert.ErrorIs(t, err, ErrExpired)

	_, err = r.Current(context.Background(), "ghost")
	assert.ErrorIs(t, err, ErrNoTraining)
}
