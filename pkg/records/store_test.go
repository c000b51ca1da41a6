package records

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

func newMockStore(t *testing.T) (*SQLStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewSQLStore(db, observability.NewLogger(observability.ErrorLevel, io.Discard), nil), mock
}

func TestHasAgreement(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM system_access_users").
		WithArgs("john.smith").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	signed, err := store.HasAgreement(context.Background(), "john.smith")
	require.NoError(t, err)
	assert.True(t, signed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveAgreementRejectsResign(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM system_access_users").
		WithArgs("john.smith").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	err := store.SaveAgreement(context.Background(), SystemAccessAgreement{
		UserID: "john.smith", FullName: "John Smith", Signature: "John Smith", SignedAt: time.Now(),
	})
	assert.ErrorContains(t, err, "already on file")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDuplicateExists(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM heron_sponsorship").
		WithArgs("john.smith", "Cure Study", "chart review", "VIEW_ONLY").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))

	dup, err := store.DuplicateExists(context.Background(), "john.smith", "Cure Study", "chart review", AccessViewOnly)
	require.NoError(t, err)
	assert.True(t, dup)
}

func TestReviewerFor(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("SELECT user_id, org, active FROM droc_reviewers").
		WithArgs("jane.reviewer").
		WillReturnRows(sqlmock.NewRows([]string{"user_id", "org", "active"}).
			AddRow("jane.reviewer", "kuh", true))

	r, err := store.ReviewerFor(context.Background(), "jane.reviewer")
	require.NoError(t, err)
	assert.Equal(t, OrgKUH, r.Org)
	assert.True(t, r.Active)
}

func TestReviewerForNotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("SELECT user_id, org, active FROM droc_reviewers").
		WithArgs("nobody").
		WillReturnRows(sqlmock.NewRows([]string{"user_id", "org", "active"}))

	_, err := store.ReviewerFor(context.Background(), "nobody")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestApplyDecisionRejectsUnknownOrg(t *testing.T) {
	store, _ := newMockStore(t)

	_, err := store.ApplyDecision(context.Background(), "id-1", Org("hospital"), StatusApproved, "jane")
	assert.ErrorContains(t, err, "unknown org")
}

func TestApplyDecisionRejectsUnknownStatus(t *testing.T) {
	store, _ := newMockStore(t)

	_, err := store.ApplyDecision(context.Background(), "id-1", OrgKUH, Status("X"), "jane")
	assert.ErrorContains(t, err, "unknown status")
}
