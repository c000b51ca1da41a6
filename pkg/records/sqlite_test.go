package records

import (
	"context"
	"database/sql"
	"io"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kumc-bmi/heron-portal/pkg/observability"
)

// newSQLiteStore gives each test a migrated in-memory database
func newSQLiteStore(t *testing.T) *SQLStore {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, Migrate(db))
	return NewSQLStore(db, observability.NewLogger(observability.ErrorLevel, io.Discard), nil)
}

func fileBatch(t *testing.T, store *SQLStore, userIDs ...string) []Sponsorship {
	t.Helper()
	rows := make([]Sponsorship, 0, len(userIDs))
	for _, id := range userIDs {
		rows = append(rows, Sponsorship{
			UserID:      id,
			SponsorID:   "john.smith",
			AccessType:  AccessViewOnly,
			Title:       "Cure Study",
			Description: "chart review",
			Employee:    true,
		})
	}
	require.NoError(t, store.InsertSponsorships(context.Background(), rows))
	return rows
}

func TestMigrateIdempotent(t *testing.T) {
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	defer db.Close()

	require.NoError(t, Migrate(db))
	require.NoError(t, Migrate(db))
}

func TestAgreementRoundTrip(t *testing.T) {
	store := newSQLiteStore(t)
	ctx := context.Background()

	signed, err := store.HasAgreement(ctx, "john.smith")
	require.NoError(t, err)
	assert.False(t, signed)

	saa := SystemAccessAgreement{
		UserID:    "john.smith",
		FullName:  "John Smith",
		Signature: "John Smith",
		SignedAt:  time.Date(2026, 1, 15, 9, 0, 0, 0, time.UTC),
	}
	require.NoError(t, store.SaveAgreement(ctx, saa))

	signed, err = store.HasAgreement(ctx, "john.smith")
	require.NoError(t, err)
	assert.True(t, signed)

	got, err := store.Agreement(ctx, "john.smith")
	require.NoError(t, err)
	assert.Equal(t, "John Smith", got.FullName)

	// Signing again is refused
	assert.Error(t, store.SaveAgreement(ctx, saa))
}

func TestFilingBatchRoundTrip(t *testing.T) {
	store := newSQLiteStore(t)
	ctx := context.Background()

	desc := "my favorite dog"
	rows := []Sponsorship{
		{UserID: "carol.student", SponsorID: "john.smith", AccessType: AccessViewOnly,
			Title: "Cure Study", Description: "chart review", Employee: true},
		{UserID: "dave.student", SponsorID: "john.smith", AccessType: AccessViewOnly,
			Title: "Cure Study", Description: "chart review", Employee: true},
		{UserID: "scooby", SponsorID: "john.smith", AccessType: AccessViewOnly,
			Title: "Cure Study", Description: "chart review", Employee: false, UserDescription: &desc},
	}
	require.NoError(t, store.InsertSponsorships(ctx, rows))

	// Every row is pending for every org
	for _, org := range Orgs {
		pending, err := store.PendingForOrg(ctx, org)
		require.NoError(t, err)
		assert.Len(t, pending, 3)
	}

	got, err := store.SponsorshipByID(ctx, rows[2].ID)
	require.NoError(t, err)
	assert.False(t, got.Employee)
	require.NotNil(t, got.UserDescription)
	assert.Equal(t, "my favorite dog", *got.UserDescription)
	assert.Nil(t, got.Approvals[OrgKUH].Status)

	dup, err := store.DuplicateExists(ctx, "john.smith", "Cure Study", "chart review", AccessViewOnly)
	require.NoError(t, err)
	assert.True(t, dup)
}

func TestApprovalStateMachine(t *testing.T) {
	store := newSQLiteStore(t)
	ctx := context.Background()
	rows := fileBatch(t, store, "carol.student")
	id := rows[0].ID

	sp, err := store.ApplyDecision(ctx, id, OrgKUH, StatusApproved, "kuh.reviewer")
	require.NoError(t, err)
	assert.False(t, sp.FullyApproved())
	require.NotNil(t, sp.Approvals[OrgKUH].Status)
	assert.Equal(t, StatusApproved, *sp.Approvals[OrgKUH].Status)
	assert.Equal(t, "kuh.reviewer", *sp.Approvals[OrgKUH].ApprovedBy)

	// Approved requests leave the deciding org's queue but stay in others'
	pending, err := store.PendingForOrg(ctx, OrgKUH)
	require.NoError(t, err)
	assert.Empty(t, pending)
	pending, err = store.PendingForOrg(ctx, OrgUKP)
	require.NoError(t, err)
	assert.Len(t, pending, 1)

	// Deferral keeps the request reviewable by that org
	sp, err = store.ApplyDecision(ctx, id, OrgUKP, StatusDeferred, "ukp.reviewer")
	require.NoError(t, err)
	pending, err = store.PendingForOrg(ctx, OrgUKP)
	require.NoError(t, err)
	assert.Len(t, pending, 1)

	// Deferral is re-enterable; full approval needs all three orgs
	sp, err = store.ApplyDecision(ctx, id, OrgUKP, StatusApproved, "ukp.reviewer")
	require.NoError(t, err)
	assert.False(t, sp.FullyApproved())

	sp, err = store.ApplyDecision(ctx, id, OrgKUMC, StatusApproved, "kumc.reviewer")
	require.NoError(t, err)
	assert.True(t, sp.FullyApproved())

	active, err := store.ActiveSponsorships(ctx, "carol.student")
	require.NoError(t, err)
	assert.Len(t, active, 1)
}

func TestApprovalCommutes(t *testing.T) {
	store := newSQLiteStore(t)
	ctx := context.Background()
	rows := fileBatch(t, store, "carol.student")
	id := rows[0].ID

	// Order of org decisions does not matter
	_, err := store.ApplyDecision(ctx, id, OrgKUMC, StatusApproved, "kumc.reviewer")
	require.NoError(t, err)
	_, err = store.ApplyDecision(ctx, id, OrgKUH, StatusApproved, "kuh.reviewer")
	require.NoError(t, err)
	sp, err := store.ApplyDecision(ctx, id, OrgUKP, StatusApproved, "ukp.reviewer")
	require.NoError(t, err)

	assert.True(t, sp.FullyApproved())
	for _, org := range Orgs {
		assert.NotNil(t, sp.Approvals[org].ApprovedAt)
	}
}

func TestApplyDecisionUnknownID(t *testing.T) {
	store := newSQLiteStore(t)

	_, err := store.ApplyDecision(context.Background(), "no-such-id", OrgKUH, StatusApproved, "jane")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestTerminateUser(t *testing.T) {
	store := newSQLiteStore(t)
	ctx := context.Background()
	fileBatch(t, store, "carol.student")

	require.NoError(t, store.TerminateUser(ctx, "carol.student", "left the university", "admin"))

	// Terminated rows are invisible to reviewers
	for _, org := range Orgs {
		pending, err := store.PendingForOrg(ctx, org)
		require.NoError(t, err)
		assert.Empty(t, pending)
	}

	hist, err := store.History(ctx, "carol.student")
	require.NoError(t, err)
	require.Len(t, hist, 1)
	assert.Equal(t, ChangeTerminate, hist[0].Change)
	assert.Equal(t, "left the university", hist[0].Reason)
	assert.Equal(t, "admin", hist[0].ChangedBy)

	// Termination is idempotent in effect but always appends history
	require.NoError(t, store.TerminateUser(ctx, "carol.student", "again", "admin"))
	hist, err = store.History(ctx, "carol.student")
	require.NoError(t, err)
	assert.Len(t, hist, 2)
}

func TestExpiredInvisibleToReviewers(t *testing.T) {
	store := newSQLiteStore(t)
	ctx := context.Background()

	past := time.Now().Add(-time.Hour)
	future := time.Now().Add(24 * time.Hour)
	rows := []Sponsorship{
		{UserID: "old.user", SponsorID: "john.smith", AccessType: AccessViewOnly,
			Title: "Old Study", Description: "done", Employee: true, Expires: &past},
		{UserID: "new.user", SponsorID: "john.smith", AccessType: AccessViewOnly,
			Title: "New Study", Description: "ongoing", Employee: true, Expires: &future},
	}
	require.NoError(t, store.InsertSponsorships(ctx, rows))

	pending, err := store.PendingForOrg(ctx, OrgKUH)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "new.user", pending[0].UserID)
}

func TestExpireDueWindow(t *testing.T) {
	store := newSQLiteStore(t)
	ctx := context.Background()

	now := time.Now()
	recent := now.Add(-time.Hour)
	ancient := now.Add(-48 * time.Hour)
	rows := []Sponsorship{
		{UserID: "recent.user", SponsorID: "john.smith", AccessType: AccessViewOnly,
			Title: "A", Description: "a", Employee: true, Expires: &recent},
		{UserID: "ancient.user", SponsorID: "john.smith", AccessType: AccessViewOnly,
			Title: "B", Description: "b", Employee: true, Expires: &ancient},
	}
	require.NoError(t, store.InsertSponsorships(ctx, rows))

	due, err := store.ExpireDue(ctx, now)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, "recent.user", due[0].UserID)
}

func TestPendingOlderThan(t *testing.T) {
	store := newSQLiteStore(t)
	ctx := context.Background()
	fileBatch(t, store, "carol.student")

	old, err := store.PendingOlderThan(ctx, time.Hour)
	require.NoError(t, err)
	assert.Empty(t, old)

	old, err = store.PendingOlderThan(ctx, -time.Hour)
	require.NoError(t, err)
	assert.Len(t, old, 1)
}

func TestDisclaimerAcknowledgement(t *testing.T) {
	store := newSQLiteStore(t)
	ctx := context.Background()

	_, err := store.RecentDisclaimer(ctx)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = store.db.Exec(`INSERT INTO disclaimers (id, url, body, recent) VALUES (1, 'http://example.edu/d1', 'old terms', $1)`, false)
	require.NoError(t, err)
	_, err = store.db.Exec(`INSERT INTO disclaimers (id, url, body, recent) VALUES (2, 'http://example.edu/d2', 'current terms', $1)`, true)
	require.NoError(t, err)

	d, err := store.RecentDisclaimer(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), d.ID)

	acked, err := store.AcknowledgedRecent(ctx, "carol.student")
	require.NoError(t, err)
	assert.False(t, acked)

	// Acknowledging an old version does not satisfy the recent check
	require.NoError(t, store.Acknowledge(ctx, "carol.student", 1))
	acked, err = store.AcknowledgedRecent(ctx, "carol.student")
	require.NoError(t, err)
	assert.False(t, acked)

	require.NoError(t, store.Acknowledge(ctx, "carol.student", 2))
	require.NoError(t, store.Acknowledge(ctx, "carol.student", 2))
	acked, err = store.AcknowledgedRecent(ctx, "carol.student")
	require.NoError(t, err)
	assert.True(t, acked)
}

func TestRosters(t *testing.T) {
	store := newSQLiteStore(t)
	ctx := context.Background()

	_, err := store.db.Exec(`INSERT INTO droc_reviewers (user_id, org, active) VALUES ('jane.reviewer', 'kuh', $1)`, true)
	require.NoError(t, err)
	_, err = store.db.Exec(`INSERT INTO droc_reviewers (user_id, org, active) VALUES ('gone.reviewer', 'ukp', $1)`, false)
	require.NoError(t, err)
	_, err = store.db.Exec(`INSERT INTO exec_group (user_id, active) VALUES ('big.wig', $1)`, true)
	require.NoError(t, err)

	r, err := store.ReviewerFor(ctx, "jane.reviewer")
	require.NoError(t, err)
	assert.Equal(t, OrgKUH, r.Org)

	active, err := store.ActiveReviewers(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "jane.reviewer", active[0].UserID)

	exec, err := store.IsExecutive(ctx, "big.wig")
	require.NoError(t, err)
	assert.True(t, exec)
	exec, err = store.IsExecutive(ctx, "john.smith")
	require.NoError(t, err)
	assert.False(t, exec)
}

func TestRegisterProjectUserUpsert(t *testing.T) {
	store := newSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, store.RegisterProjectUser(ctx, "carol.student", "Carol Student"))
	require.NoError(t, store.RegisterProjectUser(ctx, "carol.student", "Carol Q. Student"))

	var name string
	require.NoError(t, store.db.QueryRow(`SELECT full_name FROM project_users WHERE user_id = $1`, "carol.student").Scan(&name))
	assert.Equal(t, "Carol Q. Student", name)
}
