package sponsorship

import (
	"context"
	"database/sql"
	"io"
	"sync"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kumc-bmi/heron-portal/pkg/access"
	"github.com/kumc-bmi/heron-portal/pkg/config"
	"github.com/kumc-bmi/heron-portal/pkg/enterprise"
	"github.com/kumc-bmi/heron-portal/pkg/notify"
	"github.com/kumc-bmi/heron-portal/pkg/observability"
	"github.com/kumc-bmi/heron-portal/pkg/records"
)

type capturingNotifier struct {
	mu   sync.Mutex
	sent []notify.Message
}

func (c *capturingNotifier) Send(_ context.Context, msg notify.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, msg)
	return nil
}

func (c *capturingNotifier) messages() []notify.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]notify.Message(nil), c.sent...)
}

type workflowFixture struct {
	service  *Service
	store    *records.SQLStore
	notifier *capturingNotifier
	db       *sql.DB
}

func newWorkflow(t *testing.T) *workflowFixture {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, records.Migrate(db))

	logger := observability.NewLogger(observability.ErrorLevel, io.Discard)
	store := records.NewSQLStore(db, logger, nil)

	dir := enterprise.NewMockDirectory(
		enterprise.Agent{UserID: "john.smith", GivenName: "John", Surname: "Smith",
			Email: "john.smith@example.edu", Faculty: true, JobCode: "10000"},
		enterprise.Agent{UserID: "carol.student", GivenName: "Carol", Surname: "Student",
			Email: "carol.student@example.edu"},
		enterprise.Agent{UserID: "dave.student", GivenName: "Dave", Surname: "Student",
			Email: "dave.student@example.edu"},
		enterprise.Agent{UserID: "jane.reviewer", GivenName: "Jane", Surname: "Reviewer",
			Email: "jane.reviewer@example.edu"},
		enterprise.Agent{UserID: "bob", Surname: "bob"},
	)
	ent := enterprise.New(dir, config.NewQualificationPolicy([]string{"24600"}))

	notifier := &capturingNotifier{}
	quiet := logrus.New()
	quiet.SetOutput(io.Discard)
	dispatcher := notify.NewDispatcher(notifier, quiet, nil, nil)

	_, err = db.Exec(`INSERT INTO droc_reviewers (user_id, org, active) VALUES ('jane.reviewer', 'kuh', 1)`)
	require.NoError(t, err)

	return &workflowFixture{
		service:  NewService(store, ent, dispatcher, logger, nil, nil),
		store:    store,
		notifier: notifier,
		db:       db,
	}
}

func sponsor() access.Sponsor {
	return access.Sponsor{Agent: enterprise.Agent{
		UserID: "john.smith", GivenName: "John", Surname: "Smith",
		Email: "john.smith@example.edu", Faculty: true,
	}}
}

func reviewer(org records.Org) access.Reviewer {
	return access.Reviewer{Agent: enterprise.Agent{
		UserID: "jane.reviewer", GivenName: "Jane", Surname: "Reviewer",
		Email: "jane.reviewer@example.edu",
	}, Org: org}
}

func validInput() FileInput {
	return FileInput{
		Title:       "Cure Study",
		Description: "chart review",
		AccessType:  records.AccessViewOnly,
		EmployeeIDs: []string{"carol.student", "dave.student"},
	}
}

func TestFileRequestRoundTrip(t *testing.T) {
	f := newWorkflow(t)
	ctx := context.Background()

	in := validInput()
	in.NonEmployees = "bob [visiting collaborator]"
	rows, err := f.service.FileRequest(ctx, sponsor(), in)
	require.NoError(t, err)

	// Two employees plus one non-employee, all under one filing
	require.Len(t, rows, 3)
	byUser := map[string]records.Sponsorship{}
	for _, r := range rows {
		byUser[r.UserID] = r
	}
	assert.True(t, byUser["carol.student"].Employee)
	assert.True(t, byUser["dave.student"].Employee)
	assert.False(t, byUser["bob"].Employee)
	require.NotNil(t, byUser["bob"].UserDescription)
	assert.Equal(t, "visiting collaborator", *byUser["bob"].UserDescription)

	pending, err := f.store.PendingForOrg(ctx, records.OrgKUH)
	require.NoError(t, err)
	assert.Len(t, pending, 3)

	// The review roster got one filing notice
	msgs := f.notifier.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, []string{"jane.reviewer@example.edu"}, msgs[0].To)
	assert.Contains(t, msgs[0].Body, "bob (visiting collaborator) [non-employee]")
}

func TestFileRequestCollectsValidationProblems(t *testing.T) {
	f := newWorkflow(t)

	in := FileInput{
		AccessType:   records.AccessViewOnly,
		EmployeeIDs:  []string{"ghost.user"},
		NonEmployees: "sue[bad;format]",
	}
	_, err := f.service.FileRequest(context.Background(), sponsor(), in)

	ve, ok := Invalid(err)
	require.True(t, ok)
	joined := ve.Error()
	assert.Contains(t, joined, "title is required")
	assert.Contains(t, joined, "description is required")
	assert.Contains(t, joined, "malformed non-employee entry")
	assert.Contains(t, joined, "ghost.user is not in the enterprise directory")

	// Nothing was persisted and nobody was notified
	pending, perr := f.store.PendingForOrg(context.Background(), records.OrgKUH)
	require.NoError(t, perr)
	assert.Empty(t, pending)
	assert.Empty(t, f.notifier.messages())
}

func TestFileRequestRejectsUnknownNonEmployee(t *testing.T) {
	f := newWorkflow(t)
	ctx := context.Background()

	in := validInput()
	in.NonEmployees = "ghost.dog [not in any directory]"
	_, err := f.service.FileRequest(ctx, sponsor(), in)

	ve, ok := Invalid(err)
	require.True(t, ok)
	assert.Contains(t, ve.Error(), "ghost.dog is not in the enterprise directory")

	pending, perr := f.store.PendingForOrg(ctx, records.OrgKUH)
	require.NoError(t, perr)
	assert.Empty(t, pending)
	assert.Empty(t, f.notifier.messages())
}

func TestFileRequestRejectsUnrecognizedSponsor(t *testing.T) {
	f := newWorkflow(t)

	outsider := access.Sponsor{Agent: enterprise.Agent{
		UserID: "visiting.prof", GivenName: "Vera", Surname: "Visiting", Faculty: true,
	}}
	_, err := f.service.FileRequest(context.Background(), outsider, validInput())

	assert.ErrorIs(t, err, enterprise.ErrNotOwner)
	assert.Empty(t, f.notifier.messages())
}

func TestFileRequestRejectsDuplicate(t *testing.T) {
	f := newWorkflow(t)
	ctx := context.Background()

	_, err := f.service.FileRequest(ctx, sponsor(), validInput())
	require.NoError(t, err)

	_, err = f.service.FileRequest(ctx, sponsor(), validInput())
	assert.ErrorIs(t, err, ErrDuplicate)

	pending, err := f.store.PendingForOrg(ctx, records.OrgKUH)
	require.NoError(t, err)
	assert.Len(t, pending, 2)
}

func TestApproveEmptyBatch(t *testing.T) {
	f := newWorkflow(t)

	applied, err := f.service.Approve(context.Background(), reviewer(records.OrgKUH), records.OrgKUH, nil)
	require.NoError(t, err)
	assert.False(t, applied)
	assert.Empty(t, f.notifier.messages())
}

func TestApproveWrongOrg(t *testing.T) {
	f := newWorkflow(t)

	_, err := f.service.Approve(context.Background(), reviewer(records.OrgKUH), records.OrgUKP,
		[]Decision{{SponsorshipID: "x", Status: records.StatusApproved}})
	assert.ErrorIs(t, err, ErrWrongOrg)
}

func TestApproveFullApprovalNotifies(t *testing.T) {
	f := newWorkflow(t)
	ctx := context.Background()

	in := validInput()
	in.EmployeeIDs = []string{"carol.student"}
	rows, err := f.service.FileRequest(ctx, sponsor(), in)
	require.NoError(t, err)
	id := rows[0].ID

	for i, org := range records.Orgs {
		applied, err := f.service.Approve(ctx, reviewer(org), org,
			[]Decision{{SponsorshipID: id, Status: records.StatusApproved}})
		require.NoError(t, err)
		assert.True(t, applied)

		msgs := f.notifier.messages()
		if i < len(records.Orgs)-1 {
			// No approval mail until the last org approves
			require.Len(t, msgs, 1, "only the filing notice so far")
		} else {
			require.Len(t, msgs, 2)
			assert.Equal(t, []string{"carol.student@example.edu"}, msgs[1].To)
			assert.Equal(t, []string{"john.smith@example.edu"}, msgs[1].Cc)
			assert.Contains(t, msgs[1].Subject, "approved")
			assert.Contains(t, msgs[1].Body, "Cure Study")
		}
	}

	// Full approval registers the user with the repository
	var n int
	require.NoError(t, f.db.QueryRow(`SELECT COUNT(*) FROM project_users WHERE user_id = 'carol.student'`).Scan(&n))
	assert.Equal(t, 1, n)
}

func TestApproveDeferralNotifies(t *testing.T) {
	f := newWorkflow(t)
	ctx := context.Background()

	in := validInput()
	in.EmployeeIDs = []string{"carol.student"}
	rows, err := f.service.FileRequest(ctx, sponsor(), in)
	require.NoError(t, err)

	applied, err := f.service.Approve(ctx, reviewer(records.OrgKUH), records.OrgKUH,
		[]Decision{{SponsorshipID: rows[0].ID, Status: records.StatusDeferred}})
	require.NoError(t, err)
	assert.True(t, applied)

	msgs := f.notifier.messages()
	require.Len(t, msgs, 2)
	assert.Contains(t, msgs[1].Subject, "deferred")

	// Deferred requests stay in the org's queue
	pending, err := f.service.Pending(ctx, reviewer(records.OrgKUH))
	require.NoError(t, err)
	assert.Len(t, pending, 1)
}

func TestTerminateAppendsHistory(t *testing.T) {
	f := newWorkflow(t)
	ctx := context.Background()

	in := validInput()
	in.EmployeeIDs = []string{"carol.student"}
	_, err := f.service.FileRequest(ctx, sponsor(), in)
	require.NoError(t, err)

	require.NoError(t, f.service.Terminate(ctx, "carol.student", "left the university", "admin"))

	hist, err := f.store.History(ctx, "carol.student")
	require.NoError(t, err)
	require.Len(t, hist, 1)
	assert.Equal(t, records.ChangeTerminate, hist[0].Change)

	pending, err := f.service.Pending(ctx, reviewer(records.OrgKUH))
	require.NoError(t, err)
	assert.Empty(t, pending)

	// Terminating again still appends history
	require.NoError(t, f.service.Terminate(ctx, "carol.student", "again", "admin"))
	hist, err = f.store.History(ctx, "carol.student")
	require.NoError(t, err)
	assert.Len(t, hist, 2)
}
