//go:build integration

package records

import (
	"context"
	"database/sql"
	"io"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/kumc-bmi/heron-portal/pkg/observability"
)

func setupPostgresStore(t *testing.T) *SQLStore {
	t.Helper()
	ctx := context.Background()

	container, err := postgres.Run(ctx, "postgres:15-alpine",
		postgres.WithDatabase("heron_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
		postgres.BasicWaitStrategies(),
	)
	require.NoError(t, err, "failed to start postgres container")
	t.Cleanup(func() {
		cleanupCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := container.Terminate(cleanupCtx); err != nil {
			t.Logf("warning: failed to terminate container: %v", err)
		}
	})

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := sql.Open("postgres", connStr)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.Ping())

	require.NoError(t, Migrate(db))
	return NewSQLStore(db, observability.NewLogger(observability.ErrorLevel, io.Discard), nil)
}

func TestPostgresFullWorkflow_Integration(t *testing.T) {
	store := setupPostgresStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveAgreement(ctx, SystemAccessAgreement{
		UserID: "john.smith", FullName: "John Smith", Signature: "John Smith",
		SignedAt: time.Now().UTC(),
	}))

	rows := []Sponsorship{
		{UserID: "carol.student", SponsorID: "john.smith", AccessType: AccessDataAccess,
			Title: "Cure Study", Description: "extraction", Employee: true},
	}
	require.NoError(t, store.InsertSponsorships(ctx, rows))
	id := rows[0].ID

	for _, org := range Orgs {
		sp, err := store.ApplyDecision(ctx, id, org, StatusApproved, string(org)+".reviewer")
		require.NoError(t, err)
		if org == Orgs[len(Orgs)-1] {
			assert.True(t, sp.FullyApproved())
		}
	}

	active, err := store.ActiveSponsorships(ctx, "carol.student")
	require.NoError(t, err)
	assert.Len(t, active, 1)

	require.NoError(t, store.TerminateUser(ctx, "carol.student", "study ended", "admin"))
	active, err = store.ActiveSponsorships(ctx, "carol.student")
	require.NoError(t, err)
	assert.Empty(t, active)

	hist, err := store.History(ctx, "carol.student")
	require.NoError(t, err)
	require.Len(t, hist, 1)
	assert.Equal(t, ChangeTerminate, hist[0].Change)
}
