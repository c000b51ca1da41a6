package records

import (
	"database/sql"
	"fmt"
)

// migrations are applied in order and tracked in schema_migrations.
// Statements stay in the dialect subset shared by postgres and sqlite.
var migrations = []struct {
	version int
	name    string
	stmts   []string
}{
	{
		version: 1,
		name:    "system access agreements",
		stmts: []string{`
			CREATE TABLE system_access_users (
				user_id    VARCHAR(64) PRIMARY KEY,
				full_name  VARCHAR(255) NOT NULL,
				signature  VARCHAR(255) NOT NULL,
				signed_at  TIMESTAMP NOT NULL
			)`,
		},
	},
	{
		version: 2,
		name:    "sponsorships and history",
		stmts: []string{`
			CREATE TABLE heron_sponsorship (
				id                VARCHAR(36) PRIMARY KEY,
				user_id           VARCHAR(64) NOT NULL,
				sponsor_id        VARCHAR(64) NOT NULL,
				access_type       VARCHAR(16) NOT NULL,
				title             VARCHAR(255) NOT NULL,
				description       TEXT NOT NULL,
				employee          BOOLEAN NOT NULL,
				user_description  VARCHAR(255),
				expires           TIMESTAMP,
				signature_name    VARCHAR(255),
				signature_date    TIMESTAMP,
				kuh_status        VARCHAR(1),
				kuh_approved_by   VARCHAR(64),
				kuh_approved_at   TIMESTAMP,
				ukp_status        VARCHAR(1),
				ukp_approved_by   VARCHAR(64),
				ukp_approved_at   TIMESTAMP,
				kumc_status       VARCHAR(1),
				kumc_approved_by  VARCHAR(64),
				kumc_approved_at  TIMESTAMP,
				created_at        TIMESTAMP NOT NULL,
				updated_at        TIMESTAMP NOT NULL
			)`, `
			CREATE INDEX idx_sponsorship_user ON heron_sponsorship (user_id)`, `
			CREATE INDEX idx_sponsorship_sponsor ON heron_sponsorship (sponsor_id)`, `
			CREATE TABLE sponsorship_status_change_hist (
				id          VARCHAR(36) PRIMARY KEY,
				user_id     VARCHAR(64) NOT NULL,
				change      VARCHAR(32) NOT NULL,
				reason      TEXT NOT NULL,
				changed_by  VARCHAR(64) NOT NULL,
				changed_at  TIMESTAMP NOT NULL
			)`,
		},
	},
	{
		version: 3,
		name:    "rosters",
		stmts: []string{`
			CREATE TABLE droc_reviewers (
				user_id  VARCHAR(64) PRIMARY KEY,
				org      VARCHAR(8) NOT NULL,
				active   BOOLEAN NOT NULL
			)`, `
			CREATE TABLE exec_group (
				user_id  VARCHAR(64) PRIMARY KEY,
				active   BOOLEAN NOT NULL
			)`,
		},
	},
	{
		version: 4,
		name:    "disclaimers",
		stmts: []string{`
			CREATE TABLE disclaimers (
				id      INTEGER PRIMARY KEY,
				url     VARCHAR(255) NOT NULL,
				body    TEXT NOT NULL,
				recent  BOOLEAN NOT NULL
			)`, `
			CREATE TABLE disclaimer_acknowledgements (
				user_id        VARCHAR(64) NOT NULL,
				disclaimer_id  INTEGER NOT NULL,
				acked_at       TIMESTAMP NOT NULL,
				PRIMARY KEY (user_id, disclaimer_id)
			)`,
		},
	},
	{
		version: 5,
		name:    "repository project users",
		stmts: []string{`
			CREATE TABLE project_users (
				user_id        VARCHAR(64) PRIMARY KEY,
				full_name      VARCHAR(255) NOT NULL,
				registered_at  TIMESTAMP NOT NULL
			)`,
		},
	},
}

// Migrate brings the schema up to date. Safe to run on every start.
func Migrate(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version     INTEGER PRIMARY KEY,
			name        VARCHAR(255) NOT NULL,
			applied_at  TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	for _, m := range migrations {
		var exists int
		err := db.QueryRow(`SELECT COUNT(*) FROM schema_migrations WHERE version = $1`, m.version).Scan(&exists)
		if err != nil {
			return fmt.Errorf("failed to check migration %d: %w", m.version, err)
		}
		if exists > 0 {
			continue
		}

		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("failed to begin migration %d: %w", m.version, err)
		}
		for _, stmt := range m.stmts {
			if _, err := tx.Exec(stmt); err != nil {
				tx.Rollback()
				return fmt.Errorf("migration %d (%s) failed: %w", m.version, m.name, err)
			}
		}
		if _, err := tx.Exec(`INSERT INTO schema_migrations (version, name, applied_at) VALUES ($1, $2, CURRENT_TIMESTAMP)`, m.version, m.name); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", m.version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", m.version, err)
		}
	}
	return nil
}
