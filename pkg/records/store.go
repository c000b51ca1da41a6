package records

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/kumc-bmi/heron-portal/pkg/observability"
)

const sponsorshipColumns = `
	id, user_id, sponsor_id, access_type, title, description, employee,
	user_description, expires, signature_name, signature_date,
	kuh_status, kuh_approved_by, kuh_approved_at,
	ukp_status, ukp_approved_by, ukp_approved_at,
	kumc_status, kumc_approved_by, kumc_approved_at,
	created_at, updated_at`

// SQLStore is the database-backed access record store. Queries use $N
// placeholders, which both the postgres and sqlite drivers accept.
type SQLStore struct {
	db      *sql.DB
	logger  *observability.Logger
	metrics *observability.Metrics
	now     func() time.Time
}

// NewSQLStore creates a store over an open database handle
func NewSQLStore(db *sql.DB, logger *observability.Logger, metrics *observability.Metrics) *SQLStore {
	return &SQLStore{db: db, logger: logger, metrics: metrics, now: time.Now}
}

func (s *SQLStore) observe(op string, start time.Time, err error) {
	if s.metrics != nil {
		s.metrics.ObserveStoreOperation(op, start, err)
	}
}

// SaveAgreement records a signed system access agreement. A second
// signature for the same user is an error; agreements are never
// re-signed.
func (s *SQLStore) SaveAgreement(ctx context.Context, saa SystemAccessAgreement) error {
	start := s.now()
	signed, err := s.HasAgreement(ctx, saa.UserID)
	if err != nil {
		return err
	}
	if signed {
		return fmt.Errorf("agreement already on file for %s", saa.UserID)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO system_access_users (user_id, full_name, signature, signed_at)
		VALUES ($1, $2, $3, $4)`,
		saa.UserID, saa.FullName, saa.Signature, saa.SignedAt)
	s.observe("save_agreement", start, err)
	if err != nil {
		return fmt.Errorf("failed to save agreement: %w", err)
	}
	return nil
}

// Agreement fetches a user's signed agreement
func (s *SQLStore) Agreement(ctx context.Context, userID string) (SystemAccessAgreement, error) {
	start := s.now()
	var saa SystemAccessAgreement
	err := s.db.QueryRowContext(ctx, `
		SELECT user_id, full_name, signature, signed_at
		FROM system_access_users WHERE user_id = $1`, userID).
		Scan(&saa.UserID, &saa.FullName, &saa.Signature, &saa.SignedAt)
	s.observe("agreement", start, err)
	if err == sql.ErrNoRows {
		return SystemAccessAgreement{}, ErrNotFound
	}
	if err != nil {
		return SystemAccessAgreement{}, fmt.Errorf("failed to query agreement: %w", err)
	}
	return saa, nil
}

// HasAgreement reports whether the user signed the system access agreement
func (s *SQLStore) HasAgreement(ctx context.Context, userID string) (bool, error) {
	start := s.now()
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM system_access_users WHERE user_id = $1`, userID).Scan(&n)
	s.observe("has_agreement", start, err)
	if err != nil {
		return false, fmt.Errorf("failed to check agreement: %w", err)
	}
	return n > 0, nil
}

// RecentDisclaimer returns the single current disclaimer version
func (s *SQLStore) RecentDisclaimer(ctx context.Context) (Disclaimer, error) {
	start := s.now()
	var d Disclaimer
	err := s.db.QueryRowContext(ctx, `
		SELECT id, url, body, recent FROM disclaimers WHERE recent = $1`, true).
		Scan(&d.ID, &d.URL, &d.Text, &d.Recent)
	s.observe("recent_disclaimer", start, err)
	if err == sql.ErrNoRows {
		return Disclaimer{}, ErrNotFound
	}
	if err != nil {
		return Disclaimer{}, fmt.Errorf("failed to query disclaimer: %w", err)
	}
	return d, nil
}

// Acknowledge records that the user acknowledged a disclaimer version.
// Acknowledging the same version twice is a no-op.
func (s *SQLStore) Acknowledge(ctx context.Context, userID string, disclaimerID int64) error {
	start := s.now()
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM disclaimer_acknowledgements
		WHERE user_id = $1 AND disclaimer_id = $2`, userID, disclaimerID).Scan(&n)
	if err != nil {
		s.observe("acknowledge", start, err)
		return fmt.Errorf("failed to check acknowledgement: %w", err)
	}
	if n > 0 {
		s.observe("acknowledge", start, nil)
		return nil
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO disclaimer_acknowledgements (user_id, disclaimer_id, acked_at)
		VALUES ($1, $2, $3)`, userID, disclaimerID, s.now())
	s.observe("acknowledge", start, err)
	if err != nil {
		return fmt.Errorf("failed to record acknowledgement: %w", err)
	}
	return nil
}

// AcknowledgedRecent reports whether the user acknowledged the current
// disclaimer version.
func (s *SQLStore) AcknowledgedRecent(ctx context.Context, userID string) (bool, error) {
	start := s.now()
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM disclaimer_acknowledgements a
		JOIN disclaimers d ON d.id = a.disclaimer_id
		WHERE a.user_id = $1 AND d.recent = $2`, userID, true).Scan(&n)
	s.observe("acknowledged_recent", start, err)
	if err != nil {
		return false, fmt.Errorf("failed to check acknowledgement: %w", err)
	}
	return n > 0, nil
}

// InsertSponsorships inserts a filing batch in one transaction. Any
// failure rolls the whole batch back.
func (s *SQLStore) InsertSponsorships(ctx context.Context, rows []Sponsorship) error {
	if len(rows) == 0 {
		return fmt.Errorf("empty sponsorship batch")
	}
	start := s.now()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := s.now()
	for i := range rows {
		row := &rows[i]
		if row.ID == "" {
			row.ID = uuid.NewString()
		}
		row.CreatedAt = now
		row.UpdatedAt = now
		_, err := tx.ExecContext(ctx, `
			INSERT INTO heron_sponsorship (
				id, user_id, sponsor_id, access_type, title, description,
				employee, user_description, expires, signature_name,
				signature_date, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
			row.ID, row.UserID, row.SponsorID, string(row.AccessType),
			row.Title, row.Description, row.Employee, row.UserDescription,
			row.Expires, row.SignatureName, row.SignatureDate,
			row.CreatedAt, row.UpdatedAt)
		if err != nil {
			s.observe("insert_sponsorships", start, err)
			return fmt.Errorf("failed to insert sponsorship for %s: %w", row.UserID, err)
		}
	}

	err = tx.Commit()
	s.observe("insert_sponsorships", start, err)
	if err != nil {
		return fmt.Errorf("failed to commit sponsorship batch: %w", err)
	}
	return nil
}

// DuplicateExists checks for a prior filing by the same sponsor with the
// same title, description, and access type.
func (s *SQLStore) DuplicateExists(ctx context.Context, sponsorID, title, description string, accessType AccessType) (bool, error) {
	start := s.now()
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM heron_sponsorship
		WHERE sponsor_id = $1 AND title = $2 AND description = $3 AND access_type = $4`,
		sponsorID, title, description, string(accessType)).Scan(&n)
	s.observe("duplicate_exists", start, err)
	if err != nil {
		return false, fmt.Errorf("failed to check for duplicate filing: %w", err)
	}
	return n > 0, nil
}

func scanSponsorship(scan func(...interface{}) error) (Sponsorship, error) {
	var sp Sponsorship
	var accessType string
	approvals := map[Org]*struct {
		status     sql.NullString
		approvedBy sql.NullString
		approvedAt sql.NullTime
	}{}
	for _, org := range Orgs {
		approvals[org] = &struct {
			status     sql.NullString
			approvedBy sql.NullString
			approvedAt sql.NullTime
		}{}
	}

	err := scan(
		&sp.ID, &sp.UserID, &sp.SponsorID, &accessType, &sp.Title,
		&sp.Description, &sp.Employee, &sp.UserDescription, &sp.Expires,
		&sp.SignatureName, &sp.SignatureDate,
		&approvals[OrgKUH].status, &approvals[OrgKUH].approvedBy, &approvals[OrgKUH].approvedAt,
		&approvals[OrgUKP].status, &approvals[OrgUKP].approvedBy, &approvals[OrgUKP].approvedAt,
		&approvals[OrgKUMC].status, &approvals[OrgKUMC].approvedBy, &approvals[OrgKUMC].approvedAt,
		&sp.CreatedAt, &sp.UpdatedAt)
	if err != nil {
		return Sponsorship{}, err
	}

	sp.AccessType = AccessType(accessType)
	sp.Approvals = make(map[Org]OrgApproval, len(Orgs))
	for _, org := range Orgs {
		a := OrgApproval{}
		if approvals[org].status.Valid {
			status := Status(approvals[org].status.String)
			a.Status = &status
		}
		if approvals[org].approvedBy.Valid {
			by := approvals[org].approvedBy.String
			a.ApprovedBy = &by
		}
		if approvals[org].approvedAt.Valid {
			at := approvals[org].approvedAt.Time
			a.ApprovedAt = &at
		}
		sp.Approvals[org] = a
	}
	return sp, nil
}

// SponsorshipByID fetches one sponsorship row
func (s *SQLStore) SponsorshipByID(ctx context.Context, id string) (Sponsorship, error) {
	start := s.now()
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sponsorshipColumns+` FROM heron_sponsorship WHERE id = $1`, id)
	sp, err := scanSponsorship(row.Scan)
	s.observe("sponsorship_by_id", start, err)
	if err == sql.ErrNoRows {
		return Sponsorship{}, ErrNotFound
	}
	if err != nil {
		return Sponsorship{}, fmt.Errorf("failed to query sponsorship %s: %w", id, err)
	}
	return sp, nil
}

func (s *SQLStore) querySponsorships(ctx context.Context, op, query string, args ...interface{}) ([]Sponsorship, error) {
	start := s.now()
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		s.observe(op, start, err)
		return nil, fmt.Errorf("failed to query sponsorships: %w", err)
	}
	defer rows.Close()

	var out []Sponsorship
	for rows.Next() {
		sp, err := scanSponsorship(rows.Scan)
		if err != nil {
			s.observe(op, start, err)
			return nil, fmt.Errorf("failed to scan sponsorship: %w", err)
		}
		out = append(out, sp)
	}
	err = rows.Err()
	s.observe(op, start, err)
	if err != nil {
		return nil, fmt.Errorf("failed to read sponsorships: %w", err)
	}
	return out, nil
}

// PendingForOrg lists requests awaiting the org's review: the org's own
// status is absent or Deferred, and the request has not expired. Other
// orgs' decisions do not affect visibility.
func (s *SQLStore) PendingForOrg(ctx context.Context, org Org) ([]Sponsorship, error) {
	if !org.Valid() {
		return nil, fmt.Errorf("unknown org %q", org)
	}
	col := string(org) + "_status"
	query := `SELECT ` + sponsorshipColumns + `
		FROM heron_sponsorship
		WHERE (` + col + ` IS NULL OR ` + col + ` = $1)
		  AND (expires IS NULL OR expires > $2)
		ORDER BY created_at`
	return s.querySponsorships(ctx, "pending_for_org", query, string(StatusDeferred), s.now())
}

// ApplyDecision records one org's decision on one request and returns
// the post-decision row. The update and re-read share a transaction so
// the returned state reflects exactly this write.
func (s *SQLStore) ApplyDecision(ctx context.Context, id string, org Org, status Status, approvedBy string) (Sponsorship, error) {
	if !org.Valid() {
		return Sponsorship{}, fmt.Errorf("unknown org %q", org)
	}
	if !status.Valid() {
		return Sponsorship{}, fmt.Errorf("unknown status %q", status)
	}
	start := s.now()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Sponsorship{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	prefix := string(org)
	now := s.now()
	res, err := tx.ExecContext(ctx, `
		UPDATE heron_sponsorship
		SET `+prefix+`_status = $1, `+prefix+`_approved_by = $2,
		    `+prefix+`_approved_at = $3, updated_at = $4
		WHERE id = $5`,
		string(status), approvedBy, now, now, id)
	if err != nil {
		s.observe("apply_decision", start, err)
		return Sponsorship{}, fmt.Errorf("failed to apply decision: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		s.observe("apply_decision", start, ErrNotFound)
		return Sponsorship{}, ErrNotFound
	}

	row := tx.QueryRowContext(ctx,
		`SELECT `+sponsorshipColumns+` FROM heron_sponsorship WHERE id = $1`, id)
	sp, err := scanSponsorship(row.Scan)
	if err != nil {
		s.observe("apply_decision", start, err)
		return Sponsorship{}, fmt.Errorf("failed to re-read sponsorship: %w", err)
	}

	err = tx.Commit()
	s.observe("apply_decision", start, err)
	if err != nil {
		return Sponsorship{}, fmt.Errorf("failed to commit decision: %w", err)
	}
	return sp, nil
}

// ActiveSponsorships lists a user's unexpired, fully approved sponsorships
func (s *SQLStore) ActiveSponsorships(ctx context.Context, userID string) ([]Sponsorship, error) {
	query := `SELECT ` + sponsorshipColumns + `
		FROM heron_sponsorship
		WHERE user_id = $1
		  AND kuh_status = $2 AND ukp_status = $2 AND kumc_status = $2
		  AND (expires IS NULL OR expires > $3)
		ORDER BY created_at`
	return s.querySponsorships(ctx, "active_sponsorships", query,
		userID, string(StatusApproved), s.now())
}

// TerminateUser expires every live sponsorship of the user and appends
// exactly one history row. Running it again appends another history row
// but changes no sponsorship state.
func (s *SQLStore) TerminateUser(ctx context.Context, userID, reason, changedBy string) error {
	start := s.now()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := s.now()
	_, err = tx.ExecContext(ctx, `
		UPDATE heron_sponsorship
		SET expires = $1, updated_at = $1
		WHERE user_id = $2 AND (expires IS NULL OR expires > $1)`,
		now, userID)
	if err != nil {
		s.observe("terminate_user", start, err)
		return fmt.Errorf("failed to expire sponsorships: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO sponsorship_status_change_hist (id, user_id, change, reason, changed_by, changed_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		uuid.NewString(), userID, ChangeTerminate, reason, changedBy, now)
	if err != nil {
		s.observe("terminate_user", start, err)
		return fmt.Errorf("failed to append history: %w", err)
	}

	err = tx.Commit()
	s.observe("terminate_user", start, err)
	if err != nil {
		return fmt.Errorf("failed to commit termination: %w", err)
	}
	return nil
}

// AppendHistory appends one status-change record outside a termination,
// used by the expiration sweep.
func (s *SQLStore) AppendHistory(ctx context.Context, entry HistoryEntry) error {
	start := s.now()
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.ChangedAt.IsZero() {
		entry.ChangedAt = s.now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sponsorship_status_change_hist (id, user_id, change, reason, changed_by, changed_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		entry.ID, entry.UserID, entry.Change, entry.Reason, entry.ChangedBy, entry.ChangedAt)
	s.observe("append_history", start, err)
	if err != nil {
		return fmt.Errorf("failed to append history: %w", err)
	}
	return nil
}

// ExpireDue returns sponsorships whose expiration passed within the
// last day, for the expiration sweep's notifications.
func (s *SQLStore) ExpireDue(ctx context.Context, now time.Time) ([]Sponsorship, error) {
	query := `SELECT ` + sponsorshipColumns + `
		FROM heron_sponsorship
		WHERE expires IS NOT NULL AND expires <= $1 AND expires > $2
		ORDER BY expires`
	return s.querySponsorships(ctx, "expire_due", query, now, now.Add(-24*time.Hour))
}

// PendingOlderThan returns requests still awaiting any org's first
// decision after the given age, for reviewer reminders.
func (s *SQLStore) PendingOlderThan(ctx context.Context, age time.Duration) ([]Sponsorship, error) {
	cutoff := s.now().Add(-age)
	query := `SELECT ` + sponsorshipColumns + `
		FROM heron_sponsorship
		WHERE (kuh_status IS NULL OR ukp_status IS NULL OR kumc_status IS NULL)
		  AND (expires IS NULL OR expires > $1)
		  AND created_at < $2
		ORDER BY created_at`
	return s.querySponsorships(ctx, "pending_older_than", query, s.now(), cutoff)
}

// History lists a user's status-change records, oldest first
func (s *SQLStore) History(ctx context.Context, userID string) ([]HistoryEntry, error) {
	start := s.now()
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, change, reason, changed_by, changed_at
		FROM sponsorship_status_change_hist
		WHERE user_id = $1
		ORDER BY changed_at`, userID)
	if err != nil {
		s.observe("history", start, err)
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var out []HistoryEntry
	for rows.Next() {
		var h HistoryEntry
		if err := rows.Scan(&h.ID, &h.UserID, &h.Change, &h.Reason, &h.ChangedBy, &h.ChangedAt); err != nil {
			s.observe("history", start, err)
			return nil, fmt.Errorf("failed to scan history: %w", err)
		}
		out = append(out, h)
	}
	err = rows.Err()
	s.observe("history", start, err)
	if err != nil {
		return nil, fmt.Errorf("failed to read history: %w", err)
	}
	return out, nil
}

// ReviewerFor fetches the DROC roster entry for a user
func (s *SQLStore) ReviewerFor(ctx context.Context, userID string) (Reviewer, error) {
	start := s.now()
	var r Reviewer
	var org string
	err := s.db.QueryRowContext(ctx, `
		SELECT user_id, org, active FROM droc_reviewers WHERE user_id = $1`, userID).
		Scan(&r.UserID, &org, &r.Active)
	s.observe("reviewer_for", start, err)
	if err == sql.ErrNoRows {
		return Reviewer{}, ErrNotFound
	}
	if err != nil {
		return Reviewer{}, fmt.Errorf("failed to query reviewer: %w", err)
	}
	r.Org = Org(org)
	return r, nil
}

// ActiveReviewers lists the active DROC roster across all orgs
func (s *SQLStore) ActiveReviewers(ctx context.Context) ([]Reviewer, error) {
	start := s.now()
	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id, org, active FROM droc_reviewers WHERE active = $1 ORDER BY user_id`, true)
	if err != nil {
		s.observe("active_reviewers", start, err)
		return nil, fmt.Errorf("failed to query reviewers: %w", err)
	}
	defer rows.Close()

	var out []Reviewer
	for rows.Next() {
		var r Reviewer
		var org string
		if err := rows.Scan(&r.UserID, &org, &r.Active); err != nil {
			s.observe("active_reviewers", start, err)
			return nil, fmt.Errorf("failed to scan reviewer: %w", err)
		}
		r.Org = Org(org)
		out = append(out, r)
	}
	err = rows.Err()
	s.observe("active_reviewers", start, err)
	if err != nil {
		return nil, fmt.Errorf("failed to read reviewers: %w", err)
	}
	return out, nil
}

// IsExecutive reports membership in the executive sponsor group
func (s *SQLStore) IsExecutive(ctx context.Context, userID string) (bool, error) {
	start := s.now()
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM exec_group WHERE user_id = $1 AND active = $2`,
		userID, true).Scan(&n)
	s.observe("is_executive", start, err)
	if err != nil {
		return false, fmt.Errorf("failed to check executive roster: %w", err)
	}
	return n > 0, nil
}

// RegisterProjectUser upserts the user into the repository's project
// user table so the query tools recognize the account.
func (s *SQLStore) RegisterProjectUser(ctx context.Context, userID, fullName string) error {
	start := s.now()
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM project_users WHERE user_id = $1`, userID).Scan(&n)
	if err != nil {
		s.observe("register_project_user", start, err)
		return fmt.Errorf("failed to check project user: %w", err)
	}
	if n > 0 {
		_, err = s.db.ExecContext(ctx, `
			UPDATE project_users SET full_name = $1, registered_at = $2 WHERE user_id = $3`,
			fullName, s.now(), userID)
	} else {
		_, err = s.db.ExecContext(ctx, `
			INSERT INTO project_users (user_id, full_name, registered_at)
			VALUES ($1, $2, $3)`, userID, fullName, s.now())
	}
	s.observe("register_project_user", start, err)
	if err != nil {
		return fmt.Errorf("failed to register project user: %w", err)
	}
	return nil
}
