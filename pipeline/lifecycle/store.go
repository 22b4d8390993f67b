package lifecycle

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/teranos/pursuit/errors"
)

// Store persists job records, sources, attempts and cursors. All
// timestamps are stored as RFC3339 UTC text so lexicographic comparison
// in SQL matches chronological order.
type Store struct {
	db *sql.DB
}

// NewStore creates a lifecycle store backed by db.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// UpsertRecord is the dedup write path: an unseen fingerprint creates the
// record in StatusDiscovered with its sources; a seen fingerprint merges
// new source rows and fills empty fields, never touching status, history,
// or fields that already have values. Returns the stored record and
// whether it was created.
func (s *Store) UpsertRecord(ctx context.Context, rec *JobRecord, now time.Time) (*JobRecord, bool, error) {
	if rec.Fingerprint == "" {
		return nil, false, errors.New("record missing fingerprint")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, errors.Wrap(err, "begin upsert")
	}

	existing := &JobRecord{}
	row := tx.QueryRow("SELECT "+recordSelectColumns+" FROM job_records WHERE fingerprint = ?", rec.Fingerprint)
	scanErr := scanRecordFromRow(row, existing)

	created := false
	switch {
	case scanErr == sql.ErrNoRows:
		created = true
		_, err = tx.Exec(`
			INSERT INTO job_records (fingerprint, company, title, location, region, description, status, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			rec.Fingerprint,
			rec.Company,
			rec.Title,
			rec.Location,
			rec.Region,
			rec.Description,
			string(StatusDiscovered),
			formatTime(now),
			formatTime(now),
		)
		if err != nil {
			tx.Rollback()
			return nil, false, errors.Wrapf(err, "insert record %s", rec.Fingerprint)
		}

	case scanErr != nil:
		tx.Rollback()
		return nil, false, errors.Wrapf(scanErr, "read record %s", rec.Fingerprint)

	default:
		// Merge: fill fields the stored record is missing.
		var sets []string
		var args []interface{}
		if existing.Description == "" && rec.Description != "" {
			sets = append(sets, "description = ?")
			args = append(args, rec.Description)
		}
		if existing.Location == "" && rec.Location != "" {
			sets = append(sets, "location = ?")
			args = append(args, rec.Location)
		}
		if existing.Region == "" && rec.Region != "" {
			sets = append(sets, "region = ?")
			args = append(args, rec.Region)
		}
		if len(sets) > 0 {
			sets = append(sets, "updated_at = ?")
			args = append(args, formatTime(now), rec.Fingerprint)
			_, err = tx.Exec("UPDATE job_records SET "+strings.Join(sets, ", ")+" WHERE fingerprint = ?", args...)
			if err != nil {
				tx.Rollback()
				return nil, false, errors.Wrapf(err, "merge record %s", rec.Fingerprint)
			}
		}
	}

	for _, src := range rec.Sources {
		discoveredAt := src.DiscoveredAt
		if discoveredAt.IsZero() {
			discoveredAt = now
		}
		_, err = tx.Exec(`
			INSERT OR IGNORE INTO job_sources (fingerprint, platform, source_id, url, discovered_at)
			VALUES (?, ?, ?, ?, ?)`,
			rec.Fingerprint,
			src.Platform,
			src.SourceID,
			src.URL,
			formatTime(discoveredAt),
		)
		if err != nil {
			tx.Rollback()
			return nil, false, errors.Wrapf(err, "insert source %s/%s", src.Platform, src.SourceID)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, false, errors.Wrap(err, "commit upsert")
	}

	stored, err := s.GetRecord(ctx, rec.Fingerprint)
	if err != nil {
		return nil, false, err
	}
	return stored, created, nil
}

// GetRecord loads one record with its sources.
func (s *Store) GetRecord(ctx context.Context, fingerprint string) (*JobRecord, error) {
	rec := &JobRecord{}
	row := s.db.QueryRowContext(ctx,
		"SELECT "+recordSelectColumns+" FROM job_records WHERE fingerprint = ?", fingerprint)
	if err := scanRecordFromRow(row, rec); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NewNotFoundError("no record with fingerprint %s", fingerprint)
		}
		return nil, errors.Wrapf(err, "read record %s", fingerprint)
	}

	sources, err := s.recordSources(ctx, fingerprint)
	if err != nil {
		return nil, err
	}
	rec.Sources = sources
	return rec, nil
}

// ResolveFingerprint expands a fingerprint prefix (as printed in tables
// and logs) to the full fingerprint. Ambiguous or unknown prefixes are
// errors; records are never addressed by a guess.
func (s *Store) ResolveFingerprint(ctx context.Context, prefix string) (string, error) {
	if prefix == "" {
		return "", errors.New("empty fingerprint")
	}
	rows, err := s.db.QueryContext(ctx,
		"SELECT fingerprint FROM job_records WHERE fingerprint LIKE ? LIMIT 2", prefix+"%")
	if err != nil {
		return "", errors.Wrapf(err, "resolve fingerprint %s", prefix)
	}
	defer rows.Close()

	var matches []string
	for rows.Next() {
		var fp string
		if err := rows.Scan(&fp); err != nil {
			return "", errors.Wrap(err, "scan fingerprint")
		}
		matches = append(matches, fp)
	}
	if err := rows.Err(); err != nil {
		return "", errors.Wrap(err, "iterate fingerprints")
	}

	switch len(matches) {
	case 0:
		return "", errors.NewNotFoundError("no record matches fingerprint %s", prefix)
	case 1:
		return matches[0], nil
	default:
		return "", errors.NewInvalidRequestError("fingerprint %s is ambiguous, use more characters", prefix)
	}
}

// ListByStatus returns records in the given status ordered by last update,
// newest first. An empty status lists every record.
func (s *Store) ListByStatus(ctx context.Context, status Status, limit int) ([]*JobRecord, error) {
	query := "SELECT " + recordSelectColumns + " FROM job_records"
	var args []interface{}
	if status != "" {
		query += " WHERE status = ?"
		args = append(args, string(status))
	}
	query += " ORDER BY updated_at DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "list records")
	}
	defer rows.Close()
	return scanRecords(rows, "records by status")
}

// StatusCounts returns how many records sit in each status.
func (s *Store) StatusCounts(ctx context.Context) (map[Status]int, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT status, COUNT(*) FROM job_records GROUP BY status")
	if err != nil {
		return nil, errors.Wrap(err, "count statuses")
	}
	defer rows.Close()

	counts := make(map[Status]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, errors.Wrap(err, "scan status count")
		}
		counts[Status(status)] = n
	}
	return counts, rows.Err()
}

// DueGuards carries the config-driven eligibility limits DueRecords
// applies on top of the stage table.
type DueGuards struct {
	// MaxFollowUps caps follow_up dispatch; records at the ceiling wait
	// for a response or the stale sweep.
	MaxFollowUps int

	// RequireInterviewFlag holds the schedule stage until check_response
	// has seen an interview request. Set when response monitoring is
	// enabled; without monitoring the flag would never be set.
	RequireInterviewFlag bool
}

// DueRecords returns records eligible for the stage right now: status
// matches the precondition, the stage cursor allows it, no lease is held,
// oldest eligibility first.
//
// Self-loop stages (follow_up, check_response) require an armed cursor —
// they fire on the rhythm Advance sets, not on record creation. Advancing
// stages treat a missing cursor as due immediately.
func (s *Store) DueRecords(ctx context.Context, def StageDef, now time.Time, limit int, g DueGuards) ([]*JobRecord, error) {
	conditions := []string{
		"r.status = ?",
		"NOT EXISTS (SELECT 1 FROM leases l WHERE l.fingerprint = r.fingerprint)",
	}
	args := []interface{}{def.Name, string(def.Precondition)}

	if def.SelfLoop() {
		conditions = append(conditions, "c.next_run_at IS NOT NULL AND c.next_run_at <= ?")
	} else {
		conditions = append(conditions, "(c.next_run_at IS NULL OR c.next_run_at <= ?)")
	}
	args = append(args, formatTime(now))

	switch def.Name {
	case StageFollowUp:
		conditions = append(conditions, "r.follow_up_count < ?")
		args = append(args, g.MaxFollowUps)
	case StageSchedule:
		if g.RequireInterviewFlag {
			conditions = append(conditions, "r.interview_requested = 1")
		}
	case StageClose:
		conditions = append(conditions, "r.interview_end IS NOT NULL AND r.interview_end <= ?")
		args = append(args, formatTime(now))
	}

	args = append(args, limit)
	query := `
		SELECT ` + prefixedRecordColumns("r") + `
		FROM job_records r
		LEFT JOIN stage_cursors c ON c.fingerprint = r.fingerprint AND c.stage = ?
		WHERE ` + strings.Join(conditions, "\n		  AND ") + `
		ORDER BY COALESCE(c.next_run_at, r.updated_at) ASC
		LIMIT ?`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrapf(err, "query due records for %s", def.Name)
	}
	defer rows.Close()
	return scanRecords(rows, "due records")
}

// Attempts returns the full transition history for a record, oldest first.
func (s *Store) Attempts(ctx context.Context, fingerprint string) ([]StageAttempt, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, fingerprint, stage, started_at, ended_at, outcome, detail, error
		FROM stage_attempts
		WHERE fingerprint = ?
		ORDER BY ended_at ASC, id ASC`, fingerprint)
	if err != nil {
		return nil, errors.Wrapf(err, "query attempts for %s", fingerprint)
	}
	defer rows.Close()

	var attempts []StageAttempt
	for rows.Next() {
		var a StageAttempt
		var startedAt, endedAt string
		var errMsg sql.NullString
		if err := rows.Scan(&a.ID, &a.Fingerprint, &a.Stage, &startedAt, &endedAt, &a.Outcome, &a.Detail, &errMsg); err != nil {
			return nil, errors.Wrap(err, "scan attempt")
		}
		if a.StartedAt, err = time.Parse(time.RFC3339, startedAt); err != nil {
			return nil, errors.Wrapf(err, "parse started_at for attempt %s", a.ID)
		}
		if a.EndedAt, err = time.Parse(time.RFC3339, endedAt); err != nil {
			return nil, errors.Wrapf(err, "parse ended_at for attempt %s", a.ID)
		}
		if errMsg.Valid {
			a.Error = errMsg.String
		}
		attempts = append(attempts, a)
	}
	return attempts, rows.Err()
}

// Cursor returns the retry state for (record, stage), or nil when the
// stage has never armed or failed for this record.
func (s *Store) Cursor(ctx context.Context, fingerprint, stage string) (*StageCursor, error) {
	var c StageCursor
	var nextRunAt sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT fingerprint, stage, retry_count, next_run_at
		FROM stage_cursors
		WHERE fingerprint = ? AND stage = ?`, fingerprint, stage).
		Scan(&c.Fingerprint, &c.Stage, &c.RetryCount, &nextRunAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "read cursor %s/%s", fingerprint, stage)
	}
	if nextRunAt.Valid {
		t, err := time.Parse(time.RFC3339, nextRunAt.String)
		if err != nil {
			return nil, errors.Wrapf(err, "parse next_run_at for cursor %s/%s", fingerprint, stage)
		}
		c.NextRunAt = t
	}
	return &c, nil
}

// recordSources loads the source rows for one record, oldest sighting first.
func (s *Store) recordSources(ctx context.Context, fingerprint string) ([]JobSource, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT platform, source_id, url, discovered_at
		FROM job_sources
		WHERE fingerprint = ?
		ORDER BY discovered_at ASC, platform ASC`, fingerprint)
	if err != nil {
		return nil, errors.Wrapf(err, "query sources for %s", fingerprint)
	}
	defer rows.Close()

	var sources []JobSource
	for rows.Next() {
		var src JobSource
		var discoveredAt string
		if err := rows.Scan(&src.Platform, &src.SourceID, &src.URL, &discoveredAt); err != nil {
			return nil, errors.Wrap(err, "scan source")
		}
		if src.DiscoveredAt, err = time.Parse(time.RFC3339, discoveredAt); err != nil {
			return nil, errors.Wrapf(err, "parse discovered_at for %s/%s", src.Platform, src.SourceID)
		}
		sources = append(sources, src)
	}
	return sources, rows.Err()
}

// insertAttempt appends one attempt row inside the caller's transaction.
func insertAttempt(tx *sql.Tx, a *StageAttempt) error {
	var errMsg interface{}
	if a.Error != "" {
		errMsg = a.Error
	}
	_, err := tx.Exec(`
		INSERT INTO stage_attempts (id, fingerprint, stage, started_at, ended_at, outcome, detail, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID,
		a.Fingerprint,
		a.Stage,
		formatTime(a.StartedAt),
		formatTime(a.EndedAt),
		string(a.Outcome),
		a.Detail,
		errMsg,
	)
	if err != nil {
		return errors.Wrapf(err, "insert attempt for %s/%s", a.Fingerprint, a.Stage)
	}
	return nil
}

// upsertCursor sets the retry state for (record, stage).
func upsertCursor(tx *sql.Tx, fingerprint, stage string, retryCount int, nextRunAt, now time.Time) error {
	_, err := tx.Exec(`
		INSERT INTO stage_cursors (fingerprint, stage, retry_count, next_run_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(fingerprint, stage) DO UPDATE SET
			retry_count = excluded.retry_count,
			next_run_at = excluded.next_run_at,
			updated_at = excluded.updated_at`,
		fingerprint, stage, retryCount, formatTime(nextRunAt), formatTime(now))
	if err != nil {
		return errors.Wrapf(err, "upsert cursor %s/%s", fingerprint, stage)
	}
	return nil
}

// deleteCursor clears the retry state for (record, stage).
func deleteCursor(tx *sql.Tx, fingerprint, stage string) error {
	if _, err := tx.Exec("DELETE FROM stage_cursors WHERE fingerprint = ? AND stage = ?", fingerprint, stage); err != nil {
		return errors.Wrapf(err, "delete cursor %s/%s", fingerprint, stage)
	}
	return nil
}

// prefixedRecordColumns qualifies the canonical column list with a table
// alias for joined queries.
func prefixedRecordColumns(alias string) string {
	cols := strings.Split(recordSelectColumns, ",")
	for i, col := range cols {
		cols[i] = alias + "." + strings.TrimSpace(col)
	}
	return strings.Join(cols, ", ")
}

// formatTime is the single serialization point for timestamps.
func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
