package lifecycle

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"

	pursuittest "github.com/teranos/pursuit/internal/testing"
)

// testBase is the fixed reference time for lifecycle tests. Stored
// timestamps carry second precision, so it is a whole second.
var testBase = time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T) (*Store, *sql.DB) {
	t.Helper()
	db := pursuittest.CreateMigratedTestDB(t)
	return NewStore(db), db
}

// testRecord returns a minimal record ready for UpsertRecord. Each
// fingerprint gets its own source row so records never collide on the
// (platform, source_id) key.
func testRecord(fp string) *JobRecord {
	return &JobRecord{
		Fingerprint: fp,
		Company:     "acme",
		Title:       "platform engineer",
		Location:    "berlin",
		Region:      "Europe/Berlin",
		Description: "Ship the pipeline.",
		Sources: []JobSource{{
			Platform: "hn",
			SourceID: "hn-" + fp,
			URL:      "https://boards.example.com/" + fp,
		}},
	}
}

// createRecord inserts a fresh record at ts and fails the test on error.
func createRecord(t *testing.T, store *Store, fp string, ts time.Time) *JobRecord {
	t.Helper()
	rec, created, err := store.UpsertRecord(context.Background(), testRecord(fp), ts)
	require.NoError(t, err)
	require.True(t, created)
	return rec
}

// mustExec runs one statement against the raw handle; tests use it to put
// rows into states the public API refuses to produce directly.
func mustExec(t *testing.T, db *sql.DB, query string, args ...interface{}) {
	t.Helper()
	_, err := db.Exec(query, args...)
	require.NoError(t, err)
}

// setStatus forces a record's status and updated_at.
func setStatus(t *testing.T, db *sql.DB, fp string, status Status, updatedAt time.Time) {
	t.Helper()
	mustExec(t, db, "UPDATE job_records SET status = ?, updated_at = ? WHERE fingerprint = ?",
		string(status), formatTime(updatedAt), fp)
}

// armCursor plants retry state for (record, stage).
func armCursor(t *testing.T, db *sql.DB, fp, stage string, retryCount int, nextRunAt time.Time) {
	t.Helper()
	mustExec(t, db, `
		INSERT INTO stage_cursors (fingerprint, stage, retry_count, next_run_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(fingerprint, stage) DO UPDATE SET
			retry_count = excluded.retry_count,
			next_run_at = excluded.next_run_at`,
		fp, stage, retryCount, formatTime(nextRunAt), formatTime(nextRunAt))
}

// stageDef resolves a stage name or fails the test.
func stageDef(t *testing.T, name string) StageDef {
	t.Helper()
	def, err := StageByName(name)
	require.NoError(t, err)
	return def
}
