package lifecycle

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/pursuit/errors"
)

func TestUpsertRecordCreates(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	rec, created, err := store.UpsertRecord(ctx, testRecord("fp-create"), testBase)
	require.NoError(t, err)
	assert.True(t, created)

	assert.Equal(t, StatusDiscovered, rec.Status)
	assert.Equal(t, "acme", rec.Company)
	assert.Equal(t, "platform engineer", rec.Title)
	assert.Equal(t, "berlin", rec.Location)
	assert.Equal(t, "Europe/Berlin", rec.Region)
	assert.Equal(t, testBase, rec.CreatedAt)
	assert.Equal(t, testBase, rec.UpdatedAt)
	assert.Equal(t, 0, rec.FollowUpCount)
	assert.False(t, rec.InterviewRequested)
	assert.Nil(t, rec.Requirements)
	assert.Nil(t, rec.SentMessageID)
	assert.Nil(t, rec.ClosedReason)

	require.Len(t, rec.Sources, 1)
	assert.Equal(t, "hn", rec.Sources[0].Platform)
	assert.Equal(t, "hn-fp-create", rec.Sources[0].SourceID)
	assert.Equal(t, testBase, rec.Sources[0].DiscoveredAt)
}

func TestUpsertRecordMergeFillsOnlyEmptyFields(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	first := testRecord("fp-merge")
	first.Description = ""
	first.Region = ""
	_, created, err := store.UpsertRecord(ctx, first, testBase)
	require.NoError(t, err)
	require.True(t, created)

	// Second sighting arrives with a description, a region, and a
	// different location.
	second := testRecord("fp-merge")
	second.Description = "Full posting text."
	second.Location = "munich"
	second.Sources = []JobSource{{Platform: "ln", SourceID: "ln-1"}}

	later := testBase.Add(time.Hour)
	merged, created, err := store.UpsertRecord(ctx, second, later)
	require.NoError(t, err)
	assert.False(t, created)

	assert.Equal(t, "Full posting text.", merged.Description, "empty field filled")
	assert.Equal(t, "Europe/Berlin", merged.Region)
	assert.Equal(t, "berlin", merged.Location, "existing value kept")
	assert.Equal(t, testBase, merged.CreatedAt)
	assert.Equal(t, later, merged.UpdatedAt)
	assert.Len(t, merged.Sources, 2)

	// A third sighting that adds nothing leaves updated_at alone.
	third := testRecord("fp-merge")
	third.Description = "Different text for a field that is already set."
	third.Sources = nil
	unchanged, created, err := store.UpsertRecord(ctx, third, later.Add(time.Hour))
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, "Full posting text.", unchanged.Description)
	assert.Equal(t, later, unchanged.UpdatedAt)
}

func TestUpsertRecordMergesBoardsIntoOneRecord(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	for i, platform := range []string{"hn", "ln", "indeed"} {
		rec := testRecord("fp-boards")
		rec.Sources = []JobSource{{Platform: platform, SourceID: platform + "-77"}}
		_, created, err := store.UpsertRecord(ctx, rec, testBase.Add(time.Duration(i)*time.Minute))
		require.NoError(t, err)
		assert.Equal(t, i == 0, created)
	}

	rec, err := store.GetRecord(ctx, "fp-boards")
	require.NoError(t, err)
	require.Len(t, rec.Sources, 3)
	assert.Equal(t, "hn", rec.Sources[0].Platform, "first sighting first")
	assert.Equal(t, testBase, rec.CreatedAt)

	all, err := store.ListByStatus(ctx, "", 10)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestUpsertRecordSameSourceTwice(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	createRecord(t, store, "fp-dup", testBase)
	rec, created, err := store.UpsertRecord(ctx, testRecord("fp-dup"), testBase.Add(time.Minute))
	require.NoError(t, err)
	assert.False(t, created)
	require.Len(t, rec.Sources, 1)
	assert.Equal(t, testBase, rec.Sources[0].DiscoveredAt, "first sighting wins")
}

func TestUpsertRecordRequiresFingerprint(t *testing.T) {
	store, _ := newTestStore(t)

	_, _, err := store.UpsertRecord(context.Background(), testRecord(""), testBase)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fingerprint")
}

func TestGetRecordMissing(t *testing.T) {
	store, _ := newTestStore(t)

	_, err := store.GetRecord(context.Background(), "fp-ghost")
	require.Error(t, err)
	assert.True(t, errors.IsNotFoundError(err))
	assert.Contains(t, err.Error(), "no record")
}

func TestResolveFingerprint(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	createRecord(t, store, "aabbccdd11223344", testBase)
	createRecord(t, store, "aabbff0099887766", testBase)

	t.Run("unambiguous prefix resolves", func(t *testing.T) {
		fp, err := store.ResolveFingerprint(ctx, "aabbcc")
		require.NoError(t, err)
		assert.Equal(t, "aabbccdd11223344", fp)
	})

	t.Run("full fingerprint resolves to itself", func(t *testing.T) {
		fp, err := store.ResolveFingerprint(ctx, "aabbff0099887766")
		require.NoError(t, err)
		assert.Equal(t, "aabbff0099887766", fp)
	})

	t.Run("shared prefix is ambiguous", func(t *testing.T) {
		_, err := store.ResolveFingerprint(ctx, "aabb")
		require.Error(t, err)
		assert.True(t, errors.IsInvalidRequestError(err))
	})

	t.Run("unknown prefix is not found", func(t *testing.T) {
		_, err := store.ResolveFingerprint(ctx, "ffff")
		require.Error(t, err)
		assert.True(t, errors.IsNotFoundError(err))
	})

	t.Run("empty prefix rejected", func(t *testing.T) {
		_, err := store.ResolveFingerprint(ctx, "")
		require.Error(t, err)
	})
}

func TestListByStatus(t *testing.T) {
	store, db := newTestStore(t)
	ctx := context.Background()

	createRecord(t, store, "fp-a", testBase)
	createRecord(t, store, "fp-b", testBase)
	createRecord(t, store, "fp-c", testBase)
	setStatus(t, db, "fp-a", StatusApplied, testBase.Add(time.Minute))
	setStatus(t, db, "fp-b", StatusApplied, testBase.Add(2*time.Minute))

	applied, err := store.ListByStatus(ctx, StatusApplied, 10)
	require.NoError(t, err)
	require.Len(t, applied, 2)
	assert.Equal(t, "fp-b", applied[0].Fingerprint, "newest update first")
	assert.Equal(t, "fp-a", applied[1].Fingerprint)

	all, err := store.ListByStatus(ctx, "", 10)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	capped, err := store.ListByStatus(ctx, "", 2)
	require.NoError(t, err)
	assert.Len(t, capped, 2)
}

func TestStatusCounts(t *testing.T) {
	store, db := newTestStore(t)

	createRecord(t, store, "fp-d1", testBase)
	createRecord(t, store, "fp-d2", testBase)
	createRecord(t, store, "fp-f", testBase)
	setStatus(t, db, "fp-f", StatusFailed, testBase)

	counts, err := store.StatusCounts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, counts[StatusDiscovered])
	assert.Equal(t, 1, counts[StatusFailed])
	assert.Equal(t, 0, counts[StatusClosed])
}

func TestDueRecordsOldestFirst(t *testing.T) {
	store, db := newTestStore(t)
	ctx := context.Background()

	for _, fp := range []string{"fp-new", "fp-old", "fp-mid"} {
		createRecord(t, store, fp, testBase)
	}
	setStatus(t, db, "fp-old", StatusDiscovered, testBase.Add(-3*time.Hour))
	setStatus(t, db, "fp-mid", StatusDiscovered, testBase.Add(-2*time.Hour))
	setStatus(t, db, "fp-new", StatusDiscovered, testBase.Add(-time.Hour))

	due, err := store.DueRecords(ctx, stageDef(t, StageExtract), testBase, 10, DueGuards{})
	require.NoError(t, err)
	require.Len(t, due, 3)
	assert.Equal(t, "fp-old", due[0].Fingerprint)
	assert.Equal(t, "fp-mid", due[1].Fingerprint)
	assert.Equal(t, "fp-new", due[2].Fingerprint)
}

func TestDueRecordsCursorGating(t *testing.T) {
	store, db := newTestStore(t)
	ctx := context.Background()

	createRecord(t, store, "fp-fresh", testBase)   // no cursor, due now
	createRecord(t, store, "fp-waiting", testBase) // backoff still running
	createRecord(t, store, "fp-ready", testBase)   // backoff expired
	armCursor(t, db, "fp-waiting", StageExtract, 1, testBase.Add(time.Hour))
	armCursor(t, db, "fp-ready", StageExtract, 1, testBase.Add(-2*time.Hour))

	due, err := store.DueRecords(ctx, stageDef(t, StageExtract), testBase, 10, DueGuards{})
	require.NoError(t, err)
	require.Len(t, due, 2)
	assert.Equal(t, "fp-ready", due[0].Fingerprint, "expired backoff sorts by its cursor time")
	assert.Equal(t, "fp-fresh", due[1].Fingerprint)
}

func TestDueRecordsSelfLoopNeedsArmedCursor(t *testing.T) {
	store, db := newTestStore(t)
	ctx := context.Background()

	for _, fp := range []string{"fp-noarm", "fp-null", "fp-armed"} {
		createRecord(t, store, fp, testBase)
		setStatus(t, db, fp, StatusAwaitingResponse, testBase)
	}
	mustExec(t, db, `
		INSERT INTO stage_cursors (fingerprint, stage, retry_count, next_run_at, updated_at)
		VALUES ('fp-null', 'follow_up', 0, NULL, ?)`, formatTime(testBase))
	armCursor(t, db, "fp-armed", StageFollowUp, 0, testBase.Add(-time.Minute))

	due, err := store.DueRecords(ctx, stageDef(t, StageFollowUp), testBase, 10, DueGuards{MaxFollowUps: 2})
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, "fp-armed", due[0].Fingerprint)
}

func TestDueRecordsFollowUpCeiling(t *testing.T) {
	store, db := newTestStore(t)
	ctx := context.Background()

	for _, fp := range []string{"fp-room", "fp-capped"} {
		createRecord(t, store, fp, testBase)
		setStatus(t, db, fp, StatusAwaitingResponse, testBase)
		armCursor(t, db, fp, StageFollowUp, 0, testBase.Add(-time.Minute))
	}
	mustExec(t, db, "UPDATE job_records SET follow_up_count = 2 WHERE fingerprint = 'fp-capped'")

	due, err := store.DueRecords(ctx, stageDef(t, StageFollowUp), testBase, 10, DueGuards{MaxFollowUps: 2})
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, "fp-room", due[0].Fingerprint)
}

func TestDueRecordsScheduleNeedsInterviewRequest(t *testing.T) {
	store, db := newTestStore(t)
	ctx := context.Background()

	for _, fp := range []string{"fp-asked", "fp-silent"} {
		createRecord(t, store, fp, testBase)
		setStatus(t, db, fp, StatusAwaitingResponse, testBase)
	}
	mustExec(t, db, "UPDATE job_records SET interview_requested = 1 WHERE fingerprint = 'fp-asked'")

	def := stageDef(t, StageSchedule)

	due, err := store.DueRecords(ctx, def, testBase, 10, DueGuards{RequireInterviewFlag: true})
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, "fp-asked", due[0].Fingerprint)

	// Without response monitoring the flag can never be set, so the
	// guard is lifted.
	due, err = store.DueRecords(ctx, def, testBase, 10, DueGuards{})
	require.NoError(t, err)
	assert.Len(t, due, 2)
}

func TestDueRecordsCloseNeedsElapsedInterview(t *testing.T) {
	store, db := newTestStore(t)
	ctx := context.Background()

	for _, fp := range []string{"fp-unbooked", "fp-upcoming", "fp-done"} {
		createRecord(t, store, fp, testBase)
		setStatus(t, db, fp, StatusInterviewScheduled, testBase)
	}
	mustExec(t, db, "UPDATE job_records SET interview_end = ? WHERE fingerprint = 'fp-upcoming'",
		formatTime(testBase.Add(time.Hour)))
	mustExec(t, db, "UPDATE job_records SET interview_end = ? WHERE fingerprint = 'fp-done'",
		formatTime(testBase.Add(-time.Hour)))

	due, err := store.DueRecords(ctx, stageDef(t, StageClose), testBase, 10, DueGuards{})
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, "fp-done", due[0].Fingerprint)
}

func TestDueRecordsSkipsLeasedRecords(t *testing.T) {
	store, db := newTestStore(t)
	ctx := context.Background()

	createRecord(t, store, "fp-free", testBase)
	createRecord(t, store, "fp-held", testBase)
	mustExec(t, db, "INSERT INTO leases (fingerprint, holder, acquired_at) VALUES (?, ?, ?)",
		"fp-held", "worker-1", formatTime(testBase))

	due, err := store.DueRecords(ctx, stageDef(t, StageExtract), testBase, 10, DueGuards{})
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, "fp-free", due[0].Fingerprint)
}

func TestDueRecordsLimit(t *testing.T) {
	store, db := newTestStore(t)
	ctx := context.Background()

	for i, fp := range []string{"fp-1", "fp-2", "fp-3"} {
		createRecord(t, store, fp, testBase)
		setStatus(t, db, fp, StatusDiscovered, testBase.Add(time.Duration(i-3)*time.Minute))
	}

	due, err := store.DueRecords(ctx, stageDef(t, StageExtract), testBase, 2, DueGuards{})
	require.NoError(t, err)
	require.Len(t, due, 2)
	assert.Equal(t, "fp-1", due[0].Fingerprint)
	assert.Equal(t, "fp-2", due[1].Fingerprint)
}

func TestCursorReadback(t *testing.T) {
	store, db := newTestStore(t)
	ctx := context.Background()

	createRecord(t, store, "fp-cur", testBase)

	missing, err := store.Cursor(ctx, "fp-cur", StageExtract)
	require.NoError(t, err)
	assert.Nil(t, missing)

	armCursor(t, db, "fp-cur", StageExtract, 3, testBase.Add(5*time.Minute))
	c, err := store.Cursor(ctx, "fp-cur", StageExtract)
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.Equal(t, 3, c.RetryCount)
	assert.Equal(t, testBase.Add(5*time.Minute), c.NextRunAt)
}

func TestAttemptsOrderedByEnd(t *testing.T) {
	store, db := newTestStore(t)
	ctx := context.Background()

	createRecord(t, store, "fp-hist", testBase)
	insert := func(id string, endedAt time.Time, outcome Outcome, errText interface{}) {
		mustExec(t, db, `
			INSERT INTO stage_attempts (id, fingerprint, stage, started_at, ended_at, outcome, detail, error)
			VALUES (?, 'fp-hist', 'extract', ?, ?, ?, '', ?)`,
			id, formatTime(endedAt), formatTime(endedAt), string(outcome), errText)
	}
	insert("att-c", testBase.Add(2*time.Second), OutcomeSuccess, nil)
	insert("att-a", testBase, OutcomeRetryable, "connection reset")
	insert("att-b", testBase.Add(time.Second), OutcomeRetryable, "connection reset")

	attempts, err := store.Attempts(ctx, "fp-hist")
	require.NoError(t, err)
	require.Len(t, attempts, 3)
	assert.Equal(t, "att-a", attempts[0].ID)
	assert.Equal(t, "att-b", attempts[1].ID)
	assert.Equal(t, "att-c", attempts[2].ID)
	assert.Equal(t, "connection reset", attempts[0].Error)
	assert.Empty(t, attempts[2].Error, "null error reads back empty")
}
