package pipeline

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/teranos/pursuit/am"
	"github.com/teranos/pursuit/errors"
	pursuittest "github.com/teranos/pursuit/internal/testing"
	"github.com/teranos/pursuit/pipeline/calendar"
	"github.com/teranos/pursuit/pipeline/collab"
	"github.com/teranos/pursuit/pipeline/dedup"
	"github.com/teranos/pursuit/pipeline/gate"
	"github.com/teranos/pursuit/pipeline/lifecycle"
	"github.com/teranos/pursuit/testutil"
)

// pipeBase is noon on a Monday so interview slots proposed for "tomorrow"
// land inside a plain workday.
var pipeBase = time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)

func testPipelineConfig() *am.Config {
	return &am.Config{
		Pipeline: am.PipelineConfig{
			Workers:             2,
			TickIntervalSeconds: 60,
			LeaseGraceSeconds:   900,
			StaleAfterDays:      30,
		},
		Scheduling: am.SchedulingConfig{Timezone: "UTC"},
		FollowUp:   am.FollowUpConfig{Days: 5, Max: 2},
		Responses:  am.ResponsesConfig{Enabled: true, PollIntervalMinutes: 60},
	}
}

// testServices is one wired fake collaborator set with handles the test
// can script and inspect.
type testServices struct {
	Collaborators
	extractor *collab.FakeExtractor
	mail      *collab.FakeMail
	inbox     *collab.FakeInbox
	calendar  *collab.FakeCalendar
}

func newTestServices(commitments ...calendar.Commitment) *testServices {
	extractor := &collab.FakeExtractor{MalformedToken: "GARBLED"}
	mail := &collab.FakeMail{}
	inbox := collab.NewFakeInbox()
	cal := collab.NewFakeCalendar(commitments...)
	return &testServices{
		Collaborators: Collaborators{
			Extractor: extractor,
			Composer:  &collab.FakeComposer{},
			Mail:      mail,
			Calendar:  cal,
			Inbox:     inbox,
		},
		extractor: extractor,
		mail:      mail,
		inbox:     inbox,
		calendar:  cal,
	}
}

// newTestPipeline builds an orchestrator over a migrated database and
// swaps every internal clock for one the test controls.
func newTestPipeline(t *testing.T, cfg *am.Config, services Collaborators) (*Orchestrator, *testutil.Clock, *sql.DB) {
	t.Helper()
	db := pursuittest.CreateMigratedTestDB(t)
	clock := testutil.NewClock(pipeBase)
	log := zap.NewNop().Sugar()

	orch, err := NewOrchestrator(db, cfg, services, log)
	require.NoError(t, err)

	orch.timeNow = clock.Now
	orch.machine = lifecycle.NewMachineWithClock(orch.store, lifecycle.MachineConfig{
		FollowUpDelay:    time.Duration(cfg.FollowUp.Days) * 24 * time.Hour,
		MaxFollowUps:     cfg.FollowUp.Max,
		ResponsePoll:     time.Duration(cfg.Responses.PollIntervalMinutes) * time.Minute,
		ResponsesEnabled: cfg.Responses.Enabled,
		StaleAfter:       time.Duration(cfg.Pipeline.StaleAfterDays) * 24 * time.Hour,
	}, log, clock.Now)
	orch.gate = gate.NewGateWithClock(cfg, gate.NewStore(db), log, clock.Now)
	return orch, clock, db
}

func seedPosting(t *testing.T, orch *Orchestrator, raw collab.RawPosting) string {
	t.Helper()
	d := dedup.NewDeduper(orch.machine, zap.NewNop().Sugar())
	rec, created, err := d.Upsert(context.Background(), raw)
	require.NoError(t, err)
	require.True(t, created)
	return rec.Fingerprint
}

func getRecord(t *testing.T, orch *Orchestrator, fp string) *lifecycle.JobRecord {
	t.Helper()
	rec, err := orch.store.GetRecord(context.Background(), fp)
	require.NoError(t, err)
	return rec
}

func TestTickDrivesDiscoveredRecordToAwaitingResponse(t *testing.T) {
	services := newTestServices()
	orch, _, _ := newTestPipeline(t, testPipelineConfig(), services.Collaborators)
	ctx := context.Background()

	fp := seedPosting(t, orch, testutil.Posting("hn", "Acme", "Platform Engineer"))

	// Stages drain in declared order, so one tick carries the record
	// through extract, compose and send.
	require.NoError(t, orch.Tick(ctx))

	rec := getRecord(t, orch, fp)
	assert.Equal(t, lifecycle.StatusAwaitingResponse, rec.Status)
	require.NotNil(t, rec.Contact)
	assert.Equal(t, "careers@example.com", *rec.Contact)
	require.NotNil(t, rec.DraftSubject)
	require.NotNil(t, rec.SentMessageID)

	sent := services.mail.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "careers@example.com", sent[0].To)
	assert.Equal(t, 1, services.extractor.Calls())

	attempts, err := orch.store.Attempts(ctx, fp)
	require.NoError(t, err)
	require.Len(t, attempts, 3)
	for _, a := range attempts {
		assert.Equal(t, lifecycle.OutcomeSuccess, a.Outcome, a.Stage)
	}
}

func TestTransientSendFailureRetriesAfterBackoff(t *testing.T) {
	services := newTestServices()
	services.mail.FailFirst = 1
	orch, clock, _ := newTestPipeline(t, testPipelineConfig(), services.Collaborators)
	ctx := context.Background()

	fp := seedPosting(t, orch, testutil.Posting("hn", "Acme", "Platform Engineer"))

	require.NoError(t, orch.Tick(ctx))
	rec := getRecord(t, orch, fp)
	assert.Equal(t, lifecycle.StatusApplied, rec.Status)

	cur, err := orch.store.Cursor(ctx, fp, lifecycle.StageSend)
	require.NoError(t, err)
	require.NotNil(t, cur)
	assert.Equal(t, 1, cur.RetryCount)
	assert.True(t, cur.NextRunAt.After(clock.Now()))

	// Not due yet: another tick right away changes nothing.
	require.NoError(t, orch.Tick(ctx))
	assert.Empty(t, services.mail.Sent())

	clock.Advance(61 * time.Second)
	require.NoError(t, orch.Tick(ctx))

	rec = getRecord(t, orch, fp)
	assert.Equal(t, lifecycle.StatusAwaitingResponse, rec.Status)
	assert.Len(t, services.mail.Sent(), 1)
}

func TestMalformedDescriptionFailsRecord(t *testing.T) {
	services := newTestServices()
	orch, _, _ := newTestPipeline(t, testPipelineConfig(), services.Collaborators)
	ctx := context.Background()

	raw := testutil.Posting("hn", "Acme", "Platform Engineer")
	raw.Description = "GARBLED beyond repair."
	fp := seedPosting(t, orch, raw)

	require.NoError(t, orch.Tick(ctx))
	rec := getRecord(t, orch, fp)
	assert.Equal(t, lifecycle.StatusFailed, rec.Status)

	attempts, err := orch.store.Attempts(ctx, fp)
	require.NoError(t, err)
	require.Len(t, attempts, 1)
	assert.Equal(t, lifecycle.OutcomeFatal, attempts[0].Outcome)

	// Requeue puts the record back at the start of its stage.
	rec, err = orch.Machine().Requeue(ctx, fp)
	require.NoError(t, err)
	assert.Equal(t, lifecycle.StatusDiscovered, rec.Status)
}

func TestGateDenialDefersWithoutBurningRetries(t *testing.T) {
	cfg := testPipelineConfig()
	cfg.Gate = map[string]am.GateConfig{
		"mail": {Ceiling: 1, WindowSeconds: 3600},
	}
	services := newTestServices()
	orch, clock, _ := newTestPipeline(t, cfg, services.Collaborators)
	ctx := context.Background()

	fpA := seedPosting(t, orch, testutil.Posting("hn", "Acme", "Platform Engineer"))
	fpB := seedPosting(t, orch, testutil.Posting("hn", "Umbrella", "Data Engineer"))

	require.NoError(t, orch.Tick(ctx))

	// Exactly one send fit through the gate; the other record holds at
	// applied with its retry budget untouched.
	statuses := map[lifecycle.Status]string{
		getRecord(t, orch, fpA).Status: fpA,
		getRecord(t, orch, fpB).Status: fpB,
	}
	require.Contains(t, statuses, lifecycle.StatusAwaitingResponse)
	require.Contains(t, statuses, lifecycle.StatusApplied)
	assert.Len(t, services.mail.Sent(), 1)

	deferred := statuses[lifecycle.StatusApplied]
	cur, err := orch.store.Cursor(ctx, deferred, lifecycle.StageSend)
	require.NoError(t, err)
	require.NotNil(t, cur)
	assert.Equal(t, 0, cur.RetryCount)
	assert.True(t, cur.NextRunAt.After(clock.Now()))

	// No attempt row was written for the denied dispatch.
	attempts, err := orch.store.Attempts(ctx, deferred)
	require.NoError(t, err)
	for _, a := range attempts {
		assert.NotEqual(t, lifecycle.StageSend, a.Stage)
	}

	clock.Advance(3601 * time.Second)
	require.NoError(t, orch.Tick(ctx))

	assert.Equal(t, lifecycle.StatusAwaitingResponse, getRecord(t, orch, deferred).Status)
	assert.Len(t, services.mail.Sent(), 2)
}

func TestRateLimitedSendNeverExhaustsBudget(t *testing.T) {
	services := newTestServices()
	orch, clock, _ := newTestPipeline(t, testPipelineConfig(), services.Collaborators)
	ctx := context.Background()

	fp := seedPosting(t, orch, testutil.Posting("hn", "Acme", "Platform Engineer"))
	services.mail.Err = errors.MarkRateLimited(errors.New("429 quota exceeded"))

	// Five dispatch cycles against a three-attempt budget: the record
	// must keep waiting, not fail.
	require.NoError(t, orch.Tick(ctx))
	for i := 0; i < 4; i++ {
		clock.Advance(61 * time.Second)
		require.NoError(t, orch.Tick(ctx))
	}

	rec := getRecord(t, orch, fp)
	assert.Equal(t, lifecycle.StatusApplied, rec.Status)

	cur, err := orch.store.Cursor(ctx, fp, lifecycle.StageSend)
	require.NoError(t, err)
	require.NotNil(t, cur)
	assert.Equal(t, 0, cur.RetryCount, "destination limits do not burn attempts")
	assert.True(t, cur.NextRunAt.After(clock.Now()))

	attempts, err := orch.store.Attempts(ctx, fp)
	require.NoError(t, err)
	for _, a := range attempts {
		if a.Stage == lifecycle.StageSend {
			assert.Equal(t, lifecycle.OutcomeDeferred, a.Outcome)
		}
	}

	// The destination recovers and the send goes through.
	services.mail.Err = nil
	clock.Advance(61 * time.Second)
	require.NoError(t, orch.Tick(ctx))

	assert.Equal(t, lifecycle.StatusAwaitingResponse, getRecord(t, orch, fp).Status)
	assert.Len(t, services.mail.Sent(), 1)
}

func TestRejectionClosesRecord(t *testing.T) {
	services := newTestServices()
	orch, clock, _ := newTestPipeline(t, testPipelineConfig(), services.Collaborators)
	ctx := context.Background()

	fp := seedPosting(t, orch, testutil.Posting("hn", "Acme", "Platform Engineer"))
	require.NoError(t, orch.Tick(ctx))
	require.Equal(t, lifecycle.StatusAwaitingResponse, getRecord(t, orch, fp).Status)

	services.inbox.Deliver(fp, collab.Response{
		Kind:       collab.ResponseRejection,
		ReceivedAt: clock.Now(),
		Excerpt:    "we went with another candidate",
	})

	clock.Advance(61 * time.Minute)
	require.NoError(t, orch.Tick(ctx))

	rec := getRecord(t, orch, fp)
	assert.Equal(t, lifecycle.StatusClosed, rec.Status)
	require.NotNil(t, rec.ClosedReason)
	assert.Equal(t, lifecycle.ClosedReasonRejected, *rec.ClosedReason)
}

func TestInterviewRequestSchedulesAndCloses(t *testing.T) {
	services := newTestServices()
	orch, clock, _ := newTestPipeline(t, testPipelineConfig(), services.Collaborators)
	ctx := context.Background()

	fp := seedPosting(t, orch, testutil.Posting("hn", "Acme", "Platform Engineer"))
	require.NoError(t, orch.Tick(ctx))

	proposed := time.Date(2026, 3, 3, 10, 0, 0, 0, time.UTC)
	services.inbox.Deliver(fp, collab.Response{
		Kind:          collab.ResponseInterviewRequest,
		ReceivedAt:    clock.Now(),
		ProposedStart: &proposed,
	})

	// check_response flags the record, then schedule books within the
	// same tick because stages drain in order.
	clock.Advance(61 * time.Minute)
	require.NoError(t, orch.Tick(ctx))

	rec := getRecord(t, orch, fp)
	assert.Equal(t, lifecycle.StatusInterviewScheduled, rec.Status)
	assert.True(t, rec.InterviewRequested)
	require.NotNil(t, rec.InterviewStart)
	assert.True(t, rec.InterviewStart.Equal(proposed))
	require.NotNil(t, rec.InterviewEnd)
	require.NotNil(t, rec.ConfirmationID)
	assert.Len(t, services.calendar.Commitments(), 1)

	// The record closes once the interview has passed.
	clock.Set(time.Date(2026, 3, 3, 12, 0, 0, 0, time.UTC))
	require.NoError(t, orch.Tick(ctx))

	rec = getRecord(t, orch, fp)
	assert.Equal(t, lifecycle.StatusClosed, rec.Status)
	require.NotNil(t, rec.ClosedReason)
	assert.Equal(t, lifecycle.ClosedReasonInterviewCompleted, *rec.ClosedReason)
}

func TestScheduleMovesOffBookedSlot(t *testing.T) {
	busy := calendar.Commitment{
		ID:    "standup",
		Start: time.Date(2026, 3, 3, 10, 0, 0, 0, time.UTC),
		End:   time.Date(2026, 3, 3, 11, 0, 0, 0, time.UTC),
	}
	services := newTestServices(busy)
	orch, clock, _ := newTestPipeline(t, testPipelineConfig(), services.Collaborators)
	ctx := context.Background()

	fp := seedPosting(t, orch, testutil.Posting("hn", "Acme", "Platform Engineer"))
	require.NoError(t, orch.Tick(ctx))

	proposed := busy.Start
	services.inbox.Deliver(fp, collab.Response{
		Kind:          collab.ResponseInterviewRequest,
		ReceivedAt:    clock.Now(),
		ProposedStart: &proposed,
	})

	clock.Advance(61 * time.Minute)
	require.NoError(t, orch.Tick(ctx))

	rec := getRecord(t, orch, fp)
	require.Equal(t, lifecycle.StatusInterviewScheduled, rec.Status)
	require.NotNil(t, rec.InterviewStart)

	// The default 30-minute buffer pushes the slot past 11:30.
	want := time.Date(2026, 3, 3, 11, 30, 0, 0, time.UTC)
	assert.True(t, rec.InterviewStart.Equal(want), "got %s", rec.InterviewStart)

	booked := calendar.Interval{Start: *rec.InterviewStart, End: *rec.InterviewEnd}
	assert.False(t, booked.Overlaps(busy.Interval()))
}

func TestFollowUpStopsAtCeiling(t *testing.T) {
	services := newTestServices()
	orch, clock, _ := newTestPipeline(t, testPipelineConfig(), services.Collaborators)
	ctx := context.Background()

	fp := seedPosting(t, orch, testutil.Posting("hn", "Acme", "Platform Engineer"))
	require.NoError(t, orch.Tick(ctx))

	for i := 1; i <= 2; i++ {
		clock.Advance(5*24*time.Hour + time.Minute)
		require.NoError(t, orch.Tick(ctx))
		assert.Equal(t, i, getRecord(t, orch, fp).FollowUpCount, "follow-up %d", i)
	}

	// Ceiling reached: more silence sends nothing further.
	clock.Advance(5*24*time.Hour + time.Minute)
	require.NoError(t, orch.Tick(ctx))

	rec := getRecord(t, orch, fp)
	assert.Equal(t, 2, rec.FollowUpCount)
	assert.Equal(t, lifecycle.StatusAwaitingResponse, rec.Status)

	// One application plus two follow-ups.
	assert.Len(t, services.mail.Sent(), 3)
}

func TestSendSkipsWhenMessageAlreadyRecorded(t *testing.T) {
	services := newTestServices()
	orch, _, db := newTestPipeline(t, testPipelineConfig(), services.Collaborators)
	ctx := context.Background()

	fp := seedPosting(t, orch, testutil.Posting("hn", "Acme", "Platform Engineer"))

	// A send whose attempt timed out after delivery: the message ID is
	// recorded but the record never advanced.
	_, err := db.Exec(`
		UPDATE job_records SET status = 'applied', sent_message_id = 'msg-prior'
		WHERE fingerprint = ?`, fp)
	require.NoError(t, err)

	require.NoError(t, orch.Tick(ctx))

	rec := getRecord(t, orch, fp)
	assert.Equal(t, lifecycle.StatusAwaitingResponse, rec.Status)
	require.NotNil(t, rec.SentMessageID)
	assert.Equal(t, "msg-prior", *rec.SentMessageID)
	assert.Empty(t, services.mail.Sent())
}

func TestSilentRecordGoesStale(t *testing.T) {
	services := newTestServices()
	orch, clock, _ := newTestPipeline(t, testPipelineConfig(), services.Collaborators)
	ctx := context.Background()

	fp := seedPosting(t, orch, testutil.Posting("hn", "Acme", "Platform Engineer"))
	require.NoError(t, orch.Tick(ctx))
	require.Equal(t, lifecycle.StatusAwaitingResponse, getRecord(t, orch, fp).Status)

	// Tick hour by hour. Response polls keep coming back empty; the
	// silence clock runs from the last outbound send, which is the
	// second follow-up on day ten. Thirty silent days later the sweep
	// takes the record.
	for hour := 0; hour < 41*24; hour++ {
		clock.Advance(time.Hour)
		require.NoError(t, orch.Tick(ctx))
	}

	rec := getRecord(t, orch, fp)
	assert.Equal(t, lifecycle.StatusStale, rec.Status)
	assert.Equal(t, 2, rec.FollowUpCount)
	assert.Len(t, services.mail.Sent(), 3)
}

func TestLeasedRecordSkippedUntilReaped(t *testing.T) {
	services := newTestServices()
	orch, clock, db := newTestPipeline(t, testPipelineConfig(), services.Collaborators)
	ctx := context.Background()

	fp := seedPosting(t, orch, testutil.Posting("hn", "Acme", "Platform Engineer"))

	held, err := NewLeases(db).Acquire(ctx, fp, "crashed-process", clock.Now())
	require.NoError(t, err)
	require.True(t, held)

	require.NoError(t, orch.Tick(ctx))
	assert.Equal(t, lifecycle.StatusDiscovered, getRecord(t, orch, fp).Status)

	// Past the grace period the lease is reaped and the record resumes.
	clock.Advance(901 * time.Second)
	require.NoError(t, orch.Tick(ctx))
	assert.Equal(t, lifecycle.StatusAwaitingResponse, getRecord(t, orch, fp).Status)
}

func TestLeasedRecordConsumesNoGateCapacity(t *testing.T) {
	cfg := testPipelineConfig()
	cfg.Gate = map[string]am.GateConfig{
		"mail": {Ceiling: 1, WindowSeconds: 3600},
	}
	services := newTestServices()
	services.mail.FailFirst = 1
	orch, clock, db := newTestPipeline(t, cfg, services.Collaborators)
	ctx := context.Background()

	fp := seedPosting(t, orch, testutil.Posting("hn", "Acme", "Platform Engineer"))
	require.NoError(t, orch.Tick(ctx))
	require.Equal(t, lifecycle.StatusApplied, getRecord(t, orch, fp).Status)

	// Fresh window, one token. Another process takes the lease between
	// the due query and dispatch.
	clock.Advance(3601 * time.Second)
	held, err := NewLeases(db).Acquire(ctx, fp, "other-process", clock.Now())
	require.NoError(t, err)
	require.True(t, held)

	def, err := lifecycle.StageByName(lifecycle.StageSend)
	require.NoError(t, err)
	rec := getRecord(t, orch, fp)

	// The dispatch stands down at the lease, before the gate: the token
	// survives for a dispatch that can actually send.
	assert.Equal(t, dispatchSkipped, orch.dispatchRecord(ctx, def, rec))
	assert.Empty(t, services.mail.Sent())
	used, remaining := orch.gate.Stats("mail")
	assert.Zero(t, used)
	assert.Equal(t, 1, remaining)

	require.NoError(t, NewLeases(db).Release(ctx, fp, "other-process"))
	assert.Equal(t, dispatchDone, orch.dispatchRecord(ctx, def, rec))
	assert.Equal(t, lifecycle.StatusAwaitingResponse, getRecord(t, orch, fp).Status)
	assert.Len(t, services.mail.Sent(), 1)
	used, remaining = orch.gate.Stats("mail")
	assert.Equal(t, 1, used)
	assert.Zero(t, remaining)
}

func TestTickCountsAdvance(t *testing.T) {
	services := newTestServices()
	orch, _, _ := newTestPipeline(t, testPipelineConfig(), services.Collaborators)

	require.NoError(t, orch.Tick(context.Background()))
	require.NoError(t, orch.Tick(context.Background()))
	assert.Equal(t, int64(2), orch.Ticks())
}
