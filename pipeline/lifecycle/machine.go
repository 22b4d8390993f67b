package lifecycle

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/teranos/pursuit/errors"
	"github.com/teranos/pursuit/logger"
)

// MachineConfig carries the config-derived rhythms the machine applies
// when arming cursors and sweeping silence.
type MachineConfig struct {
	// FollowUpDelay is the silence after send (and after each nudge)
	// before the next follow-up becomes due.
	FollowUpDelay time.Duration

	// MaxFollowUps caps nudges per record.
	MaxFollowUps int

	// ResponsePoll is the check_response self-loop interval.
	ResponsePoll time.Duration

	// ResponsesEnabled arms check_response after send and holds schedule
	// until an interview request is seen.
	ResponsesEnabled bool

	// StaleAfter is how long an awaiting_response record may sit without
	// activity before the sweep marks it stale.
	StaleAfter time.Duration
}

// Machine is the only writer of job record state. Every mutation enters
// through Upsert (dedup path) or Advance/MarkStale/Requeue (transition
// paths); each transition appends exactly one attempt row in the same
// transaction that moves the record.
type Machine struct {
	store *Store
	cfg   MachineConfig
	log   *zap.SugaredLogger

	timeNow func() time.Time
}

// NewMachine creates a state machine over the store.
func NewMachine(store *Store, cfg MachineConfig, log *zap.SugaredLogger) *Machine {
	return NewMachineWithClock(store, cfg, log, time.Now)
}

// NewMachineWithClock creates a machine with an injectable clock.
func NewMachineWithClock(store *Store, cfg MachineConfig, log *zap.SugaredLogger, timeNow func() time.Time) *Machine {
	return &Machine{
		store:   store,
		cfg:     cfg,
		log:     log,
		timeNow: timeNow,
	}
}

// Store returns the underlying store for read paths (status, show).
func (m *Machine) Store() *Store {
	return m.store
}

// Effect is the record mutation a successful stage attempt carries back.
// Nil pointer fields are left untouched. A non-empty ClosedReason closes
// the record regardless of the stage's declared next status.
type Effect struct {
	Requirements *string
	Contact      *string
	SalaryMin    *int64
	SalaryMax    *int64

	DraftSubject *string
	DraftBody    *string

	SentMessageID *string

	InterviewRequested bool

	InterviewStart *time.Time
	InterviewEnd   *time.Time
	ConfirmationID *string

	ClosedReason string

	// Detail is attempt-log text, not a record field; it surfaces in
	// the transition history ("no decisive response yet").
	Detail string
}

// Transition is one executed stage attempt, ready to be applied.
type Transition struct {
	Stage     string
	Outcome   Outcome
	Detail    string
	Err       error
	StartedAt time.Time
	EndedAt   time.Time

	// Attempt is the 1-based attempt number for this stage, which becomes
	// the stored retry count on a retryable outcome.
	Attempt int

	// Backoff is the delay before the next try; set on retryable outcomes.
	Backoff time.Duration

	// Exhausted marks a retryable outcome that spent the final attempt.
	Exhausted bool

	Effect Effect
}

// Upsert routes the dedup write path through the machine so record
// creation shares an owner with every other mutation.
func (m *Machine) Upsert(ctx context.Context, rec *JobRecord) (*JobRecord, bool, error) {
	stored, created, err := m.store.UpsertRecord(ctx, rec, m.timeNow())
	if err != nil {
		return nil, false, err
	}
	if created {
		m.log.Infow("Record discovered",
			logger.FieldFingerprint, shortFP(stored.Fingerprint),
			logger.FieldCompany, stored.Company,
			logger.FieldTitle, stored.Title,
		)
	}
	return stored, created, nil
}

// Advance applies one stage attempt: appends the attempt row, mutates the
// record per the outcome and the stage table, and maintains cursors. The
// record must currently satisfy the stage's precondition.
func (m *Machine) Advance(ctx context.Context, rec *JobRecord, tr Transition) (*JobRecord, error) {
	def, err := StageByName(tr.Stage)
	if err != nil {
		return nil, err
	}
	if rec.Status != def.Precondition {
		return nil, errors.Newf("record %s is %s, stage %s requires %s",
			shortFP(rec.Fingerprint), rec.Status, def.Name, def.Precondition)
	}

	now := m.timeNow()

	tx, err := m.store.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, errors.Wrap(err, "begin advance")
	}

	attempt := &StageAttempt{
		ID:          uuid.New().String(),
		Fingerprint: rec.Fingerprint,
		Stage:       tr.Stage,
		StartedAt:   tr.StartedAt,
		EndedAt:     tr.EndedAt,
		Outcome:     tr.Outcome,
		Detail:      tr.Detail,
		Error:       errText(tr.Err),
	}
	if err := insertAttempt(tx, attempt); err != nil {
		tx.Rollback()
		return nil, err
	}

	newStatus := rec.Status
	closedReason := ""

	switch tr.Outcome {
	case OutcomeSuccess:
		newStatus = def.OnSuccess
		if tr.Effect.ClosedReason != "" {
			newStatus = StatusClosed
			closedReason = tr.Effect.ClosedReason
		}

	case OutcomeRetryable:
		if tr.Exhausted {
			newStatus = StatusFailed
		}

	case OutcomeDeferred:
		// Status holds; the cursor absorbs the wait.

	case OutcomeFatal:
		newStatus = StatusFailed

	default:
		tx.Rollback()
		return nil, errors.Newf("advance does not accept outcome %q", tr.Outcome)
	}

	sets, args := effectSets(tr.Effect)
	if tr.Outcome == OutcomeSuccess && def.Name == StageFollowUp {
		sets = append(sets, "follow_up_count = follow_up_count + 1")
	}
	if newStatus != rec.Status {
		sets = append(sets, "status = ?")
		args = append(args, string(newStatus))
	}
	if closedReason != "" {
		sets = append(sets, "closed_reason = ?")
		args = append(args, closedReason)
	}
	// updated_at is the record's last mutation, and the stale sweep reads
	// it as the silence clock. Attempts that change nothing on the row --
	// no-op response polls, deferrals, pending retries -- leave it alone.
	if len(sets) > 0 {
		sets = append(sets, "updated_at = ?")
		args = append(args, formatTime(now), rec.Fingerprint)

		if _, err := tx.Exec("UPDATE job_records SET "+strings.Join(sets, ", ")+" WHERE fingerprint = ?", args...); err != nil {
			tx.Rollback()
			return nil, errors.Wrapf(err, "update record %s", shortFP(rec.Fingerprint))
		}
	}

	if err := m.adjustCursors(tx, rec.Fingerprint, def, tr, newStatus, now); err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, errors.Wrap(err, "commit advance")
	}

	m.logTransition(rec, def, tr, newStatus)
	return m.store.GetRecord(ctx, rec.Fingerprint)
}

// adjustCursors maintains stage_cursors after an attempt:
//   - a status change invalidates every cursor the record held;
//   - send success arms follow_up (and check_response when enabled);
//   - self-loop success re-arms its own cursor;
//   - retryable sets the backoff; deferred moves next_run_at with the
//     retry count held; terminal outcomes clear everything.
func (m *Machine) adjustCursors(tx *sql.Tx, fingerprint string, def StageDef, tr Transition, newStatus Status, now time.Time) error {
	switch tr.Outcome {
	case OutcomeSuccess:
		if newStatus != def.Precondition {
			if _, err := tx.Exec("DELETE FROM stage_cursors WHERE fingerprint = ?", fingerprint); err != nil {
				return errors.Wrapf(err, "clear cursors for %s", shortFP(fingerprint))
			}
			if def.Name == StageSend {
				if err := upsertCursor(tx, fingerprint, StageFollowUp, 0, now.Add(m.cfg.FollowUpDelay), now); err != nil {
					return err
				}
				if m.cfg.ResponsesEnabled {
					if err := upsertCursor(tx, fingerprint, StageCheckResponse, 0, now.Add(m.cfg.ResponsePoll), now); err != nil {
						return err
					}
				}
			}
			return nil
		}

		// Self-loop: re-arm on the stage's own rhythm.
		switch def.Name {
		case StageFollowUp:
			return upsertCursor(tx, fingerprint, StageFollowUp, 0, now.Add(m.cfg.FollowUpDelay), now)
		case StageCheckResponse:
			return upsertCursor(tx, fingerprint, StageCheckResponse, 0, now.Add(m.cfg.ResponsePoll), now)
		}
		return nil

	case OutcomeRetryable:
		if tr.Exhausted {
			_, err := tx.Exec("DELETE FROM stage_cursors WHERE fingerprint = ?", fingerprint)
			return errors.Wrapf(err, "clear cursors for %s", shortFP(fingerprint))
		}
		return upsertCursor(tx, fingerprint, def.Name, tr.Attempt, now.Add(tr.Backoff), now)

	case OutcomeDeferred:
		// Attempt is 1-based; the count the attempt entered with stands.
		count := tr.Attempt - 1
		if count < 0 {
			count = 0
		}
		return upsertCursor(tx, fingerprint, def.Name, count, now.Add(tr.Backoff), now)

	case OutcomeFatal:
		_, err := tx.Exec("DELETE FROM stage_cursors WHERE fingerprint = ?", fingerprint)
		return errors.Wrapf(err, "clear cursors for %s", shortFP(fingerprint))
	}
	return nil
}

// Defer pushes a record's next eligible run for a stage without touching
// its retry count. Gate denials land here: the record waits out the
// window, it does not burn an attempt.
func (m *Machine) Defer(ctx context.Context, fingerprint, stage string, delay time.Duration) error {
	now := m.timeNow()
	_, err := m.store.db.ExecContext(ctx, `
		INSERT INTO stage_cursors (fingerprint, stage, retry_count, next_run_at, updated_at)
		VALUES (?, ?, 0, ?, ?)
		ON CONFLICT(fingerprint, stage) DO UPDATE SET
			next_run_at = excluded.next_run_at,
			updated_at = excluded.updated_at`,
		fingerprint, stage, formatTime(now.Add(delay)), formatTime(now))
	if err != nil {
		return errors.Wrapf(err, "defer %s/%s", shortFP(fingerprint), stage)
	}
	return nil
}

// DueRecords returns records eligible for the stage, applying the
// config guards on top of the stage table.
func (m *Machine) DueRecords(ctx context.Context, def StageDef, limit int) ([]*JobRecord, error) {
	return m.store.DueRecords(ctx, def, m.timeNow(), limit, DueGuards{
		MaxFollowUps:         m.cfg.MaxFollowUps,
		RequireInterviewFlag: m.cfg.ResponsesEnabled,
	})
}

// MarkStale moves awaiting_response records past the silence threshold to
// stale, one attempt row each. Returns how many records moved.
func (m *Machine) MarkStale(ctx context.Context) (int, error) {
	if m.cfg.StaleAfter <= 0 {
		return 0, nil
	}
	now := m.timeNow()
	cutoff := now.Add(-m.cfg.StaleAfter)

	tx, err := m.store.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, errors.Wrap(err, "begin stale sweep")
	}

	rows, err := tx.Query(
		"SELECT fingerprint FROM job_records WHERE status = ? AND updated_at <= ?",
		string(StatusAwaitingResponse), formatTime(cutoff))
	if err != nil {
		tx.Rollback()
		return 0, errors.Wrap(err, "query silent records")
	}
	var fingerprints []string
	for rows.Next() {
		var fp string
		if err := rows.Scan(&fp); err != nil {
			rows.Close()
			tx.Rollback()
			return 0, errors.Wrap(err, "scan silent record")
		}
		fingerprints = append(fingerprints, fp)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		tx.Rollback()
		return 0, errors.Wrap(err, "iterate silent records")
	}
	rows.Close()

	for _, fp := range fingerprints {
		if _, err := tx.Exec(
			"UPDATE job_records SET status = ?, updated_at = ? WHERE fingerprint = ?",
			string(StatusStale), formatTime(now), fp); err != nil {
			tx.Rollback()
			return 0, errors.Wrapf(err, "mark %s stale", shortFP(fp))
		}
		if _, err := tx.Exec("DELETE FROM stage_cursors WHERE fingerprint = ?", fp); err != nil {
			tx.Rollback()
			return 0, errors.Wrapf(err, "clear cursors for %s", shortFP(fp))
		}
		attempt := &StageAttempt{
			ID:          uuid.New().String(),
			Fingerprint: fp,
			Stage:       "sweep",
			StartedAt:   now,
			EndedAt:     now,
			Outcome:     OutcomeStale,
			Detail:      "no response within " + m.cfg.StaleAfter.String(),
		}
		if err := insertAttempt(tx, attempt); err != nil {
			tx.Rollback()
			return 0, err
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, errors.Wrap(err, "commit stale sweep")
	}

	if len(fingerprints) > 0 {
		m.log.Infow("Stale sweep",
			logger.FieldCount, len(fingerprints),
			"silence", m.cfg.StaleAfter.String(),
		)
	}
	return len(fingerprints), nil
}

// Requeue is the administrative override for failed records: the record
// returns to the failed stage's precondition with a fresh retry budget.
func (m *Machine) Requeue(ctx context.Context, fingerprint string) (*JobRecord, error) {
	rec, err := m.store.GetRecord(ctx, fingerprint)
	if err != nil {
		return nil, err
	}
	if rec.Status != StatusFailed {
		return nil, errors.Newf("record %s is %s; only failed records can be requeued", shortFP(fingerprint), rec.Status)
	}

	stage, err := m.lastFailedStage(ctx, fingerprint)
	if err != nil {
		return nil, err
	}
	def, err := StageByName(stage)
	if err != nil {
		return nil, err
	}

	now := m.timeNow()
	tx, err := m.store.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, errors.Wrap(err, "begin requeue")
	}

	if _, err := tx.Exec(
		"UPDATE job_records SET status = ?, updated_at = ? WHERE fingerprint = ?",
		string(def.Precondition), formatTime(now), fingerprint); err != nil {
		tx.Rollback()
		return nil, errors.Wrapf(err, "requeue %s", shortFP(fingerprint))
	}
	if err := deleteCursor(tx, fingerprint, stage); err != nil {
		tx.Rollback()
		return nil, err
	}
	attempt := &StageAttempt{
		ID:          uuid.New().String(),
		Fingerprint: fingerprint,
		Stage:       stage,
		StartedAt:   now,
		EndedAt:     now,
		Outcome:     OutcomeRequeued,
		Detail:      "requeued to " + string(def.Precondition),
	}
	if err := insertAttempt(tx, attempt); err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, errors.Wrap(err, "commit requeue")
	}

	m.log.Infow("Record requeued",
		logger.FieldFingerprint, shortFP(fingerprint),
		logger.FieldStage, stage,
		logger.FieldStatus, string(def.Precondition),
	)
	return m.store.GetRecord(ctx, fingerprint)
}

// StatusCounts reports how many records sit in each status.
func (m *Machine) StatusCounts(ctx context.Context) (map[Status]int, error) {
	return m.store.StatusCounts(ctx)
}

// lastFailedStage finds which stage put the record into failed.
func (m *Machine) lastFailedStage(ctx context.Context, fingerprint string) (string, error) {
	var stage string
	err := m.store.db.QueryRowContext(ctx, `
		SELECT stage FROM stage_attempts
		WHERE fingerprint = ? AND outcome IN (?, ?)
		ORDER BY ended_at DESC, id DESC
		LIMIT 1`,
		fingerprint, string(OutcomeFatal), string(OutcomeRetryable)).Scan(&stage)
	if err != nil {
		return "", errors.Wrapf(err, "find failed stage for %s", shortFP(fingerprint))
	}
	return stage, nil
}

func (m *Machine) logTransition(rec *JobRecord, def StageDef, tr Transition, newStatus Status) {
	fields := []interface{}{
		logger.FieldFingerprint, shortFP(rec.Fingerprint),
		logger.FieldStage, def.Name,
		logger.FieldOutcome, string(tr.Outcome),
	}
	switch {
	case newStatus == StatusFailed:
		fields = append(fields, logger.FieldStatus, string(newStatus))
		if tr.Err != nil {
			fields = append(fields, logger.FieldError, tr.Err.Error())
		}
		m.log.Warnw("Record failed", fields...)
	case newStatus != rec.Status:
		fields = append(fields, logger.FieldStatus, string(newStatus))
		m.log.Infow("Record advanced", fields...)
	case tr.Outcome == OutcomeDeferred:
		fields = append(fields, logger.FieldNextRun, tr.Backoff.String())
		m.log.Debugw("Attempt deferred", fields...)
	case tr.Outcome == OutcomeRetryable:
		fields = append(fields,
			logger.FieldRetryCount, tr.Attempt,
			logger.FieldNextRun, tr.Backoff.String(),
		)
		m.log.Debugw("Attempt will retry", fields...)
	default:
		if tr.Detail != "" {
			fields = append(fields, "detail", tr.Detail)
		}
		m.log.Debugw("Stage completed", fields...)
	}
}

// effectSets turns an Effect into UPDATE clauses.
func effectSets(e Effect) ([]string, []interface{}) {
	var sets []string
	var args []interface{}

	set := func(col string, val interface{}) {
		sets = append(sets, col+" = ?")
		args = append(args, val)
	}

	if e.Requirements != nil {
		set("requirements", *e.Requirements)
	}
	if e.Contact != nil {
		set("contact", *e.Contact)
	}
	if e.SalaryMin != nil {
		set("salary_min", *e.SalaryMin)
	}
	if e.SalaryMax != nil {
		set("salary_max", *e.SalaryMax)
	}
	if e.DraftSubject != nil {
		set("draft_subject", *e.DraftSubject)
	}
	if e.DraftBody != nil {
		set("draft_body", *e.DraftBody)
	}
	if e.SentMessageID != nil {
		set("sent_message_id", *e.SentMessageID)
	}
	if e.InterviewRequested {
		sets = append(sets, "interview_requested = 1")
	}
	if e.InterviewStart != nil {
		set("interview_start", formatTime(*e.InterviewStart))
	}
	if e.InterviewEnd != nil {
		set("interview_end", formatTime(*e.InterviewEnd))
	}
	if e.ConfirmationID != nil {
		set("confirmation_id", *e.ConfirmationID)
	}
	return sets, args
}

func errText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// shortFP trims a fingerprint for log lines; records are never addressed
// by the short form.
func shortFP(fingerprint string) string {
	if len(fingerprint) <= 12 {
		return fingerprint
	}
	return fingerprint[:12]
}
