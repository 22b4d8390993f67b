package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/teranos/pursuit/errors"
	"github.com/teranos/pursuit/logger"
	"github.com/teranos/pursuit/pipeline/calendar"
	"github.com/teranos/pursuit/pipeline/collab"
	"github.com/teranos/pursuit/pipeline/lifecycle"
	"github.com/teranos/pursuit/pipeline/stage"
)

// dueBatchLimit caps how many records one stage pulls per tick. Anything
// beyond it stays due and rides the next tick.
const dueBatchLimit = 100

type dispatchResult int

const (
	dispatchDone dispatchResult = iota
	dispatchDeferred
	dispatchSkipped
	dispatchError
)

// Tick runs one pass of the pipeline: reap abandoned leases, sweep stale
// records, then pull and dispatch due records stage by stage. Stages
// drain in declared order, so a record that advances may become eligible
// for its next stage within the same tick. Per-record failures are
// logged and counted, never fatal to the tick.
func (o *Orchestrator) Tick(ctx context.Context) error {
	now := o.timeNow()

	reaped, err := o.leases.Reap(ctx, now.Add(-o.grace))
	if err != nil {
		return err
	}
	if reaped > 0 {
		o.pulseLog.Warnw("Reaped abandoned leases",
			logger.FieldCount, reaped,
			"grace", o.grace.String(),
		)
	}

	if _, err := o.machine.MarkStale(ctx); err != nil {
		return err
	}

	var mu sync.Mutex
	dispatched, deferred, failed := 0, 0, 0

	for _, def := range lifecycle.Stages() {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		due, err := o.machine.DueRecords(ctx, def, dueBatchLimit)
		if err != nil {
			o.log.Errorw("Due query failed",
				logger.FieldStage, def.Name,
				logger.FieldError, err.Error(),
			)
			continue
		}
		if len(due) == 0 {
			continue
		}

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(o.workerLimit())
		for _, rec := range due {
			g.Go(func() error {
				switch o.dispatchRecord(gctx, def, rec) {
				case dispatchDone:
					mu.Lock()
					dispatched++
					mu.Unlock()
				case dispatchDeferred:
					mu.Lock()
					deferred++
					mu.Unlock()
				case dispatchError:
					mu.Lock()
					failed++
					mu.Unlock()
				}
				return nil
			})
		}
		g.Wait()
	}

	o.mu.Lock()
	o.lastTickAt = now
	o.ticksSinceStart++
	tick := o.ticksSinceStart
	o.mu.Unlock()

	if dispatched+deferred+failed > 0 {
		o.pulseLog.Infow("Tick complete",
			"tick", tick,
			"dispatched", dispatched,
			"deferred", deferred,
			"failed", failed,
		)
	} else {
		o.pulseLog.Debugw("Tick idle", "tick", tick)
	}
	return nil
}

// dispatchRecord runs one stage action for one record: lease, re-read,
// gate, execute, advance. The gate token is drawn only after the lease
// holds and the precondition still stands, so records leased elsewhere
// or already moved on never burn destination capacity. Gate denial
// re-arms the record's cursor with the gate's own delay and leaves the
// retry budget alone.
func (o *Orchestrator) dispatchRecord(ctx context.Context, def lifecycle.StageDef, rec *lifecycle.JobRecord) dispatchResult {
	fp := rec.Fingerprint

	acquired, err := o.leases.Acquire(ctx, fp, o.holder, o.timeNow())
	if err != nil {
		o.log.Errorw("Lease acquisition failed",
			logger.FieldFingerprint, shortID(fp),
			logger.FieldError, err.Error(),
		)
		return dispatchError
	}
	if !acquired {
		o.pulseLog.Debugw("Record leased elsewhere, skipped",
			logger.FieldFingerprint, shortID(fp),
			logger.FieldStage, def.Name,
		)
		return dispatchSkipped
	}
	if logger.ShouldLogTrace(logger.Verbosity()) {
		o.pulseLog.Debugw("Lease acquired",
			logger.FieldFingerprint, shortID(fp),
			logger.FieldStage, def.Name,
			"holder", o.holder,
		)
	}
	// Release must run even when the tick's context is gone; a held lease
	// would block the record until the grace reap.
	defer func() {
		if err := o.leases.Release(context.Background(), fp, o.holder); err != nil {
			o.log.Warnw("Lease release failed",
				logger.FieldFingerprint, shortID(fp),
				logger.FieldError, err.Error(),
			)
		}
	}()

	fresh, err := o.store.GetRecord(ctx, fp)
	if err != nil {
		o.log.Errorw("Record re-read failed",
			logger.FieldFingerprint, shortID(fp),
			logger.FieldError, err.Error(),
		)
		return dispatchError
	}
	if fresh.Status != def.Precondition {
		o.pulseLog.Debugw("Record moved on before dispatch",
			logger.FieldFingerprint, shortID(fp),
			logger.FieldStage, def.Name,
			logger.FieldStatus, string(fresh.Status),
		)
		return dispatchSkipped
	}

	if def.Gated() && !o.gate.TryAcquire(def.Destination, fp, 1) {
		delay := o.gate.RetryAfter(def.Destination)
		if err := o.machine.Defer(ctx, fp, def.Name, delay); err != nil {
			o.log.Errorw("Defer after gate denial failed",
				logger.FieldFingerprint, shortID(fp),
				logger.FieldStage, def.Name,
				logger.FieldError, err.Error(),
			)
			return dispatchError
		}
		o.pulseLog.Debugw("Gate full, record deferred",
			logger.FieldFingerprint, shortID(fp),
			logger.FieldStage, def.Name,
			logger.FieldDestination, def.Destination,
			"retry_in", delay.Round(time.Second).String(),
		)
		return dispatchDeferred
	}

	attempt := 1
	cur, err := o.store.Cursor(ctx, fp, def.Name)
	if err != nil {
		o.log.Errorw("Cursor read failed",
			logger.FieldFingerprint, shortID(fp),
			logger.FieldStage, def.Name,
			logger.FieldError, err.Error(),
		)
		return dispatchError
	}
	if cur != nil {
		attempt = cur.RetryCount + 1
	}

	tr := o.executor.Run(ctx, stage.Request{
		Record:  fresh,
		Stage:   def.Name,
		Attempt: attempt,
		Fn:      o.stageFunc(def, fresh),
		Policy:  o.policyFor(def.Name),
	})

	if logger.ShouldLogAll(logger.Verbosity()) {
		o.log.Debugw("Stage result payload",
			logger.FieldFingerprint, shortID(fp),
			logger.FieldStage, def.Name,
			"effect", fmt.Sprintf("%+v", tr.Effect),
			"detail", tr.Detail,
		)
	}

	if _, err := o.machine.Advance(ctx, fresh, tr); err != nil {
		o.log.Errorw("Advance failed",
			logger.FieldFingerprint, shortID(fp),
			logger.FieldStage, def.Name,
			logger.FieldError, err.Error(),
		)
		return dispatchError
	}
	return dispatchDone
}

// stageFunc builds the closure the executor runs for one record. Each
// closure makes exactly one collaborator call path and reports record
// mutations through the returned Effect; the state machine applies them.
func (o *Orchestrator) stageFunc(def lifecycle.StageDef, rec *lifecycle.JobRecord) stage.Func {
	switch def.Name {
	case lifecycle.StageExtract:
		return o.extractFn(rec)
	case lifecycle.StageCompose:
		return o.composeFn(rec)
	case lifecycle.StageSend:
		return o.sendFn(rec)
	case lifecycle.StageFollowUp:
		return o.followUpFn(rec)
	case lifecycle.StageCheckResponse:
		return o.checkResponseFn(rec)
	case lifecycle.StageSchedule:
		return o.scheduleFn(rec)
	case lifecycle.StageClose:
		return o.closeFn()
	}
	return func(ctx context.Context) (lifecycle.Effect, error) {
		return lifecycle.Effect{}, errors.Newf("no stage function for %s", def.Name)
	}
}

func (o *Orchestrator) extractFn(rec *lifecycle.JobRecord) stage.Func {
	return func(ctx context.Context) (lifecycle.Effect, error) {
		ext, err := o.services.Extractor.Extract(ctx, rec.Description)
		if err != nil {
			return lifecycle.Effect{}, err
		}
		eff := lifecycle.Effect{
			SalaryMin: ext.SalaryMin,
			SalaryMax: ext.SalaryMax,
			Detail:    "requirements extracted",
		}
		if ext.Requirements != "" {
			eff.Requirements = &ext.Requirements
		}
		if ext.Contact != "" {
			eff.Contact = &ext.Contact
		}
		return eff, nil
	}
}

func (o *Orchestrator) composeFn(rec *lifecycle.JobRecord) stage.Func {
	return func(ctx context.Context) (lifecycle.Effect, error) {
		draft, err := o.services.Composer.Compose(ctx, collab.TemplateApplication, rec)
		if err != nil {
			return lifecycle.Effect{}, err
		}
		return lifecycle.Effect{
			DraftSubject: &draft.Subject,
			DraftBody:    &draft.Body,
			Detail:       "application drafted",
		}, nil
	}
}

func (o *Orchestrator) sendFn(rec *lifecycle.JobRecord) stage.Func {
	return func(ctx context.Context) (lifecycle.Effect, error) {
		// Send must never double-fire. A message ID on the record means a
		// previous attempt already delivered; report success without
		// calling the transport.
		if rec.SentMessageID != nil {
			return lifecycle.Effect{
				SentMessageID: rec.SentMessageID,
				Detail:        "message already recorded, send skipped",
			}, nil
		}
		if rec.Contact == nil || *rec.Contact == "" {
			return lifecycle.Effect{}, errors.MarkMalformed(errors.New("record has no contact address"))
		}
		if rec.DraftSubject == nil || rec.DraftBody == nil {
			return lifecycle.Effect{}, errors.MarkMalformed(errors.New("record has no draft"))
		}

		id, err := o.services.Mail.Send(ctx, *rec.Contact, *rec.DraftSubject, *rec.DraftBody)
		if err != nil {
			return lifecycle.Effect{}, err
		}
		return lifecycle.Effect{
			SentMessageID: &id,
			Detail:        "application sent to " + *rec.Contact,
		}, nil
	}
}

func (o *Orchestrator) followUpFn(rec *lifecycle.JobRecord) stage.Func {
	return func(ctx context.Context) (lifecycle.Effect, error) {
		if rec.Contact == nil || *rec.Contact == "" {
			return lifecycle.Effect{}, errors.MarkMalformed(errors.New("record has no contact address"))
		}

		draft, err := o.services.Composer.Compose(ctx, collab.TemplateFollowUp, rec)
		if err != nil {
			return lifecycle.Effect{}, err
		}
		if _, err := o.services.Mail.Send(ctx, *rec.Contact, draft.Subject, draft.Body); err != nil {
			return lifecycle.Effect{}, err
		}
		return lifecycle.Effect{
			Detail: fmt.Sprintf("follow-up %d sent", rec.FollowUpCount+1),
		}, nil
	}
}

func (o *Orchestrator) checkResponseFn(rec *lifecycle.JobRecord) stage.Func {
	return func(ctx context.Context) (lifecycle.Effect, error) {
		responses, err := o.services.Inbox.ResponsesFor(ctx, rec)
		if err != nil {
			return lifecycle.Effect{}, err
		}

		var decisive *collab.Response
		for i := range responses {
			r := &responses[i]
			if !r.Decisive() {
				continue
			}
			if decisive == nil || r.ReceivedAt.Before(decisive.ReceivedAt) {
				decisive = r
			}
		}

		if decisive == nil {
			for _, r := range responses {
				if r.Kind == collab.ResponsePositive {
					return lifecycle.Effect{Detail: "positive response noted"}, nil
				}
			}
			return lifecycle.Effect{Detail: "no decisive response yet"}, nil
		}

		switch decisive.Kind {
		case collab.ResponseRejection:
			detail := "rejection received"
			if decisive.Excerpt != "" {
				detail = "rejected: " + decisive.Excerpt
			}
			return lifecycle.Effect{
				ClosedReason: lifecycle.ClosedReasonRejected,
				Detail:       detail,
			}, nil

		case collab.ResponseInterviewRequest:
			eff := lifecycle.Effect{
				InterviewRequested: true,
				Detail:             "interview requested",
			}
			if decisive.ProposedStart != nil {
				// The proposed time rides in interview_start until the
				// schedule stage books and overwrites it.
				eff.InterviewStart = decisive.ProposedStart
				eff.Detail = "interview requested for " + decisive.ProposedStart.Format(time.RFC3339)
			}
			return eff, nil
		}
		return lifecycle.Effect{Detail: "no decisive response yet"}, nil
	}
}

func (o *Orchestrator) scheduleFn(rec *lifecycle.JobRecord) stage.Func {
	return func(ctx context.Context) (lifecycle.Effect, error) {
		now := o.timeNow()
		duration := time.Duration(o.sched.DurationMinutes) * time.Minute

		requested := calendar.NextOpening(now, duration, o.cons)
		if rec.InterviewStart != nil {
			requested = calendar.Interval{
				Start: *rec.InterviewStart,
				End:   rec.InterviewStart.Add(duration),
			}
		}

		slot, confirmation, err := o.bookSlot(ctx, requested, duration, now)
		if err != nil {
			return lifecycle.Effect{}, err
		}
		return lifecycle.Effect{
			InterviewStart: &slot.Start,
			InterviewEnd:   &slot.End,
			ConfirmationID: &confirmation,
			Detail:         "interview booked for " + slot.Start.Format(time.RFC3339),
		}, nil
	}
}

// bookSlot finds a feasible slot and books it. A booking that collides
// with a commitment that appeared after the listing gets one fresh
// search; a second conflict fails the stage.
func (o *Orchestrator) bookSlot(ctx context.Context, requested calendar.Interval, duration time.Duration, now time.Time) (calendar.Interval, string, error) {
	horizon := now.AddDate(0, 0, o.cons.HorizonDays)

	for search := 0; ; search++ {
		commitments, err := o.services.Calendar.ListCommitments(ctx, o.sched.Account, now, horizon)
		if err != nil {
			return calendar.Interval{}, "", err
		}
		if err := o.calCache.Replace(commitments, now); err != nil {
			o.log.Warnw("Calendar cache refresh failed", logger.FieldError, err.Error())
		}

		slot, err := calendar.FindSlot(requested, commitments, o.cons)
		if err != nil {
			return calendar.Interval{}, "", err
		}

		confirmation, err := o.services.Calendar.Book(ctx, slot, o.sched.Participants)
		if err == nil {
			booked := calendar.Commitment{
				ID:          confirmation,
				Start:       slot.Start,
				End:         slot.End,
				Participant: o.sched.Account,
				Summary:     "interview",
			}
			if cacheErr := o.calCache.Add(booked, o.timeNow()); cacheErr != nil {
				o.log.Warnw("Calendar cache update failed", logger.FieldError, cacheErr.Error())
			}
			logger.AddATSymbol(o.log).Infow("Interview slot booked",
				"start", slot.Start.Format(time.RFC3339),
				"confirmation", confirmation,
			)
			return slot, confirmation, nil
		}
		if !errors.IsConflict(err) || search > 0 {
			return calendar.Interval{}, "", err
		}

		o.log.Debugw("Booking conflict, searching again",
			"slot", slot.Start.Format(time.RFC3339),
		)
		requested = calendar.Interval{Start: slot.End, End: slot.End.Add(duration)}
	}
}

func (o *Orchestrator) closeFn() stage.Func {
	return func(ctx context.Context) (lifecycle.Effect, error) {
		return lifecycle.Effect{
			ClosedReason: lifecycle.ClosedReasonInterviewCompleted,
			Detail:       "interview window passed",
		}, nil
	}
}
