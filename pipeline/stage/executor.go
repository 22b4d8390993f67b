package stage

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/pursuit/errors"
	"github.com/teranos/pursuit/logger"
	"github.com/teranos/pursuit/pipeline/lifecycle"
)

// Func is one stage's action for one record. It runs the collaborator
// call and returns the record mutation to apply on success. The context
// carries the per-attempt deadline.
type Func func(ctx context.Context) (lifecycle.Effect, error)

// Request is one attempt to run.
type Request struct {
	Record  *lifecycle.JobRecord
	Stage   string
	Attempt int // 1-based
	Fn      Func
	Policy  Policy
}

// Executor wraps stage functions with the attempt deadline and turns
// their errors into transition outcomes.
type Executor struct {
	log     *zap.SugaredLogger
	timeNow func() time.Time
}

// NewExecutor creates an executor.
func NewExecutor(log *zap.SugaredLogger) *Executor {
	return &Executor{log: log, timeNow: time.Now}
}

// Run executes one attempt and classifies the result:
//
//   - nil error: success, the effect is carried to the state machine.
//   - deadline exceeded: retryable. The outcome of the side effect is
//     unknown, so side-effecting stages guard with idempotence checks
//     (send skips when a message ID is already recorded).
//   - rate-limited kind: deferred. The record waits out the destination
//     window and the attempt does not count against the retry budget.
//   - transient kind: retryable with the policy backoff.
//   - malformed, permission-denied, conflict, infeasible kind: fatal.
//     Conflicts reach here only after the stage's own re-search failed.
//   - anything unclassified: retryable, so a collaborator that forgets
//     to tag an error degrades to bounded retries instead of a dead record.
//
// Run never sleeps. Retryable transitions carry the backoff delay and
// whether the attempt budget is spent; the state machine applies both.
func (e *Executor) Run(ctx context.Context, req Request) lifecycle.Transition {
	tr := lifecycle.Transition{
		Stage:     req.Stage,
		Attempt:   req.Attempt,
		StartedAt: e.timeNow(),
	}

	runCtx, cancel := context.WithTimeout(ctx, req.Policy.Timeout)
	defer cancel()

	effect, err := req.Fn(runCtx)
	tr.EndedAt = e.timeNow()
	tr.Effect = effect

	if err == nil {
		tr.Outcome = lifecycle.OutcomeSuccess
		tr.Detail = effect.Detail
		return tr
	}
	tr.Err = err

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		tr.Outcome = lifecycle.OutcomeRetryable
		tr.Detail = "timed out after " + req.Policy.Timeout.String() + ", outcome unknown"
		e.log.Warnw("Stage attempt timed out",
			logger.FieldFingerprint, shortFP(req.Record.Fingerprint),
			logger.FieldStage, req.Stage,
			"timeout", req.Policy.Timeout.String(),
		)

	case errors.Is(err, context.Canceled):
		tr.Outcome = lifecycle.OutcomeRetryable
		tr.Detail = "canceled mid-attempt, outcome unknown"

	case errors.IsRateLimited(err):
		tr.Outcome = lifecycle.OutcomeDeferred
		tr.Detail = "destination rate limited"

	case errors.IsTransient(err):
		tr.Outcome = lifecycle.OutcomeRetryable
		tr.Detail = "transient failure"

	case errors.IsMalformed(err):
		tr.Outcome = lifecycle.OutcomeFatal
		tr.Detail = "malformed input"

	case errors.IsPermissionDenied(err):
		tr.Outcome = lifecycle.OutcomeFatal
		tr.Detail = "permission denied"

	case errors.IsConflict(err):
		tr.Outcome = lifecycle.OutcomeFatal
		tr.Detail = "slot conflict persisted through re-search"

	case errors.IsInfeasible(err):
		tr.Outcome = lifecycle.OutcomeFatal
		tr.Detail = "no feasible slot in horizon"

	default:
		tr.Outcome = lifecycle.OutcomeRetryable
		tr.Detail = "unclassified failure"
	}

	switch tr.Outcome {
	case lifecycle.OutcomeRetryable:
		tr.Backoff = req.Policy.Backoff(req.Attempt)
		tr.Exhausted = req.Policy.Exhausted(req.Attempt)
	case lifecycle.OutcomeDeferred:
		// One base window; the attempt budget is untouched.
		tr.Backoff = req.Policy.Backoff(1)
	}
	return tr
}

func shortFP(fingerprint string) string {
	if len(fingerprint) <= 12 {
		return fingerprint
	}
	return fingerprint[:12]
}
