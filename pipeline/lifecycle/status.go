// Package lifecycle owns job records and the transitions between their
// statuses. Records are mutated only through Machine entry points; every
// transition appends exactly one attempt row.
package lifecycle

import (
	"time"
)

// Status represents where a job record sits in the application pipeline.
type Status string

const (
	StatusDiscovered         Status = "discovered"
	StatusExtracted          Status = "extracted"
	StatusApplied            Status = "applied"
	StatusAwaitingResponse   Status = "awaiting_response"
	StatusInterviewScheduled Status = "interview_scheduled"
	StatusClosed             Status = "closed"
	StatusFailed             Status = "failed"
	StatusStale              Status = "stale"
)

// IsValidStatus returns true if the status string is a valid Status
func IsValidStatus(s string) bool {
	switch Status(s) {
	case StatusDiscovered, StatusExtracted, StatusApplied,
		StatusAwaitingResponse, StatusInterviewScheduled,
		StatusClosed, StatusFailed, StatusStale:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether a record in this status can still move.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusClosed, StatusFailed, StatusStale:
		return true
	default:
		return false
	}
}

// Outcome classifies one stage attempt.
type Outcome string

const (
	OutcomeSuccess   Outcome = "success"
	OutcomeRetryable Outcome = "retryable"
	OutcomeFatal     Outcome = "fatal"

	// OutcomeDeferred records a destination-reported rate limit: the
	// record waits out the window and the attempt spends no retry budget.
	OutcomeDeferred Outcome = "deferred"
)

// Administrative outcomes recorded by the stale sweep and requeue, so the
// attempt log explains every status a record has ever held.
const (
	OutcomeStale    Outcome = "stale"
	OutcomeRequeued Outcome = "requeued"
)

// Closed reasons recorded when a record reaches StatusClosed.
const (
	ClosedReasonRejected           = "rejected"
	ClosedReasonInterviewCompleted = "interview_completed"
	ClosedReasonWithdrawn          = "withdrawn"
)

// JobRecord is one deduplicated job posting and everything the pipeline
// has done with it. Fingerprint is the stable identity (see pipeline/dedup);
// nullable columns stay nil until the stage that fills them succeeds.
type JobRecord struct {
	Fingerprint string `json:"fingerprint"`

	Company     string `json:"company"`
	Title       string `json:"title"`
	Location    string `json:"location"`
	Region      string `json:"region"`
	Description string `json:"description,omitempty"`

	// Filled by extract
	Requirements *string `json:"requirements,omitempty"`
	Contact      *string `json:"contact,omitempty"`
	SalaryMin    *int64  `json:"salary_min,omitempty"`
	SalaryMax    *int64  `json:"salary_max,omitempty"`

	// Filled by compose
	DraftSubject *string `json:"draft_subject,omitempty"`
	DraftBody    *string `json:"draft_body,omitempty"`

	// Filled by send / follow_up / check_response
	SentMessageID      *string `json:"sent_message_id,omitempty"`
	FollowUpCount      int     `json:"follow_up_count"`
	InterviewRequested bool    `json:"interview_requested"`

	// Filled by schedule
	InterviewStart *time.Time `json:"interview_start,omitempty"`
	InterviewEnd   *time.Time `json:"interview_end,omitempty"`
	ConfirmationID *string    `json:"confirmation_id,omitempty"`

	Status       Status  `json:"status"`
	ClosedReason *string `json:"closed_reason,omitempty"`

	Sources []JobSource `json:"sources,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// JobSource records one platform's sighting of a record. A record merged
// from several boards carries one row per (platform, source ID) pair.
type JobSource struct {
	Platform     string    `json:"platform"`
	SourceID     string    `json:"source_id"`
	URL          string    `json:"url,omitempty"`
	DiscoveredAt time.Time `json:"discovered_at"`
}

// StageAttempt is one execution record, written when the attempt finishes
// and immutable afterwards.
type StageAttempt struct {
	ID          string    `json:"id"`
	Fingerprint string    `json:"fingerprint"`
	Stage       string    `json:"stage"`
	StartedAt   time.Time `json:"started_at"`
	EndedAt     time.Time `json:"ended_at"`
	Outcome     Outcome   `json:"outcome"`
	Detail      string    `json:"detail,omitempty"`
	Error       string    `json:"error,omitempty"`
}

// StageCursor tracks per-stage retry state for one record. NextRunAt gates
// visibility in DueRecords; the executor's backoff lands here.
type StageCursor struct {
	Fingerprint string    `json:"fingerprint"`
	Stage       string    `json:"stage"`
	RetryCount  int       `json:"retry_count"`
	NextRunAt   time.Time `json:"next_run_at"`
}
