// Package collab declares the interfaces the pipeline consumes and the
// wire types that cross them. Everything external to the orchestrator
// (job boards, extraction, composition, mail, calendar, inbox) enters
// through a contract defined here; the pipeline never imports a concrete
// backend.
//
// Failure kinds matter more than failure messages: bindings tag errors
// with the errors package Mark helpers so stage execution can classify
// them without string matching.
package collab

import (
	"context"
	"time"

	"github.com/teranos/pursuit/pipeline/calendar"
	"github.com/teranos/pursuit/pipeline/lifecycle"
)

// RawPosting is one job posting as a source reported it, before validation
// and deduplication. Partial fields and duplicates are expected; ingest
// filters, the deduplicator merges.
type RawPosting struct {
	Company        string     `json:"company"`
	Title          string     `json:"title"`
	Location       string     `json:"location"`
	Description    string     `json:"description"`
	SourceID       string     `json:"source_id"`
	SourcePlatform string     `json:"source_platform"`
	URL            string     `json:"url,omitempty"`
	PostedAt       *time.Time `json:"posted_at,omitempty"`
}

// PostingSource produces raw postings from one platform.
type PostingSource interface {
	// Platform names the source, recorded on each job source row.
	Platform() string

	// Fetch pulls the current posting set. Implementations own their
	// pagination; the politeness limiter above them owns the pacing.
	Fetch(ctx context.Context) ([]RawPosting, error)
}

// Extraction is the structured result of reading one posting description.
type Extraction struct {
	Requirements string `json:"requirements"`
	Contact      string `json:"contact"`
	SalaryMin    *int64 `json:"salary_min,omitempty"`
	SalaryMax    *int64 `json:"salary_max,omitempty"`
}

// Extractor turns a free-text posting description into structured fields.
// Descriptions that can never parse fail with the malformed kind.
type Extractor interface {
	Extract(ctx context.Context, description string) (Extraction, error)
}

// TemplateKind selects which message the composer drafts.
type TemplateKind string

const (
	TemplateApplication TemplateKind = "application"
	TemplateFollowUp    TemplateKind = "follow_up"
)

// Draft is a composed message ready for the mail transport.
type Draft struct {
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// Composer drafts an application or follow-up message for a record.
// Records missing the fields a template needs fail with the malformed kind.
type Composer interface {
	Compose(ctx context.Context, kind TemplateKind, rec *lifecycle.JobRecord) (Draft, error)
}

// MailTransport delivers drafted messages. Send returns the provider's
// message ID, which makes the send stage idempotent across retries.
// Delivery failures are transient; account problems are permission denied.
type MailTransport interface {
	Send(ctx context.Context, to, subject, body string) (string, error)
}

// Calendar reads commitments and books interview slots. Book fails with
// the conflict kind when the slot was taken between search and booking,
// and transient for backend unavailability.
type Calendar interface {
	ListCommitments(ctx context.Context, account string, from, to time.Time) ([]calendar.Commitment, error)
	Book(ctx context.Context, slot calendar.Interval, participants []string) (string, error)
}

// ResponseKind classifies an employer reply.
type ResponseKind string

const (
	// ResponseRejection closes the record.
	ResponseRejection ResponseKind = "rejection"

	// ResponseInterviewRequest marks the record ready for scheduling. It
	// may carry the employer's proposed start time.
	ResponseInterviewRequest ResponseKind = "interview_request"

	// ResponsePositive is an encouraging reply that decides nothing; it is
	// logged and the record keeps waiting.
	ResponsePositive ResponseKind = "positive"
)

// Response is one classified employer reply to an application.
type Response struct {
	Kind          ResponseKind `json:"kind"`
	ReceivedAt    time.Time    `json:"received_at"`
	ProposedStart *time.Time   `json:"proposed_start,omitempty"`
	Excerpt       string       `json:"excerpt,omitempty"`
}

// Inbox surfaces replies addressed to a record's application thread.
type Inbox interface {
	ResponsesFor(ctx context.Context, rec *lifecycle.JobRecord) ([]Response, error)
}

// Decisive reports whether the response resolves the waiting state:
// rejections and interview requests move the record, positives do not.
func (r Response) Decisive() bool {
	return r.Kind == ResponseRejection || r.Kind == ResponseInterviewRequest
}
