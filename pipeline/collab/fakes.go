package collab

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/teranos/pursuit/errors"
	"github.com/teranos/pursuit/pipeline/calendar"
	"github.com/teranos/pursuit/pipeline/lifecycle"
)

// In-memory collaborators. Tests use them to script failures; run
// --simulate wires them in place of real backends so the whole pipeline
// can be exercised without credentials.
//
// All fakes are safe for concurrent use. Error fields are returned on
// every call until cleared; FailFirst fields burn down one failure per
// call, which is how retry paths get exercised.

// FakeSource is an in-memory PostingSource.
type FakeSource struct {
	Name     string
	Postings []RawPosting
	Err      error

	mu         sync.Mutex
	fetchCalls int
}

// Platform returns the configured source name.
func (f *FakeSource) Platform() string { return f.Name }

// Fetch returns the configured postings.
func (f *FakeSource) Fetch(ctx context.Context) ([]RawPosting, error) {
	f.mu.Lock()
	f.fetchCalls++
	f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	out := make([]RawPosting, len(f.Postings))
	copy(out, f.Postings)
	return out, nil
}

// FetchCalls reports how many times Fetch ran.
func (f *FakeSource) FetchCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fetchCalls
}

// FakeExtractor derives structured fields from the description text.
// Descriptions containing MalformedToken fail with the malformed kind.
type FakeExtractor struct {
	MalformedToken string
	Err            error

	mu    sync.Mutex
	calls int
}

// Extract returns a deterministic extraction built from the description.
func (f *FakeExtractor) Extract(ctx context.Context, description string) (Extraction, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.Err != nil {
		return Extraction{}, f.Err
	}
	if f.MalformedToken != "" && strings.Contains(description, f.MalformedToken) {
		return Extraction{}, errors.MarkMalformed(errors.Newf("description contains %q", f.MalformedToken))
	}

	first := description
	if idx := strings.IndexByte(first, '.'); idx > 0 {
		first = first[:idx]
	}
	return Extraction{
		Requirements: strings.TrimSpace(first),
		Contact:      "careers@example.com",
	}, nil
}

// Calls reports how many times Extract ran.
func (f *FakeExtractor) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// FakeComposer drafts plain-text messages from record fields.
type FakeComposer struct {
	Err error
}

// Compose returns a deterministic draft for the record.
func (f *FakeComposer) Compose(ctx context.Context, kind TemplateKind, rec *lifecycle.JobRecord) (Draft, error) {
	if f.Err != nil {
		return Draft{}, f.Err
	}
	switch kind {
	case TemplateApplication:
		return Draft{
			Subject: fmt.Sprintf("Application: %s at %s", rec.Title, rec.Company),
			Body:    fmt.Sprintf("Dear %s team,\n\nI would like to apply for the %s position.\n", rec.Company, rec.Title),
		}, nil
	case TemplateFollowUp:
		return Draft{
			Subject: fmt.Sprintf("Following up: %s at %s", rec.Title, rec.Company),
			Body:    fmt.Sprintf("Dear %s team,\n\nI wanted to follow up on my application for the %s position.\n", rec.Company, rec.Title),
		}, nil
	default:
		return Draft{}, errors.MarkMalformed(errors.Newf("unknown template kind %q", kind))
	}
}

// SentMessage is one message a FakeMail accepted.
type SentMessage struct {
	To      string
	Subject string
	Body    string
}

// FakeMail records sent messages and hands out sequential message IDs.
type FakeMail struct {
	Err       error
	FailFirst int

	mu   sync.Mutex
	sent []SentMessage
	seq  int
}

// Send records the message and returns a fresh message ID.
func (f *FakeMail) Send(ctx context.Context, to, subject, body string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return "", f.Err
	}
	if f.FailFirst > 0 {
		f.FailFirst--
		return "", errors.MarkTransient(errors.New("mail backend unavailable"))
	}
	f.seq++
	f.sent = append(f.sent, SentMessage{To: to, Subject: subject, Body: body})
	return fmt.Sprintf("msg-%04d", f.seq), nil
}

// Sent returns a copy of everything accepted so far.
func (f *FakeMail) Sent() []SentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]SentMessage, len(f.sent))
	copy(out, f.sent)
	return out
}

// FakeCalendar serves commitments from memory and records bookings.
type FakeCalendar struct {
	ListErr error
	BookErr error

	mu          sync.Mutex
	commitments []calendar.Commitment
	bookSeq     int
}

// NewFakeCalendar builds a calendar pre-loaded with commitments.
func NewFakeCalendar(commitments ...calendar.Commitment) *FakeCalendar {
	return &FakeCalendar{commitments: commitments}
}

// ListCommitments returns commitments overlapping [from, to).
func (f *FakeCalendar) ListCommitments(ctx context.Context, account string, from, to time.Time) ([]calendar.Commitment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ListErr != nil {
		return nil, f.ListErr
	}
	window := calendar.Interval{Start: from, End: to}
	var out []calendar.Commitment
	for _, c := range f.commitments {
		if c.Interval().Overlaps(window) {
			out = append(out, c)
		}
	}
	return out, nil
}

// Book reserves the slot, failing with the conflict kind when it overlaps
// an existing commitment. Successful bookings become commitments, so a
// second booking of the same slot conflicts.
func (f *FakeCalendar) Book(ctx context.Context, slot calendar.Interval, participants []string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.BookErr != nil {
		return "", f.BookErr
	}
	for _, c := range f.commitments {
		if c.Interval().Overlaps(slot) {
			return "", errors.MarkConflict(errors.Newf("slot %s already booked", slot.Start.Format(time.RFC3339)))
		}
	}
	f.bookSeq++
	id := fmt.Sprintf("booking-%04d", f.bookSeq)
	f.commitments = append(f.commitments, calendar.Commitment{
		ID:          id,
		Start:       slot.Start,
		End:         slot.End,
		Participant: strings.Join(participants, ","),
		Summary:     "Interview",
	})
	return id, nil
}

// Commitments returns a copy of the current commitment set.
func (f *FakeCalendar) Commitments() []calendar.Commitment {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]calendar.Commitment, len(f.commitments))
	copy(out, f.commitments)
	return out
}

// FakeInbox serves scripted responses keyed by record fingerprint.
type FakeInbox struct {
	Err error

	mu        sync.Mutex
	responses map[string][]Response
}

// NewFakeInbox builds an empty inbox.
func NewFakeInbox() *FakeInbox {
	return &FakeInbox{responses: make(map[string][]Response)}
}

// Deliver queues a response for the record with the given fingerprint.
func (f *FakeInbox) Deliver(fingerprint string, r Response) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.responses == nil {
		f.responses = make(map[string][]Response)
	}
	f.responses[fingerprint] = append(f.responses[fingerprint], r)
}

// ResponsesFor returns every response delivered for the record.
func (f *FakeInbox) ResponsesFor(ctx context.Context, rec *lifecycle.JobRecord) ([]Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	out := make([]Response, len(f.responses[rec.Fingerprint]))
	copy(out, f.responses[rec.Fingerprint])
	return out, nil
}
