package collab

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"text/template"
	"time"

	"github.com/google/uuid"

	"github.com/teranos/pursuit/errors"
	"github.com/teranos/pursuit/pipeline/calendar"
	"github.com/teranos/pursuit/pipeline/lifecycle"
)

// Local collaborators: a credential-free binding set for running the
// pipeline end to end on one machine. Extraction is pattern-based,
// composed mail lands in an outbox directory for review before any real
// transport picks it up, and responses are read back from an inbox
// directory the user fills after checking their mail.

var (
	emailPattern = regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)

	// salaryPattern matches "70000-90000", "70,000 – 90,000", "70k-90k".
	salaryPattern = regexp.MustCompile(`(?i)(\d{2,3}[,.]?\d{3}|\d{2,3}k)\s*[-–to]{1,3}\s*(\d{2,3}[,.]?\d{3}|\d{2,3}k)`)

	// requirementsPattern captures the sentence or list that follows a
	// requirements heading.
	requirementsPattern = regexp.MustCompile(`(?is)(?:requirements|qualifications|what you bring|we expect)[:\s]+(.{10,400}?)(?:\n\n|\z)`)
)

// PatternExtractor derives structured fields from posting text with
// regular expressions. A description with no contact address can never
// produce a sendable application, so it fails with the malformed kind.
type PatternExtractor struct{}

// Extract implements Extractor.
func (PatternExtractor) Extract(ctx context.Context, description string) (Extraction, error) {
	contact := emailPattern.FindString(description)
	if contact == "" {
		return Extraction{}, errors.MarkMalformed(errors.New("no contact address in description"))
	}

	ext := Extraction{Contact: contact}

	if m := requirementsPattern.FindStringSubmatch(description); m != nil {
		ext.Requirements = strings.TrimSpace(m[1])
	} else {
		// No heading: keep the first sentence as a stand-in.
		first := description
		if idx := strings.IndexByte(first, '.'); idx > 0 {
			first = first[:idx]
		}
		ext.Requirements = strings.TrimSpace(first)
	}

	if m := salaryPattern.FindStringSubmatch(description); m != nil {
		if lo, ok := parseSalary(m[1]); ok {
			if hi, ok := parseSalary(m[2]); ok && hi >= lo {
				ext.SalaryMin = &lo
				ext.SalaryMax = &hi
			}
		}
	}
	return ext, nil
}

// parseSalary turns "70,000" or "70k" into 70000.
func parseSalary(s string) (int64, bool) {
	s = strings.ToLower(strings.NewReplacer(",", "", ".", "").Replace(strings.TrimSpace(s)))
	if strings.HasSuffix(s, "k") {
		n, err := strconv.ParseInt(strings.TrimSuffix(s, "k"), 10, 64)
		if err != nil {
			return 0, false
		}
		return n * 1000, true
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

var applicationTmpl = template.Must(template.New("application").Parse(
	`Dear {{.Company}} team,

I am writing to apply for the {{.Title}} position{{if .Location}} in {{.Location}}{{end}}.
{{if .Requirements}}
My background matches what you are looking for: {{.Requirements}}
{{end}}
I would welcome the chance to talk. Thank you for your consideration.
`))

var followUpTmpl = template.Must(template.New("follow_up").Parse(
	`Dear {{.Company}} team,

I recently applied for the {{.Title}} position and wanted to follow up
on the status of my application. I remain very interested in the role.

Thank you for your time.
`))

// TemplateComposer drafts messages from fixed text templates.
type TemplateComposer struct{}

// Compose implements Composer.
func (TemplateComposer) Compose(ctx context.Context, kind TemplateKind, rec *lifecycle.JobRecord) (Draft, error) {
	var tmpl *template.Template
	var subject string
	switch kind {
	case TemplateApplication:
		tmpl = applicationTmpl
		subject = fmt.Sprintf("Application for %s", rec.Title)
	case TemplateFollowUp:
		tmpl = followUpTmpl
		subject = fmt.Sprintf("Following up: %s application", rec.Title)
	default:
		return Draft{}, errors.MarkMalformed(errors.Newf("unknown template kind %q", kind))
	}

	requirements := ""
	if rec.Requirements != nil {
		requirements = *rec.Requirements
	}
	var body bytes.Buffer
	err := tmpl.Execute(&body, struct {
		Company, Title, Location, Requirements string
	}{rec.Company, rec.Title, rec.Location, requirements})
	if err != nil {
		return Draft{}, errors.MarkMalformed(errors.Wrap(err, "render template"))
	}
	return Draft{Subject: subject, Body: body.String()}, nil
}

// OutboxMail writes each message into a directory as an .eml-style file
// instead of transmitting it. The write is temp-file-then-rename so a
// crash never leaves a half-written message a real transport might pick
// up.
type OutboxMail struct {
	Dir string
}

// Send implements MailTransport.
func (o *OutboxMail) Send(ctx context.Context, to, subject, body string) (string, error) {
	if err := os.MkdirAll(o.Dir, 0755); err != nil {
		return "", errors.MarkPermissionDenied(errors.Wrapf(err, "create outbox %s", o.Dir))
	}

	id := uuid.New().String()
	content := fmt.Sprintf("To: %s\nSubject: %s\nMessage-ID: <%s>\nDate: %s\n\n%s",
		to, subject, id, time.Now().Format(time.RFC1123Z), body)

	tmp := filepath.Join(o.Dir, "."+id+".tmp")
	if err := os.WriteFile(tmp, []byte(content), 0644); err != nil {
		return "", errors.MarkTransient(errors.Wrap(err, "write outbox message"))
	}
	final := filepath.Join(o.Dir, id+".eml")
	if err := os.Rename(tmp, final); err != nil {
		os.Remove(tmp)
		return "", errors.MarkTransient(errors.Wrap(err, "finalize outbox message"))
	}
	return id, nil
}

// CacheCalendar serves commitments from the local commitment cache and
// books into it. With no external calendar account configured this keeps
// double-booking protection working against pursuit's own bookings.
type CacheCalendar struct {
	Store *calendar.Store
}

// ListCommitments implements Calendar.
func (c *CacheCalendar) ListCommitments(ctx context.Context, account string, from, to time.Time) ([]calendar.Commitment, error) {
	all, err := c.Store.Commitments()
	if err != nil {
		return nil, errors.MarkTransient(err)
	}
	window := calendar.Interval{Start: from, End: to}
	var out []calendar.Commitment
	for _, commitment := range all {
		if commitment.Interval().Overlaps(window) {
			out = append(out, commitment)
		}
	}
	return out, nil
}

// Book implements Calendar.
func (c *CacheCalendar) Book(ctx context.Context, slot calendar.Interval, participants []string) (string, error) {
	existing, err := c.Store.Commitments()
	if err != nil {
		return "", errors.MarkTransient(err)
	}
	for _, commitment := range existing {
		if commitment.Interval().Overlaps(slot) {
			return "", errors.MarkConflict(errors.Newf("slot %s already booked", slot.Start.Format(time.RFC3339)))
		}
	}

	id := uuid.New().String()
	err = c.Store.Add(calendar.Commitment{
		ID:          id,
		Start:       slot.Start,
		End:         slot.End,
		Participant: strings.Join(participants, ","),
		Summary:     "Interview",
	}, time.Now())
	if err != nil {
		return "", errors.MarkTransient(err)
	}
	return id, nil
}

// DirInbox reads classified responses from <dir>/<fingerprint>.json, each
// file a JSON array of Response. The user classifies replies by hand and
// drops them here; check_response does the rest.
type DirInbox struct {
	Dir string
}

// ResponsesFor implements Inbox. A missing file means no responses yet.
func (d *DirInbox) ResponsesFor(ctx context.Context, rec *lifecycle.JobRecord) ([]Response, error) {
	path := filepath.Join(d.Dir, rec.Fingerprint+".json")
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.MarkTransient(errors.Wrapf(err, "read inbox file %s", path))
	}

	var responses []Response
	if err := json.Unmarshal(data, &responses); err != nil {
		return nil, errors.MarkMalformed(errors.Wrapf(err, "parse inbox file %s", path))
	}
	return responses, nil
}
