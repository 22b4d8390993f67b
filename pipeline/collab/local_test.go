package collab

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/pursuit/errors"
	"github.com/teranos/pursuit/internal/util"
	"github.com/teranos/pursuit/pipeline/lifecycle"
)

func TestPatternExtractorFindsContactAndSalary(t *testing.T) {
	ext, err := PatternExtractor{}.Extract(context.Background(),
		"We build pipelines. Salary 70,000-90,000 EUR. Write to careers@acme.example.")
	require.NoError(t, err)

	assert.Equal(t, "careers@acme.example", ext.Contact)
	require.NotNil(t, ext.SalaryMin)
	require.NotNil(t, ext.SalaryMax)
	assert.Equal(t, int64(70000), *ext.SalaryMin)
	assert.Equal(t, int64(90000), *ext.SalaryMax)
}

func TestPatternExtractorParsesAbbreviatedSalary(t *testing.T) {
	ext, err := PatternExtractor{}.Extract(context.Background(),
		"Pay is 70k-90k. Apply at jobs@acme.example.")
	require.NoError(t, err)

	require.NotNil(t, ext.SalaryMin)
	assert.Equal(t, int64(70000), *ext.SalaryMin)
	assert.Equal(t, int64(90000), *ext.SalaryMax)
}

func TestPatternExtractorRequirementsHeading(t *testing.T) {
	ext, err := PatternExtractor{}.Extract(context.Background(),
		"Join us. Requirements: five years of Go and a love of SQLite.\n\nContact jobs@acme.example.")
	require.NoError(t, err)

	assert.Contains(t, ext.Requirements, "five years of Go")
}

func TestPatternExtractorFallsBackToFirstSentence(t *testing.T) {
	ext, err := PatternExtractor{}.Extract(context.Background(),
		"We are hiring an engineer. Reach out to jobs@acme.example.")
	require.NoError(t, err)

	assert.Equal(t, "We are hiring an engineer", ext.Requirements)
}

func TestPatternExtractorNoContactIsMalformed(t *testing.T) {
	_, err := PatternExtractor{}.Extract(context.Background(), "Great job, no way to apply.")
	require.Error(t, err)
	assert.True(t, errors.IsMalformed(err))
}

func templateTestRecord() *lifecycle.JobRecord {
	return &lifecycle.JobRecord{
		Fingerprint:  "0123456789abcdef",
		Company:      "acme",
		Title:        "platform engineer",
		Location:     "berlin",
		Requirements: util.Ptr("go, sql"),
	}
}

func TestTemplateComposerApplication(t *testing.T) {
	draft, err := TemplateComposer{}.Compose(context.Background(), TemplateApplication, templateTestRecord())
	require.NoError(t, err)

	assert.Equal(t, "Application for platform engineer", draft.Subject)
	assert.Contains(t, draft.Body, "Dear acme team")
	assert.Contains(t, draft.Body, "in berlin")
	assert.Contains(t, draft.Body, "go, sql")
}

func TestTemplateComposerFollowUp(t *testing.T) {
	draft, err := TemplateComposer{}.Compose(context.Background(), TemplateFollowUp, templateTestRecord())
	require.NoError(t, err)

	assert.Contains(t, draft.Subject, "Following up")
	assert.Contains(t, draft.Body, "follow up")
}

func TestTemplateComposerUnknownKind(t *testing.T) {
	_, err := TemplateComposer{}.Compose(context.Background(), TemplateKind("resignation"), templateTestRecord())
	require.Error(t, err)
	assert.True(t, errors.IsMalformed(err))
}

func TestOutboxMailWritesMessageFile(t *testing.T) {
	dir := t.TempDir()
	outbox := &OutboxMail{Dir: filepath.Join(dir, "outbox")}

	id, err := outbox.Send(context.Background(), "careers@acme.example", "Application", "Dear team,")
	require.NoError(t, err)
	require.NotEmpty(t, id)

	data, err := os.ReadFile(filepath.Join(outbox.Dir, id+".eml"))
	require.NoError(t, err)
	content := string(data)
	assert.Contains(t, content, "To: careers@acme.example")
	assert.Contains(t, content, "Subject: Application")
	assert.Contains(t, content, "Dear team,")

	// No temp files linger after the rename.
	entries, err := os.ReadDir(outbox.Dir)
	require.NoError(t, err)
	for _, e := range entries {
		assert.False(t, strings.HasSuffix(e.Name(), ".tmp"), e.Name())
	}
}

func TestDirInboxMissingFileMeansNoResponses(t *testing.T) {
	inbox := &DirInbox{Dir: t.TempDir()}

	responses, err := inbox.ResponsesFor(context.Background(), templateTestRecord())
	require.NoError(t, err)
	assert.Empty(t, responses)
}

func TestDirInboxReadsClassifiedResponses(t *testing.T) {
	dir := t.TempDir()
	rec := templateTestRecord()
	content := `[
		{"kind": "rejection", "received_at": "2026-03-02T12:00:00Z", "excerpt": "no thanks"},
		{"kind": "interview_request", "received_at": "2026-03-03T09:00:00Z",
		 "proposed_start": "2026-03-05T10:00:00Z"}
	]`
	require.NoError(t, os.WriteFile(filepath.Join(dir, rec.Fingerprint+".json"), []byte(content), 0o644))

	inbox := &DirInbox{Dir: dir}
	responses, err := inbox.ResponsesFor(context.Background(), rec)
	require.NoError(t, err)
	require.Len(t, responses, 2)

	assert.Equal(t, ResponseRejection, responses[0].Kind)
	assert.Equal(t, "no thanks", responses[0].Excerpt)
	require.NotNil(t, responses[1].ProposedStart)
	assert.Equal(t, time.Date(2026, 3, 5, 10, 0, 0, 0, time.UTC), responses[1].ProposedStart.UTC())
}

func TestDirInboxBadJSONIsMalformed(t *testing.T) {
	dir := t.TempDir()
	rec := templateTestRecord()
	require.NoError(t, os.WriteFile(filepath.Join(dir, rec.Fingerprint+".json"), []byte("{nope"), 0o644))

	inbox := &DirInbox{Dir: dir}
	_, err := inbox.ResponsesFor(context.Background(), rec)
	require.Error(t, err)
	assert.True(t, errors.IsMalformed(err))
}
