package ingest

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/teranos/pursuit/am"
	"github.com/teranos/pursuit/pipeline/collab"
	"github.com/teranos/pursuit/testutil"
)

var ingestBase = time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)

func TestValidateRequiresIdentity(t *testing.T) {
	assert.NoError(t, Validate(testutil.Posting("hn", "Acme", "Engineer")))

	p := testutil.Posting("hn", "Acme", "Engineer")
	p.Company = "   "
	assert.Error(t, Validate(p))

	p = testutil.Posting("hn", "Acme", "Engineer")
	p.Title = ""
	assert.Error(t, Validate(p))
}

func TestValidateToleratesPartialFields(t *testing.T) {
	p := collab.RawPosting{Company: "Acme", Title: "Engineer"}
	assert.NoError(t, Validate(p))
}

func TestFilterAdmitEmptyFilterKeepsEverything(t *testing.T) {
	ok, _ := Filter{}.Admit(testutil.Posting("hn", "Acme", "Engineer"), ingestBase)
	assert.True(t, ok)
}

func TestFilterAdmitExcludedCompany(t *testing.T) {
	f := Filter{ExcludeCompanies: []string{"acme"}}

	ok, reason := f.Admit(testutil.Posting("hn", "Acme", "Engineer"), ingestBase)
	assert.False(t, ok)
	assert.Equal(t, "company excluded", reason)

	ok, _ = f.Admit(testutil.Posting("hn", "Umbrella", "Engineer"), ingestBase)
	assert.True(t, ok)
}

func TestFilterAdmitAgeLimit(t *testing.T) {
	f := Filter{PostedWithin: 7 * 24 * time.Hour}

	ok, reason := f.Admit(testutil.PostingAt("hn", "Acme", "Engineer", ingestBase.Add(-8*24*time.Hour)), ingestBase)
	assert.False(t, ok)
	assert.Equal(t, "posted too long ago", reason)

	ok, _ = f.Admit(testutil.PostingAt("hn", "Acme", "Engineer", ingestBase.Add(-2*24*time.Hour)), ingestBase)
	assert.True(t, ok)

	// Postings without a publication time are kept.
	ok, _ = f.Admit(testutil.Posting("hn", "Acme", "Engineer"), ingestBase)
	assert.True(t, ok)
}

func TestFilterAdmitKeywords(t *testing.T) {
	f := Filter{Keywords: []string{"platform", "infrastructure"}}

	ok, _ := f.Admit(testutil.Posting("hn", "Acme", "Platform Engineer"), ingestBase)
	assert.True(t, ok)

	// Keywords match the description too.
	p := testutil.Posting("hn", "Acme", "Engineer")
	p.Description = "You will own our infrastructure."
	ok, _ = f.Admit(p, ingestBase)
	assert.True(t, ok)

	ok, reason := f.Admit(testutil.Posting("hn", "Acme", "Accountant"), ingestBase)
	assert.False(t, ok)
	assert.Equal(t, "no keyword match", reason)
}

func TestFilterAdmitLocations(t *testing.T) {
	f := Filter{Locations: []string{"berlin", "remote"}}

	ok, _ := f.Admit(testutil.Posting("hn", "Acme", "Engineer"), ingestBase) // Berlin fixture
	assert.True(t, ok)

	p := testutil.Posting("hn", "Acme", "Engineer")
	p.Location = "Boston"
	ok, reason := f.Admit(p, ingestBase)
	assert.False(t, ok)
	assert.Equal(t, "location not wanted", reason)
}

func TestFilterFromConfig(t *testing.T) {
	f := FilterFromConfig(am.SearchConfig{
		Keywords:         []string{"go"},
		Locations:        []string{"berlin"},
		ExcludeCompanies: []string{"Evil Corp"},
		PostedWithinDays: 3,
	})

	assert.Equal(t, []string{"go"}, f.Keywords)
	assert.Equal(t, 3*24*time.Hour, f.PostedWithin)
}
