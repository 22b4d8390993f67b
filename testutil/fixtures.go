package testutil

import (
	"strings"
	"time"

	"github.com/teranos/pursuit/pipeline/collab"
	"github.com/teranos/pursuit/pipeline/dedup"
)

// Posting returns a plausible raw posting. The description mentions a
// salary range so fake extractors have something to find.
func Posting(platform, company, title string) collab.RawPosting {
	id := strings.ToLower(strings.ReplaceAll(company+"-"+title, " ", "-"))
	return collab.RawPosting{
		Company:        company,
		Title:          title,
		Location:       "Berlin",
		Description:    "We are hiring. Salary 70000-90000 EUR. Write to careers@example.com.",
		SourceID:       id,
		SourcePlatform: platform,
		URL:            "https://" + platform + ".example.com/jobs/" + id,
	}
}

// PostingAt is Posting with an explicit publication time, for age-filter
// tests.
func PostingAt(platform, company, title string, postedAt time.Time) collab.RawPosting {
	p := Posting(platform, company, title)
	p.PostedAt = &postedAt
	return p
}

// Fingerprint returns the dedup identity the pipeline would assign to a
// posting, so tests can address records created through ingest.
func Fingerprint(company, title, location string) string {
	return dedup.Fingerprint(dedup.Canonicalize(company, title, location))
}
