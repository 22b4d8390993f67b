package ingest

import (
	"strings"
	"time"

	"github.com/teranos/pursuit/am"
	"github.com/teranos/pursuit/errors"
	"github.com/teranos/pursuit/pipeline/collab"
)

// Validate reports whether a posting carries the minimum fields to enter
// the pipeline. Partial fields elsewhere are tolerated; identity is not.
func Validate(raw collab.RawPosting) error {
	if strings.TrimSpace(raw.Company) == "" {
		return errors.New("posting has no company")
	}
	if strings.TrimSpace(raw.Title) == "" {
		return errors.New("posting has no title")
	}
	return nil
}

// Filter holds the configured search preferences. Empty slices admit
// everything for their dimension.
type Filter struct {
	Keywords         []string
	Locations        []string
	ExcludeCompanies []string
	PostedWithin     time.Duration // 0 = no age limit
}

// FilterFromConfig maps the [search] config section onto a Filter.
func FilterFromConfig(cfg am.SearchConfig) Filter {
	return Filter{
		Keywords:         cfg.Keywords,
		Locations:        cfg.Locations,
		ExcludeCompanies: cfg.ExcludeCompanies,
		PostedWithin:     time.Duration(cfg.PostedWithinDays) * 24 * time.Hour,
	}
}

// Admit reports whether a valid posting passes the filters, with the
// first failing reason for the skip log.
func (f Filter) Admit(raw collab.RawPosting, now time.Time) (bool, string) {
	company := strings.ToLower(raw.Company)
	for _, excluded := range f.ExcludeCompanies {
		if company == strings.ToLower(excluded) {
			return false, "company excluded"
		}
	}

	if f.PostedWithin > 0 && raw.PostedAt != nil && now.Sub(*raw.PostedAt) > f.PostedWithin {
		return false, "posted too long ago"
	}

	if len(f.Keywords) > 0 && !containsAny(raw.Title+" "+raw.Description, f.Keywords) {
		return false, "no keyword match"
	}

	if len(f.Locations) > 0 && !containsAny(raw.Location, f.Locations) {
		return false, "location not wanted"
	}

	return true, ""
}

// containsAny reports whether text contains any of the terms, case folded.
func containsAny(text string, terms []string) bool {
	folded := strings.ToLower(text)
	for _, term := range terms {
		if term == "" {
			continue
		}
		if strings.Contains(folded, strings.ToLower(term)) {
			return true
		}
	}
	return false
}
