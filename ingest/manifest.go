// Package ingest pulls job postings from configured sources and feeds
// them through the deduplicator into the pipeline. Sources are declared
// in a TOML manifest; fetches share one politeness limiter so a cycle
// never hammers the boards.
package ingest

import (
	"time"

	"github.com/BurntSushi/toml"

	"github.com/teranos/pursuit/errors"
	"github.com/teranos/pursuit/internal/httpclient"
	"github.com/teranos/pursuit/pipeline/collab"
)

// Manifest is the parsed sources.toml.
type Manifest struct {
	Sources []SourceSpec `toml:"source"`
}

// SourceSpec declares one posting source.
//
//	[[source]]
//	name = "weworkremotely"
//	platform = "wwr"
//	kind = "feed"
//	url = "https://example.com/jobs.json"
type SourceSpec struct {
	Name     string `toml:"name"`
	Platform string `toml:"platform"`
	Kind     string `toml:"kind"`
	URL      string `toml:"url"`
	Disabled bool   `toml:"disabled"`
}

// Source kinds the builder knows how to construct.
const (
	KindFeed = "feed" // JSON feed over HTTP
)

// LoadManifest reads and validates a sources.toml.
func LoadManifest(path string) (*Manifest, error) {
	var m Manifest
	if _, err := toml.DecodeFile(path, &m); err != nil {
		return nil, errors.Wrapf(err, "load source manifest %s", path)
	}

	seen := make(map[string]bool, len(m.Sources))
	for i, spec := range m.Sources {
		if spec.Name == "" {
			return nil, errors.Newf("source %d in %s has no name", i+1, path)
		}
		if seen[spec.Name] {
			return nil, errors.Newf("duplicate source name %q in %s", spec.Name, path)
		}
		seen[spec.Name] = true

		if spec.Platform == "" {
			return nil, errors.Newf("source %q has no platform", spec.Name)
		}
		switch spec.Kind {
		case KindFeed:
			if spec.URL == "" {
				return nil, errors.Newf("feed source %q has no url", spec.Name)
			}
		default:
			return nil, errors.Newf("source %q has unknown kind %q", spec.Name, spec.Kind)
		}
	}
	return &m, nil
}

// Build constructs the enabled sources. All feed sources share one
// SSRF-guarded HTTP client.
func (m *Manifest) Build(timeout time.Duration) ([]collab.PostingSource, error) {
	client := httpclient.NewSaferClient(timeout)

	var sources []collab.PostingSource
	for _, spec := range m.Sources {
		if spec.Disabled {
			continue
		}
		switch spec.Kind {
		case KindFeed:
			sources = append(sources, NewFeedSource(spec, client))
		default:
			return nil, errors.Newf("source %q has unknown kind %q", spec.Name, spec.Kind)
		}
	}
	return sources, nil
}
