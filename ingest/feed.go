package ingest

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/teranos/pursuit/errors"
	"github.com/teranos/pursuit/internal/httpclient"
	"github.com/teranos/pursuit/pipeline/collab"
)

// FeedSource pulls postings from an HTTP JSON feed: a top-level array of
// posting objects. Most job boards expose one, and anything that doesn't
// can be bridged by a scraper publishing the same shape.
type FeedSource struct {
	name     string
	platform string
	url      string
	client   *httpclient.SaferClient
}

// NewFeedSource creates a feed source from its manifest entry.
func NewFeedSource(spec SourceSpec, client *httpclient.SaferClient) *FeedSource {
	return &FeedSource{
		name:     spec.Name,
		platform: spec.Platform,
		url:      spec.URL,
		client:   client,
	}
}

// Name returns the manifest name for reports.
func (s *FeedSource) Name() string { return s.name }

// Platform implements collab.PostingSource.
func (s *FeedSource) Platform() string { return s.platform }

// feedPosting is the wire shape of one feed entry.
type feedPosting struct {
	ID          string `json:"id"`
	Company     string `json:"company"`
	Title       string `json:"title"`
	Location    string `json:"location"`
	Description string `json:"description"`
	URL         string `json:"url"`
	PostedAt    string `json:"posted_at"` // RFC3339; optional
}

// Fetch implements collab.PostingSource. HTTP status maps onto the error
// taxonomy so the caller can tell a flaky board from a revoked key.
func (s *FeedSource) Fetch(ctx context.Context) ([]collab.RawPosting, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "build request for %s", s.name)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, errors.MarkTransient(errors.Wrapf(err, "fetch %s", s.name))
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, errors.MarkRateLimited(errors.Newf("%s returned 429", s.name))
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, errors.MarkPermissionDenied(errors.Newf("%s returned %d", s.name, resp.StatusCode))
	case resp.StatusCode >= 500:
		return nil, errors.MarkTransient(errors.Newf("%s returned %d", s.name, resp.StatusCode))
	default:
		return nil, errors.Newf("%s returned unexpected status %d", s.name, resp.StatusCode)
	}

	var entries []feedPosting
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		return nil, errors.MarkMalformed(errors.Wrapf(err, "decode %s feed", s.name))
	}

	postings := make([]collab.RawPosting, 0, len(entries))
	for _, e := range entries {
		raw := collab.RawPosting{
			Company:        e.Company,
			Title:          e.Title,
			Location:       e.Location,
			Description:    e.Description,
			SourceID:       e.ID,
			SourcePlatform: s.platform,
			URL:            e.URL,
		}
		if e.PostedAt != "" {
			// An unparseable date is not worth rejecting the posting over;
			// the age filter just won't apply.
			if t, err := time.Parse(time.RFC3339, e.PostedAt); err == nil {
				raw.PostedAt = &t
			}
		}
		postings = append(postings, raw)
	}
	return postings, nil
}
