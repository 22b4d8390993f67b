package ingest

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/pursuit/errors"
	"github.com/teranos/pursuit/internal/httpclient"
)

// testFeedClient allows loopback addresses so feeds can be served from
// httptest; production clients keep the private-range block on.
func testFeedClient() *httpclient.SaferClient {
	return httpclient.WrapClient(&http.Client{Timeout: 5 * time.Second})
}

func feedSourceFor(url string) *FeedSource {
	return NewFeedSource(SourceSpec{
		Name:     "test-board",
		Platform: "wwr",
		Kind:     KindFeed,
		URL:      url,
	}, testFeedClient())
}

func TestFeedFetchParsesPostings(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[
			{"id": "j1", "company": "Acme", "title": "Platform Engineer",
			 "location": "Berlin", "description": "Go and SQL.",
			 "url": "https://example.com/j1", "posted_at": "2026-03-01T09:00:00Z"},
			{"id": "j2", "company": "Umbrella", "title": "Data Engineer",
			 "location": "Remote", "posted_at": "not a date"}
		]`))
	}))
	defer srv.Close()

	src := feedSourceFor(srv.URL)
	postings, err := src.Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, postings, 2)

	assert.Equal(t, "Acme", postings[0].Company)
	assert.Equal(t, "j1", postings[0].SourceID)
	assert.Equal(t, "wwr", postings[0].SourcePlatform)
	require.NotNil(t, postings[0].PostedAt)
	assert.Equal(t, 2026, postings[0].PostedAt.Year())

	// Unparseable dates are dropped, not fatal.
	assert.Nil(t, postings[1].PostedAt)
}

func TestFeedFetchStatusMapping(t *testing.T) {
	cases := []struct {
		name   string
		status int
		check  func(error) bool
	}{
		{"rate limited", http.StatusTooManyRequests, errors.IsRateLimited},
		{"unauthorized", http.StatusUnauthorized, errors.IsPermissionDenied},
		{"forbidden", http.StatusForbidden, errors.IsPermissionDenied},
		{"server error", http.StatusBadGateway, errors.IsTransient},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
			}))
			defer srv.Close()

			_, err := feedSourceFor(srv.URL).Fetch(context.Background())
			require.Error(t, err)
			assert.True(t, tc.check(err), "wrong kind for %d: %v", tc.status, err)
		})
	}
}

func TestFeedFetchMalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"this is": "not an array"`))
	}))
	defer srv.Close()

	_, err := feedSourceFor(srv.URL).Fetch(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsMalformed(err))
}

func TestFeedFetchConnectionRefusedIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	_, err := feedSourceFor(srv.URL).Fetch(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsTransient(err))
}
