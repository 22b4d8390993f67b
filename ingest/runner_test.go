package ingest

import (
	"context"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/teranos/pursuit/am"
	"github.com/teranos/pursuit/errors"
	pursuittest "github.com/teranos/pursuit/internal/testing"
	"github.com/teranos/pursuit/pipeline/collab"
	"github.com/teranos/pursuit/pipeline/dedup"
	"github.com/teranos/pursuit/pipeline/lifecycle"
	"github.com/teranos/pursuit/testutil"
)

// fastSourcesConfig shrinks the politeness gap so cycles finish quickly.
func fastSourcesConfig() am.SourcesConfig {
	return am.SourcesConfig{
		RequestsPerMinute:      6000,
		DelayBetweenRequestsMS: 1,
	}
}

func newTestRunner(t *testing.T, sources []collab.PostingSource, filter Filter, cfg am.SourcesConfig) (*Runner, *lifecycle.Store) {
	t.Helper()
	db := pursuittest.CreateMigratedTestDB(t)
	store := lifecycle.NewStore(db)
	machine := lifecycle.NewMachine(store, lifecycle.MachineConfig{}, zap.NewNop().Sugar())
	deduper := dedup.NewDeduper(machine, zap.NewNop().Sugar())
	return NewRunner(sources, deduper, filter, cfg, zap.NewNop().Sugar()), store
}

func TestPollCountsNewAndMerged(t *testing.T) {
	shared := testutil.Posting("wwr", "Acme", "Platform Engineer")
	srcA := &collab.FakeSource{Name: "hn", Postings: []collab.RawPosting{
		testutil.Posting("hn", "Acme", "Platform Engineer"),
		testutil.Posting("hn", "Umbrella", "Data Engineer"),
	}}
	srcB := &collab.FakeSource{Name: "wwr", Postings: []collab.RawPosting{shared}}

	r, store := newTestRunner(t, []collab.PostingSource{srcA, srcB}, Filter{}, fastSourcesConfig())

	reports, err := r.Poll(context.Background())
	require.NoError(t, err)
	require.Len(t, reports, 2)

	assert.Equal(t, 2, reports[0].Fetched)
	assert.Equal(t, 2, reports[0].New)
	assert.Equal(t, 0, reports[0].Merged)

	// The second board re-lists Acme's posting; it merges, not duplicates.
	assert.Equal(t, 1, reports[1].Fetched)
	assert.Equal(t, 0, reports[1].New)
	assert.Equal(t, 1, reports[1].Merged)

	counts, err := store.StatusCounts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, counts[lifecycle.StatusDiscovered])
}

func TestPollCountsInvalidAndFiltered(t *testing.T) {
	noCompany := testutil.Posting("hn", "Acme", "Engineer")
	noCompany.Company = ""
	src := &collab.FakeSource{Name: "hn", Postings: []collab.RawPosting{
		noCompany,
		testutil.Posting("hn", "Evil Corp", "Engineer"),
		testutil.Posting("hn", "Acme", "Engineer"),
	}}

	filter := Filter{ExcludeCompanies: []string{"evil corp"}}
	r, _ := newTestRunner(t, []collab.PostingSource{src}, filter, fastSourcesConfig())

	reports, err := r.Poll(context.Background())
	require.NoError(t, err)
	require.Len(t, reports, 1)

	assert.Equal(t, 3, reports[0].Fetched)
	assert.Equal(t, 1, reports[0].Invalid)
	assert.Equal(t, 1, reports[0].Filtered)
	assert.Equal(t, 1, reports[0].New)
}

func TestPollFailingSourceDoesNotStopCycle(t *testing.T) {
	broken := &collab.FakeSource{Name: "hn", Err: errors.MarkTransient(errors.New("board down"))}
	healthy := &collab.FakeSource{Name: "wwr", Postings: []collab.RawPosting{
		testutil.Posting("wwr", "Acme", "Engineer"),
	}}

	r, _ := newTestRunner(t, []collab.PostingSource{broken, healthy}, Filter{}, fastSourcesConfig())

	reports, err := r.Poll(context.Background())
	require.NoError(t, err)
	require.Len(t, reports, 2)

	assert.Error(t, reports[0].Err)
	assert.NotEmpty(t, reports[0].Error)
	assert.Equal(t, 1, reports[1].New)
	assert.Equal(t, 1, healthy.FetchCalls())
}

func TestPollHonorsMaxPerCycle(t *testing.T) {
	src := &collab.FakeSource{Name: "hn", Postings: []collab.RawPosting{
		testutil.Posting("hn", "Acme", "Engineer"),
		testutil.Posting("hn", "Umbrella", "Engineer"),
		testutil.Posting("hn", "Initech", "Engineer"),
	}}

	cfg := fastSourcesConfig()
	cfg.MaxPostingsPerCycle = 2
	r, store := newTestRunner(t, []collab.PostingSource{src}, Filter{}, cfg)

	reports, err := r.Poll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, reports[0].New)

	counts, err := store.StatusCounts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, counts[lifecycle.StatusDiscovered])
}

func TestPollStopsOnCanceledContext(t *testing.T) {
	src := &collab.FakeSource{Name: "hn"}
	r, _ := newTestRunner(t, []collab.PostingSource{src}, Filter{}, fastSourcesConfig())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.Poll(ctx)
	assert.Error(t, err)
}
