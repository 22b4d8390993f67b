package ingest

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/teranos/pursuit/am"
	"github.com/teranos/pursuit/logger"
	"github.com/teranos/pursuit/pipeline/collab"
	"github.com/teranos/pursuit/pipeline/dedup"
)

// SourceReport is the outcome of polling one source. Fetched reconciles
// as Invalid + Filtered + New + Merged + Failed.
type SourceReport struct {
	Source   string `json:"source"`
	Platform string `json:"platform"`
	Fetched  int    `json:"fetched"`
	Invalid  int    `json:"invalid"`
	Filtered int    `json:"filtered"`
	New      int    `json:"new"`
	Merged   int    `json:"merged"`
	Failed   int    `json:"failed"`
	Err      error  `json:"-"`

	// Error mirrors Err for JSON reports.
	Error string `json:"error,omitempty"`
}

// Runner polls every configured source once per cycle. One rate limiter
// spans all sources: job boards ban scrapers, not people, and the gap
// between requests is what keeps us looking like the latter.
type Runner struct {
	sources []collab.PostingSource
	deduper *dedup.Deduper
	filter  Filter
	limiter *rate.Limiter

	maxPerCycle int

	log     *zap.SugaredLogger
	timeNow func() time.Time
}

// NewRunner creates a runner over the built sources. The politeness gap
// is the stricter of requests_per_minute and delay_between_requests_ms.
func NewRunner(sources []collab.PostingSource, deduper *dedup.Deduper, filter Filter, cfg am.SourcesConfig, log *zap.SugaredLogger) *Runner {
	perMinute := cfg.RequestsPerMinute
	if perMinute <= 0 {
		perMinute = 10
	}
	gap := time.Minute / time.Duration(perMinute)
	if delay := time.Duration(cfg.DelayBetweenRequestsMS) * time.Millisecond; delay > gap {
		gap = delay
	}

	return &Runner{
		sources:     sources,
		deduper:     deduper,
		filter:      filter,
		limiter:     rate.NewLimiter(rate.Every(gap), 1),
		maxPerCycle: cfg.MaxPostingsPerCycle,
		log:         logger.AddIXSymbol(log),
		timeNow:     time.Now,
	}
}

// Poll fetches each source in turn, validates and filters what came
// back, and upserts the keepers. A failing source is reported and
// skipped; only context cancellation stops the cycle.
func (r *Runner) Poll(ctx context.Context) ([]SourceReport, error) {
	reports := make([]SourceReport, 0, len(r.sources))
	admitted := 0

	for _, src := range r.sources {
		if err := r.limiter.Wait(ctx); err != nil {
			return reports, err
		}

		rep := r.pollSource(ctx, src, &admitted)
		reports = append(reports, rep)

		if rep.Err != nil {
			r.log.Warnw("Source fetch failed",
				logger.FieldPlatform, rep.Platform,
				logger.FieldError, rep.Err.Error(),
			)
			continue
		}
		r.log.Infow("Source polled",
			logger.FieldPlatform, rep.Platform,
			"fetched", rep.Fetched,
			"new", rep.New,
			"merged", rep.Merged,
			"filtered", rep.Filtered,
			"invalid", rep.Invalid,
		)
	}
	return reports, nil
}

func (r *Runner) pollSource(ctx context.Context, src collab.PostingSource, admitted *int) SourceReport {
	rep := SourceReport{
		Source:   sourceName(src),
		Platform: src.Platform(),
	}

	postings, err := src.Fetch(ctx)
	if err != nil {
		rep.Err = err
		rep.Error = err.Error()
		return rep
	}
	rep.Fetched = len(postings)

	now := r.timeNow()
	for _, raw := range postings {
		if r.maxPerCycle > 0 && *admitted >= r.maxPerCycle {
			break
		}

		if err := Validate(raw); err != nil {
			rep.Invalid++
			r.log.Debugw("Posting rejected",
				logger.FieldPlatform, rep.Platform,
				logger.FieldSourceID, raw.SourceID,
				logger.FieldError, err.Error(),
			)
			continue
		}

		if ok, reason := r.filter.Admit(raw, now); !ok {
			rep.Filtered++
			r.log.Debugw("Posting filtered",
				logger.FieldPlatform, rep.Platform,
				logger.FieldCompany, raw.Company,
				"reason", reason,
			)
			continue
		}

		_, created, err := r.deduper.Upsert(ctx, raw)
		if err != nil {
			rep.Failed++
			r.log.Errorw("Posting upsert failed",
				logger.FieldPlatform, rep.Platform,
				logger.FieldCompany, raw.Company,
				logger.FieldTitle, raw.Title,
				logger.FieldError, err.Error(),
			)
			continue
		}
		if created {
			rep.New++
		} else {
			rep.Merged++
		}
		*admitted++
	}
	return rep
}

// sourceName prefers the manifest name when the source carries one.
func sourceName(src collab.PostingSource) string {
	if named, ok := src.(interface{ Name() string }); ok {
		return named.Name()
	}
	return src.Platform()
}
