package am

import (
	"time"

	"github.com/teranos/pursuit/am/geotime"
	"github.com/teranos/pursuit/errors"
)

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	// Database path is optional - empty defaults to "pursuit.db" per defaults.go
	// No validation needed here

	// Pipeline workers: 0 = no background workers, negative = invalid
	if c.Pipeline.Workers < 0 {
		return errors.Newf("pipeline.workers must be >= 0, got %d", c.Pipeline.Workers)
	}

	// Tick interval: 0 = no periodic ticking, negative = invalid
	if c.Pipeline.TickIntervalSeconds < 0 {
		return errors.Newf("pipeline.tick_interval_seconds must be >= 0, got %d", c.Pipeline.TickIntervalSeconds)
	}

	// Lease grace: 0 = reap immediately on restart, negative = invalid
	if c.Pipeline.LeaseGraceSeconds < 0 {
		return errors.Newf("pipeline.lease_grace_seconds must be >= 0, got %d", c.Pipeline.LeaseGraceSeconds)
	}

	// Stale threshold: 0 = never mark stale, negative = invalid
	if c.Pipeline.StaleAfterDays < 0 {
		return errors.Newf("pipeline.stale_after_days must be >= 0, got %d", c.Pipeline.StaleAfterDays)
	}

	// Stage sections: zero values fall back to defaults, negatives are invalid
	for name, stage := range c.Stages {
		if stage.MaxAttempts < 0 {
			return errors.Newf("stages.%s.max_attempts must be >= 0, got %d", name, stage.MaxAttempts)
		}
		if stage.BaseBackoffSeconds < 0 {
			return errors.Newf("stages.%s.base_backoff_seconds must be >= 0, got %d", name, stage.BaseBackoffSeconds)
		}
		if stage.BackoffMultiplier < 0 {
			return errors.Newf("stages.%s.backoff_multiplier must be >= 0, got %f", name, stage.BackoffMultiplier)
		}
		if stage.MaxBackoffSeconds < 0 {
			return errors.Newf("stages.%s.max_backoff_seconds must be >= 0, got %d", name, stage.MaxBackoffSeconds)
		}
		if stage.TimeoutSeconds < 0 {
			return errors.Newf("stages.%s.timeout_seconds must be >= 0, got %d", name, stage.TimeoutSeconds)
		}
	}

	// Gate sections: ceiling 0 falls back to default, negatives are invalid
	for destination, gate := range c.Gate {
		if gate.Ceiling < 0 {
			return errors.Newf("gate.%s.ceiling must be >= 0, got %d", destination, gate.Ceiling)
		}
		if gate.WindowSeconds < 0 {
			return errors.Newf("gate.%s.window_seconds must be >= 0, got %d", destination, gate.WindowSeconds)
		}
	}

	// Scheduling: workday bounds must parse and be ordered when both set
	if c.Scheduling.WorkdayStart != "" {
		if _, err := time.Parse("15:04", c.Scheduling.WorkdayStart); err != nil {
			return errors.Newf("scheduling.workday_start must be HH:MM, got %q", c.Scheduling.WorkdayStart)
		}
	}
	if c.Scheduling.WorkdayEnd != "" {
		if _, err := time.Parse("15:04", c.Scheduling.WorkdayEnd); err != nil {
			return errors.Newf("scheduling.workday_end must be HH:MM, got %q", c.Scheduling.WorkdayEnd)
		}
	}
	if c.Scheduling.WorkdayStart != "" && c.Scheduling.WorkdayEnd != "" {
		start, _ := time.Parse("15:04", c.Scheduling.WorkdayStart)
		end, _ := time.Parse("15:04", c.Scheduling.WorkdayEnd)
		if !start.Before(end) {
			return errors.Newf("scheduling.workday_start %q must be before workday_end %q",
				c.Scheduling.WorkdayStart, c.Scheduling.WorkdayEnd)
		}
	}
	if c.Scheduling.BufferMinutes < 0 {
		return errors.Newf("scheduling.buffer_minutes must be >= 0, got %d", c.Scheduling.BufferMinutes)
	}
	if c.Scheduling.DurationMinutes < 0 {
		return errors.Newf("scheduling.duration_minutes must be >= 0, got %d", c.Scheduling.DurationMinutes)
	}
	if c.Scheduling.IncrementMinutes < 0 {
		return errors.Newf("scheduling.increment_minutes must be >= 0, got %d", c.Scheduling.IncrementMinutes)
	}
	if c.Scheduling.HorizonDays < 0 {
		return errors.Newf("scheduling.horizon_days must be >= 0, got %d", c.Scheduling.HorizonDays)
	}
	if c.Scheduling.Timezone != "" {
		if err := geotime.ValidateTimezone(c.Scheduling.Timezone); err != nil {
			return errors.Wrapf(err, "scheduling.timezone %q", c.Scheduling.Timezone)
		}
	}

	// Follow-ups: 0 max = follow-ups disabled, negative = invalid
	if c.FollowUp.Days < 0 {
		return errors.Newf("followup.days must be >= 0, got %d", c.FollowUp.Days)
	}
	if c.FollowUp.Max < 0 {
		return errors.Newf("followup.max must be >= 0, got %d", c.FollowUp.Max)
	}

	// Response polling: validate interval only when enabled
	if c.Responses.Enabled && c.Responses.PollIntervalMinutes < 0 {
		return errors.Newf("responses.poll_interval_minutes must be >= 0, got %d", c.Responses.PollIntervalMinutes)
	}

	// Search window: 0 = no age filter, negative = invalid
	if c.Search.PostedWithinDays < 0 {
		return errors.Newf("search.posted_within_days must be >= 0, got %d", c.Search.PostedWithinDays)
	}

	// Ingest politeness: 0 = unlimited, negative = invalid
	if c.Sources.RequestsPerMinute < 0 {
		return errors.Newf("sources.requests_per_minute must be >= 0, got %d", c.Sources.RequestsPerMinute)
	}
	if c.Sources.DelayBetweenRequestsMS < 0 {
		return errors.Newf("sources.delay_between_requests_ms must be >= 0, got %d", c.Sources.DelayBetweenRequestsMS)
	}
	if c.Sources.MaxPostingsPerCycle < 0 {
		return errors.Newf("sources.max_postings_per_cycle must be >= 0, got %d", c.Sources.MaxPostingsPerCycle)
	}

	return nil
}
