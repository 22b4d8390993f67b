// Package calendar finds interview slots against existing commitments.
// The resolver is pure: it never talks to a calendar backend, it only
// searches the commitment list the caller hands it.
package calendar

import (
	"time"

	"github.com/teranos/pursuit/am"
	"github.com/teranos/pursuit/am/geotime"
	"github.com/teranos/pursuit/errors"
)

// Interval is a half-open time range [Start, End).
type Interval struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Duration returns the interval length.
func (iv Interval) Duration() time.Duration {
	return iv.End.Sub(iv.Start)
}

// Overlaps reports whether two half-open intervals share any instant.
func (iv Interval) Overlaps(other Interval) bool {
	return iv.Start.Before(other.End) && other.Start.Before(iv.End)
}

// Contains reports whether t falls inside the interval.
func (iv Interval) Contains(t time.Time) bool {
	return !t.Before(iv.Start) && t.Before(iv.End)
}

// IsValid reports whether the interval has positive length.
func (iv Interval) IsValid() bool {
	return iv.End.After(iv.Start)
}

// Commitment is one busy block on the calendar.
type Commitment struct {
	ID          string    `json:"id"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
	Participant string    `json:"participant,omitempty"`
	Summary     string    `json:"summary,omitempty"`
}

// Interval returns the commitment's busy range.
func (c Commitment) Interval() Interval {
	return Interval{Start: c.Start, End: c.End}
}

// Constraints bound the slot search. The zero value is not usable; build
// one with ConstraintsFromConfig or fill every field.
type Constraints struct {
	// WorkdayStart and WorkdayEnd bound candidate slots within each day,
	// expressed as minutes from midnight in Timezone.
	WorkdayStart time.Duration
	WorkdayEnd   time.Duration

	// MinBuffer is the clearance required before and after each commitment.
	// It does not apply at working-hour edges: a slot may start the minute
	// the workday opens.
	MinBuffer time.Duration

	// Location the workday is anchored in.
	Location *time.Location

	// HorizonDays is how many days ahead of the requested slot to scan
	// before giving up.
	HorizonDays int

	// ScanIncrement is the step between candidate starts. Zero means
	// min(15 minutes, requested duration).
	ScanIncrement time.Duration
}

// ConstraintsFromConfig builds search constraints from the scheduling
// section of the config. An empty timezone falls back to the host zone.
func ConstraintsFromConfig(cfg am.SchedulingConfig) (Constraints, error) {
	start, err := parseClock(cfg.WorkdayStart)
	if err != nil {
		return Constraints{}, errors.Wrapf(err, "scheduling.workday_start %q", cfg.WorkdayStart)
	}
	end, err := parseClock(cfg.WorkdayEnd)
	if err != nil {
		return Constraints{}, errors.Wrapf(err, "scheduling.workday_end %q", cfg.WorkdayEnd)
	}
	if end <= start {
		return Constraints{}, errors.Newf("scheduling.workday_end %q is not after workday_start %q", cfg.WorkdayEnd, cfg.WorkdayStart)
	}

	tz := cfg.Timezone
	if tz == "" {
		tz, err = geotime.DetectLocalTimezone()
		if err != nil {
			return Constraints{}, errors.Wrap(err, "detect local timezone")
		}
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return Constraints{}, errors.Wrapf(err, "scheduling.timezone %q", tz)
	}

	return Constraints{
		WorkdayStart:  start,
		WorkdayEnd:    end,
		MinBuffer:     time.Duration(cfg.BufferMinutes) * time.Minute,
		Location:      loc,
		HorizonDays:   cfg.HorizonDays,
		ScanIncrement: time.Duration(cfg.IncrementMinutes) * time.Minute,
	}, nil
}

// parseClock converts "HH:MM" to minutes from midnight.
func parseClock(s string) (time.Duration, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, errors.Wrap(err, "expected HH:MM")
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, nil
}
