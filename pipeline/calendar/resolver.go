package calendar

import (
	"time"

	"github.com/teranos/pursuit/errors"
)

// defaultScanCap bounds the increment when the caller leaves it unset.
const defaultScanCap = 15 * time.Minute

// FindSlot returns the earliest interval of the requested duration that fits
// inside working hours and keeps MinBuffer clearance from every commitment.
//
// The requested interval is returned unchanged when it is already feasible.
// Otherwise candidates are scanned forward from the requested start in
// ScanIncrement steps, skipping to the next day's opening whenever a
// candidate would spill past the workday end. The first feasible candidate
// wins; there is no preference between candidates beyond start time.
//
// When HorizonDays pass without a feasible candidate, FindSlot returns an
// infeasible error naming the scanned range.
func FindSlot(requested Interval, commitments []Commitment, cons Constraints) (Interval, error) {
	if !requested.IsValid() {
		return Interval{}, errors.Newf("requested interval has no duration: %s", requested.Start.Format(time.RFC3339))
	}
	if cons.Location == nil {
		return Interval{}, errors.New("constraints missing location")
	}
	if cons.WorkdayEnd <= cons.WorkdayStart {
		return Interval{}, errors.New("constraints workday end not after start")
	}

	duration := requested.Duration()
	increment := cons.ScanIncrement
	if increment <= 0 {
		increment = duration
		if increment > defaultScanCap {
			increment = defaultScanCap
		}
	}

	if fitsWorkday(requested, cons) && clearOfCommitments(requested, commitments, cons.MinBuffer) {
		return requested, nil
	}

	scanFrom := requested.Start.In(cons.Location)
	horizon := scanFrom.AddDate(0, 0, cons.HorizonDays)

	cand := scanFrom
	for cand.Before(horizon) {
		dayOpen := clockAt(cand, cons.WorkdayStart, cons.Location)
		dayClose := clockAt(cand, cons.WorkdayEnd, cons.Location)

		if cand.Before(dayOpen) {
			cand = dayOpen
		}
		if cand.Add(duration).After(dayClose) {
			cand = clockAt(cand.AddDate(0, 0, 1), cons.WorkdayStart, cons.Location)
			continue
		}

		slot := Interval{Start: cand, End: cand.Add(duration)}
		if clearOfCommitments(slot, commitments, cons.MinBuffer) {
			return slot, nil
		}
		cand = cand.Add(increment)
	}

	return Interval{}, errors.MarkInfeasible(errors.Newf(
		"no %s slot between %s and %s",
		duration,
		scanFrom.Format(time.RFC3339),
		horizon.Format(time.RFC3339),
	))
}

// NextOpening returns the first slot of the given duration at or after the
// workday opening strictly following `after`. Used as the default requested
// slot when a response proposes no time.
func NextOpening(after time.Time, duration time.Duration, cons Constraints) Interval {
	day := after.In(cons.Location).AddDate(0, 0, 1)
	start := clockAt(day, cons.WorkdayStart, cons.Location)
	return Interval{Start: start, End: start.Add(duration)}
}

// fitsWorkday reports whether the interval sits inside one day's working
// hours in the constraint location.
func fitsWorkday(iv Interval, cons Constraints) bool {
	local := iv.Start.In(cons.Location)
	dayOpen := clockAt(local, cons.WorkdayStart, cons.Location)
	dayClose := clockAt(local, cons.WorkdayEnd, cons.Location)
	return !local.Before(dayOpen) && !iv.End.In(cons.Location).After(dayClose)
}

// clearOfCommitments reports whether the interval keeps `buffer` clearance
// from every commitment. Buffers widen commitments, not the interval, so
// working-hour edges stay bookable.
func clearOfCommitments(iv Interval, commitments []Commitment, buffer time.Duration) bool {
	for _, c := range commitments {
		padded := Interval{Start: c.Start.Add(-buffer), End: c.End.Add(buffer)}
		if iv.Overlaps(padded) {
			return false
		}
	}
	return true
}

// clockAt pins a wall-clock offset onto t's calendar day in loc.
func clockAt(t time.Time, offset time.Duration, loc *time.Location) time.Time {
	local := t.In(loc)
	h := int(offset / time.Hour)
	m := int(offset % time.Hour / time.Minute)
	return time.Date(local.Year(), local.Month(), local.Day(), h, m, 0, 0, loc)
}
