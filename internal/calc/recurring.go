package calc

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Interval is the recurrence cadence.
type Interval string

const (
	Monthly  Interval = "MONTHLY"
	Weekly   Interval = "WEEKLY"
	Biweekly Interval = "BIWEEKLY"
)

// Valid reports whether i is a known interval.
func (i Interval) Valid() bool {
	switch i {
	case Monthly, Weekly, Biweekly:
		return true
	}
	return false
}

// MonthEndPolicy decides what happens when the day of month does not exist in
// the target month (day 31 in April, day 30 in February).
type MonthEndPolicy string

const (
	// PolicyClamp uses the last day of the target month.
	PolicyClamp MonthEndPolicy = "clamp"
	// PolicyOverflow lets the date spill into the following month
	// (April 31 becomes May 1).
	PolicyOverflow MonthEndPolicy = "overflow"
)

var (
	ErrInvalidDayOfMonth = errors.New("day of month must be between 1 and 31")
	ErrUnknownPolicy     = errors.New("unknown month-end policy")
	ErrUnknownInterval   = errors.New("unknown recurrence interval")
)

// ParsePolicy accepts "clamp" or "overflow" (case-insensitive). Empty means clamp.
func ParsePolicy(s string) (MonthEndPolicy, error) {
	switch MonthEndPolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", PolicyClamp:
		return PolicyClamp, nil
	case PolicyOverflow:
		return PolicyOverflow, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownPolicy, s)
}

// NextDueDate returns the first recurring due date that is today or later.
// The candidate is built in now's month; if it falls strictly before today it
// moves to the same day of the following month. Comparison is by calendar day
// in now's location, so a charge due today stays today.
func NextDueDate(dayOfMonth int, now time.Time, policy MonthEndPolicy) (time.Time, error) {
	if dayOfMonth < 1 || dayOfMonth > 31 {
		return time.Time{}, ErrInvalidDayOfMonth
	}
	if policy == "" {
		policy = PolicyClamp
	}
	if policy != PolicyClamp && policy != PolicyOverflow {
		return time.Time{}, fmt.Errorf("%w: %q", ErrUnknownPolicy, policy)
	}

	loc := now.Location()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)

	candidate := dateIn(now.Year(), now.Month(), dayOfMonth, loc, policy)
	if candidate.Before(today) {
		candidate = dateIn(now.Year(), now.Month()+1, dayOfMonth, loc, policy)
	}
	return candidate, nil
}

// dateIn builds year/month/day. time.Date normalizes month 13 into the next
// year, which is what we want; day overflow is handled by the policy.
func dateIn(year int, month time.Month, day int, loc *time.Location, policy MonthEndPolicy) time.Time {
	if policy == PolicyClamp {
		if last := DaysIn(year, month, loc); day > last {
			day = last
		}
	}
	return time.Date(year, month, day, 0, 0, 0, 0, loc)
}

// DaysIn returns the number of days in the given month.
func DaysIn(year int, month time.Month, loc *time.Location) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, loc).Day()
}

// Occurrences lists count due dates starting at first for the interval.
// Monthly occurrences keep the anchor day of first, clamped per policy.
func Occurrences(interval Interval, first time.Time, count int, policy MonthEndPolicy) ([]time.Time, error) {
	if !interval.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownInterval, interval)
	}
	if count <= 0 {
		return nil, nil
	}
	out := make([]time.Time, 0, count)
	anchorDay := first.Day()
	for i := 0; i < count; i++ {
		switch interval {
		case Weekly:
			out = append(out, first.AddDate(0, 0, 7*i))
		case Biweekly:
			out = append(out, first.AddDate(0, 0, 14*i))
		case Monthly:
			out = append(out, dateIn(first.Year(), first.Month()+time.Month(i), anchorDay, first.Location(), policy))
		}
	}
	return out, nil
}

// NextOccurrence returns the occurrence one interval after from. Monthly keeps
// from's day, adjusted per policy when the next month is shorter.
func NextOccurrence(interval Interval, from time.Time, policy MonthEndPolicy) (time.Time, error) {
	occ, err := Occurrences(interval, from, 2, policy)
	if err != nil {
		return time.Time{}, err
	}
	return occ[1], nil
}
