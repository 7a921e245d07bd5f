// Package report turns a reporting period into a date range and reduces the
// backend's per-machine utilization ratios to a shop-wide figure.
package report

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/signsinfo/capacity/internal/datekey"
)

// ErrInvalidPeriod indicates an unknown period, or a custom period without
// valid, ordered bounds.
var ErrInvalidPeriod = errors.New("invalid report period")

// Period is a named reporting window.
type Period string

const (
	ThisWeek    Period = "this_week"
	Past7Days   Period = "past_7_days"
	ThisMonth   Period = "this_month"
	ThisYear    Period = "this_year"
	Past365Days Period = "past_365_days"
	Custom      Period = "custom"
)

// Periods lists every period in display order.
var Periods = []Period{ThisWeek, Past7Days, ThisMonth, ThisYear, Past365Days, Custom}

var labels = map[Period]string{
	ThisWeek:    "This Week",
	Past7Days:   "Past 7 Days",
	ThisMonth:   "This Month",
	ThisYear:    "This Year",
	Past365Days: "Past 365 Days",
	Custom:      "Custom",
}

// Label returns the human-readable name of the period.
func (p Period) Label() string {
	if l, ok := labels[p]; ok {
		return l
	}
	return string(p)
}

// ParsePeriod accepts a period name ("past_7_days") or its label in any case
// and spacing ("Past 7 Days", "past-7-days").
func ParsePeriod(s string) (Period, error) {
	norm := strings.ToLower(strings.TrimSpace(s))
	norm = strings.NewReplacer(" ", "_", "-", "_").Replace(norm)
	p := Period(norm)
	if _, ok := labels[p]; !ok {
		return "", fmt.Errorf("%q: %w", s, ErrInvalidPeriod)
	}
	return p, nil
}

// Range is an inclusive pair of calendar days.
type Range struct {
	Start datekey.Key
	End   datekey.Key
}

func (r Range) String() string {
	return r.Start.String() + " .. " + r.End.String()
}

// Resolve computes the date range of p as seen at now. custom supplies the
// bounds of the Custom period and is ignored otherwise. Bounds are calendar
// days in now's location.
func Resolve(p Period, now time.Time, custom *Range) (Range, error) {
	today := datekey.Day(now)

	switch p {
	case ThisWeek:
		sunday := today.AddDate(0, 0, -int(today.Weekday()))
		return Range{Start: datekey.Of(sunday), End: datekey.Of(sunday.AddDate(0, 0, 4))}, nil
	case Past7Days:
		return Range{Start: datekey.Of(today.AddDate(0, 0, -7)), End: datekey.Of(today)}, nil
	case ThisMonth:
		first := time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, today.Location())
		return Range{Start: datekey.Of(first), End: datekey.Of(today)}, nil
	case ThisYear:
		jan1 := time.Date(today.Year(), time.January, 1, 0, 0, 0, 0, today.Location())
		return Range{Start: datekey.Of(jan1), End: datekey.Of(today)}, nil
	case Past365Days:
		return Range{Start: datekey.Of(today.AddDate(0, 0, -365)), End: datekey.Of(today)}, nil
	case Custom:
		if custom == nil || !custom.Start.Valid() || !custom.End.Valid() {
			return Range{}, fmt.Errorf("custom period needs a start and end date: %w", ErrInvalidPeriod)
		}
		if custom.Start > custom.End {
			return Range{}, fmt.Errorf("custom period starts %s after it ends %s: %w", custom.Start, custom.End, ErrInvalidPeriod)
		}
		return *custom, nil
	default:
		return Range{}, fmt.Errorf("%q: %w", p, ErrInvalidPeriod)
	}
}

// Summary averages ratios over every known machine. Machines the backend
// left out count as zero; no known machines yields 0.
func Summary(ratios map[int64]float64, knownMachines int) float64 {
	if knownMachines <= 0 {
		return 0
	}
	total := 0.0
	for _, r := range ratios {
		total += r
	}
	return total / float64(knownMachines)
}
