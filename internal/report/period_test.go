package report

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/signsinfo/capacity/internal/datekey"
)

// Wednesday afternoon.
var wednesday = time.Date(2024, 3, 13, 14, 30, 0, 0, time.Local)

func TestResolve(t *testing.T) {
	tests := []struct {
		period Period
		start  datekey.Key
		end    datekey.Key
	}{
		{ThisWeek, "2024-03-10", "2024-03-14"},
		{Past7Days, "2024-03-06", "2024-03-13"},
		{ThisMonth, "2024-03-01", "2024-03-13"},
		{ThisYear, "2024-01-01", "2024-03-13"},
		{Past365Days, "2023-03-14", "2024-03-13"},
	}

	for _, tt := range tests {
		t.Run(string(tt.period), func(t *testing.T) {
			got, err := Resolve(tt.period, wednesday, nil)
			if err != nil {
				t.Fatalf("Resolve: %v", err)
			}
			if got.Start != tt.start || got.End != tt.end {
				t.Errorf("got %s, want %s .. %s", got, tt.start, tt.end)
			}
		})
	}
}

func TestResolveThisWeekOnSunday(t *testing.T) {
	sunday := time.Date(2024, 3, 10, 8, 0, 0, 0, time.Local)
	got, err := Resolve(ThisWeek, sunday, nil)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got.Start != "2024-03-10" || got.End != "2024-03-14" {
		t.Errorf("got %s", got)
	}
}

func TestResolveCustom(t *testing.T) {
	tests := []struct {
		name    string
		custom  *Range
		want    Range
		wantErr bool
	}{
		{"explicit bounds", &Range{Start: "2024-02-01", End: "2024-02-29"}, Range{Start: "2024-02-01", End: "2024-02-29"}, false},
		{"single day", &Range{Start: "2024-02-01", End: "2024-02-01"}, Range{Start: "2024-02-01", End: "2024-02-01"}, false},
		{"missing bounds", nil, Range{}, true},
		{"missing end", &Range{Start: "2024-02-01"}, Range{}, true},
		{"malformed", &Range{Start: "02/01/2024", End: "2024-02-29"}, Range{}, true},
		{"start after end", &Range{Start: "2024-03-01", End: "2024-02-01"}, Range{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Resolve(Custom, wednesday, tt.custom)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidPeriod) {
					t.Errorf("expected ErrInvalidPeriod, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Resolve: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %s, want %s", got, tt.want)
			}
		})
	}
}

func TestResolveUnknownPeriod(t *testing.T) {
	if _, err := Resolve("fortnight", wednesday, nil); !errors.Is(err, ErrInvalidPeriod) {
		t.Errorf("expected ErrInvalidPeriod, got %v", err)
	}
}

func TestParsePeriod(t *testing.T) {
	tests := []struct {
		in   string
		want Period
	}{
		{"this_week", ThisWeek},
		{"Past 7 Days", Past7Days},
		{"past-365-days", Past365Days},
		{"  THIS MONTH ", ThisMonth},
		{"custom", Custom},
	}
	for _, tt := range tests {
		got, err := ParsePeriod(tt.in)
		if err != nil || got != tt.want {
			t.Errorf("ParsePeriod(%q) = %q, %v; want %q", tt.in, got, err, tt.want)
		}
	}
	if _, err := ParsePeriod("yesterday"); !errors.Is(err, ErrInvalidPeriod) {
		t.Errorf("expected ErrInvalidPeriod, got %v", err)
	}
	if ThisYear.Label() != "This Year" {
		t.Errorf("Label = %q", ThisYear.Label())
	}
}

func TestSummary(t *testing.T) {
	tests := []struct {
		name   string
		ratios map[int64]float64
		known  int
		want   float64
	}{
		{"omitted machine counts as zero", map[int64]float64{1: 0.8, 2: 0.4}, 3, 0.4},
		{"all reported", map[int64]float64{1: 0.5, 2: 1.5}, 2, 1.0},
		{"no machines", map[int64]float64{1: 0.8}, 0, 0},
		{"empty report", map[int64]float64{}, 4, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Summary(tt.ratios, tt.known); math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("Summary = %v, want %v", got, tt.want)
			}
		})
	}
}
