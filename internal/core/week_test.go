package core

import (
	"testing"
	"time"
)

func TestWeekStart(t *testing.T) {
	tokyo := time.FixedZone("JST", 9*3600)

	cases := []struct {
		name string
		in   time.Time
		want Date
	}{
		{"monday stays", time.Date(2025, 10, 27, 9, 0, 0, 0, time.UTC), NewDate(2025, 10, 27)},
		{"tuesday", time.Date(2025, 10, 28, 0, 0, 0, 0, time.UTC), NewDate(2025, 10, 27)},
		{"saturday", time.Date(2025, 11, 1, 23, 59, 59, 0, time.UTC), NewDate(2025, 10, 27)},
		{"sunday goes back six days", time.Date(2025, 11, 2, 12, 0, 0, 0, time.UTC), NewDate(2025, 10, 27)},
		{"crosses month", time.Date(2025, 10, 1, 8, 0, 0, 0, time.UTC), NewDate(2025, 9, 29)},
		{"crosses year", time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC), NewDate(2025, 12, 29)},
		{"local calendar date wins", time.Date(2025, 11, 3, 1, 0, 0, 0, tokyo), NewDate(2025, 11, 3)},
		{"leap day", time.Date(2024, 2, 29, 10, 0, 0, 0, time.UTC), NewDate(2024, 2, 26)},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := WeekStart(tc.in)
			if !got.Equal(tc.want) {
				t.Fatalf("WeekStart(%s) = %s, want %s", tc.in, got, tc.want)
			}
			if got.Weekday() != time.Monday {
				t.Fatalf("WeekStart(%s) = %s is a %s", tc.in, got, got.Weekday())
			}
			h, m, s := got.Clock()
			if h != 0 || m != 0 || s != 0 || got.Nanosecond() != 0 {
				t.Fatalf("WeekStart(%s) carries a time of day: %s", tc.in, got.Time)
			}
		})
	}
}

func TestWeekStartEveryDayOfAYear(t *testing.T) {
	day := time.Date(2025, 1, 1, 15, 0, 0, 0, time.UTC)
	for i := 0; i < 366; i++ {
		ws := WeekStart(day)
		if ws.Weekday() != time.Monday {
			t.Fatalf("%s: week start %s is not a Monday", day, ws)
		}
		if !WeekStart(ws.Time).Equal(ws) {
			t.Fatalf("%s: week start is not idempotent", day)
		}
		if !WeekStart(day).Equal(ws) {
			t.Fatalf("%s: repeated computation differs", day)
		}
		diff := DateOf(day).Sub(ws.Time)
		if diff < 0 || diff > 6*24*time.Hour {
			t.Fatalf("%s: week start %s is %s away", day, ws, diff)
		}
		day = day.AddDate(0, 0, 1)
	}
}

func TestWeekStartDoesNotMutateInput(t *testing.T) {
	in := time.Date(2025, 11, 2, 12, 30, 0, 0, time.UTC)
	before := in
	_ = WeekStart(in)
	if !in.Equal(before) {
		t.Fatalf("input changed: %s != %s", in, before)
	}
}

func TestWeekEnd(t *testing.T) {
	end := WeekEnd(NewDate(2025, 12, 29))
	if !end.Equal(NewDate(2026, 1, 4)) || end.Weekday() != time.Sunday {
		t.Fatalf("WeekEnd = %s (%s)", end, end.Weekday())
	}
}
