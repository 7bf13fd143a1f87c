package runner

import (
	"testing"
	"time"
)

func TestDateKey(t *testing.T) {
	// Key is always UTC, regardless of the input zone.
	loc := time.FixedZone("JST", 9*3600)
	at := time.Date(2026, 9, 2, 3, 0, 0, 0, loc) // 2026-09-01 18:00 UTC

	if got := DateKey(at); got != "2026-09-01" {
		t.Errorf("DateKey = %q, want 2026-09-01", got)
	}
}

func TestWeekKey(t *testing.T) {
	cases := []struct {
		at   time.Time
		want string
	}{
		{time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC), "2026-36"},
		// Early January can belong to the previous ISO year.
		{time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC), "2026-53"},
		{time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC), "2026-02"},
	}

	for _, tc := range cases {
		if got := WeekKey(tc.at); got != tc.want {
			t.Errorf("WeekKey(%s) = %q, want %q", tc.at.Format("2006-01-02"), got, tc.want)
		}
	}
}
