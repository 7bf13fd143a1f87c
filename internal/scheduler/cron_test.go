package scheduler

import (
	"io"
	"log/slog"
	"testing"
	"time"
)

func testMatcher(window time.Duration) *Matcher {
	return NewMatcher(window, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestMatcher_Matches_ExactTick(t *testing.T) {
	m := testMatcher(61 * time.Second)
	now := time.Date(2026, 9, 1, 15, 0, 0, 0, time.UTC)

	if !m.Matches("0 15 * * *", now) {
		t.Fatal("expected expression to match at its exact fire time")
	}
}

func TestMatcher_Matches_WithinWindow(t *testing.T) {
	m := testMatcher(61 * time.Second)

	// 15:00:59 is still within 61s of the 15:00 fire time.
	now := time.Date(2026, 9, 1, 15, 0, 59, 0, time.UTC)
	if !m.Matches("0 15 * * *", now) {
		t.Fatal("expected late tick within the window to match")
	}
}

func TestMatcher_Matches_OutsideWindow(t *testing.T) {
	m := testMatcher(61 * time.Second)

	now := time.Date(2026, 9, 1, 15, 2, 0, 0, time.UTC)
	if m.Matches("0 15 * * *", now) {
		t.Fatal("expected tick two minutes after fire time not to match")
	}
}

func TestMatcher_Matches_BeforeFireTime(t *testing.T) {
	m := testMatcher(61 * time.Second)

	now := time.Date(2026, 9, 1, 14, 59, 30, 0, time.UTC)
	if m.Matches("0 15 * * *", now) {
		t.Fatal("expected tick before fire time not to match")
	}
}

func TestMatcher_Matches_EveryMinuteAlwaysDue(t *testing.T) {
	m := testMatcher(61 * time.Second)

	now := time.Date(2026, 9, 1, 3, 17, 42, 0, time.UTC)
	if !m.Matches("* * * * *", now) {
		t.Fatal("expected every-minute expression to always be due")
	}
}

func TestMatcher_Matches_EvaluatesInUTC(t *testing.T) {
	m := testMatcher(61 * time.Second)

	// 00:00 JST on Sep 2 is 15:00 UTC on Sep 1.
	jst := time.FixedZone("JST", 9*60*60)
	now := time.Date(2026, 9, 2, 0, 0, 30, 0, jst)
	if !m.Matches("0 15 * * *", now) {
		t.Fatal("expected matching to normalize the tick to UTC")
	}
}

func TestMatcher_Matches_InvalidExpression(t *testing.T) {
	m := testMatcher(61 * time.Second)
	now := time.Date(2026, 9, 1, 15, 0, 0, 0, time.UTC)

	if m.Matches("not a cron", now) {
		t.Fatal("expected malformed expression to never match")
	}
	if m.Matches("0 15 * *", now) {
		t.Fatal("expected four-field expression to never match")
	}
}
