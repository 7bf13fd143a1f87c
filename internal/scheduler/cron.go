// Package scheduler implements the scheduling core: cron matching against
// declarative config rows, pending-task orchestration, the claim/dispatch
// consumer loop, and the closed task-handler registry.
package scheduler

import (
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// cronParser accepts standard 5-field expressions (minute granularity).
var cronParser = cron.NewParser(
	cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow,
)

// Matcher decides whether a cron expression is due within a trailing window.
// The window absorbs trigger jitter: an external trigger that fires at :00:40
// still matches an expression due at :00:00.
type Matcher struct {
	window time.Duration
	logger *slog.Logger
}

// NewMatcher creates a Matcher with the given trailing window.
func NewMatcher(window time.Duration, logger *slog.Logger) *Matcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Matcher{window: window, logger: logger}
}

// Matches reports whether expr has a fire time in (now-window, now]. All
// evaluation is UTC. An unparsable expression logs and returns false; a bad
// config row must never take down the scheduler.
func (m *Matcher) Matches(expr string, now time.Time) bool {
	sched, err := cronParser.Parse(expr)
	if err != nil {
		m.logger.Error("invalid cron expression",
			slog.String("expression", expr),
			slog.String("error", err.Error()))
		return false
	}

	now = now.UTC()
	next := sched.Next(now.Add(-m.window))
	return !next.After(now)
}
