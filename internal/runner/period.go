// Package runner executes batch automation actions across all opted-in game
// accounts: daily and weekly check-ins, event reward claims, and gift-code
// redemption sweeps. Each batch derives a fresh session per account, isolates
// per-account failures, and folds outcomes into a BatchResult.
package runner

import (
	"fmt"
	"time"
)

// DateKey returns the UTC calendar-day identifier used to key daily
// attendance logs.
func DateKey(now time.Time) string {
	return now.UTC().Format("2006-01-02")
}

// WeekKey returns the ISO-8601 week identifier ("2026-36") used to key
// weekly attendance logs. Week boundaries follow ISO semantics, so the first
// days of January can belong to the previous year's last week.
func WeekKey(now time.Time) string {
	year, week := now.UTC().ISOWeek()
	return fmt.Sprintf("%d-%02d", year, week)
}
