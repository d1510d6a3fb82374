package testutil

import "time"

// WaitFor polls cond every interval until it holds or timeout passes.
// It reports whether cond ever held.
func WaitFor(timeout, interval time.Duration, cond func() bool) bool {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	deadline := time.After(timeout)
	for {
		if cond() {
			return true
		}
		select {
		case <-deadline:
			return cond()
		case <-ticker.C:
		}
	}
}

// TestTime is the fixed clock reading shared by tests: 2024-01-01 12:00 UTC.
func TestTime() time.Time {
	return time.Date(2024, time.January, 1, 12, 0, 0, 0, time.UTC)
}
