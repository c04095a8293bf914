package timex

import "time"

// NextRounded returns the next instant after now that is a whole multiple of
// period, both expressed as durations since the Unix epoch.
//
//   - At 09:46:12 with period 1 minute, next rounded wakeup is 09:47:00.
//   - At 09:46:12 with period 5 minutes, next rounded wakeup is 09:50:00.
//   - At 09:46:12 with period 1 hour, next rounded wakeup is 10:00:00.
func NextRounded(now, period time.Duration) time.Duration {
	if period < time.Second {
		// Rounding works on whole seconds; shorter periods pass through.
		return now + period
	}
	then := now + period
	secs := int64(then/time.Second) / int64(period/time.Second) * int64(period/time.Second)
	return time.Duration(secs) * time.Second
}

// UntilNextRounded returns the wait from now to the next rounded instant.
func UntilNextRounded(now, period time.Duration) time.Duration {
	if period <= 0 {
		return 0
	}
	return NextRounded(now, period) - now
}
