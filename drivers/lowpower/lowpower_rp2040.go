//go:build rp2040

// Package lowpower implements the deep-sleep step on the RP2040. The chip
// has no runtime-accessible timer-wake deep sleep, so the closest
// equivalent is used: idle for the sleep interval with the radio already
// released, then a full system reset. The reset re-enters main exactly like
// a timer wake, and the watchdog scratch bank carries the clock record
// across it.
package lowpower

import (
	"time"

	"device/arm"
)

// Sleeper parks the core and reboots. The zero value is ready to use.
type Sleeper struct{}

// DeepSleep never returns.
func (Sleeper) DeepSleep(d time.Duration) {
	time.Sleep(d)
	arm.SystemReset()
	// SystemReset does not return; the loop satisfies the compiler and
	// guards against a silently ignored reset request.
	for {
	}
}
