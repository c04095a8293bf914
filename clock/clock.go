// Package clock keeps wall-clock time across deep-sleep cycles.
//
// The device has no battery-backed RTC. Instead the current epoch is derived
// from a boot-time epoch plus the time elapsed since boot, and the epoch
// expected at next wake is written to a small persisted region right before
// entering deep sleep. A zero epoch means time was never synchronized.
package clock

import (
	"time"

	"envnode-go/x/timex"
)

var bootInstant = time.Now()

// SinceBoot is the default uptime source: monotonic time since the process
// (on device: the chip) started.
func SinceBoot() time.Duration { return time.Since(bootInstant) }

// Clock converts uptime into absolute time. The zero Clock is invalid and
// reports epoch zero, matching the unset store sentinel.
type Clock struct {
	bootEpoch uint64
	offsetSec int32
	uptime    func() time.Duration
}

// New creates a clock from the current absolute time. The uptime already
// spent since boot is subtracted so that EpochNow is stable regardless of
// when synchronization completed.
func New(currentEpoch uint64, offsetSec int32, uptime func() time.Duration) Clock {
	if uptime == nil {
		uptime = SinceBoot
	}
	boot := uint64(0)
	if up := uint64(uptime() / time.Second); currentEpoch > up {
		boot = currentEpoch - up
	}
	return Clock{bootEpoch: boot, offsetSec: offsetSec, uptime: uptime}
}

// FromRecord restores a clock from a persisted record. ok is false when the
// record carries the unset sentinel; the returned clock is then invalid.
func FromRecord(rec Record, uptime func() time.Duration) (Clock, bool) {
	if rec.Unset() {
		return Clock{uptime: uptime}, false
	}
	return New(rec.Epoch, rec.OffsetSec, uptime), true
}

// Valid reports whether the clock carries synchronized time.
func (c Clock) Valid() bool { return c.bootEpoch != 0 }

// EpochNow returns the current Unix time in seconds, or zero when invalid.
func (c Clock) EpochNow() uint64 {
	if !c.Valid() {
		return 0
	}
	return c.bootEpoch + uint64(c.up()/time.Second)
}

// OffsetSec returns the persisted UTC offset in seconds.
func (c Clock) OffsetSec() int32 { return c.offsetSec }

// Now returns the current local wall-clock time. For an invalid clock this
// is the Unix epoch itself; readings taken in degraded mode are ordered but
// their absolute timestamps are wrong, which the design accepts.
func (c Clock) Now() time.Time {
	utc := time.Unix(int64(c.EpochNow()), 0).UTC()
	if c.offsetSec == 0 {
		return utc
	}
	return utc.In(time.FixedZone("", int(c.offsetSec)))
}

// NextRecord returns the record to persist before sleeping for sleep: the
// epoch the device will observe at next wake. An invalid clock yields the
// unset sentinel so the next boot synchronizes again.
func (c Clock) NextRecord(sleep time.Duration) Record {
	if !c.Valid() {
		return Record{}
	}
	return Record{
		Epoch:     c.EpochNow() + uint64(sleep/time.Second),
		OffsetSec: c.offsetSec,
	}
}

// UntilNextRounded returns the wait until the next instant that is a whole
// multiple of period, so samples land on rounded wall-clock times. With an
// invalid clock this degrades to a plain period wait.
func (c Clock) UntilNextRounded(period time.Duration) time.Duration {
	now := time.Duration(c.EpochNow()) * time.Second
	d := timex.UntilNextRounded(now, period)
	if d <= 0 {
		return period
	}
	return d
}

func (c Clock) up() time.Duration {
	if c.uptime == nil {
		return SinceBoot()
	}
	return c.uptime()
}
