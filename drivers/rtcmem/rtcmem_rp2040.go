//go:build rp2040

// Package rtcmem persists the clock record in the RP2040 watchdog scratch
// registers. The scratch bank survives a watchdog or software reset (our
// deep-sleep wake path) but clears on power-on reset, which is exactly the
// lifetime the clock record needs: a cold boot must come up with the unset
// sentinel and resynchronize.
package rtcmem

import (
	"device/rp"

	"envnode-go/clock"
)

// Register layout:
//
//	SCRATCH0  epoch low word
//	SCRATCH1  epoch high word
//	SCRATCH2  UTC offset (two's complement)
//	SCRATCH3  validity magic
//	SCRATCH4  boot counter
const recordMagic = 0x454e564e

// Store reads and writes the clock record. The zero value is ready to use;
// all state lives in hardware registers.
type Store struct{}

var _ clock.Store = Store{}

// Load returns the persisted record, or the unset sentinel when the scratch
// bank holds no valid record (cold boot, or a firmware without the magic).
// Scratch reads cannot fail, so the error is always nil.
func (Store) Load() (clock.Record, error) {
	if rp.WATCHDOG.SCRATCH3.Get() != recordMagic {
		return clock.Record{}, nil
	}
	epoch := uint64(rp.WATCHDOG.SCRATCH1.Get())<<32 | uint64(rp.WATCHDOG.SCRATCH0.Get())
	return clock.Record{
		Epoch:     epoch,
		OffsetSec: int32(rp.WATCHDOG.SCRATCH2.Get()),
	}, nil
}

// Store writes the record. The magic goes last so a reset mid-write leaves
// the previous record either intact or invalid, never torn-but-valid.
func (Store) Store(rec clock.Record) error {
	rp.WATCHDOG.SCRATCH3.Set(0)
	rp.WATCHDOG.SCRATCH0.Set(uint32(rec.Epoch))
	rp.WATCHDOG.SCRATCH1.Set(uint32(rec.Epoch >> 32))
	rp.WATCHDOG.SCRATCH2.Set(uint32(rec.OffsetSec))
	rp.WATCHDOG.SCRATCH3.Set(recordMagic)
	return nil
}

// BumpBootCount increments and returns the per-power-epoch boot counter.
// Like the record it clears on power loss.
func BumpBootCount() uint32 {
	n := rp.WATCHDOG.SCRATCH4.Get() + 1
	rp.WATCHDOG.SCRATCH4.Set(n)
	return n
}
