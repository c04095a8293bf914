// Package sensor owns the sensing capability. On a fixed cadence it acquires
// a sample, stamps it with the cycle clock and publishes it into the bounded
// sample channel. The task is the only holder of the sensor bus.
package sensor

import (
	"context"
	"log/slog"
	"time"

	"envnode-go/bus"
	"envnode-go/clock"
	"envnode-go/errcode"
	"envnode-go/types"
)

// Probe is the sensing capability consumed by the task.
type Probe interface {
	Read(ctx context.Context) (types.Sample, error)
}

// ProbeFunc adapts a function to the Probe interface.
type ProbeFunc func(ctx context.Context) (types.Sample, error)

func (f ProbeFunc) Read(ctx context.Context) (types.Sample, error) { return f(ctx) }

// Task samples the probe on a cadence and publishes readings.
type Task struct {
	Probe  Probe
	Clock  clock.Clock
	Period time.Duration
	// Warmup is waited once before the first read so the probe's
	// configuration settles. Optional.
	Warmup time.Duration
	// Out is the bounded sample channel. Publishing blocks when full; the
	// consumer side draining an element resumes it.
	Out chan<- types.Reading
	// Status is the optional retained bus for the latest reading.
	Status *bus.Bus
	Log    *slog.Logger
}

// Run loops until ctx is cancelled. A failing read is logged and skipped;
// it never poisons the channel or halts the consumer.
func (t *Task) Run(ctx context.Context) {
	if t.Warmup > 0 && !sleepCtx(ctx, t.Warmup) {
		return
	}

	for {
		t.sampleOnce(ctx)

		wait := t.Clock.UntilNextRounded(t.Period)
		if !sleepCtx(ctx, wait) {
			return
		}
	}
}

func (t *Task) sampleOnce(ctx context.Context) {
	s, err := t.Probe.Read(ctx)
	if err != nil {
		t.Log.Error("sensor read failed",
			slog.String("code", string(errcode.Of(err))),
			slog.Any("err", err))
		return
	}

	r := types.Reading{At: t.Clock.Now(), Sample: s}

	select {
	case t.Out <- r:
	case <-ctx.Done():
		return
	}

	if t.Status != nil {
		t.Status.Publish(bus.TopicReading, r)
	}
	t.Log.Info("sample published",
		slog.Int("deci_c", int(s.DeciC)),
		slog.Int("rh_x100", int(s.RHx100)),
		slog.Int("dpa", int(s.DPa)))
}

// sleepCtx waits for d or until ctx is cancelled. Returns false on cancel.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
