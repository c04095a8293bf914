// Package cycle is the control loop of the node. One invocation of Run is
// one power cycle: recover or re-establish wall-clock time, run the sensor
// and display tasks over a bounded handoff channel for the awake window,
// persist the next wake time and enter deep sleep. Hardware reset repeats
// the loop indefinitely; tests drive Run repeatedly against a fixed store.
package cycle

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"envnode-go/bus"
	"envnode-go/clock"
	"envnode-go/errcode"
	"envnode-go/services/display"
	"envnode-go/services/sensor"
	"envnode-go/services/timesync"
	"envnode-go/types"
)

// States published on the status bus.
const (
	StateBoot     = "boot"
	StateSync     = "sync"
	StateRunning  = "running"
	StateSleeping = "sleeping"
)

// Interval waited once before the first sensor read so the probe's
// configuration settles.
const sensorWarmup = 10 * time.Millisecond

// Sleeper enters deep sleep for the given interval. On hardware it does not
// return; the next instructions executed are those of a fresh boot.
type Sleeper interface {
	DeepSleep(d time.Duration)
}

// SleeperFunc adapts a function to the Sleeper interface.
type SleeperFunc func(d time.Duration)

func (f SleeperFunc) DeepSleep(d time.Duration) { f(d) }

// Uplink is an optional telemetry session that runs while the node is
// awake. Close releases the network session and must complete before deep
// sleep is entered.
type Uplink interface {
	Run(ctx context.Context)
	Close() error
}

// Deps are the capabilities the orchestrator coordinates. It is the only
// component with global authority: nothing else may touch the store or the
// sleeper.
type Deps struct {
	Store   clock.Store
	Source  timesync.Source
	Probe   sensor.Probe
	Panel   display.Panel
	Sleeper Sleeper

	// Uptime is the monotonic time-since-boot source. Defaults to
	// clock.SinceBoot; tests inject a scripted one.
	Uptime func() time.Duration
	// Status is the optional retained status bus.
	Status *bus.Bus
	// Uplink is started only when the config enables telemetry.
	Uplink Uplink

	Log *slog.Logger
}

// Run executes one full power cycle. It returns only in two cases: a fatal
// store-write failure, or cancellation of ctx (test and simulator shutdown).
// On hardware the final DeepSleep call never returns.
func Run(ctx context.Context, d Deps, cfg types.CycleConfig) error {
	cfg.Normalize()
	if d.Uptime == nil {
		d.Uptime = clock.SinceBoot
	}

	// Boot: recover the clock from the persisted region.
	d.publish(StateBoot)
	rec, err := d.Store.Load()
	if err != nil {
		// Only the store write is fatal; an unreadable region degrades to
		// the unset sentinel and forces a sync attempt.
		d.Log.Error("clock load failed", slog.Any("err", err))
		rec = clock.Record{}
	}

	clk, restored := clock.FromRecord(rec, d.Uptime)
	if restored {
		d.Log.Info("clock restored",
			slog.Uint64("epoch", rec.Epoch),
			slog.Int("offset_sec", int(rec.OffsetSec)))
	} else {
		clk = d.synchronize(ctx)
	}

	// Running: bounded handoff channel, one producer, one consumer.
	d.publish(StateRunning)
	samples := make(chan types.Reading, cfg.ChannelCap)

	taskCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		st := &sensor.Task{
			Probe:  d.Probe,
			Clock:  clk,
			Period: cfg.SamplePeriod,
			Warmup: sensorWarmup,
			Out:    samples,
			Status: d.Status,
			Log:    d.Log,
		}
		st.Run(taskCtx)
	}()
	go func() {
		defer wg.Done()
		dt := &display.Task{Panel: d.Panel, In: samples, Log: d.Log}
		dt.Run(taskCtx)
	}()

	if cfg.Telemetry && d.Uplink != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d.Uplink.Run(taskCtx)
		}()
	}

	// The only extended suspension of the orchestrator.
	d.Log.Info("awake window", slog.Duration("period", cfg.AwakePeriod))
	interrupted := !sleepCtx(ctx, cfg.AwakePeriod)

	// Sleeping: stop the tasks, release the network, persist, power down.
	d.publish(StateSleeping)
	cancel()
	wg.Wait()

	if cfg.Telemetry && d.Uplink != nil {
		// Deep sleep requires a fully released radio.
		if err := d.Uplink.Close(); err != nil {
			d.Log.Error("uplink close failed", slog.Any("err", err))
		}
	}

	next := clk.NextRecord(cfg.SleepPeriod)
	if err := d.Store.Store(next); err != nil {
		// Fatal: an unwritten next-wake time would desynchronize the node
		// indefinitely. The sentinel stays in place so the next boot
		// synchronizes from scratch.
		return &errcode.E{C: errcode.StoreWrite, Op: "persist clock", Err: err}
	}
	d.Log.Info("clock persisted",
		slog.Uint64("epoch", next.Epoch),
		slog.Int("offset_sec", int(next.OffsetSec)))

	if interrupted {
		return ctx.Err()
	}

	d.Sleeper.DeepSleep(cfg.SleepPeriod)
	return nil
}

// synchronize performs the single per-boot time sync attempt. The network
// join/request/leave is atomic inside the source; on failure the cycle
// continues with an invalid clock (degraded mode, no retry).
func (d Deps) synchronize(ctx context.Context) clock.Clock {
	d.publish(StateSync)
	if d.Source == nil {
		d.Log.Warn("no time source configured, running with unset clock")
		return clock.Clock{}
	}

	res, err := d.Source.Synchronize(ctx)
	if err != nil {
		d.Log.Error("time sync failed, running degraded",
			slog.String("code", string(errcode.Of(err))),
			slog.Any("err", err))
		return clock.Clock{}
	}

	d.Log.Info("time synchronized",
		slog.Uint64("epoch", res.Epoch),
		slog.Int("offset_sec", int(res.OffsetSec)))
	return clock.New(res.Epoch, res.OffsetSec, d.Uptime)
}

func (d Deps) publish(state string) {
	d.Log.Info("cycle state", slog.String("state", state))
	if d.Status != nil {
		d.Status.Publish(bus.TopicCycleState, state)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
