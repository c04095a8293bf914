// Command envnode-sim runs the wake cycle on a host machine with simulated
// peripherals: a sinusoidal probe, a panel that logs instead of drawing and
// an in-memory clock store shared across cycles. It exists to observe the
// boot/sync/run/sleep sequence end to end without flashing hardware.
//
//	envnode-sim -config sim.yaml
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"math"
	"os"
	"os/signal"
	"time"

	"gopkg.in/yaml.v3"

	"envnode-go/bus"
	"envnode-go/clock"
	"envnode-go/services/cycle"
	"envnode-go/services/timesync"
	"envnode-go/types"
)

type simConfig struct {
	Cycle types.CycleConfig `yaml:"cycle"`
	// Cycles to run; 0 means until interrupted.
	Cycles int `yaml:"cycles"`
	// TimeScale divides all waits so a 5 minute cadence plays in seconds.
	TimeScale int `yaml:"time_scale"`
	// OffsetSec is the UTC offset the simulated time service reports.
	OffsetSec int32 `yaml:"offset_sec"`
	// SyncFailures makes the first N sync attempts fail, to watch the node
	// run degraded and retry on later boots.
	SyncFailures int `yaml:"sync_failures"`
}

func main() {
	configPath := flag.String("config", "", "YAML config path (optional)")
	flag.Parse()

	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	cfg := simConfig{TimeScale: 60}
	if *configPath != "" {
		raw, err := os.ReadFile(*configPath)
		if err != nil {
			fatal(log, "read config", err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			fatal(log, "parse config", err)
		}
	}
	cfg.Cycle.Normalize()
	if cfg.TimeScale < 1 {
		cfg.TimeScale = 1
	}
	scale := time.Duration(cfg.TimeScale)

	// Scaled-down copy for actual waits; the unscaled sleep period still
	// drives the persisted-epoch arithmetic via a scaled sleeper below.
	runCfg := cfg.Cycle
	runCfg.AwakePeriod /= scale
	runCfg.SamplePeriod /= scale

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	store := &clock.MemStore{}
	status := bus.New(8)
	watchStatus(status, log)

	syncCalls := 0
	source := timesync.SourceFunc(func(context.Context) (timesync.Result, error) {
		syncCalls++
		if syncCalls <= cfg.SyncFailures {
			return timesync.Result{}, fmt.Errorf("simulated outage %d", syncCalls)
		}
		return timesync.Result{
			Epoch:     uint64(time.Now().Unix()),
			OffsetSec: cfg.OffsetSec,
		}, nil
	})

	deps := cycle.Deps{
		Store:   store,
		Source:  source,
		Probe:   &simProbe{},
		Panel:   &simPanel{log: log},
		Sleeper: cycle.SleeperFunc(func(d time.Duration) { time.Sleep(d / scale) }),
		Status:  status,
		Log:     log,
	}

	for n := 1; cfg.Cycles == 0 || n <= cfg.Cycles; n++ {
		log.Info("=== power cycle ===", slog.Int("n", n))
		if err := cycle.Run(ctx, deps, runCfg); err != nil {
			if ctx.Err() != nil {
				log.Info("interrupted")
				return
			}
			fatal(log, "cycle", err)
		}
	}
}

// simProbe produces a slow temperature sine with matching humidity and a
// mild pressure drift, so the dashboard sparkline has visible shape.
type simProbe struct {
	tick int
}

func (p *simProbe) Read(context.Context) (types.Sample, error) {
	p.tick++
	phase := float64(p.tick) / 20 * 2 * math.Pi
	return types.Sample{
		DeciC:  int16(215 + 40*math.Sin(phase)),
		RHx100: uint16(4800 + 900*math.Cos(phase)),
		DPa:    uint32(10132 + 6*math.Sin(phase/3)),
	}, nil
}

type simPanel struct {
	log *slog.Logger
}

func (p *simPanel) Draw(_ context.Context, r types.Reading) error {
	p.log.Info("panel",
		slog.String("at", r.At.Format("15:04:05")),
		slog.String("temp", fmt.Sprintf("%.1f°C", r.Sample.Celsius())),
		slog.String("rh", fmt.Sprintf("%.1f%%", r.Sample.RH())),
		slog.String("press", fmt.Sprintf("%.1fhPa", r.Sample.HPa())))
	return nil
}

// watchStatus mirrors status bus traffic into the log.
func watchStatus(b *bus.Bus, log *slog.Logger) {
	for _, topic := range []string{bus.TopicCycleState, bus.TopicNetLink} {
		sub := b.Subscribe(topic)
		go func() {
			for msg := range sub.Channel() {
				log.Info("status",
					slog.String("topic", msg.Topic),
					slog.Any("value", msg.Payload))
			}
		}()
	}
}

func fatal(log *slog.Logger, op string, err error) {
	log.Error(op, slog.Any("err", err))
	os.Exit(1)
}
