// Package display owns the display capability. It is purely reactive: it
// waits for readings on the sample channel and renders each one, never
// initiating updates on its own.
package display

import (
	"context"
	"log/slog"

	"envnode-go/errcode"
	"envnode-go/types"
)

// Panel is the display capability consumed by the task. Draw blocks until
// the physical update completes.
type Panel interface {
	Draw(ctx context.Context, r types.Reading) error
}

// PanelFunc adapts a function to the Panel interface.
type PanelFunc func(ctx context.Context, r types.Reading) error

func (f PanelFunc) Draw(ctx context.Context, r types.Reading) error { return f(ctx, r) }

// Task renders readings as they arrive.
type Task struct {
	Panel Panel
	In    <-chan types.Reading
	Log   *slog.Logger
}

// panelSleeper is implemented by panels whose controller supports a
// low-power mode. Entered when the task winds down, since the image is
// retained without power anyway.
type panelSleeper interface {
	Sleep() error
}

// Run loops until ctx is cancelled or the channel closes. A draw failure is
// logged and the task resumes waiting for the next reading.
func (t *Task) Run(ctx context.Context) {
	defer func() {
		if s, ok := t.Panel.(panelSleeper); ok {
			if err := s.Sleep(); err != nil {
				t.Log.Error("panel sleep failed", slog.Any("err", err))
			}
		}
	}()
	for {
		select {
		case <-ctx.Done():
			return
		case r, ok := <-t.In:
			if !ok {
				return
			}
			if err := t.Panel.Draw(ctx, r); err != nil {
				t.Log.Error("display draw failed",
					slog.String("code", string(errcode.Of(err))),
					slog.Any("err", err))
				continue
			}
			t.Log.Info("display updated",
				slog.Time("at", r.At),
				slog.Int("deci_c", int(r.Sample.DeciC)))
		}
	}
}
