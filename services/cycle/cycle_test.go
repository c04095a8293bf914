package cycle

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"envnode-go/bus"
	"envnode-go/clock"
	"envnode-go/errcode"
	"envnode-go/services/timesync"
	"envnode-go/types"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// testConfig keeps the real-time waits short while the epoch arithmetic uses
// production-scale durations.
func testConfig() types.CycleConfig {
	return types.CycleConfig{
		SleepPeriod:  600 * time.Second,
		AwakePeriod:  120 * time.Millisecond,
		SamplePeriod: 25 * time.Millisecond,
		ChannelCap:   3,
	}
}

type fakeSource struct {
	mu    sync.Mutex
	calls int
	res   timesync.Result
	err   error
}

func (f *fakeSource) Synchronize(context.Context) (timesync.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.res, f.err
}

func (f *fakeSource) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeSleeper struct {
	mu    sync.Mutex
	slept []time.Duration
}

func (f *fakeSleeper) DeepSleep(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.slept = append(f.slept, d)
}

type countingPanel struct {
	mu    sync.Mutex
	drawn int
}

func (p *countingPanel) Draw(context.Context, types.Reading) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.drawn++
	return nil
}

func (p *countingPanel) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.drawn
}

// flakyStore wraps a MemStore with injectable failures.
type flakyStore struct {
	clock.MemStore
	loadErr  error
	storeErr error
}

func (s *flakyStore) Load() (clock.Record, error) {
	if s.loadErr != nil {
		return clock.Record{}, s.loadErr
	}
	return s.MemStore.Load()
}

func (s *flakyStore) Store(rec clock.Record) error {
	if s.storeErr != nil {
		return s.storeErr
	}
	return s.MemStore.Store(rec)
}

func deps(store clock.Store, src timesync.Source, sl Sleeper, panel *countingPanel) Deps {
	return Deps{
		Store:   store,
		Source:  src,
		Sleeper: sl,
		Panel:   panel,
		Probe:   fixedProbe(210),
		Uptime:  func() time.Duration { return 0 },
		Log:     testLogger(),
	}
}

func fixedProbe(deciC int16) probeFunc {
	return func() (types.Sample, error) {
		return types.Sample{DeciC: deciC, RHx100: 4500, DPa: 101_320}, nil
	}
}

type probeFunc func() (types.Sample, error)

func (f probeFunc) Read(context.Context) (types.Sample, error) { return f() }

func TestFirstBootSyncsAndPersistsNextWake(t *testing.T) {
	store := &clock.MemStore{}
	src := &fakeSource{res: timesync.Result{Epoch: 1_700_000_000, OffsetSec: 3600}}
	sl := &fakeSleeper{}
	panel := &countingPanel{}

	if err := Run(context.Background(), deps(store, src, sl, panel), testConfig()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if src.callCount() != 1 {
		t.Fatalf("source called %d times, want 1", src.callCount())
	}
	rec, err := store.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if rec.Epoch != 1_700_000_600 || rec.OffsetSec != 3600 {
		t.Fatalf("persisted record = %+v, want epoch 1700000600 offset 3600", rec)
	}
	if len(sl.slept) != 1 || sl.slept[0] != 600*time.Second {
		t.Fatalf("slept = %v, want one 600s deep sleep", sl.slept)
	}
}

func TestSecondBootSkipsSync(t *testing.T) {
	store := &clock.MemStore{}
	src := &fakeSource{res: timesync.Result{Epoch: 1_700_000_000, OffsetSec: 3600}}
	sl := &fakeSleeper{}
	panel := &countingPanel{}
	cfg := testConfig()

	// Two consecutive power cycles against the same persisted region.
	for i := 0; i < 2; i++ {
		if err := Run(context.Background(), deps(store, src, sl, panel), cfg); err != nil {
			t.Fatalf("cycle %d: %v", i, err)
		}
	}

	if src.callCount() != 1 {
		t.Fatalf("source called %d times across 2 cycles, want 1", src.callCount())
	}
	rec, _ := store.Load()
	// First cycle persists sync + sleep, second advances by another period.
	if rec.Epoch != 1_700_001_200 {
		t.Fatalf("epoch after 2 cycles = %d, want 1700001200", rec.Epoch)
	}
	if rec.OffsetSec != 3600 {
		t.Fatalf("offset after 2 cycles = %d, want 3600", rec.OffsetSec)
	}
}

func TestSyncFailureRunsDegradedAndRetriesNextBoot(t *testing.T) {
	store := &clock.MemStore{}
	src := &fakeSource{err: errcode.SyncRequest}
	sl := &fakeSleeper{}
	panel := &countingPanel{}
	cfg := testConfig()

	for i := 0; i < 2; i++ {
		if err := Run(context.Background(), deps(store, src, sl, panel), cfg); err != nil {
			t.Fatalf("cycle %d: %v", i, err)
		}
	}

	// Every boot with an unset clock attempts exactly one sync.
	if src.callCount() != 2 {
		t.Fatalf("source called %d times, want 2", src.callCount())
	}
	rec, _ := store.Load()
	if !rec.Unset() {
		t.Fatalf("degraded cycle persisted %+v, want unset sentinel", rec)
	}
	// Degraded mode still sleeps on cadence.
	if len(sl.slept) != 2 {
		t.Fatalf("slept %d times, want 2", len(sl.slept))
	}
	// And still samples and renders.
	if panel.count() == 0 {
		t.Fatal("no readings rendered during degraded cycles")
	}
}

func TestLoadErrorDegradesToSync(t *testing.T) {
	store := &flakyStore{loadErr: errors.New("region unreadable")}
	src := &fakeSource{res: timesync.Result{Epoch: 1_700_000_000, OffsetSec: 0}}
	sl := &fakeSleeper{}
	panel := &countingPanel{}

	if err := Run(context.Background(), deps(store, src, sl, panel), testConfig()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if src.callCount() != 1 {
		t.Fatalf("source called %d times, want 1", src.callCount())
	}
	rec, _ := store.MemStore.Load()
	if rec.Epoch != 1_700_000_600 {
		t.Fatalf("epoch = %d, want 1700000600", rec.Epoch)
	}
}

func TestStoreWriteFailureIsFatal(t *testing.T) {
	store := &flakyStore{storeErr: errors.New("write blocked")}
	src := &fakeSource{res: timesync.Result{Epoch: 1_700_000_000, OffsetSec: 0}}
	sl := &fakeSleeper{}
	panel := &countingPanel{}

	err := Run(context.Background(), deps(store, src, sl, panel), testConfig())
	if err == nil {
		t.Fatal("Run succeeded despite store write failure")
	}
	if errcode.Of(err) != errcode.StoreWrite {
		t.Fatalf("code = %s, want %s", errcode.Of(err), errcode.StoreWrite)
	}
	if len(sl.slept) != 0 {
		t.Fatal("entered deep sleep after fatal store failure")
	}
}

func TestReadingsFlowDuringAwakeWindow(t *testing.T) {
	store := &clock.MemStore{}
	src := &fakeSource{res: timesync.Result{Epoch: 1_700_000_000, OffsetSec: 0}}
	sl := &fakeSleeper{}
	panel := &countingPanel{}

	if err := Run(context.Background(), deps(store, src, sl, panel), testConfig()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if panel.count() < 2 {
		t.Fatalf("rendered %d readings in a 120ms window, want at least 2", panel.count())
	}
}

func TestCancelPersistsButSkipsDeepSleep(t *testing.T) {
	store := &clock.MemStore{}
	src := &fakeSource{res: timesync.Result{Epoch: 1_700_000_000, OffsetSec: 0}}
	sl := &fakeSleeper{}
	panel := &countingPanel{}

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(30*time.Millisecond, cancel)

	err := Run(ctx, deps(store, src, sl, panel), testConfig())
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if len(sl.slept) != 0 {
		t.Fatal("deep sleep entered after cancellation")
	}
	// The clock record is still written so the next start restores time.
	rec, _ := store.Load()
	if rec.Unset() {
		t.Fatal("cancelled cycle did not persist the clock")
	}
}

func TestStatusBusSeesStateTransitions(t *testing.T) {
	store := &clock.MemStore{}
	src := &fakeSource{res: timesync.Result{Epoch: 1_700_000_000, OffsetSec: 0}}
	sl := &fakeSleeper{}
	panel := &countingPanel{}

	b := bus.New(16)
	sub := b.Subscribe(bus.TopicCycleState)
	defer sub.Unsubscribe()

	d := deps(store, src, sl, panel)
	d.Status = b
	if err := Run(context.Background(), d, testConfig()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	want := []string{StateBoot, StateSync, StateRunning, StateSleeping}
	for _, state := range want {
		select {
		case msg := <-sub.Channel():
			if msg.Payload.(string) != state {
				t.Fatalf("state = %v, want %s", msg.Payload, state)
			}
		case <-time.After(time.Second):
			t.Fatalf("missing state transition %s", state)
		}
	}
}

type fakeUplink struct {
	mu     sync.Mutex
	ran    bool
	closed bool
}

func (u *fakeUplink) Run(ctx context.Context) {
	u.mu.Lock()
	u.ran = true
	u.mu.Unlock()
	<-ctx.Done()
}

func (u *fakeUplink) Close() error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if !u.ran {
		return errors.New("closed before run")
	}
	u.closed = true
	return nil
}

func TestUplinkClosedBeforeSleep(t *testing.T) {
	store := &clock.MemStore{}
	src := &fakeSource{res: timesync.Result{Epoch: 1_700_000_000, OffsetSec: 0}}
	sl := &fakeSleeper{}
	panel := &countingPanel{}
	up := &fakeUplink{}

	d := deps(store, src, sl, panel)
	d.Uplink = up
	cfg := testConfig()
	cfg.Telemetry = true

	if err := Run(context.Background(), d, cfg); err != nil {
		t.Fatalf("Run: %v", err)
	}

	up.mu.Lock()
	defer up.mu.Unlock()
	if !up.ran || !up.closed {
		t.Fatalf("uplink ran=%v closed=%v, want both true", up.ran, up.closed)
	}
	if len(sl.slept) != 1 {
		t.Fatalf("slept %d times, want 1", len(sl.slept))
	}
}
