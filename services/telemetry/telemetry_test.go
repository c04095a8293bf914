package telemetry

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"envnode-go/bus"
	"envnode-go/types"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakePub struct {
	mu       sync.Mutex
	topics   []string
	payloads [][]byte
	failAt   map[int]bool
	calls    int
	closed   bool
	notify   chan struct{}
}

func (p *fakePub) Publish(topic string, payload []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	defer func() {
		select {
		case p.notify <- struct{}{}:
		default:
		}
	}()
	if p.failAt[p.calls] {
		return errors.New("broker unreachable")
	}
	p.topics = append(p.topics, topic)
	p.payloads = append(p.payloads, append([]byte(nil), payload...))
	return nil
}

func (p *fakePub) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func waitNotify(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for publish attempt")
	}
}

func TestUplinkForwardsReadings(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	b := bus.New(8)
	pub := &fakePub{notify: make(chan struct{}, 8)}
	u := &Uplink{Pub: pub, Status: b, Log: testLogger()}
	go u.Run(ctx)

	// Give the subscriber time to register before publishing.
	time.Sleep(10 * time.Millisecond)

	r := types.Reading{
		At:     time.Unix(1_700_000_060, 0),
		Sample: types.Sample{DeciC: 231, RHx100: 4512, DPa: 101_320},
	}
	b.Publish(bus.TopicReading, r)
	waitNotify(t, pub.notify)

	pub.mu.Lock()
	defer pub.mu.Unlock()
	if len(pub.payloads) != 1 {
		t.Fatalf("published %d payloads, want 1", len(pub.payloads))
	}
	if pub.topics[0] != DefaultTopic {
		t.Fatalf("topic = %q, want %q", pub.topics[0], DefaultTopic)
	}

	var got wireReading
	if err := json.Unmarshal(pub.payloads[0], &got); err != nil {
		t.Fatalf("payload not valid JSON: %v", err)
	}
	if got.At != 1_700_000_060 || got.DeciC != 231 || got.RHx100 != 4512 || got.DPa != 101_320 {
		t.Fatalf("payload = %+v", got)
	}
}

func TestUplinkSurvivesPublishFailure(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	b := bus.New(8)
	pub := &fakePub{failAt: map[int]bool{1: true}, notify: make(chan struct{}, 8)}
	u := &Uplink{Pub: pub, Status: b, Topic: "nodes/7", Log: testLogger()}
	go u.Run(ctx)
	time.Sleep(10 * time.Millisecond)

	b.Publish(bus.TopicReading, types.Reading{Sample: types.Sample{DeciC: 100}})
	waitNotify(t, pub.notify)
	b.Publish(bus.TopicReading, types.Reading{Sample: types.Sample{DeciC: 101}})
	waitNotify(t, pub.notify)

	pub.mu.Lock()
	defer pub.mu.Unlock()
	if len(pub.payloads) != 1 {
		t.Fatalf("published %d payloads after one failure, want 1", len(pub.payloads))
	}
	if pub.topics[0] != "nodes/7" {
		t.Fatalf("topic = %q, want nodes/7", pub.topics[0])
	}
}

func TestUplinkStopsOnCancelAndCloses(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	b := bus.New(8)
	pub := &fakePub{notify: make(chan struct{}, 1)}
	u := &Uplink{Pub: pub, Status: b, Log: testLogger()}

	done := make(chan struct{})
	go func() {
		u.Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("uplink did not stop on cancel")
	}

	if err := u.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	pub.mu.Lock()
	defer pub.mu.Unlock()
	if !pub.closed {
		t.Fatal("transport not closed")
	}
}

func TestEncodeFixedPointFields(t *testing.T) {
	payload, err := Encode(types.Reading{
		At:     time.Unix(1_700_000_000, 0),
		Sample: types.Sample{DeciC: -52, RHx100: 9999, DPa: 9980},
	})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	var m map[string]any
	if err := json.Unmarshal(payload, &m); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if m["deci_c"].(float64) != -52 {
		t.Fatalf("deci_c = %v, want -52", m["deci_c"])
	}
	if m["at"].(float64) != 1_700_000_000 {
		t.Fatalf("at = %v, want 1700000000", m["at"])
	}
}
