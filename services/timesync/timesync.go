// Package timesync establishes absolute time once per power-on epoch.
//
// A Source performs the whole exchange (network join, one request against a
// time-and-offset service, network leave) as a single blocking operation.
// The orchestrator treats it as atomic: either it yields a usable epoch plus
// signed offset, or it fails with the radio fully released in both outcomes
// (deep sleep requires a disassociated radio).
package timesync

import "context"

// Result of one successful synchronization.
type Result struct {
	// Epoch is the absolute time in Unix seconds. Never zero on success.
	Epoch uint64
	// OffsetSec is the signed seconds from UTC to local wall-clock time.
	OffsetSec int32
}

// Source performs one synchronization attempt. It is invoked at most once
// per boot and never retried within the same cycle.
type Source interface {
	Synchronize(ctx context.Context) (Result, error)
}

// SourceFunc adapts a function to the Source interface.
type SourceFunc func(ctx context.Context) (Result, error)

func (f SourceFunc) Synchronize(ctx context.Context) (Result, error) { return f(ctx) }
