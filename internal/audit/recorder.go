// Gatehouse - HTTP Request Authorization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gatehouse

// Package audit records authorization decisions for security monitoring and
// forensic analysis. Events are emitted asynchronously to the structured
// log and, when a store is configured, persisted to BadgerDB with a
// retention TTL.
//
// Recording never blocks request handling: events go through a bounded
// buffer and are dropped (with a counter in the logs) when the buffer is
// full.
package audit

import (
	"context"
	"math/rand/v2"
	"sync"
	"sync/atomic"

	"github.com/tomtom215/gatehouse/internal/authz"
	"github.com/tomtom215/gatehouse/internal/logging"
)

// Config controls what gets recorded.
type Config struct {
	// Enabled controls whether audit recording is active.
	Enabled bool

	// LogAllowed controls whether allowed decisions are recorded.
	// Disable to record denials only (reduces volume).
	LogAllowed bool

	// LogDenied controls whether denied decisions are recorded.
	LogDenied bool

	// SampleRate is the fraction of allowed decisions to record (0.0-1.0).
	// Denials are never sampled; when LogDenied is set they are all kept.
	SampleRate float64

	// BufferSize is the size of the async event buffer.
	BufferSize int
}

// DefaultConfig returns the default audit configuration.
func DefaultConfig() *Config {
	return &Config{
		Enabled:    true,
		LogAllowed: true,
		LogDenied:  true,
		SampleRate: 1.0,
		BufferSize: 1024,
	}
}

// Recorder implements authz.DecisionRecorder. One worker goroutine drains
// the buffer; Close flushes it.
type Recorder struct {
	cfg     *Config
	store   *Store
	events  chan *authz.DecisionEvent
	dropped atomic.Uint64
	quit    chan struct{}
	done    chan struct{}
	once    sync.Once
}

// NewRecorder creates an audit recorder. store may be nil for log-only
// auditing.
func NewRecorder(cfg *Config, store *Store) *Recorder {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1024
	}

	r := &Recorder{
		cfg:    cfg,
		store:  store,
		events: make(chan *authz.DecisionEvent, cfg.BufferSize),
		quit:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	go r.drain()
	return r
}

// RecordDecision queues a decision event. Non-blocking: the event is
// dropped when the buffer is full, and silently discarded after Close.
func (r *Recorder) RecordDecision(ctx context.Context, ev *authz.DecisionEvent) {
	if !r.shouldRecord(ev) {
		return
	}

	select {
	case <-r.quit:
		return
	default:
	}

	select {
	case r.events <- ev:
	default:
		if n := r.dropped.Add(1); n%1000 == 1 {
			logging.Warn().Uint64("dropped_total", n).Msg("Audit buffer full, dropping events")
		}
	}
}

// Dropped returns the number of events dropped due to a full buffer.
func (r *Recorder) Dropped() uint64 {
	return r.dropped.Load()
}

func (r *Recorder) shouldRecord(ev *authz.DecisionEvent) bool {
	if !r.cfg.Enabled {
		return false
	}
	if ev.Allowed {
		if !r.cfg.LogAllowed {
			return false
		}
		if r.cfg.SampleRate < 1.0 && rand.Float64() >= r.cfg.SampleRate {
			return false
		}
		return true
	}
	return r.cfg.LogDenied
}

func (r *Recorder) drain() {
	defer close(r.done)
	for {
		select {
		case ev := <-r.events:
			r.emit(ev)
		case <-r.quit:
			// Flush whatever is already buffered, then stop.
			for {
				select {
				case ev := <-r.events:
					r.emit(ev)
				default:
					return
				}
			}
		}
	}
}

func (r *Recorder) emit(ev *authz.DecisionEvent) {
	logging.Info().
		Str("audit", "authz_decision").
		Time("ts", ev.Timestamp).
		Str("request_id", ev.RequestID).
		Str("principal", ev.Principal).
		Bool("anonymous", ev.Anonymous).
		Str("method", ev.Method).
		Str("path", ev.Path).
		Bool("allowed", ev.Allowed).
		Str("reason", ev.Reason).
		Strs("matched_rules", ev.MatchedRules).
		Str("ip", ev.IPAddress).
		Dur("duration", ev.Duration).
		Msg("Authorization decision")

	if r.store != nil {
		if err := r.store.Append(ev); err != nil {
			logging.Error().Err(err).Msg("Failed to persist audit event")
		}
	}
}

// Close flushes buffered events and stops the worker. Safe to call
// multiple times; RecordDecision calls arriving afterward are discarded
// rather than panicking, since the events channel is never closed.
func (r *Recorder) Close() {
	r.once.Do(func() {
		close(r.quit)
		<-r.done
	})
}
