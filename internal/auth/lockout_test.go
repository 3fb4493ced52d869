// Gatehouse - HTTP Request Authorization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gatehouse

package auth

import (
	"testing"
	"time"
)

func TestAttemptLimiterBlocksAfterBudget(t *testing.T) {
	l := NewAttemptLimiter(time.Hour, 3)

	key := "203.0.113.7"
	for i := 0; i < 3; i++ {
		if l.Blocked(key) {
			t.Fatalf("blocked after %d failures, budget is 3", i)
		}
		l.RecordFailure(key)
	}

	if !l.Blocked(key) {
		t.Fatal("not blocked after exhausting the failure budget")
	}
	if !l.RecordFailure(key) {
		t.Error("RecordFailure should report exhaustion")
	}
}

func TestAttemptLimiterKeysAreIndependent(t *testing.T) {
	l := NewAttemptLimiter(time.Hour, 1)

	l.RecordFailure("a")
	if !l.Blocked("a") {
		t.Fatal("key a should be blocked")
	}
	if l.Blocked("b") {
		t.Error("key b blocked by key a's failures")
	}
}

func TestAttemptLimiterReset(t *testing.T) {
	l := NewAttemptLimiter(time.Hour, 1)

	l.RecordFailure("a")
	if !l.Blocked("a") {
		t.Fatal("precondition: key should be blocked")
	}

	l.Reset("a")
	if l.Blocked("a") {
		t.Error("still blocked after Reset")
	}
}

func TestAttemptLimiterCleanup(t *testing.T) {
	l := NewAttemptLimiter(time.Hour, 1)

	l.RecordFailure("stale")
	l.RecordFailure("fresh")

	// Entries touched just now are not idle; cleanup with a zero max-idle
	// removes everything, cleanup with a generous one removes nothing.
	if removed := l.Cleanup(time.Hour); removed != 0 {
		t.Errorf("Cleanup removed %d fresh entries", removed)
	}
	time.Sleep(5 * time.Millisecond)
	if removed := l.Cleanup(time.Nanosecond); removed != 2 {
		t.Errorf("Cleanup removed %d, want 2", removed)
	}
}
