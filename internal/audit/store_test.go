// Gatehouse - HTTP Request Authorization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gatehouse

package audit

import (
	"testing"
	"time"

	"github.com/tomtom215/gatehouse/internal/authz"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := OpenStore(t.TempDir(), time.Hour)
	if err != nil {
		t.Fatalf("OpenStore failed: %v", err)
	}
	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Errorf("Close: %v", err)
		}
	})
	return s
}

func TestStoreAppendAndQuery(t *testing.T) {
	s := newTestStore(t)

	base := time.Now().Add(-time.Minute)
	for i := 0; i < 5; i++ {
		ev := &authz.DecisionEvent{
			Timestamp: base.Add(time.Duration(i) * time.Second),
			Principal: "alice",
			Path:      "/api/x",
			Method:    "GET",
			Allowed:   i%2 == 0,
			Reason:    "test",
		}
		if err := s.Append(ev); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	events, err := s.Query(base.Add(-time.Second), time.Now(), 0)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(events) != 5 {
		t.Fatalf("got %d events, want 5", len(events))
	}
	if events[0].Principal != "alice" || events[0].Path != "/api/x" {
		t.Errorf("event = %+v", events[0])
	}

	// Oldest first.
	for i := 1; i < len(events); i++ {
		if events[i].Timestamp.Before(events[i-1].Timestamp) {
			t.Fatal("events not in timestamp order")
		}
	}
}

func TestStoreQueryRangeAndLimit(t *testing.T) {
	s := newTestStore(t)

	base := time.Now().Add(-time.Hour)
	for i := 0; i < 10; i++ {
		ev := &authz.DecisionEvent{
			Timestamp: base.Add(time.Duration(i) * time.Minute),
			Path:      "/x",
			Method:    "GET",
		}
		if err := s.Append(ev); err != nil {
			t.Fatal(err)
		}
	}

	// Half-open range excludes the upper bound.
	events, err := s.Query(base.Add(2*time.Minute), base.Add(5*time.Minute), 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 3 {
		t.Errorf("range query returned %d events, want 3", len(events))
	}

	events, err = s.Query(base, time.Now(), 4)
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 4 {
		t.Errorf("limited query returned %d events, want 4", len(events))
	}
}
