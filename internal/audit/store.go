// Gatehouse - HTTP Request Authorization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gatehouse

package audit

import (
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	json "github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/tomtom215/gatehouse/internal/authz"
	"github.com/tomtom215/gatehouse/internal/logging"
)

const (
	decisionPrefix = "decision:"

	// defaultRetention bounds how long persisted decisions are kept.
	defaultRetention = 30 * 24 * time.Hour

	gcInterval     = 10 * time.Minute
	gcDiscardRatio = 0.5
)

// Store persists decision events in BadgerDB. Keys embed the event
// timestamp so time-range queries are a prefix scan, and every entry
// carries a TTL so expired decisions vanish without a sweeper.
type Store struct {
	db        *badger.DB
	retention time.Duration
	stopGC    chan struct{}
}

// OpenStore opens (or creates) the audit database at path.
func OpenStore(path string, retention time.Duration) (*Store, error) {
	if retention <= 0 {
		retention = defaultRetention
	}

	opts := badger.DefaultOptions(path).
		WithLogger(nil).
		WithCompactL0OnClose(true)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open audit store: %w", err)
	}

	s := &Store{
		db:        db,
		retention: retention,
		stopGC:    make(chan struct{}),
	}
	go s.gcLoop()

	logging.Info().Str("path", path).Dur("retention", retention).Msg("Audit store opened")
	return s, nil
}

// Append persists one decision event.
func (s *Store) Append(ev *authz.DecisionEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal audit event: %w", err)
	}

	key := decisionKey(ev.Timestamp)
	return s.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry(key, data).WithTTL(s.retention)
		return txn.SetEntry(entry)
	})
}

// Query returns events with timestamps in [from, to), newest last,
// up to limit (0 means no limit).
func (s *Store) Query(from, to time.Time, limit int) ([]*authz.DecisionEvent, error) {
	var events []*authz.DecisionEvent

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(decisionPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		start := []byte(fmt.Sprintf("%s%020d", decisionPrefix, from.UnixNano()))
		for it.Seek(start); it.Valid(); it.Next() {
			item := it.Item()
			ts, ok := timestampFromKey(item.Key())
			if !ok {
				continue
			}
			if !ts.Before(to) {
				break
			}

			err := item.Value(func(val []byte) error {
				var ev authz.DecisionEvent
				if err := json.Unmarshal(val, &ev); err != nil {
					return err
				}
				events = append(events, &ev)
				return nil
			})
			if err != nil {
				return err
			}

			if limit > 0 && len(events) >= limit {
				break
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("query audit store: %w", err)
	}
	return events, nil
}

// Close stops garbage collection and closes the database.
func (s *Store) Close() error {
	close(s.stopGC)
	return s.db.Close()
}

func (s *Store) gcLoop() {
	ticker := time.NewTicker(gcInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopGC:
			return
		case <-ticker.C:
			// RunValueLogGC returns ErrNoRewrite when there is
			// nothing to reclaim; not an error worth logging.
			for {
				if err := s.db.RunValueLogGC(gcDiscardRatio); err != nil {
					break
				}
			}
		}
	}
}

// decisionKey encodes the timestamp in a lexically sortable form and
// appends a UUID so same-nanosecond events never collide.
func decisionKey(ts time.Time) []byte {
	return []byte(fmt.Sprintf("%s%020d:%s", decisionPrefix, ts.UnixNano(), uuid.NewString()))
}

func timestampFromKey(key []byte) (time.Time, bool) {
	s := string(key)
	if len(s) < len(decisionPrefix)+20 {
		return time.Time{}, false
	}
	var nanos int64
	if _, err := fmt.Sscanf(s[len(decisionPrefix):len(decisionPrefix)+20], "%d", &nanos); err != nil {
		return time.Time{}, false
	}
	return time.Unix(0, nanos), true
}
