// Copyright 2026 The Claudebot Authors
// SPDX-License-Identifier: Apache-2.0

// Package session maps caller identities to their most recent executor
// session identifier, giving conversational continuity without the
// caller tracking session IDs itself.
//
// Writes are last-write-wins: after a successful run the executor
// stores whatever session ID the run produced, unconditionally. Reads
// return the stored value only while it is younger than the configured
// TTL. Entries never cross callers.
//
// Like the rate limiter, each caller's entry carries its own lock so
// unrelated callers never serialize; the registry lock guards only map
// lookup and insertion.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/claudebot/bridge/lib/clock"
)

// DefaultTTL is how long a stored session remains resumable. The
// executor's sessions survive much longer on disk, but resuming a
// conversation a day later rarely makes sense for a chat front-end.
const DefaultTTL = 24 * time.Hour

// entry is the per-caller session record.
type entry struct {
	mu        sync.Mutex
	sessionID string
	updatedAt time.Time
}

// Store maps caller IDs to session IDs with a TTL.
type Store struct {
	ttl   time.Duration
	clock clock.Clock

	// mu guards the entries map only. Entry state is guarded by each
	// entry's own mutex.
	mu      sync.RWMutex
	entries map[int64]*entry
}

// New creates a Store. A ttl of zero disables expiry; a negative ttl
// falls back to DefaultTTL.
func New(ttl time.Duration, clk clock.Clock) *Store {
	if ttl < 0 {
		ttl = DefaultTTL
	}
	if clk == nil {
		clk = clock.Real()
	}
	return &Store{
		ttl:     ttl,
		clock:   clk,
		entries: make(map[int64]*entry),
	}
}

// Get returns the caller's stored session ID, if present and not
// expired.
func (s *Store) Get(callerID int64) (string, bool) {
	s.mu.RLock()
	record, ok := s.entries[callerID]
	s.mu.RUnlock()
	if !ok {
		return "", false
	}

	record.mu.Lock()
	defer record.mu.Unlock()
	if s.expired(record) {
		return "", false
	}
	return record.sessionID, true
}

// Put stores the caller's session ID, overwriting any previous value.
func (s *Store) Put(callerID int64, sessionID string) {
	s.mu.RLock()
	record, ok := s.entries[callerID]
	s.mu.RUnlock()

	if !ok {
		s.mu.Lock()
		record, ok = s.entries[callerID]
		if !ok {
			record = &entry{}
			s.entries[callerID] = record
		}
		s.mu.Unlock()
	}

	record.mu.Lock()
	record.sessionID = sessionID
	record.updatedAt = s.clock.Now()
	record.mu.Unlock()
}

// Len returns the number of unexpired sessions. Reported by the
// server's status endpoint.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, record := range s.entries {
		record.mu.Lock()
		if !s.expired(record) {
			count++
		}
		record.mu.Unlock()
	}
	return count
}

// Sweep removes expired entries and returns how many were evicted.
func (s *Store) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	evicted := 0
	for callerID, record := range s.entries {
		record.mu.Lock()
		expired := s.expired(record)
		record.mu.Unlock()
		if expired {
			delete(s.entries, callerID)
			evicted++
		}
	}
	return evicted
}

// RunSweeper sweeps expired sessions at the given interval until the
// context is cancelled.
func (s *Store) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := s.clock.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep()
		}
	}
}

// expired reports whether the record is past the TTL. Callers hold
// the record's mutex.
func (s *Store) expired(record *entry) bool {
	if s.ttl == 0 {
		return false
	}
	return s.clock.Now().Sub(record.updatedAt) > s.ttl
}
