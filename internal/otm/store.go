// Package otm implements the one-time message store: a ciphertext vault that
// yields each entry to at most one caller, with a 7-day TTL sweep.
package otm

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"relay/server/internal/clock"
	"relay/server/internal/ids"
)

// TTL is the maximum age of an unconsumed entry before it is no longer
// readable.
const TTL = 7 * 24 * time.Hour

// sweepInterval is how often the background sweeper scans for expired
// entries.
const sweepInterval = 60 * time.Second

type entry struct {
	ciphertext string
	createdAt  int64
}

// Store is the in-memory one-time-message vault.
type Store struct {
	mu      sync.Mutex
	entries map[string]entry
	onPut   func()
}

// New returns an empty store. onPut, if non-nil, is called once per
// successful Put (used to increment the otm_created total).
func New(onPut func()) *Store {
	return &Store{
		entries: make(map[string]entry),
		onPut:   onPut,
	}
}

// Put stores ciphertext under a freshly minted id and returns that id.
func (s *Store) Put(ciphertext string) string {
	id := ids.New()
	now := clock.NowMs()

	s.mu.Lock()
	s.entries[id] = entry{ciphertext: ciphertext, createdAt: now}
	s.mu.Unlock()

	if s.onPut != nil {
		s.onPut()
	}
	slog.Debug("otm put", "id", id)
	return id
}

// Take atomically removes and returns the entry for id. The second return
// value is false if the entry never existed, was already consumed, or has
// exceeded its TTL — the store never yields the same entry twice, and two
// concurrent Take calls for the same id resolve so exactly one succeeds.
func (s *Store) Take(id string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok {
		return "", false
	}
	delete(s.entries, id)
	if clock.Since(e.createdAt) > TTL.Milliseconds() {
		slog.Debug("otm take: expired", "id", id)
		return "", false
	}
	slog.Debug("otm take: consumed", "id", id)
	return e.ciphertext, true
}

// Sweep deletes entries whose age exceeds the TTL.
func (s *Store) Sweep() {
	cutoff := clock.NowMs() - TTL.Milliseconds()
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, e := range s.entries {
		if e.createdAt < cutoff {
			delete(s.entries, id)
			removed++
		}
	}
	if removed > 0 {
		slog.Debug("otm sweep", "removed", removed, "remaining", len(s.entries))
	}
}

// Run sweeps expired entries every sweepInterval until ctx is canceled.
func (s *Store) Run(ctx context.Context) {
	ticker := time.NewTicker(sweepInterval)
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

// Count returns the number of live entries, for metrics.
func (s *Store) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
