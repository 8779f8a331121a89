// Package filestore implements the one-time file store: a binary-payload
// vault with the same single-download, TTL-swept contract as internal/otm,
// adapted from the teacher's internal/blob.Store — but in-memory rather than
// disk+sqlite, since file entries here are single-download ephemeral
// ciphertext, not durable chat attachments.
package filestore

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/dustin/go-humanize"

	"relay/server/internal/clock"
	"relay/server/internal/ids"
)

// TTL is the maximum age of an unconsumed file before it is no longer
// readable.
const TTL = 24 * time.Hour

// MaxSize is the maximum accepted upload payload.
const MaxSize = 12 * 1024 * 1024 // 12 MiB

const sweepInterval = 60 * time.Second

type entry struct {
	ciphertext []byte
	createdAt  int64
}

// Store is the in-memory one-time-file vault.
type Store struct {
	mu      sync.Mutex
	entries map[string]entry
	onPut   func()
}

// New returns an empty store. onPut, if non-nil, is called once per
// successful Put (used to increment the files_created total).
func New(onPut func()) *Store {
	return &Store{
		entries: make(map[string]entry),
		onPut:   onPut,
	}
}

// Put stores ciphertext bytes under a freshly minted id and returns that id.
// Callers are responsible for enforcing MaxSize before calling Put; the
// store itself does not reject oversized payloads so that it stays a plain
// in-memory map with no I/O.
func (s *Store) Put(ciphertext []byte) string {
	id := ids.New()
	now := clock.NowMs()

	// Copy defensively: callers typically hand us a buffer read directly
	// off the request body, which may be reused or mutated afterward.
	cp := make([]byte, len(ciphertext))
	copy(cp, ciphertext)

	s.mu.Lock()
	s.entries[id] = entry{ciphertext: cp, createdAt: now}
	s.mu.Unlock()

	if s.onPut != nil {
		s.onPut()
	}
	slog.Debug("file put", "id", id, "size", humanize.Bytes(uint64(len(cp))))
	return id
}

// Take atomically removes and returns the payload for id. The second return
// value is false if the entry never existed, was already consumed, or has
// exceeded its TTL.
func (s *Store) Take(id string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok {
		return nil, false
	}
	delete(s.entries, id)
	if clock.Since(e.createdAt) > TTL.Milliseconds() {
		slog.Debug("file take: expired", "id", id)
		return nil, false
	}
	slog.Debug("file take: consumed", "id", id, "size", humanize.Bytes(uint64(len(e.ciphertext))))
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
		slog.Debug("file sweep", "removed", removed, "remaining", len(s.entries))
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
