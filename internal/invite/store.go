// Package invite implements the two-phase chat invite exchange: a creator
// posts a bundle under an invite id, a claimer later retrieves it and posts
// their own bundle back, and the creator reads the claimer's bundle through
// Get, which may be called any number of times until the invite expires.
// Grounded on the same Put/Take vault shape as internal/otm,
// extended with an explicit unclaimed -> claimed state machine.
package invite

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"relay/server/internal/clock"
)

// DefaultTTL is the invite lifetime used when the creator does not supply an
// explicit expiry.
const DefaultTTL = 24 * time.Hour

const sweepInterval = 60 * time.Second

// ErrNotFound means the invite id does not exist, has expired, or has
// already been swept.
var ErrNotFound = errors.New("invite not found")

// ErrConflict means Create was called with an id that already exists.
var ErrConflict = errors.New("invite already exists")

// ErrAlreadyClaimed means Claim was called against an invite that already
// has a claimer bundle.
var ErrAlreadyClaimed = errors.New("invite already claimed")

type state int

const (
	stateUnclaimed state = iota
	stateClaimed
)

type entry struct {
	creatorBundle string
	claimerBundle string
	state         state
	createdAt     int64
	expiresAt     int64
}

// View is the public, read-only view of an invite returned by Get.
type View struct {
	CreatorBundle string
	Claimed       bool
	ClaimerBundle string
}

// Store is the in-memory invite exchange.
type Store struct {
	mu      sync.Mutex
	entries map[string]entry
	onPut   func()
}

// New returns an empty store. onCreate, if non-nil, is called once per
// successful Create (used to increment the chat_invites_created total).
func New(onCreate func()) *Store {
	return &Store{
		entries: make(map[string]entry),
		onPut:   onCreate,
	}
}

// Create registers a new invite under inviteId with the creator's bundle.
// expiresAtMs is an absolute epoch-millisecond expiry; if zero, DefaultTTL
// from now is used. Returns ErrConflict if inviteId is already in use.
func (s *Store) Create(inviteId, creatorBundle string, expiresAtMs int64) error {
	now := clock.NowMs()
	if expiresAtMs == 0 {
		expiresAtMs = now + DefaultTTL.Milliseconds()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entries[inviteId]; exists {
		return ErrConflict
	}
	s.entries[inviteId] = entry{
		creatorBundle: creatorBundle,
		state:         stateUnclaimed,
		createdAt:     now,
		expiresAt:     expiresAtMs,
	}
	if s.onPut != nil {
		s.onPut()
	}
	slog.Debug("invite create", "id", inviteId)
	return nil
}

// Get returns the current view of inviteId: the creator's bundle and
// whether a claimer has already claimed it. Returns ErrNotFound if the
// invite does not exist or has expired.
func (s *Store) Get(inviteId string) (View, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[inviteId]
	if !ok {
		return View{}, ErrNotFound
	}
	if clock.NowMs() > e.expiresAt {
		delete(s.entries, inviteId)
		return View{}, ErrNotFound
	}
	return View{
		CreatorBundle: e.creatorBundle,
		Claimed:       e.state == stateClaimed,
		ClaimerBundle: e.claimerBundle,
	}, nil
}

// Claim attaches the claimer's bundle to inviteId and returns the creator's
// bundle. Returns ErrNotFound if the invite does not exist or has expired,
// ErrAlreadyClaimed if a claimer bundle is already attached.
func (s *Store) Claim(inviteId, claimerBundle string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[inviteId]
	if !ok {
		return "", ErrNotFound
	}
	if clock.NowMs() > e.expiresAt {
		delete(s.entries, inviteId)
		return "", ErrNotFound
	}
	if e.state == stateClaimed {
		return "", ErrAlreadyClaimed
	}
	e.claimerBundle = claimerBundle
	e.state = stateClaimed
	s.entries[inviteId] = e
	slog.Debug("invite claim", "id", inviteId)
	return e.creatorBundle, nil
}

// Sweep deletes invites past their expiry.
func (s *Store) Sweep() {
	now := clock.NowMs()
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, e := range s.entries {
		if now > e.expiresAt {
			delete(s.entries, id)
			removed++
		}
	}
	if removed > 0 {
		slog.Debug("invite sweep", "removed", removed, "remaining", len(s.entries))
	}
}

// Run sweeps expired invites every sweepInterval until ctx is canceled.
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

// Count returns the number of live invites, for metrics.
func (s *Store) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
