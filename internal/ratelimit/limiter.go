// Package ratelimit implements the three independent fixed-window request
// counters described by the relay's rate-limiting design: fixed 60-second
// windows keyed by (family, action, client IP), with idle buckets swept to
// bound memory on long-running deployments.
package ratelimit

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// Family names the independent rate-limit domains. No family's counters
// interact with another's.
type Family string

const (
	FamilyOTM  Family = "otm"
	FamilyFile Family = "file"
	FamilyChat Family = "chat"
)

// Action names one counted operation within a family.
type Action string

const (
	ActionOTMPost  Action = "post"
	ActionOTMGet   Action = "get"
	ActionFileUp   Action = "upload"
	ActionFileDown Action = "download"
	ActionChatInv  Action = "invite"
	ActionChatMsg  Action = "message"
)

// Window is the fixed rate-limit window duration.
const Window = 60 * time.Second

// idleEvictAfter bounds memory growth from distinct IPs: a bucket whose
// window started this long ago without a subsequent request is dropped the
// next time the sweeper runs, per spec.md §9's explicit recommendation.
const idleEvictAfter = 5 * Window

// thresholds maps (family, action) to the max admitted requests per window.
var thresholds = map[Family]map[Action]int{
	FamilyOTM: {
		ActionOTMPost: 30,
		ActionOTMGet:  60,
	},
	FamilyFile: {
		ActionFileUp:   10,
		ActionFileDown: 30,
	},
	FamilyChat: {
		ActionChatInv: 10,
		ActionChatMsg: 60,
	},
}

type bucketKey struct {
	family Family
	action Action
	ip     string
}

type bucket struct {
	windowStart time.Time
	count       int
}

// Limiter holds one fixed-window bucket per (family, action, ip).
type Limiter struct {
	mu      sync.Mutex
	buckets map[bucketKey]*bucket
	now     func() time.Time
}

// New returns an empty rate limiter.
func New() *Limiter {
	return &Limiter{
		buckets: make(map[bucketKey]*bucket),
		now:     time.Now,
	}
}

// Allow admits or rejects one request for (family, action, ip). The window
// resets lazily: if the bucket's window has elapsed, it starts a fresh one
// at the current request rather than on a separate timer.
func (l *Limiter) Allow(family Family, action Action, ip string) bool {
	limit, ok := thresholds[family][action]
	if !ok {
		// Unknown (family, action) pairs are not rate-limited; this only
		// happens for a programming error in a caller, not client input.
		return true
	}
	if ip == "" {
		ip = "unknown"
	}

	key := bucketKey{family: family, action: action, ip: ip}
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	b, exists := l.buckets[key]
	if !exists || now.Sub(b.windowStart) >= Window {
		b = &bucket{windowStart: now}
		l.buckets[key] = b
	}

	if b.count >= limit {
		return false
	}
	b.count++
	return true
}

// Sweep drops buckets idle long enough that they could not possibly still be
// rate-limiting anything, bounding memory growth from distinct client IPs.
func (l *Limiter) Sweep() {
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for k, b := range l.buckets {
		if now.Sub(b.windowStart) > idleEvictAfter {
			delete(l.buckets, k)
			removed++
		}
	}
	if removed > 0 {
		slog.Debug("ratelimit sweep", "removed", removed, "remaining", len(l.buckets))
	}
}

// BucketCount reports the number of tracked buckets, for metrics/tests.
func (l *Limiter) BucketCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

// Run sweeps idle buckets every Window until ctx is canceled.
func (l *Limiter) Run(ctx context.Context) {
	ticker := time.NewTicker(Window)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.Sweep()
		}
	}
}

// ClientIP extracts the client IP per spec.md §4.B: the first comma-separated
// value of X-Forwarded-For if present, otherwise the given remote address,
// otherwise "unknown".
func ClientIP(forwardedFor, remoteAddr string) string {
	if forwardedFor != "" {
		if i := strings.IndexByte(forwardedFor, ','); i >= 0 {
			return strings.TrimSpace(forwardedFor[:i])
		}
		return strings.TrimSpace(forwardedFor)
	}
	if remoteAddr != "" {
		return remoteAddr
	}
	return "unknown"
}
