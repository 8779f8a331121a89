// Package mailbox implements the per-recipient store-and-forward chat
// queue: messages accumulate keyed by recipient fingerprint, deduplicated by
// message id, and are pushed to a live socket registration (if any) in
// addition to being retained for later fetch/ack. Grounded on the
// SecretR00M example's registry locking shape, adapted from room membership
// to a per-key FIFO message queue.
package mailbox

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"relay/server/internal/clock"
)

// TTL is the maximum age of an unacknowledged message before it is no
// longer readable.
const TTL = 7 * 24 * time.Hour

const sweepInterval = 60 * time.Second

// Message is one stored chat message.
type Message struct {
	Id        string
	From      string
	Payload   string
	Timestamp int64
}

// Pusher delivers a live-push notification for a newly enqueued message to
// whatever socket is registered for the recipient, if any. Implementations
// must be best-effort: a failed push must not affect Enqueue's result.
type Pusher interface {
	Push(to string, msg Message)
}

type mailboxEntry struct {
	order []string
	byId  map[string]Message
}

// Queue is the in-memory store-and-forward mailbox map.
type Queue struct {
	mu     sync.Mutex
	boxes  map[string]*mailboxEntry
	pusher Pusher
	onEnq  func()
}

// New returns an empty queue. pusher may be nil (no live push available).
// onMessage, if non-nil, is called once per newly-enqueued (non-duplicate)
// message, used to increment the chat_messages_sent total.
func New(pusher Pusher, onMessage func()) *Queue {
	return &Queue{
		boxes:  make(map[string]*mailboxEntry),
		pusher: pusher,
		onEnq:  onMessage,
	}
}

// Enqueue appends a message to the recipient's mailbox. If a message with
// the same id already exists in that mailbox, this is a no-op and
// duplicate=true is returned. Otherwise the message is appended, the total
// is incremented, and — outside the lock — a live-push is attempted.
func (q *Queue) Enqueue(to, from, payload, messageId string) (duplicate bool) {
	now := clock.NowMs()
	msg := Message{Id: messageId, From: from, Payload: payload, Timestamp: now}

	q.mu.Lock()
	box, ok := q.boxes[to]
	if !ok {
		box = &mailboxEntry{byId: make(map[string]Message)}
		q.boxes[to] = box
	}
	if _, exists := box.byId[messageId]; exists {
		q.mu.Unlock()
		return true
	}
	box.byId[messageId] = msg
	box.order = append(box.order, messageId)
	q.mu.Unlock()

	if q.onEnq != nil {
		q.onEnq()
	}
	if q.pusher != nil {
		q.pusher.Push(to, msg)
	}
	slog.Debug("mailbox enqueue", "to", to, "id", messageId)
	return false
}

// Fetch returns all live messages for a recipient, in insertion order.
// Fetch does not remove or mark anything; only Ack does.
func (q *Queue) Fetch(to string) []Message {
	q.mu.Lock()
	defer q.mu.Unlock()

	box, ok := q.boxes[to]
	if !ok {
		return nil
	}
	// Messages past TTL that the sweeper has not yet removed are skipped.
	cutoff := clock.NowMs() - TTL.Milliseconds()
	out := make([]Message, 0, len(box.order))
	for _, id := range box.order {
		if m := box.byId[id]; m.Timestamp >= cutoff {
			out = append(out, m)
		}
	}
	return out
}

// Ack removes the named message ids from the recipient's mailbox. If the
// mailbox becomes empty, its key is dropped from the map.
func (q *Queue) Ack(to string, ids []string) {
	if len(ids) == 0 {
		return
	}
	q.mu.Lock()
	defer q.mu.Unlock()

	box, ok := q.boxes[to]
	if !ok {
		return
	}
	toDrop := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		toDrop[id] = struct{}{}
	}
	for id := range toDrop {
		delete(box.byId, id)
	}
	kept := box.order[:0]
	for _, id := range box.order {
		if _, dropped := toDrop[id]; !dropped {
			kept = append(kept, id)
		}
	}
	box.order = kept
	if len(box.byId) == 0 {
		delete(q.boxes, to)
	}
}

// Sweep removes messages older than TTL from every mailbox, dropping any
// mailbox that becomes empty as a result.
func (q *Queue) Sweep() {
	cutoff := clock.NowMs() - TTL.Milliseconds()
	q.mu.Lock()
	defer q.mu.Unlock()

	removed := 0
	for to, box := range q.boxes {
		kept := box.order[:0]
		for _, id := range box.order {
			if box.byId[id].Timestamp < cutoff {
				delete(box.byId, id)
				removed++
				continue
			}
			kept = append(kept, id)
		}
		box.order = kept
		if len(box.byId) == 0 {
			delete(q.boxes, to)
		}
	}
	if removed > 0 {
		slog.Debug("mailbox sweep", "removed", removed, "mailboxes", len(q.boxes))
	}
}

// Run sweeps expired messages every sweepInterval until ctx is canceled.
func (q *Queue) Run(ctx context.Context) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			q.Sweep()
		}
	}
}

// MailboxCount returns the number of non-empty mailboxes, for metrics.
func (q *Queue) MailboxCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.boxes)
}
