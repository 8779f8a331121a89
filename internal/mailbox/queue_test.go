package mailbox

import (
	"testing"
	"time"

	"relay/server/internal/clock"
)

type recordingPusher struct {
	pushed []Message
}

func (p *recordingPusher) Push(to string, msg Message) {
	p.pushed = append(p.pushed, msg)
}

func TestEnqueueDedup(t *testing.T) {
	q := New(nil, nil)

	if dup := q.Enqueue("fpB", "fpA", "E1", "m1"); dup {
		t.Fatal("first Enqueue reported duplicate")
	}
	if dup := q.Enqueue("fpB", "fpA", "E1-retry", "m1"); !dup {
		t.Fatal("repeated messageId not treated as duplicate")
	}

	msgs := q.Fetch("fpB")
	if len(msgs) != 1 {
		t.Fatalf("mailbox has %d messages, want 1", len(msgs))
	}
	if msgs[0].Payload != "E1" {
		t.Fatalf("duplicate enqueue overwrote payload: %q", msgs[0].Payload)
	}
}

func TestFetchOrderAndAck(t *testing.T) {
	q := New(nil, nil)
	q.Enqueue("fpB", "fpA", "E1", "m1")
	q.Enqueue("fpB", "fpA", "E2", "m2")
	q.Enqueue("fpB", "fpA", "E3", "m3")

	msgs := q.Fetch("fpB")
	if len(msgs) != 3 || msgs[0].Id != "m1" || msgs[2].Id != "m3" {
		t.Fatalf("unexpected fetch order: %+v", msgs)
	}

	q.Ack("fpB", []string{"m2"})
	msgs = q.Fetch("fpB")
	if len(msgs) != 2 || msgs[0].Id != "m1" || msgs[1].Id != "m3" {
		t.Fatalf("unexpected state after ack: %+v", msgs)
	}
}

func TestAckEmptiesAndDropsMailbox(t *testing.T) {
	q := New(nil, nil)
	q.Enqueue("fpB", "fpA", "E1", "m1")
	q.Ack("fpB", []string{"m1"})

	if n := q.MailboxCount(); n != 0 {
		t.Fatalf("MailboxCount() = %d after emptying ack, want 0", n)
	}
	if msgs := q.Fetch("fpB"); len(msgs) != 0 {
		t.Fatalf("Fetch after empty-drop returned %d messages", len(msgs))
	}
}

func TestLivePushOnEnqueue(t *testing.T) {
	pusher := &recordingPusher{}
	q := New(pusher, nil)

	q.Enqueue("fpB", "fpA", "E1", "m1")
	if len(pusher.pushed) != 1 || pusher.pushed[0].Id != "m1" {
		t.Fatalf("push not invoked as expected: %+v", pusher.pushed)
	}

	// Duplicate enqueue must not re-push.
	q.Enqueue("fpB", "fpA", "E1", "m1")
	if len(pusher.pushed) != 1 {
		t.Fatalf("duplicate enqueue triggered a push: %d pushes", len(pusher.pushed))
	}
}

func TestOnMessageCallbackSkipsDuplicates(t *testing.T) {
	calls := 0
	q := New(nil, func() { calls++ })
	q.Enqueue("fpB", "fpA", "E1", "m1")
	q.Enqueue("fpB", "fpA", "E1", "m1")
	if calls != 1 {
		t.Fatalf("onMessage called %d times, want 1", calls)
	}
}

func TestSweepExpiresOldMessages(t *testing.T) {
	q := New(nil, nil)
	now := int64(1_000_000)
	clock.NowMs = func() int64 { return now }
	defer func() { clock.NowMs = func() int64 { return time.Now().UnixMilli() } }()

	q.Enqueue("fpB", "fpA", "E1", "m1")
	now += TTL.Milliseconds() + 1
	q.Sweep()

	if msgs := q.Fetch("fpB"); len(msgs) != 0 {
		t.Fatalf("Fetch after sweep returned %d messages, want 0", len(msgs))
	}
	if n := q.MailboxCount(); n != 0 {
		t.Fatalf("MailboxCount() = %d after sweep emptied it, want 0", n)
	}
}
