package ratelimit

import (
	"testing"
	"time"
)

func TestAllowUpToThresholdThenReject(t *testing.T) {
	l := New()
	for i := 0; i < 10; i++ {
		if !l.Allow(FamilyChat, ActionChatInv, "1.2.3.4") {
			t.Fatalf("request %d rejected within threshold", i+1)
		}
	}
	if l.Allow(FamilyChat, ActionChatInv, "1.2.3.4") {
		t.Fatal("request beyond threshold was admitted")
	}
}

func TestWindowResetsAfter60Seconds(t *testing.T) {
	l := New()
	now := time.Unix(0, 0)
	l.now = func() time.Time { return now }

	for i := 0; i < 10; i++ {
		if !l.Allow(FamilyChat, ActionChatInv, "1.2.3.4") {
			t.Fatalf("request %d rejected within threshold", i+1)
		}
	}
	if l.Allow(FamilyChat, ActionChatInv, "1.2.3.4") {
		t.Fatal("11th request admitted within the same window")
	}

	now = now.Add(Window)
	if !l.Allow(FamilyChat, ActionChatInv, "1.2.3.4") {
		t.Fatal("request rejected after window elapsed, want admitted")
	}
}

func TestFamiliesAndActionsAreIndependent(t *testing.T) {
	l := New()
	for i := 0; i < 30; i++ {
		if !l.Allow(FamilyOTM, ActionOTMPost, "9.9.9.9") {
			t.Fatalf("otm post request %d rejected within its own threshold", i+1)
		}
	}
	if !l.Allow(FamilyOTM, ActionOTMGet, "9.9.9.9") {
		t.Fatal("otm get rejected though it has an independent counter")
	}
	if !l.Allow(FamilyFile, ActionFileUp, "9.9.9.9") {
		t.Fatal("file upload rejected though it has an independent counter")
	}
}

func TestDifferentIPsIndependent(t *testing.T) {
	l := New()
	for i := 0; i < 10; i++ {
		l.Allow(FamilyChat, ActionChatInv, "1.1.1.1")
	}
	if !l.Allow(FamilyChat, ActionChatInv, "2.2.2.2") {
		t.Fatal("a different client IP was rejected due to another IP's usage")
	}
}

func TestUnknownFamilyActionNotLimited(t *testing.T) {
	l := New()
	for i := 0; i < 1000; i++ {
		if !l.Allow(Family("bogus"), Action("bogus"), "1.2.3.4") {
			t.Fatal("unknown family/action pair was rate-limited")
		}
	}
}

func TestSweepEvictsIdleBuckets(t *testing.T) {
	l := New()
	now := time.Unix(0, 0)
	l.now = func() time.Time { return now }

	l.Allow(FamilyChat, ActionChatInv, "1.2.3.4")
	if l.BucketCount() != 1 {
		t.Fatalf("BucketCount() = %d, want 1", l.BucketCount())
	}

	now = now.Add(idleEvictAfter + time.Second)
	l.Sweep()
	if l.BucketCount() != 0 {
		t.Fatalf("BucketCount() = %d after sweep of idle bucket, want 0", l.BucketCount())
	}
}

func TestClientIPPrefersForwardedFor(t *testing.T) {
	cases := []struct {
		forwardedFor string
		remoteAddr   string
		want         string
	}{
		{"203.0.113.1, 10.0.0.1", "10.0.0.9:1234", "203.0.113.1"},
		{"  203.0.113.1  ", "10.0.0.9:1234", "203.0.113.1"},
		{"", "10.0.0.9:1234", "10.0.0.9:1234"},
		{"", "", "unknown"},
	}
	for _, c := range cases {
		if got := ClientIP(c.forwardedFor, c.remoteAddr); got != c.want {
			t.Errorf("ClientIP(%q, %q) = %q, want %q", c.forwardedFor, c.remoteAddr, got, c.want)
		}
	}
}
