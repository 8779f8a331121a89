package chatroom

import (
	"sync"
	"testing"
	"time"
)

type fakeMember struct {
	mu     sync.Mutex
	sent   [][]byte
	raw    []struct {
		frameType int
		data      []byte
	}
	closed bool
}

func (f *fakeMember) Send(frame []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, frame)
}

func (f *fakeMember) SendRaw(frameType int, data []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.raw = append(f.raw, struct {
		frameType int
		data      []byte
	}{frameType, data})
}

func (f *fakeMember) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
}

func (f *fakeMember) lastSent() []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sent) == 0 {
		return nil
	}
	return f.sent[len(f.sent)-1]
}

func (f *fakeMember) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func TestJoinBroadcastsPresenceCount(t *testing.T) {
	r := New(nil)
	a, b := &fakeMember{}, &fakeMember{}

	r.Join("room1", a)
	if want := `{"type":"presence","roomId":"room1","count":1}`; string(a.lastSent()) != want {
		t.Fatalf("presence after solo join = %s, want %s", a.lastSent(), want)
	}

	r.Join("room1", b)
	want := `{"type":"presence","roomId":"room1","count":2}`
	if string(a.lastSent()) != want || string(b.lastSent()) != want {
		t.Fatalf("presence after second join: a=%s b=%s, want %s", a.lastSent(), b.lastSent(), want)
	}
	if r.RoomCount() != 1 {
		t.Fatalf("RoomCount() = %d, want 1", r.RoomCount())
	}
}

func TestOnRoomCreateCallback(t *testing.T) {
	calls := 0
	r := New(func() { calls++ })
	a, b := &fakeMember{}, &fakeMember{}
	r.Join("room1", a)
	r.Join("room1", b)
	if calls != 1 {
		t.Fatalf("onRoomCreate called %d times, want 1", calls)
	}
}

func TestLeaveRebroadcastsPresence(t *testing.T) {
	r := New(nil)
	a, b := &fakeMember{}, &fakeMember{}
	r.Join("room1", a)
	r.Join("room1", b)
	r.Leave("room1", b)

	if want := `{"type":"presence","roomId":"room1","count":1}`; string(a.lastSent()) != want {
		t.Fatalf("presence after leave = %s, want %s", a.lastSent(), want)
	}
}

func TestEmptyRoomDestroyedAfterGrace(t *testing.T) {
	orig := destroyGrace
	destroyGrace = 20 * time.Millisecond
	defer func() { destroyGrace = orig }()

	r := New(nil)
	a := &fakeMember{}
	r.Join("room1", a)
	r.Leave("room1", a)

	if r.RoomCount() != 1 {
		t.Fatalf("room deleted before grace elapsed")
	}
	time.Sleep(60 * time.Millisecond)
	if r.RoomCount() != 0 {
		t.Fatalf("RoomCount() = %d after grace elapsed, want 0", r.RoomCount())
	}
}

func TestRejoinCancelsDestroyTimer(t *testing.T) {
	orig := destroyGrace
	destroyGrace = 20 * time.Millisecond
	defer func() { destroyGrace = orig }()

	r := New(nil)
	a, b := &fakeMember{}, &fakeMember{}
	r.Join("room1", a)
	r.Leave("room1", a)
	r.Join("room1", b)

	time.Sleep(60 * time.Millisecond)
	if r.RoomCount() != 1 {
		t.Fatalf("room destroyed despite rejoin, RoomCount() = %d", r.RoomCount())
	}
}

func TestForwardSkipsSenderAndPreservesFrameType(t *testing.T) {
	r := New(nil)
	a, b := &fakeMember{}, &fakeMember{}
	r.Join("room1", a)
	r.Join("room1", b)

	r.Forward("room1", a, FrameBinary, []byte{0xDE, 0xAD})

	if len(a.raw) != 0 {
		t.Fatalf("sender received its own forwarded frame")
	}
	if len(b.raw) != 1 || b.raw[0].frameType != FrameBinary {
		t.Fatalf("recipient raw frames = %+v, want one FrameBinary", b.raw)
	}
}

func TestHandleTextBurnsRoom(t *testing.T) {
	r := New(nil)
	a, b := &fakeMember{}, &fakeMember{}
	r.Join("room1", a)
	r.Join("room1", b)

	burnMsg := []byte(`{"type":"control","action":"burnRoom","roomId":"room1"}`)
	handled := r.HandleText("room1", burnMsg)
	if !handled {
		t.Fatal("HandleText did not recognize burnRoom control frame")
	}

	if !a.isClosed() || !b.isClosed() {
		t.Fatal("burn did not close all members")
	}
	want := `{"type":"roomDestroyed","roomId":"room1"}`
	if string(a.lastSent()) != want || string(b.lastSent()) != want {
		t.Fatalf("roomDestroyed frame = a:%s b:%s, want %s", a.lastSent(), b.lastSent(), want)
	}
	if !r.Burned("room1") {
		t.Fatal("room not marked burned")
	}
	if r.RoomCount() != 0 {
		t.Fatalf("RoomCount() = %d after burn, want 0", r.RoomCount())
	}
}

func TestHandleTextIgnoresNonControlFrames(t *testing.T) {
	r := New(nil)
	a := &fakeMember{}
	r.Join("room1", a)

	if handled := r.HandleText("room1", []byte("not json at all")); handled {
		t.Fatal("HandleText treated non-JSON text as a control frame")
	}
	if handled := r.HandleText("room1", []byte(`{"type":"control","action":"burnRoom","roomId":"otherRoom"}`)); handled {
		t.Fatal("HandleText matched a control frame targeting a different room")
	}
}

func TestBurnPreventsRejoin(t *testing.T) {
	r := New(nil)
	a := &fakeMember{}
	r.Join("room1", a)
	r.HandleText("room1", []byte(`{"type":"control","action":"burnRoom","roomId":"room1"}`))

	if !r.Burned("room1") {
		t.Fatal("Burned() false for a burned room id")
	}
	if r.BurnedCount() != 1 {
		t.Fatalf("BurnedCount() = %d, want 1", r.BurnedCount())
	}
}
