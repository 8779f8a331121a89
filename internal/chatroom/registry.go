// Package chatroom implements the ephemeral room registry: client-supplied
// opaque room ids host an arbitrary-width fan-out group with presence
// broadcast, a grace-period destruction timer on last-member-leave, and a
// monotonic "burned" set that permanently blocks a room id from hosting new
// members again. Grounded on the SecretR00M example's Registry/Room/Client
// shape (room.go), generalized from a fixed host/client topology to
// symmetric membership and extended with the burn protocol.
package chatroom

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"
)

// destroyGrace is how long an empty room stays addressable before its
// registry entry is deleted. A var so tests can shorten it.
var destroyGrace = 5 * time.Second

// Frame types mirror gorilla/websocket's opcode constants (TextMessage=1,
// BinaryMessage=2) without requiring this package to import the transport.
const (
	FrameText   = 1
	FrameBinary = 2
)

// Member is anything the registry can push frames to and close. Send is
// for frames the registry itself constructs (presence, roomDestroyed — both
// always JSON text); SendRaw forwards a frame exactly as the original
// sender transmitted it, preserving the text/binary distinction without the
// registry ever inspecting binary payloads.
type Member interface {
	Send(frame []byte)
	SendRaw(frameType int, data []byte)
	Close()
}

type room struct {
	id      string
	members map[Member]struct{}
	timer   *time.Timer
}

// Registry owns every live room plus the permanently-burned set.
type Registry struct {
	mu     sync.Mutex
	rooms  map[string]*room
	burned map[string]struct{}
	onJoin func()
}

// New returns an empty registry. onRoomCreate, if non-nil, is called once
// per freshly created room (used to increment rooms_created).
func New(onRoomCreate func()) *Registry {
	return &Registry{
		rooms:  make(map[string]*room),
		burned: make(map[string]struct{}),
		onJoin: onRoomCreate,
	}
}

// Burned reports whether roomId has been permanently burned.
func (r *Registry) Burned(roomId string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.burned[roomId]
	return ok
}

// Join adds member to roomId, creating the room if it does not exist and
// canceling any pending destruction timer. It broadcasts a presence frame
// to every member (including the new one) reflecting the post-join count.
// Callers must have already rejected burned room ids via Burned.
func (r *Registry) Join(roomId string, member Member) {
	r.mu.Lock()
	rm, exists := r.rooms[roomId]
	if !exists {
		rm = &room{id: roomId, members: make(map[Member]struct{})}
		r.rooms[roomId] = rm
		if r.onJoin != nil {
			r.onJoin()
		}
	}
	if rm.timer != nil {
		rm.timer.Stop()
		rm.timer = nil
	}
	rm.members[member] = struct{}{}
	frame := presenceFrame(roomId, len(rm.members))
	r.broadcastLocked(rm, nil, frame)
	r.mu.Unlock()

	slog.Debug("chatroom join", "room", roomId, "members", len(rm.members))
}

// Leave removes member from roomId. If the room becomes empty, a grace
// timer is armed to delete it; otherwise presence is rebroadcast.
func (r *Registry) Leave(roomId string, member Member) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rm, exists := r.rooms[roomId]
	if !exists {
		return
	}
	if _, ok := rm.members[member]; !ok {
		return
	}
	delete(rm.members, member)

	if len(rm.members) == 0 {
		rm.timer = time.AfterFunc(destroyGrace, func() { r.expire(roomId) })
		return
	}
	r.broadcastLocked(rm, nil, presenceFrame(roomId, len(rm.members)))
}

// expire deletes roomId if it is still empty when the grace timer fires.
// Join cancels the timer, so this only runs through to completion for rooms
// that truly stayed empty.
func (r *Registry) expire(roomId string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rm, exists := r.rooms[roomId]
	if !exists || len(rm.members) != 0 {
		return
	}
	delete(r.rooms, roomId)
	slog.Debug("chatroom expired", "room", roomId)
}

// Forward delivers a binary or opaque-text frame to every member of roomId
// except sender, preserving frameType exactly as received. The server never
// inspects binary payloads; callers are responsible for only routing
// non-control text through Forward.
func (r *Registry) Forward(roomId string, sender Member, frameType int, data []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rm, exists := r.rooms[roomId]
	if !exists {
		return
	}
	for m := range rm.members {
		if m == sender {
			continue
		}
		m.SendRaw(frameType, data)
	}
}

// HandleText inspects a text frame for the burn control message. If it
// matches, the burn protocol runs and handled=true is returned (the caller
// must not also forward the frame). Otherwise handled=false and the caller
// should Forward the raw frame itself.
func (r *Registry) HandleText(roomId string, frame []byte) (handled bool) {
	var ctrl controlFrame
	if err := json.Unmarshal(frame, &ctrl); err != nil {
		return false
	}
	if ctrl.Type != "control" || ctrl.Action != "burnRoom" || ctrl.RoomId != roomId {
		return false
	}
	r.burn(roomId)
	return true
}

type controlFrame struct {
	Type   string `json:"type"`
	Action string `json:"action"`
	RoomId string `json:"roomId"`
}

// burn executes the burn protocol: every current member (the sender
// included) is told the room is destroyed and disconnected, the room id is
// marked permanently burned, and the registry entry is removed.
func (r *Registry) burn(roomId string) {
	r.mu.Lock()
	r.burned[roomId] = struct{}{}
	rm, exists := r.rooms[roomId]
	if exists {
		delete(r.rooms, roomId)
	}
	r.mu.Unlock()

	if !exists {
		return
	}
	frame := destroyedFrame(roomId)
	for m := range rm.members {
		m.Send(frame)
		m.Close()
	}
	slog.Info("chatroom burned", "room", roomId)
}

// broadcastLocked sends frame to every member of rm except skip. Callers
// must hold r.mu.
func (r *Registry) broadcastLocked(rm *room, skip Member, frame []byte) {
	for m := range rm.members {
		if m == skip {
			continue
		}
		m.Send(frame)
	}
}

func presenceFrame(roomId string, count int) []byte {
	b, _ := json.Marshal(struct {
		Type   string `json:"type"`
		RoomId string `json:"roomId"`
		Count  int    `json:"count"`
	}{Type: "presence", RoomId: roomId, Count: count})
	return b
}

func destroyedFrame(roomId string) []byte {
	b, _ := json.Marshal(struct {
		Type   string `json:"type"`
		RoomId string `json:"roomId"`
	}{Type: "roomDestroyed", RoomId: roomId})
	return b
}

// RoomCount returns the number of live (non-burned, currently registered)
// rooms, for metrics.
func (r *Registry) RoomCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rooms)
}

// BurnedCount returns the number of permanently burned room ids, for
// metrics.
func (r *Registry) BurnedCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.burned)
}
