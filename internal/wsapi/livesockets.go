package wsapi

import (
	"sync"

	"relay/server/internal/mailbox"
	"relay/server/internal/protocol"
)

// LiveSocketMap is the LiveChatSocketMap of spec.md §3: at most one socket
// per fingerprint, with new registrations replacing older ones and
// stale-close safety — a socket's own close only clears the map entry if it
// is still the one currently mapped, so an old socket closing after a new
// one has registered can never evict the new registration. It also
// implements mailbox.Pusher, delivering a newMessage frame directly to
// whatever socket is currently registered for a recipient.
type LiveSocketMap struct {
	mu      sync.Mutex
	current map[string]*socket
}

// NewLiveSocketMap returns an empty map. Construct it before the
// mailbox.Queue it will be wired to as a Pusher, and before the ChatHandler
// that registers sockets into it.
func NewLiveSocketMap() *LiveSocketMap {
	return &LiveSocketMap{current: make(map[string]*socket)}
}

// Register maps fp to sock, replacing any prior socket for fp without
// notifying it — last-writer-wins, per spec.md §9.
func (m *LiveSocketMap) Register(fp string, sock *socket) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current[fp] = sock
}

// Get returns the socket currently registered for fp, or nil.
func (m *LiveSocketMap) Get(fp string) *socket {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current[fp]
}

// CloseIfCurrent removes fp's map entry only if sock is still the mapped
// socket. A socket that was already superseded by a newer registration
// must not clear that newer registration when it closes.
func (m *LiveSocketMap) CloseIfCurrent(fp string, sock *socket) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current[fp] == sock {
		delete(m.current, fp)
	}
}

// Push implements mailbox.Pusher: it delivers a newMessage frame to the
// live socket registered for `to`, if any, and is a silent no-op otherwise.
// Per spec.md §9, the mailbox enqueue always happens before this is called,
// so a failed or absent push never loses the message — it simply waits for
// the next fetch.
func (m *LiveSocketMap) Push(to string, msg mailbox.Message) {
	sock := m.Get(to)
	if sock == nil {
		return
	}
	sock.Send(mustMarshal(protocol.NewMessageFrame{
		Type: protocol.TypeNewMessage,
		Message: protocol.ChatMessage{
			Id:      msg.Id,
			From:    msg.From,
			Payload: msg.Payload,
		},
	}))
}
