// Package wsapi owns the two websocket endpoints the relay exposes: room
// sockets, which fan out opaque frames within a chatroom.Registry room, and
// chat sockets, which are the live-push half of the mailbox.Queue
// store-and-forward contract. The read/write-pump shape is grounded on
// rustyguts-bken's internal/ws.Handler.
package wsapi

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeTimeout = 5 * time.Second
	sendBuffer   = 64
	readLimit    = 1 << 20 // 1 MiB per incoming frame, the same as the OTM body cap
)

type outbound struct {
	frameType int
	data      []byte
}

// socket wraps one gorilla connection with a buffered send channel and a
// single writer goroutine, so concurrent callers can push frames to it
// without racing on the underlying net.Conn. Close does not tear down the
// connection itself — it closes the send channel and lets writePump drain
// whatever was already queued first, so a frame enqueued right before Close
// (e.g. roomDestroyed ahead of an eject) is never lost to a race between the
// caller and the writer goroutine.
type socket struct {
	conn *websocket.Conn
	out  chan outbound

	mu      sync.Mutex
	closing bool
	once    sync.Once
}

func newSocket(conn *websocket.Conn) *socket {
	s := &socket{
		conn: conn,
		out:  make(chan outbound, sendBuffer),
	}
	go s.writePump()
	return s
}

// Send queues a JSON text frame for delivery — used for frames this
// package constructs itself (presence, roomDestroyed, connected,
// newMessage). If the socket's buffer is full the frame is dropped rather
// than blocking the caller — a slow or stalled client must never
// back-pressure the registry or mailbox it belongs to.
func (s *socket) Send(frame []byte) {
	s.enqueue(outbound{frameType: websocket.TextMessage, data: frame})
}

// SendRaw queues a frame exactly as received from another member's socket,
// preserving whether it arrived as text or binary.
func (s *socket) SendRaw(frameType int, data []byte) {
	s.enqueue(outbound{frameType: frameType, data: data})
}

func (s *socket) enqueue(o outbound) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing {
		return
	}
	select {
	case s.out <- o:
	default:
		// Buffer full: drop. The sender already committed; a slow reader
		// loses this frame rather than stalling everyone else.
	}
}

// Close stops accepting new frames and closes the send channel, so
// writePump finishes writing out anything already queued before it closes
// the underlying connection. Safe to call multiple times.
func (s *socket) Close() {
	s.once.Do(func() {
		s.mu.Lock()
		s.closing = true
		s.mu.Unlock()
		close(s.out)
	})
}

func (s *socket) writePump() {
	for o := range s.out {
		_ = s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := s.conn.WriteMessage(o.frameType, o.data); err != nil {
			break
		}
	}
	_ = s.conn.Close()
}
