package wsapi

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"relay/server/internal/mailbox"
	"relay/server/internal/protocol"
)

// ChatHandler upgrades and serves chat sockets.
type ChatHandler struct {
	queue    *mailbox.Queue
	sockets  *LiveSocketMap
	upgrader websocket.Upgrader
}

// NewChatHandler binds a chat socket handler to queue, registering
// connections on sockets. sockets must be the same *LiveSocketMap passed to
// mailbox.New as its Pusher, so a live push finds the socket this handler
// just registered.
func NewChatHandler(queue *mailbox.Queue, sockets *LiveSocketMap) *ChatHandler {
	return &ChatHandler{
		queue:   queue,
		sockets: sockets,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(_ *http.Request) bool { return true },
		},
	}
}

// Serve upgrades the request and runs the chat socket to completion.
func (h *ChatHandler) Serve(c echo.Context, fp string) error {
	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}
	conn.SetReadLimit(readLimit)

	sock := newSocket(conn)
	h.sockets.Register(fp, sock)
	defer h.sockets.CloseIfCurrent(fp, sock)
	defer sock.Close()

	sock.Send(mustMarshal(protocol.ConnectedFrame{Type: protocol.TypeConnected, Fingerprint: fp}))

	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			return nil
		}
		if messageType != websocket.TextMessage {
			continue
		}
		var ack protocol.AckFrame
		if err := json.Unmarshal(data, &ack); err != nil || ack.Type != protocol.TypeAck {
			slog.Debug("chat socket: ignoring unrecognized frame", "fp", fp)
			continue
		}
		h.queue.Ack(fp, ack.MessageIds)
	}
}

func mustMarshal(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		// Only ever called with package-internal literal structs.
		panic(err)
	}
	return b
}
