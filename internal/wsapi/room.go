package wsapi

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"relay/server/internal/chatroom"
	"relay/server/internal/protocol"
)

// RoomHandler upgrades and serves room sockets.
type RoomHandler struct {
	registry *chatroom.Registry
	upgrader websocket.Upgrader
}

// NewRoomHandler binds a room socket handler to registry.
func NewRoomHandler(registry *chatroom.Registry) *RoomHandler {
	return &RoomHandler{
		registry: registry,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(_ *http.Request) bool { return true },
		},
	}
}

// Serve upgrades the request and runs the room socket to completion. The
// roomId has already been validated as present by the dispatcher in
// dispatch.go.
func (h *RoomHandler) Serve(c echo.Context, roomId string) error {
	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}
	conn.SetReadLimit(readLimit)

	if h.registry.Burned(roomId) {
		sock := newSocket(conn)
		sock.Send(mustMarshal(protocol.RoomDestroyedFrame{Type: protocol.TypeRoomDestroyed, RoomId: roomId}))
		// Close drains the queued frame before the conn itself is closed.
		sock.Close()
		return nil
	}

	sock := newSocket(conn)
	h.registry.Join(roomId, sock)
	defer h.registry.Leave(roomId, sock)
	defer sock.Close()

	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			return nil
		}
		switch messageType {
		case websocket.BinaryMessage:
			h.registry.Forward(roomId, sock, chatroom.FrameBinary, data)
		case websocket.TextMessage:
			if h.registry.HandleText(roomId, data) {
				continue
			}
			h.registry.Forward(roomId, sock, chatroom.FrameText, data)
		default:
			slog.Debug("room socket: unhandled frame type", "room", roomId, "type", messageType)
		}
	}
}
