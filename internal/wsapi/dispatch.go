package wsapi

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// Handler dispatches a single websocket endpoint to either a room or chat
// socket, classified per spec.md §6: query parameter `roomId` selects a
// room socket, `chatFingerprint` selects a chat socket; chatFingerprint
// takes precedence if both are present; if neither is present the
// connection is closed immediately (here: rejected pre-upgrade with 400,
// the closest HTTP-level equivalent to "close immediately").
type Handler struct {
	rooms *RoomHandler
	chat  *ChatHandler
}

// New constructs the combined websocket dispatcher.
func New(rooms *RoomHandler, chat *ChatHandler) *Handler {
	return &Handler{rooms: rooms, chat: chat}
}

// Register binds the websocket route on an Echo router.
func (h *Handler) Register(e *echo.Echo) {
	e.GET("/ws", h.handle)
}

func (h *Handler) handle(c echo.Context) error {
	fp := strings.TrimSpace(c.QueryParam("chatFingerprint"))
	roomId := strings.TrimSpace(c.QueryParam("roomId"))

	switch {
	case fp != "":
		if err := h.chat.Serve(c, fp); err != nil {
			slog.Debug("chat socket serve error", "fp", fp, "err", err)
		}
		return nil
	case roomId != "":
		if err := h.rooms.Serve(c, roomId); err != nil {
			slog.Debug("room socket serve error", "room", roomId, "err", err)
		}
		return nil
	default:
		return c.NoContent(http.StatusBadRequest)
	}
}
