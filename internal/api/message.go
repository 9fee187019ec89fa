package api

import (
	"context"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"

	"github.com/miuchi-chat/miuchi/internal/httputil"
	"github.com/miuchi-chat/miuchi/internal/message"
	"github.com/miuchi-chat/miuchi/internal/room"
)

// MessageHandler serves the history read path: reconstructing a room's recent messages for a client that just
// connected, since the gateway offers no store-and-forward of its own (per the core's explicit non-goals, delivery
// is best-effort to currently-connected peers only).
type MessageHandler struct {
	rooms    room.Repository
	messages message.Repository
}

// NewMessageHandler constructs a MessageHandler bound to its collaborators.
func NewMessageHandler(rooms room.Repository, messages message.Repository) *MessageHandler {
	return &MessageHandler{rooms: rooms, messages: messages}
}

type messageView struct {
	ID        string `json:"id"`
	RoomID    string `json:"room_id"`
	AuthorID  string `json:"author_id"`
	Content   string `json:"content"`
	Kind      string `json:"kind"`
	CreatedAt string `json:"created_at"`
}

// History handles GET /api/v1/rooms/{room}/messages?before=<id>&limit=<n>. The room path parameter is resolved the
// same way the gateway resolves it: as a UUID first, falling back to the room's unique name.
func (h *MessageHandler) History(c fiber.Ctx) error {
	ref := c.Params("room")
	if ref == "" {
		return httputil.Fail(c, fiber.StatusBadRequest, httputil.ValidationError, "room is required")
	}

	rm, err := h.resolveRoom(c.Context(), ref)
	if err != nil {
		return httputil.Fail(c, fiber.StatusNotFound, httputil.NotFound, "room not found")
	}

	var before *uuid.UUID
	if raw := c.Query("before"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return httputil.Fail(c, fiber.StatusBadRequest, httputil.ValidationError, "before must be a valid message id")
		}
		before = &id
	}

	rawLimit, _ := strconv.Atoi(c.Query("limit"))
	limit := message.ClampLimit(rawLimit)

	msgs, err := h.messages.List(c.Context(), rm.ID, before, limit)
	if err != nil {
		return httputil.Fail(c, fiber.StatusInternalServerError, httputil.InternalError, "failed to list messages")
	}

	views := make([]messageView, 0, len(msgs))
	for _, msg := range msgs {
		views = append(views, messageView{
			ID:        msg.ID.String(),
			RoomID:    msg.RoomID.String(),
			AuthorID:  msg.AuthorID.String(),
			Content:   msg.Content,
			Kind:      string(msg.Kind),
			CreatedAt: msg.CreatedAt.UTC().Format(time.RFC3339Nano),
		})
	}
	return httputil.Success(c, views)
}

func (h *MessageHandler) resolveRoom(ctx context.Context, ref string) (*room.Room, error) {
	if id, err := uuid.Parse(ref); err == nil {
		return h.rooms.FindByID(ctx, id)
	}
	return h.rooms.FindByName(ctx, ref)
}
