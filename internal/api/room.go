package api

import (
	"github.com/gofiber/fiber/v3"

	"github.com/miuchi-chat/miuchi/internal/httputil"
	"github.com/miuchi-chat/miuchi/internal/room"
)

// RoomHandler serves the read-only room listing the REST collaborator surface exposes. Room creation and membership
// management belong to the external collaborator and are out of scope here; this handler exists to exercise
// room.Repository.List and give clients something to resolve a room name against before opening the gateway.
type RoomHandler struct {
	rooms room.Repository
}

// NewRoomHandler constructs a RoomHandler bound to rooms.
func NewRoomHandler(rooms room.Repository) *RoomHandler {
	return &RoomHandler{rooms: rooms}
}

type roomView struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Topic    string `json:"topic"`
	IsPublic bool   `json:"is_public"`
}

// List handles GET /api/v1/rooms, returning every room regardless of the caller's membership. Filtering a private
// room's visibility to non-members is the external collaborator's job; this surface is read-only and unauthenticated
// by design.
func (h *RoomHandler) List(c fiber.Ctx) error {
	rooms, err := h.rooms.List(c.Context())
	if err != nil {
		return httputil.Fail(c, fiber.StatusInternalServerError, httputil.InternalError, "failed to list rooms")
	}

	views := make([]roomView, 0, len(rooms))
	for _, rm := range rooms {
		views = append(views, roomView{
			ID:       rm.ID.String(),
			Name:     rm.Name,
			Topic:    rm.Topic,
			IsPublic: rm.IsPublic,
		})
	}
	return httputil.Success(c, views)
}
