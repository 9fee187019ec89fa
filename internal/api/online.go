package api

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/miuchi-chat/miuchi/internal/gateway"
	"github.com/miuchi-chat/miuchi/internal/httputil"
)

// onlineCacheTTL bounds how stale a cached online-users snapshot may be. The registry itself is authoritative and
// in-memory; this cache only exists to absorb repeated polling from REST collaborators.
const onlineCacheTTL = 2 * time.Second

const onlineCacheKey = "miuchi:online_users"

// OnlineHandler exposes the Registry's online-users snapshot, the one read operation the core offers its external
// collaborators. A short-TTL Valkey cache sits in front of the snapshot so a polling collaborator doesn't force a
// full registry walk on every request.
type OnlineHandler struct {
	registry *gateway.Registry
	cache    *redis.Client
	log      zerolog.Logger
}

// NewOnlineHandler constructs an OnlineHandler. cache may be nil, in which case every request reads the registry
// directly.
func NewOnlineHandler(registry *gateway.Registry, cache *redis.Client, logger zerolog.Logger) *OnlineHandler {
	return &OnlineHandler{registry: registry, cache: cache, log: logger}
}

type onlineUserView struct {
	UserID      string   `json:"user_id"`
	DisplayName string   `json:"display_name"`
	Rooms       []string `json:"rooms"`
	ConnectedAt string   `json:"connected_at"`
}

// List handles GET /api/v1/online.
func (h *OnlineHandler) List(c fiber.Ctx) error {
	ctx := c.Context()

	if views, ok := h.readCache(ctx); ok {
		return httputil.Success(c, views)
	}

	snapshot := h.registry.OnlineUsersSnapshot()
	views := make([]onlineUserView, 0, len(snapshot))
	for _, u := range snapshot {
		views = append(views, onlineUserView{
			UserID:      u.Identity.String(),
			DisplayName: u.DisplayName,
			Rooms:       u.Rooms,
			ConnectedAt: u.ConnectedAt.UTC().Format(time.RFC3339Nano),
		})
	}

	h.writeCache(ctx, views)

	return httputil.Success(c, views)
}

func (h *OnlineHandler) readCache(ctx context.Context) ([]onlineUserView, bool) {
	if h.cache == nil {
		return nil, false
	}

	raw, err := h.cache.Get(ctx, onlineCacheKey).Bytes()
	if err != nil {
		if err != redis.Nil {
			h.log.Debug().Err(err).Msg("online users cache read failed, falling back to registry")
		}
		return nil, false
	}

	var views []onlineUserView
	if err := json.Unmarshal(raw, &views); err != nil {
		h.log.Warn().Err(err).Msg("online users cache held unparseable payload")
		return nil, false
	}
	return views, true
}

func (h *OnlineHandler) writeCache(ctx context.Context, views []onlineUserView) {
	if h.cache == nil {
		return
	}

	raw, err := json.Marshal(views)
	if err != nil {
		return
	}
	if err := h.cache.Set(ctx, onlineCacheKey, raw, onlineCacheTTL).Err(); err != nil {
		h.log.Debug().Err(err).Msg("online users cache write failed")
	}
}
