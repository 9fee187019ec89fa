package gateway

import (
	"context"
	"time"

	"github.com/fasthttp/websocket"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/miuchi-chat/miuchi/internal/auth"
	"github.com/miuchi-chat/miuchi/internal/config"
)

// Hub is the Upgrade Handler and connection registry owner: it authenticates incoming upgrades, enforces the
// per-user connection cap, and spawns a Connection Actor on admission.
type Hub struct {
	cfg        *config.Config
	verifier   *auth.Verifier
	registry   *Registry
	dispatcher *Dispatcher
	log        zerolog.Logger
}

// NewHub wires the Token Verifier, Registry, and Dispatcher into an Upgrade Handler.
func NewHub(cfg *config.Config, verifier *auth.Verifier, registry *Registry, dispatcher *Dispatcher, logger zerolog.Logger) *Hub {
	return &Hub{
		cfg:        cfg,
		verifier:   verifier,
		registry:   registry,
		dispatcher: dispatcher,
		log:        logger.With().Str("component", "gateway").Logger(),
	}
}

// ServeWebSocket runs the Upgrade Handler against an already-upgraded connection: read the credential from the
// designated query parameter, authenticate, admit, hand off. token is read by the caller before the protocol
// upgrade completes (it travels on the query string, which a completed upgrade can no longer report in some
// frameworks), so it is passed in rather than read from conn here.
func (h *Hub) ServeWebSocket(conn *websocket.Conn, token string) {
	if token == "" {
		// The handshake has already completed; there is no descriptive reason to send over the wire.
		_ = conn.Close()
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	u, err := h.verifier.Verify(ctx, token)
	cancel()
	if err != nil {
		_ = conn.Close()
		return
	}

	if h.registry.AtCapacity(u.ID) {
		msg := websocket.FormatCloseMessage(policyViolationCloseCode, "Connection limit exceeded")
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(h.cfg.GatewayWriteTimeout))
		_ = conn.Close()
		return
	}

	client := newClient(h, conn, u, h.log.With().Str("user_id", u.ID.String()).Logger())
	client.run()
}

// ClientCount exists for diagnostics and tests; it is not part of the component design's public API.
func (h *Hub) ClientCount() int {
	count := 0
	seen := map[uuid.UUID]struct{}{}
	h.registry.mu.RLock()
	defer h.registry.mu.RUnlock()
	for _, occupants := range h.registry.rooms {
		for id := range occupants {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			count++
		}
	}
	return count
}
