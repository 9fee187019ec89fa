package gateway

import (
	"sync"
	"time"

	"github.com/fasthttp/websocket"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/miuchi-chat/miuchi/internal/user"
)

// Client is the Connection Actor: one per live connection. It owns three cooperating goroutines (inbound decoder,
// outbound writer, heartbeat) sharing a bounded outbound queue and a mutex-guarded last-activity instant. Do not
// merge the inbound and outbound loops into one: write concurrency with heartbeat is required to bound latency on
// Pings under inbound backpressure.
type Client struct {
	hub      *Hub
	conn     *websocket.Conn
	log      zerolog.Logger
	identity uuid.UUID

	displayName   string
	establishedAt time.Time

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once

	rateLimit *permitPool

	mu          sync.Mutex
	lastActive  time.Time
	joinedRooms map[string]struct{}

	messageCount uint64
}

// newClient sizes the outbound queue and the rate-limit permit pool from hub.cfg (GatewayOutboundQueueSize,
// RateLimitWSPermits) rather than hardcoding them, so an operator's environment overrides actually take effect.
func newClient(hub *Hub, conn *websocket.Conn, u *user.User, logger zerolog.Logger) *Client {
	now := time.Now()
	return &Client{
		hub:           hub,
		conn:          conn,
		log:           logger,
		identity:      u.ID,
		displayName:   u.DisplayName,
		establishedAt: now,
		send:          make(chan []byte, hub.cfg.GatewayOutboundQueueSize),
		done:          make(chan struct{}),
		rateLimit:     newPermitPool(hub.cfg.RateLimitWSPermits),
		lastActive:    now,
		joinedRooms:   make(map[string]struct{}),
	}
}

// addRoom records room in the Client's own joined-room set. Called by Registry.Join while its lock is held.
func (c *Client) addRoom(room string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.joinedRooms[room] = struct{}{}
}

// rooms returns a snapshot of every room name this Client has joined. Registry.Leave does not remove entries from
// this set, so it may still list rooms the Client has since left; RemoveFromAll checks the registry before removing.
func (c *Client) rooms() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.joinedRooms))
	for r := range c.joinedRooms {
		out = append(out, r)
	}
	return out
}

func (c *Client) touchActivity() {
	c.mu.Lock()
	c.lastActive = time.Now()
	c.mu.Unlock()
}

func (c *Client) idleSince() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return time.Since(c.lastActive)
}

// closeSend signals the outbound writer and heartbeat to stop. Safe to call from multiple goroutines; only the
// first call has any effect.
func (c *Client) closeSend() {
	c.closeOnce.Do(func() { close(c.done) })
}

// enqueue places msg on the outbound queue. If the connection is already shutting down the frame is silently
// dropped. If the queue is full, the delivery is recorded as dropped for this recipient and the connection is
// torn down — a full queue under sustained load is treated as a dead peer, not retried. Closing done here only
// signals outboundWriter to drain and close; the raw conn is never touched outside that one goroutine, so a
// queued frame always has a chance to be written before the socket goes away.
func (c *Client) enqueue(msg []byte) {
	select {
	case <-c.done:
		return
	default:
	}

	select {
	case c.send <- msg:
	case <-c.done:
	default:
		c.log.Warn().Str("user_id", c.identity.String()).Msg("outbound queue full, dropping connection")
		c.closeSend()
	}
}

// enqueueJSON takes the result of a frame constructor and enqueues the frame, logging (and swallowing) a
// serialization failure instead of propagating it — an Internal error frame that itself fails to serialize has
// nowhere to go.
func (c *Client) enqueueJSON(frame []byte, err error) {
	if err != nil {
		c.log.Error().Err(err).Msg("failed to serialize outbound frame")
		return
	}
	c.enqueue(frame)
}

// closeWithCode completes the WebSocket close handshake with the given transport close code and reason, then closes
// the underlying connection. Nothing in the package calls it: the connection-cap rejection in Hub.ServeWebSocket
// writes its close frame directly, since no Client exists yet at that point.
func (c *Client) closeWithCode(code int, reason string) {
	msg := websocket.FormatCloseMessage(code, reason)
	_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(c.hub.cfg.GatewayWriteTimeout))
	_ = c.conn.Close()
}

// run starts the Connection Actor's three cooperating goroutines and blocks until the inbound decoder returns,
// which is the one event guaranteed to happen on every termination path (client close frame, transport error,
// heartbeat timeout, or an outbound/heartbeat failure that calls closeSend). On return, cleanup always runs.
func (c *Client) run() {
	defer c.cleanup()

	go c.outboundWriter()
	go c.heartbeat()

	c.inboundDecoder()
}

func (c *Client) cleanup() {
	c.closeSend()
	_ = c.conn.Close()
	c.hub.registry.RemoveFromAll(c.identity, c)
}

// inboundDecoder loops reading the peer's frames, enforcing size and rate limits, decoding JSON, and invoking the
// Dispatcher. It terminates the connection only on a close frame or a transport error (which includes a frame beyond
// the read limit set below); a binary, oversize, rate-limited or malformed frame gets a reply and the loop continues.
func (c *Client) inboundDecoder() {
	// The read limit is set generously above the configured frame cap: exceeding it closes the connection outright
	// (the underlying library's behavior), whereas exceeding the cap itself should only drop the frame and reply
	// Error{code=1009}. The explicit length check below is what enforces the spec's actual oversize behavior.
	c.conn.SetReadLimit(int64(c.hub.cfg.GatewayMaxFrameBytes) * 4)

	for {
		msgType, raw, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		c.touchActivity()

		if msgType == websocket.BinaryMessage {
			code := CodeProtocol
			c.enqueueJSON(newErrorFrame("binary frames are not supported", &code))
			continue
		}

		if len(raw) > c.hub.cfg.GatewayMaxFrameBytes {
			code := CodeOversize
			c.enqueueJSON(newErrorFrame("frame exceeds maximum size", &code))
			continue
		}

		if !c.rateLimit.acquire() {
			c.enqueueJSON(newRateLimitedFrame(1))
			continue
		}

		c.messageCount++

		frame, err := decodeInbound(raw)
		if err != nil {
			code := CodeProtocol
			c.enqueueJSON(newErrorFrame("malformed frame", &code))
			continue
		}

		c.hub.dispatcher.Dispatch(c, frame)
	}
}

// outboundWriter loops receiving frames from the queue and writing them to the connection. It exits when done is
// closed, first draining any frames already buffered so the peer receives them before the socket closes. This is
// the only goroutine that ever calls conn.Close(): every other terminal path (heartbeat timeout, full queue, a
// write failure) only signals done and leaves closing the raw connection to the drain below, so a queued Error
// frame is never raced against Close on the same *websocket.Conn.
func (c *Client) outboundWriter() {
	for {
		select {
		case msg := <-c.send:
			if !c.writeFrame(msg) {
				c.closeSend()
				_ = c.conn.Close()
				return
			}
		case <-c.done:
			c.drainAndClose()
			return
		}
	}
}

// drainAndClose flushes any frames already buffered on send, then closes the connection. Called only after done
// has been closed, so no further producer can add to send once the drain's final default case is reached.
func (c *Client) drainAndClose() {
	defer func() { _ = c.conn.Close() }()
	for {
		select {
		case msg := <-c.send:
			if !c.writeFrame(msg) {
				return
			}
		default:
			return
		}
	}
}

// writeFrame serializes nothing (msg is already serialized JSON) but enforces the outbound size guard and write
// deadline. Oversize server-produced frames are dropped with a warning rather than sent; any write error or timeout
// is treated as terminal for the connection.
func (c *Client) writeFrame(msg []byte) bool {
	if len(msg) > c.hub.cfg.GatewayMaxFrameBytes {
		c.log.Warn().Int("size", len(msg)).Msg("dropping oversize outbound frame")
		return true
	}

	_ = c.conn.SetWriteDeadline(time.Now().Add(c.hub.cfg.GatewayWriteTimeout))
	if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
		c.log.Debug().Err(err).Msg("outbound write failed")
		return false
	}
	return true
}

// heartbeat wakes on GatewayHeartbeatInterval. If the shared last-activity instant is older than
// GatewaySilenceTimeout, it enqueues a timeout Error and signals closeSend. It never touches the raw conn itself:
// outboundWriter owns draining the queued Error frame onto the wire and only then closing the connection, so the
// peer is never torn down before it has had a chance to read the timeout frame.
func (c *Client) heartbeat() {
	ticker := time.NewTicker(c.hub.cfg.GatewayHeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			if c.idleSince() > c.hub.cfg.GatewaySilenceTimeout {
				code := CodeTimeout
				c.enqueueJSON(newErrorFrame("Connection timed out", &code))
				c.closeSend()
				return
			}

			ts := uint64(time.Now().UnixMilli())
			c.enqueueJSON(pingFrame(ts))
		}
	}
}

func pingFrame(ts uint64) ([]byte, error) {
	return marshalFrame(struct {
		Type      string `json:"type"`
		Timestamp uint64 `json:"timestamp"`
	}{"ping", ts})
}
