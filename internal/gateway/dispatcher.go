package gateway

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/miuchi-chat/miuchi/internal/message"
	"github.com/miuchi-chat/miuchi/internal/room"
)

// persistenceTimeout bounds the Dispatcher's calls to the persistence and search gateways. These run off the
// registry lock, but must not block a connection's inbound loop indefinitely.
const persistenceTimeout = 5 * time.Second

// IndexDocument is the document the Dispatcher hands the Search Indexer for every persisted message.
type IndexDocument struct {
	ID         string
	RoomID     string
	RoomName   string
	AuthorID   string
	AuthorName string
	Content    string
	CreatedAt  int64 // epoch seconds
	Kind       string
}

// Indexer receives one document per persisted message. It is never on the broadcast critical path's correctness:
// failures are logged and swallowed by the Dispatcher.
type Indexer interface {
	IndexMessage(ctx context.Context, doc IndexDocument) error
}

// Dispatcher is pure, reentrant logic: it interprets a decoded inbound frame against the current identity and
// registry, producing registry mutations, persistence calls, search-index calls, and outbound sends. It holds no
// per-connection state of its own.
type Dispatcher struct {
	registry *Registry
	rooms    room.Repository
	messages message.Repository
	indexer  Indexer
	log      zerolog.Logger
}

// NewDispatcher constructs a Dispatcher bound to its collaborators.
func NewDispatcher(registry *Registry, rooms room.Repository, messages message.Repository, indexer Indexer, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{registry: registry, rooms: rooms, messages: messages, indexer: indexer, log: logger}
}

// Dispatch interprets frame on behalf of c. No exceptions escape: every branch that can fail replies an Error frame
// to the sender and returns rather than panicking, so a single malformed frame can never take down the Connection
// Actor's cleanup guarantee.
func (d *Dispatcher) Dispatch(c *Client, frame *inboundFrame) {
	switch frame.Type {
	case TypeJoinRoom:
		d.handleJoinRoom(c, frame.JoinRoom)
	case TypeSendMessage:
		d.handleSendMessage(c, frame.Send)
	case TypeLeaveRoom:
		d.handleLeaveRoom(c, frame.LeaveRoom)
	case TypePing:
		d.handlePing(c, frame.Ping)
	case TypeWebRTCOffer, TypeWebRTCAnswer, TypeWebRTCIceCandidate:
		d.handleWebRTCRelay(c, frame.Type, frame.WebRTC)
	default:
		d.log.Debug().Str("type", frame.Type).Msg("ignoring unrecognised frame variant")
	}
}

func (d *Dispatcher) replyError(c *Client, message string) {
	c.enqueueJSON(newErrorFrame(message, nil))
}

func (d *Dispatcher) replyValidationError(c *Client, message string) {
	code := CodeValidation
	c.enqueueJSON(newErrorFrame(message, &code))
}

// resolveRoom looks up a room by id (if the string parses as a UUID) or by name otherwise, per JoinRoom/SendMessage's
// shared resolution rule.
func (d *Dispatcher) resolveRoom(ctx context.Context, ref string) (*room.Room, error) {
	if id, err := uuid.Parse(ref); err == nil {
		return d.rooms.FindByID(ctx, id)
	}
	return d.rooms.FindByName(ctx, ref)
}

func (d *Dispatcher) handleJoinRoom(c *Client, p *joinRoomPayload) {
	name, err := room.ValidateNameRequired(p.Room)
	if err != nil {
		d.replyValidationError(c, err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), persistenceTimeout)
	defer cancel()

	rm, err := d.resolveRoom(ctx, name)
	if err != nil {
		d.replyError(c, "Room not found")
		return
	}
	if !rm.IsPublic && !rm.IsMember(c.identity) {
		d.replyError(c, "You are not a member of this private room")
		return
	}

	// A repeat JoinRoom from a connection already in the room re-acknowledges the sender only; the other occupants
	// are not sent a second UserJoined.
	alreadyJoined := false
	for _, occupant := range d.registry.Occupants(rm.Name) {
		if occupant == c {
			alreadyJoined = true
			break
		}
	}

	d.registry.Join(rm.Name, c.identity, c)

	c.enqueueJSON(newRoomJoinedFrame(rm.Name, c.identity.String(), c.displayName))
	if alreadyJoined {
		return
	}

	userJoined, err := newUserJoinedFrame(rm.Name, c.identity.String(), c.displayName)
	if err != nil {
		d.log.Error().Err(err).Msg("failed to serialize user_joined frame")
		return
	}
	d.registry.Broadcast(rm.Name, userJoined, &c.identity)
}

func (d *Dispatcher) handleSendMessage(c *Client, p *sendMessagePayload) {
	content, err := message.ValidateContent(p.Content)
	if err != nil {
		d.replyValidationError(c, err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), persistenceTimeout)
	defer cancel()

	rm, err := d.resolveRoom(ctx, p.Room)
	if err != nil {
		d.replyError(c, "Room not found")
		return
	}
	if !rm.IsPublic && !rm.IsMember(c.identity) {
		d.replyError(c, "You are not a member of this private room")
		return
	}

	kindStr := ""
	if p.MessageType != nil {
		kindStr = *p.MessageType
	}
	kind := message.ParseKind(kindStr)

	msg, err := d.messages.Create(ctx, message.CreateParams{
		RoomID:   rm.ID,
		AuthorID: c.identity,
		Content:  content,
		Kind:     kind,
	})
	if err != nil {
		d.replyError(c, "failed to deliver message")
		return
	}

	d.indexMessage(msg, rm, c.displayName)

	out, err := newMessageFrame(
		msg.ID.String(), rm.Name, c.identity.String(), c.displayName, msg.Content, string(msg.Kind),
		msg.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		d.log.Error().Err(err).Msg("failed to serialize message frame")
		return
	}
	d.registry.Broadcast(rm.Name, out, nil)
}

// indexMessage enqueues an index-add for msg. Failures are logged and swallowed: the message has already been
// persisted and broadcast regardless of whether this succeeds.
func (d *Dispatcher) indexMessage(msg *message.Message, rm *room.Room, authorName string) {
	if d.indexer == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), persistenceTimeout)
	defer cancel()

	doc := IndexDocument{
		ID:         msg.ID.String(),
		RoomID:     rm.ID.String(),
		RoomName:   rm.Name,
		AuthorID:   msg.AuthorID.String(),
		AuthorName: authorName,
		Content:    msg.Content,
		CreatedAt:  msg.CreatedAt.Unix(),
		Kind:       string(msg.Kind),
	}
	if err := d.indexer.IndexMessage(ctx, doc); err != nil {
		d.log.Warn().Err(err).Str("message_id", doc.ID).Msg("search index failed, message delivery proceeds")
	}
}

func (d *Dispatcher) handleLeaveRoom(c *Client, p *leaveRoomPayload) {
	name, err := room.ValidateNameRequired(p.Room)
	if err != nil {
		d.replyValidationError(c, err.Error())
		return
	}

	// Resolve the same way JoinRoom/SendMessage do, since the registry is keyed by the room's canonical name and
	// the caller may have referenced the room by id.
	ctx, cancel := context.WithTimeout(context.Background(), persistenceTimeout)
	rm, resolveErr := d.resolveRoom(ctx, name)
	cancel()
	if resolveErr == nil {
		name = rm.Name
	}

	remaining := d.registry.Leave(name, c.identity)
	if remaining == nil {
		return
	}

	userLeft, err := newUserLeftFrame(name, c.identity.String(), c.displayName)
	if err != nil {
		d.log.Error().Err(err).Msg("failed to serialize user_left frame")
		return
	}
	for _, occupant := range remaining {
		occupant.enqueue(userLeft)
	}
}

func (d *Dispatcher) handlePing(c *Client, p *pingPayload) {
	var ts *uint64
	if p != nil {
		ts = p.Timestamp
	}
	c.enqueueJSON(newPongFrame(ts))
}

// handleWebRTCRelay forwards a signaling frame to its target, rewriting to_user_id to the sender's own identity so
// the recipient learns who the signal came from. It does not verify that both parties share a room.
func (d *Dispatcher) handleWebRTCRelay(c *Client, frameType string, p *webRTCPayload) {
	target, err := uuid.Parse(p.ToUserID)
	if err != nil {
		d.replyValidationError(c, "invalid target user id")
		return
	}

	recipient := d.registry.FindByIdentity(target)
	if recipient == nil {
		d.replyError(c, "Target user not found or offline")
		return
	}

	rewritten, err := rewriteWebRTCToUserID(frameType, p.Payload, c.identity.String())
	if err != nil {
		d.log.Error().Err(err).Msg("failed to rewrite webrtc relay frame")
		return
	}
	recipient.enqueue(rewritten)
}
