package gateway

import (
	"encoding/json"
	"fmt"
)

// Wire frame type discriminators, lowercase snake_case per the wire format.
const (
	TypeJoinRoom           = "join_room"
	TypeSendMessage        = "send_message"
	TypeLeaveRoom          = "leave_room"
	TypePing               = "ping"
	TypeWebRTCOffer        = "webrtc_offer"
	TypeWebRTCAnswer       = "webrtc_answer"
	TypeWebRTCIceCandidate = "webrtc_ice_candidate"

	TypeRoomJoined   = "room_joined"
	TypeMessage      = "message"
	TypeUserJoined   = "user_joined"
	TypeUserLeft     = "user_left"
	TypePong         = "pong"
	TypeError        = "error"
	TypeAuthRequired = "auth_required"
	TypeRateLimited  = "rate_limited"
)

// envelope is the minimal shape every inbound frame is peeled to first: just enough to read the discriminator before
// unmarshaling the variant-specific payload.
type envelope struct {
	Type string `json:"type"`
}

// inboundFrame is the decoded form of any client→server variant. Exactly one of the typed fields is populated,
// selected by Type; unrecognised Type values are a protocol error, and unknown JSON fields within a known variant
// are ignored for forward compatibility (the default behavior of encoding/json).
type inboundFrame struct {
	Type string

	JoinRoom  *joinRoomPayload
	Send      *sendMessagePayload
	LeaveRoom *leaveRoomPayload
	Ping      *pingPayload
	WebRTC    *webRTCPayload
}

type joinRoomPayload struct {
	Room string `json:"room"`
}

type sendMessagePayload struct {
	Room        string  `json:"room"`
	Content     string  `json:"content"`
	MessageType *string `json:"message_type,omitempty"`
}

type leaveRoomPayload struct {
	Room string `json:"room"`
}

type pingPayload struct {
	Timestamp *uint64 `json:"timestamp,omitempty"`
}

// webRTCPayload backs all three signaling variants; the opaque offer/answer/candidate payload is carried verbatim
// under Payload and re-serialized unexamined when relayed.
type webRTCPayload struct {
	Room     string          `json:"room"`
	ToUserID string          `json:"to_user_id"`
	Payload  json.RawMessage `json:"-"`
}

// decodeInbound parses a text frame into its tagged-union inboundFrame. Malformed JSON is reported via
// ErrProtocolDecode and an unknown type via ErrUnknownVariant; the caller maps either to Error{code=1003}.
func decodeInbound(raw []byte) (*inboundFrame, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProtocolDecode, err)
	}

	switch env.Type {
	case TypeJoinRoom:
		var p joinRoomPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrProtocolDecode, err)
		}
		return &inboundFrame{Type: env.Type, JoinRoom: &p}, nil
	case TypeSendMessage:
		var p sendMessagePayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrProtocolDecode, err)
		}
		return &inboundFrame{Type: env.Type, Send: &p}, nil
	case TypeLeaveRoom:
		var p leaveRoomPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrProtocolDecode, err)
		}
		return &inboundFrame{Type: env.Type, LeaveRoom: &p}, nil
	case TypePing:
		var p pingPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrProtocolDecode, err)
		}
		return &inboundFrame{Type: env.Type, Ping: &p}, nil
	case TypeWebRTCOffer, TypeWebRTCAnswer, TypeWebRTCIceCandidate:
		var p webRTCPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrProtocolDecode, err)
		}
		// Carry the full original frame so the relay can rewrite just to_user_id and forward the rest (offer/
		// answer/candidate) unexamined.
		p.Payload = append(json.RawMessage(nil), raw...)
		return &inboundFrame{Type: env.Type, WebRTC: &p}, nil
	default:
		return nil, fmt.Errorf("%w: unknown frame type %q", ErrUnknownVariant, env.Type)
	}
}

// Outbound frame constructors. Each returns the serialized JSON frame ready to enqueue.

func marshalFrame(v any) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInternalSerialize, err)
	}
	return b, nil
}

func newRoomJoinedFrame(room, userID, username string) ([]byte, error) {
	return marshalFrame(struct {
		Type     string `json:"type"`
		Room     string `json:"room"`
		UserID   string `json:"user_id"`
		Username string `json:"username"`
	}{TypeRoomJoined, room, userID, username})
}

func newUserJoinedFrame(room, userID, username string) ([]byte, error) {
	return marshalFrame(struct {
		Type     string `json:"type"`
		Room     string `json:"room"`
		UserID   string `json:"user_id"`
		Username string `json:"username"`
	}{TypeUserJoined, room, userID, username})
}

func newUserLeftFrame(room, userID, username string) ([]byte, error) {
	return marshalFrame(struct {
		Type     string `json:"type"`
		Room     string `json:"room"`
		UserID   string `json:"user_id"`
		Username string `json:"username"`
	}{TypeUserLeft, room, userID, username})
}

func newMessageFrame(id, room, userID, username, content, messageType string, timestamp string) ([]byte, error) {
	return marshalFrame(struct {
		Type        string `json:"type"`
		ID          string `json:"id"`
		Room        string `json:"room"`
		UserID      string `json:"user_id"`
		Username    string `json:"username"`
		Content     string `json:"content"`
		MessageType string `json:"message_type"`
		Timestamp   string `json:"timestamp"`
	}{TypeMessage, id, room, userID, username, content, messageType, timestamp})
}

func newPongFrame(timestamp *uint64) ([]byte, error) {
	return marshalFrame(struct {
		Type      string  `json:"type"`
		Timestamp *uint64 `json:"timestamp,omitempty"`
	}{TypePong, timestamp})
}

func newErrorFrame(message string, code *int) ([]byte, error) {
	return marshalFrame(struct {
		Type    string `json:"type"`
		Message string `json:"message"`
		Code    *int   `json:"code,omitempty"`
	}{TypeError, message, code})
}

func newAuthRequiredFrame() ([]byte, error) {
	return marshalFrame(struct {
		Type string `json:"type"`
	}{TypeAuthRequired})
}

func newRateLimitedFrame(retryAfterSeconds int) ([]byte, error) {
	return marshalFrame(struct {
		Type       string `json:"type"`
		RetryAfter int    `json:"retry_after"`
	}{TypeRateLimited, retryAfterSeconds})
}

// rewriteWebRTCToUserID re-serializes a relayed signaling frame with to_user_id replaced by the sender's identity,
// leaving the frame's type and opaque offer/answer/candidate payload untouched.
func rewriteWebRTCToUserID(frameType string, raw json.RawMessage, senderID string) ([]byte, error) {
	var generic map[string]json.RawMessage
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInternalSerialize, err)
	}
	rewritten, err := json.Marshal(senderID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInternalSerialize, err)
	}
	generic["to_user_id"] = rewritten
	generic["type"] = mustMarshalString(frameType)

	out, err := json.Marshal(generic)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInternalSerialize, err)
	}
	return out, nil
}

func mustMarshalString(s string) json.RawMessage {
	b, _ := json.Marshal(s)
	return b
}
