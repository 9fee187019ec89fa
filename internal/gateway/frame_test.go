package gateway

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestDecodeInboundJoinRoom(t *testing.T) {
	t.Parallel()

	f, err := decodeInbound([]byte(`{"type":"join_room","room":"general"}`))
	if err != nil {
		t.Fatalf("decodeInbound: %v", err)
	}
	if f.Type != TypeJoinRoom || f.JoinRoom == nil || f.JoinRoom.Room != "general" {
		t.Errorf("decoded = %+v, want join_room/general", f)
	}
}

func TestDecodeInboundUnknownVariant(t *testing.T) {
	t.Parallel()

	_, err := decodeInbound([]byte(`{"type":"bogus"}`))
	if !errors.Is(err, ErrUnknownVariant) {
		t.Errorf("error = %v, want ErrUnknownVariant", err)
	}
}

func TestDecodeInboundMalformedJSON(t *testing.T) {
	t.Parallel()

	_, err := decodeInbound([]byte(`{not json`))
	if !errors.Is(err, ErrProtocolDecode) {
		t.Errorf("error = %v, want ErrProtocolDecode", err)
	}
}

func TestDecodeInboundIgnoresUnknownFields(t *testing.T) {
	t.Parallel()

	f, err := decodeInbound([]byte(`{"type":"ping","timestamp":42,"extra_field_from_newer_client":true}`))
	if err != nil {
		t.Fatalf("decodeInbound: %v", err)
	}
	if f.Ping == nil || f.Ping.Timestamp == nil || *f.Ping.Timestamp != 42 {
		t.Errorf("decoded ping = %+v, want timestamp 42", f.Ping)
	}
}

func TestPongEchoesTimestampVerbatim(t *testing.T) {
	t.Parallel()

	ts := uint64(123456789)
	raw, err := newPongFrame(&ts)
	if err != nil {
		t.Fatalf("newPongFrame: %v", err)
	}

	var decoded struct {
		Type      string `json:"type"`
		Timestamp uint64 `json:"timestamp"`
	}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded.Type != TypePong || decoded.Timestamp != ts {
		t.Errorf("decoded = %+v, want pong/%d", decoded, ts)
	}
}

func TestRewriteWebRTCToUserID(t *testing.T) {
	t.Parallel()

	original := []byte(`{"type":"webrtc_offer","room":"call-1","to_user_id":"bob-id","offer":{"sdp":"v=0"}}`)
	out, err := rewriteWebRTCToUserID(TypeWebRTCOffer, original, "alice-id")
	if err != nil {
		t.Fatalf("rewriteWebRTCToUserID: %v", err)
	}

	var decoded struct {
		Type     string                 `json:"type"`
		Room     string                 `json:"room"`
		ToUserID string                 `json:"to_user_id"`
		Offer    map[string]interface{} `json:"offer"`
	}
	if err := json.Unmarshal(out, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded.ToUserID != "alice-id" {
		t.Errorf("to_user_id = %q, want rewritten to sender", decoded.ToUserID)
	}
	if decoded.Room != "call-1" {
		t.Errorf("room = %q, want preserved", decoded.Room)
	}
	if decoded.Offer["sdp"] != "v=0" {
		t.Errorf("offer payload not preserved: %+v", decoded.Offer)
	}
}

func TestDecodeInboundOversizeIsCallerResponsibility(t *testing.T) {
	t.Parallel()

	// decodeInbound itself has no size opinion; the inbound decoder enforces the 64 KiB cap before calling it. This
	// test only documents that a well-formed oversize-content SendMessage still decodes cleanly.
	big := make([]byte, 70000)
	for i := range big {
		big[i] = 'a'
	}
	raw := append([]byte(`{"type":"send_message","room":"general","content":"`), append(big, []byte(`"}`)...)...)

	f, err := decodeInbound(raw)
	if err != nil {
		t.Fatalf("decodeInbound: %v", err)
	}
	if f.Send == nil || len(f.Send.Content) != len(big) {
		t.Error("expected content to decode in full")
	}
}
