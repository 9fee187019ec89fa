package gateway

import "errors"

// Application-layer error codes carried in an Error frame's code field. These are distinct from WebSocket transport
// close codes: most terminations here close the underlying connection without sending a close frame, and report
// *why* to the peer, if at all, via this code on the preceding Error frame.
const (
	CodeTimeout          = 1001
	CodeValidation       = 1002
	CodeProtocol         = 1003
	CodeOversize         = 1009
	CodeInternalSerialize = 1011
)

// policyViolationCloseCode is the one case where the wire-level close code itself is significant: the connection cap
// is enforced before any Connection Actor exists to send an Error frame, so the reason travels on the close frame.
const policyViolationCloseCode = 1008

// Sentinel errors for the gateway's decode and dispatch paths. Each is mapped to one of the Code* constants above
// where it is surfaced to a peer as an Error frame.
var (
	ErrProtocolDecode    = errors.New("malformed frame")
	ErrUnknownVariant    = errors.New("unknown or forbidden frame variant")
	ErrOversizeFrame     = errors.New("inbound frame exceeds the maximum size")
	ErrInternalSerialize = errors.New("failed to serialize outbound frame")
	ErrConnectionTimeout = errors.New("connection timed out")
)
