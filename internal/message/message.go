package message

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Sentinel errors for the message package.
var (
	ErrNotFound       = errors.New("message not found")
	ErrContentTooLong = errors.New("message content exceeds the maximum length")
	ErrEmptyContent   = errors.New("message content must not be empty")
)

// MaxContentBytes is the maximum length of a message's content in UTF-8 bytes.
const MaxContentBytes = 4000

// Pagination defaults for the history read endpoint.
const (
	DefaultLimit = 50
	MaxLimit     = 100
)

// Kind identifies the shape of a message's content.
type Kind string

const (
	KindText   Kind = "text"
	KindImage  Kind = "image"
	KindFile   Kind = "file"
	KindSystem Kind = "system"
)

// ParseKind maps an optional wire-supplied kind string to a Kind, defaulting to KindText. An unrecognized value also
// falls back to KindText rather than rejecting the frame; the kind field only shapes client rendering.
func ParseKind(s string) Kind {
	switch Kind(s) {
	case KindImage, KindFile, KindSystem:
		return Kind(s)
	default:
		return KindText
	}
}

// Message is append-only: once persisted and broadcast it is never mutated by the core. The EditedAt field exists
// only so the schema matches what the external REST collaborator's (out of scope) edit capability would need; the
// gateway never sets it.
type Message struct {
	ID        uuid.UUID
	RoomID    uuid.UUID
	AuthorID  uuid.UUID
	Content   string
	Kind      Kind
	CreatedAt time.Time
	EditedAt  *time.Time
}

// CreateParams groups the inputs for creating a new message.
type CreateParams struct {
	RoomID   uuid.UUID
	AuthorID uuid.UUID
	Content  string
	Kind     Kind
}

// ValidateContent checks that content is non-empty and does not exceed MaxContentBytes UTF-8 bytes. It does not
// trim whitespace: a whitespace-only message is accepted and stored exactly as given, matching the reference
// implementation's bare is_empty()/len() checks.
func ValidateContent(content string) (string, error) {
	if content == "" {
		return "", ErrEmptyContent
	}
	if len(content) > MaxContentBytes {
		return "", ErrContentTooLong
	}
	return content, nil
}

// ClampLimit constrains a requested page size to [1, MaxLimit], defaulting to DefaultLimit when the input is zero or
// negative.
func ClampLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	if limit > MaxLimit {
		return MaxLimit
	}
	return limit
}

// Repository defines the data-access contract for messages. The gateway's dispatch path only ever calls Create; List
// exists for the REST collaborator's history endpoint.
type Repository interface {
	Create(ctx context.Context, params CreateParams) (*Message, error)
	List(ctx context.Context, roomID uuid.UUID, before *uuid.UUID, limit int) ([]Message, error)
}
