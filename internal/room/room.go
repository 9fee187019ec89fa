package room

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

// Sentinel errors for the room package.
var (
	ErrNotFound    = errors.New("room not found")
	ErrNameLength  = errors.New("room name must be between 1 and 100 characters")
	ErrTopicLength = errors.New("room topic must be 1024 characters or fewer")
)

// Room holds the fields a room is addressed and gated by. Rooms are created and mutated only by the external REST
// collaborator; the gateway only ever reads them.
type Room struct {
	ID        uuid.UUID
	Name      string
	Topic     string
	IsPublic  bool
	CreatedAt time.Time

	// members is populated by the repository alongside the row itself so IsMember can answer without a second
	// round trip on the hot join path.
	members map[uuid.UUID]struct{}
}

// NewWithMembers constructs a Room with a known membership set, used by repository implementations and tests.
func NewWithMembers(id uuid.UUID, name, topic string, public bool, createdAt time.Time, members []uuid.UUID) *Room {
	set := make(map[uuid.UUID]struct{}, len(members))
	for _, m := range members {
		set[m] = struct{}{}
	}
	return &Room{ID: id, Name: name, Topic: topic, IsPublic: public, CreatedAt: createdAt, members: set}
}

// IsMember reports whether the given user is in the room's explicit membership set, regardless of IsPublic. The
// gateway's join/send path consults it only for private rooms; a public room admits any identity.
func (r *Room) IsMember(userID uuid.UUID) bool {
	if r == nil {
		return false
	}
	_, ok := r.members[userID]
	return ok
}

// ValidateNameRequired trims and validates a room name that must be present, returning the trimmed result.
func ValidateNameRequired(name string) (string, error) {
	trimmed := strings.TrimSpace(name)
	if n := utf8.RuneCountInString(trimmed); n < 1 || n > 100 {
		return "", ErrNameLength
	}
	return trimmed, nil
}

// ValidateTopic checks that a topic is 1024 characters (runes) or fewer.
func ValidateTopic(topic string) error {
	if utf8.RuneCountInString(topic) > 1024 {
		return ErrTopicLength
	}
	return nil
}

// CreateParams groups the inputs for creating a new room via the REST collaborator surface.
type CreateParams struct {
	Name     string
	Topic    string
	IsPublic bool
}

// Repository defines the data-access contract the gateway and the REST collaborator need for rooms. FindByID and
// FindByName are the only calls on the gateway's dispatch path; Create and List exist only to give the REST
// collaborator (internal/api) something real to exercise.
type Repository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*Room, error)
	FindByName(ctx context.Context, name string) (*Room, error)
	Create(ctx context.Context, params CreateParams) (*Room, error)
	List(ctx context.Context) ([]Room, error)
}
