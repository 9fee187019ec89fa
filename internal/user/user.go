package user

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when an identity has no corresponding row, either because it never existed or because the
// account was deleted after the bearer assertion that named it was issued.
var ErrNotFound = errors.New("user not found")

// User is the identity referenced throughout the gateway: every Client (internal/gateway) is bound to exactly one of
// these for the lifetime of a connection.
type User struct {
	ID          uuid.UUID
	DisplayName string
	Email       *string
	AvatarURL   *string
	CreatedAt   time.Time
}

// Repository is the read-only view the gateway needs onto the user store. Account creation, profile edits and
// credential management belong to the external REST collaborator and are out of scope here.
type Repository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*User, error)
}
