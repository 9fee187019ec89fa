package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/miuchi-chat/miuchi/internal/user"
)

type fakeUsers struct {
	byID map[uuid.UUID]*user.User
}

func (f *fakeUsers) GetByID(_ context.Context, id uuid.UUID) (*user.User, error) {
	u, ok := f.byID[id]
	if !ok {
		return nil, user.ErrNotFound
	}
	return u, nil
}

const testSecret = "test-secret-at-least-32-bytes-long!"

func TestVerifier_Verify_Success(t *testing.T) {
	t.Parallel()

	id := uuid.New()
	users := &fakeUsers{byID: map[uuid.UUID]*user.User{id: {ID: id, DisplayName: "nyx"}}}
	v := NewVerifier(testSecret, users)

	token, err := NewAssertion(id, testSecret, time.Hour)
	if err != nil {
		t.Fatalf("NewAssertion: %v", err)
	}

	got, err := v.Verify(context.Background(), token)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if got.ID != id {
		t.Errorf("ID = %v, want %v", got.ID, id)
	}
}

func TestVerifier_Verify_WrongAudience(t *testing.T) {
	t.Parallel()

	id := uuid.New()
	users := &fakeUsers{byID: map[uuid.UUID]*user.User{id: {ID: id}}}
	v := NewVerifier(testSecret, users)

	claims := Claims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:   id.String(),
		Audience:  jwt.ClaimStrings{"someone-else.chat"},
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	if _, err := v.Verify(context.Background(), token); err == nil {
		t.Fatal("expected error for wrong audience")
	}
}

func TestVerifier_Verify_Expired(t *testing.T) {
	t.Parallel()

	id := uuid.New()
	users := &fakeUsers{byID: map[uuid.UUID]*user.User{id: {ID: id}}}
	v := NewVerifier(testSecret, users)

	token, err := NewAssertion(id, testSecret, -time.Hour)
	if err != nil {
		t.Fatalf("NewAssertion: %v", err)
	}

	if _, err := v.Verify(context.Background(), token); err == nil {
		t.Fatal("expected error for expired token")
	}
}

func TestVerifier_Verify_BadSignature(t *testing.T) {
	t.Parallel()

	id := uuid.New()
	users := &fakeUsers{byID: map[uuid.UUID]*user.User{id: {ID: id}}}
	v := NewVerifier(testSecret, users)

	token, err := NewAssertion(id, "a-completely-different-secret-value", time.Hour)
	if err != nil {
		t.Fatalf("NewAssertion: %v", err)
	}

	if _, err := v.Verify(context.Background(), token); err == nil {
		t.Fatal("expected error for bad signature")
	}
}

func TestVerifier_Verify_UnknownIdentity(t *testing.T) {
	t.Parallel()

	users := &fakeUsers{byID: map[uuid.UUID]*user.User{}}
	v := NewVerifier(testSecret, users)

	token, err := NewAssertion(uuid.New(), testSecret, time.Hour)
	if err != nil {
		t.Fatalf("NewAssertion: %v", err)
	}

	_, err = v.Verify(context.Background(), token)
	if !errors.Is(err, ErrUnknownIdentity) {
		t.Errorf("error = %v, want ErrUnknownIdentity", err)
	}
}

func TestVerifier_Verify_MalformedIdentity(t *testing.T) {
	t.Parallel()

	users := &fakeUsers{byID: map[uuid.UUID]*user.User{}}
	v := NewVerifier(testSecret, users)

	claims := Claims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:   "not-a-uuid",
		Audience:  jwt.ClaimStrings{Audience},
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	_, err = v.Verify(context.Background(), token)
	if !errors.Is(err, ErrMalformedIdentity) {
		t.Errorf("error = %v, want ErrMalformedIdentity", err)
	}
}
