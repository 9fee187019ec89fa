package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/miuchi-chat/miuchi/internal/user"
)

// Audience is the fixed audience constant every bearer assertion must be bound to.
const Audience = "miuchi.chat"

// Sentinel errors for the verification path. Callers that need to distinguish "bad credential" from transient
// infrastructure failure can match on these with errors.Is.
var (
	ErrMalformedIdentity = errors.New("token subject is not a valid identity")
	ErrUnknownIdentity   = errors.New("identity no longer exists")
)

// Claims holds the JWT claims carried on a bearer assertion.
type Claims struct {
	jwt.RegisteredClaims
}

// Verifier validates bearer credentials presented at upgrade and resolves them to an identity record. It is the
// Token Verifier named in the component design: the only side effect it performs is a read of the persistence
// store to confirm the identity has not been revoked by deletion.
type Verifier struct {
	secret []byte
	users  user.Repository
}

// NewVerifier constructs a Verifier bound to the given symmetric secret and user repository.
func NewVerifier(secret string, users user.Repository) *Verifier {
	return &Verifier{secret: []byte(secret), users: users}
}

// Verify parses tokenStr, rejecting it on bad signature, wrong audience, expiry, or a malformed subject claim, then
// confirms the named identity still exists in persistence. On success it returns the identity's current user record.
func (v *Verifier) Verify(ctx context.Context, tokenStr string) (*user.User, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.secret, nil
	}, jwt.WithAudience(Audience))
	if err != nil {
		return nil, fmt.Errorf("parse bearer assertion: %w", err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("invalid bearer assertion")
	}

	id, err := uuid.Parse(claims.Subject)
	if err != nil {
		return nil, ErrMalformedIdentity
	}

	u, err := v.users.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return nil, ErrUnknownIdentity
		}
		return nil, fmt.Errorf("resolve identity: %w", err)
	}

	return u, nil
}

// NewAssertion creates a signed bearer assertion for the given identity, bound to Audience. Issuance itself belongs
// to the external OAuth/login collaborator; this constructor exists so tests (and local development tooling) can
// mint assertions without a running IdP.
func NewAssertion(userID uuid.UUID, secret string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			Audience:  jwt.ClaimStrings{Audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("sign bearer assertion: %w", err)
	}
	return signed, nil
}
