// Package identity verifies display tokens minted by the external sign-in
// provider. The relay never authenticates anyone itself; it only unwraps an
// already-signed display name. Clients without a token are taken at their
// word.
package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type ContextKey string

const IdentityKey ContextKey = "identity"

// Identity is what the sign-in provider vouches for: a stable display name
// and an optional avatar.
type Identity struct {
	DisplayName string
	AvatarURL   string
}

type displayClaims struct {
	DisplayName string `json:"name"`
	AvatarURL   string `json:"avatar,omitempty"`
	jwt.RegisteredClaims
}

// MakeDisplayToken signs a display token the way the provider side would.
// Mostly useful for tests and local development.
func MakeDisplayToken(id Identity, tokenSecret string, expiresIn time.Duration) (string, error) {
	now := time.Now().UTC()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, displayClaims{
		DisplayName: id.DisplayName,
		AvatarURL:   id.AvatarURL,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(expiresIn)),
		},
	})

	return token.SignedString([]byte(tokenSecret))
}

// VerifyDisplayToken validates tokenString and returns the identity it
// carries.
func VerifyDisplayToken(tokenString, tokenSecret string) (Identity, error) {
	claims := &displayClaims{}
	token, err := jwt.ParseWithClaims(
		tokenString,
		claims,
		func(t *jwt.Token) (any, error) { return []byte(tokenSecret), nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return Identity{}, fmt.Errorf("internal/identity: failed to parse token: %w", err)
	}

	if !token.Valid {
		return Identity{}, errors.New("internal/identity: token is invalid")
	}

	if claims.DisplayName == "" {
		return Identity{}, errors.New("internal/identity: name claim is missing")
	}

	return Identity{DisplayName: claims.DisplayName, AvatarURL: claims.AvatarURL}, nil
}

// FromContext returns the identity a middleware stored on the request
// context, if any.
func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(IdentityKey).(Identity)
	return id, ok
}
