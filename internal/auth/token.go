package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/cory-johannsen/tictactoe/internal/storage"
)

// ErrInvalidToken is returned when a token fails signature, expiry or
// identity checks.
var ErrInvalidToken = errors.New("invalid identity token")

// Claims is the JWT body carried by identity tokens.
type Claims struct {
	UserID   int64  `json:"uid"`
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// Issuer signs and verifies HS256 identity tokens.
type Issuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewIssuer creates an Issuer.
//
// Precondition: secret must be non-empty and ttl positive.
func NewIssuer(secret string, ttl time.Duration) (*Issuer, error) {
	if secret == "" {
		return nil, errors.New("jwt secret is required")
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("token ttl must be positive, got %s", ttl)
	}
	return &Issuer{secret: []byte(secret), ttl: ttl, now: time.Now}, nil
}

// Issue returns a signed token for u valid for the configured TTL.
func (i *Issuer) Issue(u storage.User) (string, error) {
	now := i.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		UserID:   u.ID,
		Username: u.Username,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   fmt.Sprintf("%d", u.ID),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
	})
	signed, err := token.SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}
	return signed, nil
}

// Parse validates raw and returns its claims.
func (i *Issuer) Parse(raw string) (Claims, error) {
	var claims Claims
	parsed, err := jwt.ParseWithClaims(raw, &claims, func(token *jwt.Token) (any, error) {
		return i.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(i.now))
	if err != nil {
		return Claims{}, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if !parsed.Valid {
		return Claims{}, ErrInvalidToken
	}
	return claims, nil
}

// Verify checks that token was issued for userID and username. It satisfies
// the coordinator's identity verifier.
func (i *Issuer) Verify(_ context.Context, userID int64, username, token string) error {
	if token == "" {
		return fmt.Errorf("%w: missing token", ErrInvalidToken)
	}
	claims, err := i.Parse(token)
	if err != nil {
		return err
	}
	if claims.UserID != userID || !strings.EqualFold(claims.Username, username) {
		return fmt.Errorf("%w: identity mismatch", ErrInvalidToken)
	}
	return nil
}
