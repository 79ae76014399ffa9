// Package auth supplies the bearer token and checks it before a session starts.
package auth

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrNoToken        = errors.New("no auth token")
	ErrTokenExpired   = errors.New("auth token expired")
	ErrMalformedToken = errors.New("malformed auth token")
)

// Source yields the current bearer token.
type Source interface {
	Token() (string, error)
}

// Static is a fixed token.
type Static string

// Token returns the token, or ErrNoToken when empty.
func (s Static) Token() (string, error) {
	t := strings.TrimSpace(string(s))
	if t == "" {
		return "", ErrNoToken
	}
	return t, nil
}

// File reads the token from disk on every call so a refreshed file is picked up.
type File string

// Token reads the token file.
func (f File) Token() (string, error) {
	data, err := os.ReadFile(string(f))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", ErrNoToken
		}
		return "", fmt.Errorf("read token file: %w", err)
	}
	return Static(data).Token()
}

// NewSource prefers an inline token over a token file.
func NewSource(token, tokenFile string) Source {
	if strings.TrimSpace(token) == "" && tokenFile != "" {
		return File(tokenFile)
	}
	return Static(token)
}

// Claims are the fields read from a JWT session token.
type Claims struct {
	UserID string `json:"userId"`
	jwt.RegisteredClaims
}

// Inspect checks the token's expiry without verifying its signature; the
// backend remains the authority. Opaque (non-JWT) tokens return nil claims.
func Inspect(token string, now time.Time) (*Claims, error) {
	token = strings.TrimSpace(strings.TrimPrefix(token, "Bearer "))
	if token == "" {
		return nil, ErrNoToken
	}
	if strings.Count(token, ".") != 2 {
		return nil, nil
	}

	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}
	if claims.ExpiresAt != nil && !claims.ExpiresAt.After(now) {
		return claims, ErrTokenExpired
	}
	return claims, nil
}
