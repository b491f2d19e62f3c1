// Package auth maps bearer tokens to user ids. It is the identity boundary
// in front of the chat core: everything behind it trusts the resolved id.
package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/c-pro/geche"
	"golang.org/x/crypto/blake2b"
)

const DefaultTokenExpiry = 12 * time.Hour

var ErrInvalidToken = errors.New("invalid or expired token")

type Config struct {
	TokenExpiry time.Duration `json:"tokenExpiry"`
}

func (c *Config) Validate() error {
	if c.TokenExpiry < 0 {
		return fmt.Errorf("token expiry must not be negative, got %s", c.TokenExpiry)
	}
	if c.TokenExpiry == 0 {
		c.TokenExpiry = DefaultTokenExpiry
	}
	return nil
}

type Session struct {
	Token       string `json:"token"`
	UserID      string `json:"userId"`
	TokenExpiry int64  `json:"tokenExpiry"`
}

// Sessions holds live tokens. Keys are digests of the tokens, the tokens
// themselves are only returned once by Issue.
type Sessions struct {
	Config
	liveTokens geche.Geche[string, string]
	now        func() time.Time
}

// NewSessions creates the session store. Expired tokens are swept until ctx
// is done.
func NewSessions(ctx context.Context, config Config) (*Sessions, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &Sessions{
		Config:     config,
		liveTokens: geche.NewMapTTLCache[string, string](ctx, config.TokenExpiry, time.Minute),
		now:        time.Now,
	}, nil
}

// Issue creates a new token for userID.
func (s *Sessions) Issue(userID string) (Session, error) {
	if userID == "" {
		return Session{}, errors.New("user id is required")
	}
	token, err := generateToken()
	if err != nil {
		slog.Error("failed to issue session", "user_id", userID, "error", err)
		return Session{}, err
	}

	s.liveTokens.Set(tokenKey(token), userID)
	return Session{
		Token:       token,
		UserID:      userID,
		TokenExpiry: s.now().Add(s.TokenExpiry).Unix(),
	}, nil
}

// Resolve returns the user id a live token belongs to.
func (s *Sessions) Resolve(token string) (string, error) {
	if token == "" {
		return "", ErrInvalidToken
	}
	userID, err := s.liveTokens.Get(tokenKey(token))
	if err != nil {
		return "", ErrInvalidToken
	}
	return userID, nil
}

func (s *Sessions) Revoke(token string) error {
	return s.liveTokens.Del(tokenKey(token))
}

func generateToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func tokenKey(token string) string {
	sum := blake2b.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
