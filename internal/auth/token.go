// Package auth manages the bearer token sent to the Optimizely REST API.
package auth

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/fivetwenty-io/optly/internal/constants"
	"github.com/fivetwenty-io/optly/pkg/optly"
)

// TokenManager supplies and replaces the access token.
type TokenManager interface {
	GetToken(ctx context.Context) (string, error)
	SetToken(token string, expiresAt time.Time)
}

// Token is an access token with an optional expiry.
type Token struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// Valid reports whether the token is usable for at least the expiration
// buffer. A zero ExpiresAt never expires.
func (t *Token) Valid() bool {
	if t == nil || t.AccessToken == "" {
		return false
	}

	if t.ExpiresAt.IsZero() {
		return true
	}

	return time.Now().Add(constants.TokenExpirationBuffer).Before(t.ExpiresAt)
}

// TokenStore holds the current token behind a lock.
type TokenStore struct {
	mu    sync.RWMutex
	token *Token
}

// NewTokenStore creates an empty store.
func NewTokenStore() *TokenStore {
	return &TokenStore{}
}

// Get returns the current token, or nil.
func (s *TokenStore) Get() *Token {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.token
}

// Set replaces the current token.
func (s *TokenStore) Set(token *Token) {
	s.mu.Lock()
	s.token = token
	s.mu.Unlock()
}

// Clear drops the current token.
func (s *TokenStore) Clear() {
	s.Set(nil)
}

// NormalizeToken trims whitespace and a leading "Bearer " so tokens copied
// from an Authorization header can be used as-is.
func NormalizeToken(token string) string {
	token = strings.TrimSpace(token)
	if len(token) >= len(constants.BearerPrefix) && strings.EqualFold(token[:len(constants.BearerPrefix)], constants.BearerPrefix) {
		token = strings.TrimSpace(token[len(constants.BearerPrefix):])
	}

	return token
}

// StaticTokenManager serves a token that is never refreshed. Personal access
// tokens do not expire; OAuth tokens carry an expiry after which requests fail
// with optly.ErrTokenExpired.
type StaticTokenManager struct {
	store *TokenStore
}

// NewStaticTokenManager creates a manager for token.
func NewStaticTokenManager(token string, expiresAt time.Time) *StaticTokenManager {
	manager := &StaticTokenManager{store: NewTokenStore()}
	manager.SetToken(token, expiresAt)

	return manager
}

// GetToken returns the token, or optly.ErrTokenExpired once it is within the
// expiration buffer.
func (m *StaticTokenManager) GetToken(ctx context.Context) (string, error) {
	token := m.store.Get()
	if token == nil || token.AccessToken == "" {
		return "", nil
	}

	if !token.Valid() {
		return "", optly.ErrTokenExpired
	}

	return token.AccessToken, nil
}

// SetToken replaces the token.
func (m *StaticTokenManager) SetToken(token string, expiresAt time.Time) {
	m.store.Set(&Token{
		AccessToken: NormalizeToken(token),
		TokenType:   "bearer",
		ExpiresAt:   expiresAt,
	})
}

// Current returns the stored token.
func (m *StaticTokenManager) Current() *Token {
	return m.store.Get()
}
