package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// Static errors for err113 compliance.
var (
	ErrNoConfigPersister = errors.New("no config persister configured")
)

// ConfigPersister saves a token to the CLI configuration.
type ConfigPersister interface {
	UpdateAccessToken(token string, expiresAt time.Time) error
}

// ConfigTokenManager wraps StaticTokenManager and writes every new token
// through to a ConfigPersister.
type ConfigTokenManager struct {
	static          *StaticTokenManager
	configPersister ConfigPersister
	mutex           sync.Mutex
	lastErr         error
}

// NewConfigTokenManager creates a manager seeded with the configured token.
func NewConfigTokenManager(configPersister ConfigPersister, initialToken string, initialExpiry time.Time) *ConfigTokenManager {
	return &ConfigTokenManager{
		static:          NewStaticTokenManager(initialToken, initialExpiry),
		configPersister: configPersister,
	}
}

// GetToken returns the current token.
func (m *ConfigTokenManager) GetToken(ctx context.Context) (string, error) {
	return m.static.GetToken(ctx)
}

// SetToken replaces the token and persists it. Persistence failures are
// reported by PersistError.
func (m *ConfigTokenManager) SetToken(token string, expiresAt time.Time) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.static.SetToken(token, expiresAt)
	m.lastErr = m.persistToken(m.static.Current())
}

// PersistError returns the error from the last SetToken, if any.
func (m *ConfigTokenManager) PersistError() error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	return m.lastErr
}

// IsTokenExpiringSoon returns true if the token expires within the given
// duration. Tokens without an expiry never expire.
func (m *ConfigTokenManager) IsTokenExpiringSoon(within time.Duration) bool {
	token := m.static.Current()
	if token == nil || token.AccessToken == "" {
		return true
	}

	if token.ExpiresAt.IsZero() {
		return false
	}

	return time.Now().Add(within).After(token.ExpiresAt)
}

// GetTokenExpiry returns the current token's expiration time.
func (m *ConfigTokenManager) GetTokenExpiry() time.Time {
	token := m.static.Current()
	if token == nil {
		return time.Time{}
	}

	return token.ExpiresAt
}

func (m *ConfigTokenManager) persistToken(token *Token) error {
	if m.configPersister == nil {
		return ErrNoConfigPersister
	}

	err := m.configPersister.UpdateAccessToken(token.AccessToken, token.ExpiresAt)
	if err != nil {
		return fmt.Errorf("failed to update access token: %w", err)
	}

	return nil
}
