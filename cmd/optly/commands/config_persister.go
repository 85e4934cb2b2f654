package commands

import (
	"sync"
	"time"
)

// ConfigPersister implements the auth.ConfigPersister interface by writing
// the token into the CLI config file.
type ConfigPersister struct {
	path  string
	mutex sync.Mutex
}

// NewConfigPersister creates a persister for the active config file.
func NewConfigPersister() *ConfigPersister {
	return &ConfigPersister{path: configFilePath()}
}

// UpdateAccessToken stores the token and its expiry, leaving every other
// setting in the file untouched.
func (p *ConfigPersister) UpdateAccessToken(token string, expiresAt time.Time) error {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	config, err := readConfigFile(p.path)
	if err != nil {
		return err
	}

	config.Token = token
	config.TokenExpiresAt = nil

	if !expiresAt.IsZero() {
		expiry := expiresAt.UTC()
		config.TokenExpiresAt = &expiry
	}

	return writeConfigFile(p.path, config)
}
