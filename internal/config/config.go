// Package config persists the gateway credentials: URL, shared secret, and
// auth mode. The secret is encrypted at rest; everything else is plain JSON
// in the user config dir.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/codefionn/gatelink/internal/secrets"
)

// Config is the persisted credential file.
type Config struct {
	// GatewayURL is the websocket endpoint (ws:// or wss://).
	GatewayURL string `json:"gateway_url"`
	// Secret is the shared secret, stored with the secrets.SecretPrefix when
	// encrypted. Legacy plaintext values are accepted on read.
	Secret string `json:"secret,omitempty"`
	// AuthMode is "token" (default) or "password".
	AuthMode string `json:"auth_mode,omitempty"`
	// Locale overrides the locale sent in the handshake.
	Locale string `json:"locale,omitempty"`
	// LogLevel controls file logging (debug, info, warn, error, none).
	LogLevel string `json:"log_level,omitempty"`
	// StorePath overrides the identity database location.
	StorePath string `json:"store_path,omitempty"`
}

// DefaultConfig returns a config with defaults applied.
func DefaultConfig() *Config {
	return &Config{
		AuthMode: "token",
		LogLevel: "info",
	}
}

// ConfigDir returns the directory holding the credential file, identity
// database, and logs.
func ConfigDir() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("resolve user config dir: %w", err)
	}
	return filepath.Join(base, "gatelink"), nil
}

// DefaultPath returns the default credential file location.
func DefaultPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// Load reads the config at path. A missing file yields defaults, not an error.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if cfg.AuthMode == "" {
		cfg.AuthMode = "token"
	}
	return cfg, nil
}

// Save writes the config to path, creating the directory as needed. The file
// is written 0600 since it may carry the (encrypted) secret.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replace config: %w", err)
	}
	return nil
}

// SetSecret encrypts and stores the shared secret. An empty password stores
// it in the clear.
func (c *Config) SetSecret(plain, password string) error {
	if password == "" {
		c.Secret = plain
		return nil
	}
	enc, err := secrets.EncryptString(plain, password)
	if err != nil {
		return fmt.Errorf("encrypt secret: %w", err)
	}
	c.Secret = enc
	return nil
}

// PlainSecret decrypts the stored secret. Legacy plaintext values pass
// through unchanged.
func (c *Config) PlainSecret(password string) (string, error) {
	plain, _, err := secrets.DecryptString(c.Secret, password)
	if err != nil {
		return "", fmt.Errorf("decrypt secret: %w", err)
	}
	return plain, nil
}
