// Package telemetry sends anonymous product analytics to PostHog and sets up
// OpenTelemetry tracing. Both are off unless configured.
package telemetry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/spf13/afero"
)

// ConfigFileName is stored in the data directory.
const ConfigFileName = "telemetry.json"

// Config is the persisted telemetry state of one installation.
type Config struct {
	Enabled bool `json:"enabled"`

	// AnonymousID identifies the installation, never a person. It is
	// generated once and kept.
	AnonymousID string `json:"anonymous_id"`
}

// IsEnabled returns true if events may be sent.
func (c *Config) IsEnabled() bool {
	return c != nil && c.Enabled
}

// LoadConfig reads dir/telemetry.json. A missing file yields an enabled
// config with a fresh id, which is written back so the id stays stable.
func LoadConfig(fs afero.Fs, dir string) (*Config, error) {
	path := filepath.Join(dir, ConfigFileName)
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read telemetry config: %w", err)
		}
		cfg := &Config{Enabled: true, AnonymousID: uuid.New().String()}
		if err := cfg.Save(fs, dir); err != nil {
			return nil, err
		}
		return cfg, nil
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse telemetry config: %w", err)
	}
	if cfg.AnonymousID == "" {
		cfg.AnonymousID = uuid.New().String()
		if err := cfg.Save(fs, dir); err != nil {
			return nil, err
		}
	}
	return &cfg, nil
}

// Save writes the config with owner-only permissions.
func (c *Config) Save(fs afero.Fs, dir string) error {
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create telemetry dir: %w", err)
	}
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal telemetry config: %w", err)
	}
	if err := afero.WriteFile(fs, filepath.Join(dir, ConfigFileName), data, 0o600); err != nil {
		return fmt.Errorf("write telemetry config: %w", err)
	}
	return nil
}
