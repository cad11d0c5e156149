package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// DefaultHubURL is used when neither the config file nor the environment names a hub.
const DefaultHubURL = "http://localhost:5000/"

// Config represents the global ~/.meshchat/config.toml.
type Config struct {
	DefaultDevice string `toml:"default_device"`
	HubURL        string `toml:"hub_url"`
}

// env carries MESHCHAT_* overrides.
type env struct {
	HubURL string `envconfig:"HUB_URL"`
}

// Load reads config from the given path. Returns nil config and error if file missing.
func Load(path string) (*Config, error) {
	var cfg Config
	_, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}

// ResolveHubURL picks the hub base URL: MESHCHAT_HUB_URL (also read from a
// local .env), then hub_url in the config file at path, then DefaultHubURL.
func ResolveHubURL(path string) (string, error) {
	_ = godotenv.Load()

	var e env
	if err := envconfig.Process("MESHCHAT", &e); err != nil {
		return "", fmt.Errorf("read environment: %w", err)
	}
	if e.HubURL != "" {
		return e.HubURL, nil
	}
	if cfg, err := Load(path); err == nil && cfg.HubURL != "" {
		return cfg.HubURL, nil
	}
	return DefaultHubURL, nil
}
