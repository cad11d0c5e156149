package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestSaveAndLoad(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.toml")

	cfg := &Config{DefaultDevice: "work", HubURL: "https://hub.example/"}
	if err := Save(path, cfg); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loaded.DefaultDevice != "work" {
		t.Errorf("DefaultDevice = %q, want %q", loaded.DefaultDevice, "work")
	}
	if loaded.HubURL != "https://hub.example/" {
		t.Errorf("HubURL = %q, want https://hub.example/", loaded.HubURL)
	}
}

func TestLoadMissing(t *testing.T) {
	_, err := Load("/nonexistent/config.toml")
	if err == nil {
		t.Error("Load() expected error for missing file")
	}
}

func TestSavePermissions(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.toml")

	if err := Save(path, &Config{DefaultDevice: "main"}); err != nil {
		t.Fatal(err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	perm := info.Mode().Perm()
	if perm != 0600 {
		t.Errorf("file permission = %o, want 0600", perm)
	}
}

func TestResolveHubURLPrecedence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	t.Setenv("MESHCHAT_HUB_URL", "")

	got, err := ResolveHubURL(path)
	if err != nil {
		t.Fatal(err)
	}
	if got != DefaultHubURL {
		t.Errorf("no config: got %q, want %q", got, DefaultHubURL)
	}

	if err := Save(path, &Config{HubURL: "http://file:1/"}); err != nil {
		t.Fatal(err)
	}
	got, _ = ResolveHubURL(path)
	if got != "http://file:1/" {
		t.Errorf("file: got %q, want http://file:1/", got)
	}

	t.Setenv("MESHCHAT_HUB_URL", "http://env:2/")
	got, _ = ResolveHubURL(path)
	if got != "http://env:2/" {
		t.Errorf("env: got %q, want http://env:2/", got)
	}
}

func TestLoadRelayDefaults(t *testing.T) {
	cfg, err := LoadRelay("")
	if err != nil {
		t.Fatalf("LoadRelay() error = %v", err)
	}
	if cfg.ListenAddr != ":5000" || cfg.SendQueue != 64 || cfg.LogLevel != "info" {
		t.Errorf("defaults = %+v", cfg)
	}
}

func TestLoadRelayFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "relay.toml")
	content := "listen_addr = \"127.0.0.1:7000\"\nsend_queue = 8\nlog_level = \"debug\"\n"
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("MESHRELAY_SEND_QUEUE", "16")

	cfg, err := LoadRelay(path)
	if err != nil {
		t.Fatalf("LoadRelay() error = %v", err)
	}
	if cfg.ListenAddr != "127.0.0.1:7000" {
		t.Errorf("ListenAddr = %q", cfg.ListenAddr)
	}
	if cfg.SendQueue != 16 {
		t.Errorf("SendQueue = %d, want 16 (env wins)", cfg.SendQueue)
	}
}

func TestLoadRelayRejectsInvalid(t *testing.T) {
	t.Setenv("MESHRELAY_LOG_LEVEL", "loud")
	if _, err := LoadRelay(""); err == nil {
		t.Error("LoadRelay() expected validation error for log level")
	}
}
