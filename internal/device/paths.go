// Package device lays out the per-device state directory under ~/.meshchat.
package device

import (
	"os"
	"path/filepath"
)

// BaseDir returns ~/.meshchat. MESHCHAT_HOME overrides it.
func BaseDir() string {
	if dir := os.Getenv("MESHCHAT_HOME"); dir != "" {
		return dir
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".meshchat")
}

// Dir returns the directory of one device.
func Dir(name string) string {
	return filepath.Join(BaseDir(), "devices", name)
}

// SocketPath returns the control socket of a device daemon.
func SocketPath(name string) string {
	return filepath.Join(Dir(name), "daemon.sock")
}

// DBPath returns the device's meshchat.db.
func DBPath(name string) string {
	return filepath.Join(Dir(name), "meshchat.db")
}

// LogDir returns the log directory for a device.
func LogDir(name string) string {
	return filepath.Join(Dir(name), "logs")
}

// LogPath returns the daemon log file path.
func LogPath(name string) string {
	return filepath.Join(LogDir(name), "meshchatd.log")
}

// ConfigPath returns the global config file path.
func ConfigPath() string {
	return filepath.Join(BaseDir(), "config.toml")
}

// EnsureDir creates the device directory tree, readable by the owner only.
func EnsureDir(name string) error {
	for _, d := range []string{Dir(name), LogDir(name)} {
		if err := os.MkdirAll(d, 0700); err != nil {
			return err
		}
	}
	return nil
}
