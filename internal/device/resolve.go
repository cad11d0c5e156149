package device

import (
	"fmt"
	"regexp"

	"github.com/matheus3301/meshchat/internal/config"
)

// DefaultName is the device used when nothing else is configured.
const DefaultName = "main"

var nameRegexp = regexp.MustCompile(`^[a-z0-9_-]{1,64}$`)

// ValidateName checks that name is usable as a directory name.
func ValidateName(name string) error {
	if !nameRegexp.MatchString(name) {
		return fmt.Errorf("invalid device name %q: must match ^[a-z0-9_-]{1,64}$", name)
	}
	return nil
}

// Resolve picks the active device: the --device flag, then default_device
// from config.toml, then "main".
func Resolve(flagOverride string) string {
	if flagOverride != "" {
		return flagOverride
	}
	cfg, err := config.Load(ConfigPath())
	if err == nil && cfg.DefaultDevice != "" {
		return cfg.DefaultDevice
	}
	return DefaultName
}
