package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/matheus3301/meshchat/internal/store"
)

// parseSettingsArgs turns key=value arguments into a partial settings update.
func parseSettingsArgs(args []string) (store.SettingsPatch, error) {
	var patch store.SettingsPatch
	if len(args) == 0 {
		return patch, fmt.Errorf("no settings given")
	}
	for _, arg := range args {
		key, value, ok := strings.Cut(arg, "=")
		if !ok {
			return patch, fmt.Errorf("expected key=value, got %q", arg)
		}
		switch key {
		case "auto-delete":
			b, err := strconv.ParseBool(value)
			if err != nil {
				return patch, fmt.Errorf("auto-delete: %w", err)
			}
			patch.AutoDeleteEnabled = &b
		case "auto-delete-timer":
			n, err := strconv.Atoi(strings.TrimSuffix(value, "m"))
			if err != nil {
				return patch, fmt.Errorf("auto-delete-timer: %w", err)
			}
			patch.AutoDeleteTimer = &n
		case "notifications":
			b, err := strconv.ParseBool(value)
			if err != nil {
				return patch, fmt.Errorf("notifications: %w", err)
			}
			patch.NotificationsEnabled = &b
		case "auto-connect":
			b, err := strconv.ParseBool(value)
			if err != nil {
				return patch, fmt.Errorf("auto-connect: %w", err)
			}
			patch.AutoConnect = &b
		default:
			return patch, fmt.Errorf("unknown setting %q", key)
		}
	}
	return patch, nil
}
