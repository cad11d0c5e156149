package protocol

import (
	"fmt"
	"strings"
)

// Profile is the identity a client registers with: a stable routing id plus display fields.
type Profile struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	AvatarIndex int    `json:"avatarIndex"`
}

// Peer is a remote identity as presented by the hub.
type Peer struct {
	ID             string  `json:"id"`
	Name           string  `json:"name"`
	DeviceID       string  `json:"deviceId"`
	SignalStrength float64 `json:"signalStrength"`
	IsConnected    bool    `json:"isConnected"`
	LastSeen       int64   `json:"lastSeen"`
}

// DeviceID derives the short device label from an identity id.
func DeviceID(id string) string {
	if len(id) > 12 {
		id = id[:12]
	}
	return strings.ToUpper(id)
}

// DefaultName is the display name used when a profile carries none.
func DefaultName(id string) string {
	if len(id) > 4 {
		id = id[:4]
	}
	return fmt.Sprintf("User_%s", id)
}
