package store

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// Status is the delivery state of a message.
type Status string

const (
	StatusSending   Status = "sending"
	StatusSent      Status = "sent"
	StatusDelivered Status = "delivered"
	StatusRead      Status = "read"
	StatusFailed    Status = "failed"
)

var statusRank = map[Status]int{
	StatusSending:   1,
	StatusSent:      2,
	StatusDelivered: 3,
	StatusRead:      4,
}

// CanAdvanceTo reports whether a message in state s may move to next.
// Statuses only move forward; failed is reachable from sending or sent, and
// both failed and read are final.
func (s Status) CanAdvanceTo(next Status) bool {
	switch {
	case s == next, s == StatusFailed, s == StatusRead:
		return false
	case next == StatusFailed:
		return s == StatusSending || s == StatusSent
	}
	rank, ok := statusRank[next]
	return ok && rank > statusRank[s]
}

// Message is one entry of a conversation. Times are unix milliseconds.
type Message struct {
	ID           string `json:"id"`
	PeerID       string `json:"peerId"`
	Content      string `json:"content"`
	Timestamp    int64  `json:"timestamp"`
	IsSent       bool   `json:"isSent"`
	Status       Status `json:"status"`
	ReadAt       *int64 `json:"readAt,omitempty"`
	AutoDeleteAt *int64 `json:"autoDeleteAt,omitempty"`
}

// Chat is the locally owned conversation with one peer.
type Chat struct {
	PeerID      string    `json:"peerId"`
	PeerName    string    `json:"peerName"`
	Messages    []Message `json:"messages"`
	LastMessage *Message  `json:"lastMessage,omitempty"`
	UnreadCount int       `json:"unreadCount"`
	IsOnline    bool      `json:"isOnline"`
}

// syncLastMessage points LastMessage at a copy of the final message.
func (c *Chat) syncLastMessage() {
	if c.Messages == nil {
		c.Messages = []Message{}
	}
	if len(c.Messages) == 0 {
		c.LastMessage = nil
		return
	}
	last := c.Messages[len(c.Messages)-1]
	c.LastMessage = &last
}

// Settings are the per-device preferences.
type Settings struct {
	AutoDeleteEnabled    bool `json:"autoDeleteEnabled"`
	AutoDeleteTimer      int  `json:"autoDeleteTimer" validate:"oneof=10 30"`
	NotificationsEnabled bool `json:"notificationsEnabled"`
	AutoConnect          bool `json:"autoConnect"`
}

// DefaultSettings returns the settings of a fresh device.
func DefaultSettings() Settings {
	return Settings{
		AutoDeleteEnabled:    false,
		AutoDeleteTimer:      10,
		NotificationsEnabled: true,
		AutoConnect:          true,
	}
}

// ErrInvalidSettings wraps every settings validation failure.
var ErrInvalidSettings = errors.New("invalid settings")

var validate = validator.New()

// Validate checks s against the allowed values.
func (s Settings) Validate() error {
	if err := validate.Struct(s); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSettings, err)
	}
	return nil
}

// AutoDeleteAfterMillis returns the configured expiry delay.
func (s Settings) AutoDeleteAfterMillis() int64 {
	return int64(s.AutoDeleteTimer) * 60 * 1000
}

// SettingsPatch is a partial settings update; nil fields are left unchanged.
type SettingsPatch struct {
	AutoDeleteEnabled    *bool `json:"autoDeleteEnabled,omitempty"`
	AutoDeleteTimer      *int  `json:"autoDeleteTimer,omitempty"`
	NotificationsEnabled *bool `json:"notificationsEnabled,omitempty"`
	AutoConnect          *bool `json:"autoConnect,omitempty"`
}

// Apply merges p into s.
func (s Settings) Apply(p SettingsPatch) Settings {
	if p.AutoDeleteEnabled != nil {
		s.AutoDeleteEnabled = *p.AutoDeleteEnabled
	}
	if p.AutoDeleteTimer != nil {
		s.AutoDeleteTimer = *p.AutoDeleteTimer
	}
	if p.NotificationsEnabled != nil {
		s.NotificationsEnabled = *p.NotificationsEnabled
	}
	if p.AutoConnect != nil {
		s.AutoConnect = *p.AutoConnect
	}
	return s
}
