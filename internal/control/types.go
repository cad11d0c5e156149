package control

import (
	"github.com/matheus3301/meshchat/internal/protocol"
	"github.com/matheus3301/meshchat/internal/status"
)

// StatusResponse is the body of GET /status.
type StatusResponse struct {
	Device    string            `json:"device"`
	Link      status.State      `json:"link"`
	Identity  *protocol.Profile `json:"identity"`
	Peers     int               `json:"peers"`
	Scanning  bool              `json:"scanning"`
	StartedAt int64             `json:"startedAt"`
}

// SendRequest is the body of POST /chats/{peerID}/messages.
type SendRequest struct {
	Content string `json:"content"`
}

// ReadResponse lists the messages a mark-read changed.
type ReadResponse struct {
	MessageIDs []string `json:"messageIds"`
}

// ProfileRequest is the body of PUT /profile.
type ProfileRequest struct {
	Name        string `json:"name"`
	AvatarIndex int    `json:"avatarIndex"`
}

// ErrorResponse carries a failed request's message.
type ErrorResponse struct {
	Error string `json:"error"`
}
