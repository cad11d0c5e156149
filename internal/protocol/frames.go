package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Type discriminates frames on the wire.
type Type string

const (
	TypeRegister          Type = "register"
	TypeScan              Type = "scan"
	TypeConnect           Type = "connect"
	TypeMessage           Type = "message"
	TypeMessagesRead      Type = "messages_read"
	TypeDeleteChat        Type = "delete_chat"
	TypePeers             Type = "peers"
	TypePeerConnected     Type = "peer_connected"
	TypePeerDisconnected  Type = "peer_disconnected"
	TypeConnectionRequest Type = "connection_request"
)

// ErrUnknownType is returned when a frame's type is not valid for its direction.
var ErrUnknownType = errors.New("unknown frame type")

// Client → hub frames.

type Register struct {
	Type    Type     `json:"type"`
	Profile *Profile `json:"profile"`
}

type Scan struct {
	Type Type `json:"type"`
}

type Connect struct {
	Type   Type   `json:"type"`
	PeerID string `json:"peerId"`
}

// OutboundMessage asks the hub to relay content to another identity.
// MessageID is the sender's local id, passed through so read receipts match.
type OutboundMessage struct {
	Type      Type     `json:"type"`
	To        string   `json:"to"`
	Content   string   `json:"content"`
	From      *Profile `json:"from"`
	MessageID string   `json:"messageId,omitempty"`
}

type MarkRead struct {
	Type         Type     `json:"type"`
	To           string   `json:"to"`
	MessageIDs   []string `json:"messageIds"`
	AutoDeleteAt *int64   `json:"autoDeleteAt,omitempty"`
}

type DeleteChat struct {
	Type Type   `json:"type"`
	To   string `json:"to"`
}

// Hub → client frames.

type Peers struct {
	Type  Type   `json:"type"`
	Peers []Peer `json:"peers"`
}

type PeerConnected struct {
	Type Type `json:"type"`
	Peer Peer `json:"peer"`
}

type PeerDisconnected struct {
	Type   Type   `json:"type"`
	PeerID string `json:"peerId"`
}

type ConnectionRequest struct {
	Type Type `json:"type"`
	From Peer `json:"from"`
}

// RelayedMessage is a message delivered by the hub; Timestamp is the hub's clock.
type RelayedMessage struct {
	Type      Type     `json:"type"`
	From      *Profile `json:"from"`
	Content   string   `json:"content"`
	Timestamp int64    `json:"timestamp"`
	MessageID string   `json:"messageId,omitempty"`
}

type MessagesRead struct {
	Type         Type     `json:"type"`
	From         string   `json:"from"`
	MessageIDs   []string `json:"messageIds"`
	AutoDeleteAt *int64   `json:"autoDeleteAt,omitempty"`
}

type ChatDeleted struct {
	Type Type   `json:"type"`
	From string `json:"from"`
}

type envelope struct {
	Type Type `json:"type"`
}

// Encode marshals a frame for the wire.
func Encode(frame any) ([]byte, error) {
	return json.Marshal(frame)
}

// ParseClientFrame decodes a frame sent by a client to the hub.
// The returned value is a pointer to one of the client → hub frame types.
func ParseClientFrame(data []byte) (any, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	var frame any
	switch env.Type {
	case TypeRegister:
		frame = &Register{}
	case TypeScan:
		frame = &Scan{}
	case TypeConnect:
		frame = &Connect{}
	case TypeMessage:
		frame = &OutboundMessage{}
	case TypeMessagesRead:
		frame = &MarkRead{}
	case TypeDeleteChat:
		frame = &DeleteChat{}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, env.Type)
	}
	if err := json.Unmarshal(data, frame); err != nil {
		return nil, fmt.Errorf("decode %s: %w", env.Type, err)
	}
	return frame, nil
}

// ParseHubFrame decodes a frame sent by the hub to a client.
func ParseHubFrame(data []byte) (any, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	var frame any
	switch env.Type {
	case TypePeers:
		frame = &Peers{}
	case TypePeerConnected:
		frame = &PeerConnected{}
	case TypePeerDisconnected:
		frame = &PeerDisconnected{}
	case TypeConnectionRequest:
		frame = &ConnectionRequest{}
	case TypeMessage:
		frame = &RelayedMessage{}
	case TypeMessagesRead:
		frame = &MessagesRead{}
	case TypeDeleteChat:
		frame = &ChatDeleted{}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, env.Type)
	}
	if err := json.Unmarshal(data, frame); err != nil {
		return nil, fmt.Errorf("decode %s: %w", env.Type, err)
	}
	return frame, nil
}
