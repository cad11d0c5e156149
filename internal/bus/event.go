package bus

import "time"

// Event represents a domain event published on the bus.
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}

// Event kinds. Subscribers filter on the prefix before the dot.
const (
	KindLinkStatusChanged = "link.status_changed"
	KindLinkRegistered    = "link.registered"
	KindLinkDisconnected  = "link.disconnected"

	KindChatUpdated = "chat.updated"
	KindChatDeleted = "chat.deleted"

	KindPeersUpdated      = "peer.updated"
	KindConnectionRequest = "peer.connection_request"

	KindNotifyMessage = "notify.message"
)

// ChatChange is the payload of chat.* events.
type ChatChange struct {
	PeerID string
}

// IncomingMessage is the payload of notify.message.
type IncomingMessage struct {
	PeerID    string
	PeerName  string
	MessageID string
	Content   string
}
