package hub

import (
	"math/rand/v2"
	"time"

	"github.com/matheus3301/meshchat/internal/protocol"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

// Hub tracks reachable identities and forwards events between their
// connections. Delivery is best-effort and at-most-once: frames for an
// unknown or closed recipient are dropped without telling the sender.
type Hub struct {
	registry *Registry
	logger   *zap.Logger
	now      func() time.Time
	rand     func() float64
}

// New creates a hub over the given registry.
func New(registry *Registry, logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		registry: registry,
		logger:   logger,
		now:      time.Now,
		rand:     rand.Float64,
	}
}

// Registry returns the registry the hub mutates.
func (h *Hub) Registry() *Registry {
	return h.registry
}

// Handle decodes one inbound frame from c and dispatches it.
// Malformed frames are logged and discarded; the connection stays open.
func (h *Hub) Handle(c *Client, data []byte) {
	frame, err := protocol.ParseClientFrame(data)
	if err != nil {
		h.logger.Warn("discarding inbound frame", zap.String("conn_id", c.ConnID()), zap.Error(err))
		return
	}

	switch f := frame.(type) {
	case *protocol.Register:
		h.Register(c, f.Profile)
	case *protocol.Scan:
		h.Scan()
	case *protocol.Connect:
		h.Connect(c, f.PeerID)
	case *protocol.OutboundMessage:
		h.Relay(f)
	case *protocol.MarkRead:
		h.ForwardRead(c, f)
	case *protocol.DeleteChat:
		h.ForwardDelete(c, f)
	}
}

// Register binds c to profile.ID, announces the peer to everyone else and
// broadcasts a fresh snapshot. A profile without an id is ignored.
func (h *Hub) Register(c *Client, profile *protocol.Profile) {
	if profile == nil || profile.ID == "" {
		return
	}

	if prev := c.PeerID(); prev != "" && prev != profile.ID {
		if h.registry.RemoveIfOwner(prev, c) {
			h.broadcast(protocol.PeerDisconnected{Type: protocol.TypePeerDisconnected, PeerID: prev}, "")
		}
	}

	name := profile.Name
	if name == "" {
		name = protocol.DefaultName(profile.ID)
	}
	peer := protocol.Peer{
		ID:             profile.ID,
		Name:           name,
		DeviceID:       protocol.DeviceID(profile.ID),
		SignalStrength: 0.7 + h.rand()*0.3,
		IsConnected:    true,
		LastSeen:       h.now().UnixMilli(),
	}

	c.bind(profile.ID)
	if replaced := h.registry.Put(c, peer); replaced != nil && replaced != c {
		h.logger.Info("identity re-registered on a new connection",
			zap.String("peer_id", peer.ID),
			zap.String("old_conn_id", replaced.ConnID()),
			zap.String("conn_id", c.ConnID()))
	}
	h.logger.Info("peer registered", zap.String("peer_id", peer.ID), zap.String("name", peer.Name))

	h.broadcast(protocol.PeerConnected{Type: protocol.TypePeerConnected, Peer: peer}, peer.ID)
	h.broadcastPeers()
}

// Scan re-broadcasts the peer snapshot without touching the registry.
func (h *Hub) Scan() {
	h.broadcastPeers()
}

// Connect notifies peerID that c's identity wants to talk. No session state is kept.
func (h *Hub) Connect(c *Client, peerID string) {
	target, _, ok := h.registry.Lookup(peerID)
	if !ok {
		return
	}
	owner, requester, ok := h.registry.Lookup(c.PeerID())
	if !ok || owner != c {
		return
	}
	h.deliver(target, protocol.ConnectionRequest{Type: protocol.TypeConnectionRequest, From: requester})
}

// Relay forwards a message to its recipient, stamped with the hub's clock.
func (h *Hub) Relay(msg *protocol.OutboundMessage) {
	target, _, ok := h.registry.Lookup(msg.To)
	if !ok {
		h.logger.Debug("recipient offline, message dropped", zap.String("to", msg.To))
		return
	}
	relayed := protocol.RelayedMessage{
		Type:      protocol.TypeMessage,
		From:      msg.From,
		Content:   msg.Content,
		Timestamp: h.now().UnixMilli(),
		MessageID: msg.MessageID,
	}
	if h.deliver(target, relayed) {
		fromName := ""
		if msg.From != nil {
			fromName = msg.From.Name
		}
		h.logger.Info("message relayed", zap.String("from", fromName), zap.String("to", msg.To))
	}
}

// ForwardRead passes a read receipt to its recipient, attributed to c's identity.
func (h *Hub) ForwardRead(c *Client, req *protocol.MarkRead) {
	from, ok := h.ownedID(c)
	if !ok {
		return
	}
	target, _, ok := h.registry.Lookup(req.To)
	if !ok {
		return
	}
	ids := req.MessageIDs
	if ids == nil {
		ids = []string{}
	}
	h.deliver(target, protocol.MessagesRead{
		Type:         protocol.TypeMessagesRead,
		From:         from,
		MessageIDs:   ids,
		AutoDeleteAt: req.AutoDeleteAt,
	})
}

// ForwardDelete tells the recipient that c's identity deleted their conversation.
func (h *Hub) ForwardDelete(c *Client, req *protocol.DeleteChat) {
	from, ok := h.ownedID(c)
	if !ok {
		return
	}
	target, _, ok := h.registry.Lookup(req.To)
	if !ok {
		return
	}
	h.deliver(target, protocol.ChatDeleted{Type: protocol.TypeDeleteChat, From: from})
}

// ownedID returns c's bound identity while c still holds its registration.
func (h *Hub) ownedID(c *Client) (string, bool) {
	id := c.PeerID()
	if id == "" {
		return "", false
	}
	owner, _, ok := h.registry.Lookup(id)
	return id, ok && owner == c
}

// Disconnect releases c's identity and announces the departure. A connection
// whose identity was already taken over by a newer registration leaves the
// registry untouched.
func (h *Hub) Disconnect(c *Client) {
	c.Close()
	id := c.PeerID()
	if id == "" {
		return
	}
	if !h.registry.RemoveIfOwner(id, c) {
		return
	}
	h.logger.Info("peer disconnected", zap.String("peer_id", id), zap.String("conn_id", c.ConnID()))
	h.broadcast(protocol.PeerDisconnected{Type: protocol.TypePeerDisconnected, PeerID: id}, "")
}

// PeerSnapshot returns all registered peers with freshly randomized signal strengths.
func (h *Hub) PeerSnapshot() []protocol.Peer {
	return lo.Map(h.registry.Peers(), func(p protocol.Peer, _ int) protocol.Peer {
		p.SignalStrength = 0.5 + h.rand()*0.5
		p.IsConnected = true
		return p
	})
}

// ConnectedPeers returns the number of registered identities.
func (h *Hub) ConnectedPeers() int {
	return h.registry.Len()
}

func (h *Hub) broadcastPeers() {
	peers := h.PeerSnapshot()
	for id, c := range h.registry.Clients() {
		visible := lo.Filter(peers, func(p protocol.Peer, _ int) bool { return p.ID != id })
		h.deliver(c, protocol.Peers{Type: protocol.TypePeers, Peers: visible})
	}
}

// broadcast sends frame to every registered connection except excludeID.
func (h *Hub) broadcast(frame any, excludeID string) {
	data, err := protocol.Encode(frame)
	if err != nil {
		h.logger.Error("encode broadcast frame", zap.Error(err))
		return
	}
	for id, c := range h.registry.Clients() {
		if id == excludeID {
			continue
		}
		if !c.Enqueue(data) {
			h.logger.Debug("broadcast frame dropped", zap.String("peer_id", id))
		}
	}
}

func (h *Hub) deliver(c *Client, frame any) bool {
	data, err := protocol.Encode(frame)
	if err != nil {
		h.logger.Error("encode frame", zap.Error(err))
		return false
	}
	if !c.Enqueue(data) {
		h.logger.Debug("frame dropped", zap.String("conn_id", c.ConnID()))
		return false
	}
	return true
}
