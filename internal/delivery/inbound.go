package delivery

import (
	"github.com/matheus3301/meshchat/internal/bus"
	"github.com/matheus3301/meshchat/internal/protocol"
	"github.com/matheus3301/meshchat/internal/store"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

// HandleFrame applies one decoded hub frame. Unknown frame types are ignored.
func (p *Pipeline) HandleFrame(frame any) {
	switch f := frame.(type) {
	case *protocol.RelayedMessage:
		p.onMessage(f)
	case *protocol.Peers:
		p.onPeers(f)
	case *protocol.PeerConnected:
		p.onPeerConnected(f)
	case *protocol.PeerDisconnected:
		p.onPeerDisconnected(f)
	case *protocol.ConnectionRequest:
		p.logger.Info("connection request", zap.String("from", f.From.ID), zap.String("name", f.From.Name))
		p.bus.Emit(bus.KindConnectionRequest, f.From)
	case *protocol.MessagesRead:
		p.onMessagesRead(f)
	case *protocol.ChatDeleted:
		p.onChatDeleted(f)
	default:
		p.logger.Debug("unhandled hub frame", zap.Any("frame", frame))
	}
}

func (p *Pipeline) onMessage(f *protocol.RelayedMessage) {
	if f.From == nil || f.From.ID == "" {
		p.logger.Warn("discarding message without sender")
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	id := f.MessageID
	if id == "" {
		id = p.newID()
	}
	name := f.From.Name
	if name == "" {
		name = protocol.DefaultName(f.From.ID)
	}
	msg := store.Message{
		ID:        id,
		PeerID:    f.From.ID,
		Content:   f.Content,
		Timestamp: p.now().UnixMilli(),
		IsSent:    false,
		Status:    store.StatusDelivered,
	}
	if err := p.db.AddMessage(f.From.ID, name, msg); err != nil {
		p.logger.Error("store inbound message", zap.String("from", f.From.ID), zap.Error(err))
		return
	}
	if _, err := p.db.SetChatOnline(f.From.ID, true, name); err != nil {
		p.logger.Warn("update chat presence", zap.Error(err))
	}
	p.bus.Emit(bus.KindChatUpdated, bus.ChatChange{PeerID: f.From.ID})

	if p.db.GetSettings().NotificationsEnabled {
		p.bus.Emit(bus.KindNotifyMessage, bus.IncomingMessage{
			PeerID:    f.From.ID,
			PeerName:  name,
			MessageID: id,
			Content:   f.Content,
		})
	}
}

func (p *Pipeline) onPeers(f *protocol.Peers) {
	p.mu.Lock()
	defer p.mu.Unlock()

	self := ""
	if profile := p.db.GetProfile(); profile != nil {
		self = profile.ID
	}
	p.peers = lo.Filter(f.Peers, func(peer protocol.Peer, _ int) bool { return peer.ID != self })
	p.bus.Emit(bus.KindPeersUpdated, len(p.peers))
}

func (p *Pipeline) onPeerConnected(f *protocol.PeerConnected) {
	p.mu.Lock()
	defer p.mu.Unlock()

	peer := f.Peer
	peer.IsConnected = true
	if _, idx, ok := lo.FindIndexOf(p.peers, func(existing protocol.Peer) bool { return existing.ID == peer.ID }); ok {
		p.peers[idx].IsConnected = true
	} else {
		p.peers = append(p.peers, peer)
	}
	p.bus.Emit(bus.KindPeersUpdated, len(p.peers))

	found, err := p.db.SetChatOnline(peer.ID, true, peer.Name)
	if err != nil {
		p.logger.Warn("update chat presence", zap.Error(err))
	} else if found {
		p.bus.Emit(bus.KindChatUpdated, bus.ChatChange{PeerID: peer.ID})
	}
}

func (p *Pipeline) onPeerDisconnected(f *protocol.PeerDisconnected) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i := range p.peers {
		if p.peers[i].ID == f.PeerID {
			p.peers[i].IsConnected = false
		}
	}
	p.bus.Emit(bus.KindPeersUpdated, len(p.peers))

	found, err := p.db.SetChatOnline(f.PeerID, false, "")
	if err != nil {
		p.logger.Warn("update chat presence", zap.Error(err))
	} else if found {
		p.bus.Emit(bus.KindChatUpdated, bus.ChatChange{PeerID: f.PeerID})
	}
}

func (p *Pipeline) onMessagesRead(f *protocol.MessagesRead) {
	p.mu.Lock()
	defer p.mu.Unlock()

	n, err := p.db.ApplyReadReceipt(f.From, f.MessageIDs, p.now().UnixMilli(), f.AutoDeleteAt)
	if err != nil {
		p.logger.Error("apply read receipt", zap.String("from", f.From), zap.Error(err))
		return
	}
	if n > 0 {
		p.bus.Emit(bus.KindChatUpdated, bus.ChatChange{PeerID: f.From})
	}
}

func (p *Pipeline) onChatDeleted(f *protocol.ChatDeleted) {
	p.mu.Lock()
	defer p.mu.Unlock()

	found, err := p.db.DeleteChat(f.From)
	if err != nil {
		p.logger.Error("delete chat on peer request", zap.String("from", f.From), zap.Error(err))
		return
	}
	if found {
		p.logger.Info("chat deleted by peer", zap.String("peer_id", f.From))
		p.bus.Emit(bus.KindChatDeleted, bus.ChatChange{PeerID: f.From})
	}
}
