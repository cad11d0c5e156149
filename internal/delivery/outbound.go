package delivery

import (
	"errors"
	"fmt"
	"strings"

	"github.com/matheus3301/meshchat/internal/bus"
	"github.com/matheus3301/meshchat/internal/link"
	"github.com/matheus3301/meshchat/internal/protocol"
	"github.com/matheus3301/meshchat/internal/store"
	"go.uber.org/zap"
)

// SendMessage stores a new outgoing message and relays it. The message is
// written as sending before anything goes on the wire. It goes out only
// while the link is open and then advances to sent; a failed write moves it
// to failed instead. It is never queued or retried.
func (p *Pipeline) SendMessage(peerID, content string) (store.Message, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return store.Message{}, ErrEmptyContent
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	profile := p.db.GetProfile()
	if profile == nil {
		return store.Message{}, ErrNoIdentity
	}

	msg := store.Message{
		ID:        p.newID(),
		PeerID:    peerID,
		Content:   content,
		Timestamp: p.now().UnixMilli(),
		IsSent:    true,
		Status:    store.StatusSending,
	}
	if err := p.db.AddMessage(peerID, p.peerNameLocked(peerID), msg); err != nil {
		return store.Message{}, fmt.Errorf("store message: %w", err)
	}
	p.bus.Emit(bus.KindChatUpdated, bus.ChatChange{PeerID: peerID})

	next := store.StatusSent
	err := p.link.Send(protocol.OutboundMessage{
		Type:      protocol.TypeMessage,
		To:        peerID,
		Content:   content,
		From:      profile,
		MessageID: msg.ID,
	})
	switch {
	case errors.Is(err, link.ErrNotOpen):
		p.logger.Debug("link down, message kept locally", zap.String("to", peerID), zap.String("message_id", msg.ID))
	case err != nil:
		p.logger.Info("message not relayed", zap.String("to", peerID), zap.String("message_id", msg.ID), zap.Error(err))
		next = store.StatusFailed
	}

	if _, err := p.db.UpdateMessageStatus(peerID, msg.ID, next); err != nil {
		return msg, fmt.Errorf("update message status: %w", err)
	}
	msg.Status = next
	p.bus.Emit(bus.KindChatUpdated, bus.ChatChange{PeerID: peerID})
	return msg, nil
}

// MarkAsRead marks the conversation's received messages read and returns the
// ids that changed. The sender is told over the link when it is open; with
// auto-delete enabled both sides expire those messages after the timer.
func (p *Pipeline) MarkAsRead(peerID string) ([]string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now().UnixMilli()
	ids, err := p.db.MarkChatRead(peerID, now)
	if err != nil {
		return nil, fmt.Errorf("mark read: %w", err)
	}
	if len(ids) == 0 {
		return ids, nil
	}
	p.bus.Emit(bus.KindChatUpdated, bus.ChatChange{PeerID: peerID})

	var autoDeleteAt *int64
	if settings := p.db.GetSettings(); settings.AutoDeleteEnabled {
		at := now + settings.AutoDeleteAfterMillis()
		autoDeleteAt = &at
	}

	if p.link.IsOpen() {
		err := p.link.Send(protocol.MarkRead{
			Type:         protocol.TypeMessagesRead,
			To:           peerID,
			MessageIDs:   ids,
			AutoDeleteAt: autoDeleteAt,
		})
		if err != nil {
			p.logger.Warn("read receipt not sent", zap.String("to", peerID), zap.Error(err))
		}
	}

	if autoDeleteAt != nil {
		if err := p.db.StampAutoDelete(peerID, ids, *autoDeleteAt); err != nil {
			return ids, fmt.Errorf("stamp auto-delete: %w", err)
		}
	}
	return ids, nil
}

// DeleteChat removes the conversation with peerID. With notifyPeer set and
// the link open, the peer is told first so it drops its copy too.
func (p *Pipeline) DeleteChat(peerID string, notifyPeer bool) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if notifyPeer && p.link.IsOpen() {
		if err := p.link.Send(protocol.DeleteChat{Type: protocol.TypeDeleteChat, To: peerID}); err != nil {
			p.logger.Warn("delete notice not sent", zap.String("to", peerID), zap.Error(err))
		}
	}
	found, err := p.db.DeleteChat(peerID)
	if err != nil {
		return false, fmt.Errorf("delete chat: %w", err)
	}
	if found {
		p.bus.Emit(bus.KindChatDeleted, bus.ChatChange{PeerID: peerID})
	}
	return found, nil
}
