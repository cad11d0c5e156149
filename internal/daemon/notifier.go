package daemon

import (
	"context"

	"github.com/matheus3301/meshchat/internal/bus"
	"github.com/matheus3301/meshchat/internal/protocol"
	"github.com/matheus3301/meshchat/internal/status"
	"go.uber.org/zap"
)

// Notifier surfaces user-facing events from the bus in the daemon log:
// incoming message notifications, connection requests and link changes.
type Notifier struct {
	bus    *bus.Bus
	logger *zap.Logger
	cancel context.CancelFunc
	done   chan struct{}
}

// NewNotifier creates a notifier over b.
func NewNotifier(b *bus.Bus, logger *zap.Logger) *Notifier {
	return &Notifier{bus: b, logger: logger.Named("notify")}
}

// Start subscribes to the bus. Subscription happens before Start returns.
func (n *Notifier) Start(ctx context.Context) {
	ctx, n.cancel = context.WithCancel(ctx)
	n.done = make(chan struct{})
	ch, unsub := n.bus.Subscribe("", 256)

	go func() {
		defer close(n.done)
		defer unsub()
		for {
			select {
			case evt := <-ch:
				n.handleEvent(evt)
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop ends the subscription and waits for the loop to exit.
func (n *Notifier) Stop() {
	if n.cancel == nil {
		return
	}
	n.cancel()
	<-n.done
}

func (n *Notifier) handleEvent(evt bus.Event) {
	switch evt.Kind {
	case bus.KindNotifyMessage:
		msg, ok := evt.Payload.(bus.IncomingMessage)
		if !ok {
			return
		}
		n.logger.Info("new message",
			zap.String("peer_id", msg.PeerID),
			zap.String("peer_name", msg.PeerName),
			zap.String("message_id", msg.MessageID))
	case bus.KindConnectionRequest:
		peer, ok := evt.Payload.(protocol.Peer)
		if !ok {
			return
		}
		n.logger.Info("peer wants to connect", zap.String("peer_id", peer.ID), zap.String("peer_name", peer.Name))
	case bus.KindLinkStatusChanged:
		change, ok := evt.Payload.(status.StatusChange)
		if !ok {
			return
		}
		n.logger.Info("link state changed", zap.String("from", string(change.From)), zap.String("to", string(change.To)))
	}
}
