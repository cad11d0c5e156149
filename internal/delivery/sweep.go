package delivery

import (
	"context"
	"time"

	"github.com/matheus3301/meshchat/internal/bus"
	"go.uber.org/zap"
)

// SweepInterval is how often expired messages are removed.
const SweepInterval = 30 * time.Second

type sweeper struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Sweep removes every message whose auto-delete time has passed and returns
// how many were removed.
func (p *Pipeline) Sweep() (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	removed, err := p.db.SweepExpired(p.now().UnixMilli())
	if err != nil {
		return 0, err
	}
	if removed > 0 {
		p.logger.Info("expired messages removed", zap.Int("count", removed))
		p.bus.Emit(bus.KindChatUpdated, bus.ChatChange{})
	}
	return removed, nil
}

// Start begins the periodic auto-delete sweep.
func (p *Pipeline) Start(ctx context.Context) {
	ctx, p.sweeper.cancel = context.WithCancel(ctx)
	p.sweeper.done = make(chan struct{})
	go p.sweepLoop(ctx, p.sweeper.done)
}

// Stop ends the sweep loop and waits for it to exit.
func (p *Pipeline) Stop() {
	if p.sweeper.cancel == nil {
		return
	}
	p.sweeper.cancel()
	<-p.sweeper.done
}

func (p *Pipeline) sweepLoop(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := p.Sweep(); err != nil {
				p.logger.Error("auto-delete sweep failed", zap.Error(err))
			}
		case <-ctx.Done():
			return
		}
	}
}
