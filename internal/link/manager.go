package link

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/matheus3301/meshchat/internal/bus"
	"github.com/matheus3301/meshchat/internal/protocol"
	"github.com/matheus3301/meshchat/internal/status"
	"go.uber.org/zap"
)

// ReconnectDelay is the fixed wait before redialing a dropped hub link.
const ReconnectDelay = 3000 * time.Millisecond

const writeTimeout = 10 * time.Second

// ErrNotOpen is returned by Send when the link is not open. Frames are never
// queued for later delivery.
var ErrNotOpen = errors.New("link not open")

// Conn is one established hub connection.
type Conn interface {
	Read(ctx context.Context) ([]byte, error)
	Write(ctx context.Context, data []byte) error
	Close() error
}

// Dialer opens hub connections.
type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

// Timer is a pending reconnect.
type Timer interface {
	Stop() bool
}

// Scheduler runs f once after d.
type Scheduler func(d time.Duration, f func()) Timer

func afterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// Handler receives every decoded hub frame, in arrival order.
type Handler func(frame any)

// Options configure a Manager.
type Options struct {
	URL            string
	Dialer         Dialer
	Identity       func() *protocol.Profile
	ReconnectDelay time.Duration
	Schedule       Scheduler
}

// Manager owns the single link between this device and the relay hub. It
// dials, registers, dispatches inbound frames and redials after a drop.
type Manager struct {
	url      string
	dialer   Dialer
	identity func() *protocol.Profile
	delay    time.Duration
	schedule Scheduler
	machine  *status.Machine
	bus      *bus.Bus
	logger   *zap.Logger

	mu       sync.Mutex
	handler  Handler
	conn     Conn
	cancel   context.CancelFunc
	gen      uint64
	timer    Timer
	tornDown bool
}

// NewManager creates a disconnected manager.
func NewManager(opts Options, machine *status.Machine, b *bus.Bus, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = ReconnectDelay
	}
	if opts.Schedule == nil {
		opts.Schedule = afterFunc
	}
	if opts.Identity == nil {
		opts.Identity = func() *protocol.Profile { return nil }
	}
	if machine == nil {
		machine = status.NewMachine(b)
	}
	return &Manager{
		url:      opts.URL,
		dialer:   opts.Dialer,
		identity: opts.Identity,
		delay:    opts.ReconnectDelay,
		schedule: opts.Schedule,
		machine:  machine,
		bus:      b,
		logger:   logger,
	}
}

// SetHandler installs the inbound frame handler.
func (m *Manager) SetHandler(h Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handler = h
}

// State returns the current link state.
func (m *Manager) State() status.State {
	return m.machine.Current()
}

// IsOpen reports whether frames can be sent right now.
func (m *Manager) IsOpen() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.conn != nil && m.machine.Current() == status.Open
}

// Connect starts a dial unless one is in flight or the link is open. It
// returns immediately; the outcome is observable through the state machine.
func (m *Manager) Connect() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.tornDown {
		return
	}
	switch m.machine.Current() {
	case status.Connecting, status.Open:
		return
	case status.Closed:
		_ = m.machine.Transition(status.Disconnected)
	}
	m.stopTimerLocked()

	m.gen++
	gen := m.gen
	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	if err := m.machine.Transition(status.Connecting); err != nil {
		m.logger.Error("link state", zap.Error(err))
	}
	m.logger.Info("connecting to hub", zap.String("url", m.url))
	go m.run(ctx, gen)
}

// Teardown stops the link for good: the pending reconnect is cancelled, an
// in-flight dial is discarded when it completes and the open connection is
// closed without re-arming a reconnect.
func (m *Manager) Teardown() {
	m.mu.Lock()
	m.tornDown = true
	m.stopTimerLocked()
	m.gen++
	conn := m.conn
	m.conn = nil
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	switch m.machine.Current() {
	case status.Open:
		_ = m.machine.Transition(status.Closed)
		_ = m.machine.Transition(status.Disconnected)
	case status.Connecting, status.Closed:
		_ = m.machine.Transition(status.Disconnected)
	}
	m.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
	m.logger.Info("hub link torn down")
}

// Send encodes and writes one frame. It returns ErrNotOpen when the link is
// not open. A write error closes the connection, which schedules a reconnect.
func (m *Manager) Send(frame any) error {
	m.mu.Lock()
	conn := m.conn
	open := conn != nil && m.machine.Current() == status.Open
	m.mu.Unlock()
	if !open {
		return ErrNotOpen
	}

	data, err := protocol.Encode(frame)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if err := conn.Write(ctx, data); err != nil {
		_ = conn.Close()
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

// run dials, registers and then reads until the connection drops.
func (m *Manager) run(ctx context.Context, gen uint64) {
	conn, err := m.dialer.Dial(ctx, m.url)

	m.mu.Lock()
	if gen != m.gen || m.tornDown {
		m.mu.Unlock()
		if conn != nil {
			_ = conn.Close()
		}
		return
	}
	if err != nil {
		m.logger.Warn("hub dial failed", zap.Error(err))
		m.cancel()
		m.cancel = nil
		_ = m.machine.Transition(status.Closed)
		m.droppedLocked()
		m.mu.Unlock()
		return
	}
	m.conn = conn
	_ = m.machine.Transition(status.Open)
	profile := m.identity()
	m.mu.Unlock()

	m.logger.Info("hub link open")
	m.bus.Emit(bus.KindLinkRegistered, nil)
	if profile != nil {
		if err := m.Send(protocol.Register{Type: protocol.TypeRegister, Profile: profile}); err != nil {
			m.logger.Warn("register failed", zap.Error(err))
		}
	}

	m.readLoop(ctx, gen, conn)
}

func (m *Manager) readLoop(ctx context.Context, gen uint64, conn Conn) {
	for {
		data, err := conn.Read(ctx)
		if err != nil {
			m.closed(gen, conn, err)
			return
		}
		frame, err := protocol.ParseHubFrame(data)
		if err != nil {
			m.logger.Warn("discarding hub frame", zap.Error(err))
			continue
		}
		m.mu.Lock()
		h := m.handler
		m.mu.Unlock()
		if h != nil {
			h(frame)
		}
	}
}

// closed handles the end of the connection opened under gen.
func (m *Manager) closed(gen uint64, conn Conn, cause error) {
	_ = conn.Close()

	m.mu.Lock()
	defer m.mu.Unlock()
	if gen != m.gen || m.tornDown {
		return
	}
	m.logger.Info("hub link closed", zap.Error(cause))
	m.conn = nil
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	_ = m.machine.Transition(status.Closed)
	m.droppedLocked()
}

// droppedLocked moves a closed link back to Disconnected and arms the single
// reconnect timer.
func (m *Manager) droppedLocked() {
	_ = m.machine.Transition(status.Disconnected)
	m.bus.Emit(bus.KindLinkDisconnected, nil)

	m.stopTimerLocked()
	m.timer = m.schedule(m.delay, m.Connect)
	m.logger.Debug("reconnect scheduled", zap.Duration("delay", m.delay))
}

func (m *Manager) stopTimerLocked() {
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
}
