// Package delivery turns user intents and hub frames into store mutations
// and outbound frames.
package delivery

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/matheus3301/meshchat/internal/bus"
	"github.com/matheus3301/meshchat/internal/protocol"
	"github.com/matheus3301/meshchat/internal/store"
	"go.uber.org/zap"
)

// AvatarCount is the number of selectable avatars.
const AvatarCount = 4

var (
	ErrNoIdentity     = errors.New("no local identity")
	ErrEmptyContent   = errors.New("message content is empty")
	ErrInvalidProfile = errors.New("invalid profile")
)

// Link is the hub connection as seen by the pipeline.
type Link interface {
	Send(frame any) error
	IsOpen() bool
}

// Pipeline serializes every mutation of the local store. Its methods are
// safe for concurrent use; operations on one conversation apply in call order.
type Pipeline struct {
	db     *store.DB
	link   Link
	bus    *bus.Bus
	logger *zap.Logger
	now    func() time.Time
	newID  func() string

	mu       sync.Mutex
	peers    []protocol.Peer
	scanning bool

	sweeper
}

// New creates a pipeline over db and link.
func New(db *store.DB, link Link, b *bus.Bus, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &Pipeline{
		db:     db,
		link:   link,
		bus:    b,
		logger: logger,
		now:    time.Now,
		peers:  []protocol.Peer{},
	}
	p.newID = func() string { return NewMessageID(p.now()) }
	return p
}

// NewMessageID returns "<unix ms>-<9 random characters>".
func NewMessageID(now time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:9]
	return strconv.FormatInt(now.UnixMilli(), 10) + "-" + suffix
}

// NewIdentity generates a fresh device identity.
func NewIdentity() protocol.Profile {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	return protocol.Profile{
		ID:          id,
		Name:        protocol.DefaultName(id),
		AvatarIndex: rand.IntN(AvatarCount),
	}
}

// EnsureIdentity returns the stored identity, creating and persisting one on
// first run.
func (p *Pipeline) EnsureIdentity() (protocol.Profile, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if existing := p.db.GetProfile(); existing != nil {
		return *existing, nil
	}
	profile := NewIdentity()
	if err := p.db.SaveProfile(profile); err != nil {
		return protocol.Profile{}, fmt.Errorf("save identity: %w", err)
	}
	p.logger.Info("identity created", zap.String("id", profile.ID), zap.String("name", profile.Name))
	return profile, nil
}

// Profile returns the local identity, or nil before one exists.
func (p *Pipeline) Profile() *protocol.Profile {
	return p.db.GetProfile()
}

// UpdateProfile persists a new display name and avatar and, when the link is
// open, re-registers so the hub sees the change.
func (p *Pipeline) UpdateProfile(name string, avatarIndex int) (protocol.Profile, error) {
	name = strings.TrimSpace(name)
	if name == "" || avatarIndex < 0 || avatarIndex >= AvatarCount {
		return protocol.Profile{}, ErrInvalidProfile
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	current := p.db.GetProfile()
	if current == nil {
		return protocol.Profile{}, ErrNoIdentity
	}
	updated := protocol.Profile{ID: current.ID, Name: name, AvatarIndex: avatarIndex}
	if err := p.db.SaveProfile(updated); err != nil {
		return protocol.Profile{}, fmt.Errorf("save profile: %w", err)
	}
	if p.link.IsOpen() {
		if err := p.link.Send(protocol.Register{Type: protocol.TypeRegister, Profile: &updated}); err != nil {
			p.logger.Warn("re-register failed", zap.Error(err))
		}
	}
	return updated, nil
}

// Settings returns the persisted settings.
func (p *Pipeline) Settings() store.Settings {
	return p.db.GetSettings()
}

// UpdateSettings merges a partial update into the persisted settings.
func (p *Pipeline) UpdateSettings(patch store.SettingsPatch) (store.Settings, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.db.UpdateSettings(patch)
}

// Chats returns every conversation.
func (p *Pipeline) Chats() []store.Chat {
	return p.db.GetChats()
}

// Chat returns one conversation, or nil.
func (p *Pipeline) Chat(peerID string) *store.Chat {
	return p.db.GetChat(peerID)
}

// Peers returns a copy of the live peer list.
func (p *Pipeline) Peers() []protocol.Peer {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]protocol.Peer, len(p.peers))
	copy(out, p.peers)
	return out
}

// Scanning reports whether a scan is in progress.
func (p *Pipeline) Scanning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.scanning
}

// StartScan marks scanning and asks the hub for a fresh peer snapshot.
func (p *Pipeline) StartScan() error {
	p.mu.Lock()
	p.scanning = true
	p.mu.Unlock()
	return p.link.Send(protocol.Scan{Type: protocol.TypeScan})
}

// StopScan clears the scanning flag. Nothing is sent.
func (p *Pipeline) StopScan() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.scanning = false
}

// ConnectToPeer notifies peerID that this device wants to talk.
func (p *Pipeline) ConnectToPeer(peerID string) error {
	return p.link.Send(protocol.Connect{Type: protocol.TypeConnect, PeerID: peerID})
}

// ClearAllData removes every conversation and restores default settings.
// The identity is kept.
func (p *Pipeline) ClearAllData() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.db.ClearChats(); err != nil {
		return fmt.Errorf("clear chats: %w", err)
	}
	if err := p.db.SaveSettings(store.DefaultSettings()); err != nil {
		return fmt.Errorf("reset settings: %w", err)
	}
	p.logger.Info("local data cleared")
	p.bus.Emit(bus.KindChatDeleted, bus.ChatChange{})
	return nil
}

// peerNameLocked picks the display name for a conversation with peerID.
func (p *Pipeline) peerNameLocked(peerID string) string {
	for _, peer := range p.peers {
		if peer.ID == peerID && peer.Name != "" {
			return peer.Name
		}
	}
	if chat := p.db.GetChat(peerID); chat != nil && chat.PeerName != "" {
		return chat.PeerName
	}
	return "Unknown"
}
