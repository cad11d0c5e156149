package hub

import (
	"sort"
	"sync"

	"github.com/matheus3301/meshchat/internal/protocol"
)

type entry struct {
	client *Client
	peer   protocol.Peer
}

// Registry maps identity ids to the connection currently holding them.
// It is the only shared mutable state of the hub.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]entry
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]entry)}
}

// Put inserts or replaces the entry for peer.ID (last registration wins).
// It returns the client previously holding the id, if any.
func (r *Registry) Put(c *Client, peer protocol.Peer) *Client {
	r.mu.Lock()
	defer r.mu.Unlock()
	prev, ok := r.entries[peer.ID]
	r.entries[peer.ID] = entry{client: c, peer: peer}
	if !ok {
		return nil
	}
	return prev.client
}

// RemoveIfOwner deletes the entry for id only while c still holds it.
func (r *Registry) RemoveIfOwner(id string, c *Client) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	if !ok || e.client != c {
		return false
	}
	delete(r.entries, id)
	return true
}

// Lookup returns the client and peer registered under id.
func (r *Registry) Lookup(id string) (*Client, protocol.Peer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[id]
	return e.client, e.peer, ok
}

// Clients returns a snapshot of registered connections keyed by identity id.
func (r *Registry) Clients() map[string]*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]*Client, len(r.entries))
	for id, e := range r.entries {
		out[id] = e.client
	}
	return out
}

// Peers returns the registered peers sorted by id.
func (r *Registry) Peers() []protocol.Peer {
	r.mu.RLock()
	out := make([]protocol.Peer, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.peer)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Len returns the number of registered identities.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
