package services

import (
	"context"
	"sync"
)

// LocalNetwork is a loopback Network driver for single-binary operation
// and tests: broadcasts are recorded (and optionally delivered to a local
// handler) instead of leaving the process.
type LocalNetwork struct {
	mu        sync.RWMutex
	handler   func(NetworkMsg)
	broadcast []NetworkMsg
	peerCount int
}

// NewLocalNetwork builds a loopback Network.
func NewLocalNetwork() *LocalNetwork { return &LocalNetwork{} }

// SetHandler registers a callback receiving every broadcast message.
func (n *LocalNetwork) SetHandler(fn func(NetworkMsg)) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.handler = fn
}

// SetPeerCount fixes the value PeerCount reports.
func (n *LocalNetwork) SetPeerCount(count int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.peerCount = count
}

func (n *LocalNetwork) Broadcast(ctx context.Context, msg NetworkMsg) error {
	n.mu.Lock()
	n.broadcast = append(n.broadcast, msg)
	handler := n.handler
	n.mu.Unlock()
	if handler != nil {
		handler(msg)
	}
	return nil
}

func (n *LocalNetwork) RegisterHandler(ctx context.Context, module, hostname string, port int) error {
	return nil
}

func (n *LocalNetwork) PeerCount(ctx context.Context) (int, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.peerCount, nil
}

// Broadcasts returns every message broadcast so far.
func (n *LocalNetwork) Broadcasts() []NetworkMsg {
	n.mu.RLock()
	defer n.mu.RUnlock()
	out := make([]NetworkMsg, len(n.broadcast))
	copy(out, n.broadcast)
	return out
}
