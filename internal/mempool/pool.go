// Package mempool implements the Pool: a bounded,
// insertion-ordered set of admitted-but-unfinalized transactions.
package mempool

import (
	"sync"

	"github.com/klingnet-chain/controller/internal/types"
)

// DefaultCapacity is the Pool's default bound on live entries.
const DefaultCapacity = 500

// Pool holds admitted transactions awaiting inclusion in a proposal.
type Pool struct {
	mu       sync.RWMutex
	entries  map[types.Hash]*types.RawTransaction
	order    []types.Hash // insertion order, for packaging fairness
	capacity int
}

// New creates a Pool with the given capacity (DefaultCapacity if <= 0).
func New(capacity int) *Pool {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Pool{
		entries:  make(map[types.Hash]*types.RawTransaction),
		capacity: capacity,
	}
}

// Enqueue inserts raw under hash if capacity allows and the hash is new.
// Returns false on duplicate or when at capacity.
func (p *Pool) Enqueue(raw *types.RawTransaction, hash types.Hash) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, exists := p.entries[hash]; exists {
		return false
	}
	if len(p.entries) >= p.capacity {
		return false
	}
	p.entries[hash] = raw
	p.order = append(p.order, hash)
	return true
}

// Package returns up to the pool's full contents in insertion order,
// skipping any Normal transaction whose valid_until_block has already
// elapsed by nextHeight.
func (p *Pool) Package(nextHeight uint64) ([]types.Hash, []types.RawTransaction) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	hashes := make([]types.Hash, 0, len(p.order))
	txs := make([]types.RawTransaction, 0, len(p.order))
	for _, h := range p.order {
		raw, ok := p.entries[h]
		if !ok {
			continue
		}
		if raw.Kind == types.TxKindNormal && raw.Normal != nil && raw.Normal.Transaction != nil {
			if raw.Normal.Transaction.ValidUntilBlock <= nextHeight {
				continue
			}
		}
		hashes = append(hashes, h)
		txs = append(txs, *raw)
	}
	return hashes, txs
}

// Update removes every hash in hashes from the pool. Called exactly once
// per finalized block, from chain.finalizeBlock.
func (p *Pool) Update(hashes []types.Hash) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(hashes) == 0 {
		return
	}
	remove := make(map[types.Hash]struct{}, len(hashes))
	for _, h := range hashes {
		remove[h] = struct{}{}
		delete(p.entries, h)
	}
	kept := p.order[:0]
	for _, h := range p.order {
		if _, gone := remove[h]; gone {
			continue
		}
		kept = append(kept, h)
	}
	p.order = kept
}

// Get returns the raw transaction for hash, or nil if absent.
func (p *Pool) Get(hash types.Hash) *types.RawTransaction {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.entries[hash]
}

// Len returns the number of live entries.
func (p *Pool) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.entries)
}
