package services

import (
	"context"
	"sync"

	"github.com/klingnet-chain/controller/internal/types"
)

// LocalConsensus is a trivial in-process Consensus driver for single-binary
// operation and tests: it tracks the validator set and block interval
// pushed via Reconfigure and accepts every check_block call. It makes no
// claim to implement an actual consensus algorithm — the real one is
// always out of scope for the controller and lives in a
// separate process in production.
type LocalConsensus struct {
	mu               sync.RWMutex
	height           uint64
	blockInterval    uint32
	validators       [][]byte
	reconfigureCalls int
}

// NewLocalConsensus builds an in-process Consensus driver.
func NewLocalConsensus() *LocalConsensus { return &LocalConsensus{} }

func (c *LocalConsensus) Reconfigure(ctx context.Context, cfg types.ConsensusConfiguration) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.height = cfg.Height
	c.blockInterval = cfg.BlockInterval
	c.validators = cfg.Validators
	c.reconfigureCalls++
	return true, nil
}

// ReconfigureCalls returns how many times Reconfigure has been invoked.
func (c *LocalConsensus) ReconfigureCalls() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.reconfigureCalls
}

func (c *LocalConsensus) CheckBlock(ctx context.Context, height uint64, proposalBytes, proof []byte) (bool, error) {
	return true, nil
}

// Validators returns the last validator set pushed via Reconfigure.
func (c *LocalConsensus) Validators() [][]byte {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.validators
}
