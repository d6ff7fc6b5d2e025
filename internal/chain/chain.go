// Package chain implements the Chain/Fork Manager: the fork
// tree, candidate-block production, proposal checking, and commit with
// longest-chain finalization under a block-delay confirmation buffer.
package chain

import (
	"context"
	"fmt"
	"sync"

	"github.com/klingnet-chain/controller/internal/archive"
	"github.com/klingnet-chain/controller/internal/auth"
	"github.com/klingnet-chain/controller/internal/log"
	"github.com/klingnet-chain/controller/internal/mempool"
	"github.com/klingnet-chain/controller/internal/services"
	"github.com/klingnet-chain/controller/internal/types"
	"github.com/rs/zerolog"
)

// Storage regions making up the finalize write set.
const (
	RegionMeta         uint8 = 0
	RegionTx           uint8 = 1
	RegionHeader       uint8 = 2
	RegionCompactBody  uint8 = 3
	RegionBlockHash    uint8 = 4
	RegionProof        uint8 = 5
	RegionExecutedHash uint8 = 6
	RegionTxIndex      uint8 = 7
	RegionHashToHeight uint8 = 8
)

// ForceInSync is the peer-height gap past which the node forces sync mode
// even with a non-empty fork tree level 0.
const ForceInSync = 6

// candidateBlock is the single in-flight proposal this node is building or
// has built, cleared on every successful commit.
type candidateBlock struct {
	height uint64
	hash   types.Hash
	block  *types.Block
}

// Chain is the fork tree, main-chain selection, and finalization engine.
// It holds shared ownership of the Authenticator and Pool so finalize can
// update both under the documented lock order: Chain →
// Authenticator → Pool.
type Chain struct {
	mu sync.RWMutex

	blockNumber      uint64
	blockHash        types.Hash
	blockDelayNumber uint64

	// forkTree[i] holds every known block at height blockNumber+i+1.
	forkTree []map[types.Hash]*types.Block
	// mainChain is the ordered sequence of selected block hashes above
	// the finalized head.
	mainChain []types.Hash
	// mainChainTxHash is the flat set of tx hashes across mainChain, for
	// O(1) in-flight dedup.
	mainChainTxHash map[types.Hash]struct{}

	candidate *candidateBlock

	auth *auth.Authenticator
	pool *mempool.Pool

	storage   services.Storage
	kms       services.KMS
	executor  services.Executor
	consensus services.Consensus
	network   services.Network

	genesis     *types.Block
	nodeAddress types.Address
	archive     *archive.Writer

	// globalHeight is the highest peer-reported chain height, fed by
	// chain_status gossip and consulted by NextStep.
	globalHeight uint64

	logger zerolog.Logger
}

// Config collects the constructor dependencies for a Chain.
type Config struct {
	BlockDelayNumber uint64
	Authenticator    *auth.Authenticator
	Pool             *mempool.Pool
	Storage          services.Storage
	KMS              services.KMS
	Executor         services.Executor
	Consensus        services.Consensus
	Network          services.Network
	NodeAddress      types.Address
	Genesis          *types.Block
	Archive          *archive.Writer
}

// forkTreeSize is the canonical fork-tree depth.
func forkTreeSize(blockDelayNumber uint64) int {
	return int(2*blockDelayNumber + 2)
}

// New builds a Chain. Callers must call Init before using it.
func New(cfg Config) *Chain {
	return &Chain{
		blockDelayNumber: cfg.BlockDelayNumber,
		forkTree:         newForkTree(forkTreeSize(cfg.BlockDelayNumber)),
		mainChainTxHash:  make(map[types.Hash]struct{}),
		auth:             cfg.Authenticator,
		pool:             cfg.Pool,
		storage:          cfg.Storage,
		kms:              cfg.KMS,
		executor:         cfg.Executor,
		consensus:        cfg.Consensus,
		network:          cfg.Network,
		nodeAddress:      cfg.NodeAddress,
		genesis:          cfg.Genesis,
		archive:          cfg.Archive,
		logger:           log.WithComponent("chain"),
	}
}

func newForkTree(size int) []map[types.Hash]*types.Block {
	levels := make([]map[types.Hash]*types.Block, size)
	for i := range levels {
		levels[i] = make(map[types.Hash]*types.Block)
	}
	return levels
}

// Init recovers (or synthesizes) the finalized height and hash, and
// backfills the Authenticator's history window.
func (c *Chain) Init(ctx context.Context) error {
	heightBytes, err := c.storage.LoadMaybeEmpty(ctx, RegionMeta, encodeUint64(0))
	if err != nil {
		return fmt.Errorf("load finalized height: %w", err)
	}

	if len(heightBytes) == 0 {
		c.logger.Info().Msg("no finalized height found, finalizing genesis")
		return c.finalizeGenesis(ctx)
	}

	height, err := decodeUint64(heightBytes)
	if err != nil {
		return fmt.Errorf("decode finalized height: %w", err)
	}
	hashBytes, err := c.storage.Load(ctx, RegionMeta, encodeUint64(1))
	if err != nil {
		return fmt.Errorf("load finalized hash: %w", err)
	}
	hash, err := types.BytesToHash(hashBytes)
	if err != nil {
		return fmt.Errorf("decode finalized hash: %w", err)
	}

	c.mu.Lock()
	c.blockNumber = height
	c.blockHash = hash
	c.mu.Unlock()

	return c.auth.Init(ctx, height)
}

func (c *Chain) finalizeGenesis(ctx context.Context) error {
	if c.genesis == nil {
		return fmt.Errorf("no genesis block configured")
	}
	hash := c.genesis.Hash(func(b []byte) types.Hash { return hashHelper(ctx, c.kms, b) })
	if err := c.finalizeBlock(ctx, c.genesis, hash); err != nil {
		return fmt.Errorf("finalize genesis: %w", err)
	}

	c.mu.Lock()
	c.blockNumber = 0
	c.blockHash = hash
	c.mu.Unlock()

	return c.auth.Init(ctx, 0)
}

// hashHelper adapts the KMS façade to Block.Hash's synchronous callback
// shape. It is only ever used for the genesis block, the one place a hash
// is needed before any ctx-threaded call has already run.
func hashHelper(ctx context.Context, kms services.KMS, data []byte) types.Hash {
	h, err := kms.Hash(ctx, data)
	if err != nil {
		panic(fmt.Sprintf("chain: kms hash unavailable during genesis: %v", err))
	}
	return h
}

// BlockNumber returns the finalized height.
func (c *Chain) BlockNumber() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.blockNumber
}

// BlockHash returns the finalized head hash.
func (c *Chain) BlockHash() types.Hash {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.blockHash
}

// MainChainLen returns the number of unfinalized blocks currently selected
// as the main chain tip sequence.
func (c *Chain) MainChainLen() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.mainChain)
}

// ForkTreeLen returns the current fork-tree depth (always forkTreeSize
// after every commit).
func (c *Chain) ForkTreeLen() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.forkTree)
}

// Status returns a ChainStatus snapshot of the current head.
func (c *Chain) Status(chainID types.Hash) types.ChainStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()
	addr := c.nodeAddress
	return types.ChainStatus{
		ChainID: chainID,
		Height:  c.blockNumber,
		Hash:    c.blockHash,
		Address: &addr,
	}
}

func encodeUint64(v uint64) []byte {
	w := types.NewWriter()
	w.PutUint64(v)
	return w.Bytes()
}

func decodeUint64(b []byte) (uint64, error) {
	r := types.NewReader(b)
	return r.Uint64()
}
