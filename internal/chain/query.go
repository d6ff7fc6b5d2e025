package chain

import (
	"context"

	"github.com/klingnet-chain/controller/internal/sysconfig"
	"github.com/klingnet-chain/controller/internal/types"
)

// BlockNumberFlag selects which height GetBlockNumber reports.
type BlockNumberFlag bool

const (
	// Finalized reports the last finalized height.
	Finalized BlockNumberFlag = false
	// Pending includes the unfinalized main-chain tip.
	Pending BlockNumberFlag = true
)

// GetBlockNumber returns the finalized height, or the pending tip height
// when flag is Pending.
func (c *Chain) GetBlockNumber(flag BlockNumberFlag) uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if flag == Pending {
		return c.blockNumber + uint64(len(c.mainChain))
	}
	return c.blockNumber
}

// GetBlockHash loads the hash of the finalized block at height.
func (c *Chain) GetBlockHash(ctx context.Context, height uint64) (types.Hash, error) {
	b, err := c.storage.LoadMaybeEmpty(ctx, RegionBlockHash, encodeUint64(height))
	if err != nil {
		return types.Hash{}, types.WrapCoreError(types.ErrInternal, "load block hash", err)
	}
	if len(b) == 0 {
		return types.Hash{}, types.NewCoreError(types.ErrInternal, "no block at that height")
	}
	hash, err := types.BytesToHash(b)
	if err != nil {
		return types.Hash{}, types.WrapCoreError(types.ErrDecode, "decode block hash", err)
	}
	return hash, nil
}

// GetBlockByNumber loads the finalized header and compact body at height.
func (c *Chain) GetBlockByNumber(ctx context.Context, height uint64) (*types.Header, *types.CompactBody, error) {
	headerBytes, err := c.storage.LoadMaybeEmpty(ctx, RegionHeader, encodeUint64(height))
	if err != nil {
		return nil, nil, types.WrapCoreError(types.ErrInternal, "load block header", err)
	}
	if len(headerBytes) == 0 {
		return nil, nil, types.NewCoreError(types.ErrInternal, "no block at that height")
	}
	header, err := types.DecodeHeader(headerBytes)
	if err != nil {
		return nil, nil, types.WrapCoreError(types.ErrDecode, "decode block header", err)
	}

	bodyBytes, err := c.storage.LoadMaybeEmpty(ctx, RegionCompactBody, encodeUint64(height))
	if err != nil {
		return nil, nil, types.WrapCoreError(types.ErrInternal, "load block body", err)
	}
	body := &types.CompactBody{}
	if len(bodyBytes) > 0 {
		if body, err = types.DecodeCompactBody(bodyBytes); err != nil {
			return nil, nil, types.WrapCoreError(types.ErrDecode, "decode block body", err)
		}
	}
	return header, body, nil
}

// GetBlockByHash resolves a block hash to its height via region 8, then
// loads the block.
func (c *Chain) GetBlockByHash(ctx context.Context, hash types.Hash) (uint64, *types.Header, *types.CompactBody, error) {
	heightBytes, err := c.storage.LoadMaybeEmpty(ctx, RegionHashToHeight, hash.Bytes())
	if err != nil {
		return 0, nil, nil, types.WrapCoreError(types.ErrInternal, "load block height", err)
	}
	if len(heightBytes) == 0 {
		return 0, nil, nil, types.NewCoreError(types.ErrInternal, "no block with that hash")
	}
	height, err := decodeUint64(heightBytes)
	if err != nil {
		return 0, nil, nil, types.WrapCoreError(types.ErrDecode, "decode block height", err)
	}
	header, body, err := c.GetBlockByNumber(ctx, height)
	if err != nil {
		return 0, nil, nil, err
	}
	return height, header, body, nil
}

// GetTransaction looks a transaction up in the pool first, then in
// finalized storage (region 1).
func (c *Chain) GetTransaction(ctx context.Context, txHash types.Hash) (*types.RawTransaction, error) {
	if raw := c.pool.Get(txHash); raw != nil {
		return raw, nil
	}
	b, err := c.storage.LoadMaybeEmpty(ctx, RegionTx, txHash.Bytes())
	if err != nil {
		return nil, types.WrapCoreError(types.ErrInternal, "load transaction", err)
	}
	if len(b) == 0 {
		return nil, types.NewCoreError(types.ErrInternal, "transaction not found")
	}
	raw, err := types.DecodeRawTransaction(b)
	if err != nil {
		return nil, types.WrapCoreError(types.ErrDecode, "decode transaction", err)
	}
	return raw, nil
}

// GetTransactionBlockNumber returns the height of the finalized block
// containing txHash.
func (c *Chain) GetTransactionBlockNumber(ctx context.Context, txHash types.Hash) (uint64, error) {
	height, _, err := c.loadTxIndex(ctx, txHash)
	return height, err
}

// GetTransactionIndex returns the position of txHash inside its block.
func (c *Chain) GetTransactionIndex(ctx context.Context, txHash types.Hash) (uint64, error) {
	_, index, err := c.loadTxIndex(ctx, txHash)
	return index, err
}

func (c *Chain) loadTxIndex(ctx context.Context, txHash types.Hash) (uint64, uint64, error) {
	b, err := c.storage.LoadMaybeEmpty(ctx, RegionTxIndex, txHash.Bytes())
	if err != nil {
		return 0, 0, types.WrapCoreError(types.ErrInternal, "load transaction index", err)
	}
	if len(b) == 0 {
		return 0, 0, types.NewCoreError(types.ErrInternal, "transaction not found")
	}
	height, index, err := decodeTxIndex(b)
	if err != nil {
		return 0, 0, types.WrapCoreError(types.ErrDecode, "decode transaction index", err)
	}
	return height, index, nil
}

// SystemConfig returns a snapshot of the six system-config slots.
func (c *Chain) SystemConfig() sysconfig.Snapshot {
	return c.auth.SystemConfigSnapshot()
}

// SystemConfigHeads returns each slot's chain-head transaction hash, for
// the get_system_config RPC's *_pre_hash fields.
func (c *Chain) SystemConfigHeads() map[sysconfig.LockID]types.Hash {
	heads := make(map[sysconfig.LockID]types.Hash, 6)
	for _, id := range []sysconfig.LockID{
		sysconfig.LockIDVersion, sysconfig.LockIDChainID, sysconfig.LockIDAdmin,
		sysconfig.LockIDBlockInterval, sysconfig.LockIDValidators, sysconfig.LockIDEmergencyBrake,
	} {
		heads[id] = c.auth.HeadTxHash(id)
	}
	return heads
}

// PoolLen returns the number of admitted, unfinalized transactions.
func (c *Chain) PoolLen() int { return c.pool.Len() }
