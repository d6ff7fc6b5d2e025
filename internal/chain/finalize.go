package chain

import (
	"context"
	"fmt"

	"github.com/klingnet-chain/controller/internal/sysconfig"
	"github.com/klingnet-chain/controller/internal/types"
	"golang.org/x/sync/errgroup"
)

// finalizeBlock persists a decided block across every storage region,
// executes it, and updates the Authenticator window and Pool. Writes fan
// out as independent tasks; any failure panics, because divergent local
// storage after a consensus decision is not recoverable in-process.
func (c *Chain) finalizeBlock(ctx context.Context, fullBlock *types.Block, blockHash types.Hash) error {
	compact, err := types.CompactBodyFrom(fullBlock.Body)
	if err != nil {
		return types.WrapCoreError(types.ErrEncode, "build compact body", err)
	}
	txHashes := compact.TxHashes

	height := fullBlock.Header.Height
	key := encodeUint64(height)

	g, gctx := errgroup.WithContext(context.WithoutCancel(ctx))
	store := func(region uint8, k, v []byte) {
		g.Go(func() error {
			ok, err := c.storage.Store(gctx, region, k, v)
			if err != nil {
				return fmt.Errorf("store region %d: %w", region, err)
			}
			if !ok {
				return fmt.Errorf("store region %d: storage returned false", region)
			}
			return nil
		})
	}

	existing, err := c.storage.LoadMaybeEmpty(ctx, RegionBlockHash, key)
	if err != nil {
		panic(fmt.Sprintf("chain: load existing block hash during finalize: %v", err))
	}
	isNewBlock := len(existing) == 0

	store(RegionBlockHash, key, blockHash.Bytes())
	store(RegionHashToHeight, blockHash.Bytes(), key)
	store(RegionProof, key, fullBlock.Proof)

	if isNewBlock {
		headerBytes := fullBlock.Header.Encode()
		bodyBytes := compact.Encode()
		store(RegionHeader, key, headerBytes)
		store(RegionCompactBody, key, bodyBytes)
		if c.archive != nil {
			proof := fullBlock.Proof
			g.Go(func() error {
				return c.archive.WriteBlock(height, headerBytes, bodyBytes, proof)
			})
		}
	}

	for i := range fullBlock.Body {
		raw := &fullBlock.Body[i]
		txHash, err := raw.Hash()
		if err != nil {
			return types.WrapCoreError(types.ErrEncode, "transaction without hash in finalized block", err)
		}
		store(RegionTx, txHash.Bytes(), raw.Encode())
		store(RegionTxIndex, txHash.Bytes(), encodeTxIndex(height, uint64(i)))
	}

	// System-config updates are sequential: slot chains must advance in
	// block order, and an accepted update's region-0 record must land
	// before the next block's replay can depend on it.
	reconfigure := false
	for i := range fullBlock.Body {
		raw := &fullBlock.Body[i]
		if raw.Kind != types.TxKindUtxo || raw.Utxo == nil || raw.Utxo.Transaction == nil {
			continue
		}
		utxo := raw.Utxo
		if !c.auth.UpdateSystemConfig(utxo.Transaction, utxo.TransactionHash) {
			c.logger.Warn().
				Str("tx_hash", utxo.TransactionHash.String()).
				Uint32("lock_id", utxo.Transaction.LockID).
				Msg("utxo transaction rejected: invalid pre_hash")
			continue
		}
		lockKey := encodeUint64(uint64(utxo.Transaction.LockID))
		ok, err := c.storage.Store(ctx, RegionMeta, lockKey, utxo.TransactionHash.Bytes())
		if err != nil || !ok {
			panic(fmt.Sprintf("chain: store utxo tx hash for lock_id %d: ok=%v err=%v", utxo.Transaction.LockID, ok, err))
		}
		if sysconfig.IsReconfigureSlot(sysconfig.LockID(utxo.Transaction.LockID)) {
			reconfigure = true
		}
	}

	// If execution fails, every honest replica sees the same failure, so
	// a zero hash keeps them in agreement.
	executedHash, err := c.executor.ExecBlock(ctx, fullBlock)
	if err != nil {
		c.logger.Warn().Err(err).Uint64("height", height).Msg("exec_block failed, recording zero state hash")
		executedHash = types.Hash{}
	}
	store(RegionExecutedHash, key, executedHash.Bytes())

	// The window must include this block before the pool is pruned, so a
	// proposal assembled right after cannot resurrect a finalized tx.
	c.auth.InsertTxHash(height, txHashes)
	c.pool.Update(txHashes)

	if reconfigure {
		config := c.auth.SystemConfigSnapshot()
		ok, err := c.consensus.Reconfigure(ctx, types.ConsensusConfiguration{
			Height:        height,
			BlockInterval: config.BlockInterval,
			Validators:    config.Validators,
		})
		if err != nil || !ok {
			panic(fmt.Sprintf("chain: consensus reconfigure at height %d: ok=%v err=%v", height, ok, err))
		}
	}

	store(RegionMeta, encodeUint64(0), key)
	store(RegionMeta, encodeUint64(1), blockHash.Bytes())

	if err := g.Wait(); err != nil {
		panic(fmt.Sprintf("chain: finalize block %d: %v", height, err))
	}

	c.logger.Info().
		Uint64("height", height).
		Str("block_hash", blockHash.String()).
		Int("txs", len(txHashes)).
		Msg("block finalized")
	return nil
}

// encodeTxIndex packs the (block_height, tx_index) record stored per
// transaction in region 7.
func encodeTxIndex(height, index uint64) []byte {
	w := types.NewWriter()
	w.PutUint64(height)
	w.PutUint64(index)
	return w.Bytes()
}

// decodeTxIndex unpacks a region-7 record.
func decodeTxIndex(b []byte) (height, index uint64, err error) {
	r := types.NewReader(b)
	if height, err = r.Uint64(); err != nil {
		return 0, 0, err
	}
	if index, err = r.Uint64(); err != nil {
		return 0, 0, err
	}
	return height, index, r.Done()
}
