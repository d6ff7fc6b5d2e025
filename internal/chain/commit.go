package chain

import (
	"context"

	"github.com/klingnet-chain/controller/internal/types"
)

// Step is the node's operating mode, decided by NextStep.
type Step int

const (
	StepOnline Step = iota
	StepSync
)

// UpdateGlobalStatus records a peer-reported chain status. Only the
// highest height seen matters to the sync decision.
func (c *Chain) UpdateGlobalStatus(status *types.ChainStatus) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if status.Height > c.globalHeight {
		c.globalHeight = status.Height
	}
}

// NextStep decides between Online and Sync mode: Sync when
// the peer quorum is ahead AND either no proposal is brewing at level 0 or
// the gap has reached ForceInSync.
func (c *Chain) NextStep() Step {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.nextStepLocked()
}

func (c *Chain) nextStepLocked() Step {
	if c.globalHeight > c.blockNumber &&
		(len(c.forkTree[0]) == 0 || c.globalHeight >= c.blockNumber+ForceInSync) {
		return StepSync
	}
	return StepOnline
}

// CommitBlock applies a consensus decision: attach
// the proof, trace the candidate chain back to the finalized head, run
// fork choice, and finalize every block that now has block_delay_number
// confirmations. Returns the consensus configuration and chain status for
// the new head.
func (c *Chain) CommitBlock(ctx context.Context, height uint64, proposalBytes, proof []byte) (*types.ConsensusConfiguration, *types.ChainStatus, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if height <= c.blockNumber {
		return nil, nil, types.NewCoreError(types.ErrProposalTooLow, "commit height is already finalized")
	}
	if height > c.blockNumber+c.blockDelayNumber+1 {
		return nil, nil, types.NewCoreError(types.ErrProposalTooHigh, "commit height is beyond the confirmation buffer")
	}

	proposal, err := types.DecodeProposalEnum(proposalBytes)
	if err != nil {
		return nil, nil, types.WrapCoreError(types.ErrDecode, "decode proposal", err)
	}
	if proposal.Bft == nil || proposal.Bft.Block == nil {
		return nil, nil, types.NewCoreError(types.ErrNoneProposal, "proposal carries no block")
	}

	fullBlock := proposal.Bft.Block
	fullBlock.Proof = append([]byte(nil), proof...)

	blockHash, err := c.kms.Hash(ctx, fullBlock.Header.Encode())
	if err != nil {
		return nil, nil, types.WrapCoreError(types.ErrKmsUnavailable, "hash committed header", err)
	}

	index := int(height - c.blockNumber - 1)
	c.forkTree[index][blockHash] = fullBlock

	// Trace backwards through the fork tree by prevhash until the
	// finalized head, accumulating the candidate chain head-to-root.
	candidateChain := []types.Hash{blockHash}
	candidateTxHash := make(map[types.Hash]struct{})
	addTxHashes := func(block *types.Block) error {
		for i := range block.Body {
			h, err := block.Body[i].Hash()
			if err != nil {
				return types.WrapCoreError(types.ErrDecode, "transaction without hash in candidate chain", err)
			}
			if _, dup := candidateTxHash[h]; dup {
				return types.NewCoreError(types.ErrCandidateChainDupTx, "duplicate transaction in candidate chain")
			}
			candidateTxHash[h] = struct{}{}
		}
		return nil
	}
	if err := addTxHashes(fullBlock); err != nil {
		return nil, nil, err
	}

	prevHash := fullBlock.Header.PrevHash
	for level := index; level >= 1; level-- {
		prevBlock, ok := c.forkTree[level-1][prevHash]
		if !ok {
			c.logger.Warn().Uint64("height", height).Msg("candidate chain interrupted")
			return nil, nil, types.NewCoreError(types.ErrCandidateChainBroken, "candidate chain interrupted")
		}
		if len(prevBlock.Proof) == 0 {
			c.logger.Warn().Uint64("height", height).Msg("candidate chain has no proof")
			return nil, nil, types.NewCoreError(types.ErrCandidateChainNoProof, "candidate chain block without proof")
		}
		if err := addTxHashes(prevBlock); err != nil {
			return nil, nil, err
		}
		candidateChain = append(candidateChain, prevHash)
		prevHash = prevBlock.Header.PrevHash
	}

	if prevHash != c.blockHash {
		c.logger.Warn().Uint64("height", height).Msg("candidate chain does not fit the finalized head")
		// Break the invalid chain at its root so the next attempt can
		// trace a fresh one.
		delete(c.forkTree[0], candidateChain[len(candidateChain)-1])
		return nil, nil, types.NewCoreError(types.ErrCandidateChainDoesntFit, "candidate chain does not reach the finalized head")
	}

	if len(candidateChain) <= len(c.mainChain) {
		return nil, nil, types.NewCoreError(types.ErrNoForkTree, "candidate chain is not longer than the main chain")
	}

	// Fork choice: the candidate becomes the main chain, root-to-head.
	for i, j := 0, len(candidateChain)-1; i < j; i, j = i+1, j-1 {
		candidateChain[i], candidateChain[j] = candidateChain[j], candidateChain[i]
	}
	c.mainChain = candidateChain
	c.mainChainTxHash = candidateTxHash

	if uint64(len(c.mainChain)) > c.blockDelayNumber {
		finalizedCount := len(c.mainChain) - int(c.blockDelayNumber)
		finalizedTxHash := make(map[types.Hash]struct{})
		for i := 0; i < finalizedCount; i++ {
			hash := c.mainChain[i]
			block, ok := c.forkTree[i][hash]
			if !ok {
				return nil, nil, types.NewCoreError(types.ErrNoForkTree, "finalizing block missing from the fork tree")
			}
			if err := c.finalizeBlock(ctx, block, hash); err != nil {
				return nil, nil, err
			}
			for j := range block.Body {
				h, err := block.Body[j].Hash()
				if err != nil {
					return nil, nil, types.WrapCoreError(types.ErrDecode, "transaction without hash in finalized block", err)
				}
				finalizedTxHash[h] = struct{}{}
			}
		}

		c.blockNumber += uint64(finalizedCount)
		c.blockHash = c.mainChain[finalizedCount-1]
		c.mainChain = append([]types.Hash(nil), c.mainChain[finalizedCount:]...)
		for h := range finalizedTxHash {
			delete(c.mainChainTxHash, h)
		}
		c.forkTree = append([]map[types.Hash]*types.Block(nil), c.forkTree[finalizedCount:]...)
		for len(c.forkTree) < forkTreeSize(c.blockDelayNumber) {
			c.forkTree = append(c.forkTree, make(map[types.Hash]*types.Block))
		}
	}

	c.candidate = nil

	config := c.auth.SystemConfigSnapshot()
	return &types.ConsensusConfiguration{
			Height:        height,
			BlockInterval: config.BlockInterval,
			Validators:    config.Validators,
		}, &types.ChainStatus{
			Version: config.Version,
			ChainID: config.ChainID,
			Height:  height,
			Hash:    c.blockHash,
		}, nil
}

// ProcessBlock finalizes a block received during sync: the block must
// extend the finalized head directly, pass the consensus engine's proof
// check, and contain only admissible transactions.
func (c *Chain) ProcessBlock(ctx context.Context, block *types.Block) (*types.ConsensusConfiguration, *types.ChainStatus, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	height := block.Header.Height
	if height <= c.blockNumber {
		return nil, nil, types.NewCoreError(types.ErrProposalTooLow, "block height is already finalized")
	}
	if height > c.blockNumber+c.blockDelayNumber+1 {
		return nil, nil, types.NewCoreError(types.ErrProposalTooHigh, "block height is beyond the confirmation buffer")
	}
	if block.Header.PrevHash != c.blockHash {
		c.logger.Warn().Uint64("height", height).Msg("sync block does not extend the finalized head")
		return nil, nil, types.NewCoreError(types.ErrBlockCheckError, "block prevhash does not match the finalized head")
	}

	blockHash, err := c.kms.Hash(ctx, block.Header.Encode())
	if err != nil {
		return nil, nil, types.WrapCoreError(types.ErrKmsUnavailable, "hash sync block header", err)
	}

	proposalBytes, err := c.assembleProposal(ctx, block, height)
	if err != nil {
		return nil, nil, err
	}
	ok, err := c.consensus.CheckBlock(ctx, height, proposalBytes, block.Proof)
	if err != nil {
		return nil, nil, types.WrapCoreError(types.ErrInternal, "consensus check_block failed", err)
	}
	if !ok {
		return nil, nil, types.NewCoreError(types.ErrBlockCheckError, "consensus rejected the block proof")
	}

	if err := c.checkTransactionsLocked(ctx, block.Body); err != nil {
		return nil, nil, err
	}

	if err := c.finalizeBlock(ctx, block, blockHash); err != nil {
		return nil, nil, err
	}
	c.blockNumber = height
	c.blockHash = blockHash

	config := c.auth.SystemConfigSnapshot()
	return &types.ConsensusConfiguration{
			Height:        height,
			BlockInterval: config.BlockInterval,
			Validators:    config.Validators,
		}, &types.ChainStatus{
			Version: config.Version,
			ChainID: config.ChainID,
			Height:  height,
			Hash:    blockHash,
		}, nil
}

// checkTransactionsLocked admits every transaction in a sync block body:
// each must pass the Authenticator and must not duplicate a hash already
// in flight on the main chain.
func (c *Chain) checkTransactionsLocked(ctx context.Context, body []types.RawTransaction) error {
	for i := range body {
		txHash, err := c.auth.CheckRawTx(ctx, &body[i])
		if err != nil {
			return err
		}
		if _, dup := c.mainChainTxHash[txHash]; dup {
			return types.NewCoreError(types.ErrDuplicateTx, "transaction already in flight on the main chain")
		}
	}
	return nil
}
