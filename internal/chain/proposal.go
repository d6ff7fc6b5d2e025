package chain

import (
	"bytes"
	"context"
	"time"

	"github.com/klingnet-chain/controller/internal/types"
)

// AddProposal drains the pool into a new candidate block on top of the
// current main chain. It is a no-op
// when a candidate already exists or the node should be syncing.
func (c *Chain) AddProposal(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.candidate != nil || c.nextStepLocked() == StepSync {
		return nil
	}

	txHashes, txs := c.pool.Package(c.blockNumber + 1)

	data := make([]byte, 0, len(txHashes)*types.HashSize)
	for _, h := range txHashes {
		data = append(data, h[:]...)
	}
	transactionsRoot, err := c.kms.Hash(ctx, data)
	if err != nil {
		return types.WrapCoreError(types.ErrKmsUnavailable, "hash transactions root", err)
	}

	prevhash := c.blockHash
	if len(c.mainChain) > 0 {
		prevhash = c.mainChain[len(c.mainChain)-1]
	}
	height := c.blockNumber + uint64(len(c.mainChain)) + 1

	header := types.Header{
		PrevHash:         prevhash,
		Timestamp:        uint64(time.Now().Unix()),
		Height:           height,
		TransactionsRoot: transactionsRoot,
		Proposer:         c.nodeAddress,
	}
	block := &types.Block{
		Version: 0,
		Header:  header,
		Body:    txs,
	}

	blockHash, err := c.kms.Hash(ctx, header.Encode())
	if err != nil {
		return types.WrapCoreError(types.ErrKmsUnavailable, "hash proposal header", err)
	}

	c.logger.Info().
		Uint64("height", height).
		Str("block_hash", blockHash.String()).
		Int("txs", len(txs)).
		Msg("candidate block built")

	c.candidate = &candidateBlock{height: height, hash: blockHash, block: block}
	c.forkTree[len(c.mainChain)][blockHash] = block
	return nil
}

// GetProposal assembles the current candidate for consensus. Returns
// NoCandidate when AddProposal has not run since the last commit.
func (c *Chain) GetProposal(ctx context.Context) (uint64, []byte, error) {
	c.mu.RLock()
	cand := c.candidate
	c.mu.RUnlock()

	if cand == nil {
		return 0, nil, types.NewCoreError(types.ErrNoCandidate, "no candidate block")
	}
	proposalBytes, err := c.assembleProposal(ctx, cand.block, cand.height)
	if err != nil {
		return 0, nil, err
	}
	return cand.height, proposalBytes, nil
}

// IsCandidate reports whether blockHash is the current candidate.
func (c *Chain) IsCandidate(blockHash types.Hash) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.candidate != nil && c.candidate.hash == blockHash
}

// ClearProposal drops the current candidate block.
func (c *Chain) ClearProposal() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.candidate = nil
}

// ClearCandidate drops the candidate block and every level-0 fork entry.
func (c *Chain) ClearCandidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.forkTree[0] = make(map[types.Hash]*types.Block)
	c.candidate = nil
}

// assembleProposal wraps a block (with its proof stripped) into a
// BftProposal carrying the pre-state-root and pre-proof for height
// h - block_delay_number - 1, so a remote validator can check the proposal
// without replaying the chain.
func (c *Chain) assembleProposal(ctx context.Context, block *types.Block, height uint64) ([]byte, error) {
	preStateRoot, preProof, err := c.extractProposalInfo(ctx, height)
	if err != nil {
		return nil, err
	}

	stripped := *block
	stripped.Proof = nil
	proposal := types.ProposalEnum{
		Kind: types.ProposalKindBft,
		Bft: &types.BftProposal{
			Block:        &stripped,
			PreStateRoot: preStateRoot,
			PreProof:     preProof,
		},
	}
	return proposal.Encode(), nil
}

// extractProposalInfo loads the executed-state root (region 6) and proof
// (region 5) of height h - block_delay_number - 1. Returns NoEarlyStatus
// while that history does not exist yet.
func (c *Chain) extractProposalInfo(ctx context.Context, height uint64) ([]byte, []byte, error) {
	if height < c.blockDelayNumber+1 {
		return nil, nil, types.NewCoreError(types.ErrNoEarlyStatus, "height is below the confirmation buffer")
	}
	preHeight := height - c.blockDelayNumber - 1
	key := encodeUint64(preHeight)

	stateRoot, err := c.storage.LoadMaybeEmpty(ctx, RegionExecutedHash, key)
	if err != nil {
		return nil, nil, types.WrapCoreError(types.ErrInternal, "load pre state root", err)
	}
	if len(stateRoot) == 0 {
		return nil, nil, types.NewCoreError(types.ErrNoEarlyStatus, "pre state root not available yet")
	}

	proof, err := c.storage.LoadMaybeEmpty(ctx, RegionProof, key)
	if err != nil {
		return nil, nil, types.WrapCoreError(types.ErrInternal, "load pre proof", err)
	}
	if preHeight > 0 && len(proof) == 0 {
		return nil, nil, types.NewCoreError(types.ErrNoEarlyStatus, "pre proof not available yet")
	}
	return stateRoot, proof, nil
}

// AddRemoteProposal seeds the fork tree with a peer's block. No
// transaction or signature validation happens here. Returns whether the
// block was newly inserted.
func (c *Chain) AddRemoteProposal(blockHash types.Hash, block *types.Block) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	height := block.Header.Height
	if height <= c.blockNumber {
		return false, types.NewCoreError(types.ErrProposalTooLow, "proposal height is already finalized")
	}
	if height > c.blockNumber+2*c.blockDelayNumber+2 {
		return false, types.NewCoreError(types.ErrProposalTooHigh, "proposal height is beyond the fork tree")
	}

	level := c.forkTree[height-c.blockNumber-1]
	if _, exists := level[blockHash]; exists {
		return false, nil
	}
	level[blockHash] = block
	return true, nil
}

// CheckProposal validates a peer proposal against local history: the
// pre-state-root and pre-proof it carries must be bit-equal with what
// this node finalized at h - block_delay_number - 1.
func (c *Chain) CheckProposal(ctx context.Context, height uint64, proposalBytes []byte) (bool, error) {
	c.mu.RLock()
	blockNumber := c.blockNumber
	c.mu.RUnlock()

	if height <= blockNumber {
		return false, types.NewCoreError(types.ErrProposalTooLow, "proposal height is already finalized")
	}
	if height > blockNumber+c.blockDelayNumber+1 {
		return false, types.NewCoreError(types.ErrProposalTooHigh, "proposal height is beyond the confirmation buffer")
	}

	proposal, err := types.DecodeProposalEnum(proposalBytes)
	if err != nil {
		return false, types.WrapCoreError(types.ErrDecode, "decode proposal", err)
	}
	if proposal.Bft == nil || proposal.Bft.Block == nil {
		return false, types.NewCoreError(types.ErrNoneProposal, "proposal carries no block")
	}

	preStateRoot, preProof, err := c.extractProposalInfo(ctx, height)
	if err != nil {
		return false, err
	}
	if !bytes.Equal(proposal.Bft.PreStateRoot, preStateRoot) || !bytes.Equal(proposal.Bft.PreProof, preProof) {
		c.logger.Warn().
			Uint64("height", height).
			Msg("proposal pre-state does not match local history")
		return false, types.NewCoreError(types.ErrProposalCheckError, "pre-state root or pre-proof mismatch")
	}
	return true, nil
}
