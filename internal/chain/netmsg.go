package chain

import (
	"context"

	"github.com/klingnet-chain/controller/internal/services"
	"github.com/klingnet-chain/controller/internal/types"
)

// SendRawTransaction admits a transaction: full Authenticator check, pool
// enqueue, then gossip to peers. Returns the transaction hash, or
// DuplicateTx when the pool already holds it.
func (c *Chain) SendRawTransaction(ctx context.Context, raw *types.RawTransaction) (types.Hash, error) {
	txHash, err := c.auth.CheckRawTx(ctx, raw)
	if err != nil {
		return types.Hash{}, err
	}

	if !c.pool.Enqueue(raw, txHash) {
		return types.Hash{}, types.NewCoreError(types.ErrDuplicateTx, "dup")
	}

	if err := c.network.Broadcast(ctx, services.NetworkMsg{
		Type:    services.NetworkMsgRawTx,
		Payload: raw.Encode(),
	}); err != nil {
		// Gossip is best effort; a failed broadcast does not fail admission.
		c.logger.Warn().Err(err).Str("tx_hash", txHash.String()).Msg("broadcast raw_tx failed")
	}
	return txHash, nil
}

// BroadcastStatus gossips the current chain status to peers.
func (c *Chain) BroadcastStatus(ctx context.Context) error {
	status := c.Status(c.auth.SystemConfigSnapshot().ChainID)
	return c.network.Broadcast(ctx, services.NetworkMsg{
		Type:    services.NetworkMsgChainStatus,
		Payload: status.Encode(),
	})
}

// ProcessNetworkMsg dispatches an incoming peer message.
// Unknown message types are ignored.
func (c *Chain) ProcessNetworkMsg(ctx context.Context, msg services.NetworkMsg) error {
	switch msg.Type {
	case services.NetworkMsgRawTx:
		raw, err := types.DecodeRawTransaction(msg.Payload)
		if err != nil {
			return types.WrapCoreError(types.ErrDecode, "decode gossiped raw_tx", err)
		}
		_, err = c.SendRawTransaction(ctx, raw)
		return err

	case services.NetworkMsgBlock:
		block, err := types.DecodeBlock(msg.Payload)
		if err != nil {
			return types.WrapCoreError(types.ErrDecode, "decode gossiped block", err)
		}
		if c.NextStep() == StepSync {
			_, _, err = c.ProcessBlock(ctx, block)
			return err
		}
		blockHash, err := c.kms.Hash(ctx, block.Header.Encode())
		if err != nil {
			return types.WrapCoreError(types.ErrKmsUnavailable, "hash gossiped block header", err)
		}
		_, err = c.AddRemoteProposal(blockHash, block)
		return err

	case services.NetworkMsgProposal:
		proposal, err := types.DecodeProposalEnum(msg.Payload)
		if err != nil {
			return types.WrapCoreError(types.ErrDecode, "decode gossiped proposal", err)
		}
		if proposal.Bft == nil || proposal.Bft.Block == nil {
			return types.NewCoreError(types.ErrNoneProposal, "gossiped proposal carries no block")
		}
		blockHash, err := c.kms.Hash(ctx, proposal.Bft.Block.Header.Encode())
		if err != nil {
			return types.WrapCoreError(types.ErrKmsUnavailable, "hash gossiped proposal header", err)
		}
		_, err = c.AddRemoteProposal(blockHash, proposal.Bft.Block)
		return err

	case services.NetworkMsgChainStatus:
		status, err := types.DecodeChainStatus(msg.Payload)
		if err != nil {
			return types.WrapCoreError(types.ErrDecode, "decode gossiped chain_status", err)
		}
		c.UpdateGlobalStatus(status)
		return nil

	default:
		c.logger.Debug().Str("type", string(msg.Type)).Msg("ignoring unknown network message type")
		return nil
	}
}
