package services

import (
	"context"
	"encoding/hex"

	"github.com/klingnet-chain/controller/internal/types"
)

// ConsensusClient is the out-of-process Consensus façade, covering the
// outbound operations (reconfigure, check_block) the controller calls.
// The inbound operations (get_proposal, check_proposal, commit_block) are
// served from internal/rpcserver instead, since there Consensus is the
// caller and the controller is the callee.
type ConsensusClient struct {
	rpc *rpcClient
}

// NewConsensusClient builds a Consensus façade talking to an external
// consensus engine.
func NewConsensusClient(endpoint string) *ConsensusClient {
	return &ConsensusClient{rpc: newRPCClient(endpoint)}
}

type reconfigureParams struct {
	Height        uint64   `json:"height"`
	BlockInterval uint32   `json:"block_interval"`
	Validators    []string `json:"validators"`
}

func (c *ConsensusClient) Reconfigure(ctx context.Context, cfg types.ConsensusConfiguration) (bool, error) {
	params := reconfigureParams{Height: cfg.Height, BlockInterval: cfg.BlockInterval}
	for _, v := range cfg.Validators {
		params.Validators = append(params.Validators, hex.EncodeToString(v))
	}
	var ok bool
	err := c.rpc.call(ctx, "consensus_reconfigure", params, &ok)
	return ok, err
}

func (c *ConsensusClient) CheckBlock(ctx context.Context, height uint64, proposalBytes, proof []byte) (bool, error) {
	var ok bool
	err := c.rpc.call(ctx, "consensus_checkBlock", map[string]interface{}{
		"height":   height,
		"proposal": hex.EncodeToString(proposalBytes),
		"proof":    hex.EncodeToString(proof),
	}, &ok)
	return ok, err
}
