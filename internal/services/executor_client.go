package services

import (
	"context"
	"encoding/hex"

	"github.com/klingnet-chain/controller/internal/types"
)

// ExecutorClient is the out-of-process Executor façade.
type ExecutorClient struct {
	rpc *rpcClient
}

// NewExecutorClient builds an Executor façade talking to an external
// executor service.
func NewExecutorClient(endpoint string) *ExecutorClient {
	return &ExecutorClient{rpc: newRPCClient(endpoint)}
}

func (c *ExecutorClient) ExecBlock(ctx context.Context, block *types.Block) (types.Hash, error) {
	var hexVal string
	err := c.rpc.call(ctx, "executor_execBlock", map[string]string{
		"block": hex.EncodeToString(block.Encode()),
	}, &hexVal)
	if err != nil {
		return types.Hash{}, err
	}
	return types.HexToHash(hexVal)
}
