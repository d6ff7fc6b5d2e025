package services

import (
	"context"

	"github.com/klingnet-chain/controller/internal/corecrypto"
	"github.com/klingnet-chain/controller/internal/types"
)

// LocalExecutor is a no-op in-process Executor driver used for
// single-binary operation and tests: it does not run a VM, it only
// produces a deterministic state hash derived from the block's contents so
// the finalize path has something stable to write to region 6.
type LocalExecutor struct{}

// NewLocalExecutor builds an in-process Executor.
func NewLocalExecutor() *LocalExecutor { return &LocalExecutor{} }

func (e *LocalExecutor) ExecBlock(ctx context.Context, block *types.Block) (types.Hash, error) {
	return corecrypto.Hash(block.Encode()), nil
}
