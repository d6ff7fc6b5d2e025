// Package services defines the typed façades the controller core uses to
// reach its five external collaborators, plus two concrete
// backings for each: an HTTP/JSON-RPC client for the out-of-process
// collaborator, and a default in-process driver for single-binary
// operation (see storage_client.go with internal/badgerstore,
// network_client.go with internal/p2p, and the local_*.go drivers).
package services

import (
	"context"

	"github.com/klingnet-chain/controller/internal/types"
)

// Storage is the storage service's region-keyed KV contract. All integer
// keys are encoded big-endian u64 by the caller before being passed
// here.
type Storage interface {
	Store(ctx context.Context, region uint8, key, value []byte) (bool, error)
	Load(ctx context.Context, region uint8, key []byte) ([]byte, error)
	LoadMaybeEmpty(ctx context.Context, region uint8, key []byte) ([]byte, error)
}

// KMS is the key-management/signing façade.
type KMS interface {
	Hash(ctx context.Context, data []byte) (types.Hash, error)
	VerifyTxHash(ctx context.Context, claimedHash types.Hash, data []byte) (bool, error)
	RecoverSignature(ctx context.Context, hash types.Hash, signature []byte) (types.Address, error)
}

// Executor runs a finalized block's transactions and returns the resulting
// state hash.
type Executor interface {
	ExecBlock(ctx context.Context, block *types.Block) (types.Hash, error)
}

// Consensus is the outbound half of the consensus façade: the controller
// also exposes get_proposal/check_proposal/commit_block as an RPC surface
// to Consensus (see internal/rpcserver), but this interface covers what
// the controller calls out to Consensus.
type Consensus interface {
	Reconfigure(ctx context.Context, cfg types.ConsensusConfiguration) (bool, error)
	CheckBlock(ctx context.Context, height uint64, proposalBytes, proof []byte) (bool, error)
}

// NetworkMsgType tags the gossip message union.
type NetworkMsgType string

const (
	NetworkMsgRawTx        NetworkMsgType = "raw_tx"
	NetworkMsgBlock        NetworkMsgType = "block"
	NetworkMsgProposal     NetworkMsgType = "proposal"
	NetworkMsgChainStatus  NetworkMsgType = "chain_status"
)

// NetworkMsg is a single gossip message; Payload carries the
// type-specific encoded bytes (RawTransaction/Block/ProposalEnum/ChainStatus).
type NetworkMsg struct {
	Type    NetworkMsgType
	Payload []byte
}

// Network is the peer-gossip façade.
type Network interface {
	Broadcast(ctx context.Context, msg NetworkMsg) error
	RegisterHandler(ctx context.Context, module, hostname string, port int) error
	PeerCount(ctx context.Context) (int, error)
}
