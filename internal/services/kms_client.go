package services

import (
	"context"
	"encoding/hex"

	"github.com/klingnet-chain/controller/internal/types"
)

// KMSClient is the out-of-process KMS façade.
type KMSClient struct {
	rpc *rpcClient
}

// NewKMSClient builds a KMS façade talking to an external KMS service.
func NewKMSClient(endpoint string) *KMSClient {
	return &KMSClient{rpc: newRPCClient(endpoint)}
}

func (c *KMSClient) Hash(ctx context.Context, data []byte) (types.Hash, error) {
	var hexVal string
	if err := c.rpc.call(ctx, "kms_hash", map[string]string{"data": hex.EncodeToString(data)}, &hexVal); err != nil {
		return types.Hash{}, err
	}
	return types.HexToHash(hexVal)
}

func (c *KMSClient) VerifyTxHash(ctx context.Context, claimedHash types.Hash, data []byte) (bool, error) {
	var ok bool
	err := c.rpc.call(ctx, "kms_verifyTxHash", map[string]string{
		"claimed_hash": claimedHash.String(),
		"data":         hex.EncodeToString(data),
	}, &ok)
	return ok, err
}

func (c *KMSClient) RecoverSignature(ctx context.Context, hash types.Hash, signature []byte) (types.Address, error) {
	var hexAddr string
	err := c.rpc.call(ctx, "kms_recoverSignature", map[string]string{
		"hash":      hash.String(),
		"signature": hex.EncodeToString(signature),
	}, &hexAddr)
	if err != nil {
		return types.Address{}, err
	}
	return types.ParseAddress(hexAddr)
}
