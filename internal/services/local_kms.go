package services

import (
	"bytes"
	"context"
	"fmt"

	"github.com/klingnet-chain/controller/internal/corecrypto"
	"github.com/klingnet-chain/controller/internal/types"
)

// LocalKMS is the default in-process KMS driver, used for single-binary
// operation and tests where no standalone KMS process is configured. It
// backs hashing and signature recovery with internal/corecrypto directly.
type LocalKMS struct{}

// NewLocalKMS builds an in-process KMS.
func NewLocalKMS() *LocalKMS { return &LocalKMS{} }

func (k *LocalKMS) Hash(ctx context.Context, data []byte) (types.Hash, error) {
	return corecrypto.Hash(data), nil
}

func (k *LocalKMS) VerifyTxHash(ctx context.Context, claimedHash types.Hash, data []byte) (bool, error) {
	computed := corecrypto.Hash(data)
	return bytes.Equal(computed[:], claimedHash[:]), nil
}

func (k *LocalKMS) RecoverSignature(ctx context.Context, hash types.Hash, signature []byte) (types.Address, error) {
	addr, ok := corecrypto.RecoverAddress(hash[:], signature)
	if !ok {
		return types.Address{}, fmt.Errorf("kms: failed to recover address from signature")
	}
	return addr, nil
}
