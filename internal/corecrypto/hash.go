// Package corecrypto is the KMS's local driver: hashing and signing
// primitives backing the default, in-process Services.KMS implementation.
package corecrypto

import (
	"github.com/klingnet-chain/controller/internal/types"
	"github.com/zeebo/blake3"
)

// Hash computes the BLAKE3-256 hash used throughout the controller for
// transaction, header, and proposal hashing (the KMS hash operation).
func Hash(data []byte) types.Hash {
	return blake3.Sum256(data)
}

// AddressFromPubKey derives an address from a compressed public key:
// address = BLAKE3(compressed_pubkey)[:20].
func AddressFromPubKey(pubKey []byte) types.Address {
	h := Hash(pubKey)
	var addr types.Address
	copy(addr[:], h[:types.AddressSize])
	return addr
}
