package corecrypto

import (
	"fmt"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
	"github.com/klingnet-chain/controller/internal/types"
)

// PrivateKey wraps a secp256k1 private key used by the local KMS driver.
// Signatures are recoverable ECDSA: recover_signature(hash, signature)
// must yield the signer's address from the signature alone, which
// verification against a known public key cannot support.
type PrivateKey struct {
	key *secp256k1.PrivateKey
}

// GenerateKey creates a new random secp256k1 private key.
func GenerateKey() (*PrivateKey, error) {
	key, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	return &PrivateKey{key: key}, nil
}

// PrivateKeyFromBytes creates a PrivateKey from a 32-byte secret.
func PrivateKeyFromBytes(b []byte) (*PrivateKey, error) {
	if len(b) != 32 {
		return nil, fmt.Errorf("private key must be 32 bytes, got %d", len(b))
	}
	key := secp256k1.PrivKeyFromBytes(b)
	return &PrivateKey{key: key}, nil
}

// Sign produces a 65-byte recoverable signature (recovery id || r || s)
// over a 32-byte hash.
func (pk *PrivateKey) Sign(hash []byte) ([]byte, error) {
	if len(hash) != types.HashSize {
		return nil, fmt.Errorf("hash must be %d bytes, got %d", types.HashSize, len(hash))
	}
	sig := ecdsa.SignCompact(pk.key, hash, true)
	return sig, nil
}

// PublicKey returns the compressed 33-byte public key.
func (pk *PrivateKey) PublicKey() []byte {
	return pk.key.PubKey().SerializeCompressed()
}

// Address returns the address corresponding to this key.
func (pk *PrivateKey) Address() types.Address {
	return AddressFromPubKey(pk.PublicKey())
}

// Serialize returns the 32-byte private key scalar.
func (pk *PrivateKey) Serialize() []byte {
	return pk.key.Serialize()
}

// Zero securely zeroes the private key memory.
func (pk *PrivateKey) Zero() {
	pk.key.Zero()
}

// VerifySignature checks a recoverable ECDSA signature against a 32-byte
// hash and a compressed public key. Returns false on any error.
func VerifySignature(hash, signature, publicKey []byte) bool {
	addr, ok := RecoverAddress(hash, signature)
	if !ok {
		return false
	}
	return addr == AddressFromPubKey(publicKey)
}

// RecoverAddress recovers the signer's address from a hash and a 65-byte
// recoverable signature. This backs KMS.recover_signature:
// the Authenticator never needs the sender's public key up front, only
// the claimed address embedded in the witness, which this call verifies.
func RecoverAddress(hash, signature []byte) (types.Address, bool) {
	if len(hash) != types.HashSize {
		return types.Address{}, false
	}
	if len(signature) != 65 {
		return types.Address{}, false
	}
	pubKey, _, err := ecdsa.RecoverCompact(signature, hash)
	if err != nil {
		return types.Address{}, false
	}
	return AddressFromPubKey(pubKey.SerializeCompressed()), true
}
