// Package identity manages the node's on-disk identity: the key_id and
// node_address files and the secp256k1 key
// behind them, derived BIP-44 style from a generated mnemonic.
package identity

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/klingnet-chain/controller/internal/corecrypto"
	"github.com/klingnet-chain/controller/internal/log"
	"github.com/klingnet-chain/controller/internal/types"
	"github.com/tyler-smith/go-bip32"
	"github.com/tyler-smith/go-bip39"
)

// BIP-44 derivation path for the node identity key:
// m/44'/5555'/0'/0/0.
const (
	purposeBIP44 = bip32.FirstHardenedChild + 44
	coinType     = bip32.FirstHardenedChild + 5555
	account      = bip32.FirstHardenedChild + 0
)

const (
	keyIDFile    = "key_id"
	addressFile  = "node_address"
	nodeKeyFile  = "node_key"
	mnemonicBits = 128
)

// Identity is the node's signing identity, loaded from or persisted to a
// data directory.
type Identity struct {
	KeyID   uint64
	Address types.Address
	Key     *corecrypto.PrivateKey
}

// LoadOrCreate loads the identity files from dir, creating a fresh
// identity on first start. When passphrase is non-empty the node key is
// kept encrypted at rest.
func LoadOrCreate(dir string, passphrase []byte) (*Identity, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("create identity dir: %w", err)
	}
	keyPath := filepath.Join(dir, nodeKeyFile)
	if _, err := os.Stat(keyPath); err == nil {
		return load(dir, passphrase)
	}
	return create(dir, passphrase)
}

func load(dir string, passphrase []byte) (*Identity, error) {
	keyID, err := readKeyID(filepath.Join(dir, keyIDFile))
	if err != nil {
		return nil, err
	}

	keyBytes, err := os.ReadFile(filepath.Join(dir, nodeKeyFile))
	if err != nil {
		return nil, fmt.Errorf("read node key: %w", err)
	}
	if len(passphrase) > 0 {
		if keyBytes, err = Decrypt(keyBytes, passphrase); err != nil {
			return nil, fmt.Errorf("decrypt node key: %w", err)
		}
	}
	key, err := corecrypto.PrivateKeyFromBytes(keyBytes)
	if err != nil {
		return nil, fmt.Errorf("parse node key: %w", err)
	}

	addr, err := readAddress(filepath.Join(dir, addressFile))
	if err != nil {
		return nil, err
	}
	if addr != key.Address() {
		return nil, fmt.Errorf("node_address file does not match the node key (have %s, key derives %s)", addr, key.Address())
	}

	return &Identity{KeyID: keyID, Address: addr, Key: key}, nil
}

func create(dir string, passphrase []byte) (*Identity, error) {
	entropy, err := bip39.NewEntropy(mnemonicBits)
	if err != nil {
		return nil, fmt.Errorf("generate entropy: %w", err)
	}
	mnemonic, err := bip39.NewMnemonic(entropy)
	if err != nil {
		return nil, fmt.Errorf("generate mnemonic: %w", err)
	}

	key, err := deriveNodeKey(mnemonic)
	if err != nil {
		return nil, err
	}

	keyBytes := key.Serialize()
	if len(passphrase) > 0 {
		if keyBytes, err = Encrypt(keyBytes, passphrase); err != nil {
			return nil, fmt.Errorf("encrypt node key: %w", err)
		}
	}
	if err := os.WriteFile(filepath.Join(dir, nodeKeyFile), keyBytes, 0600); err != nil {
		return nil, fmt.Errorf("write node key: %w", err)
	}

	id := &Identity{KeyID: 1, Address: key.Address(), Key: key}
	if err := os.WriteFile(filepath.Join(dir, keyIDFile), []byte(strconv.FormatUint(id.KeyID, 10)), 0644); err != nil {
		return nil, fmt.Errorf("write key_id: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, addressFile), []byte(id.Address.String()), 0644); err != nil {
		return nil, fmt.Errorf("write node_address: %w", err)
	}

	idLogger := log.WithComponent("identity")
	idLogger.Info().
		Str("address", id.Address.String()).
		Msg("generated new node identity")
	return id, nil
}

// deriveNodeKey derives the node's secp256k1 key at m/44'/5555'/0'/0/0
// from a BIP-39 mnemonic.
func deriveNodeKey(mnemonic string) (*corecrypto.PrivateKey, error) {
	seed := bip39.NewSeed(mnemonic, "")
	master, err := bip32.NewMasterKey(seed)
	if err != nil {
		return nil, fmt.Errorf("derive master key: %w", err)
	}
	node := master
	for _, index := range []uint32{purposeBIP44, coinType, account, 0, 0} {
		if node, err = node.NewChildKey(index); err != nil {
			return nil, fmt.Errorf("derive child %d: %w", index, err)
		}
	}
	// bip32 Key.Key is 33 bytes with a leading 0x00 for private keys.
	raw := node.Key
	if len(raw) == 33 && raw[0] == 0 {
		raw = raw[1:]
	}
	return corecrypto.PrivateKeyFromBytes(raw)
}

func readKeyID(path string) (uint64, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read key_id: %w", err)
	}
	keyID, err := strconv.ParseUint(strings.TrimSpace(string(b)), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse key_id: %w", err)
	}
	return keyID, nil
}

func readAddress(path string) (types.Address, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return types.Address{}, fmt.Errorf("read node_address: %w", err)
	}
	addr, err := types.ParseAddress(strings.TrimSpace(string(b)))
	if err != nil {
		return types.Address{}, fmt.Errorf("parse node_address: %w", err)
	}
	return addr, nil
}
