package config

import (
	"encoding/binary"
	"fmt"
	"os"

	"github.com/klingnet-chain/controller/internal/sysconfig"
	"github.com/klingnet-chain/controller/internal/types"
	"github.com/naoina/toml"
)

// GenesisFile seeds the height-0 block: its timestamp and prevhash must
// match across every node of the chain.
type GenesisFile struct {
	Timestamp uint64 `toml:"timestamp"`
	PrevHash  string `toml:"prevhash"`
}

// LoadGenesis parses a genesis.toml.
func LoadGenesis(path string) (*GenesisFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read genesis %s: %w", path, err)
	}
	g := &GenesisFile{}
	if err := toml.Unmarshal(data, g); err != nil {
		return nil, fmt.Errorf("parse genesis %s: %w", path, err)
	}
	return g, nil
}

// ToBlock builds the genesis block. transactionsRoot is the hash of the
// empty tx-hash concatenation, computed by the caller through the KMS so
// the same algorithm covers genesis and live blocks.
func (g *GenesisFile) ToBlock(transactionsRoot types.Hash) (*types.Block, error) {
	prevhash, err := types.HexToHash(g.PrevHash)
	if err != nil {
		return nil, fmt.Errorf("genesis prevhash: %w", err)
	}
	return &types.Block{
		Version: 0,
		Header: types.Header{
			PrevHash:         prevhash,
			Timestamp:        g.Timestamp,
			Height:           0,
			TransactionsRoot: transactionsRoot,
		},
	}, nil
}

// SystemConfigFile is the init-sys-config.toml shape: the genesis values
// of the six system-config slots as hex/number literals.
type SystemConfigFile struct {
	Version        uint32   `toml:"version"`
	ChainID        string   `toml:"chain_id"`
	Admin          string   `toml:"admin"`
	BlockInterval  uint32   `toml:"block_interval"`
	Validators     []string `toml:"validators"`
	EmergencyBrake bool     `toml:"emergency_brake"`
}

// LoadSystemConfigFile parses an init-sys-config.toml.
func LoadSystemConfigFile(path string) (*SystemConfigFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read init sys config %s: %w", path, err)
	}
	f := &SystemConfigFile{}
	if err := toml.Unmarshal(data, f); err != nil {
		return nil, fmt.Errorf("parse init sys config %s: %w", path, err)
	}
	return f, nil
}

// Apply installs the file's values as the genesis state of sc: every slot
// head stays at the zero hash, so the first live utxo update to any slot
// must chain from 0x00..00.
func (f *SystemConfigFile) Apply(sc *sysconfig.SystemConfig) error {
	chainID, err := types.HexToHash(f.ChainID)
	if err != nil {
		return fmt.Errorf("chain_id: %w", err)
	}
	admin, err := types.ParseAddress(f.Admin)
	if err != nil {
		return fmt.Errorf("admin: %w", err)
	}

	validators := make([]byte, 0, len(f.Validators)*types.AddressSize)
	for i, v := range f.Validators {
		addr, err := types.ParseAddress(v)
		if err != nil {
			return fmt.Errorf("validators[%d]: %w", i, err)
		}
		validators = append(validators, addr[:]...)
	}

	var brake []byte
	if f.EmergencyBrake {
		brake = []byte{1}
	}

	for _, slot := range []struct {
		id      sysconfig.LockID
		payload []byte
	}{
		{sysconfig.LockIDVersion, beUint32(f.Version)},
		{sysconfig.LockIDChainID, chainID.Bytes()},
		{sysconfig.LockIDAdmin, admin.Bytes()},
		{sysconfig.LockIDBlockInterval, beUint32(f.BlockInterval)},
		{sysconfig.LockIDValidators, validators},
		{sysconfig.LockIDEmergencyBrake, brake},
	} {
		if err := sc.SetGenesis(slot.id, slot.payload); err != nil {
			return fmt.Errorf("install %s: %w", slot.id, err)
		}
	}
	return nil
}

func beUint32(v uint32) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, v)
	return b
}
