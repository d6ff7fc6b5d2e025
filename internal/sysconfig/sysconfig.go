// Package sysconfig implements the UTXO system-config set:
// the six mutable chain-wide parameters advanced only by chained UTXO
// transactions, one independent pre-hash chain per slot.
package sysconfig

import (
	"fmt"

	"github.com/klingnet-chain/controller/internal/types"
)

// LockID selects a system-config slot.
type LockID uint32

const (
	LockIDVersion        LockID = 0
	LockIDChainID        LockID = 1
	LockIDAdmin          LockID = 2
	LockIDBlockInterval  LockID = 3
	LockIDValidators     LockID = 4
	LockIDEmergencyBrake LockID = 5
)

// String renders a LockID for logging.
func (l LockID) String() string {
	switch l {
	case LockIDVersion:
		return "version"
	case LockIDChainID:
		return "chain_id"
	case LockIDAdmin:
		return "admin"
	case LockIDBlockInterval:
		return "block_interval"
	case LockIDValidators:
		return "validators"
	case LockIDEmergencyBrake:
		return "emergency_brake"
	default:
		return fmt.Sprintf("lock_id(%d)", uint32(l))
	}
}

// slot holds one system-config parameter and the hash of the last utxo
// transaction that set it, forming a per-slot singly-linked chain.
type slot struct {
	value  []byte
	headTx types.Hash
}

// SystemConfig is the controller's copy of the six chain-wide slots, plus
// the pre-hash chain head for each.
type SystemConfig struct {
	slots map[LockID]*slot
}

// Snapshot is a read-only view of all six slots, returned by Get.
type Snapshot struct {
	Version        uint32
	ChainID        types.Hash
	Admin          types.Address
	BlockInterval  uint32
	Validators     [][]byte
	EmergencyBrake bool
}

// New builds an empty SystemConfig; genesis values are installed via
// SetGenesis by the caller, and a resumed chain then replays its recorded
// system-config transactions with Update(strict=true) (see the startup
// replay in cmd/controllerd).
func New() *SystemConfig {
	sc := &SystemConfig{slots: make(map[LockID]*slot, 6)}
	for _, id := range []LockID{
		LockIDVersion, LockIDChainID, LockIDAdmin,
		LockIDBlockInterval, LockIDValidators, LockIDEmergencyBrake,
	} {
		sc.slots[id] = &slot{}
	}
	return sc
}

// HeadTxHash returns the hash of the last transaction accepted at lockID.
func (sc *SystemConfig) HeadTxHash(lockID LockID) types.Hash {
	s, ok := sc.slots[LockID(lockID)]
	if !ok {
		return types.Hash{}
	}
	return s.headTx
}

// Update applies a UtxoTransaction to its slot if pre_tx_hash matches the
// slot's current head. On match, the slot's payload is replaced and its
// head advances to the transaction's own hash; true is returned. On
// mismatch, the slot is left untouched and false is returned.
//
// strict distinguishes startup replay from live block processing. A
// replayed record was authorized when its block finalized, so strict mode
// installs it without re-checking the pre-hash chain and panics on any
// malformed record. Live updates (strict=false) are accepted only when
// pre_tx_hash matches the slot's current head; a mismatch is silently
// rejected.
func (sc *SystemConfig) Update(tx *types.UtxoTransaction, txHash types.Hash, strict bool) bool {
	lockID := LockID(tx.LockID)
	s, ok := sc.slots[lockID]
	if !ok {
		if strict {
			panic(fmt.Sprintf("sysconfig: unknown lock_id %d during strict replay", tx.LockID))
		}
		return false
	}
	if strict {
		if err := validateSlotPayload(lockID, tx.Output); err != nil {
			panic(fmt.Sprintf("sysconfig: malformed record for %s during strict replay: %v", lockID, err))
		}
	} else if s.headTx != tx.PreTxHash {
		return false
	}
	s.value = append([]byte(nil), tx.Output...)
	s.headTx = txHash
	return true
}

// SetGenesis installs a slot's genesis value directly, leaving the slot's
// head at the all-zero hash so the first live utxo update must carry
// pre_tx_hash = 0x00..00. Used only when bootstrapping from the initial
// system-config file; a resumed chain replays recorded transactions with
// Update(strict=true) instead.
func (sc *SystemConfig) SetGenesis(lockID LockID, payload []byte) error {
	s, ok := sc.slots[lockID]
	if !ok {
		return fmt.Errorf("unknown lock_id %d", uint32(lockID))
	}
	if err := validateSlotPayload(lockID, payload); err != nil {
		return err
	}
	s.value = append([]byte(nil), payload...)
	s.headTx = types.Hash{}
	return nil
}

// validateSlotPayload enforces each slot's fixed-shape encoding.
func validateSlotPayload(lockID LockID, payload []byte) error {
	switch lockID {
	case LockIDVersion:
		if len(payload) != 4 {
			return fmt.Errorf("version slot must be 4 bytes, got %d", len(payload))
		}
	case LockIDChainID:
		if len(payload) != types.HashSize {
			return fmt.Errorf("chain_id slot must be %d bytes, got %d", types.HashSize, len(payload))
		}
	case LockIDAdmin:
		if len(payload) != types.AddressSize {
			return fmt.Errorf("admin slot must be %d bytes, got %d", types.AddressSize, len(payload))
		}
	case LockIDBlockInterval:
		if len(payload) != 4 {
			return fmt.Errorf("block_interval slot must be 4 bytes, got %d", len(payload))
		}
	case LockIDValidators:
		if len(payload)%types.AddressSize != 0 {
			return fmt.Errorf("validators slot must be a multiple of %d bytes, got %d", types.AddressSize, len(payload))
		}
	case LockIDEmergencyBrake:
		// any length; non-empty enables the brake, empty disables it.
	}
	return nil
}

// Get assembles a Snapshot from the current slot contents.
func (sc *SystemConfig) Get() Snapshot {
	var snap Snapshot
	if v := sc.slots[LockIDVersion].value; len(v) == 4 {
		snap.Version = beUint32(v)
	}
	if v := sc.slots[LockIDChainID].value; len(v) == types.HashSize {
		copy(snap.ChainID[:], v)
	}
	if v := sc.slots[LockIDAdmin].value; len(v) == types.AddressSize {
		copy(snap.Admin[:], v)
	}
	if v := sc.slots[LockIDBlockInterval].value; len(v) == 4 {
		snap.BlockInterval = beUint32(v)
	}
	if v := sc.slots[LockIDValidators].value; len(v) > 0 {
		for i := 0; i+types.AddressSize <= len(v); i += types.AddressSize {
			snap.Validators = append(snap.Validators, append([]byte(nil), v[i:i+types.AddressSize]...))
		}
	}
	snap.EmergencyBrake = len(sc.slots[LockIDEmergencyBrake].value) > 0
	return snap
}

// IsReconfigureSlot reports whether an update to lockID requires pushing a
// new ConsensusConfiguration.
func IsReconfigureSlot(lockID LockID) bool {
	return lockID == LockIDBlockInterval || lockID == LockIDValidators
}

func beUint32(b []byte) uint32 {
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}
