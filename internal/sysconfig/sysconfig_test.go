package sysconfig

import (
	"testing"

	"github.com/klingnet-chain/controller/internal/types"
)

func mustHash(b byte) types.Hash {
	var h types.Hash
	h[0] = b
	return h
}

func TestUpdate_GenesisChain(t *testing.T) {
	sc := New()
	tx := &types.UtxoTransaction{LockID: uint32(LockIDBlockInterval), Output: []byte{0, 0, 0, 3}, PreTxHash: types.Hash{}}
	txHash := mustHash(1)
	if ok := sc.Update(tx, txHash, false); !ok {
		t.Fatal("genesis update with zero pre_tx_hash should succeed")
	}
	if sc.HeadTxHash(LockIDBlockInterval) != txHash {
		t.Errorf("head tx hash not advanced")
	}
	if got := sc.Get().BlockInterval; got != 3 {
		t.Errorf("BlockInterval = %d, want 3", got)
	}
}

func TestUpdate_RejectsWrongPreHash(t *testing.T) {
	sc := New()
	tx := &types.UtxoTransaction{LockID: uint32(LockIDAdmin), Output: make([]byte, types.AddressSize), PreTxHash: mustHash(9)}
	if ok := sc.Update(tx, mustHash(1), false); ok {
		t.Error("update should be rejected when pre_tx_hash does not match current head")
	}
}

func TestUpdate_ChainsCorrectly(t *testing.T) {
	sc := New()
	first := &types.UtxoTransaction{LockID: uint32(LockIDValidators), Output: make([]byte, types.AddressSize), PreTxHash: types.Hash{}}
	firstHash := mustHash(1)
	if !sc.Update(first, firstHash, false) {
		t.Fatal("first update should succeed")
	}
	second := &types.UtxoTransaction{LockID: uint32(LockIDValidators), Output: make([]byte, 2*types.AddressSize), PreTxHash: firstHash}
	secondHash := mustHash(2)
	if !sc.Update(second, secondHash, false) {
		t.Fatal("second update chained off first head should succeed")
	}
	if sc.HeadTxHash(LockIDValidators) != secondHash {
		t.Error("head should now be the second tx hash")
	}
	if got := len(sc.Get().Validators); got != 2 {
		t.Errorf("validator count = %d, want 2", got)
	}
}

func TestUpdate_StrictInstallsRecordedTx(t *testing.T) {
	sc := New()
	// A replayed record may chain off an earlier tx the replay never
	// sees; strict mode installs it without re-checking the chain.
	tx := &types.UtxoTransaction{LockID: uint32(LockIDAdmin), Output: make([]byte, types.AddressSize), PreTxHash: mustHash(5)}
	if !sc.Update(tx, mustHash(6), true) {
		t.Fatal("strict replay should install the recorded transaction")
	}
	if sc.HeadTxHash(LockIDAdmin) != mustHash(6) {
		t.Error("head should advance to the replayed tx hash")
	}
}

func TestUpdate_StrictPanicsOnMalformedRecord(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("expected panic on malformed record during strict replay")
		}
	}()
	sc := New()
	tx := &types.UtxoTransaction{LockID: uint32(LockIDAdmin), Output: []byte{1, 2, 3}, PreTxHash: types.Hash{}}
	sc.Update(tx, mustHash(1), true)
}

func TestIsReconfigureSlot(t *testing.T) {
	if !IsReconfigureSlot(LockIDValidators) || !IsReconfigureSlot(LockIDBlockInterval) {
		t.Error("validators and block_interval must trigger reconfigure")
	}
	if IsReconfigureSlot(LockIDAdmin) {
		t.Error("admin must not trigger reconfigure")
	}
}
