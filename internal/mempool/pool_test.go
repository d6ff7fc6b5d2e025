package mempool

import (
	"testing"

	"github.com/klingnet-chain/controller/internal/types"
)

func rawTxWithValidUntil(h types.Hash, validUntil uint64) *types.RawTransaction {
	return &types.RawTransaction{
		Kind: types.TxKindNormal,
		Normal: &types.NormalTx{
			Transaction:     &types.Transaction{ValidUntilBlock: validUntil},
			TransactionHash: h,
		},
	}
}

func TestEnqueue_RejectsDuplicate(t *testing.T) {
	p := New(10)
	h := types.Hash{1}
	raw := rawTxWithValidUntil(h, 100)
	if !p.Enqueue(raw, h) {
		t.Fatal("first enqueue should succeed")
	}
	if p.Enqueue(raw, h) {
		t.Error("duplicate enqueue should return false")
	}
}

func TestEnqueue_RejectsAtCapacity(t *testing.T) {
	p := New(1)
	p.Enqueue(rawTxWithValidUntil(types.Hash{1}, 100), types.Hash{1})
	if p.Enqueue(rawTxWithValidUntil(types.Hash{2}, 100), types.Hash{2}) {
		t.Error("enqueue beyond capacity should return false")
	}
}

func TestPackage_PreservesInsertionOrder(t *testing.T) {
	p := New(10)
	p.Enqueue(rawTxWithValidUntil(types.Hash{1}, 100), types.Hash{1})
	p.Enqueue(rawTxWithValidUntil(types.Hash{2}, 100), types.Hash{2})
	p.Enqueue(rawTxWithValidUntil(types.Hash{3}, 100), types.Hash{3})

	hashes, _ := p.Package(1)
	want := []types.Hash{{1}, {2}, {3}}
	if len(hashes) != len(want) {
		t.Fatalf("Package() returned %d hashes, want %d", len(hashes), len(want))
	}
	for i := range want {
		if hashes[i] != want[i] {
			t.Errorf("hashes[%d] = %x, want %x", i, hashes[i], want[i])
		}
	}
}

func TestPackage_SkipsExpired(t *testing.T) {
	p := New(10)
	p.Enqueue(rawTxWithValidUntil(types.Hash{1}, 5), types.Hash{1})
	p.Enqueue(rawTxWithValidUntil(types.Hash{2}, 50), types.Hash{2})

	hashes, _ := p.Package(10)
	if len(hashes) != 1 || hashes[0] != (types.Hash{2}) {
		t.Errorf("Package(10) = %v, want only hash {2}", hashes)
	}
}

func TestUpdate_RemovesAndPreservesOrder(t *testing.T) {
	p := New(10)
	p.Enqueue(rawTxWithValidUntil(types.Hash{1}, 100), types.Hash{1})
	p.Enqueue(rawTxWithValidUntil(types.Hash{2}, 100), types.Hash{2})
	p.Enqueue(rawTxWithValidUntil(types.Hash{3}, 100), types.Hash{3})

	p.Update([]types.Hash{{2}})

	if p.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", p.Len())
	}
	hashes, _ := p.Package(1)
	if len(hashes) != 2 || hashes[0] != (types.Hash{1}) || hashes[1] != (types.Hash{3}) {
		t.Errorf("Package() after Update = %v, want [{1} {3}]", hashes)
	}
}

func TestGet_AbsentReturnsNil(t *testing.T) {
	p := New(10)
	if p.Get(types.Hash{9}) != nil {
		t.Error("Get() for absent hash should return nil")
	}
}
