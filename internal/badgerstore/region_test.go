package badgerstore

import (
	"context"
	"testing"
)

func TestRegionStore_StoreLoad(t *testing.T) {
	rs := NewRegionStore(NewMemory())
	ctx := context.Background()

	ok, err := rs.Store(ctx, 0, []byte{0}, []byte{1, 2, 3})
	if err != nil || !ok {
		t.Fatalf("Store() = %v, %v", ok, err)
	}

	got, err := rs.Load(ctx, 0, []byte{0})
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if string(got) != string([]byte{1, 2, 3}) {
		t.Errorf("Load() = %v, want [1 2 3]", got)
	}
}

func TestRegionStore_IsolatesRegions(t *testing.T) {
	rs := NewRegionStore(NewMemory())
	ctx := context.Background()

	rs.Store(ctx, 0, []byte{0}, []byte("region0"))
	rs.Store(ctx, 1, []byte{0}, []byte("region1"))

	v0, _ := rs.Load(ctx, 0, []byte{0})
	v1, _ := rs.Load(ctx, 1, []byte{0})
	if string(v0) == string(v1) {
		t.Error("regions 0 and 1 must not share the same key")
	}
}

func TestRegionStore_LoadMaybeEmpty_Absent(t *testing.T) {
	rs := NewRegionStore(NewMemory())
	v, err := rs.LoadMaybeEmpty(context.Background(), 5, []byte{9})
	if err != nil {
		t.Fatalf("LoadMaybeEmpty() error: %v", err)
	}
	if v != nil {
		t.Errorf("LoadMaybeEmpty() for absent key = %v, want nil", v)
	}
}

func TestRegionStore_Load_AbsentReturnsError(t *testing.T) {
	rs := NewRegionStore(NewMemory())
	_, err := rs.Load(context.Background(), 5, []byte{9})
	if err == nil {
		t.Error("Load() for absent key should return an error")
	}
}
