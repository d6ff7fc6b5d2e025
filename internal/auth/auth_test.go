package auth

import (
	"context"
	"testing"

	"github.com/klingnet-chain/controller/internal/badgerstore"
	"github.com/klingnet-chain/controller/internal/corecrypto"
	"github.com/klingnet-chain/controller/internal/services"
	"github.com/klingnet-chain/controller/internal/types"
)

func newTestAuthenticator(t *testing.T) (*Authenticator, *corecrypto.PrivateKey) {
	t.Helper()
	kms := services.NewLocalKMS()
	storage := badgerstore.NewRegionStore(badgerstore.NewMemory())
	a := New(kms, storage)

	key, err := corecrypto.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey() error: %v", err)
	}
	return a, key
}

func buildNormalTx(t *testing.T, key *corecrypto.PrivateKey, validUntil uint64, chainID types.Hash) *types.NormalTx {
	t.Helper()
	inner := &types.Transaction{
		Version:         0,
		Nonce:           []byte("abc"),
		ValidUntilBlock: validUntil,
		ChainID:         chainID,
	}
	encoded := inner.Encode()
	hash := corecrypto.Hash(encoded)
	sig, err := key.Sign(hash[:])
	if err != nil {
		t.Fatalf("Sign() error: %v", err)
	}
	return &types.NormalTx{
		Transaction:     inner,
		TransactionHash: hash,
		Witness:         &types.Witness{Sender: key.Address(), Signature: sig},
	}
}

func TestCheckRawTx_AdmitsValidTransaction(t *testing.T) {
	a, key := newTestAuthenticator(t)
	n := buildNormalTx(t, key, 50, types.Hash{})
	hash, err := a.CheckRawTx(context.Background(), &types.RawTransaction{Kind: types.TxKindNormal, Normal: n})
	if err != nil {
		t.Fatalf("CheckRawTx() error: %v", err)
	}
	if hash != n.TransactionHash {
		t.Errorf("CheckRawTx() = %x, want %x", hash, n.TransactionHash)
	}
}

func TestCheckRawTx_RejectsInvalidValidUntil(t *testing.T) {
	a, key := newTestAuthenticator(t)
	n := buildNormalTx(t, key, 0, types.Hash{})
	_, err := a.CheckRawTx(context.Background(), &types.RawTransaction{Kind: types.TxKindNormal, Normal: n})
	if !types.IsKind(err, types.ErrInvalidValidUntil) {
		t.Fatalf("expected InvalidValidUntil, got %v", err)
	}
}

func TestCheckRawTx_RejectsWrongChainID(t *testing.T) {
	a, key := newTestAuthenticator(t)
	n := buildNormalTx(t, key, 50, types.Hash{0xFF})
	_, err := a.CheckRawTx(context.Background(), &types.RawTransaction{Kind: types.TxKindNormal, Normal: n})
	if !types.IsKind(err, types.ErrInvalidChainID) {
		t.Fatalf("expected InvalidChainId, got %v", err)
	}
}

func TestCheckRawTx_RejectsDuplicate(t *testing.T) {
	a, key := newTestAuthenticator(t)
	n := buildNormalTx(t, key, 50, types.Hash{})
	a.InsertTxHash(1, []types.Hash{n.TransactionHash})
	_, err := a.CheckRawTx(context.Background(), &types.RawTransaction{Kind: types.TxKindNormal, Normal: n})
	if !types.IsKind(err, types.ErrDuplicateTx) {
		t.Fatalf("expected DuplicateTx, got %v", err)
	}
}

func TestCheckRawTx_RejectsWrongSigner(t *testing.T) {
	a, key := newTestAuthenticator(t)
	n := buildNormalTx(t, key, 50, types.Hash{})
	n.Witness.Sender = types.Address{0x01}
	_, err := a.CheckRawTx(context.Background(), &types.RawTransaction{Kind: types.TxKindNormal, Normal: n})
	if !types.IsKind(err, types.ErrInvalidSender) {
		t.Fatalf("expected InvalidSender, got %v", err)
	}
}

func TestInsertTxHash_EvictsOutsideWindow(t *testing.T) {
	a, key := newTestAuthenticator(t)
	n := buildNormalTx(t, key, 150, types.Hash{})
	a.InsertTxHash(1, []types.Hash{n.TransactionHash})
	a.InsertTxHash(BlockLimit+1, nil)

	if err := a.checkTxHash(n.TransactionHash); err != nil {
		t.Errorf("hash from evicted height should no longer be tracked, got %v", err)
	}
}
