// Package auth implements the Authenticator: per-transaction
// structural validation, KMS-backed signature/hash verification, and a
// short-window replay check over the last BLOCKLIMIT blocks' tx hashes. It
// owns the UTXO system-config set.
package auth

import (
	"context"
	"sync"

	"github.com/klingnet-chain/controller/internal/services"
	"github.com/klingnet-chain/controller/internal/sysconfig"
	"github.com/klingnet-chain/controller/internal/types"
)

// BlockLimit is the replay-window depth in blocks, and also the maximum
// span valid_until_block may look ahead of the current height.
const BlockLimit = 100

// Authenticator owns SystemConfig and the history window, and gates every
// transaction admitted into the Pool.
type Authenticator struct {
	mu sync.RWMutex

	kms     services.KMS
	storage services.Storage

	sysConfig *sysconfig.SystemConfig

	currentBlockNumber uint64
	// window maps height -> set of tx hashes finalized at that height, for
	// heights in (currentBlockNumber-BlockLimit, currentBlockNumber].
	window map[uint64]map[types.Hash]struct{}
}

// New builds an Authenticator backed by kms and storage.
func New(kms services.KMS, storage services.Storage) *Authenticator {
	return &Authenticator{
		kms:       kms,
		storage:   storage,
		sysConfig: sysconfig.New(),
		window:    make(map[uint64]map[types.Hash]struct{}),
	}
}

// SystemConfig returns the owned system-config set. Callers must hold no
// assumption of thread-safety beyond what SystemConfig itself offers.
// At boot, before the chain starts, the caller installs the genesis values
// and replays recorded system-config transactions through it; after that,
// mutation only happens from inside finalize, under the Authenticator
// lock (see chain.finalizeBlock).
func (a *Authenticator) SystemConfig() *sysconfig.SystemConfig {
	return a.sysConfig
}

// UpdateSystemConfig applies a utxo transaction to its system-config slot
// under the Authenticator lock. Returns whether the slot actually changed.
// Called only from chain.finalizeBlock, which holds the Chain lock above
// this one (lock order Chain → Authenticator).
func (a *Authenticator) UpdateSystemConfig(tx *types.UtxoTransaction, txHash types.Hash) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.sysConfig.Update(tx, txHash, false)
}

// SystemConfigSnapshot returns a consistent view of all six slots.
func (a *Authenticator) SystemConfigSnapshot() sysconfig.Snapshot {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.sysConfig.Get()
}

// HeadTxHash returns the chain-head transaction hash of a slot.
func (a *Authenticator) HeadTxHash(id sysconfig.LockID) types.Hash {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.sysConfig.HeadTxHash(id)
}

// CurrentBlockNumber returns the highest height reflected in the history
// window.
func (a *Authenticator) CurrentBlockNumber() uint64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.currentBlockNumber
}

// Init backfills the history window by fetching block bodies for
// [max(1, initHeight-BlockLimit+1), initHeight] from Storage region 3 and
// decoding their tx-hash lists. The backfill range starts at 1, never at
// the genesis block, so genesis transactions are not tracked by the
// window; changing finalized-history semantics is not this component's
// call to make unilaterally.
func (a *Authenticator) Init(ctx context.Context, initHeight uint64) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	start := uint64(1)
	if initHeight >= BlockLimit {
		start = initHeight - BlockLimit + 1
	}
	for h := start; h <= initHeight; h++ {
		body, err := a.storage.LoadMaybeEmpty(ctx, regionCompactBody, encodeHeight(h))
		if err != nil {
			return err
		}
		if len(body) == 0 {
			continue
		}
		compact, err := types.DecodeCompactBody(body)
		if err != nil {
			return err
		}
		a.insertLocked(h, compact.TxHashes)
	}
	if initHeight > a.currentBlockNumber {
		a.currentBlockNumber = initHeight
	}
	return nil
}

// InsertTxHash records the tx hashes finalized at height h, evicts the
// hashes finalized at h-BlockLimit, and advances currentBlockNumber.
func (a *Authenticator) InsertTxHash(h uint64, hashes []types.Hash) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.insertLocked(h, hashes)
	if h > a.currentBlockNumber {
		a.currentBlockNumber = h
	}
}

func (a *Authenticator) insertLocked(h uint64, hashes []types.Hash) {
	set := make(map[types.Hash]struct{}, len(hashes))
	for _, hash := range hashes {
		set[hash] = struct{}{}
	}
	a.window[h] = set
	if h >= BlockLimit {
		delete(a.window, h-BlockLimit)
	}
}

// CheckRawTx runs the full admission contract for a raw transaction and
// returns its transaction hash on success.
func (a *Authenticator) CheckRawTx(ctx context.Context, raw *types.RawTransaction) (types.Hash, error) {
	switch raw.Kind {
	case types.TxKindNormal:
		return a.checkNormalTx(ctx, raw.Normal)
	case types.TxKindUtxo:
		return a.checkUtxoTx(ctx, raw.Utxo)
	default:
		return types.Hash{}, types.NewCoreError(types.ErrDecode, "unknown transaction kind")
	}
}

func (a *Authenticator) checkNormalTx(ctx context.Context, n *types.NormalTx) (types.Hash, error) {
	if n == nil || n.Transaction == nil {
		return types.Hash{}, types.NewCoreError(types.ErrEmptyBody, "normal transaction body is missing")
	}
	if n.Witness == nil {
		return types.Hash{}, types.NewCoreError(types.ErrEmptyWitness, "normal transaction witness is missing")
	}

	if err := a.checkTransaction(n.Transaction); err != nil {
		return types.Hash{}, err
	}

	encoded := n.Transaction.Encode()
	ok, err := a.kms.VerifyTxHash(ctx, n.TransactionHash, encoded)
	if err != nil {
		return types.Hash{}, types.WrapCoreError(types.ErrKmsUnavailable, "kms verify_tx_hash failed", err)
	}
	if !ok {
		return types.Hash{}, types.NewCoreError(types.ErrInvalidHash, "transaction hash does not match its encoded body")
	}

	recovered, err := a.kms.RecoverSignature(ctx, n.TransactionHash, n.Witness.Signature)
	if err != nil {
		return types.Hash{}, types.WrapCoreError(types.ErrKmsUnavailable, "kms recover_signature failed", err)
	}
	if recovered != n.Witness.Sender {
		return types.Hash{}, types.NewCoreError(types.ErrInvalidSender, "recovered signer does not match declared sender")
	}

	if err := a.checkTxHash(n.TransactionHash); err != nil {
		return types.Hash{}, err
	}
	return n.TransactionHash, nil
}

func (a *Authenticator) checkUtxoTx(ctx context.Context, u *types.UtxoTx) (types.Hash, error) {
	if u == nil || u.Transaction == nil {
		return types.Hash{}, types.NewCoreError(types.ErrEmptyBody, "utxo transaction body is missing")
	}
	if len(u.Witnesses) == 0 {
		return types.Hash{}, types.NewCoreError(types.ErrEmptyWitness, "utxo transaction has no witnesses")
	}

	encoded := u.Transaction.Encode()
	ok, err := a.kms.VerifyTxHash(ctx, u.TransactionHash, encoded)
	if err != nil {
		return types.Hash{}, types.WrapCoreError(types.ErrKmsUnavailable, "kms verify_tx_hash failed", err)
	}
	if !ok {
		return types.Hash{}, types.NewCoreError(types.ErrInvalidHash, "transaction hash does not match its encoded body")
	}

	for i := range u.Witnesses {
		w := &u.Witnesses[i]
		recovered, err := a.kms.RecoverSignature(ctx, u.TransactionHash, w.Signature)
		if err != nil {
			return types.Hash{}, types.WrapCoreError(types.ErrKmsUnavailable, "kms recover_signature failed", err)
		}
		if recovered != w.Sender {
			return types.Hash{}, types.NewCoreError(types.ErrInvalidSender, "recovered signer does not match declared sender")
		}
	}
	// Replay window is not consulted for utxo txs: they are chained by
	// pre_tx_hash instead.
	return u.TransactionHash, nil
}

// checkTransaction runs the structural admission checks against a Normal
// transaction's inner body.
func (a *Authenticator) checkTransaction(tx *types.Transaction) error {
	if tx.Version != 0 {
		return types.NewCoreError(types.ErrInvalidVersion, "version must be 0")
	}
	if len(tx.Nonce) > 128 {
		return types.NewCoreError(types.ErrInvalidNonce, "nonce exceeds 128 bytes")
	}

	a.mu.RLock()
	chainID := a.sysConfig.Get().ChainID
	current := a.currentBlockNumber
	a.mu.RUnlock()

	// Compared against the live configured chain_id, never a literal
	// zero vector.
	if tx.ChainID != chainID {
		return types.NewCoreError(types.ErrInvalidChainID, "chain_id does not match the configured chain")
	}
	if !(tx.ValidUntilBlock > current && tx.ValidUntilBlock <= current+BlockLimit) {
		return types.NewCoreError(types.ErrInvalidValidUntil, "valid_until_block is out of the admissible window")
	}
	return nil
}

// checkTxHash rejects a hash already present in the replay window.
func (a *Authenticator) checkTxHash(hash types.Hash) error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	for _, set := range a.window {
		if _, dup := set[hash]; dup {
			return types.NewCoreError(types.ErrDuplicateTx, "transaction hash already present in the replay window")
		}
	}
	return nil
}

const regionCompactBody = 3

func encodeHeight(h uint64) []byte {
	w := types.NewWriter()
	w.PutUint64(h)
	return w.Bytes()
}
