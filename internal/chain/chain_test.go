package chain

import (
	"context"
	"testing"

	"github.com/klingnet-chain/controller/internal/auth"
	"github.com/klingnet-chain/controller/internal/badgerstore"
	"github.com/klingnet-chain/controller/internal/corecrypto"
	"github.com/klingnet-chain/controller/internal/mempool"
	"github.com/klingnet-chain/controller/internal/services"
	"github.com/klingnet-chain/controller/internal/sysconfig"
	"github.com/klingnet-chain/controller/internal/types"
)

type testEnv struct {
	chain     *Chain
	storage   *badgerstore.RegionStore
	consensus *services.LocalConsensus
	network   *services.LocalNetwork
	pool      *mempool.Pool
	auth      *auth.Authenticator
}

func newTestChain(t *testing.T, blockDelayNumber uint64) *testEnv {
	t.Helper()
	storage := badgerstore.NewRegionStore(badgerstore.NewMemory())
	kms := services.NewLocalKMS()
	consensus := services.NewLocalConsensus()
	network := services.NewLocalNetwork()
	authenticator := auth.New(kms, storage)
	pool := mempool.New(0)

	genesis := &types.Block{
		Version: 0,
		Header: types.Header{
			Height:           0,
			TransactionsRoot: corecrypto.Hash(nil),
		},
	}

	c := New(Config{
		BlockDelayNumber: blockDelayNumber,
		Authenticator:    authenticator,
		Pool:             pool,
		Storage:          storage,
		KMS:              kms,
		Executor:         services.NewLocalExecutor(),
		Consensus:        consensus,
		Network:          network,
		Genesis:          genesis,
	})
	if err := c.Init(context.Background()); err != nil {
		t.Fatalf("Init() error: %v", err)
	}
	return &testEnv{chain: c, storage: storage, consensus: consensus, network: network, pool: pool, auth: authenticator}
}

func blockHashOf(b *types.Block) types.Hash {
	return corecrypto.Hash(b.Header.Encode())
}

// buildBlock chains a block onto prevHash at the given height, carrying
// the given transactions and a non-empty proof.
func buildBlock(height uint64, prevHash types.Hash, body []types.RawTransaction) *types.Block {
	data := make([]byte, 0)
	for i := range body {
		h, _ := body[i].Hash()
		data = append(data, h[:]...)
	}
	return &types.Block{
		Version: 0,
		Header: types.Header{
			PrevHash:         prevHash,
			Timestamp:        1700000000 + height,
			Height:           height,
			TransactionsRoot: corecrypto.Hash(data),
		},
		Body:  body,
		Proof: []byte{0xAA},
	}
}

func testTx(seed byte) types.RawTransaction {
	var h types.Hash
	h[0] = seed
	return types.RawTransaction{
		Kind:   types.TxKindNormal,
		Normal: &types.NormalTx{TransactionHash: h},
	}
}

func proposalBytes(block *types.Block) []byte {
	stripped := *block
	stripped.Proof = nil
	p := types.ProposalEnum{
		Kind: types.ProposalKindBft,
		Bft:  &types.BftProposal{Block: &stripped},
	}
	return p.Encode()
}

func TestInit_GenesisOnlyStart(t *testing.T) {
	env := newTestChain(t, 2)
	ctx := context.Background()

	if got := env.chain.BlockNumber(); got != 0 {
		t.Errorf("BlockNumber() = %d, want 0", got)
	}

	heightBytes, err := env.storage.Load(ctx, RegionMeta, encodeUint64(0))
	if err != nil {
		t.Fatalf("load region 0 key 0: %v", err)
	}
	height, err := decodeUint64(heightBytes)
	if err != nil || height != 0 {
		t.Errorf("region 0 key 0 = %d (err %v), want 0", height, err)
	}

	hashBytes, err := env.storage.Load(ctx, RegionBlockHash, encodeUint64(0))
	if err != nil {
		t.Fatalf("load region 4 key 0: %v", err)
	}
	wantHash := env.chain.BlockHash()
	if string(hashBytes) != string(wantHash.Bytes()) {
		t.Errorf("region 4 key 0 = %x, want genesis hash %x", hashBytes, wantHash)
	}
}

func TestAddRemoteProposal_Bounds(t *testing.T) {
	env := newTestChain(t, 2)

	low := buildBlock(0, types.Hash{}, nil)
	if _, err := env.chain.AddRemoteProposal(blockHashOf(low), low); !types.IsKind(err, types.ErrProposalTooLow) {
		t.Errorf("height 0: expected ProposalTooLow, got %v", err)
	}

	// 2*block_delay_number + 2 = 6 is the deepest admissible offset.
	high := buildBlock(7, types.Hash{}, nil)
	if _, err := env.chain.AddRemoteProposal(blockHashOf(high), high); !types.IsKind(err, types.ErrProposalTooHigh) {
		t.Errorf("height 7: expected ProposalTooHigh, got %v", err)
	}

	ok1 := buildBlock(1, env.chain.BlockHash(), nil)
	inserted, err := env.chain.AddRemoteProposal(blockHashOf(ok1), ok1)
	if err != nil || !inserted {
		t.Fatalf("first insert = %v, %v; want true, nil", inserted, err)
	}
	inserted, err = env.chain.AddRemoteProposal(blockHashOf(ok1), ok1)
	if err != nil || inserted {
		t.Errorf("second insert = %v, %v; want false, nil", inserted, err)
	}
}

func TestCommitBlock_ForkExtension(t *testing.T) {
	env := newTestChain(t, 2)
	ctx := context.Background()

	b1 := buildBlock(1, env.chain.BlockHash(), nil)
	b2 := buildBlock(2, blockHashOf(b1), nil)
	b3 := buildBlock(3, blockHashOf(b2), nil)

	for _, b := range []*types.Block{b1, b2} {
		if _, err := env.chain.AddRemoteProposal(blockHashOf(b), b); err != nil {
			t.Fatalf("AddRemoteProposal(%d) error: %v", b.Header.Height, err)
		}
	}

	_, status, err := env.chain.CommitBlock(ctx, 3, proposalBytes(b3), []byte{0xBB})
	if err != nil {
		t.Fatalf("CommitBlock() error: %v", err)
	}
	if status.Height != 3 {
		t.Errorf("status height = %d, want 3", status.Height)
	}

	if got := env.chain.BlockNumber(); got != 1 {
		t.Errorf("BlockNumber() = %d, want 1", got)
	}
	if got := env.chain.BlockHash(); got != blockHashOf(b1) {
		t.Errorf("BlockHash() = %s, want hash of block 1", got)
	}
	if got := env.chain.MainChainLen(); got != 2 {
		t.Errorf("MainChainLen() = %d, want 2", got)
	}
	if got := env.chain.ForkTreeLen(); got != 6 {
		t.Errorf("ForkTreeLen() = %d, want 6", got)
	}

	env.chain.mu.RLock()
	defer env.chain.mu.RUnlock()
	if env.chain.mainChain[0] != blockHashOf(b2) || env.chain.mainChain[1] != blockHashOf(b3) {
		t.Error("main chain should be [hash2, hash3]")
	}
}

func TestCommitBlock_DupTxAcrossCandidateChain(t *testing.T) {
	env := newTestChain(t, 2)
	ctx := context.Background()

	dup := testTx(7)
	b1 := buildBlock(1, env.chain.BlockHash(), []types.RawTransaction{dup})
	b2 := buildBlock(2, blockHashOf(b1), []types.RawTransaction{dup})

	if _, err := env.chain.AddRemoteProposal(blockHashOf(b1), b1); err != nil {
		t.Fatalf("AddRemoteProposal(1) error: %v", err)
	}

	_, _, err := env.chain.CommitBlock(ctx, 2, proposalBytes(b2), []byte{0xBB})
	if !types.IsKind(err, types.ErrCandidateChainDupTx) {
		t.Fatalf("expected CandidateChainHasDupTx, got %v", err)
	}

	if got := env.chain.BlockNumber(); got != 0 {
		t.Errorf("BlockNumber() = %d after rejected commit, want 0", got)
	}
	if got := env.chain.MainChainLen(); got != 0 {
		t.Errorf("MainChainLen() = %d after rejected commit, want 0", got)
	}
}

func TestCommitBlock_InterruptedAndNoProof(t *testing.T) {
	env := newTestChain(t, 2)
	ctx := context.Background()

	// Level 0 is empty: tracing block 2 back one level must fail.
	orphan := buildBlock(2, Hash1(), nil)
	_, _, err := env.chain.CommitBlock(ctx, 2, proposalBytes(orphan), []byte{0xBB})
	if !types.IsKind(err, types.ErrCandidateChainBroken) {
		t.Fatalf("expected CandidateChainInterrupted, got %v", err)
	}

	// A traced block without proof is rejected.
	noProof := buildBlock(1, env.chain.BlockHash(), nil)
	noProof.Proof = nil
	if _, err := env.chain.AddRemoteProposal(blockHashOf(noProof), noProof); err != nil {
		t.Fatalf("AddRemoteProposal error: %v", err)
	}
	child := buildBlock(2, blockHashOf(noProof), nil)
	_, _, err = env.chain.CommitBlock(ctx, 2, proposalBytes(child), []byte{0xBB})
	if !types.IsKind(err, types.ErrCandidateChainNoProof) {
		t.Fatalf("expected CandidateChainHasNoProof, got %v", err)
	}
}

func TestCommitBlock_DoesNotFitRemovesLeaf(t *testing.T) {
	env := newTestChain(t, 2)
	ctx := context.Background()

	var wrongPrev types.Hash
	wrongPrev[0] = 0xEE
	stray := buildBlock(1, wrongPrev, nil)
	_, _, err := env.chain.CommitBlock(ctx, 1, proposalBytes(stray), []byte{0xBB})
	if !types.IsKind(err, types.ErrCandidateChainDoesntFit) {
		t.Fatalf("expected CandidateChainDoesNotFit, got %v", err)
	}

	env.chain.mu.RLock()
	_, stillThere := env.chain.forkTree[0][blockHashOf(stray)]
	env.chain.mu.RUnlock()
	if stillThere {
		t.Error("the dangling leaf should be removed from fork level 0")
	}
}

func TestCommitBlock_IdempotentCommit(t *testing.T) {
	env := newTestChain(t, 0)
	ctx := context.Background()

	b1 := buildBlock(1, env.chain.BlockHash(), nil)
	proposal := proposalBytes(b1)

	_, status, err := env.chain.CommitBlock(ctx, 1, proposal, []byte{0xBB})
	if err != nil {
		t.Fatalf("first CommitBlock() error: %v", err)
	}
	if status.Height != 1 || env.chain.BlockNumber() != 1 {
		t.Fatalf("first commit: status height %d, block number %d; want 1, 1", status.Height, env.chain.BlockNumber())
	}

	_, _, err = env.chain.CommitBlock(ctx, 1, proposal, []byte{0xBB})
	if !types.IsKind(err, types.ErrProposalTooLow) {
		t.Errorf("second commit: expected ProposalTooLow, got %v", err)
	}
}

func TestFinalize_SystemConfigTriggersReconfigure(t *testing.T) {
	env := newTestChain(t, 0)
	ctx := context.Background()

	newValidators := make([]byte, types.AddressSize)
	newValidators[0] = 0xCD
	utxoBody := &types.UtxoTransaction{
		Version: 0,
		Output:  newValidators,
		LockID:  uint32(sysconfig.LockIDValidators),
	}
	txHash := corecrypto.Hash(utxoBody.Encode())
	raw := types.RawTransaction{
		Kind: types.TxKindUtxo,
		Utxo: &types.UtxoTx{Transaction: utxoBody, TransactionHash: txHash},
	}

	before := env.consensus.ReconfigureCalls()
	b1 := buildBlock(1, env.chain.BlockHash(), []types.RawTransaction{raw})
	_, _, err := env.chain.CommitBlock(ctx, 1, proposalBytes(b1), []byte{0xBB})
	if err != nil {
		t.Fatalf("CommitBlock() error: %v", err)
	}

	snap := env.chain.SystemConfig()
	if len(snap.Validators) != 1 || string(snap.Validators[0]) != string(newValidators) {
		t.Errorf("validators = %x, want %x", snap.Validators, newValidators)
	}

	recorded, err := env.storage.Load(ctx, RegionMeta, encodeUint64(uint64(sysconfig.LockIDValidators)))
	if err != nil {
		t.Fatalf("load region 0 lock_id key: %v", err)
	}
	if string(recorded) != string(txHash.Bytes()) {
		t.Errorf("region 0 lock_id record = %x, want %x", recorded, txHash)
	}

	if got := env.consensus.ReconfigureCalls() - before; got != 1 {
		t.Errorf("Reconfigure called %d times, want exactly 1", got)
	}
}

func TestFinalize_WindowAndPoolUpdated(t *testing.T) {
	env := newTestChain(t, 0)
	ctx := context.Background()

	tx := testTx(3)
	env.pool.Enqueue(&tx, tx.Normal.TransactionHash)

	b1 := buildBlock(1, env.chain.BlockHash(), []types.RawTransaction{tx})
	if _, _, err := env.chain.CommitBlock(ctx, 1, proposalBytes(b1), []byte{0xBB}); err != nil {
		t.Fatalf("CommitBlock() error: %v", err)
	}

	if got := env.pool.Len(); got != 0 {
		t.Errorf("pool length after finalize = %d, want 0", got)
	}
	if got := env.auth.CurrentBlockNumber(); got != 1 {
		t.Errorf("authenticator current height = %d, want 1", got)
	}
}

func TestAddProposal_BuildsCandidate(t *testing.T) {
	env := newTestChain(t, 0)
	ctx := context.Background()

	tx := testTx(9)
	env.pool.Enqueue(&tx, tx.Normal.TransactionHash)

	if err := env.chain.AddProposal(ctx); err != nil {
		t.Fatalf("AddProposal() error: %v", err)
	}
	height, data, err := env.chain.GetProposal(ctx)
	if err != nil {
		t.Fatalf("GetProposal() error: %v", err)
	}
	if height != 1 {
		t.Errorf("proposal height = %d, want 1", height)
	}

	proposal, err := types.DecodeProposalEnum(data)
	if err != nil {
		t.Fatalf("decode proposal: %v", err)
	}
	if proposal.Bft == nil || proposal.Bft.Block == nil {
		t.Fatal("proposal must carry a block")
	}
	if len(proposal.Bft.Block.Proof) != 0 {
		t.Error("proposal block must have an empty proof")
	}
	if len(proposal.Bft.Block.Body) != 1 {
		t.Errorf("proposal body has %d txs, want 1", len(proposal.Bft.Block.Body))
	}

	// A second AddProposal is a no-op while a candidate exists.
	if err := env.chain.AddProposal(ctx); err != nil {
		t.Fatalf("second AddProposal() error: %v", err)
	}
}

func TestGetProposal_NoEarlyStatus(t *testing.T) {
	env := newTestChain(t, 2)
	ctx := context.Background()

	if err := env.chain.AddProposal(ctx); err != nil {
		t.Fatalf("AddProposal() error: %v", err)
	}
	// Height 1 with delay 2 needs history at height -2: not available.
	_, _, err := env.chain.GetProposal(ctx)
	if !types.IsKind(err, types.ErrNoEarlyStatus) {
		t.Errorf("expected NoEarlyStatus, got %v", err)
	}
}

func TestCheckProposal_Mismatch(t *testing.T) {
	env := newTestChain(t, 0)
	ctx := context.Background()

	b1 := buildBlock(1, env.chain.BlockHash(), nil)
	stripped := *b1
	stripped.Proof = nil
	bad := types.ProposalEnum{
		Kind: types.ProposalKindBft,
		Bft: &types.BftProposal{
			Block:        &stripped,
			PreStateRoot: []byte{0xDE, 0xAD},
		},
	}
	_, err := env.chain.CheckProposal(ctx, 1, bad.Encode())
	if !types.IsKind(err, types.ErrProposalCheckError) {
		t.Errorf("expected ProposalCheckError, got %v", err)
	}
}

func TestNextStep(t *testing.T) {
	env := newTestChain(t, 2)

	if got := env.chain.NextStep(); got != StepOnline {
		t.Errorf("no peers ahead: NextStep() = %v, want Online", got)
	}

	env.chain.UpdateGlobalStatus(&types.ChainStatus{Height: 1})
	if got := env.chain.NextStep(); got != StepSync {
		t.Errorf("peer ahead with empty fork level 0: NextStep() = %v, want Sync", got)
	}

	// With a proposal at level 0 and a small gap, stay online.
	b1 := buildBlock(1, env.chain.BlockHash(), nil)
	if _, err := env.chain.AddRemoteProposal(blockHashOf(b1), b1); err != nil {
		t.Fatalf("AddRemoteProposal error: %v", err)
	}
	if got := env.chain.NextStep(); got != StepOnline {
		t.Errorf("small gap with level 0 occupied: NextStep() = %v, want Online", got)
	}

	env.chain.UpdateGlobalStatus(&types.ChainStatus{Height: ForceInSync})
	if got := env.chain.NextStep(); got != StepSync {
		t.Errorf("gap at ForceInSync: NextStep() = %v, want Sync", got)
	}
}

func TestProcessBlock_Sync(t *testing.T) {
	env := newTestChain(t, 0)
	ctx := context.Background()

	b1 := buildBlock(1, env.chain.BlockHash(), nil)
	_, status, err := env.chain.ProcessBlock(ctx, b1)
	if err != nil {
		t.Fatalf("ProcessBlock() error: %v", err)
	}
	if status.Height != 1 || env.chain.BlockNumber() != 1 {
		t.Errorf("after sync: status height %d, block number %d; want 1, 1", status.Height, env.chain.BlockNumber())
	}

	wrong := buildBlock(2, Hash1(), nil)
	_, _, err = env.chain.ProcessBlock(ctx, wrong)
	if !types.IsKind(err, types.ErrBlockCheckError) {
		t.Errorf("expected BlockCheckError for wrong prevhash, got %v", err)
	}
}

// Hash1 returns a fixed nonzero hash for negative tests.
func Hash1() types.Hash {
	var h types.Hash
	h[0] = 1
	return h
}
