package rpcserver

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"

	"github.com/klingnet-chain/controller/internal/auth"
	"github.com/klingnet-chain/controller/internal/badgerstore"
	"github.com/klingnet-chain/controller/internal/chain"
	"github.com/klingnet-chain/controller/internal/corecrypto"
	"github.com/klingnet-chain/controller/internal/mempool"
	"github.com/klingnet-chain/controller/internal/services"
	"github.com/klingnet-chain/controller/internal/types"
)

func newTestServer(t *testing.T) (*Server, *corecrypto.PrivateKey) {
	t.Helper()
	storage := badgerstore.NewRegionStore(badgerstore.NewMemory())
	kms := services.NewLocalKMS()
	authenticator := auth.New(kms, storage)
	network := services.NewLocalNetwork()

	genesis := &types.Block{
		Header: types.Header{TransactionsRoot: corecrypto.Hash(nil)},
	}
	ch := chain.New(chain.Config{
		BlockDelayNumber: 0,
		Authenticator:    authenticator,
		Pool:             mempool.New(0),
		Storage:          storage,
		KMS:              kms,
		Executor:         services.NewLocalExecutor(),
		Consensus:        services.NewLocalConsensus(),
		Network:          network,
		Genesis:          genesis,
	})
	if err := ch.Init(context.Background()); err != nil {
		t.Fatalf("chain init: %v", err)
	}

	s := New("127.0.0.1:0", ch, network)
	if err := s.Start(); err != nil {
		t.Fatalf("server start: %v", err)
	}
	t.Cleanup(func() { _ = s.Stop(context.Background()) })

	key, err := corecrypto.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey() error: %v", err)
	}
	return s, key
}

func call(t *testing.T, s *Server, method string, params interface{}) *Response {
	t.Helper()
	reqBody, err := json.Marshal(Request{JSONRPC: "2.0", Method: method, Params: mustRaw(t, params), ID: mustRaw(t, 1)})
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	httpResp, err := http.Post(fmt.Sprintf("http://%s/", s.Addr()), "application/json", bytes.NewReader(reqBody))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer httpResp.Body.Close()

	var resp Response
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return &resp
}

func mustRaw(t *testing.T, v interface{}) json.RawMessage {
	t.Helper()
	if v == nil {
		return nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return raw
}

func signedRawTx(t *testing.T, key *corecrypto.PrivateKey) *types.RawTransaction {
	t.Helper()
	inner := &types.Transaction{
		Version:         0,
		Nonce:           []byte("abc"),
		ValidUntilBlock: 50,
	}
	hash := corecrypto.Hash(inner.Encode())
	sig, err := key.Sign(hash[:])
	if err != nil {
		t.Fatalf("Sign() error: %v", err)
	}
	return &types.RawTransaction{
		Kind: types.TxKindNormal,
		Normal: &types.NormalTx{
			Transaction:     inner,
			TransactionHash: hash,
			Witness:         &types.Witness{Sender: key.Address(), Signature: sig},
		},
	}
}

func TestGetBlockNumber(t *testing.T) {
	s, _ := newTestServer(t)
	resp := call(t, s, "controller_getBlockNumber", PendingParam{})
	if resp.Error != nil {
		t.Fatalf("error: %+v", resp.Error)
	}
	if got, ok := resp.Result.(float64); !ok || got != 0 {
		t.Errorf("result = %v, want 0", resp.Result)
	}
}

func TestSendRawTransaction_ThenDup(t *testing.T) {
	s, key := newTestServer(t)
	raw := signedRawTx(t, key)
	params := DataParam{Data: hex.EncodeToString(raw.Encode())}

	resp := call(t, s, "controller_sendRawTransaction", params)
	if resp.Error != nil {
		t.Fatalf("first send error: %+v", resp.Error)
	}
	if got := resp.Result.(string); got != raw.Normal.TransactionHash.String() {
		t.Errorf("result = %v, want tx hash", resp.Result)
	}

	resp = call(t, s, "controller_sendRawTransaction", params)
	if resp.Error == nil {
		t.Fatal("second identical send must fail")
	}
	if resp.Error.Code != CodeInternal || resp.Error.Message != string(types.ErrDuplicateTx) {
		t.Errorf("error = %+v, want Internal with duplicate_tx kind", resp.Error)
	}
}

func TestGetSystemConfig(t *testing.T) {
	s, _ := newTestServer(t)
	resp := call(t, s, "controller_getSystemConfig", nil)
	if resp.Error != nil {
		t.Fatalf("error: %+v", resp.Error)
	}
	result, ok := resp.Result.(map[string]interface{})
	if !ok {
		t.Fatalf("result is %T, want object", resp.Result)
	}
	for _, field := range []string{"chain_id", "validators_pre_hash", "block_interval"} {
		if _, present := result[field]; !present {
			t.Errorf("system config result missing %q", field)
		}
	}
}

func TestUnknownMethod(t *testing.T) {
	s, _ := newTestServer(t)
	resp := call(t, s, "controller_doesNotExist", nil)
	if resp.Error == nil || resp.Error.Code != CodeMethodUnknown {
		t.Errorf("error = %+v, want method-unknown", resp.Error)
	}
}

func TestGetProposal_NoCandidate(t *testing.T) {
	s, _ := newTestServer(t)
	resp := call(t, s, "consensus_getProposal", nil)
	if resp.Error == nil || resp.Error.Message != string(types.ErrNoCandidate) {
		t.Errorf("error = %+v, want Internal with no_candidate kind", resp.Error)
	}
}
