package types

import (
	"bytes"
	"testing"
)

func sampleNormalRaw() *RawTransaction {
	var chainID Hash
	chainID[31] = 1
	var to Address
	to[0] = 0xAB
	var value [ValueSize]byte
	value[31] = 9
	var txHash Hash
	txHash[0] = 0x11
	return &RawTransaction{
		Kind: TxKindNormal,
		Normal: &NormalTx{
			Transaction: &Transaction{
				Version:         0,
				To:              to,
				Nonce:           []byte("abc"),
				Quota:           21000,
				ValidUntilBlock: 50,
				Data:            []byte{1, 2, 3},
				Value:           value,
				ChainID:         chainID,
			},
			TransactionHash: txHash,
			Witness: &Witness{
				Sender:    to,
				Signature: bytes.Repeat([]byte{0x5A}, 65),
			},
		},
	}
}

func sampleUtxoRaw() *RawTransaction {
	var preHash Hash
	preHash[3] = 7
	var txHash Hash
	txHash[0] = 0x22
	var sender Address
	sender[19] = 4
	return &RawTransaction{
		Kind: TxKindUtxo,
		Utxo: &UtxoTx{
			Transaction: &UtxoTransaction{
				Version:   0,
				PreTxHash: preHash,
				Output:    []byte{9, 9, 9, 9},
				LockID:    4,
			},
			TransactionHash: txHash,
			Witnesses: []Witness{
				{Sender: sender, Signature: bytes.Repeat([]byte{0x01}, 65)},
				{Sender: sender, Signature: bytes.Repeat([]byte{0x02}, 65)},
			},
		},
	}
}

func TestRawTransaction_RoundTrip(t *testing.T) {
	for _, raw := range []*RawTransaction{sampleNormalRaw(), sampleUtxoRaw()} {
		encoded := raw.Encode()
		decoded, err := DecodeRawTransaction(encoded)
		if err != nil {
			t.Fatalf("DecodeRawTransaction() error: %v", err)
		}
		if !bytes.Equal(decoded.Encode(), encoded) {
			t.Errorf("kind %d: re-encode does not match original bytes", raw.Kind)
		}
	}
}

func TestBlock_RoundTrip(t *testing.T) {
	var prevHash, root Hash
	prevHash[0] = 0xAA
	root[0] = 0xBB
	var proposer Address
	proposer[0] = 0xCC
	block := &Block{
		Version: 0,
		Header: Header{
			PrevHash:         prevHash,
			Timestamp:        1700000000,
			Height:           42,
			TransactionsRoot: root,
			Proposer:         proposer,
		},
		Body:  []RawTransaction{*sampleNormalRaw(), *sampleUtxoRaw()},
		Proof: []byte{0xDE, 0xAD},
	}

	encoded := block.Encode()
	decoded, err := DecodeBlock(encoded)
	if err != nil {
		t.Fatalf("DecodeBlock() error: %v", err)
	}
	if !bytes.Equal(decoded.Encode(), encoded) {
		t.Error("re-encode does not match original bytes")
	}
	if decoded.Header.Height != 42 || len(decoded.Body) != 2 {
		t.Errorf("decoded header height %d, body %d; want 42, 2", decoded.Header.Height, len(decoded.Body))
	}
}

func TestCompactBody_RoundTrip(t *testing.T) {
	var h1, h2 Hash
	h1[0], h2[0] = 1, 2
	c := &CompactBody{TxHashes: []Hash{h1, h2}}
	decoded, err := DecodeCompactBody(c.Encode())
	if err != nil {
		t.Fatalf("DecodeCompactBody() error: %v", err)
	}
	if !bytes.Equal(decoded.Encode(), c.Encode()) {
		t.Error("re-encode does not match original bytes")
	}
}

func TestProposalEnum_RoundTrip(t *testing.T) {
	block := &Block{
		Version: 0,
		Header:  Header{Height: 7},
		Body:    []RawTransaction{*sampleNormalRaw()},
	}
	p := &ProposalEnum{
		Kind: ProposalKindBft,
		Bft: &BftProposal{
			Block:        block,
			PreStateRoot: []byte{1, 2},
			PreProof:     []byte{3, 4},
		},
	}
	encoded := p.Encode()
	decoded, err := DecodeProposalEnum(encoded)
	if err != nil {
		t.Fatalf("DecodeProposalEnum() error: %v", err)
	}
	if !bytes.Equal(decoded.Encode(), encoded) {
		t.Error("re-encode does not match original bytes")
	}
	if decoded.Bft.Block.Header.Height != 7 {
		t.Errorf("decoded block height = %d, want 7", decoded.Bft.Block.Header.Height)
	}
}

func TestChainStatus_RoundTrip(t *testing.T) {
	var chainID, hash Hash
	chainID[0], hash[0] = 3, 4
	var addr Address
	addr[0] = 5
	s := &ChainStatus{Version: 1, ChainID: chainID, Height: 99, Hash: hash, Address: &addr}
	decoded, err := DecodeChainStatus(s.Encode())
	if err != nil {
		t.Fatalf("DecodeChainStatus() error: %v", err)
	}
	if !bytes.Equal(decoded.Encode(), s.Encode()) {
		t.Error("re-encode does not match original bytes")
	}

	noAddr := &ChainStatus{Height: 1}
	decoded, err = DecodeChainStatus(noAddr.Encode())
	if err != nil {
		t.Fatalf("DecodeChainStatus() without address error: %v", err)
	}
	if decoded.Address != nil {
		t.Error("decoded address should be nil")
	}
}

func TestDecode_RejectsTrailingBytes(t *testing.T) {
	c := &CompactBody{}
	if _, err := DecodeCompactBody(append(c.Encode(), 0xFF)); err == nil {
		t.Error("trailing bytes must be rejected")
	}
}
