package types

// BftProposal is a candidate block proposed for consensus: a block whose
// proof is not yet filled in, plus the pre-state the proposer attached so
// a remote validator can check it without replaying the whole chain
//.
type BftProposal struct {
	Block        *Block
	PreStateRoot []byte
	PreProof     []byte
}

// ProposalKind tags the ProposalEnum union. The controller only ever deals
// in BFT-style proposals today, but the union shape leaves a second
// proposal kind somewhere to land.
type ProposalKind uint8

const (
	ProposalKindBft ProposalKind = 0
)

// ProposalEnum wraps the proposal variants exchanged with Consensus.
type ProposalEnum struct {
	Kind ProposalKind
	Bft  *BftProposal
}

// ConsensusConfiguration is pushed to the Consensus façade whenever the
// validator set or block interval changes.
type ConsensusConfiguration struct {
	Height        uint64
	BlockInterval uint32
	Validators    [][]byte
}

// ChainStatus summarizes the local chain tip, broadcast to Network peers
// and reported over RPC.
type ChainStatus struct {
	Version uint32
	ChainID Hash
	Height  uint64
	Hash    Hash
	Address *Address
}

// Encode returns the canonical wire form of a ProposalEnum, as exchanged
// with Consensus and gossiped under the "proposal" message type.
func (p *ProposalEnum) Encode() []byte {
	w := NewWriter()
	w.PutRaw([]byte{byte(p.Kind)})
	hasBft := byte(0)
	if p.Bft != nil {
		hasBft = 1
	}
	w.PutRaw([]byte{hasBft})
	if p.Bft != nil {
		hasBlock := byte(0)
		if p.Bft.Block != nil {
			hasBlock = 1
		}
		w.PutRaw([]byte{hasBlock})
		if p.Bft.Block != nil {
			w.PutBytes(p.Bft.Block.Encode())
		}
		w.PutBytes(p.Bft.PreStateRoot)
		w.PutBytes(p.Bft.PreProof)
	}
	return w.Bytes()
}

// DecodeProposalEnum parses the bytes produced by ProposalEnum.Encode.
func DecodeProposalEnum(b []byte) (*ProposalEnum, error) {
	r := NewReader(b)
	kind, err := r.Raw(1)
	if err != nil {
		return nil, err
	}
	p := &ProposalEnum{Kind: ProposalKind(kind[0])}
	hasBft, err := r.Raw(1)
	if err != nil {
		return nil, err
	}
	if hasBft[0] == 1 {
		bft := &BftProposal{}
		hasBlock, err := r.Raw(1)
		if err != nil {
			return nil, err
		}
		if hasBlock[0] == 1 {
			blockBytes, err := r.Bytes()
			if err != nil {
				return nil, err
			}
			if bft.Block, err = DecodeBlock(blockBytes); err != nil {
				return nil, err
			}
		}
		if bft.PreStateRoot, err = r.Bytes(); err != nil {
			return nil, err
		}
		if bft.PreProof, err = r.Bytes(); err != nil {
			return nil, err
		}
		p.Bft = bft
	}
	if err := r.Done(); err != nil {
		return nil, err
	}
	return p, nil
}

// Encode returns the canonical wire form of a ChainStatus, gossiped under
// the "chain_status" message type.
func (s *ChainStatus) Encode() []byte {
	w := NewWriter()
	w.PutUint32(s.Version)
	w.PutRaw(s.ChainID[:])
	w.PutUint64(s.Height)
	w.PutRaw(s.Hash[:])
	hasAddr := byte(0)
	if s.Address != nil {
		hasAddr = 1
	}
	w.PutRaw([]byte{hasAddr})
	if s.Address != nil {
		w.PutRaw(s.Address[:])
	}
	return w.Bytes()
}

// DecodeChainStatus parses the bytes produced by ChainStatus.Encode.
func DecodeChainStatus(b []byte) (*ChainStatus, error) {
	r := NewReader(b)
	s := &ChainStatus{}
	var err error
	if s.Version, err = r.Uint32(); err != nil {
		return nil, err
	}
	if s.ChainID, err = r.Hash(); err != nil {
		return nil, err
	}
	if s.Height, err = r.Uint64(); err != nil {
		return nil, err
	}
	if s.Hash, err = r.Hash(); err != nil {
		return nil, err
	}
	hasAddr, err := r.Raw(1)
	if err != nil {
		return nil, err
	}
	if hasAddr[0] == 1 {
		addr, err := r.Address()
		if err != nil {
			return nil, err
		}
		s.Address = &addr
	}
	if err := r.Done(); err != nil {
		return nil, err
	}
	return s, nil
}
