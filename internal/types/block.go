package types

// Header is a block's metadata, hashed to produce the block hash consumers
// reference.
type Header struct {
	PrevHash         Hash
	Timestamp        uint64
	Height           uint64
	TransactionsRoot Hash
	Proposer         Address
}

// Encode returns the canonical byte encoding of the header.
func (h *Header) Encode() []byte {
	w := NewWriter()
	w.PutRaw(h.PrevHash[:])
	w.PutUint64(h.Timestamp)
	w.PutUint64(h.Height)
	w.PutRaw(h.TransactionsRoot[:])
	w.PutRaw(h.Proposer[:])
	return w.Bytes()
}

// DecodeHeader parses the bytes produced by Header.Encode.
func DecodeHeader(b []byte) (*Header, error) {
	r := NewReader(b)
	h := &Header{}
	var err error
	if h.PrevHash, err = r.Hash(); err != nil {
		return nil, err
	}
	if h.Timestamp, err = r.Uint64(); err != nil {
		return nil, err
	}
	if h.Height, err = r.Uint64(); err != nil {
		return nil, err
	}
	if h.TransactionsRoot, err = r.Hash(); err != nil {
		return nil, err
	}
	if h.Proposer, err = r.Address(); err != nil {
		return nil, err
	}
	if err := r.Done(); err != nil {
		return nil, err
	}
	return h, nil
}

// Block is a full block: header, ordered body of transactions, and the
// consensus proof attesting it was finalized.
type Block struct {
	Version uint32
	Header  Header
	Body    []RawTransaction
	Proof   []byte
}

// Encode returns the canonical byte encoding of the full block.
func (b *Block) Encode() []byte {
	w := NewWriter()
	w.PutUint32(b.Version)
	w.PutBytes(b.Header.Encode())
	w.PutUint32(uint32(len(b.Body)))
	for i := range b.Body {
		w.PutBytes(b.Body[i].Encode())
	}
	w.PutBytes(b.Proof)
	return w.Bytes()
}

// DecodeBlock parses the bytes produced by Block.Encode.
func DecodeBlock(data []byte) (*Block, error) {
	r := NewReader(data)
	blk := &Block{}
	var err error
	if blk.Version, err = r.Uint32(); err != nil {
		return nil, err
	}
	headerBytes, err := r.Bytes()
	if err != nil {
		return nil, err
	}
	header, err := DecodeHeader(headerBytes)
	if err != nil {
		return nil, err
	}
	blk.Header = *header
	count, err := r.Uint32()
	if err != nil {
		return nil, err
	}
	blk.Body = make([]RawTransaction, 0, count)
	for i := uint32(0); i < count; i++ {
		txBytes, err := r.Bytes()
		if err != nil {
			return nil, err
		}
		tx, err := DecodeRawTransaction(txBytes)
		if err != nil {
			return nil, err
		}
		blk.Body = append(blk.Body, *tx)
	}
	if blk.Proof, err = r.Bytes(); err != nil {
		return nil, err
	}
	if err := r.Done(); err != nil {
		return nil, err
	}
	return blk, nil
}

// Hash returns the block hash (the header's canonical hash).
func (b *Block) Hash(hashFn func([]byte) Hash) Hash {
	return hashFn(b.Header.Encode())
}

// CompactBody is the region-3 storage representation of a block body: just
// the ordered transaction hashes, used to answer membership/ordering
// queries without paying for the full transaction payloads.
type CompactBody struct {
	TxHashes []Hash
}

func (c *CompactBody) Encode() []byte {
	w := NewWriter()
	w.PutUint32(uint32(len(c.TxHashes)))
	for _, h := range c.TxHashes {
		w.PutRaw(h[:])
	}
	return w.Bytes()
}

func DecodeCompactBody(b []byte) (*CompactBody, error) {
	r := NewReader(b)
	count, err := r.Uint32()
	if err != nil {
		return nil, err
	}
	c := &CompactBody{TxHashes: make([]Hash, 0, count)}
	for i := uint32(0); i < count; i++ {
		h, err := r.Hash()
		if err != nil {
			return nil, err
		}
		c.TxHashes = append(c.TxHashes, h)
	}
	if err := r.Done(); err != nil {
		return nil, err
	}
	return c, nil
}

// CompactBodyFrom builds a CompactBody from a full block body.
func CompactBodyFrom(body []RawTransaction) (*CompactBody, error) {
	c := &CompactBody{TxHashes: make([]Hash, 0, len(body))}
	for i := range body {
		h, err := body[i].Hash()
		if err != nil {
			return nil, err
		}
		c.TxHashes = append(c.TxHashes, h)
	}
	return c, nil
}
