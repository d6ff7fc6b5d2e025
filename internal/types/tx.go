package types

import "fmt"

// MaxNonceLen is the maximum length of a transaction's nonce field.
const MaxNonceLen = 128

// ValueSize is the fixed length of a transaction's value field.
const ValueSize = 32

// Transaction is the inner body of a Normal transaction.
type Transaction struct {
	Version         uint32
	To              Address
	Nonce           []byte
	Quota           uint64
	ValidUntilBlock uint64
	Data            []byte
	Value           [ValueSize]byte
	ChainID         Hash
}

// Encode returns the canonical byte encoding of the transaction body. This is
// the representation hashed to produce a NormalTx's transaction_hash.
func (t *Transaction) Encode() []byte {
	w := NewWriter()
	w.PutUint32(t.Version)
	w.PutRaw(t.To[:])
	w.PutBytes(t.Nonce)
	w.PutUint64(t.Quota)
	w.PutUint64(t.ValidUntilBlock)
	w.PutBytes(t.Data)
	w.PutRaw(t.Value[:])
	w.PutRaw(t.ChainID[:])
	return w.Bytes()
}

// DecodeTransaction parses the bytes produced by Transaction.Encode.
func DecodeTransaction(b []byte) (*Transaction, error) {
	r := NewReader(b)
	t := &Transaction{}
	var err error
	if t.Version, err = r.Uint32(); err != nil {
		return nil, err
	}
	if t.To, err = r.Address(); err != nil {
		return nil, err
	}
	if t.Nonce, err = r.Bytes(); err != nil {
		return nil, err
	}
	if t.Quota, err = r.Uint64(); err != nil {
		return nil, err
	}
	if t.ValidUntilBlock, err = r.Uint64(); err != nil {
		return nil, err
	}
	if t.Data, err = r.Bytes(); err != nil {
		return nil, err
	}
	value, err := r.Raw(ValueSize)
	if err != nil {
		return nil, err
	}
	copy(t.Value[:], value)
	if t.ChainID, err = r.Hash(); err != nil {
		return nil, err
	}
	if err := r.Done(); err != nil {
		return nil, err
	}
	return t, nil
}

// Witness authenticates a transaction: a signature claimed to come from sender.
type Witness struct {
	Sender    Address
	Signature []byte
}

func (w *Witness) encode(wr *Writer) {
	wr.PutRaw(w.Sender[:])
	wr.PutBytes(w.Signature)
}

func decodeWitness(r *Reader) (Witness, error) {
	var w Witness
	var err error
	if w.Sender, err = r.Address(); err != nil {
		return w, err
	}
	if w.Signature, err = r.Bytes(); err != nil {
		return w, err
	}
	return w, nil
}

// NormalTx pairs a Transaction body with its claimed hash and single witness.
type NormalTx struct {
	Transaction     *Transaction
	TransactionHash Hash
	Witness         *Witness
}

// UtxoTransaction is the inner body of a Utxo transaction: it carries the
// lock_id selecting a system-config slot and the pre_tx_hash chaining it to
// the slot's previous value.
type UtxoTransaction struct {
	Version   uint32
	PreTxHash Hash
	Output    []byte // new slot payload
	LockID    uint32
}

func (u *UtxoTransaction) Encode() []byte {
	w := NewWriter()
	w.PutUint32(u.Version)
	w.PutRaw(u.PreTxHash[:])
	w.PutBytes(u.Output)
	w.PutUint32(u.LockID)
	return w.Bytes()
}

func DecodeUtxoTransaction(b []byte) (*UtxoTransaction, error) {
	r := NewReader(b)
	u := &UtxoTransaction{}
	var err error
	if u.Version, err = r.Uint32(); err != nil {
		return nil, err
	}
	if u.PreTxHash, err = r.Hash(); err != nil {
		return nil, err
	}
	if u.Output, err = r.Bytes(); err != nil {
		return nil, err
	}
	if u.LockID, err = r.Uint32(); err != nil {
		return nil, err
	}
	if err := r.Done(); err != nil {
		return nil, err
	}
	return u, nil
}

// UtxoTx pairs a UtxoTransaction body with its claimed hash and witness list.
type UtxoTx struct {
	Transaction     *UtxoTransaction
	TransactionHash Hash
	Witnesses       []Witness
}

// TxKind tags the RawTransaction union.
type TxKind uint8

const (
	TxKindNormal TxKind = 0
	TxKindUtxo   TxKind = 1
)

// RawTransaction is the tagged union admitted by the Authenticator and
// carried in block bodies.
type RawTransaction struct {
	Kind   TxKind
	Normal *NormalTx
	Utxo   *UtxoTx
}

// Hash returns the transaction hash regardless of variant.
func (r *RawTransaction) Hash() (Hash, error) {
	switch r.Kind {
	case TxKindNormal:
		if r.Normal == nil {
			return Hash{}, fmt.Errorf("normal tx is nil")
		}
		return r.Normal.TransactionHash, nil
	case TxKindUtxo:
		if r.Utxo == nil {
			return Hash{}, fmt.Errorf("utxo tx is nil")
		}
		return r.Utxo.TransactionHash, nil
	default:
		return Hash{}, fmt.Errorf("unknown tx kind %d", r.Kind)
	}
}

// Encode produces the canonical persisted form of a RawTransaction (used for
// region-1 storage and network gossip).
func (r *RawTransaction) Encode() []byte {
	w := NewWriter()
	w.buf = append(w.buf, byte(r.Kind))
	switch r.Kind {
	case TxKindNormal:
		n := r.Normal
		w.PutRaw(n.TransactionHash[:])
		hasWitness := byte(0)
		if n.Witness != nil {
			hasWitness = 1
		}
		w.buf = append(w.buf, hasWitness)
		if n.Witness != nil {
			n.Witness.encode(w)
		}
		hasTx := byte(0)
		if n.Transaction != nil {
			hasTx = 1
		}
		w.buf = append(w.buf, hasTx)
		if n.Transaction != nil {
			w.PutBytes(n.Transaction.Encode())
		}
	case TxKindUtxo:
		u := r.Utxo
		w.PutRaw(u.TransactionHash[:])
		w.PutUint32(uint32(len(u.Witnesses)))
		for i := range u.Witnesses {
			u.Witnesses[i].encode(w)
		}
		hasTx := byte(0)
		if u.Transaction != nil {
			hasTx = 1
		}
		w.buf = append(w.buf, hasTx)
		if u.Transaction != nil {
			w.PutBytes(u.Transaction.Encode())
		}
	}
	return w.Bytes()
}

// DecodeRawTransaction parses the bytes produced by RawTransaction.Encode.
func DecodeRawTransaction(b []byte) (*RawTransaction, error) {
	if len(b) < 1 {
		return nil, fmt.Errorf("empty raw transaction")
	}
	kind := TxKind(b[0])
	r := NewReader(b[1:])
	raw := &RawTransaction{Kind: kind}
	switch kind {
	case TxKindNormal:
		n := &NormalTx{}
		var err error
		if n.TransactionHash, err = r.Hash(); err != nil {
			return nil, err
		}
		hasWitness, err := r.Raw(1)
		if err != nil {
			return nil, err
		}
		if hasWitness[0] == 1 {
			w, err := decodeWitness(r)
			if err != nil {
				return nil, err
			}
			n.Witness = &w
		}
		hasTx, err := r.Raw(1)
		if err != nil {
			return nil, err
		}
		if hasTx[0] == 1 {
			txBytes, err := r.Bytes()
			if err != nil {
				return nil, err
			}
			tx, err := DecodeTransaction(txBytes)
			if err != nil {
				return nil, err
			}
			n.Transaction = tx
		}
		if err := r.Done(); err != nil {
			return nil, err
		}
		raw.Normal = n
	case TxKindUtxo:
		u := &UtxoTx{}
		var err error
		if u.TransactionHash, err = r.Hash(); err != nil {
			return nil, err
		}
		count, err := r.Uint32()
		if err != nil {
			return nil, err
		}
		u.Witnesses = make([]Witness, 0, count)
		for i := uint32(0); i < count; i++ {
			w, err := decodeWitness(r)
			if err != nil {
				return nil, err
			}
			u.Witnesses = append(u.Witnesses, w)
		}
		hasTx, err := r.Raw(1)
		if err != nil {
			return nil, err
		}
		if hasTx[0] == 1 {
			txBytes, err := r.Bytes()
			if err != nil {
				return nil, err
			}
			tx, err := DecodeUtxoTransaction(txBytes)
			if err != nil {
				return nil, err
			}
			u.Transaction = tx
		}
		if err := r.Done(); err != nil {
			return nil, err
		}
		raw.Utxo = u
	default:
		return nil, fmt.Errorf("unknown tx kind %d", kind)
	}
	return raw, nil
}
