package types

import (
	"encoding/binary"
	"fmt"
)

// Writer accumulates a canonical byte encoding. All multi-byte integers
// are big-endian, matching the storage service's integer-key convention.
type Writer struct {
	buf []byte
}

func NewWriter() *Writer { return &Writer{} }

func (w *Writer) Bytes() []byte { return w.buf }

func (w *Writer) PutUint32(v uint32) {
	w.buf = binary.BigEndian.AppendUint32(w.buf, v)
}

func (w *Writer) PutUint64(v uint64) {
	w.buf = binary.BigEndian.AppendUint64(w.buf, v)
}

func (w *Writer) PutBytes(b []byte) {
	w.buf = binary.BigEndian.AppendUint32(w.buf, uint32(len(b)))
	w.buf = append(w.buf, b...)
}

func (w *Writer) PutRaw(b []byte) {
	w.buf = append(w.buf, b...)
}

// Reader consumes a buffer written by Writer, in the same field order.
type Reader struct {
	buf []byte
	pos int
}

func NewReader(b []byte) *Reader { return &Reader{buf: b} }

func (r *Reader) Uint32() (uint32, error) {
	if r.pos+4 > len(r.buf) {
		return 0, fmt.Errorf("truncated uint32 at offset %d", r.pos)
	}
	v := binary.BigEndian.Uint32(r.buf[r.pos : r.pos+4])
	r.pos += 4
	return v, nil
}

func (r *Reader) Uint64() (uint64, error) {
	if r.pos+8 > len(r.buf) {
		return 0, fmt.Errorf("truncated uint64 at offset %d", r.pos)
	}
	v := binary.BigEndian.Uint64(r.buf[r.pos : r.pos+8])
	r.pos += 8
	return v, nil
}

func (r *Reader) Bytes() ([]byte, error) {
	n, err := r.Uint32()
	if err != nil {
		return nil, err
	}
	if r.pos+int(n) > len(r.buf) {
		return nil, fmt.Errorf("truncated bytes field at offset %d", r.pos)
	}
	v := r.buf[r.pos : r.pos+int(n)]
	r.pos += int(n)
	out := make([]byte, len(v))
	copy(out, v)
	return out, nil
}

func (r *Reader) Raw(n int) ([]byte, error) {
	if r.pos+n > len(r.buf) {
		return nil, fmt.Errorf("truncated raw field at offset %d", r.pos)
	}
	v := r.buf[r.pos : r.pos+n]
	r.pos += n
	out := make([]byte, n)
	copy(out, v)
	return out, nil
}

func (r *Reader) Hash() (Hash, error) {
	b, err := r.Raw(HashSize)
	if err != nil {
		return Hash{}, err
	}
	var h Hash
	copy(h[:], b)
	return h, nil
}

func (r *Reader) Address() (Address, error) {
	b, err := r.Raw(AddressSize)
	if err != nil {
		return Address{}, err
	}
	var a Address
	copy(a[:], b)
	return a, nil
}

// Done returns an error if unread bytes remain.
func (r *Reader) Done() error {
	if r.pos != len(r.buf) {
		return fmt.Errorf("trailing %d unread bytes", len(r.buf)-r.pos)
	}
	return nil
}
