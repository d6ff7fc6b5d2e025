package archive

import (
	"bytes"
	"testing"
)

func TestWriteReadBlock(t *testing.T) {
	w, err := NewWriter(t.TempDir())
	if err != nil {
		t.Fatalf("NewWriter() error: %v", err)
	}

	header := []byte("header-bytes")
	body := []byte("body-bytes")
	proof := []byte{0xAA, 0xBB}
	if err := w.WriteBlock(5, header, body, proof); err != nil {
		t.Fatalf("WriteBlock() error: %v", err)
	}

	if !w.HasBlock(5) {
		t.Error("HasBlock(5) = false after write")
	}
	if w.HasBlock(6) {
		t.Error("HasBlock(6) = true for unwritten height")
	}

	gotHeader, gotBody, gotProof, err := w.ReadBlock(5)
	if err != nil {
		t.Fatalf("ReadBlock() error: %v", err)
	}
	if !bytes.Equal(gotHeader, header) || !bytes.Equal(gotBody, body) || !bytes.Equal(gotProof, proof) {
		t.Error("ReadBlock() did not return the written tuple")
	}
}

func TestReadBlock_Missing(t *testing.T) {
	w, err := NewWriter(t.TempDir())
	if err != nil {
		t.Fatalf("NewWriter() error: %v", err)
	}
	if _, _, _, err := w.ReadBlock(99); err == nil {
		t.Error("ReadBlock() for unwritten height should fail")
	}
}
