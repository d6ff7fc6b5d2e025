// Package archive writes per-height block archives into the node's sync/
// directory: the {header, body, proof} tuple other nodes fetch when they
// fall behind.
package archive

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/klingnet-chain/controller/internal/types"
)

// Writer persists finalized blocks under root/sync/<height>/.
type Writer struct {
	dir string
}

// NewWriter prepares the sync directory under root.
func NewWriter(root string) (*Writer, error) {
	dir := filepath.Join(root, "sync")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create sync dir: %w", err)
	}
	return &Writer{dir: dir}, nil
}

func (w *Writer) heightDir(height uint64) string {
	return filepath.Join(w.dir, fmt.Sprintf("%d", height))
}

// WriteBlock archives a finalized block's header, compact body, and proof.
// Each part is written to its own file so a syncing peer can fetch the
// header alone before deciding to pull the body.
func (w *Writer) WriteBlock(height uint64, headerBytes, bodyBytes, proof []byte) error {
	dir := w.heightDir(height)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create archive dir for height %d: %w", height, err)
	}
	for _, part := range []struct {
		name string
		data []byte
	}{
		{"header", headerBytes},
		{"body", bodyBytes},
		{"proof", proof},
	} {
		if err := os.WriteFile(filepath.Join(dir, part.name), part.data, 0644); err != nil {
			return fmt.Errorf("write archive %s for height %d: %w", part.name, height, err)
		}
	}
	return nil
}

// ReadBlock loads an archived block tuple, or an error if the height was
// never archived.
func (w *Writer) ReadBlock(height uint64) (headerBytes, bodyBytes, proof []byte, err error) {
	dir := w.heightDir(height)
	if headerBytes, err = os.ReadFile(filepath.Join(dir, "header")); err != nil {
		return nil, nil, nil, fmt.Errorf("read archived header for height %d: %w", height, err)
	}
	if bodyBytes, err = os.ReadFile(filepath.Join(dir, "body")); err != nil {
		return nil, nil, nil, fmt.Errorf("read archived body for height %d: %w", height, err)
	}
	if proof, err = os.ReadFile(filepath.Join(dir, "proof")); err != nil {
		return nil, nil, nil, fmt.Errorf("read archived proof for height %d: %w", height, err)
	}
	return headerBytes, bodyBytes, proof, nil
}

// HasBlock reports whether a height has been archived.
func (w *Writer) HasBlock(height uint64) bool {
	_, err := os.Stat(filepath.Join(w.heightDir(height), "proof"))
	return err == nil
}

// ReadHeader decodes just the archived header for a height.
func (w *Writer) ReadHeader(height uint64) (*types.Header, error) {
	b, err := os.ReadFile(filepath.Join(w.heightDir(height), "header"))
	if err != nil {
		return nil, err
	}
	return types.DecodeHeader(b)
}
