package identity

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadOrCreate_RoundTrip(t *testing.T) {
	dir := t.TempDir()

	created, err := LoadOrCreate(dir, nil)
	if err != nil {
		t.Fatalf("LoadOrCreate() create error: %v", err)
	}
	if created.KeyID == 0 {
		t.Error("key_id must be non-zero")
	}

	// The identity files must exist with their documented formats.
	keyID, err := os.ReadFile(filepath.Join(dir, "key_id"))
	if err != nil {
		t.Fatalf("read key_id: %v", err)
	}
	if strings.TrimSpace(string(keyID)) != "1" {
		t.Errorf("key_id file = %q, want decimal 1", keyID)
	}
	addr, err := os.ReadFile(filepath.Join(dir, "node_address"))
	if err != nil {
		t.Fatalf("read node_address: %v", err)
	}
	if !strings.HasPrefix(string(addr), "0x") || len(addr) != 42 {
		t.Errorf("node_address file = %q, want 0x-prefixed 20-byte hex", addr)
	}

	loaded, err := LoadOrCreate(dir, nil)
	if err != nil {
		t.Fatalf("LoadOrCreate() load error: %v", err)
	}
	if loaded.Address != created.Address {
		t.Errorf("loaded address %s != created address %s", loaded.Address, created.Address)
	}
}

func TestLoadOrCreate_Encrypted(t *testing.T) {
	dir := t.TempDir()
	passphrase := []byte("correct horse")

	created, err := LoadOrCreate(dir, passphrase)
	if err != nil {
		t.Fatalf("LoadOrCreate() create error: %v", err)
	}

	// The key file must not hold the raw scalar.
	keyFile, err := os.ReadFile(filepath.Join(dir, "node_key"))
	if err != nil {
		t.Fatalf("read node_key: %v", err)
	}
	if bytes.Contains(keyFile, created.Key.Serialize()) {
		t.Error("node_key file contains the raw private key despite a passphrase")
	}

	if _, err := LoadOrCreate(dir, []byte("wrong")); err == nil {
		t.Error("loading with the wrong passphrase should fail")
	}

	loaded, err := LoadOrCreate(dir, passphrase)
	if err != nil {
		t.Fatalf("LoadOrCreate() load error: %v", err)
	}
	if loaded.Address != created.Address {
		t.Error("loaded identity differs from created identity")
	}
}

func TestEncryptDecrypt(t *testing.T) {
	plaintext := []byte("thirty-two bytes of key material")
	sealed, err := Encrypt(plaintext, []byte("pw"))
	if err != nil {
		t.Fatalf("Encrypt() error: %v", err)
	}
	opened, err := Decrypt(sealed, []byte("pw"))
	if err != nil {
		t.Fatalf("Decrypt() error: %v", err)
	}
	if !bytes.Equal(opened, plaintext) {
		t.Error("decrypted bytes differ from plaintext")
	}
	if _, err := Decrypt(sealed, []byte("other")); err == nil {
		t.Error("wrong passphrase must fail")
	}
}
