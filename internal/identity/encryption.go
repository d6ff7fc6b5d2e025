package identity

import (
	"crypto/rand"
	"fmt"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
)

// Node-key-at-rest format: salt(16) | nonce(24) | ciphertext. Argon2id
// parameters are fixed; a format change needs a new file name, not a
// header.
const saltSize = 16

const (
	argonIterations  = 3
	argonMemoryKiB   = 32 * 1024
	argonParallelism = 2
)

func deriveKey(passphrase, salt []byte) []byte {
	return argon2.IDKey(passphrase, salt, argonIterations, argonMemoryKiB, argonParallelism, chacha20poly1305.KeySize)
}

// Encrypt seals data with a passphrase using Argon2id + XChaCha20-Poly1305.
func Encrypt(data, passphrase []byte) ([]byte, error) {
	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("generate salt: %w", err)
	}

	aead, err := chacha20poly1305.NewX(deriveKey(passphrase, salt))
	if err != nil {
		return nil, fmt.Errorf("create aead: %w", err)
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}

	out := make([]byte, 0, saltSize+len(nonce)+len(data)+aead.Overhead())
	out = append(out, salt...)
	out = append(out, nonce...)
	return aead.Seal(out, nonce, data, nil), nil
}

// Decrypt opens data sealed by Encrypt.
func Decrypt(data, passphrase []byte) ([]byte, error) {
	if len(data) < saltSize+chacha20poly1305.NonceSizeX {
		return nil, fmt.Errorf("encrypted node key is truncated")
	}
	salt := data[:saltSize]
	nonce := data[saltSize : saltSize+chacha20poly1305.NonceSizeX]
	ciphertext := data[saltSize+chacha20poly1305.NonceSizeX:]

	aead, err := chacha20poly1305.NewX(deriveKey(passphrase, salt))
	if err != nil {
		return nil, fmt.Errorf("create aead: %w", err)
	}
	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("wrong passphrase or corrupted node key: %w", err)
	}
	return plaintext, nil
}
