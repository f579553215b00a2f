package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"os"
)

// KeyEncryptor seals private key material at rest with AES-256-GCM.
// Ciphertext layout: [nonce][encrypted data][auth tag].
type KeyEncryptor struct {
	aead cipher.AEAD
}

// NewKeyEncryptor derives a 32-byte AES key from arbitrary key material.
func NewKeyEncryptor(material []byte) (*KeyEncryptor, error) {
	if len(material) == 0 {
		return nil, errors.New("cryptox: empty master key")
	}
	key := sha256.Sum256(material)

	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, fmt.Errorf("cryptox: create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("cryptox: create GCM: %w", err)
	}
	return &KeyEncryptor{aead: gcm}, nil
}

// LoadKeyEncryptor reads master key material from path. An empty path
// falls back to the AUTH_MASTER_KEY environment variable.
func LoadKeyEncryptor(path string) (*KeyEncryptor, error) {
	var material []byte
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("cryptox: read master key: %w", err)
		}
		material = data
	} else {
		material = []byte(os.Getenv("AUTH_MASTER_KEY"))
	}
	if len(material) == 0 {
		return nil, errors.New("cryptox: no master key configured (set AUTH_MASTER_KEY_PATH or AUTH_MASTER_KEY)")
	}
	return NewKeyEncryptor(material)
}

// Seal encrypts plaintext with a fresh random nonce.
func (e *KeyEncryptor) Seal(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, e.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("cryptox: generate nonce: %w", err)
	}
	return e.aead.Seal(nonce, nonce, plaintext, nil), nil
}

// Open decrypts data produced by Seal.
func (e *KeyEncryptor) Open(sealed []byte) ([]byte, error) {
	n := e.aead.NonceSize()
	if len(sealed) < n+e.aead.Overhead() {
		return nil, errors.New("cryptox: ciphertext too short")
	}
	plaintext, err := e.aead.Open(nil, sealed[:n], sealed[n:], nil)
	if err != nil {
		return nil, fmt.Errorf("cryptox: decrypt: %w", err)
	}
	return plaintext, nil
}
