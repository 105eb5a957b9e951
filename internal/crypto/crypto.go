// Package crypto encrypts audit payload columns at rest.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"
	"strings"
)

// prefix marks a stored value as ciphertext. Values without it are read back
// as plaintext, so rows written before a key was configured stay readable.
const prefix = "enc:v1:"

// Cipher handles AES-256-GCM encryption of stored fields. A nil *Cipher is
// valid and passes values through unchanged.
type Cipher struct {
	aead cipher.AEAD
}

// NewCipher creates a Cipher from a hex-encoded 32-byte key.
// Returns nil if key is empty (encryption disabled).
func NewCipher(hexKey string) (*Cipher, error) {
	if hexKey == "" {
		return nil, nil
	}

	key, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("decoding hex key: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("key must be 32 bytes, got %d", len(key))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("creating AES cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("creating GCM: %w", err)
	}
	return &Cipher{aead: aead}, nil
}

// Encrypt seals plaintext and returns the prefixed base64 of nonce||ciphertext.
func (c *Cipher) Encrypt(plaintext string) (string, error) {
	if c == nil {
		return plaintext, nil
	}

	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("generating nonce: %w", err)
	}
	sealed := c.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return prefix + base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt reverses Encrypt. Unprefixed values are returned unchanged.
func (c *Cipher) Decrypt(stored string) (string, error) {
	if c == nil || !strings.HasPrefix(stored, prefix) {
		return stored, nil
	}

	data, err := base64.StdEncoding.DecodeString(stored[len(prefix):])
	if err != nil {
		return "", fmt.Errorf("decoding base64: %w", err)
	}
	nonceSize := c.aead.NonceSize()
	if len(data) < nonceSize {
		return "", fmt.Errorf("ciphertext too short")
	}
	nonce, sealed := data[:nonceSize], data[nonceSize:]
	plaintext, err := c.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", fmt.Errorf("decrypting: %w", err)
	}
	return string(plaintext), nil
}

// EncryptPtr encrypts *s, keeping nil as nil.
func (c *Cipher) EncryptPtr(s *string) (*string, error) {
	if s == nil {
		return nil, nil
	}
	enc, err := c.Encrypt(*s)
	if err != nil {
		return nil, err
	}
	return &enc, nil
}

// DecryptPtr decrypts *s, keeping nil as nil.
func (c *Cipher) DecryptPtr(s *string) (*string, error) {
	if s == nil {
		return nil, nil
	}
	dec, err := c.Decrypt(*s)
	if err != nil {
		return nil, err
	}
	return &dec, nil
}
