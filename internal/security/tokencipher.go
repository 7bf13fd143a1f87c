// Package security provides encryption for game account credentials at rest.
//
// Refresh tokens are long-lived bearer credentials; a database leak must not
// expose them in plaintext. TokenCipher seals tokens with ChaCha20-Poly1305
// before they reach the game_accounts table and unseals them on read.
package security

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

// ErrCiphertextInvalid is returned when a stored value cannot be decoded or
// fails authentication. It usually means the cipher key was rotated without
// re-sealing existing rows.
var ErrCiphertextInvalid = errors.New("security: invalid ciphertext")

// TokenCipher seals and unseals refresh tokens using ChaCha20-Poly1305 with
// a random nonce per sealing. The stored form is base64(nonce || ciphertext).
type TokenCipher struct {
	aead interface {
		Seal(dst, nonce, plaintext, additionalData []byte) []byte
		Open(dst, nonce, ciphertext, additionalData []byte) ([]byte, error)
	}
	nonceSize int
}

// NewTokenCipher creates a TokenCipher from a 32-byte key.
func NewTokenCipher(key []byte) (*TokenCipher, error) {
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, fmt.Errorf("creating AEAD cipher: %w", err)
	}
	return &TokenCipher{aead: aead, nonceSize: aead.NonceSize()}, nil
}

// Seal encrypts a plaintext token for storage.
func (c *TokenCipher) Seal(plaintext string) (string, error) {
	nonce := make([]byte, c.nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generating nonce: %w", err)
	}

	sealed := c.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Unseal decrypts a stored token. Returns ErrCiphertextInvalid for malformed
// or tampered input.
func (c *TokenCipher) Unseal(stored string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(stored)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrCiphertextInvalid, err)
	}
	if len(raw) < c.nonceSize {
		return "", ErrCiphertextInvalid
	}

	nonce, ciphertext := raw[:c.nonceSize], raw[c.nonceSize:]
	plaintext, err := c.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrCiphertextInvalid, err)
	}

	return string(plaintext), nil
}
