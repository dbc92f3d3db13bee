// Package secretbox seals stored secrets (API keys, OAuth refresh tokens) with
// AES-256-GCM. Ciphertexts are encoded as hex(iv):hex(tag):hex(data).
package secretbox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/hkdf"
)

const (
	keyLen   = 32
	ivLen    = 16
	tagLen   = 16
	partsLen = 3
)

var (
	// ErrInvalidKey is returned when the configured key is not 32 bytes of hex.
	ErrInvalidKey = errors.New("secretbox: key must be 32 bytes (64 hex characters)")
	// ErrMalformed is returned for ciphertexts that do not follow iv:tag:data.
	ErrMalformed = errors.New("secretbox: malformed ciphertext")
	// ErrAuthentication is returned when the tag does not verify (wrong key or tampering).
	ErrAuthentication = errors.New("secretbox: message authentication failed")
)

// Box encrypts and decrypts strings with a fixed symmetric key.
type Box struct {
	key  []byte
	aead cipher.AEAD
}

// New builds a Box from a 64-character hex key.
func New(hexKey string) (*Box, error) {
	key, err := hex.DecodeString(strings.TrimSpace(hexKey))
	if err != nil || len(key) != keyLen {
		return nil, ErrInvalidKey
	}
	return NewFromBytes(key)
}

// NewFromBytes builds a Box from a raw 32-byte key.
func NewFromBytes(key []byte) (*Box, error) {
	if len(key) != keyLen {
		return nil, ErrInvalidKey
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("secretbox: new cipher: %w", err)
	}
	aead, err := cipher.NewGCMWithNonceSize(block, ivLen)
	if err != nil {
		return nil, fmt.Errorf("secretbox: new gcm: %w", err)
	}
	owned := make([]byte, keyLen)
	copy(owned, key)
	return &Box{key: owned, aead: aead}, nil
}

// Encrypt seals plaintext with a fresh random IV.
func (b *Box) Encrypt(plaintext string) (string, error) {
	iv := make([]byte, ivLen)
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return "", fmt.Errorf("secretbox: read iv: %w", err)
	}
	sealed := b.aead.Seal(nil, iv, []byte(plaintext), nil)
	data, tag := sealed[:len(sealed)-tagLen], sealed[len(sealed)-tagLen:]
	return hex.EncodeToString(iv) + ":" + hex.EncodeToString(tag) + ":" + hex.EncodeToString(data), nil
}

// Decrypt opens a ciphertext produced by Encrypt.
func (b *Box) Decrypt(ciphertext string) (string, error) {
	parts := strings.Split(ciphertext, ":")
	if len(parts) != partsLen {
		return "", ErrMalformed
	}
	iv, errIV := hex.DecodeString(parts[0])
	tag, errTag := hex.DecodeString(parts[1])
	data, errData := hex.DecodeString(parts[2])
	if errIV != nil || errTag != nil || errData != nil || len(iv) != ivLen || len(tag) != tagLen {
		return "", ErrMalformed
	}
	sealed := make([]byte, 0, len(data)+tagLen)
	sealed = append(sealed, data...)
	sealed = append(sealed, tag...)
	plain, err := b.aead.Open(nil, iv, sealed, nil)
	if err != nil {
		return "", ErrAuthentication
	}
	return string(plain), nil
}

// SubKey derives an independent 32-byte key for another purpose (for example
// signing short-lived cookies) so the encryption key itself is never reused.
func (b *Box) SubKey(label string) ([]byte, error) {
	out := make([]byte, keyLen)
	reader := hkdf.New(sha256.New, b.key, nil, []byte(label))
	if _, err := io.ReadFull(reader, out); err != nil {
		return nil, fmt.Errorf("secretbox: derive %s: %w", label, err)
	}
	return out, nil
}
