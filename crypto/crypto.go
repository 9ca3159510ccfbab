// Package crypto seals secrets stored at rest: tenant webhook URLs and OAuth
// tokens. Values are AES-256-GCM encrypted and bound to the row they belong
// to through additional authenticated data, so a ciphertext copied into
// another row fails to open.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
)

// Storage versions recorded next to sealed columns.
const (
	VersionPlaintext = 0
	VersionAESGCM    = 1
)

// ErrOpen is returned for ciphertext that fails authentication.
var ErrOpen = errors.New("sealed value failed authentication")

// Sealer encrypts and decrypts values bound to a context label.
type Sealer interface {
	Seal(plaintext, label []byte) ([]byte, error)
	Open(sealed, label []byte) ([]byte, error)
}

// AESGCM is a Sealer using a 256-bit key.
type AESGCM struct {
	aead cipher.AEAD
}

// NewAESGCM builds a sealer from a base64-encoded 32-byte key, as produced by
// `openssl rand -base64 32`.
func NewAESGCM(base64Key string) (*AESGCM, error) {
	if base64Key == "" {
		return nil, fmt.Errorf("encryption key is empty")
	}
	key, err := base64.StdEncoding.DecodeString(base64Key)
	if err != nil {
		return nil, fmt.Errorf("invalid encryption key: base64 decode failed: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("invalid encryption key: must be 32 bytes, got %d", len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create GCM: %w", err)
	}
	return &AESGCM{aead: aead}, nil
}

// Seal returns nonce || ciphertext || tag.
func (a *AESGCM) Seal(plaintext, label []byte) ([]byte, error) {
	nonce := make([]byte, a.aead.NonceSize(), a.aead.NonceSize()+len(plaintext)+a.aead.Overhead())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	return a.aead.Seal(nonce, nonce, plaintext, label), nil
}

// Open reverses Seal. The label must match the one used to seal.
func (a *AESGCM) Open(sealed, label []byte) ([]byte, error) {
	n := a.aead.NonceSize()
	if len(sealed) < n+a.aead.Overhead() {
		return nil, fmt.Errorf("%w: %d bytes is too short", ErrOpen, len(sealed))
	}
	out, err := a.aead.Open(nil, sealed[:n], sealed[n:], label)
	if err != nil {
		return nil, ErrOpen
	}
	return out, nil
}

// SealField prepares a text column value. With a nil sealer the value is
// stored as is under VersionPlaintext. Empty values are never encrypted.
func SealField(s Sealer, value, label string) (string, int, error) {
	if s == nil || value == "" {
		return value, VersionPlaintext, nil
	}
	b, err := s.Seal([]byte(value), []byte(label))
	if err != nil {
		return "", 0, err
	}
	return base64.StdEncoding.EncodeToString(b), VersionAESGCM, nil
}

// OpenField decodes a column value stored with SealField.
func OpenField(s Sealer, stored string, version int, label string) (string, error) {
	switch version {
	case VersionPlaintext:
		return stored, nil
	case VersionAESGCM:
		if s == nil {
			return "", fmt.Errorf("value is encrypted but no ENCRYPTION_KEY is configured")
		}
		if stored == "" {
			return "", nil
		}
		raw, err := base64.StdEncoding.DecodeString(stored)
		if err != nil {
			return "", fmt.Errorf("base64 decode failed: %w", err)
		}
		out, err := s.Open(raw, []byte(label))
		if err != nil {
			return "", err
		}
		return string(out), nil
	default:
		return "", fmt.Errorf("unknown encryption version %d", version)
	}
}
