// Package cryptox seals credential values at rest.
package cryptox

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

// SealedPrefix marks values produced by Seal. Values without it are returned
// untouched by Open, so a store written before a key was configured still loads.
const SealedPrefix = "sealed:"

const hkdfInfo = "flux credential store v1"

var ErrOpen = errors.New("cryptox: cannot open sealed value")

// Sealer encrypts short strings with XChaCha20-Poly1305. A nil *Sealer is
// valid and passes values through unchanged.
type Sealer struct {
	key []byte
}

// NewSealer derives a 32-byte key from arbitrary key material via HKDF-SHA256.
func NewSealer(material []byte) (*Sealer, error) {
	if len(material) == 0 {
		return nil, errors.New("cryptox: empty key material")
	}

	key := make([]byte, chacha20poly1305.KeySize)
	r := hkdf.New(sha256.New, material, nil, []byte(hkdfInfo))
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("derive key: %w", err)
	}

	return &Sealer{key: key}, nil
}

// LoadSealer reads key material from path. An empty path yields a nil Sealer.
func LoadSealer(path string) (*Sealer, error) {
	if path == "" {
		return nil, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read store key file: %w", err)
	}

	return NewSealer([]byte(strings.TrimSpace(string(data))))
}

// Seal encrypts plaintext. Output: prefix + base64url([24-byte nonce][ciphertext+tag]).
func (s *Sealer) Seal(plaintext string) (string, error) {
	if s == nil || plaintext == "" {
		return plaintext, nil
	}

	aead, err := chacha20poly1305.NewX(s.key)
	if err != nil {
		return "", fmt.Errorf("failed to create cipher: %w", err)
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return SealedPrefix + base64.RawURLEncoding.EncodeToString(sealed), nil
}

// Open reverses Seal.
func (s *Sealer) Open(value string) (string, error) {
	if !strings.HasPrefix(value, SealedPrefix) {
		return value, nil
	}
	if s == nil {
		return "", fmt.Errorf("%w: no key configured", ErrOpen)
	}

	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimPrefix(value, SealedPrefix))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrOpen, err)
	}

	aead, err := chacha20poly1305.NewX(s.key)
	if err != nil {
		return "", fmt.Errorf("failed to create cipher: %w", err)
	}

	if len(raw) < aead.NonceSize() {
		return "", fmt.Errorf("%w: ciphertext too short", ErrOpen)
	}

	nonce, ciphertext := raw[:aead.NonceSize()], raw[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrOpen, err)
	}

	return string(plaintext), nil
}
