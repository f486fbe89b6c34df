package crypto

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"

	"golang.org/x/crypto/nacl/secretbox"
)

const nonceSize = 24

var (
	// ErrCiphertextTooShort is returned when the payload cannot hold a nonce
	// and an authentication tag.
	ErrCiphertextTooShort = errors.New("ciphertext too short")

	// ErrDecrypt is returned when authentication fails.
	ErrDecrypt = errors.New("decryption failed")
)

// Seal encrypts plaintext with XSalsa20-Poly1305.
// Format: [nonce (24 bytes)][encrypted data + auth tag]
func Seal(plaintext []byte, key *[32]byte) ([]byte, error) {
	var nonce [nonceSize]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}
	return secretbox.Seal(nonce[:], plaintext, &nonce, key), nil
}

// Open reverses Seal.
func Open(sealed []byte, key *[32]byte) ([]byte, error) {
	if len(sealed) < nonceSize+secretbox.Overhead {
		return nil, ErrCiphertextTooShort
	}
	var nonce [nonceSize]byte
	copy(nonce[:], sealed[:nonceSize])
	out, ok := secretbox.Open(nil, sealed[nonceSize:], &nonce, key)
	if !ok {
		return nil, ErrDecrypt
	}
	return out, nil
}

// SealText encrypts a message body and returns it base64 encoded, ready to
// travel in a JSON text field.
func SealText(text string, key *[32]byte) (string, error) {
	sealed, err := Seal([]byte(text), key)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// OpenText reverses SealText.
func OpenText(encoded string, key *[32]byte) (string, error) {
	sealed, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("failed to decode ciphertext: %w", err)
	}
	out, err := Open(sealed, key)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// ParseKey decodes a base64 channel key.
func ParseKey(encoded string) (*[32]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("failed to decode key: %w", err)
	}
	if len(raw) != 32 {
		return nil, fmt.Errorf("invalid key length: %d", len(raw))
	}
	var key [32]byte
	copy(key[:], raw)
	return &key, nil
}

// NewKey returns a random channel key.
func NewKey() (*[32]byte, error) {
	var key [32]byte
	if _, err := rand.Read(key[:]); err != nil {
		return nil, fmt.Errorf("failed to generate key: %w", err)
	}
	return &key, nil
}
