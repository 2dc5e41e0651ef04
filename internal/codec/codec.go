// Package codec implements the at-rest protection applied to message
// bodies: encrypt on write, decrypt on read. It is content-agnostic and
// stores prose and media URLs indistinguishably.
package codec

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"

	"parley/internal/data"
)

const nonceSize = chacha20poly1305.NonceSize

// Codec seals and opens message bodies with ChaCha20-Poly1305 under a
// single service key. Wire format: nonce[12] + ciphertext+tag.
type Codec struct {
	key []byte
}

// New builds a Codec from a hex-encoded 32-byte key.
func New(hexKey string) (*Codec, error) {
	key, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("content key is not valid hex: %w", err)
	}
	if len(key) != chacha20poly1305.KeySize {
		return nil, fmt.Errorf("content key must be %d bytes, got %d", chacha20poly1305.KeySize, len(key))
	}
	return &Codec{key: key}, nil
}

// Encode seals plaintext into the opaque stored form.
func (c *Codec) Encode(plaintext string) ([]byte, error) {
	aead, err := chacha20poly1305.New(c.key)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}

	// Append the ciphertext directly after the nonce so the stored value is
	// a single opaque blob.
	return aead.Seal(nonce, nonce, []byte(plaintext), nil), nil
}

// Decode opens a stored body. Failure to open is a Corrupt-kind error:
// the blob was written by this codec or it is garbage, so a failed open
// means storage-level corruption, not bad user input.
func (c *Codec) Decode(opaque []byte) (string, error) {
	if len(opaque) < nonceSize+chacha20poly1305.Overhead {
		return "", data.NewError(data.KindCorrupt, "stored content shorter than minimum sealed length")
	}

	aead, err := chacha20poly1305.New(c.key)
	if err != nil {
		return "", err
	}

	nonce, ciphertext := opaque[:nonceSize], opaque[nonceSize:]
	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", data.WrapError(data.KindCorrupt, "stored content failed authentication", err)
	}
	return string(plaintext), nil
}
