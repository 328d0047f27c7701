package krypto

import (
	"crypto/rand"
	"encoding/json"
	"fmt"
	"io"

	"golang.org/x/crypto/nacl/secretbox"
)

const (
	// PayloadVersion is the only payload schema version this package understands.
	PayloadVersion = 1

	nonceSize = 24
)

// Payload is the sealed form of a plaintext. Nonce and Ciphertext are
// base64 encoded by encoding/json.
type Payload struct {
	Nonce      []byte `json:"nonce"`
	Ciphertext []byte `json:"ciphertext"`
	Version    int    `json:"version"`
}

// Sealer encrypts with XSalsa20-Poly1305 (NaCl secretbox). Every call draws
// a fresh nonce from Rand; a nil Rand means crypto/rand.
type Sealer struct {
	Rand io.Reader
}

var defaultSealer = Sealer{}

func (s Sealer) random() io.Reader {
	if s.Rand == nil {
		return rand.Reader
	}
	return s.Rand
}

// Encrypt seals plaintext under key with a new random nonce.
func (s Sealer) Encrypt(plaintext, key []byte) (Payload, error) {
	if len(key) != KeyLength {
		return Payload{}, fmt.Errorf("%w: key must be %d bytes", ErrInvalidInput, KeyLength)
	}

	var nonce [nonceSize]byte
	if _, err := io.ReadFull(s.random(), nonce[:]); err != nil {
		return Payload{}, fmt.Errorf("generate nonce: %w", err)
	}

	var k [KeyLength]byte
	copy(k[:], key)
	defer Wipe(k[:])

	return Payload{
		Nonce:      append([]byte(nil), nonce[:]...),
		Ciphertext: secretbox.Seal(nil, plaintext, &nonce, &k),
		Version:    PayloadVersion,
	}, nil
}

// Decrypt verifies and opens p. Any authentication failure, including a
// malformed nonce, is reported as ErrDecryptionFailed without detail.
func (s Sealer) Decrypt(p Payload, key []byte) ([]byte, error) {
	if p.Version != PayloadVersion {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, p.Version)
	}
	if len(key) != KeyLength {
		return nil, fmt.Errorf("%w: key must be %d bytes", ErrInvalidInput, KeyLength)
	}
	if len(p.Nonce) != nonceSize || len(p.Ciphertext) < secretbox.Overhead {
		return nil, ErrDecryptionFailed
	}

	var (
		nonce [nonceSize]byte
		k     [KeyLength]byte
	)
	copy(nonce[:], p.Nonce)
	copy(k[:], key)
	defer Wipe(k[:])

	plaintext, ok := secretbox.Open(nil, p.Ciphertext, &nonce, &k)
	if !ok {
		return nil, ErrDecryptionFailed
	}
	return plaintext, nil
}

// EncryptJSON marshals v and seals the result.
func (s Sealer) EncryptJSON(v any, key []byte) (Payload, error) {
	plaintext, err := json.Marshal(v)
	if err != nil {
		return Payload{}, fmt.Errorf("encode plaintext: %w", err)
	}
	defer Wipe(plaintext)
	return s.Encrypt(plaintext, key)
}

// DecryptJSON opens p and unmarshals the plaintext into out.
func (s Sealer) DecryptJSON(p Payload, key []byte, out any) error {
	plaintext, err := s.Decrypt(p, key)
	if err != nil {
		return err
	}
	defer Wipe(plaintext)

	if err := json.Unmarshal(plaintext, out); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedPlaintext, err)
	}
	return nil
}

// Encrypt seals plaintext using crypto/rand for the nonce.
func Encrypt(plaintext, key []byte) (Payload, error) {
	return defaultSealer.Encrypt(plaintext, key)
}

// Decrypt opens p.
func Decrypt(p Payload, key []byte) ([]byte, error) {
	return defaultSealer.Decrypt(p, key)
}

// EncryptJSON marshals v and seals it using crypto/rand for the nonce.
func EncryptJSON(v any, key []byte) (Payload, error) {
	return defaultSealer.EncryptJSON(v, key)
}

// DecryptJSON opens p into out.
func DecryptJSON(p Payload, key []byte, out any) error {
	return defaultSealer.DecryptJSON(p, key, out)
}
