package krypto

import (
	"crypto/rand"
	"fmt"
	"io"
	"unicode/utf8"

	"golang.org/x/crypto/argon2"
)

const (
	// SaltLengthBytes is the enforced salt length (libsodium crypto_pwhash_SALTBYTES).
	SaltLengthBytes = 16
	// KeyLength is the derived key size required by the secretbox cipher.
	KeyLength = 32
	// MinPINLength is the shortest PIN accepted by DeriveKey, in characters.
	MinPINLength = 4
)

// Argon2Params captures tunable parameters for Argon2id.
type Argon2Params struct {
	MemoryKB    uint32
	Time        uint32
	Parallelism uint8
}

// InteractiveParams returns the libsodium "interactive" profile:
// two passes over 64 MiB, single lane.
func InteractiveParams() Argon2Params {
	return Argon2Params{
		MemoryKB:    64 * 1024,
		Time:        2,
		Parallelism: 1,
	}
}

// DeriveKey turns a PIN and a per-vault salt into a 32-byte key using
// Argon2id with the interactive profile.
func DeriveKey(pin, salt []byte) ([]byte, error) {
	return DeriveKeyWithParams(pin, salt, InteractiveParams())
}

// DeriveKeyWithParams is DeriveKey with explicit Argon2id parameters.
func DeriveKeyWithParams(pin, salt []byte, p Argon2Params) (key []byte, err error) {
	if utf8.RuneCount(pin) < MinPINLength {
		return nil, fmt.Errorf("%w: pin must be at least %d characters", ErrInvalidInput, MinPINLength)
	}
	if len(salt) != SaltLengthBytes {
		return nil, fmt.Errorf("%w: salt must be %d bytes", ErrInvalidInput, SaltLengthBytes)
	}
	if p.MemoryKB == 0 || p.Time == 0 || p.Parallelism == 0 {
		return nil, fmt.Errorf("%w: argon2 parameters must be positive", ErrInvalidInput)
	}

	// argon2 panics when the memory block cannot be allocated.
	defer func() {
		if r := recover(); r != nil {
			Wipe(key)
			key = nil
			err = fmt.Errorf("%w: %v", ErrKeyDerivationFailed, r)
		}
	}()

	key = argon2.IDKey(pin, salt, p.Time, p.MemoryKB, p.Parallelism, KeyLength)
	if len(key) != KeyLength {
		Wipe(key)
		return nil, fmt.Errorf("%w: derived key has unexpected length %d", ErrKeyDerivationFailed, len(key))
	}
	return key, nil
}

// GenerateSalt returns a fresh random salt read from r.
// A nil reader falls back to crypto/rand.
func GenerateSalt(r io.Reader) ([]byte, error) {
	if r == nil {
		r = rand.Reader
	}
	salt := make([]byte, SaltLengthBytes)
	if _, err := io.ReadFull(r, salt); err != nil {
		return nil, fmt.Errorf("generate salt: %w", err)
	}
	return salt, nil
}
