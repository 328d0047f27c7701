package krypto

import "errors"

var (
	// ErrInvalidInput reports a malformed PIN, salt or key length.
	ErrInvalidInput = errors.New("invalid input")
	// ErrKeyDerivationFailed reports a failure inside the KDF itself.
	ErrKeyDerivationFailed = errors.New("key derivation failed")
	// ErrDecryptionFailed is returned for every authentication failure.
	// Wrong key and tampered data are deliberately not told apart.
	ErrDecryptionFailed = errors.New("decryption failed")
	// ErrMalformedPlaintext means the payload authenticated but is not valid JSON content.
	ErrMalformedPlaintext = errors.New("malformed plaintext")
	// ErrUnsupportedVersion means the payload declares an unknown schema version.
	ErrUnsupportedVersion = errors.New("unsupported payload version")
)

// Wipe overwrites sensitive byte slices in place.
func Wipe(buf []byte) {
	for i := range buf {
		buf[i] = 0
	}
}
