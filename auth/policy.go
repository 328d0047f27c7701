package auth

import (
	"fmt"
	"unicode"

	"github.com/nbutton23/zxcvbn-go"

	"github.com/Hussein-Mazeh/pinvault/krypto"
)

// WeakScore is the zxcvbn score at or below which a PIN is flagged as weak.
const WeakScore = 1

// ValidatePIN applies the PIN syntax policy: at least krypto.MinPINLength
// characters and no whitespace or control characters.
func ValidatePIN(pin []byte) error {
	s := string(pin)
	if len([]rune(s)) < krypto.MinPINLength {
		return fmt.Errorf("%w: pin must be at least %d characters long", krypto.ErrInvalidInput, krypto.MinPINLength)
	}
	for _, r := range s {
		if unicode.IsSpace(r) || unicode.IsControl(r) {
			return fmt.Errorf("%w: pin must not contain whitespace or control characters", krypto.ErrInvalidInput)
		}
	}
	return nil
}

// Strength is an advisory estimate of how guessable a PIN is.
type Strength struct {
	Score     int
	CrackTime string
}

// Weak reports whether the estimate is at or below WeakScore.
func (s Strength) Weak() bool {
	return s.Score <= WeakScore
}

// PINStrength scores pin with zxcvbn. Short numeric PINs always score low;
// the memory-hard KDF and the lockout policy carry the real protection, so
// callers only warn on a weak result.
func PINStrength(pin []byte) Strength {
	res := zxcvbn.PasswordStrength(string(pin), nil)
	return Strength{Score: res.Score, CrackTime: res.CrackTimeDisplay}
}
