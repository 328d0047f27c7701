package unlock

import (
	"time"

	"github.com/Hussein-Mazeh/pinvault/internal/vault"
)

// Result is the outcome of an unlock attempt. It is one of Success,
// WrongPIN, LockedOut or NoVault; callers type-switch on it.
type Result interface {
	isResult()
}

// Success carries the decrypted content.
type Success struct {
	Cards []vault.Card
	Flows []vault.Flow
	// Data is the full document, kept so an owning session can save it back.
	Data vault.Data
}

// WrongPIN reports a failed attempt that did not reach the lockout threshold.
// Corrupted vault data is reported the same way.
type WrongPIN struct {
	AttemptsRemaining int
}

// LockedOut reports that attempts are denied for Remaining.
type LockedOut struct {
	Remaining time.Duration
}

// RemainingMs is Remaining in whole milliseconds.
func (l LockedOut) RemainingMs() int64 {
	return l.Remaining.Milliseconds()
}

// NoVault reports that no vault has been created.
type NoVault struct{}

func (Success) isResult()   {}
func (WrongPIN) isResult()  {}
func (LockedOut) isResult() {}
func (NoVault) isResult()   {}
