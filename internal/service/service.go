package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/awnumar/memguard"

	"github.com/Hussein-Mazeh/pinvault/auth"
	"github.com/Hussein-Mazeh/pinvault/internal/logger"
	"github.com/Hussein-Mazeh/pinvault/internal/unlock"
	"github.com/Hussein-Mazeh/pinvault/internal/vault"
	"github.com/Hussein-Mazeh/pinvault/store"
)

// ErrLocked is returned by operations that need an unlocked session.
var ErrLocked = errors.New("vault locked")

// Session is the explicitly owned unlocked state of one vault: the PIN,
// sealed in a memguard enclave, and the decrypted content. It is created
// once and handed to whatever front end drives it.
type Session struct {
	mu    sync.Mutex
	vault *store.Vault
	gate  *unlock.Orchestrator
	log   *slog.Logger

	pin  *memguard.Enclave // nil while locked
	data vault.Data
}

// New returns a locked session over v, with unlock policy enforced by gate.
func New(v *store.Vault, gate *unlock.Orchestrator, l *slog.Logger) *Session {
	return &Session{
		vault: v,
		gate:  gate,
		log:   logger.OrDiscard(l).With("component", "session"),
	}
}

// Open wires a store and an orchestrator for the vault in dir.
func Open(dir string, l *slog.Logger, opts ...store.Option) (*Session, error) {
	opts = append(opts, store.WithLogger(l))
	v, err := store.New(store.Paths{Dir: dir}, opts...)
	if err != nil {
		return nil, fmt.Errorf("open vault store: %w", err)
	}
	return New(v, unlock.New(v, unlock.WithLogger(l)), l), nil
}

// Exists reports whether a vault has been created.
func (s *Session) Exists(ctx context.Context) (bool, error) {
	return s.vault.Exists(ctx)
}

// Create validates pin and creates a vault from seed. The session stays locked.
func (s *Session) Create(ctx context.Context, pin []byte, seed vault.Seed) error {
	if err := auth.ValidatePIN(pin); err != nil {
		return err
	}
	if err := s.vault.Create(ctx, pin, seed); err != nil {
		return fmt.Errorf("create vault: %w", err)
	}
	return nil
}

// Unlock runs an unlock attempt. On Success the session keeps a sealed
// copy of pin and the decrypted content until Lock.
func (s *Session) Unlock(ctx context.Context, pin []byte) (unlock.Result, error) {
	res, err := s.gate.AttemptUnlock(ctx, pin)
	if err != nil {
		return nil, err
	}
	ok, isSuccess := res.(unlock.Success)
	if !isSuccess {
		return res, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// NewEnclave wipes the buffer it is given, so seal a copy.
	sealed := make([]byte, len(pin))
	copy(sealed, pin)
	s.pin = memguard.NewEnclave(sealed)
	s.data = ok.Data
	s.log.Info("session unlocked", "cards", len(ok.Cards), "flows", len(ok.Flows))
	return res, nil
}

// Lock drops the PIN and the decrypted content.
func (s *Session) Lock() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lockLocked()
}

func (s *Session) lockLocked() {
	s.pin = nil
	s.data = vault.Data{}
}

// IsUnlocked reports whether the session holds decrypted content.
func (s *Session) IsUnlocked() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pin != nil
}

// Cards returns the unlocked cards.
func (s *Session) Cards() ([]vault.Card, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pin == nil {
		return nil, ErrLocked
	}
	return append([]vault.Card(nil), s.data.Cards...), nil
}

// Flows returns the unlocked flows.
func (s *Session) Flows() ([]vault.Flow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pin == nil {
		return nil, ErrLocked
	}
	return append([]vault.Flow(nil), s.data.Flows...), nil
}

// LastModified is the timestamp of the unlocked document.
func (s *Session) LastModified() (time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pin == nil {
		return time.Time{}, ErrLocked
	}
	return s.data.LastModified, nil
}

// SetCards replaces the in-memory cards; call Save to persist.
func (s *Session) SetCards(cards []vault.Card) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pin == nil {
		return ErrLocked
	}
	s.data.Cards = append([]vault.Card(nil), cards...)
	return nil
}

// SetFlows replaces the in-memory flows; call Save to persist.
func (s *Session) SetFlows(flows []vault.Flow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pin == nil {
		return ErrLocked
	}
	s.data.Flows = append([]vault.Flow(nil), flows...)
	return nil
}

// Save re-encrypts the in-memory content with the session PIN.
func (s *Session) Save(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pin == nil {
		return ErrLocked
	}

	buf, err := s.pin.Open()
	if err != nil {
		return fmt.Errorf("open pin enclave: %w", err)
	}
	defer buf.Destroy()

	saved, err := s.vault.Save(ctx, s.data, buf.Bytes())
	if err != nil {
		return fmt.Errorf("save vault: %w", err)
	}
	s.data = saved
	return nil
}

// LockoutStatus reports the remaining lockout for countdown displays.
func (s *Session) LockoutStatus(ctx context.Context) (time.Duration, bool) {
	return s.gate.CheckLockoutStatus(ctx)
}

// Wipe is the panic path: lock the session and destroy every artifact.
// It never reports failure.
func (s *Session) Wipe(ctx context.Context) {
	s.mu.Lock()
	s.lockLocked()
	s.mu.Unlock()

	s.vault.Destroy(ctx)
}

// Close locks the session.
func (s *Session) Close() {
	s.Lock()
}
