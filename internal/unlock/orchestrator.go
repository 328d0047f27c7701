// Package unlock enforces the failed-attempt and lockout policy around
// vault decryption.
package unlock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Hussein-Mazeh/pinvault/internal/logger"
	"github.com/Hussein-Mazeh/pinvault/internal/vault"
)

const (
	// MaxAttempts is the number of consecutive failures that triggers a lockout.
	MaxAttempts = 3
	// LockoutDuration is how long attempts stay denied after the last failure.
	LockoutDuration = 60 * time.Second
)

// Persistence is the slice of the vault store the orchestrator drives.
// *store.Vault satisfies it.
type Persistence interface {
	Exists(ctx context.Context) (bool, error)
	Load(ctx context.Context, pin []byte) (vault.Data, error)
	LoadMetadata(ctx context.Context) vault.Metadata
	SaveMetadata(ctx context.Context, m vault.Metadata) error
}

// Orchestrator wraps vault loading with attempt accounting.
type Orchestrator struct {
	mu    sync.Mutex
	store Persistence
	now   func() time.Time
	log   *slog.Logger
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// WithLogger attaches a structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) { o.log = l }
}

// New returns an Orchestrator over p.
func New(p Persistence, opts ...Option) *Orchestrator {
	o := &Orchestrator{store: p, now: time.Now}
	for _, opt := range opts {
		opt(o)
	}
	o.log = logger.OrDiscard(o.log).With("component", "unlock")
	return o
}

// AttemptUnlock tries pin against the vault and updates the attempt counter.
// Every decryption, parsing or I/O failure of the attempt itself is folded
// into WrongPIN or LockedOut. The error return is reserved for a cancelled
// context or a failure to probe whether a vault exists; nothing is counted
// in those cases.
func (o *Orchestrator) AttemptUnlock(ctx context.Context, pin []byte) (Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	o.mu.Lock()
	defer o.mu.Unlock()

	exists, err := o.store.Exists(ctx)
	if err != nil {
		return nil, fmt.Errorf("check vault: %w", err)
	}
	if !exists {
		return NoVault{}, nil
	}

	meta := o.refreshLocked(ctx)
	if remaining, locked := lockoutRemaining(meta, o.now()); locked {
		o.log.Info("unlock denied during lockout", "remaining_ms", remaining.Milliseconds())
		return LockedOut{Remaining: remaining}, nil
	}

	data, err := o.store.Load(ctx, pin)
	if err == nil {
		o.clearLocked(ctx, meta)
		return Success{Cards: data.Cards, Flows: data.Flows, Data: data}, nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil, err
	}

	failedAt := o.now().UTC()
	meta.Exists = true
	meta.FailedAttempts++
	meta.LastFailedAttempt = &failedAt
	if serr := o.store.SaveMetadata(ctx, meta); serr != nil {
		o.log.Warn("failed to record unlock attempt", "error", serr)
	}

	attemptsRemaining := MaxAttempts - meta.FailedAttempts
	o.log.Info("unlock attempt rejected", "failed_attempts", meta.FailedAttempts)
	if attemptsRemaining <= 0 {
		remaining, locked := lockoutRemaining(meta, o.now())
		if !locked {
			remaining = 0
		}
		return LockedOut{Remaining: remaining}, nil
	}
	return WrongPIN{AttemptsRemaining: attemptsRemaining}, nil
}

// CheckLockoutStatus reports the remaining lockout for countdown displays.
// ok is false when attempts are allowed. It never resets the counter; the
// only write it can make is pulling a future failure timestamp back to now.
func (o *Orchestrator) CheckLockoutStatus(ctx context.Context) (remaining time.Duration, ok bool) {
	o.mu.Lock()
	defer o.mu.Unlock()

	exists, err := o.store.Exists(ctx)
	if err != nil || !exists {
		return 0, false
	}
	return lockoutRemaining(o.restampLocked(ctx, o.store.LoadMetadata(ctx)), o.now())
}

// RefreshLockout is CheckLockoutStatus plus the lazy LockedOut to Clear
// transition: an expired lockout has its counter reset on disk.
func (o *Orchestrator) RefreshLockout(ctx context.Context) (remaining time.Duration, ok bool) {
	o.mu.Lock()
	defer o.mu.Unlock()

	exists, err := o.store.Exists(ctx)
	if err != nil || !exists {
		return 0, false
	}
	return lockoutRemaining(o.refreshLocked(ctx), o.now())
}

// refreshLocked loads metadata and resets an expired lockout.
func (o *Orchestrator) refreshLocked(ctx context.Context) vault.Metadata {
	meta := o.restampLocked(ctx, o.store.LoadMetadata(ctx))
	if meta.FailedAttempts < MaxAttempts || meta.LastFailedAttempt == nil {
		return meta
	}
	if o.now().Sub(*meta.LastFailedAttempt) < LockoutDuration {
		return meta
	}

	meta.FailedAttempts = 0
	meta.LastFailedAttempt = nil
	if err := o.store.SaveMetadata(ctx, meta); err != nil {
		o.log.Warn("failed to reset expired lockout", "error", err)
	}
	o.log.Debug("lockout expired")
	return meta
}

// restampLocked moves a failure timestamp that lies in the future, e.g.
// after the wall clock was set back, to now. The lockout then ends one
// LockoutDuration from now instead of whenever the clock catches up.
func (o *Orchestrator) restampLocked(ctx context.Context, meta vault.Metadata) vault.Metadata {
	if meta.LastFailedAttempt == nil {
		return meta
	}
	now := o.now().UTC()
	if !meta.LastFailedAttempt.After(now) {
		return meta
	}
	meta.LastFailedAttempt = &now
	if err := o.store.SaveMetadata(ctx, meta); err != nil {
		o.log.Warn("failed to correct future lockout timestamp", "error", err)
	}
	o.log.Debug("future lockout timestamp pulled back to now")
	return meta
}

func (o *Orchestrator) clearLocked(ctx context.Context, meta vault.Metadata) {
	if meta.FailedAttempts == 0 && meta.LastFailedAttempt == nil {
		return
	}
	meta.Exists = true
	meta.FailedAttempts = 0
	meta.LastFailedAttempt = nil
	if err := o.store.SaveMetadata(ctx, meta); err != nil {
		o.log.Warn("failed to reset unlock attempts", "error", err)
	}
}

// lockoutRemaining computes LockoutDuration minus the time since the last
// failure. A failure stamped in the future counts as happening now.
func lockoutRemaining(meta vault.Metadata, now time.Time) (time.Duration, bool) {
	if meta.FailedAttempts < MaxAttempts || meta.LastFailedAttempt == nil {
		return 0, false
	}
	elapsed := now.Sub(*meta.LastFailedAttempt)
	if elapsed < 0 {
		elapsed = 0
	}
	if elapsed >= LockoutDuration {
		return 0, false
	}
	return LockoutDuration - elapsed, true
}
