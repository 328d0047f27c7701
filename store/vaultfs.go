package store

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/Hussein-Mazeh/pinvault/internal/logger"
	"github.com/Hussein-Mazeh/pinvault/internal/vault"
	"github.com/Hussein-Mazeh/pinvault/krypto"
)

const (
	blobFilename     = "vault.encrypted"
	saltFilename     = "vault.salt"
	metadataFilename = "vault.meta.json"
)

var (
	// ErrNoVault indicates the encrypted blob is not on disk.
	ErrNoVault = errors.New("vault does not exist")
	// ErrVaultExists is returned by Create when a vault is already present.
	ErrVaultExists = errors.New("vault already exists")
)

// Paths locates vault artifacts on disk.
type Paths struct {
	Dir string
}

// BlobPath resolves the encrypted vault document.
func (p Paths) BlobPath() string {
	return filepath.Join(p.Dir, blobFilename)
}

// SaltPath resolves the base64 salt file.
func (p Paths) SaltPath() string {
	return filepath.Join(p.Dir, saltFilename)
}

// MetadataPath resolves the plaintext lockout metadata.
func (p Paths) MetadataPath() string {
	return filepath.Join(p.Dir, metadataFilename)
}

// KDF derives the vault key from a PIN and salt.
type KDF func(pin, salt []byte) ([]byte, error)

// Vault owns the three on-disk artifacts of one PIN-protected vault.
// All operations are serialized.
type Vault struct {
	mu     sync.Mutex
	paths  Paths
	fs     FS
	rand   io.Reader
	sealer krypto.Sealer
	kdf    KDF
	now    func() time.Time
	log    *slog.Logger
}

// Option configures a Vault.
type Option func(*Vault)

// WithFS replaces the local disk with another filesystem.
func WithFS(fs FS) Option {
	return func(v *Vault) { v.fs = fs }
}

// WithRand sets the secure random source for salts and nonces.
func WithRand(r io.Reader) Option {
	return func(v *Vault) {
		v.rand = r
		v.sealer = krypto.Sealer{Rand: r}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(v *Vault) { v.now = now }
}

// WithLogger attaches a structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(v *Vault) { v.log = l }
}

// WithKDF swaps the key derivation function, e.g. for a cheaper Argon2 profile in tests.
func WithKDF(kdf KDF) Option {
	return func(v *Vault) { v.kdf = kdf }
}

// New returns a Vault rooted at p.Dir.
func New(p Paths, opts ...Option) (*Vault, error) {
	if p.Dir == "" {
		return nil, errors.New("vault directory not specified")
	}
	v := &Vault{
		paths: p,
		fs:    OSFS{},
		kdf:   krypto.DeriveKey,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(v)
	}
	v.log = logger.OrDiscard(v.log).With("component", "store")
	return v, nil
}

// Paths returns the artifact locations.
func (v *Vault) Paths() Paths {
	return v.paths
}

// Exists reports whether the encrypted blob is present.
func (v *Vault) Exists(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.fs.Exists(v.paths.BlobPath())
}

// Create initialises a new vault from seed content. The salt and metadata
// are written first and the blob last, so a crash part way through never
// leaves Exists reporting a vault that cannot be opened.
func (v *Vault) Create(ctx context.Context, pin []byte, seed vault.Seed) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	v.mu.Lock()
	defer v.mu.Unlock()

	exists, err := v.fs.Exists(v.paths.BlobPath())
	if err != nil {
		return fmt.Errorf("check vault: %w", err)
	}
	if exists {
		return ErrVaultExists
	}

	salt, err := krypto.GenerateSalt(v.rand)
	if err != nil {
		return err
	}
	key, err := v.kdf(pin, salt)
	if err != nil {
		return fmt.Errorf("derive key: %w", err)
	}
	defer krypto.Wipe(key)

	now := v.now().UTC()
	saltB64 := base64.StdEncoding.EncodeToString(salt)
	data := vault.Data{
		Cards:        seed.Cards,
		Flows:        seed.Flows,
		Salt:         saltB64,
		Version:      vault.SchemaVersion,
		LastModified: now,
	}
	if data.Cards == nil {
		data.Cards = []vault.Card{}
	}
	if data.Flows == nil {
		data.Flows = []vault.Flow{}
	}

	blob, err := v.sealData(data, key)
	if err != nil {
		return err
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	if err := v.fs.WriteFile(v.paths.SaltPath(), []byte(saltB64)); err != nil {
		return fmt.Errorf("write salt: %w", err)
	}
	if err := v.saveMetadataLocked(vault.Metadata{Exists: true, CreatedAt: &now}); err != nil {
		return err
	}
	if err := v.fs.WriteFile(v.paths.BlobPath(), blob); err != nil {
		return fmt.Errorf("write vault: %w", err)
	}

	v.log.Info("vault created", "cards", len(data.Cards), "flows", len(data.Flows))
	return nil
}

// Load decrypts the vault with pin. It does not enforce lockout.
func (v *Vault) Load(ctx context.Context, pin []byte) (vault.Data, error) {
	if err := ctx.Err(); err != nil {
		return vault.Data{}, err
	}
	v.mu.Lock()
	defer v.mu.Unlock()

	payload, err := v.readPayload()
	if err != nil {
		v.matchKDFCost(pin, err)
		return vault.Data{}, err
	}
	salt, saltB64, err := v.readSalt()
	if err != nil {
		v.matchKDFCost(pin, err)
		return vault.Data{}, err
	}

	key, err := v.kdf(pin, salt)
	if err != nil {
		return vault.Data{}, fmt.Errorf("derive key: %w", err)
	}
	defer krypto.Wipe(key)

	var data vault.Data
	if err := v.sealer.DecryptJSON(payload, key, &data); err != nil {
		return vault.Data{}, err
	}
	data.Salt = saltB64
	return data, nil
}

// Save re-encrypts data under the key derived from pin and the vault's
// salt, stamping LastModified. Only the blob is rewritten. A pin that does
// not open the current blob is refused so Save can never silently re-key
// the vault. The stamped document is returned.
func (v *Vault) Save(ctx context.Context, data vault.Data, pin []byte) (vault.Data, error) {
	if err := ctx.Err(); err != nil {
		return vault.Data{}, err
	}
	v.mu.Lock()
	defer v.mu.Unlock()

	current, err := v.readPayload()
	if err != nil {
		v.matchKDFCost(pin, err)
		return vault.Data{}, err
	}
	salt, saltB64, err := v.readSalt()
	if err != nil {
		v.matchKDFCost(pin, err)
		return vault.Data{}, err
	}
	if data.Salt != "" && data.Salt != saltB64 {
		return vault.Data{}, fmt.Errorf("%w: embedded salt does not match vault salt", krypto.ErrInvalidInput)
	}

	key, err := v.kdf(pin, salt)
	if err != nil {
		return vault.Data{}, fmt.Errorf("derive key: %w", err)
	}
	defer krypto.Wipe(key)

	plaintext, err := v.sealer.Decrypt(current, key)
	if err != nil {
		return vault.Data{}, err
	}
	krypto.Wipe(plaintext)

	data.Salt = saltB64
	data.Version = vault.SchemaVersion
	data.LastModified = v.now().UTC()
	if data.Cards == nil {
		data.Cards = []vault.Card{}
	}
	if data.Flows == nil {
		data.Flows = []vault.Flow{}
	}

	blob, err := v.sealData(data, key)
	if err != nil {
		return vault.Data{}, err
	}
	if err := ctx.Err(); err != nil {
		return vault.Data{}, err
	}
	if err := v.fs.WriteFile(v.paths.BlobPath(), blob); err != nil {
		return vault.Data{}, fmt.Errorf("write vault: %w", err)
	}
	return data, nil
}

// Destroy removes every artifact. It never fails from the caller's point
// of view, so a panic wipe looks the same whether or not a vault existed.
// Cancellation is ignored: a wipe always attempts every artifact.
func (v *Vault) Destroy(_ context.Context) {
	v.mu.Lock()
	defer v.mu.Unlock()

	for _, path := range []string{v.paths.BlobPath(), v.paths.SaltPath(), v.paths.MetadataPath()} {
		if err := v.fs.Remove(path); err != nil {
			v.log.Debug("artifact removal failed", "error", err)
		}
	}
}

// LoadMetadata returns the lockout metadata, or safe defaults when it is
// missing or unreadable. Corrupt metadata never blocks the vault itself.
func (v *Vault) LoadMetadata(_ context.Context) vault.Metadata {
	v.mu.Lock()
	defer v.mu.Unlock()

	raw, err := v.fs.ReadFile(v.paths.MetadataPath())
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			v.log.Warn("metadata unreadable; using defaults", "error", err)
		}
		return vault.DefaultMetadata()
	}

	var m vault.Metadata
	if err := json.Unmarshal(raw, &m); err != nil {
		v.log.Warn("metadata corrupt; using defaults", "error", err)
		return vault.DefaultMetadata()
	}
	if m.FailedAttempts < 0 {
		m.FailedAttempts = 0
	}
	return m
}

// SaveMetadata overwrites the metadata file with m.
func (v *Vault) SaveMetadata(ctx context.Context, m vault.Metadata) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.saveMetadataLocked(m)
}

func (v *Vault) saveMetadataLocked(m vault.Metadata) error {
	raw, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}
	if err := v.fs.WriteFile(v.paths.MetadataPath(), raw); err != nil {
		return fmt.Errorf("write metadata: %w", err)
	}
	return nil
}

func (v *Vault) sealData(data vault.Data, key []byte) ([]byte, error) {
	payload, err := v.sealer.EncryptJSON(data, key)
	if err != nil {
		return nil, fmt.Errorf("encrypt vault: %w", err)
	}
	blob, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode vault: %w", err)
	}
	return blob, nil
}

// readPayload loads the blob envelope. An unparsable envelope is reported
// as a decryption failure so corruption and a wrong PIN look alike. The
// version is checked here, before any key is derived.
func (v *Vault) readPayload() (krypto.Payload, error) {
	var payload krypto.Payload

	raw, err := v.fs.ReadFile(v.paths.BlobPath())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return payload, ErrNoVault
		}
		return payload, fmt.Errorf("read vault: %w", err)
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return payload, krypto.ErrDecryptionFailed
	}
	if payload.Version != krypto.PayloadVersion {
		return payload, fmt.Errorf("%w: %d", krypto.ErrUnsupportedVersion, payload.Version)
	}
	return payload, nil
}

// matchKDFCost runs a throwaway derivation when err is a corruption that is
// reported as ErrDecryptionFailed, so a damaged vault answers in the same
// time as a wrong PIN.
func (v *Vault) matchKDFCost(pin []byte, err error) {
	if !errors.Is(err, krypto.ErrDecryptionFailed) {
		return
	}
	key, _ := v.kdf(pin, make([]byte, krypto.SaltLengthBytes))
	krypto.Wipe(key)
}

func (v *Vault) readSalt() ([]byte, string, error) {
	raw, err := v.fs.ReadFile(v.paths.SaltPath())
	if err != nil {
		return nil, "", fmt.Errorf("read salt: %w", err)
	}
	encoded := strings.TrimSpace(string(raw))
	salt, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil || len(salt) != krypto.SaltLengthBytes {
		return nil, "", krypto.ErrDecryptionFailed
	}
	return salt, encoded, nil
}
