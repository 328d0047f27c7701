package store_test

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/Hussein-Mazeh/pinvault/internal/vault"
	"github.com/Hussein-Mazeh/pinvault/krypto"
	"github.com/Hussein-Mazeh/pinvault/store"
)

func fastKDF(pin, salt []byte) ([]byte, error) {
	return krypto.DeriveKeyWithParams(pin, salt, krypto.Argon2Params{MemoryKB: 64, Time: 1, Parallelism: 1})
}

func newTestVault(t *testing.T, opts ...store.Option) *store.Vault {
	t.Helper()
	opts = append([]store.Option{store.WithKDF(fastKDF)}, opts...)
	v, err := store.New(store.Paths{Dir: t.TempDir()}, opts...)
	if err != nil {
		t.Fatalf("store.New returned error: %v", err)
	}
	return v
}

func testSeed() vault.Seed {
	return vault.Seed{
		Cards: []vault.Card{
			vault.Card(`{"id":"engage.flight-manifest","element":"Air","heatImpact":0,"flightDelta":5}`),
			vault.Card(`{"id":"trap.mirror-ask","element":"Water","heatImpact":0,"flightDelta":3}`),
		},
		Flows: []vault.Flow{
			vault.Flow(`{"id":"flow.faux-intervention","sequence":["engage.flight-manifest","trap.mirror-ask"]}`),
		},
	}
}

// memFS is an in-memory FS with per-path fault injection.
type memFS struct {
	mu        sync.Mutex
	files     map[string][]byte
	failWrite map[string]bool
	failRm    map[string]bool
	removed   []string
}

func newMemFS() *memFS {
	return &memFS{
		files:     map[string][]byte{},
		failWrite: map[string]bool{},
		failRm:    map[string]bool{},
	}
}

func (m *memFS) Exists(path string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.files[path]
	return ok, nil
}

func (m *memFS) ReadFile(path string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.files[path]
	if !ok {
		return nil, fmt.Errorf("open %s: %w", filepath.Base(path), os.ErrNotExist)
	}
	return append([]byte(nil), data...), nil
}

func (m *memFS) WriteFile(path string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWrite[filepath.Base(path)] {
		return errors.New("disk full")
	}
	m.files[path] = append([]byte(nil), data...)
	return nil
}

func (m *memFS) Remove(path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removed = append(m.removed, filepath.Base(path))
	if m.failRm[filepath.Base(path)] {
		return errors.New("permission denied")
	}
	delete(m.files, path)
	return nil
}
