package vault

import (
	"encoding/json"
	"fmt"
	"io"
	"time"
)

// SchemaVersion is the version written into every Data document.
const SchemaVersion = 1

// Card is a single tactical card. Its schema belongs to the content layer;
// the vault only guarantees it round-trips unchanged.
type Card = json.RawMessage

// Flow is a scenario route over cards, opaque to the vault.
type Flow = json.RawMessage

// Seed is the initial content supplied when a vault is created.
type Seed struct {
	Cards []Card `json:"cards"`
	Flows []Flow `json:"flows"`
}

// Data is the decrypted vault document.
type Data struct {
	Cards []Card `json:"cards"`
	Flows []Flow `json:"flows"`
	// Salt mirrors the vault.salt artifact in base64. The salt file stays
	// authoritative; this copy is informational.
	Salt         string    `json:"salt"`
	Version      int       `json:"version"`
	LastModified time.Time `json:"lastModified"`
}

// Metadata captures unencrypted lockout bookkeeping persisted next to the vault.
type Metadata struct {
	Exists            bool       `json:"exists"`
	CreatedAt         *time.Time `json:"createdAt,omitempty"`
	FailedAttempts    int        `json:"failedAttempts"`
	LastFailedAttempt *time.Time `json:"lastFailedAttempt,omitempty"`
}

// DefaultMetadata is what callers see when no usable metadata is on disk.
func DefaultMetadata() Metadata {
	return Metadata{Exists: false, FailedAttempts: 0}
}

// LoadSeed decodes a {"cards": [...], "flows": [...]} document.
func LoadSeed(r io.Reader) (Seed, error) {
	var seed Seed
	dec := json.NewDecoder(r)
	if err := dec.Decode(&seed); err != nil {
		return Seed{}, fmt.Errorf("decode seed: %w", err)
	}
	if seed.Cards == nil {
		seed.Cards = []Card{}
	}
	if seed.Flows == nil {
		seed.Flows = []Flow{}
	}
	return seed, nil
}
