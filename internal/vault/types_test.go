package vault_test

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/Hussein-Mazeh/pinvault/internal/vault"
)

func TestLoadSeed(t *testing.T) {
	doc := `{"cards":[{"id":"engage.flight-manifest","heatImpact":0}],"flows":[{"id":"flow.faux-intervention","sequence":["engage.flight-manifest"]}]}`

	seed, err := vault.LoadSeed(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("LoadSeed returned error: %v", err)
	}
	if len(seed.Cards) != 1 || len(seed.Flows) != 1 {
		t.Fatalf("expected 1 card and 1 flow, got %d/%d", len(seed.Cards), len(seed.Flows))
	}
	if !strings.Contains(string(seed.Cards[0]), "engage.flight-manifest") {
		t.Fatalf("card content lost: %s", seed.Cards[0])
	}
}

func TestLoadSeedEmptyDocument(t *testing.T) {
	seed, err := vault.LoadSeed(strings.NewReader(`{}`))
	if err != nil {
		t.Fatalf("LoadSeed returned error: %v", err)
	}
	if seed.Cards == nil || seed.Flows == nil {
		t.Fatalf("expected empty, non-nil slices")
	}
}

func TestLoadSeedRejectsGarbage(t *testing.T) {
	if _, err := vault.LoadSeed(strings.NewReader(`[1,2`)); err == nil {
		t.Fatalf("expected decode error")
	}
}

func TestMetadataOmitsUnsetTimestamps(t *testing.T) {
	raw, err := json.Marshal(vault.DefaultMetadata())
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if got := string(raw); got != `{"exists":false,"failedAttempts":0}` {
		t.Fatalf("unexpected metadata JSON %s", got)
	}

	now := time.Date(2026, 10, 15, 9, 30, 0, 0, time.UTC)
	raw, err = json.Marshal(vault.Metadata{Exists: true, CreatedAt: &now, FailedAttempts: 1, LastFailedAttempt: &now})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(raw), `"lastFailedAttempt":"2026-10-15T09:30:00Z"`) {
		t.Fatalf("expected ISO-8601 timestamp, got %s", raw)
	}
}
