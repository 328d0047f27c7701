package krypto_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/Hussein-Mazeh/pinvault/krypto"
)

func testKey(b byte) []byte {
	return bytes.Repeat([]byte{b}, krypto.KeyLength)
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	key := testKey(7)
	p, err := krypto.Encrypt([]byte("cards and flows"), key)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if p.Version != krypto.PayloadVersion {
		t.Fatalf("expected version %d, got %d", krypto.PayloadVersion, p.Version)
	}
	pt, err := krypto.Decrypt(p, key)
	if err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	if string(pt) != "cards and flows" {
		t.Fatalf("unexpected plaintext %q", pt)
	}
}

func TestEncryptUsesFreshNonce(t *testing.T) {
	key := testKey(7)
	a, err := krypto.Encrypt([]byte("same"), key)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	b, err := krypto.Encrypt([]byte("same"), key)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if bytes.Equal(a.Nonce, b.Nonce) {
		t.Fatalf("nonce reused across calls")
	}
	if bytes.Equal(a.Ciphertext, b.Ciphertext) {
		t.Fatalf("ciphertext identical across calls")
	}
}

func TestSealerReadsNonceFromSource(t *testing.T) {
	src := bytes.NewReader(bytes.Repeat([]byte{0xAA}, 24))
	p, err := krypto.Sealer{Rand: src}.Encrypt([]byte("x"), testKey(1))
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if !bytes.Equal(p.Nonce, bytes.Repeat([]byte{0xAA}, 24)) {
		t.Fatalf("nonce not taken from random source")
	}
	if _, err := (krypto.Sealer{Rand: src}).Encrypt([]byte("x"), testKey(1)); err == nil {
		t.Fatalf("expected error once the random source is exhausted")
	}
}

func TestDecryptWrongKey(t *testing.T) {
	p, err := krypto.Encrypt([]byte("payload"), testKey(1))
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if _, err := krypto.Decrypt(p, testKey(2)); !errors.Is(err, krypto.ErrDecryptionFailed) {
		t.Fatalf("expected ErrDecryptionFailed, got %v", err)
	}
}

func TestDecryptRejectsUnknownVersion(t *testing.T) {
	p, err := krypto.Encrypt([]byte("payload"), testKey(1))
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	p.Version = 2
	if _, err := krypto.Decrypt(p, testKey(1)); !errors.Is(err, krypto.ErrUnsupportedVersion) {
		t.Fatalf("expected ErrUnsupportedVersion, got %v", err)
	}
}

func TestKeyLengthIsChecked(t *testing.T) {
	if _, err := krypto.Encrypt([]byte("x"), make([]byte, 16)); !errors.Is(err, krypto.ErrInvalidInput) {
		t.Fatalf("Encrypt: expected ErrInvalidInput, got %v", err)
	}
	p, err := krypto.Encrypt([]byte("x"), testKey(1))
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if _, err := krypto.Decrypt(p, make([]byte, 31)); !errors.Is(err, krypto.ErrInvalidInput) {
		t.Fatalf("Decrypt: expected ErrInvalidInput, got %v", err)
	}
}

func TestDecryptTruncatedPayload(t *testing.T) {
	p, err := krypto.Encrypt([]byte("x"), testKey(1))
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	short := p
	short.Nonce = p.Nonce[:12]
	if _, err := krypto.Decrypt(short, testKey(1)); !errors.Is(err, krypto.ErrDecryptionFailed) {
		t.Fatalf("short nonce: expected ErrDecryptionFailed, got %v", err)
	}
	short = p
	short.Ciphertext = p.Ciphertext[:4]
	if _, err := krypto.Decrypt(short, testKey(1)); !errors.Is(err, krypto.ErrDecryptionFailed) {
		t.Fatalf("short ciphertext: expected ErrDecryptionFailed, got %v", err)
	}
}

func TestDecryptJSONMalformedPlaintext(t *testing.T) {
	key := testKey(3)
	p, err := krypto.Encrypt([]byte("not json {"), key)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	var out map[string]any
	if err := krypto.DecryptJSON(p, key, &out); !errors.Is(err, krypto.ErrMalformedPlaintext) {
		t.Fatalf("expected ErrMalformedPlaintext, got %v", err)
	}
}

func TestEncryptJSONRoundTrip(t *testing.T) {
	type doc struct {
		Cards []string `json:"cards"`
		N     int      `json:"n"`
	}
	key := testKey(4)
	in := doc{Cards: []string{"engage.flight-manifest", "trap.mirror-ask"}, N: 2}

	p, err := krypto.EncryptJSON(in, key)
	if err != nil {
		t.Fatalf("EncryptJSON: %v", err)
	}
	var out doc
	if err := krypto.DecryptJSON(p, key, &out); err != nil {
		t.Fatalf("DecryptJSON: %v", err)
	}
	if len(out.Cards) != 2 || out.Cards[1] != "trap.mirror-ask" || out.N != 2 {
		t.Fatalf("unexpected round trip result: %+v", out)
	}
}

func TestPayloadJSONShape(t *testing.T) {
	p, err := krypto.Encrypt([]byte("x"), testKey(1))
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	raw, err := json.Marshal(p)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	for _, k := range []string{"nonce", "ciphertext", "version"} {
		if _, ok := fields[k]; !ok {
			t.Fatalf("payload JSON missing %q: %s", k, raw)
		}
	}
	if _, ok := fields["nonce"].(string); !ok {
		t.Fatalf("nonce should be a base64 string: %s", raw)
	}
}
