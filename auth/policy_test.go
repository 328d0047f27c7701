package auth

import (
	"errors"
	"testing"

	"github.com/Hussein-Mazeh/pinvault/krypto"
)

func TestValidatePIN(t *testing.T) {
	valid := []string{"1234", "482916", "abcd", "ünïc"}
	for _, pin := range valid {
		if err := ValidatePIN([]byte(pin)); err != nil {
			t.Fatalf("ValidatePIN(%q) returned error: %v", pin, err)
		}
	}

	invalid := []string{"", "123", "éé", "12 34", "12\t34", "123\n"}
	for _, pin := range invalid {
		err := ValidatePIN([]byte(pin))
		if !errors.Is(err, krypto.ErrInvalidInput) {
			t.Fatalf("ValidatePIN(%q): expected ErrInvalidInput, got %v", pin, err)
		}
	}
}

func TestPINStrength(t *testing.T) {
	weak := PINStrength([]byte("1234"))
	if !weak.Weak() {
		t.Fatalf("expected 1234 to be weak, got score %d", weak.Score)
	}
	if weak.CrackTime == "" {
		t.Fatalf("expected crack time estimate")
	}

	strong := PINStrength([]byte("v9#Lq2!xTz@8pW"))
	if strong.Score <= weak.Score {
		t.Fatalf("expected long mixed pin to score above %d, got %d", weak.Score, strong.Score)
	}
}
