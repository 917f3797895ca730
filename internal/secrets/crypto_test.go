package secrets

import (
	"errors"
	"strings"
	"testing"
)

func TestEncryptDecryptString(t *testing.T) {
	enc, err := EncryptString("tok123", "hunter2")
	if err != nil {
		t.Fatalf("EncryptString: %v", err)
	}
	if !strings.HasPrefix(enc, SecretPrefix) {
		t.Fatalf("encrypted value missing prefix: %q", enc)
	}

	plain, wasEncrypted, err := DecryptString(enc, "hunter2")
	if err != nil {
		t.Fatalf("DecryptString: %v", err)
	}
	if !wasEncrypted {
		t.Error("expected wasEncrypted = true")
	}
	if plain != "tok123" {
		t.Errorf("plain = %q, want %q", plain, "tok123")
	}
}

func TestDecryptStringWrongPassword(t *testing.T) {
	enc, err := EncryptString("tok123", "hunter2")
	if err != nil {
		t.Fatalf("EncryptString: %v", err)
	}

	_, _, err = DecryptString(enc, "wrong")
	if !errors.Is(err, ErrInvalidPassword) {
		t.Errorf("err = %v, want ErrInvalidPassword", err)
	}
}

func TestDecryptStringPassthrough(t *testing.T) {
	// Unprefixed values are legacy plaintext secrets.
	plain, wasEncrypted, err := DecryptString("tok123", "whatever")
	if err != nil {
		t.Fatalf("DecryptString: %v", err)
	}
	if wasEncrypted || plain != "tok123" {
		t.Errorf("got (%q, %v), want (%q, false)", plain, wasEncrypted, "tok123")
	}
}
