package identity

import (
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"testing"

	"github.com/codefionn/gatelink/internal/store"
)

func TestGetOrCreateIsStable(t *testing.T) {
	ctx := context.Background()
	kv := store.NewMemoryStore()

	first, err := NewStore(kv).GetOrCreate(ctx)
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	if len(first.ID) != 64 {
		t.Errorf("fingerprint length = %d, want 64 hex chars", len(first.ID))
	}

	// A second store over the same persisted record yields the same identity.
	second, err := NewStore(kv).GetOrCreate(ctx)
	if err != nil {
		t.Fatalf("GetOrCreate (reload): %v", err)
	}
	if second.ID != first.ID {
		t.Errorf("reloaded id = %s, want %s", second.ID, first.ID)
	}
	if second.PublicKeyRaw != first.PublicKeyRaw {
		t.Errorf("reloaded public key differs")
	}
}

func TestGetOrCreateCached(t *testing.T) {
	ctx := context.Background()
	s := NewStore(store.NewMemoryStore())

	first, err := s.GetOrCreate(ctx)
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	second, err := s.GetOrCreate(ctx)
	if err != nil {
		t.Fatalf("GetOrCreate (cached): %v", err)
	}
	if first != second {
		t.Error("expected the cached identity instance on repeat calls")
	}
}

func TestCorruptedRecordRegenerates(t *testing.T) {
	ctx := context.Background()
	kv := store.NewMemoryStore()

	original, err := NewStore(kv).GetOrCreate(ctx)
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}

	if err := kv.Put(ctx, RecordKey, []byte("not json at all")); err != nil {
		t.Fatalf("corrupt record: %v", err)
	}

	regenerated, err := NewStore(kv).GetOrCreate(ctx)
	if err != nil {
		t.Fatalf("GetOrCreate after corruption: %v", err)
	}
	if regenerated.ID == original.ID {
		t.Error("expected a fresh identity after corruption")
	}
	if len(regenerated.ID) != 64 {
		t.Errorf("regenerated fingerprint length = %d, want 64", len(regenerated.ID))
	}

	// The fresh record must itself be loadable.
	reloaded, err := NewStore(kv).GetOrCreate(ctx)
	if err != nil {
		t.Fatalf("GetOrCreate (reload regenerated): %v", err)
	}
	if reloaded.ID != regenerated.ID {
		t.Errorf("reloaded id = %s, want %s", reloaded.ID, regenerated.ID)
	}
}

func TestSignVerifies(t *testing.T) {
	ctx := context.Background()
	id, err := NewStore(store.NewMemoryStore()).GetOrCreate(ctx)
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}

	payload := "v2|dev|client|webchat|operator|a,b|1736000000000|tok|nonce"
	sig := id.Sign(payload)

	rawSig, err := base64.RawURLEncoding.DecodeString(sig)
	if err != nil {
		t.Fatalf("signature is not unpadded base64url: %v", err)
	}
	if !ed25519.Verify(id.PublicKey(), []byte(payload), rawSig) {
		t.Error("signature does not verify against the public key")
	}

	rawPub, err := base64.RawURLEncoding.DecodeString(id.PublicKeyRaw)
	if err != nil {
		t.Fatalf("PublicKeyRaw is not unpadded base64url: %v", err)
	}
	if len(rawPub) != ed25519.PublicKeySize {
		t.Errorf("raw public key length = %d, want %d", len(rawPub), ed25519.PublicKeySize)
	}
	if Fingerprint(rawPub) != id.ID {
		t.Error("fingerprint does not match raw public key")
	}
}
