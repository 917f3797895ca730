// Package identity manages the long-lived Ed25519 device identity used to
// sign the gateway handshake. The keypair is generated once per installation,
// persisted in the local key-value store, and reused across restarts. Private
// key material never leaves this package except as a signature.
package identity

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/codefionn/gatelink/internal/logger"
	"github.com/codefionn/gatelink/internal/store"
)

// RecordKey is the fixed key the identity record lives under in the store.
const RecordKey = "device.identity"

const recordVersion = 1

var b64 = base64.RawURLEncoding

// Identity is a device identity: an Ed25519 keypair plus its fingerprint.
type Identity struct {
	// ID is the lowercase-hex SHA-256 digest of the raw 32-byte public key.
	ID string
	// PublicKeyRaw is the raw public key, base64url encoded without padding.
	PublicKeyRaw string

	publicKey  ed25519.PublicKey
	privateKey ed25519.PrivateKey
}

// PublicKey returns the raw Ed25519 public key.
func (id *Identity) PublicKey() ed25519.PublicKey {
	return id.publicKey
}

// Sign produces a base64url (no padding) encoding of the raw Ed25519
// signature over the UTF-8 bytes of payload.
func (id *Identity) Sign(payload string) string {
	return b64.EncodeToString(ed25519.Sign(id.privateKey, []byte(payload)))
}

// record is the persisted shape of an identity.
type record struct {
	Version              int    `json:"version"`
	DeviceID             string `json:"deviceId"`
	PublicKeyRaw         string `json:"publicKeyRaw"`
	SerializedPublicKey  string `json:"serializedPublicKey"`
	SerializedPrivateKey string `json:"serializedPrivateKey"`
}

// Store loads and persists the device identity. The backing record is read
// once per process; GetOrCreate returns the cached identity afterwards.
type Store struct {
	kv  store.Store
	log *logger.Logger

	mu     sync.Mutex
	cached *Identity
}

// NewStore creates an identity store backed by kv.
func NewStore(kv store.Store) *Store {
	return &Store{
		kv:  kv,
		log: logger.Global().WithPrefix("identity"),
	}
}

// GetOrCreate returns the persisted device identity, generating and storing a
// fresh one when no record exists. A corrupted record is replaced by a fresh
// identity rather than surfaced as an error; the new fingerprint invalidates
// any previous device approval, which is the accepted degradation.
func (s *Store) GetOrCreate(ctx context.Context) (*Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cached != nil {
		return s.cached, nil
	}

	raw, err := s.kv.Get(ctx, RecordKey)
	if err == nil {
		if id, loadErr := loadIdentity(raw); loadErr == nil {
			s.cached = id
			return id, nil
		} else {
			s.log.Warn("stored device identity unusable, regenerating: %v", loadErr)
		}
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("read identity record: %w", err)
	}

	id, err := s.generate(ctx)
	if err != nil {
		return nil, err
	}
	s.cached = id
	return id, nil
}

func (s *Store) generate(ctx context.Context) (*Identity, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate keypair: %w", err)
	}

	id := &Identity{
		ID:           Fingerprint(pub),
		PublicKeyRaw: b64.EncodeToString(pub),
		publicKey:    pub,
		privateKey:   priv,
	}

	pubDER, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return nil, fmt.Errorf("serialize public key: %w", err)
	}
	privDER, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		return nil, fmt.Errorf("serialize private key: %w", err)
	}

	rec := record{
		Version:              recordVersion,
		DeviceID:             id.ID,
		PublicKeyRaw:         id.PublicKeyRaw,
		SerializedPublicKey:  base64.StdEncoding.EncodeToString(pubDER),
		SerializedPrivateKey: base64.StdEncoding.EncodeToString(privDER),
	}

	raw, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("marshal identity record: %w", err)
	}
	if err := s.kv.Put(ctx, RecordKey, raw); err != nil {
		return nil, fmt.Errorf("persist identity record: %w", err)
	}

	s.log.Info("generated new device identity %s", shortID(id.ID))
	return id, nil
}

// loadIdentity reconstructs an identity from its persisted record. Any parse
// or import failure marks the record corrupted.
func loadIdentity(raw []byte) (*Identity, error) {
	var rec record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("parse record: %w", err)
	}
	if rec.Version != recordVersion {
		return nil, fmt.Errorf("unsupported record version %d", rec.Version)
	}

	privDER, err := base64.StdEncoding.DecodeString(rec.SerializedPrivateKey)
	if err != nil {
		return nil, fmt.Errorf("decode private key: %w", err)
	}
	key, err := x509.ParsePKCS8PrivateKey(privDER)
	if err != nil {
		return nil, fmt.Errorf("import private key: %w", err)
	}
	priv, ok := key.(ed25519.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("unexpected private key type %T", key)
	}

	pub, ok := priv.Public().(ed25519.PublicKey)
	if !ok {
		return nil, errors.New("private key has no ed25519 public key")
	}

	// The fingerprint is derived, never trusted from the record.
	id := &Identity{
		ID:           Fingerprint(pub),
		PublicKeyRaw: b64.EncodeToString(pub),
		publicKey:    pub,
		privateKey:   priv,
	}
	if rec.DeviceID != "" && rec.DeviceID != id.ID {
		return nil, errors.New("stored fingerprint does not match key material")
	}
	return id, nil
}

// Fingerprint derives the device id from a raw Ed25519 public key.
func Fingerprint(pub ed25519.PublicKey) string {
	sum := sha256.Sum256(pub)
	return hex.EncodeToString(sum[:])
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
