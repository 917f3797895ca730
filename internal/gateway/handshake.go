package gateway

import (
	"context"
	"encoding/json"
	"time"
)

// challengeEvent is the event the gateway pushes when it wants the client to
// prove its identity. Every handshake starts here; re-challenges of an open
// socket restart it.
const challengeEvent = "connect.challenge"

// ClientInfo describes this client in the connect request.
type ClientInfo struct {
	ID       string `json:"id"`
	Version  string `json:"version"`
	Platform string `json:"platform"`
	Mode     string `json:"mode"`
}

// AuthParams carry the shared secret; the field depends on the auth mode.
type AuthParams struct {
	Token    string `json:"token,omitempty"`
	Password string `json:"password,omitempty"`
}

// DeviceAuth is the signed device identity attached to the connect request.
type DeviceAuth struct {
	ID        string `json:"id"`
	PublicKey string `json:"publicKey"`
	Signature string `json:"signature"`
	SignedAt  int64  `json:"signedAt"`
	Nonce     string `json:"nonce,omitempty"`
}

// ConnectParams is the connect request body.
type ConnectParams struct {
	MinProtocol int            `json:"minProtocol"`
	MaxProtocol int            `json:"maxProtocol"`
	Client      ClientInfo     `json:"client"`
	Role        string         `json:"role"`
	Scopes      []string       `json:"scopes"`
	Caps        []string       `json:"caps"`
	Commands    []string       `json:"commands"`
	Permissions map[string]any `json:"permissions"`
	Auth        AuthParams     `json:"auth"`
	Device      *DeviceAuth    `json:"device,omitempty"`
	Locale      string         `json:"locale"`
	UserAgent   string         `json:"userAgent"`
}

// handleChallenge captures the nonce from a connect.challenge event and runs
// the handshake. The nonce is scoped to this one attempt; a challenge without
// one falls back to the v1 payload format.
func (c *Client) handleChallenge(conn Conn, gen uint64, f *Frame) {
	var payload struct {
		Nonce *string `json:"nonce"`
	}
	nonce := ""
	if len(f.Payload) > 0 {
		if err := json.Unmarshal(f.Payload, &payload); err == nil && payload.Nonce != nil {
			nonce = *payload.Nonce
		}
	}

	c.mu.Lock()
	if c.conn != conn || c.connGen != gen {
		c.mu.Unlock()
		return
	}
	c.nonce = nonce
	c.mu.Unlock()

	// The connect request blocks on its response, so it cannot run on the
	// read loop.
	go c.performHandshake(conn, gen)
}

// performHandshake signs the canonical payload and sends the connect request.
// Success moves status to connected and resets the backoff counter. A
// NOT_PAIRED rejection moves status to pairing and leaves both the socket and
// auto-reconnect alone: the gateway either approves the device out-of-band
// (and re-challenges) or closes the socket itself. Any other rejection is
// treated as a fatal credential or protocol error.
func (c *Client) performHandshake(conn Conn, gen uint64) {
	c.mu.Lock()
	creds := c.creds
	nonce := c.nonce
	c.mu.Unlock()

	// The secret leaves locked memory only here, scoped to this one attempt.
	secret := creds.Secret.String()

	auth := AuthParams{}
	if creds.AuthMode == AuthModePassword {
		auth.Password = secret
	} else {
		auth.Token = secret
	}

	params := &ConnectParams{
		MinProtocol: c.cfg.MinProtocol,
		MaxProtocol: c.cfg.MaxProtocol,
		Client: ClientInfo{
			ID:       c.cfg.ClientID,
			Version:  c.cfg.ClientVersion,
			Platform: c.cfg.Platform,
			Mode:     c.cfg.Mode,
		},
		Role:        c.cfg.Role,
		Scopes:      c.cfg.Scopes,
		Caps:        []string{},
		Commands:    []string{},
		Permissions: map[string]any{},
		Auth:        auth,
		Device:      c.buildDeviceAuth(secret, nonce),
		Locale:      c.cfg.Locale,
		UserAgent:   c.cfg.UserAgent,
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.RequestTimeout)
	defer cancel()
	_, err := c.request(ctx, conn, gen, "connect", params)

	c.mu.Lock()
	if c.conn != conn || c.connGen != gen {
		c.mu.Unlock()
		return
	}

	switch {
	case err == nil:
		c.attempts = 0
		notify := c.setStatusLocked(StatusConnected)
		c.mu.Unlock()
		c.log.Info("handshake complete")
		notify()

	case ErrorCode(err) == CodeNotPaired:
		notify := c.setStatusLocked(StatusPairing)
		c.mu.Unlock()
		c.log.Info("device not paired, awaiting approval")
		notify()

	default:
		c.autoReconnect = false
		c.mu.Unlock()
		c.log.Error("handshake rejected: %v", err)
		conn.Close()
	}
}

// buildDeviceAuth signs the canonical payload with the device identity.
// Without an identity store (or when key material is unavailable) the device
// field is omitted and the gateway decides on secret alone.
func (c *Client) buildDeviceAuth(secret, nonce string) *DeviceAuth {
	if c.ids == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	id, err := c.ids.GetOrCreate(ctx)
	if err != nil {
		c.log.Warn("device identity unavailable: %v", err)
		return nil
	}

	signedAt := time.Now().UnixMilli()
	payload := BuildDeviceAuthPayload(AuthPayloadParams{
		DeviceID: id.ID,
		ClientID: c.cfg.ClientID,
		Mode:     c.cfg.Mode,
		Role:     c.cfg.Role,
		Scopes:   c.cfg.Scopes,
		SignedAt: signedAt,
		Token:    secret,
		Nonce:    nonce,
	})

	return &DeviceAuth{
		ID:        id.ID,
		PublicKey: id.PublicKeyRaw,
		Signature: id.Sign(payload),
		SignedAt:  signedAt,
		Nonce:     nonce,
	}
}
