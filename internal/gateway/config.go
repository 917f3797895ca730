package gateway

import (
	"time"

	"github.com/codefionn/gatelink/internal/securemem"
)

// Auth modes for the connect request.
const (
	// AuthModeToken sends the shared secret as auth.token.
	AuthModeToken = "token"
	// AuthModePassword sends the shared secret as auth.password.
	AuthModePassword = "password"
)

// Credentials identify the gateway and how to authenticate against it. They
// may change between connection attempts but never mid-connection; the client
// reads them once per attempt.
type Credentials struct {
	// URL is the gateway websocket endpoint (ws:// or wss://).
	URL string
	// Secret holds the shared secret in locked memory, or nil when the
	// gateway is unauthenticated. The plaintext is materialized only while
	// the connect request is being built.
	Secret *securemem.String
	// AuthMode selects the auth field carrying the secret (AuthModeToken default).
	AuthMode string
}

// Config holds client configuration
type Config struct {
	// ClientID identifies this client installation to the gateway.
	ClientID string
	// ClientVersion is the version of the client
	ClientVersion string
	// Platform describes the hosting platform (e.g. "linux")
	Platform string
	// Mode is the fixed client mode sent in the handshake
	Mode string
	// Role is the fixed role requested in the handshake
	Role string
	// Scopes is the fixed scope set requested in the handshake
	Scopes []string
	// MinProtocol and MaxProtocol bound the accepted protocol versions
	MinProtocol int
	MaxProtocol int
	// Locale is sent in the connect request
	Locale string
	// UserAgent is sent in the connect request
	UserAgent string
	// RequestTimeout is the per-request response deadline
	RequestTimeout time.Duration
	// ReconnectDelay is the backoff base delay after an unexpected close
	ReconnectDelay time.Duration
	// ReconnectMaxDelay caps the backoff delay
	ReconnectMaxDelay time.Duration
	// ReconnectJitter is the fraction of the delay added as random jitter
	ReconnectJitter float64
}

// DefaultConfig returns a default configuration
func DefaultConfig() *Config {
	return &Config{
		ClientID:          "gatelink",
		ClientVersion:     "0.1.0",
		Platform:          "go",
		Mode:              "webchat",
		Role:              "operator",
		Scopes:            []string{"operator.read", "operator.write"},
		MinProtocol:       3,
		MaxProtocol:       3,
		Locale:            "en-US",
		UserAgent:         "gatelink/0.1.0",
		RequestTimeout:    30 * time.Second,
		ReconnectDelay:    1 * time.Second,
		ReconnectMaxDelay: 30 * time.Second,
		ReconnectJitter:   0.3,
	}
}
