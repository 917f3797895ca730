package gateway

import (
	"strconv"
	"strings"
)

// AuthPayloadParams are the inputs to the canonical signed handshake payload.
type AuthPayloadParams struct {
	DeviceID string
	ClientID string
	Mode     string
	Role     string
	Scopes   []string
	SignedAt int64 // unix milliseconds
	Token    string
	Nonce    string
}

// BuildDeviceAuthPayload produces the deterministic string signed during the
// handshake. Field order and the version tag are load-bearing; the gateway
// rebuilds this byte-for-byte to verify the signature.
//
// Without a nonce:
//
//	v1|deviceId|clientId|mode|role|scope1,scope2|signedAt|token
//
// With a nonce, the tag becomes v2 and the nonce is appended as the final
// field. An empty token serializes as an empty trailing field.
func BuildDeviceAuthPayload(p AuthPayloadParams) string {
	fields := []string{
		"v1",
		p.DeviceID,
		p.ClientID,
		p.Mode,
		p.Role,
		strings.Join(p.Scopes, ","),
		strconv.FormatInt(p.SignedAt, 10),
		p.Token,
	}
	if p.Nonce != "" {
		fields[0] = "v2"
		fields = append(fields, p.Nonce)
	}
	return strings.Join(fields, "|")
}
