package gateway

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildDeviceAuthPayloadV1(t *testing.T) {
	p := AuthPayloadParams{
		DeviceID: "dev123",
		ClientID: "client-1",
		Mode:     "webchat",
		Role:     "operator",
		Scopes:   []string{"operator.read", "operator.write"},
		SignedAt: 1736000000000,
		Token:    "tok123",
	}

	got := BuildDeviceAuthPayload(p)
	assert.Equal(t, "v1|dev123|client-1|webchat|operator|operator.read,operator.write|1736000000000|tok123", got)
}

func TestBuildDeviceAuthPayloadV2WithNonce(t *testing.T) {
	p := AuthPayloadParams{
		DeviceID: "dev123",
		ClientID: "client-1",
		Mode:     "webchat",
		Role:     "operator",
		Scopes:   []string{"b", "a"},
		SignedAt: 42,
		Token:    "tok123",
		Nonce:    "n0nce",
	}

	got := BuildDeviceAuthPayload(p)
	// Scopes keep input order; the nonce is the trailing field.
	assert.Equal(t, "v2|dev123|client-1|webchat|operator|b,a|42|tok123|n0nce", got)
}

func TestBuildDeviceAuthPayloadEmptyNonceIsV1(t *testing.T) {
	p := AuthPayloadParams{
		DeviceID: "dev123",
		ClientID: "client-1",
		Mode:     "webchat",
		Role:     "operator",
		SignedAt: 42,
	}

	// Missing token serializes as an empty trailing field, and an empty
	// nonce never switches the version tag.
	got := BuildDeviceAuthPayload(p)
	assert.Equal(t, "v1|dev123|client-1|webchat|operator||42|", got)
}
