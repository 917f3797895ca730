package gateway

import (
	"encoding/json"
	"testing"
)

func TestResponseErrorStructuredCode(t *testing.T) {
	f := &Frame{
		Type:  frameTypeResponse,
		ID:    "1",
		Error: json.RawMessage(`{"code":"NOT_PAIRED","message":"device awaiting approval"}`),
	}
	err := responseError(f)
	if ErrorCode(err) != CodeNotPaired {
		t.Errorf("code = %s, want NOT_PAIRED", ErrorCode(err))
	}
}

func TestResponseErrorSubstringFallback(t *testing.T) {
	// Legacy gateways only say it in prose.
	f := &Frame{
		Type:  frameTypeResponse,
		ID:    "1",
		Error: json.RawMessage(`"device is not paired yet"`),
	}
	err := responseError(f)
	if ErrorCode(err) != CodeNotPaired {
		t.Errorf("code = %s, want NOT_PAIRED", ErrorCode(err))
	}
}

func TestResponseErrorStructuredCodeWins(t *testing.T) {
	// When a structured code is present it is authoritative, even if the
	// message text mentions pairing.
	f := &Frame{
		Type:  frameTypeResponse,
		ID:    "1",
		Error: json.RawMessage(`{"code":"AUTH_FAILED","message":"not paired, and also bad token"}`),
	}
	err := responseError(f)
	if ErrorCode(err) != "AUTH_FAILED" {
		t.Errorf("code = %s, want AUTH_FAILED", ErrorCode(err))
	}
}

func TestResponseErrorFromPayload(t *testing.T) {
	f := &Frame{
		Type:    frameTypeResponse,
		ID:      "1",
		Payload: json.RawMessage(`{"code":"RATE_LIMITED","message":"slow down"}`),
	}
	err := responseError(f)
	if ErrorCode(err) != "RATE_LIMITED" {
		t.Errorf("code = %s, want RATE_LIMITED", ErrorCode(err))
	}
}

func TestResponseErrorEmpty(t *testing.T) {
	f := &Frame{Type: frameTypeResponse, ID: "1"}
	err := responseError(f)
	if ErrorCode(err) != CodeRequestFailed {
		t.Errorf("code = %s, want REQUEST_FAILED", ErrorCode(err))
	}
	if err.Error() == "" {
		t.Error("error message should not be empty")
	}
}
