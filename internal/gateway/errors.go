package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Error codes surfaced by the client.
const (
	// CodeNotConnected: a send was attempted without an open socket.
	CodeNotConnected = "NOT_CONNECTED"
	// CodeTimeout: no response arrived within the request timeout.
	CodeTimeout = "TIMEOUT"
	// CodeDisconnected: the socket closed while the request was pending.
	CodeDisconnected = "DISCONNECTED"
	// CodeHandshakeRejected: the gateway refused the connect request for a
	// reason other than pairing. Not retryable.
	CodeHandshakeRejected = "HANDSHAKE_REJECTED"
	// CodeNotPaired: the device identity awaits server-side approval.
	CodeNotPaired = "NOT_PAIRED"
	// CodeRequestFailed: the gateway answered ok:false without a code of its own.
	CodeRequestFailed = "REQUEST_FAILED"
)

// Error is an error from the gateway client or server.
type Error struct {
	Code    string
	Message string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return e.Code
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// NewError creates a new gateway Error.
func NewError(code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// ErrorCode extracts the gateway error code from err, or "".
func ErrorCode(err error) string {
	var ge *Error
	if errors.As(err, &ge) {
		return ge.Code
	}
	return ""
}

// responseError converts an ok:false response into an error. The error field
// is either a bare string or a structured {code, message} object; some
// gateways put the structured form in the payload instead.
func responseError(f *Frame) error {
	code, message := decodeErrorField(f.Error)
	if code == "" && message == "" {
		code, message = decodeErrorField(f.Payload)
	}
	if code == "" {
		// Legacy gateways signal pairing only through free-text messages.
		// A structured code, when present, is authoritative.
		if strings.Contains(strings.ToLower(message), "not paired") {
			code = CodeNotPaired
		} else {
			code = CodeRequestFailed
		}
	}
	if message == "" {
		message = "request failed"
	}
	return &Error{Code: code, Message: message}
}

func decodeErrorField(raw json.RawMessage) (code, message string) {
	if len(raw) == 0 {
		return "", ""
	}

	var structured struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &structured); err == nil {
		if structured.Code != "" || structured.Message != "" {
			return structured.Code, structured.Message
		}
	}

	var plain string
	if err := json.Unmarshal(raw, &plain); err == nil {
		return "", plain
	}
	return "", ""
}
