// Package securemem keeps the decrypted gateway secret in memguard-locked
// memory so it cannot be read via debugger, memory dump, or swap while the
// client is running.
package securemem

import (
	"crypto/subtle"

	"github.com/awnumar/memguard"
)

// String is a secure string wrapper that stores sensitive data in encrypted memory.
type String struct {
	buf     *memguard.LockedBuffer
	invalid bool
}

// NewString creates a new secure string from the given plaintext.
// The plaintext is immediately stored in encrypted memory.
func NewString(plaintext string) *String {
	return &String{
		buf: memguard.NewBufferFromBytes([]byte(plaintext)),
	}
}

// String returns the plaintext string value.
// WARNING: The returned string is a copy that lives in regular memory.
func (s *String) String() string {
	if s == nil || s.invalid || s.buf == nil {
		return ""
	}
	return string(s.buf.Bytes())
}

// IsEmpty returns true if the string is empty or invalid.
func (s *String) IsEmpty() bool {
	if s == nil || s.invalid || s.buf == nil {
		return true
	}
	return len(s.buf.Bytes()) == 0
}

// Equal returns true if the secure string equals the given plaintext string.
// The comparison runs in constant time.
func (s *String) Equal(other string) bool {
	if s == nil || s.invalid || s.buf == nil {
		return other == ""
	}
	return subtle.ConstantTimeCompare(s.buf.Bytes(), []byte(other)) == 1
}

// Destroy securely wipes the string from memory.
// After calling this, the string should not be used.
func (s *String) Destroy() {
	if s == nil || s.invalid {
		return
	}
	if s.buf != nil {
		s.buf.Destroy()
		s.buf = nil
	}
	s.invalid = true
}
