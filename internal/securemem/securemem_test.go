package securemem

import "testing"

func TestStringRoundTrip(t *testing.T) {
	s := NewString("tok123")
	defer s.Destroy()

	if s.String() != "tok123" {
		t.Errorf("String() = %q, want %q", s.String(), "tok123")
	}
	if s.IsEmpty() {
		t.Error("IsEmpty() = true for non-empty value")
	}
	if !s.Equal("tok123") {
		t.Error("Equal(tok123) = false")
	}
	if s.Equal("tok124") {
		t.Error("Equal(tok124) = true")
	}
}

func TestDestroyedStringIsEmpty(t *testing.T) {
	s := NewString("tok123")
	s.Destroy()

	if s.String() != "" {
		t.Errorf("String() after Destroy = %q, want empty", s.String())
	}
	if !s.IsEmpty() {
		t.Error("IsEmpty() after Destroy = false")
	}

	// Double destroy must be safe.
	s.Destroy()
}

func TestNilString(t *testing.T) {
	var s *String
	if s.String() != "" || !s.IsEmpty() || !s.Equal("") {
		t.Error("nil *String should behave as empty")
	}
}
