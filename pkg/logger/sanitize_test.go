package logger

import "testing"

func TestSanitizedEmail(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"owner@shop.example.com", "o****@****.*******.com"},
		{"a@b.io", "a@*.io"},
		{"not-an-email", "[invalid-email]"},
	}

	for _, tt := range tests {
		if got := SanitizedEmail(tt.in); got != tt.want {
			t.Errorf("SanitizedEmail(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSanitizeQueryString(t *testing.T) {
	if !SanitizeQueryString("token=abc123") {
		t.Error("reset token query must be redacted")
	}
	if !SanitizeQueryString("Code=123456") {
		t.Error("match should be case-insensitive")
	}
	if SanitizeQueryString("page=2&limit=10") {
		t.Error("harmless query should not be redacted")
	}
}
