package utils

import (
	"strings"
	"testing"
)

func TestEscapeMd(t *testing.T) {
	got := EscapeMd("a*b_c`d~e|f")
	want := "a\\*b\\_c\\`d\\~e\\|f"
	if got != want {
		t.Fatalf("EscapeMd = %q, want %q", got, want)
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		in   string
		n    int
		want string
	}{
		{"hello", 10, "hello"},
		{"hello", 5, "hello"},
		{"hello world", 6, "hello…"},
		{"héllo", 3, "hé…"},
		{"abc", 0, ""},
	}
	for _, tt := range tests {
		if got := Truncate(tt.in, tt.n); got != tt.want {
			t.Errorf("Truncate(%q, %d) = %q, want %q", tt.in, tt.n, got, tt.want)
		}
	}
}

func TestRandomUserAgent(t *testing.T) {
	ua := RandomUserAgent()
	if !strings.HasPrefix(ua, "Mozilla/5.0") || !strings.Contains(ua, "Chrome/") {
		t.Fatalf("unexpected user agent %q", ua)
	}
}
