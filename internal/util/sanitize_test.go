package util

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeForLog(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "GET /index.html", "GET /index.html"},
		{"empty", "", ""},
		{"newline injection", "ok\nFAKE level=info msg=forged", "ok FAKE level=info msg=forged"},
		{"crlf injection", "ok\r\nSet-Cookie: x", "ok Set-Cookie: x"},
		{"control chars", "a\x00b\x1fc", "a b c"},
		{"tab", "a\tb", "a b"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SanitizeForLog(tt.in))
		})
	}
}

func TestTruncate(t *testing.T) {
	long := strings.Repeat("x", 500)

	assert.Len(t, Truncate(long, 200), 200)
	assert.Equal(t, "short", Truncate("short", 200))
	assert.Equal(t, long, Truncate(long, 0), "zero max means no limit")
}
