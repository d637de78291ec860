package capability

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizer_RedactsBlobs(t *testing.T) {
	z := NewSanitizer(SanitizeConfig{MinBlobChars: 32})

	hex := strings.Repeat("deadbeef", 8)
	b64 := "QmFzZTY0IGVuY29kZWQgcGF5bG9hZCB0aGF0IGlzIGxvbmcgZW5vdWdoIHRvIHJlZGFjdA=="

	tests := []struct {
		name    string
		in      string
		absent  string
		present string
	}{
		{"data uri", `{"img":"data:image/jpeg;base64,/9j/4AAQSkZJRgABAQAAAQABAAD"}`, "/9j/4AAQ", "[data-uri redacted"},
		{"hex", "sha=" + hex + " done", hex, "[hex redacted: 64 chars]"},
		{"base64", "token " + b64, b64, "[base64 redacted"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := z.Sanitize(tt.in)
			assert.NotContains(t, out, tt.absent)
			assert.Contains(t, out, tt.present)
		})
	}
}

func TestSanitizer_KeepsOrdinaryText(t *testing.T) {
	z := NewSanitizer(SanitizeConfig{MinBlobChars: 32})
	in := "The page https://docs.example.com/reference/configuration explains everything; " +
		strings.Repeat("z", 40) + " pneumonoultramicroscopicsilicovolcanoconiosis"
	assert.Equal(t, in, z.Sanitize(in))
}

func TestSanitizer_Truncates(t *testing.T) {
	z := NewSanitizer(SanitizeConfig{MaxBytes: 10})
	out := z.Sanitize("hello world, this is long")
	assert.True(t, strings.HasPrefix(out, "hello worl"))
	assert.Contains(t, out, "[truncated: showing 10 of 25 bytes]")
}

func TestSanitizer_TruncatesOnRuneBoundary(t *testing.T) {
	z := NewSanitizer(SanitizeConfig{MaxBytes: 4})
	out := z.Sanitize("héllo")
	assert.True(t, strings.HasPrefix(out, "hél"))
	assert.Contains(t, out, "showing 4 of 6 bytes")

	z = NewSanitizer(SanitizeConfig{MaxBytes: 2})
	out = z.Sanitize("héllo")
	assert.True(t, strings.HasPrefix(out, "h\n"))
}

func TestSanitizer_Defaults(t *testing.T) {
	z := NewSanitizer(SanitizeConfig{})
	short := strings.Repeat("ab12", 10)
	assert.Equal(t, short, z.Sanitize(short))
	assert.Len(t, z.Sanitize(strings.Repeat("x ", 20000)), defaultSanitizeMaxBytes+len("\n...[truncated: showing 16384 of 40000 bytes]"))
}
