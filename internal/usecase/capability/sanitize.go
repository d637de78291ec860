package capability

import (
	"fmt"
	"regexp"
	"unicode/utf8"
)

// SanitizeConfig bounds text returned toward a language model.
type SanitizeConfig struct {
	// MaxBytes caps the output size. Zero means 16 KiB.
	MaxBytes int
	// MinBlobChars is the shortest run treated as an encoded blob. Zero means 64.
	MinBlobChars int
}

const (
	defaultSanitizeMaxBytes = 16 * 1024
	defaultMinBlobChars     = 64
)

// Sanitizer redacts encoded blobs and truncates oversized payloads.
type Sanitizer struct {
	maxBytes int
	dataURI  *regexp.Regexp
	hexRun   *regexp.Regexp
	b64Run   *regexp.Regexp
}

// NewSanitizer compiles the redaction patterns for cfg.
func NewSanitizer(cfg SanitizeConfig) *Sanitizer {
	maxBytes := cfg.MaxBytes
	if maxBytes <= 0 {
		maxBytes = defaultSanitizeMaxBytes
	}
	minBlob := cfg.MinBlobChars
	if minBlob <= 0 {
		minBlob = defaultMinBlobChars
	}
	return &Sanitizer{
		maxBytes: maxBytes,
		dataURI:  regexp.MustCompile(`data:[A-Za-z0-9.+/-]+(?:;[A-Za-z0-9=.-]+)*;base64,[A-Za-z0-9+/=]+`),
		hexRun:   regexp.MustCompile(fmt.Sprintf(`\b(?:0x)?[0-9a-fA-F]{%d,}\b`, minBlob)),
		b64Run:   regexp.MustCompile(fmt.Sprintf(`[A-Za-z0-9+/_-]{%d,}={0,2}`, minBlob)),
	}
}

// Sanitize returns s with data URIs, hex blobs and base64 blobs replaced by
// short placeholders, truncated to the configured size with an explicit marker.
func (z *Sanitizer) Sanitize(s string) string {
	s = z.dataURI.ReplaceAllStringFunc(s, func(m string) string {
		return fmt.Sprintf("[data-uri redacted: %d bytes]", len(m))
	})
	s = z.hexRun.ReplaceAllStringFunc(s, func(m string) string {
		return fmt.Sprintf("[hex redacted: %d chars]", len(m))
	})
	s = z.b64Run.ReplaceAllStringFunc(s, func(m string) string {
		if !looksEncoded(m) {
			return m
		}
		return fmt.Sprintf("[base64 redacted: %d chars]", len(m))
	})
	return z.truncate(s)
}

func (z *Sanitizer) truncate(s string) string {
	if len(s) <= z.maxBytes {
		return s
	}
	cut := z.maxBytes
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + fmt.Sprintf("\n...[truncated: showing %d of %d bytes]", cut, len(s))
}

// looksEncoded separates encoded runs from long identifiers or words: an
// encoded blob mixes letter case and digits, or carries base64 padding.
func looksEncoded(s string) bool {
	var upper, lower, digit bool
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'A' && c <= 'Z':
			upper = true
		case c >= 'a' && c <= 'z':
			lower = true
		case c >= '0' && c <= '9':
			digit = true
		case c == '=':
			return true
		}
	}
	return upper && lower && digit
}
