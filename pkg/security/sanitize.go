// Package security holds input sanitization and HTTP security headers for
// the kiosk.
package security

import (
	"html"
	"strings"
	"sync"
	"unicode"

	"github.com/microcosm-cc/bluemonday"
)

var (
	textPolicyOnce sync.Once
	textPolicy     *bluemonday.Policy
)

func strictPolicy() *bluemonday.Policy {
	textPolicyOnce.Do(func() {
		textPolicy = bluemonday.StrictPolicy()
	})
	return textPolicy
}

// Sanitizer cleans free text typed by a patient before it is stored or sent
// to the backend.
type Sanitizer struct {
	policy *bluemonday.Policy
}

// NewSanitizer creates a sanitizer that removes all markup.
func NewSanitizer() *Sanitizer {
	return &Sanitizer{policy: strictPolicy()}
}

// maxDecodePasses bounds how many layers of entity encoding Text unwraps.
const maxDecodePasses = 8

// Text strips tags and control characters and collapses runs of whitespace.
// Entities are decoded so "O'Brien" survives as typed, and markup that was
// typed as entities is stripped once decoded.
func (s *Sanitizer) Text(input string) string {
	if input == "" {
		return ""
	}
	cleaned := input
	stable := false
	for i := 0; i < maxDecodePasses; i++ {
		next := html.UnescapeString(s.policy.Sanitize(cleaned))
		if next == cleaned {
			stable = true
			break
		}
		cleaned = next
	}
	if !stable {
		// Still decoding into markup: keep it escaped.
		cleaned = s.policy.Sanitize(cleaned)
	}
	return NormalizeWhitespace(stripControl(cleaned))
}

// NormalizeWhitespace collapses runs of whitespace into single spaces and
// trims the ends.
func NormalizeWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func stripControl(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsControl(r) && !unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
}
