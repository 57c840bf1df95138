package recorder

import (
	"strings"
	"unicode"
)

// PrivacyLevel selects how aggressively text is redacted in a snapshot.
type PrivacyLevel string

const (
	// PrivacyAllow records text as-is, except for sensitive fields.
	PrivacyAllow PrivacyLevel = "allow"
	// PrivacyMask masks all text.
	PrivacyMask PrivacyLevel = "mask"
)

// ParsePrivacyLevel maps a configuration value to a PrivacyLevel. Anything it
// does not recognise maps to PrivacyMask.
func ParsePrivacyLevel(s string) PrivacyLevel {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "allow", "allow_all", "allow-all":
		return PrivacyAllow
	default:
		return PrivacyMask
	}
}

// TextObfuscator is a pure text transform applied to recorded text.
type TextObfuscator interface {
	Obfuscate(text string) string
}

// NOPTextObfuscator returns text unchanged.
type NOPTextObfuscator struct{}

func (NOPTextObfuscator) Obfuscate(text string) string { return text }

// MaskTextObfuscator replaces every non-whitespace character with 'x'.
// Length and line breaks are preserved so the replayed layout keeps its shape.
type MaskTextObfuscator struct{}

func (MaskTextObfuscator) Obfuscate(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		if unicode.IsSpace(r) {
			b.WriteRune(r)
			continue
		}
		b.WriteByte('x')
	}
	return b.String()
}

// SensitiveTextObfuscator hides text entirely, including its length.
type SensitiveTextObfuscator struct{}

// SensitivePlaceholder is what any non-empty sensitive text becomes.
const SensitivePlaceholder = "***"

func (SensitiveTextObfuscator) Obfuscate(text string) string {
	if text == "" {
		return ""
	}
	return SensitivePlaceholder
}

// TextObfuscators is the set of obfuscators for one snapshot.
type TextObfuscators struct {
	// Text applies to ordinary text content.
	Text TextObfuscator
	// SelectionText applies to selected or highlighted values.
	SelectionText TextObfuscator
	// SensitiveText applies to inherently sensitive fields (passwords).
	// It masks under every privacy level.
	SensitiveText TextObfuscator
}

// Obfuscators derives the obfuscator set for level.
func Obfuscators(level PrivacyLevel) TextObfuscators {
	switch level {
	case PrivacyAllow:
		return TextObfuscators{
			Text:          NOPTextObfuscator{},
			SelectionText: NOPTextObfuscator{},
			SensitiveText: SensitiveTextObfuscator{},
		}
	default:
		return TextObfuscators{
			Text:          MaskTextObfuscator{},
			SelectionText: SensitiveTextObfuscator{},
			SensitiveText: SensitiveTextObfuscator{},
		}
	}
}
