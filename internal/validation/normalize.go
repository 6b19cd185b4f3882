// Package validation runs the local and remote compliance checks on an
// invoice and merges every finding into a single severity-classified report.
package validation

import "strings"

const (
	ntnLength  = 7
	cnicLength = 13

	hsCodeMinDigits = 2
	hsCodeMaxDigits = 8
)

// NormalizeIdentifier strips every non-digit from a registration identifier.
// Normalizing an already-normalized identifier returns it unchanged.
func NormalizeIdentifier(id string) string {
	var b strings.Builder
	for _, ch := range id {
		if ch >= '0' && ch <= '9' {
			b.WriteRune(ch)
		}
	}
	return b.String()
}

// IsValidIdentifier reports whether the identifier normalizes to a 7-digit
// business tax number or a 13-digit national ID.
func IsValidIdentifier(id string) bool {
	n := len(NormalizeIdentifier(id))
	return n == ntnLength || n == cnicLength
}

// NormalizeHSCode strips separators from an HS product code.
func NormalizeHSCode(code string) string {
	return NormalizeIdentifier(code)
}

// IsValidHSCode reports whether the product code normalizes to 2-8 digits.
func IsValidHSCode(code string) bool {
	n := len(NormalizeHSCode(code))
	return n >= hsCodeMinDigits && n <= hsCodeMaxDigits
}
