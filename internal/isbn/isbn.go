// Package isbn normalizes and validates ISBNs, classifies books from their
// subject categories and looks up book metadata by ISBN.
package isbn

import (
	"github.com/banux/nxt-shelf/internal/catalog"
)

// Normalize strips hyphens and spaces.
func Normalize(s string) string {
	return catalog.NormalizeISBN(s)
}

// FormatResult is the outcome of ValidateFormat. Normalized is set when Valid,
// Message otherwise.
type FormatResult struct {
	Valid      bool   `json:"valid"`
	Normalized string `json:"normalized,omitempty"`
	Message    string `json:"message,omitempty"`
}

// ValidateFormat normalizes s and accepts only 10 or 13 digit results.
func ValidateFormat(s string) FormatResult {
	n := Normalize(s)
	if n == "" {
		return FormatResult{Message: "ISBN is required"}
	}
	if !catalog.ValidISBN(n) {
		return FormatResult{Message: catalog.MsgISBNInvalid}
	}
	return FormatResult{Valid: true, Normalized: n}
}
