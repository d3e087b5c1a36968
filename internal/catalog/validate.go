package catalog

import (
	"fmt"
	"strings"
)

// Validation messages. They are stable so callers and the UI can match on them.
const (
	MsgTitleRequired       = "Title is required"
	MsgAuthorRequired      = "Author is required"
	MsgGenreRequired       = "Genre is required"
	MsgFictionTypeRequired = "Fiction type is required"
	MsgDifficultyRequired  = "Difficulty is required"
	MsgStatusRequired      = "Status is required"
	MsgFormatRequired      = "At least one format is required"
	MsgISBNInvalid         = "ISBN must be 10 or 13 digits"
)

// Result is the outcome of Validate.
type Result struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors"`
}

// Validate checks d against every rule and collects all violations in field
// order. It has no side effects.
func Validate(d BookData) Result {
	var errs []string
	required := []struct {
		value string
		msg   string
	}{
		{d.Title, MsgTitleRequired},
		{d.Author, MsgAuthorRequired},
		{d.Genre, MsgGenreRequired},
		{d.FictionType, MsgFictionTypeRequired},
		{d.Difficulty, MsgDifficultyRequired},
		{d.Status, MsgStatusRequired},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			errs = append(errs, r.msg)
		}
	}

	formats := UniqueFormats(d.Formats)
	if len(formats) == 0 {
		errs = append(errs, MsgFormatRequired)
	}
	for _, f := range formats {
		if !f.Known() {
			errs = append(errs, fmt.Sprintf("Unknown format %q", string(f)))
		}
	}

	if isbn := NormalizeISBN(d.ISBN); isbn != "" && !ValidISBN(isbn) {
		errs = append(errs, MsgISBNInvalid)
	}

	return Result{Valid: len(errs) == 0, Errors: errs}
}

// ValidISBN reports whether s (already normalized) is exactly 10 or 13 digits.
func ValidISBN(s string) bool {
	if len(s) != 10 && len(s) != 13 {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
