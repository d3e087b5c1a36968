// Package intake turns a scanned or typed ISBN into a new book, asking the
// user what to do when the library already holds the same title and author.
//
// The branching is split in two: pure decision functions (FindDuplicate,
// PromptFor, Decide) and a Prompter that supplies the user's answer.
package intake

import (
	"fmt"
	"strings"

	"github.com/banux/nxt-shelf/internal/catalog"
)

// PromptKind is the question put to the user about a duplicate.
type PromptKind string

const (
	// PromptNone: no duplicate, nothing to ask.
	PromptNone PromptKind = ""
	// PromptSecondCopy: the existing record is already physical. Add a
	// second physical copy or cancel.
	PromptSecondCopy PromptKind = "second_copy"
	// PromptMergeOrCopy: the existing record lacks physical. Merge the
	// physical format into it, add a separate copy, or cancel.
	PromptMergeOrCopy PromptKind = "merge_or_copy"
)

// Choice is the user's answer to a prompt.
type Choice string

const (
	ChoiceAddCopy Choice = "add_copy"
	ChoiceMerge   Choice = "merge"
	ChoiceCancel  Choice = "cancel"
)

// Choices returns the answers offered for kind.
func (k PromptKind) Choices() []Choice {
	switch k {
	case PromptSecondCopy:
		return []Choice{ChoiceAddCopy, ChoiceCancel}
	case PromptMergeOrCopy:
		return []Choice{ChoiceMerge, ChoiceAddCopy, ChoiceCancel}
	}
	return nil
}

// ParseChoice accepts a Choice by name.
func ParseChoice(s string) (Choice, error) {
	switch c := Choice(strings.ToLower(strings.TrimSpace(s))); c {
	case ChoiceAddCopy, ChoiceMerge, ChoiceCancel:
		return c, nil
	}
	return "", fmt.Errorf("unknown choice %q", s)
}

// Action is what the workflow will do.
type Action string

const (
	ActionAdd     Action = "add"      // no duplicate: normal add
	ActionAddCopy Action = "add_copy" // stage a separate copy for the add form
	ActionMerge   Action = "merge"    // add physical to the existing record
	ActionCancel  Action = "cancel"   // nothing changes
)

// FindDuplicate returns the first book whose trimmed title and author equal
// the given ones, ignoring case. Matching is exact, not fuzzy.
func FindDuplicate(books []catalog.Book, title, author string) (catalog.Book, bool) {
	key := catalog.DuplicateKey(title, author)
	for _, bk := range books {
		if catalog.DuplicateKey(bk.Title, bk.Author) == key {
			return bk, true
		}
	}
	return catalog.Book{}, false
}

// PromptFor picks the question for a duplicate of existing.
func PromptFor(existing catalog.Book) PromptKind {
	if existing.HasFormat(catalog.FormatPhysical) {
		return PromptSecondCopy
	}
	return PromptMergeOrCopy
}

// Decide maps an answer to an action. Answers not offered for kind cancel.
func Decide(kind PromptKind, choice Choice) Action {
	switch kind {
	case PromptNone:
		return ActionAdd
	case PromptSecondCopy:
		if choice == ChoiceAddCopy {
			return ActionAddCopy
		}
	case PromptMergeOrCopy:
		switch choice {
		case ChoiceMerge:
			return ActionMerge
		case ChoiceAddCopy:
			return ActionAddCopy
		}
	}
	return ActionCancel
}

// CopyNote is the note stamped on the n-th copy of a book.
func CopyNote(n int) string {
	return fmt.Sprintf("Copy #%d", n)
}

// StageCopy prepares incoming as a separate physical copy: physical is
// selected and a copy-number note is added.
func StageCopy(incoming catalog.BookData, copyNumber int) catalog.BookData {
	d := incoming.WithFormat(catalog.FormatPhysical)
	note := CopyNote(copyNumber)
	switch notes := strings.TrimSpace(d.Notes); {
	case notes == "":
		d.Notes = note
	case !strings.Contains(notes, note):
		d.Notes = notes + "\n" + note
	}
	return d
}

// MergePhysical returns existing's data with the physical format added.
func MergePhysical(existing catalog.Book) catalog.BookData {
	return existing.Data().WithFormat(catalog.FormatPhysical)
}
