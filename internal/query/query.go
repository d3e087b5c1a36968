// Package query filters and sorts book collections. Every function is pure:
// inputs are never modified and results are fresh slices.
package query

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/banux/nxt-shelf/internal/catalog"
)

// Criteria are AND-combined filters. Empty fields impose no constraint.
type Criteria struct {
	FictionType string           `json:"fictionType,omitempty"`
	Genre       string           `json:"genre,omitempty"`
	Status      string           `json:"status,omitempty"`
	Formats     []catalog.Format `json:"formats,omitempty"` // book must have every one
	Search      string           `json:"search,omitempty"`
}

// Match reports whether bk satisfies every criterion.
func (c Criteria) Match(bk catalog.Book) bool {
	if !equalFold(c.FictionType, bk.FictionType) ||
		!equalFold(c.Genre, bk.Genre) ||
		!equalFold(c.Status, bk.Status) {
		return false
	}
	for _, f := range catalog.UniqueFormats(c.Formats) {
		if !bk.HasFormat(f) {
			return false
		}
	}
	if term := catalog.Fold(c.Search); term != "" {
		return matchesSearch(bk, term)
	}
	return true
}

// equalFold matches when want is blank or equal to got ignoring case.
func equalFold(want, got string) bool {
	want = catalog.Fold(want)
	return want == "" || want == catalog.Fold(got)
}

func matchesSearch(bk catalog.Book, term string) bool {
	for _, field := range []string{bk.Title, bk.Author, bk.Genre, bk.Notes, bk.FictionType} {
		if strings.Contains(catalog.Fold(field), term) {
			return true
		}
	}
	return false
}

// Filter returns the books matching c, in input order.
func Filter(books []catalog.Book, c Criteria) []catalog.Book {
	out := make([]catalog.Book, 0, len(books))
	for _, bk := range books {
		if c.Match(bk) {
			out = append(out, bk)
		}
	}
	return out
}

// SortKey names a sortable Book field, using the JSON field names.
type SortKey string

const (
	SortTitle           SortKey = "title"
	SortAuthor          SortKey = "author"
	SortGenre           SortKey = "genre"
	SortFictionType     SortKey = "fictionType"
	SortDifficulty      SortKey = "difficulty"
	SortStatus          SortKey = "status"
	SortFormats         SortKey = "formats"
	SortISBN            SortKey = "isbn"
	SortPublicationDate SortKey = "publicationDate"
	SortAcquiredDate    SortKey = "acquiredDate"
	SortAddedAt         SortKey = "addedAt"
)

// SortKeys lists every supported key.
var SortKeys = []SortKey{
	SortTitle, SortAuthor, SortGenre, SortFictionType, SortDifficulty, SortStatus,
	SortFormats, SortISBN, SortPublicationDate, SortAcquiredDate, SortAddedAt,
}

// ErrUnknownSortKey is returned for keys not in SortKeys.
var ErrUnknownSortKey = errors.New("unknown sort key")

// ParseSortKey validates s as a sort key.
func ParseSortKey(s string) (SortKey, error) {
	for _, k := range SortKeys {
		if string(k) == s {
			return k, nil
		}
	}
	return "", fmt.Errorf("%w %q", ErrUnknownSortKey, s)
}

// text returns the comparable string for key.
func text(bk catalog.Book, key SortKey) string {
	switch key {
	case SortTitle:
		return bk.Title
	case SortAuthor:
		return bk.Author
	case SortGenre:
		return bk.Genre
	case SortFictionType:
		return bk.FictionType
	case SortDifficulty:
		return bk.Difficulty
	case SortStatus:
		return bk.Status
	case SortFormats:
		return catalog.JoinFormats(bk.Formats)
	case SortISBN:
		return bk.ISBN
	case SortPublicationDate:
		return bk.PublicationDate
	case SortAcquiredDate:
		return bk.AcquiredDate
	}
	return ""
}

// Sort returns a copy of books ordered by key. String fields compare
// case-insensitively; formats compare by their joined display string.
// Books with equal keys keep their input order.
func Sort(books []catalog.Book, key SortKey, ascending bool) ([]catalog.Book, error) {
	if _, err := ParseSortKey(string(key)); err != nil {
		return nil, err
	}

	type keyed struct {
		bk   catalog.Book
		text string
	}
	items := make([]keyed, len(books))
	for i, bk := range books {
		items[i] = keyed{bk: bk, text: catalog.Fold(text(bk, key))}
	}

	less := func(a, b keyed) bool {
		if key == SortAddedAt {
			return a.bk.AddedAt.Before(b.bk.AddedAt)
		}
		return a.text < b.text
	}
	sort.SliceStable(items, func(i, j int) bool {
		if ascending {
			return less(items[i], items[j])
		}
		return less(items[j], items[i])
	})

	out := make([]catalog.Book, len(items))
	for i, it := range items {
		out[i] = it.bk
	}
	return out, nil
}

// Page returns books[offset:offset+limit], clamped. A limit of 0 means no limit.
func Page(books []catalog.Book, offset, limit int) []catalog.Book {
	total := len(books)
	if offset < 0 {
		offset = 0
	}
	if offset >= total {
		return []catalog.Book{}
	}
	end := offset + limit
	if limit <= 0 || end > total {
		end = total
	}
	return books[offset:end]
}
