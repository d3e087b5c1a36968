// Package catalog provides the book record model for nxt-shelf.
// It defines the core data types, the validation rules every persisted book
// must satisfy, and the Backend interface that storage implementations satisfy.
package catalog

import (
	"context"
	"strings"
	"time"

	"golang.org/x/text/cases"
)

// Format is a way a book is owned. A book may have several at once.
type Format string

const (
	FormatPhysical Format = "physical"
	FormatKindle   Format = "kindle"
	FormatAudible  Format = "audible"
)

// Formats lists every known format in display order.
var Formats = []Format{FormatPhysical, FormatKindle, FormatAudible}

// Known reports whether f is one of the supported formats.
func (f Format) Known() bool {
	switch f {
	case FormatPhysical, FormatKindle, FormatAudible:
		return true
	}
	return false
}

// Coarse fiction classification.
const (
	Fiction    = "Fiction"
	Nonfiction = "Nonfiction"
)

// FictionTypes lists the accepted fiction type values.
var FictionTypes = []string{Fiction, Nonfiction}

// Genres lists the genres offered by the UI and produced by ISBN classification.
var Genres = []string{
	"Literary Fiction",
	"Mystery/Thriller",
	"Science Fiction",
	"Fantasy",
	"Romance",
	"Historical Fiction",
	"Horror",
	"Biography/Memoir",
	"History",
	"Science",
	"Philosophy",
	"Business",
	"Self-Help",
	"True Crime",
	"Essay Collection",
	"Politics/Current Events",
	"Poetry",
	"Graphic Novel",
	"Young Adult",
	"Uncategorized",
}

// Difficulties lists the reading difficulty levels.
var Difficulties = []string{"Easy", "Moderate", "Challenging"}

// Statuses lists the reading statuses.
var Statuses = []string{"unread", "reading", "read", "abandoned"}

// Book is a single tracked book.
type Book struct {
	// ID is assigned once at creation and never changes.
	ID string `json:"id"`

	Title  string `json:"title"`
	Author string `json:"author"`

	Genre       string `json:"genre"`
	FictionType string `json:"fictionType"`
	Difficulty  string `json:"difficulty"`
	Status      string `json:"status"`

	// Formats is a set; order is the order the formats were first recorded.
	Formats []Format `json:"formats"`

	// ISBN is optional. When present it is stored normalized (digits only).
	ISBN string `json:"isbn,omitempty"`

	// PublicationDate and AcquiredDate are free-form; ISO-8601 is recommended.
	PublicationDate string `json:"publicationDate,omitempty"`
	AcquiredDate    string `json:"acquiredDate,omitempty"`

	CoverURL string `json:"coverUrl,omitempty"`
	Notes    string `json:"notes,omitempty"`

	// AddedAt is set once at creation and never mutated.
	AddedAt time.Time `json:"addedAt"`
}

// BookData carries every mutable field of a Book. It is the payload of the add
// and update paths: updates replace all of these fields wholesale.
type BookData struct {
	Title           string   `json:"title"`
	Author          string   `json:"author"`
	Genre           string   `json:"genre"`
	FictionType     string   `json:"fictionType"`
	Difficulty      string   `json:"difficulty"`
	Status          string   `json:"status"`
	Formats         []Format `json:"formats"`
	ISBN            string   `json:"isbn,omitempty"`
	PublicationDate string   `json:"publicationDate,omitempty"`
	AcquiredDate    string   `json:"acquiredDate,omitempty"`
	CoverURL        string   `json:"coverUrl,omitempty"`
	Notes           string   `json:"notes,omitempty"`
}

// Data returns the mutable fields of b.
func (b Book) Data() BookData {
	return BookData{
		Title:           b.Title,
		Author:          b.Author,
		Genre:           b.Genre,
		FictionType:     b.FictionType,
		Difficulty:      b.Difficulty,
		Status:          b.Status,
		Formats:         append([]Format(nil), b.Formats...),
		ISBN:            b.ISBN,
		PublicationDate: b.PublicationDate,
		AcquiredDate:    b.AcquiredDate,
		CoverURL:        b.CoverURL,
		Notes:           b.Notes,
	}
}

// Apply returns a copy of b with every mutable field replaced by d.
// ID and AddedAt are preserved.
func (b Book) Apply(d BookData) Book {
	return Book{
		ID:              b.ID,
		AddedAt:         b.AddedAt,
		Title:           d.Title,
		Author:          d.Author,
		Genre:           d.Genre,
		FictionType:     d.FictionType,
		Difficulty:      d.Difficulty,
		Status:          d.Status,
		Formats:         append([]Format(nil), d.Formats...),
		ISBN:            d.ISBN,
		PublicationDate: d.PublicationDate,
		AcquiredDate:    d.AcquiredDate,
		CoverURL:        d.CoverURL,
		Notes:           d.Notes,
	}
}

// HasFormat reports whether b is owned in format f.
func (b Book) HasFormat(f Format) bool {
	for _, have := range b.Formats {
		if have == f {
			return true
		}
	}
	return false
}

// Normalize trims every string field, lowercases and de-duplicates formats
// (keeping first-seen order) and strips hyphens and spaces from the ISBN.
func (d BookData) Normalize() BookData {
	d.Title = strings.TrimSpace(d.Title)
	d.Author = strings.TrimSpace(d.Author)
	d.Genre = strings.TrimSpace(d.Genre)
	d.FictionType = strings.TrimSpace(d.FictionType)
	d.Difficulty = strings.TrimSpace(d.Difficulty)
	d.Status = strings.TrimSpace(d.Status)
	d.ISBN = NormalizeISBN(d.ISBN)
	d.PublicationDate = strings.TrimSpace(d.PublicationDate)
	d.AcquiredDate = strings.TrimSpace(d.AcquiredDate)
	d.CoverURL = strings.TrimSpace(d.CoverURL)
	d.Notes = strings.TrimSpace(d.Notes)
	d.Formats = UniqueFormats(d.Formats)
	return d
}

// WithFormat returns a copy of d that also includes format f.
func (d BookData) WithFormat(f Format) BookData {
	d.Formats = UniqueFormats(append(append([]Format(nil), d.Formats...), f))
	return d
}

// UniqueFormats lowercases and trims formats and drops repeats and blanks.
func UniqueFormats(in []Format) []Format {
	out := make([]Format, 0, len(in))
	seen := make(map[Format]bool, len(in))
	for _, f := range in {
		f = Format(strings.ToLower(strings.TrimSpace(string(f))))
		if f == "" || seen[f] {
			continue
		}
		seen[f] = true
		out = append(out, f)
	}
	return out
}

// JoinFormats renders formats as a single display string in stored order.
func JoinFormats(formats []Format) string {
	parts := make([]string, len(formats))
	for i, f := range formats {
		parts[i] = string(f)
	}
	return strings.Join(parts, ", ")
}

// NormalizeISBN strips hyphens and spaces.
func NormalizeISBN(s string) string {
	return strings.Map(func(r rune) rune {
		if r == '-' || r == ' ' {
			return -1
		}
		return r
	}, strings.TrimSpace(s))
}

// Fold returns the case-folded, trimmed form of s used for case-insensitive
// comparisons.
func Fold(s string) string {
	return cases.Fold().String(strings.TrimSpace(s))
}

// DuplicateKey is the natural key used to detect duplicates: the folded title
// and author.
func DuplicateKey(title, author string) string {
	return Fold(title) + "\x00" + Fold(author)
}

// Backend is the storage contract the persistence layer writes through.
// Implementations must not keep state that can diverge from what Load returns.
type Backend interface {
	// Load returns every stored book.
	Load(ctx context.Context) ([]Book, error)

	// Insert stores a new book.
	Insert(ctx context.Context, b Book) error

	// Replace overwrites the stored book with the same ID.
	Replace(ctx context.Context, b Book) error

	// Remove deletes the stored book with the given ID.
	Remove(ctx context.Context, id string) error
}
