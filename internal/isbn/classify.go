package isbn

import (
	"strings"

	"github.com/banux/nxt-shelf/internal/catalog"
)

// Classification is a genre and fiction type derived from subject categories.
type Classification struct {
	Genre       string `json:"genre"`
	FictionType string `json:"fictionType"`
}

type rule struct {
	keywords []string
	exclude  string // rule is skipped when the text contains this
	class    Classification
}

// rules are evaluated in order; the first match wins. Categories often match
// several rules ("Fiction / Science Fiction / Romance"), so order matters.
var rules = []rule{
	{keywords: []string{"literary", "literature"}, class: Classification{"Literary Fiction", catalog.Fiction}},
	{keywords: []string{"mystery", "thriller", "detective"}, class: Classification{"Mystery/Thriller", catalog.Fiction}},
	{keywords: []string{"science fiction", "sci-fi"}, class: Classification{"Science Fiction", catalog.Fiction}},
	{keywords: []string{"fantasy"}, class: Classification{"Fantasy", catalog.Fiction}},
	{keywords: []string{"romance"}, class: Classification{"Romance", catalog.Fiction}},
	{keywords: []string{"historical fiction"}, class: Classification{"Historical Fiction", catalog.Fiction}},
	{keywords: []string{"horror"}, class: Classification{"Horror", catalog.Fiction}},
	{keywords: []string{"biography", "memoir"}, class: Classification{"Biography/Memoir", catalog.Nonfiction}},
	{keywords: []string{"history"}, class: Classification{"History", catalog.Nonfiction}},
	{keywords: []string{"science"}, exclude: "fiction", class: Classification{"Science", catalog.Nonfiction}},
	{keywords: []string{"philosophy"}, class: Classification{"Philosophy", catalog.Nonfiction}},
	{keywords: []string{"business", "economics"}, class: Classification{"Business", catalog.Nonfiction}},
	{keywords: []string{"self-help"}, class: Classification{"Self-Help", catalog.Nonfiction}},
	{keywords: []string{"true crime"}, class: Classification{"True Crime", catalog.Nonfiction}},
	{keywords: []string{"essay"}, class: Classification{"Essay Collection", catalog.Nonfiction}},
	{keywords: []string{"politics", "political"}, class: Classification{"Politics/Current Events", catalog.Nonfiction}},
	{keywords: []string{"poetry"}, class: Classification{"Poetry", catalog.Nonfiction}},
	{keywords: []string{"graphic novel", "comics"}, class: Classification{"Graphic Novel", catalog.Fiction}},
	{keywords: []string{"young adult"}, class: Classification{"Young Adult", catalog.Fiction}},
	{keywords: []string{"fiction"}, class: Classification{"Literary Fiction", catalog.Fiction}},
}

// Classify maps subject categories to a genre and fiction type.
// ok is false when no rule matches.
func Classify(categories []string) (c Classification, ok bool) {
	text := strings.ToLower(strings.Join(categories, " "))
	if strings.TrimSpace(text) == "" {
		return Classification{}, false
	}
	for _, r := range rules {
		if r.exclude != "" && strings.Contains(text, r.exclude) {
			continue
		}
		for _, kw := range r.keywords {
			if strings.Contains(text, kw) {
				return r.class, true
			}
		}
	}
	return Classification{}, false
}
