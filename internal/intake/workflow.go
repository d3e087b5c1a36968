package intake

import (
	"context"
	"errors"
	"fmt"

	"github.com/banux/nxt-shelf/internal/catalog"
	"github.com/banux/nxt-shelf/internal/isbn"
	"github.com/banux/nxt-shelf/internal/library"
	"github.com/banux/nxt-shelf/internal/logger"
)

var (
	// ErrNoMatch is returned by Propose when the lookup found nothing.
	ErrNoMatch = errors.New("no book found for isbn")

	// ErrCancelled is returned by Commit for a cancelled outcome.
	ErrCancelled = errors.New("intake cancelled")
)

// Prompt is the question handed to a Prompter.
type Prompt struct {
	Kind       PromptKind       `json:"kind"`
	Existing   catalog.Book     `json:"existing"`
	Incoming   catalog.BookData `json:"incoming"`
	CopyNumber int              `json:"copyNumber"`
	Choices    []Choice         `json:"choices"`
}

// Prompter asks the user to resolve a duplicate.
type Prompter interface {
	Choose(ctx context.Context, p Prompt) (Choice, error)
}

// PromptFunc adapts a function to Prompter.
type PromptFunc func(ctx context.Context, p Prompt) (Choice, error)

func (f PromptFunc) Choose(ctx context.Context, p Prompt) (Choice, error) { return f(ctx, p) }

// Always answers every prompt with c.
func Always(c Choice) Prompter {
	return PromptFunc(func(context.Context, Prompt) (Choice, error) { return c, nil })
}

// Proposal is a looked-up book ready for review.
type Proposal struct {
	ISBN           string               `json:"isbn"`
	Draft          catalog.BookData     `json:"draft"`
	Source         string               `json:"source"`
	Classification *isbn.Classification `json:"classification,omitempty"`
	Prompt         *Prompt              `json:"prompt,omitempty"`
}

// Outcome is the resolved plan for an incoming book.
type Outcome struct {
	Action Action `json:"action"`

	// Continue is true when the caller should run its normal fill-and-save
	// flow with Draft (ActionAdd, ActionAddCopy). It is false when resolution
	// is complete: a merge only needs Commit, a cancel needs nothing.
	Continue bool `json:"continue"`

	Draft    catalog.BookData `json:"draft"`
	Existing *catalog.Book    `json:"existing,omitempty"`
}

// Workflow resolves incoming books against a library.
//
// Resolve never writes. Every change is made by Commit, through the library's
// Add (new records, including copies) or Update (merges).
type Workflow struct {
	lib    *library.Library
	lookup isbn.Lookuper
	log    logger.Logger
}

// NewWorkflow returns a Workflow. lookup may be nil if Propose is unused.
func NewWorkflow(lib *library.Library, lookup isbn.Lookuper, log logger.Logger) *Workflow {
	if log == nil {
		log = logger.Nop()
	}
	return &Workflow{lib: lib, lookup: lookup, log: log}
}

// Draft converts a lookup result into pre-filled book data: the looked-up
// fields, the classified genre and fiction type, the import defaults for
// status and difficulty, and the physical format.
func Draft(r *isbn.Result) (catalog.BookData, *isbn.Classification) {
	d := catalog.BookData{
		Title:           r.Title,
		Author:          r.Author,
		ISBN:            r.ISBN,
		PublicationDate: r.PublicationDate,
		CoverURL:        r.CoverURL,
		Status:          library.DefaultStatus,
		Difficulty:      library.DefaultDifficulty,
		Formats:         []catalog.Format{catalog.FormatPhysical},
	}
	c, ok := isbn.Classify(r.Categories)
	if !ok {
		return d.Normalize(), nil
	}
	d.Genre = c.Genre
	d.FictionType = c.FictionType
	return d.Normalize(), &c
}

// Propose looks rawISBN up and reports the draft and any duplicate prompt.
func (w *Workflow) Propose(ctx context.Context, rawISBN string) (*Proposal, error) {
	if w.lookup == nil {
		return nil, fmt.Errorf("no isbn lookup configured")
	}
	res, err := w.lookup.Lookup(ctx, rawISBN)
	if err != nil {
		return nil, err
	}
	if res == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoMatch, isbn.Normalize(rawISBN))
	}

	draft, class := Draft(res)
	p := &Proposal{
		ISBN:           res.ISBN,
		Draft:          draft,
		Source:         res.Source,
		Classification: class,
	}
	if prompt, ok := w.prompt(draft); ok {
		p.Prompt = &prompt
	}
	return p, nil
}

// prompt builds the duplicate question for incoming, if there is a duplicate.
func (w *Workflow) prompt(incoming catalog.BookData) (Prompt, bool) {
	existing, ok := w.lib.FindDuplicate(incoming.Title, incoming.Author)
	if !ok {
		return Prompt{}, false
	}
	kind := PromptFor(existing)
	return Prompt{
		Kind:       kind,
		Existing:   existing,
		Incoming:   incoming,
		CopyNumber: w.lib.CountMatching(incoming.Title, incoming.Author) + 1,
		Choices:    kind.Choices(),
	}, true
}

// Resolve decides what to do with incoming, asking prompter when the library
// already has the same title and author. It does not modify the library.
func (w *Workflow) Resolve(ctx context.Context, incoming catalog.BookData, prompter Prompter) (Outcome, error) {
	p, dup := w.prompt(incoming)
	if !dup {
		return Outcome{Action: ActionAdd, Continue: true, Draft: incoming}, nil
	}
	if prompter == nil {
		return Outcome{}, fmt.Errorf("duplicate of %q needs a decision", p.Existing.ID)
	}

	choice, err := prompter.Choose(ctx, p)
	if err != nil {
		return Outcome{}, fmt.Errorf("prompt: %w", err)
	}
	action := Decide(p.Kind, choice)
	w.log.Debug("duplicate resolved",
		logger.String("existing", p.Existing.ID),
		logger.String("prompt", string(p.Kind)),
		logger.String("choice", string(choice)),
		logger.String("action", string(action)))

	existing := p.Existing
	out := Outcome{Action: action, Existing: &existing}
	switch action {
	case ActionAddCopy:
		out.Continue = true
		out.Draft = StageCopy(incoming, p.CopyNumber)
	case ActionMerge:
		out.Draft = MergePhysical(existing)
	}
	return out, nil
}

// Commit applies o. Merges update the existing record in place; adds and
// copies create a new record from o.Draft. A cancelled outcome returns
// ErrCancelled and changes nothing.
func (w *Workflow) Commit(ctx context.Context, o Outcome) (catalog.Book, error) {
	switch o.Action {
	case ActionAdd, ActionAddCopy:
		bk, err := w.lib.Add(ctx, o.Draft)
		if err != nil {
			return catalog.Book{}, err
		}
		w.log.Info("book added", logger.String("id", bk.ID), logger.String("action", string(o.Action)))
		return bk, nil
	case ActionMerge:
		if o.Existing == nil {
			return catalog.Book{}, fmt.Errorf("merge without an existing record")
		}
		bk, err := w.lib.Modify(ctx, o.Existing.ID, MergePhysical)
		if err != nil {
			return catalog.Book{}, err
		}
		w.log.Info("physical format merged", logger.String("id", bk.ID))
		return bk, nil
	}
	return catalog.Book{}, ErrCancelled
}
