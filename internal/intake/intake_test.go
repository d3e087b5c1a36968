package intake

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/banux/nxt-shelf/internal/backend/kv"
	"github.com/banux/nxt-shelf/internal/catalog"
	"github.com/banux/nxt-shelf/internal/isbn"
	"github.com/banux/nxt-shelf/internal/library"
	"github.com/banux/nxt-shelf/internal/logger"
)

type stubLookup struct {
	res *isbn.Result
	err error
}

func (s stubLookup) Lookup(context.Context, string) (*isbn.Result, error) { return s.res, s.err }

var hobbit = &isbn.Result{
	Title:      "The Hobbit",
	Author:     "J.R.R. Tolkien",
	ISBN:       "9780261102217",
	Categories: []string{"Fantasy fiction"},
	Source:     "test",
}

func newLibrary(t *testing.T) *library.Library {
	t.Helper()
	lib := library.New(kv.New(kv.NewMemory(), ""), logger.Nop())
	lib.LoadAll(context.Background())
	return lib
}

func seed(t *testing.T, lib *library.Library, title, author string, formats ...catalog.Format) catalog.Book {
	t.Helper()
	bk, err := lib.Add(context.Background(), catalog.BookData{
		Title: title, Author: author, Genre: "Fantasy", FictionType: catalog.Fiction,
		Difficulty: "Moderate", Status: "read", Formats: formats,
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	return bk
}

// recordingPrompter answers with choice and remembers the prompt it saw.
type recordingPrompter struct {
	choice Choice
	seen   []Prompt
}

func (r *recordingPrompter) Choose(_ context.Context, p Prompt) (Choice, error) {
	r.seen = append(r.seen, p)
	return r.choice, nil
}

func TestFindDuplicate(t *testing.T) {
	books := []catalog.Book{
		{ID: "1", Title: "Dune", Author: "Frank Herbert"},
		{ID: "2", Title: "the hobbit", Author: "j.r.r. tolkien"},
	}
	got, ok := FindDuplicate(books, "The Hobbit", "J.R.R. Tolkien ")
	if !ok || got.ID != "2" {
		t.Errorf("got %+v, %v", got, ok)
	}
	if _, ok := FindDuplicate(books, "The Hobbit, or There and Back Again", "J.R.R. Tolkien"); ok {
		t.Error("matching must be exact, not fuzzy")
	}
}

func TestPromptForAndDecide(t *testing.T) {
	physical := catalog.Book{Formats: []catalog.Format{catalog.FormatKindle, catalog.FormatPhysical}}
	kindle := catalog.Book{Formats: []catalog.Format{catalog.FormatKindle}}
	if PromptFor(physical) != PromptSecondCopy {
		t.Error("physical owner should be offered a second copy")
	}
	if PromptFor(kindle) != PromptMergeOrCopy {
		t.Error("non-physical owner should be offered a merge")
	}

	tests := []struct {
		kind   PromptKind
		choice Choice
		want   Action
	}{
		{PromptNone, "", ActionAdd},
		{PromptSecondCopy, ChoiceAddCopy, ActionAddCopy},
		{PromptSecondCopy, ChoiceCancel, ActionCancel},
		{PromptSecondCopy, ChoiceMerge, ActionCancel},
		{PromptMergeOrCopy, ChoiceMerge, ActionMerge},
		{PromptMergeOrCopy, ChoiceAddCopy, ActionAddCopy},
		{PromptMergeOrCopy, ChoiceCancel, ActionCancel},
		{PromptMergeOrCopy, "shrug", ActionCancel},
	}
	for _, tt := range tests {
		if got := Decide(tt.kind, tt.choice); got != tt.want {
			t.Errorf("Decide(%q, %q) = %q, want %q", tt.kind, tt.choice, got, tt.want)
		}
	}
}

func TestParseChoice(t *testing.T) {
	if c, err := ParseChoice(" Merge "); err != nil || c != ChoiceMerge {
		t.Errorf("got %q, %v", c, err)
	}
	if _, err := ParseChoice("maybe"); err == nil {
		t.Error("expected error")
	}
}

func TestStageCopy(t *testing.T) {
	d := StageCopy(catalog.BookData{Formats: []catalog.Format{catalog.FormatKindle}, Notes: "signed"}, 2)
	if !strings.HasSuffix(d.Notes, "Copy #2") || !strings.HasPrefix(d.Notes, "signed") {
		t.Errorf("notes: %q", d.Notes)
	}
	if catalog.JoinFormats(d.Formats) != "kindle, physical" {
		t.Errorf("formats: %v", d.Formats)
	}
}

func TestDraft(t *testing.T) {
	d, c := Draft(hobbit)
	if c == nil || c.Genre != "Fantasy" || d.Genre != "Fantasy" || d.FictionType != catalog.Fiction {
		t.Errorf("classification not applied: %+v %+v", d, c)
	}
	if d.Status != "unread" || catalog.JoinFormats(d.Formats) != "physical" {
		t.Errorf("defaults: %+v", d)
	}

	d, c = Draft(&isbn.Result{Title: "Salt Fat Acid Heat", Author: "Samin Nosrat", Categories: []string{"Cooking"}})
	if c != nil || d.Genre != "" {
		t.Errorf("unclassified draft: %+v %+v", d, c)
	}
}

// A physical copy is already owned: accepting stages a copy and leaves the
// existing record alone.
func TestWorkflow_SecondPhysicalCopy(t *testing.T) {
	ctx := context.Background()
	lib := newLibrary(t)
	existing := seed(t, lib, "The Hobbit", "J.R.R. Tolkien", catalog.FormatPhysical)
	w := NewWorkflow(lib, stubLookup{res: hobbit}, nil)

	prop, err := w.Propose(ctx, "978-0-261-10221-7")
	if err != nil {
		t.Fatalf("Propose: %v", err)
	}
	if prop.Prompt == nil || prop.Prompt.Kind != PromptSecondCopy {
		t.Fatalf("expected second-copy prompt, got %+v", prop.Prompt)
	}

	p := &recordingPrompter{choice: ChoiceAddCopy}
	out, err := w.Resolve(ctx, prop.Draft, p)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(p.seen) != 1 || p.seen[0].Kind != PromptSecondCopy {
		t.Errorf("prompts: %+v", p.seen)
	}
	if out.Action != ActionAddCopy || !out.Continue {
		t.Errorf("outcome: %+v", out)
	}
	if out.Draft.Notes != "Copy #2" || !containsFormat(out.Draft.Formats, catalog.FormatPhysical) {
		t.Errorf("staged draft: %+v", out.Draft)
	}

	// Nothing persisted until the form is submitted.
	if lib.Len() != 1 {
		t.Fatalf("Resolve wrote to the library: %d books", lib.Len())
	}
	stored, _ := lib.Get(existing.ID)
	if stored.Notes != "" || catalog.JoinFormats(stored.Formats) != "physical" {
		t.Errorf("existing record changed: %+v", stored)
	}

	added, err := w.Commit(ctx, out)
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if added.ID == existing.ID || lib.Len() != 2 {
		t.Errorf("expected a second record, got %+v (len %d)", added, lib.Len())
	}
}

func TestWorkflow_SecondCopyCancelled(t *testing.T) {
	ctx := context.Background()
	lib := newLibrary(t)
	seed(t, lib, "The Hobbit", "J.R.R. Tolkien", catalog.FormatPhysical)
	w := NewWorkflow(lib, nil, nil)

	d, _ := Draft(hobbit)
	out, err := w.Resolve(ctx, d, Always(ChoiceCancel))
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if out.Action != ActionCancel || out.Continue {
		t.Errorf("outcome: %+v", out)
	}
	if _, err := w.Commit(ctx, out); !errors.Is(err, ErrCancelled) {
		t.Errorf("Commit: got %v", err)
	}
	if lib.Len() != 1 {
		t.Errorf("cancel changed the library")
	}
}

// Only a Kindle edition is owned: merging adds physical to it in place.
func TestWorkflow_MergePhysical(t *testing.T) {
	ctx := context.Background()
	lib := newLibrary(t)
	existing := seed(t, lib, "the hobbit", "j.r.r. tolkien", catalog.FormatKindle)
	w := NewWorkflow(lib, stubLookup{res: hobbit}, nil)

	prop, err := w.Propose(ctx, "9780261102217")
	if err != nil {
		t.Fatalf("Propose: %v", err)
	}
	if prop.Prompt == nil || prop.Prompt.Kind != PromptMergeOrCopy {
		t.Fatalf("expected merge prompt, got %+v", prop.Prompt)
	}

	out, err := w.Resolve(ctx, prop.Draft, Always(ChoiceMerge))
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if out.Action != ActionMerge || out.Continue {
		t.Errorf("merge must complete resolution: %+v", out)
	}

	merged, err := w.Commit(ctx, out)
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if merged.ID != existing.ID {
		t.Errorf("merge created a new record")
	}
	if !merged.HasFormat(catalog.FormatKindle) || !merged.HasFormat(catalog.FormatPhysical) {
		t.Errorf("formats after merge: %v", merged.Formats)
	}
	if lib.Len() != 1 {
		t.Errorf("expected one record, got %d", lib.Len())
	}
	if !merged.AddedAt.Equal(existing.AddedAt) || merged.Title != "the hobbit" {
		t.Errorf("merge replaced other fields: %+v", merged)
	}
}

func TestWorkflow_MergeKeepsEditsMadeAfterResolve(t *testing.T) {
	ctx := context.Background()
	lib := newLibrary(t)
	existing := seed(t, lib, "the hobbit", "j.r.r. tolkien", catalog.FormatKindle)
	w := NewWorkflow(lib, stubLookup{res: hobbit}, nil)

	prop, err := w.Propose(ctx, "9780261102217")
	if err != nil {
		t.Fatalf("Propose: %v", err)
	}
	out, err := w.Resolve(ctx, prop.Draft, Always(ChoiceMerge))
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	edit := existing.Data()
	edit.Status = "abandoned"
	edit.Notes = "finished on the train"
	if _, err := lib.Update(ctx, existing.ID, edit); err != nil {
		t.Fatalf("Update: %v", err)
	}

	merged, err := w.Commit(ctx, out)
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if merged.Status != "abandoned" || merged.Notes != "finished on the train" {
		t.Errorf("merge overwrote a later edit: %+v", merged)
	}
	if !merged.HasFormat(catalog.FormatPhysical) || !merged.HasFormat(catalog.FormatKindle) {
		t.Errorf("formats after merge: %v", merged.Formats)
	}
}

func TestWorkflow_MergeOrCopyChoosesCopy(t *testing.T) {
	ctx := context.Background()
	lib := newLibrary(t)
	seed(t, lib, "The Hobbit", "J.R.R. Tolkien", catalog.FormatAudible)
	w := NewWorkflow(lib, nil, nil)

	d, _ := Draft(hobbit)
	out, err := w.Resolve(ctx, d, Always(ChoiceAddCopy))
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if out.Action != ActionAddCopy || !out.Continue || out.Draft.Notes != "Copy #2" {
		t.Errorf("outcome: %+v", out)
	}
}

func TestWorkflow_NoDuplicate(t *testing.T) {
	ctx := context.Background()
	lib := newLibrary(t)
	w := NewWorkflow(lib, stubLookup{res: hobbit}, nil)

	prop, err := w.Propose(ctx, "9780261102217")
	if err != nil {
		t.Fatalf("Propose: %v", err)
	}
	if prop.Prompt != nil {
		t.Errorf("unexpected prompt: %+v", prop.Prompt)
	}

	p := &recordingPrompter{choice: ChoiceCancel}
	out, err := w.Resolve(ctx, prop.Draft, p)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if out.Action != ActionAdd || !out.Continue || len(p.seen) != 0 {
		t.Errorf("outcome %+v, prompts %d", out, len(p.seen))
	}

	d := out.Draft
	d.Difficulty = "Easy"
	out.Draft = d
	if _, err := w.Commit(ctx, out); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if lib.Len() != 1 {
		t.Errorf("expected one record")
	}
}

func TestWorkflow_ProposeErrors(t *testing.T) {
	ctx := context.Background()
	lib := newLibrary(t)

	w := NewWorkflow(lib, stubLookup{}, nil)
	if _, err := w.Propose(ctx, "9780261102217"); !errors.Is(err, ErrNoMatch) {
		t.Errorf("not found: got %v", err)
	}

	lookupErr := &isbn.LookupError{ISBN: "9780261102217", Err: errors.New("timeout")}
	w = NewWorkflow(lib, stubLookup{err: lookupErr}, nil)
	if _, err := w.Propose(ctx, "9780261102217"); !errors.Is(err, isbn.ErrLookup) {
		t.Errorf("lookup failure: got %v", err)
	}
}

func TestWorkflow_ResolveNeedsPrompter(t *testing.T) {
	lib := newLibrary(t)
	seed(t, lib, "The Hobbit", "J.R.R. Tolkien", catalog.FormatPhysical)
	d, _ := Draft(hobbit)
	if _, err := NewWorkflow(lib, nil, nil).Resolve(context.Background(), d, nil); err == nil {
		t.Error("expected error without a prompter")
	}
}

func containsFormat(formats []catalog.Format, f catalog.Format) bool {
	for _, have := range formats {
		if have == f {
			return true
		}
	}
	return false
}
