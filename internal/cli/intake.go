package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/banux/nxt-shelf/internal/catalog"
	"github.com/banux/nxt-shelf/internal/intake"
	"github.com/banux/nxt-shelf/internal/library"
)

func newIntakeCommand(ctx *commandContext) *cobra.Command {
	var (
		choice    string
		yes       bool
		overrides catalog.BookData
	)
	cmd := &cobra.Command{
		Use:   "intake <isbn>",
		Short: "Look an ISBN up and add it, asking what to do with duplicates",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			lib, err := ctx.openLibrary(cmd.Context())
			if err != nil {
				return err
			}
			wf := intake.NewWorkflow(lib, ctx.lookuper(), ctx.logger())
			out := cmd.OutOrStdout()
			term := &terminalPrompter{in: bufio.NewReader(cmd.InOrStdin()), out: out}

			p, err := wf.Propose(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			draft := applyOverrides(p.Draft, overrides)
			fmt.Fprintf(out, "Found %q by %s\n", draft.Title, draft.Author)

			var prompter intake.Prompter = term
			if choice != "" {
				c, err := intake.ParseChoice(choice)
				if err != nil {
					return err
				}
				prompter = intake.Always(c)
			}
			outcome, err := wf.Resolve(cmd.Context(), draft, prompter)
			if err != nil {
				return err
			}
			if outcome.Action == intake.ActionCancel {
				fmt.Fprintln(out, "Nothing changed.")
				return nil
			}

			if outcome.Continue {
				outcome.Draft = library.WithDefaults(outcome.Draft)
				if !yes && !term.confirm(fmt.Sprintf("Save %q as %s, %s [%s]?",
					outcome.Draft.Title, outcome.Draft.Genre, outcome.Draft.Status,
					catalog.JoinFormats(outcome.Draft.Formats))) {
					fmt.Fprintln(out, "Nothing changed.")
					return nil
				}
			}
			bk, err := wf.Commit(cmd.Context(), outcome)
			if err != nil {
				return err
			}
			switch outcome.Action {
			case intake.ActionMerge:
				fmt.Fprintf(out, "Added physical to %s (%s)\n", bk.Title, bk.ID)
			default:
				fmt.Fprintf(out, "Saved %s (%s)\n", bk.Title, bk.ID)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&choice, "choice", "", "Answer for a duplicate: add_copy, merge or cancel")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Save without confirmation")
	cmd.Flags().StringVar(&overrides.Genre, "genre", "", "Genre to use instead of the classified one")
	cmd.Flags().StringVar(&overrides.FictionType, "fiction-type", "", "Fiction type to use instead of the classified one")
	cmd.Flags().StringVar(&overrides.Status, "status", "", "Reading status")
	cmd.Flags().StringVar(&overrides.Difficulty, "difficulty", "", "Reading difficulty")
	cmd.Flags().StringVar(&overrides.AcquiredDate, "acquired", "", "Acquisition date")
	cmd.Flags().StringVar(&overrides.Notes, "notes", "", "Notes")
	return cmd
}

// applyOverrides replaces draft fields with the non-empty fields of o.
func applyOverrides(draft, o catalog.BookData) catalog.BookData {
	set := func(dst *string, v string) {
		if strings.TrimSpace(v) != "" {
			*dst = v
		}
	}
	set(&draft.Genre, o.Genre)
	set(&draft.FictionType, o.FictionType)
	set(&draft.Status, o.Status)
	set(&draft.Difficulty, o.Difficulty)
	set(&draft.AcquiredDate, o.AcquiredDate)
	set(&draft.Notes, o.Notes)
	return draft.Normalize()
}

// terminalPrompter asks duplicate questions on a line-oriented terminal.
type terminalPrompter struct {
	in  *bufio.Reader
	out io.Writer
}

func (t *terminalPrompter) Choose(ctx context.Context, p intake.Prompt) (intake.Choice, error) {
	formats := catalog.JoinFormats(p.Existing.Formats)
	switch p.Kind {
	case intake.PromptSecondCopy:
		fmt.Fprintf(t.out, "You already own %q in %s. Add copy #%d?\n", p.Existing.Title, formats, p.CopyNumber)
	default:
		fmt.Fprintf(t.out, "You already have %q as %s. Merge physical into it, or add a separate copy?\n", p.Existing.Title, formats)
	}

	names := make([]string, len(p.Choices))
	for i, c := range p.Choices {
		names[i] = string(c)
	}
	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		fmt.Fprintf(t.out, "[%s]: ", strings.Join(names, "/"))
		line, err := t.in.ReadString('\n')
		if answer := strings.TrimSpace(line); answer != "" {
			if c, perr := intake.ParseChoice(answer); perr == nil {
				return c, nil
			}
			fmt.Fprintf(t.out, "Please answer one of %s.\n", strings.Join(names, ", "))
		}
		if errors.Is(err, io.EOF) {
			return intake.ChoiceCancel, nil
		}
		if err != nil {
			return "", err
		}
	}
}

// confirm asks a yes/no question, defaulting to yes.
func (t *terminalPrompter) confirm(question string) bool {
	fmt.Fprintf(t.out, "%s [Y/n]: ", question)
	line, _ := t.in.ReadString('\n')
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "", "y", "yes":
		return true
	}
	return false
}
