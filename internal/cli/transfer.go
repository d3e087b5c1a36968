package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/banux/nxt-shelf/internal/catalog"
)

func newImportCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file.json|->",
		Short: "Import books from a JSON array, skipping duplicates",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var r io.Reader = cmd.InOrStdin()
			if args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				r = f
			}
			var records []catalog.BookData
			if err := json.NewDecoder(r).Decode(&records); err != nil {
				return fmt.Errorf("parse %s: expected a JSON array of books: %w", args[0], err)
			}

			lib, err := ctx.openLibrary(cmd.Context())
			if err != nil {
				return err
			}
			res := lib.ImportMany(cmd.Context(), records)
			fmt.Fprintf(cmd.OutOrStdout(), "Imported %d of %d books (%d skipped)\n", res.Imported, res.Total, res.Skipped)
			return nil
		},
	}
}

func newExportCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "export [file.json]",
		Short: "Write the whole collection as a JSON array",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			lib, err := ctx.openLibrary(cmd.Context())
			if err != nil {
				return err
			}
			data, err := json.MarshalIndent(lib.Export(), "", "  ")
			if err != nil {
				return err
			}
			data = append(data, '\n')

			if len(args) == 0 || args[0] == "-" {
				_, err = cmd.OutOrStdout().Write(data)
				return err
			}
			if err := os.WriteFile(args[0], data, 0o644); err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "Exported %d books to %s\n", lib.Len(), args[0])
			return nil
		},
	}
}
