package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/banux/nxt-shelf/internal/intake"
	"github.com/banux/nxt-shelf/internal/isbn"
)

func newLookupCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "lookup <isbn>",
		Short: "Look an ISBN up without saving anything",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := ctx.lookuper().Lookup(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(isbn.Response{Success: res != nil, Book: res})
			}
			if res == nil {
				return fmt.Errorf("%w: %s", intake.ErrNoMatch, isbn.Normalize(args[0]))
			}

			draft, class := intake.Draft(res)
			fields := [][2]string{
				{"Title", draft.Title},
				{"Author", draft.Author},
				{"ISBN", draft.ISBN},
				{"Published", draft.PublicationDate},
				{"Cover", draft.CoverURL},
				{"Categories", strings.Join(res.Categories, "; ")},
			}
			if class != nil {
				fields = append(fields, [2]string{"Genre", class.Genre}, [2]string{"Type", class.FictionType})
			}
			fields = append(fields, [2]string{"Source", res.Source})
			for _, f := range fields {
				if f[1] != "" {
					fmt.Fprintf(out, "%-11s %s\n", f[0]+":", f[1])
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the raw lookup response")
	return cmd
}
