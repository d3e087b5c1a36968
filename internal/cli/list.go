package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/banux/nxt-shelf/internal/catalog"
	"github.com/banux/nxt-shelf/internal/query"
)

var listHeaders = []string{"ID", "Title", "Author", "Genre", "Type", "Status", "Formats", "Added"}

func newListCommand(ctx *commandContext) *cobra.Command {
	var (
		criteria query.Criteria
		formats  []string
		sortKey  string
		desc     bool
		limit    int
		full     bool
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List books, optionally filtered and sorted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			req := query.DefaultRequest()
			req.Criteria = criteria
			for _, f := range formats {
				req.Formats = append(req.Formats, catalog.Format(f))
			}
			req.Formats = catalog.UniqueFormats(req.Formats)
			if sortKey != "" {
				key, err := query.ParseSortKey(sortKey)
				if err != nil {
					return fmt.Errorf("%w (want one of %s)", err, joinSortKeys())
				}
				req.Sort = key
				req.Ascending = !desc
			} else if cmd.Flags().Changed("desc") {
				req.Ascending = !desc
			}
			req.Limit = limit

			lib, err := ctx.openLibrary(cmd.Context())
			if err != nil {
				return err
			}
			page, total, err := req.Apply(lib.Books())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if isTerminal(out) {
				rows := bookRows(page, time.Now(), true, full)
				fmt.Fprintln(out, renderTable(listHeaders, rows, map[int]int{1: 40, 2: 28}))
				fmt.Fprintf(out, "%d of %d books\n", len(page), total)
				return nil
			}
			fmt.Fprint(out, renderTSV(listHeaders, bookRows(page, time.Now(), false, true)))
			return nil
		},
	}
	cmd.Flags().StringVar(&criteria.Genre, "genre", "", "Only books in this genre")
	cmd.Flags().StringVar(&criteria.Status, "status", "", "Only books with this status")
	cmd.Flags().StringVar(&criteria.FictionType, "fiction-type", "", "Fiction or Nonfiction")
	cmd.Flags().StringSliceVar(&formats, "format", nil, "Only books owned in all these formats (repeatable)")
	cmd.Flags().StringVarP(&criteria.Search, "search", "s", "", "Substring search over title, author, genre, notes")
	cmd.Flags().StringVar(&sortKey, "sort", "", "Sort key: "+joinSortKeys())
	cmd.Flags().BoolVar(&desc, "desc", false, "Sort descending")
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "Show at most this many books")
	cmd.Flags().BoolVar(&full, "full-id", false, "Show full book IDs")
	return cmd
}

func joinSortKeys() string {
	keys := make([]string, len(query.SortKeys))
	for i, k := range query.SortKeys {
		keys[i] = string(k)
	}
	return strings.Join(keys, ", ")
}

// bookRows formats books for display. Relative times and short IDs are for
// people; scripts get RFC 3339 and full IDs.
func bookRows(books []catalog.Book, now time.Time, human, fullID bool) [][]string {
	rows := make([][]string, 0, len(books))
	for _, bk := range books {
		id := bk.ID
		if !fullID && len(id) > 8 {
			id = id[:8]
		}
		added := bk.AddedAt.UTC().Format(time.RFC3339)
		if human {
			added = humanize.RelTime(bk.AddedAt, now, "ago", "from now")
		}
		rows = append(rows, []string{
			id,
			bk.Title,
			bk.Author,
			bk.Genre,
			bk.FictionType,
			bk.Status,
			catalog.JoinFormats(bk.Formats),
			added,
		})
	}
	return rows
}
