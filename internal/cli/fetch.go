package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/brandon/mailcache/internal/cache"
	"github.com/brandon/mailcache/internal/remote"
	"github.com/brandon/mailcache/pkg/types"
)

func newFetchCommand(a *app) *cobra.Command {
	var (
		startDate  string
		endDate    string
		days       int
		limit      int
		folder     string
		from       []string
		subject    string
		notSubject string
		unreadOnly bool
		withText   bool
		metrics    bool
		asJSON     bool
	)

	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Fetch emails through the cache",
		RunE: func(cmd *cobra.Command, args []string) error {
			req := &cache.FetchRequest{
				Days:  days,
				Limit: limit,
				Filters: remote.Filters{
					From:               from,
					SubjectContains:    subject,
					SubjectNotContains: notSubject,
					Folder:             remote.Folder(folder),
				},
				IncludeText:    withText || metrics,
				IncludeMetrics: metrics,
			}
			if unreadOnly {
				req.Filters.IsUnread = remote.Bool(true)
			}

			var err error
			if startDate != "" {
				if req.StartDate, err = cache.ParseDate(startDate); err != nil {
					return err
				}
			}
			if endDate != "" {
				if req.EndDate, err = cache.ParseDate(endDate); err != nil {
					return err
				}
			}

			emails, err := a.service.GetEmails(cmd.Context(), req)
			if err != nil {
				return err
			}
			if asJSON {
				return printJSON(emails)
			}
			printEmailTable(emails)
			return nil
		},
	}

	cmd.Flags().StringVar(&startDate, "start", "", "range start (YYYY-MM-DD)")
	cmd.Flags().StringVar(&endDate, "end", "", "range end (YYYY-MM-DD)")
	cmd.Flags().IntVar(&days, "days", 0, "trailing number of days (exclusive with --start/--end)")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum number of results")
	cmd.Flags().StringVar(&folder, "folder", "", "folder filter (inbox, archive, spam, trash, drafts, sent)")
	cmd.Flags().StringSliceVar(&from, "from", nil, "sender filter, repeatable")
	cmd.Flags().StringVar(&subject, "subject", "", "subject contains expression (& and | supported)")
	cmd.Flags().StringVar(&notSubject, "not-subject", "", "subject excludes expression")
	cmd.Flags().BoolVar(&unreadOnly, "unread", false, "unread emails only")
	cmd.Flags().BoolVar(&withText, "text", false, "include full text content")
	cmd.Flags().BoolVar(&metrics, "metrics", false, "include content metrics (implies --text)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "output as JSON")
	return cmd
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printEmailTable(emails []*types.Email) {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "DATE\tFROM\tSUBJECT\tID")
	for _, e := range emails {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", e.Timestamp.Format("2006-01-02 15:04"), e.SenderEmail, e.Subject, e.ID)
	}
	w.Flush()
	fmt.Printf("%d emails\n", len(emails))
}
