package cli

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/lu-zhengda/loreterm/internal/domain"
)

func newListsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "lists [prefix]",
		Short: "List archived mailing lists",
		Long:  "List the mailing lists of the archive whose name starts with prefix.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var prefix string
			if len(args) == 1 {
				prefix = args[0]
			}
			return withSession(func(s *session) error {
				lists, err := s.svc.Lists(cmd.Context(), prefix)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if jsonFlag {
					return fprintJSON(out, toJSONLists(lists))
				}
				if len(lists) == 0 {
					fmt.Fprintln(out, "No mailing lists found.")
					return nil
				}
				w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "NAME\tDESCRIPTION")
				for _, l := range lists {
					fmt.Fprintf(w, "%s\t%s\n", l.ID, truncate(l.Description, 60))
				}
				return w.Flush()
			})
		},
	}
}

func newFeedCmd() *cobra.Command {
	var pageFlag int
	var refreshFlag bool

	cmd := &cobra.Command{
		Use:   "feed <list>",
		Short: "List the patchsets posted to a mailing list",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if pageFlag < 0 {
				return fmt.Errorf("--page must not be negative")
			}
			return withSession(func(s *session) error {
				sums, err := s.svc.Feed(cmd.Context(), args[0], pageFlag, refreshFlag)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if jsonFlag {
					return fprintJSON(out, toJSONSummaries(sums, s.svc.IsBookmarked))
				}
				if len(sums) == 0 {
					fmt.Fprintln(out, "No patchsets found.")
					return nil
				}
				w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "MARK\tVER\tPATCHES\tAUTHOR\tTITLE\tUPDATED\tMESSAGE_ID")
				for _, ps := range sums {
					mark := " "
					if s.svc.IsBookmarked(ps.MessageID) {
						mark = "*"
					}
					fmt.Fprintf(w, "%s\tv%d\t%d\t%s\t%s\t%s\t%s\n",
						mark, ps.Version, ps.Total,
						truncate(displayName(ps.Author), 24),
						truncate(ps.Title, 60),
						ps.Updated.Format("Jan 2, 2006"),
						ps.MessageID,
					)
				}
				return w.Flush()
			})
		},
	}

	cmd.Flags().IntVar(&pageFlag, "page", 0, "feed page, 0 being the newest")
	cmd.Flags().BoolVar(&refreshFlag, "refresh", false, "fetch again instead of using the cache")
	return cmd
}

func newShowCmd() *cobra.Command {
	var bodyFlag, refreshFlag bool

	cmd := &cobra.Command{
		Use:   "show <message-id>",
		Short: "Show a patchset and its review tags",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(func(s *session) error {
				ps, err := s.svc.Patchset(cmd.Context(), args[0], refreshFlag)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if jsonFlag {
					return fprintJSON(out, toJSONPatchset(ps, bodyFlag))
				}

				ledger := domain.NewTagLedger(ps)
				fmt.Fprintf(out, "Title: %s\n", ps.Title)
				fmt.Fprintf(out, "Version: v%d, %d patches\n", ps.Version, ps.Total)
				fmt.Fprintf(out, "Author: %s\n", ps.Author)
				fmt.Fprintf(out, "List: %s\n", ps.List)
				fmt.Fprintf(out, "Message-ID: %s\n", ps.MessageID)
				fmt.Fprintf(out, "Replies: %d\n", len(ps.Replies))
				for _, kind := range domain.TagKinds {
					if ids := ledger.Identities(kind); len(ids) > 0 {
						fmt.Fprintf(out, "%s: %s\n", kind, strings.Join(ids, ", "))
					}
				}
				fmt.Fprintln(out, strings.Repeat("─", 60))

				for i, m := range ps.Messages {
					if bodyFlag && i > 0 {
						fmt.Fprintln(out)
						fmt.Fprintln(out, strings.Repeat("─", 60))
					}
					fmt.Fprintf(out, "[%d/%d] %s\n", m.Number, ps.Total, m.Subject)
					for _, t := range ledger.Tags(m.MessageID) {
						fmt.Fprintf(out, "    %s\n", t)
					}
					if bodyFlag {
						fmt.Fprintf(out, "From: %s\nDate: %s\n\n%s", m.From, m.Date.Format("Mon, Jan 2, 2006 at 3:04 PM"), m.Body)
					}
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&bodyFlag, "body", false, "print message bodies")
	cmd.Flags().BoolVar(&refreshFlag, "refresh", false, "fetch again instead of using the cache")
	return cmd
}
