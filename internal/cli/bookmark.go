package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newBookmarkCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bookmark",
		Short: "Manage bookmarked patchsets",
	}
	cmd.AddCommand(newBookmarkAddCmd())
	cmd.AddCommand(newBookmarkRemoveCmd())
	cmd.AddCommand(newBookmarkListCmd())
	return cmd
}

func newBookmarkAddCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "add <message-id>",
		Short: "Bookmark a patchset",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(func(s *session) error {
				ps, err := s.svc.Patchset(cmd.Context(), args[0], false)
				if err != nil {
					return err
				}
				if err := s.svc.Bookmark(ps.Summary()); err != nil {
					return err
				}
				if jsonFlag {
					return fprintJSON(cmd.OutOrStdout(), jsonAction{OK: true, Action: "bookmark", MessageID: ps.MessageID})
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Bookmarked %s.\n", ps.Title)
				return nil
			})
		},
	}
}

func newBookmarkRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "rm <message-id>",
		Aliases: []string{"remove"},
		Short:   "Remove a bookmark",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(func(s *session) error {
				if err := s.svc.Unbookmark(args[0]); err != nil {
					return err
				}
				if jsonFlag {
					return fprintJSON(cmd.OutOrStdout(), jsonAction{OK: true, Action: "unbookmark", MessageID: args[0]})
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Bookmark removed.")
				return nil
			})
		},
	}
}

func newBookmarkListCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "ls",
		Aliases: []string{"list"},
		Short:   "List bookmarks",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(func(s *session) error {
				bookmarks := s.svc.Bookmarks()
				out := cmd.OutOrStdout()
				if jsonFlag {
					return fprintJSON(out, toJSONBookmarks(bookmarks))
				}
				if len(bookmarks) == 0 {
					fmt.Fprintln(out, "No bookmarks.")
					return nil
				}
				w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "LIST\tTITLE\tADDED\tMESSAGE_ID")
				for _, b := range bookmarks {
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", b.List, truncate(b.Title, 60), b.AddedAt.Format("Jan 2, 2006"), b.MessageID)
				}
				return w.Flush()
			})
		},
	}
}
