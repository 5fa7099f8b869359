package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lu-zhengda/loreterm/internal/cache"
)

func newCacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Maintain the local archive cache",
	}
	cmd.AddCommand(newCacheGCCmd())
	cmd.AddCommand(newCacheInvalidateCmd())
	return cmd
}

func newCacheGCCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "gc",
		Short: "Remove cache entries beyond cache.max_entries or older than cache.max_age",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(func(s *session) error {
				stats, err := s.svc.GC(cmd.Context())
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if jsonFlag {
					return fprintJSON(out, toJSONGCStats(stats))
				}
				fmt.Fprintf(out, "Removed %d entries (%d expired, %d evicted), %d orphaned files; %d entries remain.\n",
					stats.Removed(), stats.Expired, stats.Evicted, stats.Orphans, stats.Remaining)
				return nil
			})
		},
	}
}

func newCacheInvalidateCmd() *cobra.Command {
	var kindFlag, threadFlag string

	cmd := &cobra.Command{
		Use:   "invalidate",
		Short: "Drop cached entries so they are fetched again",
		Long:  "Drop every cached entry, every entry of one --kind, or one --thread.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			kind := cache.Kind(kindFlag)
			switch kind {
			case "", cache.KindLists, cache.KindFeed, cache.KindThread:
			default:
				return fmt.Errorf("unknown kind %q (use lists, feed, or thread)", kindFlag)
			}
			return withSession(func(s *session) error {
				n, err := s.svc.Invalidate(cmd.Context(), kind, threadFlag)
				if err != nil {
					return err
				}
				if jsonFlag {
					return fprintJSON(cmd.OutOrStdout(), jsonAction{OK: true, Action: "invalidate", MessageID: threadFlag, Count: n})
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Invalidated %d entries.\n", n)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&kindFlag, "kind", "", "entry kind: lists, feed, or thread")
	cmd.Flags().StringVar(&threadFlag, "thread", "", "message-id of one thread to drop")
	return cmd
}
