package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lu-zhengda/loreterm/internal/app"
	"github.com/lu-zhengda/loreterm/internal/domain"
)

// Action commands print one outcome per target or message. Failed
// outcomes do not change the exit status.

func newApplyCmd() *cobra.Command {
	var targetFlags []string

	cmd := &cobra.Command{
		Use:   "apply <message-id>",
		Short: "Apply a patchset to local trees with git am",
		Long: "Apply the patches of a series, in order, to each named target tree.\n" +
			"Without --target the default_targets of the config are used, or every target.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(func(s *session) error {
				ps, err := s.svc.Patchset(cmd.Context(), args[0], false)
				if err != nil {
					return err
				}
				outcomes := s.svc.Apply(cmd.Context(), ps, targetFlags)
				return printOutcomes(cmd, outcomes)
			})
		},
	}

	cmd.Flags().StringSliceVar(&targetFlags, "target", nil, "target tree name (repeatable)")
	return cmd
}

func newReplyCmd() *cobra.Command {
	var (
		tagFlag   string
		patchFlag []int
		sendFlag  bool
	)

	cmd := &cobra.Command{
		Use:   "reply <message-id>",
		Short: "Reply to patches with a review tag",
		Long: "Compose a reply quoting each selected message and ending with\n" +
			"\"<tag>: <identity>\", then hand it to git send-email.\n" +
			"reply.dry_run decides whether replies are sent; --send overrides it.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tag, err := domain.ParseTagKind(tagFlag)
			if err != nil {
				return err
			}
			return withSession(func(s *session) error {
				ps, err := s.svc.Patchset(cmd.Context(), args[0], false)
				if err != nil {
					return err
				}
				dryRun := s.cfg.Reply.DryRun
				if cmd.Flags().Changed("send") {
					dryRun = !sendFlag
				}
				outcomes, err := s.svc.Reply(cmd.Context(), app.ReplyParams{
					Patchset: ps,
					Numbers:  patchFlag,
					Tag:      tag,
					DryRun:   dryRun,
				})
				if err != nil {
					return err
				}
				if dryRun && !jsonFlag {
					for _, o := range outcomes {
						if len(o.Message) > 0 {
							fmt.Fprintf(cmd.OutOrStdout(), "%s\n%s\n", o.Subject, o.Message)
						}
					}
				}
				return printOutcomes(cmd, outcomes)
			})
		},
	}

	cmd.Flags().StringVar(&tagFlag, "tag", string(domain.TagReviewedBy), "tag kind (Reviewed-by, Acked-by, Tested-by)")
	cmd.Flags().IntSliceVar(&patchFlag, "patch", nil, "patch number to reply to, 0 for the cover letter (repeatable; default all patches)")
	cmd.Flags().BoolVar(&sendFlag, "send", false, "send the replies instead of a dry run")
	return cmd
}

func printOutcomes(cmd *cobra.Command, outcomes []domain.ActionOutcome) error {
	out := cmd.OutOrStdout()
	if jsonFlag {
		return fprintJSON(out, toJSONOutcomes(outcomes))
	}
	if len(outcomes) == 0 {
		fmt.Fprintln(out, "Nothing to do.")
		return nil
	}
	return fprintOutcomes(out, outcomes)
}
