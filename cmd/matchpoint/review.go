package main

import (
	"github.com/spf13/cobra"

	"github.com/matchpoint-io/matchpoint/internal/identity"
)

func newReviewCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "review",
		Short: "Work the player identity review queue",
	}

	cmd.AddCommand(newReviewListCommand(a), newReviewResolveCommand(a))

	return cmd
}

func newReviewListCommand(a *app) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List pending review items with their suggestions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			resolver, _, err := a.resolver()
			if err != nil {
				return err
			}

			items, err := resolver.PendingReviews(cmd.Context(), limit)
			if err != nil {
				return err
			}

			return printJSON(items)
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 50, "maximum items to list")

	return cmd
}

func newReviewResolveCommand(a *app) *cobra.Command {
	var (
		id       int64
		action   string
		playerID int64
		by       string
	)

	cmd := &cobra.Command{
		Use:   "resolve",
		Short: "Resolve a review item (match, create, or ignore)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			resolver, _, err := a.resolver()
			if err != nil {
				return err
			}

			err = resolver.ResolveReviewItem(cmd.Context(), id, identity.ReviewAction(action), playerID, by)
			if err != nil {
				return err
			}

			return printJSON(map[string]any{"id": id, "action": action, "resolved": true})
		},
	}

	cmd.Flags().Int64Var(&id, "id", 0, "review item id")
	cmd.Flags().StringVar(&action, "action", "", "match, create, or ignore")
	cmd.Flags().Int64Var(&playerID, "player-id", 0, "target player id (match action)")
	cmd.Flags().StringVar(&by, "by", "cli", "who resolved it")

	_ = cmd.MarkFlagRequired("id")
	_ = cmd.MarkFlagRequired("action")

	return cmd
}
