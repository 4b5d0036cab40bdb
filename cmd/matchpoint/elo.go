package main

import (
	"github.com/spf13/cobra"

	"github.com/matchpoint-io/matchpoint/internal/elo"
)

func newEloCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "elo",
		Short: "Run the Elo rating updater",
	}

	cmd.AddCommand(newEloRunCommand(a), newEloRebuildCommand(a))

	return cmd
}

func newEloRunCommand(a *app) *cobra.Command {
	var (
		opts        elo.Options
		metricsJSON string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Rate newly terminal matches incrementally",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			updater, err := a.updater()
			if err != nil {
				return err
			}

			metrics, err := updater.Run(ctx, opts)
			if err != nil {
				return err
			}

			if err := printJSON(metrics); err != nil {
				return err
			}

			return writeMetricsJSON(metricsJSON, metrics)
		},
	}

	cmd.Flags().IntVar(&opts.BatchSize, "batch-size", 0, "matches per batch (0 = default)")
	cmd.Flags().IntVar(&opts.MaxMatches, "max-matches", 0, "cap on matches processed (0 = no cap)")
	cmd.Flags().StringVar(&opts.CheckpointKey, "checkpoint-key", "", "checkpoint key (default: the standard cursor)")
	cmd.Flags().BoolVar(&opts.Resume, "resume", true, "resume from the stored checkpoint")
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "compute without persisting")
	cmd.Flags().StringVar(&metricsJSON, "metrics-json", "", "write run metrics to this file")

	return cmd
}

func newEloRebuildCommand(a *app) *cobra.Command {
	var (
		opts        elo.Options
		metricsJSON string
	)

	cmd := &cobra.Command{
		Use:   "rebuild",
		Short: "Recompute every rating from scratch",
		Long: "Rebuild clears all rating state and replays every terminal match in " +
			"temporal order under the active parameter set. Restrict with --player to " +
			"rebuild only matches touching the given players.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			updater, err := a.updater()
			if err != nil {
				return err
			}

			metrics, err := updater.Rebuild(ctx, opts)
			if err != nil {
				return err
			}

			if err := printJSON(metrics); err != nil {
				return err
			}

			return writeMetricsJSON(metricsJSON, metrics)
		},
	}

	cmd.Flags().IntVar(&opts.BatchSize, "batch-size", 0, "matches per batch (0 = default)")
	cmd.Flags().IntVar(&opts.MaxMatches, "max-matches", 0, "cap on matches processed (0 = no cap)")
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "compute without persisting")
	cmd.Flags().Int64SliceVar(&opts.PlayerIDs, "player", nil, "restrict to matches touching these player ids")
	cmd.Flags().StringVar(&metricsJSON, "metrics-json", "", "write run metrics to this file")

	return cmd
}
