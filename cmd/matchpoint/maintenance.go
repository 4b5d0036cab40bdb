package main

import (
	"github.com/spf13/cobra"

	"github.com/matchpoint-io/matchpoint/internal/maintenance"
)

func newMaintenanceCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "maintenance",
		Short: "Player graph maintenance: duplicates, splits, merge recovery",
	}

	cmd.AddCommand(
		newMaintenanceDuplicatesCommand(a),
		newMaintenanceSplitCommand(a),
		newMaintenanceMergeRecoveryCommand(a),
	)

	return cmd
}

func newMaintenanceDuplicatesCommand(a *app) *cobra.Command {
	var (
		apply     bool
		maxMerges int
	)

	cmd := &cobra.Command{
		Use:   "duplicates",
		Short: "Detect duplicate players; --apply merges them",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			service, err := a.maintenanceService()
			if err != nil {
				return err
			}

			report, err := service.Duplicates(ctx, maintenance.DuplicateOptions{
				Apply:     apply,
				MaxMerges: maxMerges,
			})
			if err != nil {
				return err
			}

			return printJSON(report)
		},
	}

	cmd.Flags().BoolVar(&apply, "apply", false, "merge the detected groups")
	cmd.Flags().IntVar(&maxMerges, "max-merges", 0, "cap on merges per run (0 = no cap)")

	return cmd
}

func newMaintenanceSplitCommand(a *app) *cobra.Command {
	var apply bool

	cmd := &cobra.Command{
		Use:   "split",
		Short: "Find players with matches on both gender circuits; --apply splits them",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			service, err := a.maintenanceService()
			if err != nil {
				return err
			}

			report, err := service.SplitMixedGender(ctx, maintenance.SplitOptions{Apply: apply})
			if err != nil {
				return err
			}

			return printJSON(report)
		},
	}

	cmd.Flags().BoolVar(&apply, "apply", false, "perform the splits")

	return cmd
}

func newMaintenanceMergeRecoveryCommand(a *app) *cobra.Command {
	var (
		apply bool
		limit int
	)

	cmd := &cobra.Command{
		Use:   "merge-recovery",
		Short: "Restore aliases lost to past merges, from the merge log",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			service, err := a.maintenanceService()
			if err != nil {
				return err
			}

			report, err := service.RecoverMerges(ctx, maintenance.RecoveryOptions{
				Apply: apply,
				Limit: limit,
			})
			if err != nil {
				return err
			}

			return printJSON(report)
		},
	}

	cmd.Flags().BoolVar(&apply, "apply", false, "write the recovered aliases")
	cmd.Flags().IntVar(&limit, "limit", maintenance.DefaultMergeLogLimit, "merge log records to scan")

	return cmd
}
