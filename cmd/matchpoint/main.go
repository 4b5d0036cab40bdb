// Command matchpoint is the operational CLI for the match ingestion and
// rating system: pipeline runs, queue workers, Elo updates, queue and review
// administration, player-graph maintenance, and parameter management.
//
// Exit codes: 0 success, 1 stage or task failure, 2 configuration error.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

const version = "1.0.0-dev"

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(exitCode(err))
	}
}

func newRootCommand() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:     "matchpoint",
		Short:   "Tennis match ingestion and Elo rating pipeline",
		Version: version,

		SilenceUsage: true,

		PersistentPreRun: func(*cobra.Command, []string) {
			a.initialize()
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			a.close()
		},
	}

	// Flag misuse is a configuration error (exit 2), not a runtime failure.
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return fmt.Errorf("%w: %s", errUsage, err)
	})

	root.AddCommand(
		newPipelineCommand(a),
		newWorkerCommand(a),
		newEloCommand(a),
		newQueueCommand(a),
		newReviewCommand(a),
		newMaintenanceCommand(a),
		newParamsCommand(a),
	)

	return root
}
