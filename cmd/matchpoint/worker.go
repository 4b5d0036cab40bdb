package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/matchpoint-io/matchpoint/internal/events"
	"github.com/matchpoint-io/matchpoint/internal/worker"
)

func newWorkerCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Run scrape queue workers",
	}

	cmd.AddCommand(newWorkerRunCommand(a))

	return cmd
}

func newWorkerRunCommand(a *app) *cobra.Command {
	var (
		workers     int
		maxTasks    int
		drain       bool
		statusJSONL string
		noDashboard bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Claim and process scrape tasks until stopped",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			var extra []events.Emitter
			if !noDashboard {
				extra = append(extra, worker.NewDashboard(os.Stdout))
			}

			emitter, closeEmitter, err := a.newEmitter(statusJSONL, extra...)
			if err != nil {
				return err
			}
			defer closeEmitter()

			queueManager, err := a.queueManager()
			if err != nil {
				return err
			}

			ingestor, err := a.ingestor()
			if err != nil {
				return err
			}

			players, err := a.playerStore()
			if err != nil {
				return err
			}

			pool := worker.NewPool(queueManager, ingestor, players, a.scraperFactory(), emitter, a.logger, worker.Options{
				Workers:  workers,
				MaxTasks: maxTasks,
				Drain:    drain,
				DelayMin: a.settings.ScrapeDelayMin,
				DelayMax: a.settings.ScrapeDelayMax,
			})

			metrics, err := pool.Run(ctx)
			if metrics != nil {
				if printErr := printJSON(metrics); printErr != nil {
					return printErr
				}
			}

			return err
		},
	}

	cmd.Flags().IntVar(&workers, "workers", 2, "worker goroutines")
	cmd.Flags().IntVar(&maxTasks, "max-tasks", 0, "stop after this many tasks (0 = unbounded)")
	cmd.Flags().BoolVar(&drain, "drain", false, "exit when the queue is empty instead of idling")
	cmd.Flags().StringVar(&statusJSONL, "status-jsonl", "", "append status events to this JSONL file")
	cmd.Flags().BoolVar(&noDashboard, "no-dashboard", false, "suppress the terminal dashboard")

	return cmd
}
