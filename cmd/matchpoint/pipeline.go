package main

import (
	"github.com/spf13/cobra"

	"github.com/matchpoint-io/matchpoint/internal/pipeline"
)

func newPipelineCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pipeline",
		Short: "Run the staged ingestion pipeline",
	}

	cmd.AddCommand(newPipelineRunCommand(a))

	return cmd
}

func newPipelineRunCommand(a *app) *cobra.Command {
	var (
		include     []string
		skip        []string
		failFast    bool
		workers     int
		batchSize   int
		maxMatches  int
		dryRun      bool
		checkOnly   bool
		metricsJSON string
		statusJSONL string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Execute the pipeline stages under the global lock",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			// Preflight: a pipeline run is long; fail before taking the
			// lock if the database is not reachable.
			conn, err := a.connect()
			if err != nil {
				return err
			}

			if err := conn.HealthCheck(ctx); err != nil {
				return err
			}

			if checkOnly {
				return printJSON(map[string]any{"database": "ok"})
			}

			emitter, closeEmitter, err := a.newEmitter(statusJSONL)
			if err != nil {
				return err
			}
			defer closeEmitter()

			registry, err := a.stageRegistry(stageDeps{
				workers: workers,
				emitter: emitter,
			})
			if err != nil {
				return err
			}

			store, err := a.pipelineStore()
			if err != nil {
				return err
			}

			locker, err := a.locker()
			if err != nil {
				return err
			}

			orchestrator := pipeline.NewOrchestrator(registry, store, locker, emitter, a.logger)

			run, err := orchestrator.Execute(ctx, pipeline.Options{
				Include:     include,
				Skip:        skip,
				FailFast:    failFast,
				LockTimeout: a.settings.PipelineLockTimeout,
				Stage: pipeline.StageContext{
					BatchSize: batchSize,
					MaxItems:  maxMatches,
					DryRun:    dryRun,
				},
			})
			if run != nil {
				if printErr := printJSON(run); printErr != nil {
					return printErr
				}

				if metricsErr := writeMetricsJSON(metricsJSON, run); metricsErr != nil {
					return metricsErr
				}
			}

			return err
		},
	}

	cmd.Flags().StringSliceVar(&include, "stages", nil, "additional stages to include")
	cmd.Flags().StringSliceVar(&skip, "skip", nil, "stages to skip")
	cmd.Flags().BoolVar(&failFast, "fail-fast", true, "abort on the first stage failure")
	cmd.Flags().IntVar(&workers, "workers", 2, "ingest worker goroutines")
	cmd.Flags().IntVar(&batchSize, "batch-size", 0, "Elo batch size (0 = default)")
	cmd.Flags().IntVar(&maxMatches, "max-matches", 0, "cap on Elo matches processed (0 = no cap)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "compute without persisting")
	cmd.Flags().BoolVar(&checkOnly, "check", false, "verify database connectivity and exit")
	cmd.Flags().StringVar(&metricsJSON, "metrics-json", "", "write the run record to this file")
	cmd.Flags().StringVar(&statusJSONL, "status-jsonl", "", "append status events to this JSONL file")

	return cmd
}
