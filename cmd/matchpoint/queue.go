package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/matchpoint-io/matchpoint/internal/queue"
	"github.com/matchpoint-io/matchpoint/internal/scrape"
	"github.com/matchpoint-io/matchpoint/internal/tennis"
)

func newQueueCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and administer the scrape queue",
	}

	cmd.AddCommand(
		newQueueEnqueueCommand(a),
		newQueueStatsCommand(a),
		newQueueResetCommand(a),
		newQueueCancelCommand(a),
		newQueueRequeueStaleCommand(a),
		newQueueCleanupCommand(a),
	)

	return cmd
}

func newQueueEnqueueCommand(a *app) *cobra.Command {
	var (
		taskType string
		tour     string
		code     string
		year     int
		playerID int64
		priority int
	)

	cmd := &cobra.Command{
		Use:   "enqueue",
		Short: "Insert a scrape task",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			parsedType := queue.TaskType(taskType)
			if !parsedType.IsValid() {
				return fmt.Errorf("%w: unknown task type %q", errUsage, taskType)
			}

			parsedTour := tennis.Tour(tour)
			if !parsedTour.IsValid() {
				return fmt.Errorf("%w: unknown tour %q", errUsage, tour)
			}

			manager, err := a.queueManager()
			if err != nil {
				return err
			}

			id, existing, err := manager.Enqueue(cmd.Context(), parsedType, scrape.TaskParams{
				Tour:           parsedTour,
				TournamentCode: code,
				Year:           year,
				PlayerID:       playerID,
			}, queue.Priority(priority))
			if err != nil {
				return err
			}

			return printJSON(map[string]any{"id": id, "existing": existing})
		},
	}

	cmd.Flags().StringVar(&taskType, "type", string(queue.TaskCurrentTournament), "task type")
	cmd.Flags().StringVar(&tour, "tour", "", "tour (atp, challenger, wta, wta125, itf)")
	cmd.Flags().StringVar(&code, "code", "", "tournament code")
	cmd.Flags().IntVar(&year, "year", time.Now().UTC().Year(), "tournament year")
	cmd.Flags().Int64Var(&playerID, "player-id", 0, "player id (enrichment tasks)")
	cmd.Flags().IntVar(&priority, "priority", int(queue.PriorityNormal), "priority, lower runs first")

	_ = cmd.MarkFlagRequired("tour")

	return cmd
}

func newQueueStatsCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show queue health counters",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			manager, err := a.queueManager()
			if err != nil {
				return err
			}

			stats, err := manager.Stats(cmd.Context())
			if err != nil {
				return err
			}

			return printJSON(stats)
		},
	}
}

func newQueueResetCommand(a *app) *cobra.Command {
	var id int64

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Reset a failed task back to pending with fresh attempts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			manager, err := a.queueManager()
			if err != nil {
				return err
			}

			if err := manager.Reset(cmd.Context(), id); err != nil {
				return err
			}

			return printJSON(map[string]any{"id": id, "status": string(queue.StatusPending)})
		},
	}

	cmd.Flags().Int64Var(&id, "id", 0, "task id")
	_ = cmd.MarkFlagRequired("id")

	return cmd
}

func newQueueCancelCommand(a *app) *cobra.Command {
	var id int64

	cmd := &cobra.Command{
		Use:   "cancel",
		Short: "Cancel a pending or retrying task",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			manager, err := a.queueManager()
			if err != nil {
				return err
			}

			if err := manager.Cancel(cmd.Context(), id); err != nil {
				return err
			}

			return printJSON(map[string]any{"id": id, "cancelled": true})
		},
	}

	cmd.Flags().Int64Var(&id, "id", 0, "task id")
	_ = cmd.MarkFlagRequired("id")

	return cmd
}

func newQueueRequeueStaleCommand(a *app) *cobra.Command {
	var age time.Duration

	cmd := &cobra.Command{
		Use:   "requeue-stale",
		Short: "Return long-held in-progress tasks to the queue",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			manager, err := a.queueManager()
			if err != nil {
				return err
			}

			requeued, err := manager.RequeueStale(cmd.Context(), age)
			if err != nil {
				return err
			}

			return printJSON(map[string]any{"requeued": requeued})
		},
	}

	cmd.Flags().DurationVar(&age, "age", time.Hour, "claim age after which a task counts as stale")

	return cmd
}

func newQueueCleanupCommand(a *app) *cobra.Command {
	var days int

	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete old completed tasks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			manager, err := a.queueManager()
			if err != nil {
				return err
			}

			deleted, err := manager.CleanupOldCompleted(cmd.Context(), days)
			if err != nil {
				return err
			}

			return printJSON(map[string]any{"deleted": deleted})
		},
	}

	cmd.Flags().IntVar(&days, "days", 30, "retention window for completed tasks")

	return cmd
}
