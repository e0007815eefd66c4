package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/facefeed/facefeed/internal/config"
	"github.com/facefeed/facefeed/internal/retromatch"
	"github.com/facefeed/facefeed/internal/store"
)

var retromatchCmd = &cobra.Command{
	Use:   "retromatch",
	Short: "Run the retroactive matching worker",
	Long: `Run the worker that scans both users' back catalogs after a friendship
is accepted. Unknown faces matching the new friend's enrolled signature are
resolved and the friend is granted visibility of every matching item. Scans
checkpoint per identity, so an interrupted scan resumes where it stopped.`,
	RunE: runRetromatch,
}

func init() {
	rootCmd.AddCommand(retromatchCmd)
}

type retroWorker struct {
	repos  *stores
	engine *retromatch.Engine
	cfg    *config.Config
}

func (w *retroWorker) handleFailure(ctx context.Context, task *store.RetroTask, taskErr error) {
	fmt.Printf("pair (%s, %s) attempt %d failed: %v\n", task.UserLow, task.UserHigh, task.Attempts+1, taskErr)

	// Detached from the worker context: a shutdown that interrupted the scan
	// must not also abort the bookkeeping that releases the claim.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	exhausted, err := w.repos.queue.FailRetro(ctx, task.ID, task.Attempts, w.cfg.Thresholds.Pipeline.RetroAttempts)
	if err != nil {
		fmt.Printf("failed to record task failure: %v\n", err)
		return
	}
	if exhausted {
		// The checkpoint survives; re-accepting the friendship re-enqueues
		// the pair and the scan picks up where it stopped.
		fmt.Printf("pair (%s, %s) dropped after %d attempts\n", task.UserLow, task.UserHigh, task.Attempts+1)
	}
}

func (w *retroWorker) run(ctx context.Context) error {
	pollInterval := time.Duration(w.cfg.Worker.PollIntervalMillis) * time.Millisecond

	for {
		if ctx.Err() != nil {
			return nil
		}

		task, err := w.repos.queue.ClaimRetro(ctx)
		if err != nil {
			fmt.Printf("failed to claim task: %v\n", err)
			task = nil
		}
		if task == nil {
			select {
			case <-time.After(pollInterval):
			case <-ctx.Done():
				return nil
			}
			continue
		}

		fmt.Printf("scanning back catalogs for (%s, %s)\n", task.UserLow, task.UserHigh)
		if err := w.engine.ProcessPair(ctx, task.UserLow, task.UserHigh); err != nil {
			w.handleFailure(ctx, task, err)
			continue
		}
		if err := w.repos.queue.CompleteRetro(ctx, task.ID); err != nil {
			fmt.Printf("failed to complete task: %v\n", err)
		}
	}
}

func runRetromatch(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	ctx, cancel := signalContext()
	defer cancel()

	repos, err := openStores(ctx, cfg)
	if err != nil {
		return err
	}
	defer repos.Close()

	worker := &retroWorker{
		repos: repos,
		engine: retromatch.NewEngine(
			repos.identities,
			repos.faces,
			repos.graph,
			repos.enrollments,
			repos.queue,
			cfg.Thresholds.Matching,
			cfg.Worker.BatchSize,
		),
		cfg: cfg,
	}

	fmt.Println("Retromatch worker started, press Ctrl+C to stop")
	return worker.run(ctx)
}
