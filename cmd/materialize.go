package cmd

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/facefeed/facefeed/internal/config"
	"github.com/facefeed/facefeed/internal/feed"
)

var materializeCmd = &cobra.Command{
	Use:   "materialize",
	Short: "Run the feed materializer worker",
	Long: `Run the worker that consumes recipient edge events and keeps the
per-recipient feed projection up to date. Delivery is at-least-once and the
projection write is an idempotent upsert, so replays converge. Records that
keep failing are parked in the dead-letter table instead of blocking the
stream.`,
	RunE: runMaterialize,
}

func init() {
	rootCmd.AddCommand(materializeCmd)

	materializeCmd.Flags().String("consumer", feed.DefaultConsumer, "Checkpoint name for this consumer")
}

func runMaterialize(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	ctx, cancel := signalContext()
	defer cancel()

	repos, err := openStores(ctx, cfg)
	if err != nil {
		return err
	}
	defer repos.Close()

	materializer := feed.NewMaterializer(
		repos.feed,
		repos.queue,
		repos.content,
		mustGetString(cmd, "consumer"),
		cfg.Worker.BatchSize,
		cfg.Thresholds.Pipeline.RecordAttempts,
		time.Duration(cfg.Worker.RetryDelayMillis)*time.Millisecond,
	)

	pollInterval := time.Duration(cfg.Worker.PollIntervalMillis) * time.Millisecond
	if err := materializer.Run(ctx, pollInterval); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}
