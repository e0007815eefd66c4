package cmd

import (
	"fmt"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/facefeed/facefeed/internal/config"
	"github.com/facefeed/facefeed/internal/feed"
)

var rebuildFeedCmd = &cobra.Command{
	Use:   "rebuild-feed",
	Short: "Rebuild the feed projection from the recipient graph",
	Long: `Drop the entire feed projection and re-derive it from the recipient
graph and content metadata. The projection is a disposable cache, so this is
safe at any time; use it to recover from projection drift.`,
	RunE: runRebuildFeed,
}

func init() {
	rootCmd.AddCommand(rebuildFeedCmd)
}

func runRebuildFeed(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	ctx, cancel := signalContext()
	defer cancel()

	repos, err := openStores(ctx, cfg)
	if err != nil {
		return err
	}
	defer repos.Close()

	total, err := repos.graph.Count(ctx)
	if err != nil {
		return fmt.Errorf("failed to count edges: %w", err)
	}
	fmt.Printf("Rebuilding feed projection from %d recipient edges...\n", total)

	bar := progressbar.Default(int64(total))
	rebuilt, err := feed.Rebuild(ctx, repos.graph, repos.content, repos.feed, func() {
		_ = bar.Add(1)
	})
	if err != nil {
		return fmt.Errorf("rebuild failed after %d entries: %w", rebuilt, err)
	}
	_ = bar.Finish()

	fmt.Printf("Feed rebuilt: %d entries from %d edges\n", rebuilt, total)
	return nil
}
