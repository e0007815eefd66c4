package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/facefeed/facefeed/internal/config"
	"github.com/facefeed/facefeed/internal/feed"
	"github.com/facefeed/facefeed/internal/store"
)

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Clean up edges and feed entries for deleted content",
	Long: `Remove recipient edges and feed entries that still reference deleted
content. Grants racing a deletion are tolerated transiently; this pass makes
them right. Run it periodically or after bulk deletions.`,
	RunE: runReconcile,
}

func init() {
	rootCmd.AddCommand(reconcileCmd)

	reconcileCmd.Flags().Bool("list-failed", false, "Also list content whose processing failed permanently")
}

func runReconcile(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	ctx, cancel := signalContext()
	defer cancel()

	repos, err := openStores(ctx, cfg)
	if err != nil {
		return err
	}
	defer repos.Close()

	edges, entries, err := feed.Reconcile(ctx, repos.content, repos.graph, repos.feed)
	if err != nil {
		return fmt.Errorf("reconcile failed: %w", err)
	}
	fmt.Printf("Reconciled: removed %d edges and %d feed entries\n", edges, entries)

	if mustGetBool(cmd, "list-failed") {
		failed, err := repos.content.ListByState(ctx, store.ContentFailed, "", 1000)
		if err != nil {
			return fmt.Errorf("failed to list failed content: %w", err)
		}
		if len(failed) == 0 {
			fmt.Println("No permanently failed content")
			return nil
		}
		fmt.Printf("Permanently failed content (%d items):\n", len(failed))
		for i := range failed {
			fmt.Printf("  %s owner=%s uploaded=%s\n", failed[i].ID, failed[i].OwnerID, failed[i].CreatedAt.Format("2006-01-02 15:04"))
		}
	}
	return nil
}
