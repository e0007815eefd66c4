package cmd

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "facefeed",
	Short: "Face-recognition photo sharing with a personalized feed",
	Long: `Facefeed grants people access to photos and videos by recognizing their
faces: an upload is scanned, detected faces are matched against enrolled
friends, and matching friends receive the content in their feed. Friendship
acceptance retroactively unlocks the back catalog.`,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
}

func initConfig() {
	// .env file is optional, don't fail if not found
	_ = godotenv.Load()
}
