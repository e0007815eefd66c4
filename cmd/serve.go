package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/facefeed/facefeed/internal/access"
	"github.com/facefeed/facefeed/internal/blob"
	"github.com/facefeed/facefeed/internal/config"
	"github.com/facefeed/facefeed/internal/feed"
	"github.com/facefeed/facefeed/internal/recognizer"
	"github.com/facefeed/facefeed/internal/web"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	Long: `Start the facefeed API server.
The API handles uploads, the personalized feed, friendships, events,
enrollment and the owner's unknown-face directory. Face processing itself
runs in the ingest worker, not in the request path.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().Int("port", 8080, "Port to listen on")
	serveCmd.Flags().String("host", "0.0.0.0", "Host to bind to")
}

// resolveServeHostPort resolves port and host from flags and environment variables.
func resolveServeHostPort(cmd *cobra.Command) (int, string) {
	port := mustGetInt(cmd, "port")
	host := mustGetString(cmd, "host")

	if envPort := os.Getenv("WEB_PORT"); envPort != "" {
		fmt.Sscanf(envPort, "%d", &port)
	}
	if envHost := os.Getenv("WEB_HOST"); envHost != "" {
		host = envHost
	}
	return port, host
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	ctx, cancel := signalContext()
	defer cancel()

	if cfg.FaceAPI.URL == "" {
		return errors.New("FACE_API_URL environment variable is required")
	}
	if cfg.Storage.Bucket == "" {
		return errors.New("S3_BUCKET environment variable is required")
	}

	repos, err := openStores(ctx, cfg)
	if err != nil {
		return err
	}
	defer repos.Close()

	blobs, err := blob.NewS3Storage(ctx, cfg.Storage)
	if err != nil {
		return fmt.Errorf("failed to initialize object storage: %w", err)
	}

	enrolled, err := buildEnrolledIndex(ctx, repos.enrollments)
	if err != nil {
		return err
	}

	detector := recognizer.NewClient(&cfg.FaceAPI)
	engine := access.NewEngine(repos.identities, repos.faces, repos.graph, repos.friendships, enrolled, cfg.Thresholds.Matching)
	reader := feed.NewReader(repos.feed, repos.graph, repos.content)

	port, host := resolveServeHostPort(cmd)
	server := web.NewServer(web.Deps{
		Identities:   repos.identities,
		Graph:        repos.graph,
		Feed:         repos.feed,
		Friendships:  repos.friendships,
		Content:      repos.content,
		Enrollments:  repos.enrollments,
		Events:       repos.events,
		Queue:        repos.queue,
		Blobs:        blobs,
		Detector:     detector,
		Enrolled:     enrolled,
		Engine:       engine,
		Reader:       reader,
		MaxImageSize: cfg.Thresholds.Matching.MaxImageSize,
	}, port, host)

	go func() {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			fmt.Printf("Error during shutdown: %v\n", err)
		}
	}()

	fmt.Printf("Starting facefeed API on http://%s:%d\n", host, port)
	fmt.Println("Press Ctrl+C to stop")

	if err := server.Start(); err != nil {
		return fmt.Errorf("starting server: %w", err)
	}
	return nil
}
