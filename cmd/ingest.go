package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/facefeed/facefeed/internal/access"
	"github.com/facefeed/facefeed/internal/blob"
	"github.com/facefeed/facefeed/internal/config"
	"github.com/facefeed/facefeed/internal/recognizer"
	"github.com/facefeed/facefeed/internal/store"
)

// enrolledRefreshInterval is how often the worker reloads the enrolled-user
// index; enrollments land in other processes.
const enrolledRefreshInterval = time.Minute

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Run the upload processing worker",
	Long: `Run the worker that processes uploaded content: fetch the bytes, detect
faces, match them against enrolled friends and grant visibility. Tasks that
keep failing are dropped after bounded retries and the content is marked
failed for the reconcile pass to surface.`,
	RunE: runIngest,
}

func init() {
	rootCmd.AddCommand(ingestCmd)
}

// ingestWorker processes claimed upload tasks.
type ingestWorker struct {
	repos    *stores
	blobs    blob.Storage
	detector recognizer.Recognizer
	engine   *access.Engine
	enrolled *recognizer.EnrolledIndex
	cfg      *config.Config
}

// processTask runs face processing for one claimed task. Every write along
// the way is idempotent, so a retried task converges instead of duplicating.
func (w *ingestWorker) processTask(ctx context.Context, task *store.IngestTask) error {
	content, err := w.repos.content.Get(ctx, task.ContentID)
	if errors.Is(err, store.ErrNotFound) {
		// Content row vanished; nothing to process.
		return nil
	}
	if err != nil {
		return fmt.Errorf("load content: %w", err)
	}
	if content.State == store.ContentDeleted {
		return nil
	}

	data, err := w.blobs.Get(ctx, content.ObjectKey)
	if err != nil {
		return fmt.Errorf("fetch %s: %w", content.ObjectKey, err)
	}

	// Downscale large images before shipping them to the face service.
	// Video bytes pass through untouched, the service samples frames itself.
	if strings.HasPrefix(content.MediaType, "image/") {
		resized, err := recognizer.ResizeImage(data, w.cfg.Thresholds.Matching.MaxImageSize)
		if err != nil {
			return fmt.Errorf("resize image: %w", err)
		}
		data = resized
	}

	detections, err := w.detector.Detect(ctx, data)
	if err != nil {
		return fmt.Errorf("detect faces: %w", err)
	}

	if err := w.engine.ProcessContent(ctx, content, detections); err != nil {
		return fmt.Errorf("process faces: %w", err)
	}

	if err := w.repos.content.SetState(ctx, content.ID, store.ContentProcessed); err != nil {
		return fmt.Errorf("mark processed: %w", err)
	}
	fmt.Printf("content %s processed, %d faces\n", content.ID, len(detections))
	return nil
}

// handleFailure re-queues the task or, once attempts are exhausted, drops it
// and marks the content failed.
func (w *ingestWorker) handleFailure(ctx context.Context, task *store.IngestTask, taskErr error) {
	fmt.Printf("content %s attempt %d failed: %v\n", task.ContentID, task.Attempts+1, taskErr)

	// Detached from the worker context: a shutdown that interrupted the task
	// must not also abort the bookkeeping that releases the claim.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	exhausted, err := w.repos.queue.FailIngest(ctx, task.ID, task.Attempts, w.cfg.Thresholds.Pipeline.IngestAttempts)
	if err != nil {
		fmt.Printf("failed to record task failure: %v\n", err)
		return
	}
	if !exhausted {
		return
	}

	fmt.Printf("content %s failed permanently after %d attempts\n", task.ContentID, task.Attempts+1)
	if err := w.repos.content.SetState(ctx, task.ContentID, store.ContentFailed); err != nil {
		fmt.Printf("failed to mark content failed: %v\n", err)
	}
}

func (w *ingestWorker) run(ctx context.Context) error {
	pollInterval := time.Duration(w.cfg.Worker.PollIntervalMillis) * time.Millisecond
	lastRefresh := time.Now()

	for {
		if ctx.Err() != nil {
			return nil
		}

		if time.Since(lastRefresh) > enrolledRefreshInterval {
			if all, err := w.repos.enrollments.All(ctx); err == nil {
				w.enrolled.BuildFromEnrollments(all)
			}
			lastRefresh = time.Now()
		}

		task, err := w.repos.queue.ClaimIngest(ctx)
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

		if err := w.processTask(ctx, task); err != nil {
			w.handleFailure(ctx, task, err)
			continue
		}
		if err := w.repos.queue.CompleteIngest(ctx, task.ID); err != nil {
			fmt.Printf("failed to complete task: %v\n", err)
		}
	}
}

func runIngest(cmd *cobra.Command, args []string) error {
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

	worker := &ingestWorker{
		repos:    repos,
		blobs:    blobs,
		detector: recognizer.NewClient(&cfg.FaceAPI),
		engine:   access.NewEngine(repos.identities, repos.faces, repos.graph, repos.friendships, enrolled, cfg.Thresholds.Matching),
		enrolled: enrolled,
		cfg:      cfg,
	}

	fmt.Println("Ingest worker started, press Ctrl+C to stop")
	return worker.run(ctx)
}
