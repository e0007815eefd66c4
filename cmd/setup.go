package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/facefeed/facefeed/internal/config"
	"github.com/facefeed/facefeed/internal/recognizer"
	"github.com/facefeed/facefeed/internal/store"
	"github.com/facefeed/facefeed/internal/store/postgres"
)

// stores bundles the PostgreSQL repositories shared by the commands.
type stores struct {
	pool        *postgres.Pool
	identities  *postgres.IdentityRepository
	faces       *postgres.FaceIndexRepository
	graph       *postgres.RecipientGraphRepository
	feed        *postgres.FeedRepository
	friendships *postgres.FriendshipRepository
	content     *postgres.ContentRepository
	enrollments *postgres.EnrollmentRepository
	events      *postgres.EventRepository
	queue       *postgres.QueueRepository
}

// openStores connects to PostgreSQL, applies pending migrations and builds
// the repositories.
func openStores(ctx context.Context, cfg *config.Config) (*stores, error) {
	if cfg.Database.URL == "" {
		return nil, errors.New("DATABASE_URL environment variable is required")
	}

	fmt.Printf("Connecting to PostgreSQL database...\n")
	pool, err := postgres.Initialize(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize PostgreSQL: %w", err)
	}
	if err := pool.Migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &stores{
		pool:        pool,
		identities:  postgres.NewIdentityRepository(pool),
		faces:       postgres.NewFaceIndexRepository(pool),
		graph:       postgres.NewRecipientGraphRepository(pool),
		feed:        postgres.NewFeedRepository(pool),
		friendships: postgres.NewFriendshipRepository(pool),
		content:     postgres.NewContentRepository(pool),
		enrollments: postgres.NewEnrollmentRepository(pool),
		events:      postgres.NewEventRepository(pool),
		queue:       postgres.NewQueueRepository(pool, time.Duration(cfg.Thresholds.Pipeline.ClaimTimeoutSeconds)*time.Second),
	}, nil
}

func (s *stores) Close() {
	s.pool.Close()
}

// buildEnrolledIndex loads all enrollments into an in-memory HNSW index.
func buildEnrolledIndex(ctx context.Context, enrollments store.EnrollmentStore) (*recognizer.EnrolledIndex, error) {
	fmt.Printf("Building in-memory HNSW index over enrolled signatures...\n")
	all, err := enrollments.All(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load enrollments: %w", err)
	}
	index := recognizer.NewEnrolledIndex()
	index.BuildFromEnrollments(all)
	fmt.Printf("Enrolled index ready with %d signatures\n", index.Count())
	return index, nil
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Println("\nShutting down...")
		cancel()
	}()

	return ctx, cancel
}
