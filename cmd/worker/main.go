package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/sdancy10/Financial-Tracker-Backend/internal/artifacts"
	"github.com/sdancy10/Financial-Tracker-Backend/internal/config"
	"github.com/sdancy10/Financial-Tracker-Backend/internal/inference"
	infraFS "github.com/sdancy10/Financial-Tracker-Backend/internal/infra/firestore"
	"github.com/sdancy10/Financial-Tracker-Backend/internal/jobs"
	"github.com/sdancy10/Financial-Tracker-Backend/internal/jobs/inmemory"
	"github.com/sdancy10/Financial-Tracker-Backend/internal/logger"
	"github.com/sdancy10/Financial-Tracker-Backend/internal/mailbox"
	"github.com/sdancy10/Financial-Tracker-Backend/internal/normalize"
	"github.com/sdancy10/Financial-Tracker-Backend/internal/pipeline"
	"github.com/sdancy10/Financial-Tracker-Backend/internal/template"
)

func main() {
	// Parse command-line flags
	var (
		configPath = flag.String("config", "", "Path to config file (or set CONFIG_PATH env)")
		users      = flag.String("users", os.Getenv("PIPELINE_USERS"), "Comma-separated user IDs to process (or set PIPELINE_USERS env)")
		interval   = flag.Duration("interval", 15*time.Minute, "Delay between mailbox sweeps")
		once       = flag.Bool("once", false, "Run a single sweep and exit")
	)
	flag.Parse()

	// Initialize logger
	log := logger.New()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	userIDs := splitUsers(*users)
	if len(userIDs) == 0 {
		log.Fatal().Msg("No users configured - set -users or PIPELINE_USERS")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize the transaction store and the pipeline around it
	txStore, err := infraFS.NewTransactionStore(ctx, cfg.Project.ID)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create transaction store")
	}
	defer txStore.Close()

	templates, err := template.LoadStore(cfg.TemplatesPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load templates")
	}

	fetcher := artifacts.NewGCSFetcher()
	resolver, err := inference.Build(ctx, cfg, fetcher, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build inference resolver")
	}

	pipe := pipeline.NewMessagePipeline(
		template.NewMatcher(templates, log),
		normalize.New(cfg.Location(), cfg.Data.DefaultCurrency),
		templates,
		pipeline.NewValidator(cfg.RequiredFieldSet(), cfg.StatusSet()),
		txStore,
		resolver,
	)
	processor := pipeline.NewProcessor(pipe, cfg.Data.Workers, log)
	source := mailbox.NewExportSource(fetcher, cfg.Data.MailboxExportURI)

	// Initialize job store and queue
	// In production, this would be replaced with Cloud Tasks or Pub/Sub
	jobStore := inmemory.NewStore()
	jobQueue := inmemory.NewQueue(100, cfg.Data.Workers, jobStore)

	log.Info().Int("users", len(userIDs)).Msg("Starting worker service")

	handler := func(ctx context.Context, job jobs.Job) error {
		mailboxJob, ok := job.(*jobs.ProcessMailboxJob)
		if !ok {
			return fmt.Errorf("unexpected job type: %T", job)
		}

		checkFrom := mailboxJob.CheckFrom
		if mailboxJob.ForceSync {
			checkFrom = time.Time{}
		}

		msgs, err := source.Messages(ctx, mailboxJob.UserID, mailboxJob.AccountID, checkFrom, mailboxJob.Timestamp)
		if err != nil {
			return err
		}

		result, err := processor.ProcessBatch(ctx, msgs)
		if err != nil {
			log.Error().
				Err(err).
				Str("job_id", mailboxJob.JobID).
				Str("user_id", mailboxJob.UserID).
				Msg("Batch processing failed")
			return err
		}

		log.Info().
			Str("job_id", mailboxJob.JobID).
			Str("user_id", mailboxJob.UserID).
			Int("total", result.Total).
			Int("processed", result.Processed).
			Int("duplicates", result.Duplicates).
			Int("no_template", result.NoTemplate).
			Int("invalid", result.Invalid).
			Int("failed", result.Failed).
			Msg("Batch processing completed")
		return nil
	}

	// Start consuming jobs
	if err := jobQueue.Start(ctx, handler); err != nil {
		log.Fatal().Err(err).Msg("Failed to start job consumer")
	}

	// Enqueue a sweep per user, each bounded to the previous sweep time
	sweep := func(checkFrom time.Time) {
		now := time.Now().UTC()
		for _, userID := range userIDs {
			job := &jobs.ProcessMailboxJob{
				UserID:    userID,
				Timestamp: now,
				CheckFrom: checkFrom,
			}
			if err := jobQueue.PublishProcessMailbox(ctx, job); err != nil {
				log.Error().Err(err).Str("user_id", userID).Msg("Failed to enqueue mailbox job")
			}
		}
	}

	go func() {
		lastSweep := time.Time{}
		for {
			start := time.Now().UTC()
			sweep(lastSweep)
			lastSweep = start

			if *once {
				// Give in-flight jobs a moment, then request shutdown
				time.Sleep(time.Second)
				cancel()
				return
			}

			select {
			case <-ctx.Done():
				return
			case <-time.After(*interval):
			}
		}
	}()

	log.Info().Msg("Worker service started, sweeping mailboxes...")

	// Wait for interrupt signal or one-shot completion
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case <-ctx.Done():
	}

	log.Info().Msg("Shutting down worker service...")

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	// Stop the queue and wait for in-flight jobs
	if err := jobQueue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error during graceful shutdown")
	}

	if err := jobQueue.Close(); err != nil {
		log.Error().Err(err).Msg("Failed to close job queue")
	}

	log.Info().Msg("Worker service exited")
}

func splitUsers(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if u := strings.TrimSpace(part); u != "" {
			out = append(out, u)
		}
	}
	return out
}
