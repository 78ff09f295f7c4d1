package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/sdancy10/Financial-Tracker-Backend/internal/api/handlers"
	"github.com/sdancy10/Financial-Tracker-Backend/internal/api/middleware"
	"github.com/sdancy10/Financial-Tracker-Backend/internal/artifacts"
	"github.com/sdancy10/Financial-Tracker-Backend/internal/config"
	"github.com/sdancy10/Financial-Tracker-Backend/internal/feedback"
	"github.com/sdancy10/Financial-Tracker-Backend/internal/inference"
	infraBQ "github.com/sdancy10/Financial-Tracker-Backend/internal/infra/bigquery"
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
		port       = flag.String("port", "8080", "HTTP server port")
		configPath = flag.String("config", "", "Path to config file (or set CONFIG_PATH env)")
	)
	flag.Parse()

	// Initialize logger
	log := logger.New()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	ctx := context.Background()

	// Initialize repositories
	txStore, err := infraFS.NewTransactionStore(ctx, cfg.Project.ID)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create transaction store")
	}
	defer txStore.Close()

	feedbackRepo, err := infraBQ.NewFeedbackRepository(ctx, cfg.Project.ID, cfg.Feedback.Dataset, cfg.Feedback.Table)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create feedback repository")
	}
	defer feedbackRepo.Close()

	// Build the message pipeline the job worker runs
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

	collector := feedback.NewCollector(txStore, feedbackRepo, log)

	// Initialize job infrastructure
	jobStore := inmemory.NewStore()
	jobQueue := inmemory.NewQueue(100, cfg.Data.Workers, jobStore)

	// Start worker in background to process jobs
	workerCtx, cancelWorker := context.WithCancel(ctx)
	defer cancelWorker()

	jobHandler := func(ctx context.Context, job jobs.Job) error {
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
			Msg("Batch processing completed")
		return nil
	}

	// Start job consumer in background
	go func() {
		log.Info().Msg("Starting job worker")
		if err := jobQueue.Start(workerCtx, jobHandler); err != nil {
			log.Error().Err(err).Msg("Job worker stopped with error")
		}
	}()

	// Initialize handlers
	feedbackHandler := handlers.NewFeedbackHandler(collector, feedbackRepo, log)
	transactionsHandler := handlers.NewTransactionsHandler(txStore, log)
	batchHandler := handlers.NewBatchHandler(jobQueue, log)
	jobsHandler := handlers.NewJobsHandler(jobStore, log)

	// Create router
	mux := http.NewServeMux()

	// Feedback endpoints
	mux.HandleFunc("/api/feedback", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			feedbackHandler.SubmitFeedback(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/api/feedback/stats", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			feedbackHandler.GetStats(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/api/feedback/accuracy", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			feedbackHandler.GetAccuracy(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	// Transactions endpoints
	mux.HandleFunc("/api/transactions", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			transactionsHandler.GetTransaction(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	// Batch processing endpoints
	mux.HandleFunc("/api/process", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			batchHandler.EnqueueBatch(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	// Jobs endpoints
	mux.HandleFunc("/api/jobs", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			jobsHandler.ListJobs(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/api/jobs/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			jobID := strings.TrimPrefix(r.URL.Path, "/api/jobs/")
			if jobID == "" {
				middleware.WriteError(w, http.StatusBadRequest, "Job ID is required")
				return
			}
			jobsHandler.GetJob(w, r, jobID)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	// Health check endpoint
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteJSON(w, http.StatusOK, map[string]string{
			"status": "healthy",
			"time":   time.Now().Format(time.RFC3339),
		})
	})

	// Apply middleware
	handler := middleware.Recovery(log)(
		middleware.Logger(log)(
			middleware.RequestID(
				middleware.CORS(mux),
			),
		),
	)

	// Create HTTP server
	server := &http.Server{
		Addr:         ":" + *port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		log.Info().Str("port", *port).Msg("Starting API server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	// Cancel worker context
	cancelWorker()

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	// Stop job queue and wait for in-flight jobs
	if err := jobQueue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error stopping job queue")
	}

	if err := jobQueue.Close(); err != nil {
		log.Error().Err(err).Msg("Failed to close job queue")
	}

	log.Info().Msg("Server exited")
}
