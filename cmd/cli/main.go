package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/sdancy10/Financial-Tracker-Backend/internal/artifacts"
	"github.com/sdancy10/Financial-Tracker-Backend/internal/config"
	"github.com/sdancy10/Financial-Tracker-Backend/internal/feedback"
	"github.com/sdancy10/Financial-Tracker-Backend/internal/inference"
	infraBQ "github.com/sdancy10/Financial-Tracker-Backend/internal/infra/bigquery"
	infraFS "github.com/sdancy10/Financial-Tracker-Backend/internal/infra/firestore"
	"github.com/sdancy10/Financial-Tracker-Backend/internal/logger"
	"github.com/sdancy10/Financial-Tracker-Backend/internal/mailbox"
	"github.com/sdancy10/Financial-Tracker-Backend/internal/normalize"
	"github.com/sdancy10/Financial-Tracker-Backend/internal/pipeline"
	"github.com/sdancy10/Financial-Tracker-Backend/internal/template"
)

func main() {
	log := logger.New()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "process":
		runProcess(log)
	case "feedback":
		runFeedback(log)
	case "stats":
		runStats(log)
	case "export-training":
		runExportTraining(log)
	case "inspect":
		runInspect(log)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Transaction Pipeline CLI")
	fmt.Println("\nUsage:")
	fmt.Println("  cli <command> [options]")
	fmt.Println("\nCommands:")
	fmt.Println("  process          Process a user's mailbox export through the pipeline")
	fmt.Println("  feedback         Submit a category correction for a transaction")
	fmt.Println("  stats            Show feedback statistics and top corrected categories")
	fmt.Println("  export-training  Export recent training examples as JSON")
	fmt.Println("  inspect          Inspect a stored transaction")
	fmt.Println("  help             Show this help message")
	fmt.Println("\nRun 'cli <command> -h' for more information on a command.")
}

func loadConfig(path string, log zerolog.Logger) *config.Config {
	cfg, err := config.Load(path)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	return cfg
}

func runProcess(log zerolog.Logger) {
	fs := flag.NewFlagSet("process", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	userID := fs.String("user", "", "User ID to process")
	accountID := fs.String("account", "", "Restrict to one account (optional)")
	checkFrom := fs.String("check-from", "", "Only messages received after this time (RFC 3339)")
	fs.Parse(os.Args[2:])

	if *userID == "" {
		log.Fatal().Msg("Error: --user is required")
	}

	var since time.Time
	if *checkFrom != "" {
		t, err := time.Parse(time.RFC3339, *checkFrom)
		if err != nil {
			log.Fatal().Err(err).Msg("Error: --check-from must be RFC 3339")
		}
		since = t
	}

	cfg := loadConfig(*configPath, log)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

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

	msgs, err := source.Messages(ctx, *userID, *accountID, since, time.Now().UTC())
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load mailbox export")
	}

	result, err := processor.ProcessBatch(ctx, msgs)
	if err != nil {
		log.Fatal().Err(err).Msg("Batch processing failed")
	}

	fmt.Printf("Processed %d messages: %d stored, %d duplicates, %d no template, %d invalid, %d failed\n",
		result.Total, result.Processed, result.Duplicates, result.NoTemplate, result.Invalid, result.Failed)
}

func runFeedback(log zerolog.Logger) {
	fs := flag.NewFlagSet("feedback", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	transactionID := fs.String("transaction-id", "", "Transaction to correct")
	userID := fs.String("user", "", "User who owns the transaction")
	category := fs.String("category", "", "Corrected category")
	subcategory := fs.String("subcategory", "", "Corrected subcategory (optional)")
	fs.Parse(os.Args[2:])

	if *transactionID == "" || *userID == "" || *category == "" {
		log.Fatal().Msg("Usage: cli feedback -transaction-id ID -user USER -category NAME")
	}

	cfg := loadConfig(*configPath, log)

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	txStore, err := infraFS.NewTransactionStore(ctx, cfg.Project.ID)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create transaction store")
	}
	defer txStore.Close()

	repo, err := infraBQ.NewFeedbackRepository(ctx, cfg.Project.ID, cfg.Feedback.Dataset, cfg.Feedback.Table)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create feedback repository")
	}
	defer repo.Close()

	collector := feedback.NewCollector(txStore, repo, log)
	fb, err := collector.Submit(ctx, &feedback.Submission{
		TransactionID: *transactionID,
		UserID:        *userID,
		Category:      *category,
		Subcategory:   *subcategory,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Feedback submission failed")
	}

	fmt.Printf("Recorded feedback %s: %q -> %q\n", fb.FeedbackID, fb.OriginalCategory, fb.UserCategory)
}

func runStats(log zerolog.Logger) {
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	userID := fs.String("user", "", "Scope stats to one user (optional)")
	limit := fs.Int("limit", 10, "How many corrected categories to list")
	fs.Parse(os.Args[2:])

	cfg := loadConfig(*configPath, log)

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	repo, err := infraBQ.NewFeedbackRepository(ctx, cfg.Project.ID, cfg.Feedback.Dataset, cfg.Feedback.Table)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create feedback repository")
	}
	defer repo.Close()

	stats, err := repo.Stats(ctx, *userID)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to query feedback stats")
	}

	fmt.Println("\n=== Feedback ===")
	fmt.Printf("Total:       %d\n", stats.Total)
	fmt.Printf("Corrections: %d\n", stats.Corrections)
	fmt.Printf("Agreement:   %.1f%%\n", stats.Agreement*100)

	corrections, err := repo.CategoryCorrections(ctx, *limit)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to query category corrections")
	}

	fmt.Printf("\n=== Most corrected categories (%d) ===\n", len(corrections))
	for i, c := range corrections {
		name := c.OriginalCategory
		if name == "" {
			name = "(uncategorized)"
		}
		fmt.Printf("%d. %-30s %d\n", i+1, name, c.Corrections)
	}

	accuracy, err := repo.AccuracyByModelVersion(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to query model accuracy")
	}

	fmt.Println("\n=== Accuracy by model version ===")
	for _, a := range accuracy {
		version := "(unknown)"
		if a.ModelVersion.Valid {
			version = a.ModelVersion.StringVal
		}
		fmt.Printf("%-20s total=%-6d accuracy=%.1f%%\n", version, a.Total, a.Accuracy*100)
	}
	fmt.Println()
}

func runExportTraining(log zerolog.Logger) {
	fs := flag.NewFlagSet("export-training", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	out := fs.String("out", "training_examples.json", "Output file path")
	bucket := fs.String("bucket", "", "Upload the export to this GCS bucket (optional)")
	fs.Parse(os.Args[2:])

	cfg := loadConfig(*configPath, log)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	repo, err := infraBQ.NewFeedbackRepository(ctx, cfg.Project.ID, cfg.Feedback.Dataset, cfg.Feedback.Table)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create feedback repository")
	}
	defer repo.Close()

	// The retraining gate: do not bother exporting a handful of labels
	since := time.Now().AddDate(0, 0, -cfg.Feedback.LookbackDays)
	count, err := repo.CountFeedbackSince(ctx, since)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to count recent feedback")
	}
	if count < int64(cfg.Feedback.MinCount) {
		fmt.Printf("Only %d feedback rows in the last %d days (minimum %d), nothing exported.\n",
			count, cfg.Feedback.LookbackDays, cfg.Feedback.MinCount)
		return
	}

	examples, err := repo.TrainingExamples(ctx, cfg.Feedback.LookbackDays)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to query training examples")
	}

	data, err := json.MarshalIndent(examples, "", "  ")
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to encode training examples")
	}
	if err := os.WriteFile(*out, data, 0o644); err != nil {
		log.Fatal().Err(err).Msg("Failed to write export file")
	}

	fmt.Printf("Exported %d training examples to %s\n", len(examples), *out)

	if *bucket != "" {
		object := filepath.Base(*out)
		if err := artifacts.Upload(ctx, *bucket, object, *out); err != nil {
			log.Fatal().Err(err).Msg("Upload failed")
		}
		fmt.Printf("Uploaded %s to gs://%s/%s\n", *out, *bucket, object)
	}
}

func runInspect(log zerolog.Logger) {
	fs := flag.NewFlagSet("inspect", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	transactionID := fs.String("transaction-id", "", "Transaction ID to inspect")
	userID := fs.String("user", "", "User who owns the transaction")
	fs.Parse(os.Args[2:])

	if *transactionID == "" || *userID == "" {
		log.Fatal().Msg("Usage: cli inspect -transaction-id ID -user USER")
	}

	cfg := loadConfig(*configPath, log)

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	txStore, err := infraFS.NewTransactionStore(ctx, cfg.Project.ID)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create transaction store")
	}
	defer txStore.Close()

	tx, err := txStore.Get(ctx, *userID, *transactionID)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load transaction")
	}

	fmt.Println("\n=== Transaction ===")
	fmt.Printf("ID:          %s\n", tx.ID)
	fmt.Printf("Message:     %s\n", tx.SourceMessageID)
	fmt.Printf("Date:        %s\n", tx.Date.Format(time.RFC3339))
	fmt.Printf("Description: %s\n", tx.Description)
	fmt.Printf("Amount:      %.2f %s\n", tx.Amount, tx.Currency)
	fmt.Printf("Vendor:      %s (%s)\n", tx.Vendor, tx.VendorCleaned)
	fmt.Printf("Status:      %s\n", tx.Status)
	fmt.Printf("Template:    %s v%d\n", tx.TemplateUsed, tx.TemplateVersion)
	if tx.Category != nil {
		fmt.Printf("Category:    %s", *tx.Category)
		if tx.Subcategory != nil {
			fmt.Printf(" / %s", *tx.Subcategory)
		}
		fmt.Println()
		fmt.Printf("Confidence:  %.2f (source %s, model %s)\n",
			tx.PredictionConfidence, tx.PredictionSource, tx.ModelVersion)
		if tx.LowConfidence {
			fmt.Println("Flagged:     low confidence")
		}
	} else {
		fmt.Println("Category:    (none)")
	}
	fmt.Println()
}
