package main

import (
	"context"
	"crypto/sha256"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"cloud.google.com/go/bigquery"
	"github.com/rs/zerolog"
	"google.golang.org/api/iterator"

	"github.com/sdancy10/Financial-Tracker-Backend/internal/config"
	"github.com/sdancy10/Financial-Tracker-Backend/internal/logger"
)

// ledgerTable records which migrations have run against the feedback dataset.
const ledgerTable = "pipeline_migrations"

// migration is one SQL file from the migrations directory, rendered against
// the target project and dataset.
type migration struct {
	Version  int
	Name     string
	SQL      string
	Checksum string
}

// appliedRow is a ledger record for a migration that already ran.
type appliedRow struct {
	Version  int
	Name     string
	Checksum string
}

func main() {
	configPath := flag.String("config", "config.yaml", "Path to config file")
	dataset := flag.String("dataset", "", "Override the feedback dataset from config")
	dir := flag.String("migrations", "migrations/bigquery", "Path to migrations directory")
	appliedBy := flag.String("applied-by", "migrate", "Name recorded against applied migrations")
	dryRun := flag.Bool("dry-run", false, "List pending migrations without applying them")
	flag.Parse()

	log := logger.New()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	ds := cfg.Feedback.Dataset
	if *dataset != "" {
		ds = *dataset
	}

	ctx := context.Background()
	client, err := bigquery.NewClient(ctx, cfg.Project.ID)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create BigQuery client")
	}
	defer client.Close()

	log.Info().
		Str("project", cfg.Project.ID).
		Str("dataset", ds).
		Msg("connected to BigQuery")

	r := &runner{
		client:    client,
		project:   cfg.Project.ID,
		dataset:   ds,
		appliedBy: *appliedBy,
		log:       log,
	}

	migrations, err := loadMigrations(*dir, r.project, r.dataset)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load migrations")
	}
	log.Info().Int("count", len(migrations)).Msg("migration files found")

	if err := r.ensureLedger(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to ensure migration ledger")
	}

	applied, err := r.applied(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to read migration ledger")
	}

	ran := 0
	for _, m := range migrations {
		if row, ok := applied[m.Version]; ok {
			if row.Checksum != "" && row.Checksum != m.Checksum {
				log.Warn().
					Int("version", m.Version).
					Str("name", m.Name).
					Msg("applied migration differs from file on disk")
			}
			continue
		}

		if *dryRun {
			log.Info().Int("version", m.Version).Str("name", m.Name).Msg("pending")
			continue
		}

		log.Info().Int("version", m.Version).Str("name", m.Name).Msg("applying")
		if err := r.apply(ctx, m); err != nil {
			log.Fatal().Err(err).Int("version", m.Version).Str("name", m.Name).Msg("migration failed")
		}
		if err := r.record(ctx, m); err != nil {
			log.Fatal().Err(err).Int("version", m.Version).Str("name", m.Name).Msg("failed to record migration")
		}
		ran++
	}

	if *dryRun {
		return
	}
	if ran == 0 {
		log.Info().Msg("dataset is up to date")
		return
	}
	log.Info().Int("applied", ran).Msg("migrations applied")
}

type runner struct {
	client    *bigquery.Client
	project   string
	dataset   string
	appliedBy string
	log       zerolog.Logger
}

func (r *runner) ledger() string {
	return fmt.Sprintf("`%s.%s.%s`", r.project, r.dataset, ledgerTable)
}

func (r *runner) ensureLedger(ctx context.Context) error {
	sql := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			version    INT64 NOT NULL,
			name       STRING NOT NULL,
			applied_at TIMESTAMP NOT NULL,
			checksum   STRING,
			applied_by STRING
		)
	`, r.ledger())

	if err := r.run(ctx, r.client.Query(sql)); err != nil {
		return fmt.Errorf("ensureLedger: %w", err)
	}
	return nil
}

// applied returns the ledger rows keyed by version.
func (r *runner) applied(ctx context.Context) (map[int]appliedRow, error) {
	sql := fmt.Sprintf(`
		SELECT version, name, checksum
		FROM %s
		ORDER BY version
	`, r.ledger())

	it, err := r.client.Query(sql).Read(ctx)
	if err != nil {
		// The ledger may have been created moments ago and not be
		// queryable yet.
		if strings.Contains(err.Error(), "Not found") {
			return map[int]appliedRow{}, nil
		}
		return nil, fmt.Errorf("applied: reading ledger: %w", err)
	}

	rows := make(map[int]appliedRow)
	for {
		var row struct {
			Version  int64
			Name     string
			Checksum bigquery.NullString
		}
		err := it.Next(&row)
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("applied: iterating ledger: %w", err)
		}
		rows[int(row.Version)] = appliedRow{
			Version:  int(row.Version),
			Name:     row.Name,
			Checksum: row.Checksum.StringVal,
		}
	}
	return rows, nil
}

func (r *runner) apply(ctx context.Context, m migration) error {
	if err := r.run(ctx, r.client.Query(m.SQL)); err != nil {
		return fmt.Errorf("apply: %w", err)
	}
	return nil
}

func (r *runner) record(ctx context.Context, m migration) error {
	sql := fmt.Sprintf(`
		INSERT INTO %s (version, name, applied_at, checksum, applied_by)
		VALUES (@version, @name, CURRENT_TIMESTAMP(), @checksum, @applied_by)
	`, r.ledger())

	q := r.client.Query(sql)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "version", Value: m.Version},
		{Name: "name", Value: m.Name},
		{Name: "checksum", Value: m.Checksum},
		{Name: "applied_by", Value: r.appliedBy},
	}
	if err := r.run(ctx, q); err != nil {
		return fmt.Errorf("record: %w", err)
	}
	return nil
}

func (r *runner) run(ctx context.Context, q *bigquery.Query) error {
	job, err := q.Run(ctx)
	if err != nil {
		return fmt.Errorf("running query: %w", err)
	}
	status, err := job.Wait(ctx)
	if err != nil {
		return fmt.Errorf("waiting for job: %w", err)
	}
	if err := status.Err(); err != nil {
		return fmt.Errorf("job error: %w", err)
	}
	return nil
}

// migrationFilePattern matches versioned migration files like
// 0001_create_ml_feedback.sql.
var migrationFilePattern = regexp.MustCompile(`^(\d{4})_(.+)\.sql$`)

// parseMigrationFilename extracts the version and name from a migration
// filename, reporting whether the filename is a migration at all.
func parseMigrationFilename(filename string) (int, string, bool) {
	matches := migrationFilePattern.FindStringSubmatch(filename)
	if matches == nil {
		return 0, "", false
	}
	version, err := strconv.Atoi(matches[1])
	if err != nil {
		return 0, "", false
	}
	return version, matches[2], true
}

// renderSQL substitutes the project and dataset placeholders so the same
// migration files apply to any environment.
func renderSQL(content []byte, project, dataset string) string {
	sql := strings.ReplaceAll(string(content), "{{PROJECT_ID}}", project)
	return strings.ReplaceAll(sql, "{{DATASET_ID}}", dataset)
}

// fileChecksum hashes the raw file content, before placeholder substitution,
// so the same migration applied to different environments compares equal.
func fileChecksum(content []byte) string {
	return fmt.Sprintf("%x", sha256.Sum256(content))
}

// loadMigrations reads the migrations directory and returns the rendered
// migrations sorted by version.
func loadMigrations(dir, project, dataset string) ([]migration, error) {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return nil, fmt.Errorf("loadMigrations: directory not found: %s", dir)
	}

	files, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("loadMigrations: reading directory: %w", err)
	}

	var migrations []migration
	for _, file := range files {
		if file.IsDir() {
			continue
		}
		version, name, ok := parseMigrationFilename(file.Name())
		if !ok {
			continue
		}
		content, err := os.ReadFile(filepath.Join(dir, file.Name()))
		if err != nil {
			return nil, fmt.Errorf("loadMigrations: reading %s: %w", file.Name(), err)
		}
		migrations = append(migrations, migration{
			Version:  version,
			Name:     name,
			SQL:      renderSQL(content, project, dataset),
			Checksum: fileChecksum(content),
		})
	}

	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].Version < migrations[j].Version
	})
	return migrations, nil
}
