package bigquery

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"
)

// FeedbackRepository is the concrete feedback store over BigQuery. It holds
// a shared client to avoid creating a new connection for each operation.
type FeedbackRepository struct {
	client  *bigquery.Client
	dataset string
	table   string
}

// NewFeedbackRepository creates a repository with its own BigQuery client.
func NewFeedbackRepository(ctx context.Context, projectID, dataset, table string) (*FeedbackRepository, error) {
	client, err := bigquery.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("NewFeedbackRepository: creating client: %w", err)
	}
	return NewFeedbackRepositoryWithClient(client, dataset, table), nil
}

// NewFeedbackRepositoryWithClient creates a repository over an existing
// client. The caller keeps ownership of the client.
func NewFeedbackRepositoryWithClient(client *bigquery.Client, dataset, table string) *FeedbackRepository {
	return &FeedbackRepository{client: client, dataset: dataset, table: table}
}

// Close closes the BigQuery client connection.
func (r *FeedbackRepository) Close() error {
	if r.client != nil {
		return r.client.Close()
	}
	return nil
}

// InsertFeedback delegates to InsertFeedbackWithClient with the shared client.
func (r *FeedbackRepository) InsertFeedback(ctx context.Context, row *FeedbackRow) error {
	return InsertFeedbackWithClient(ctx, r.client, r.dataset, r.table, row)
}

// Stats delegates to QueryFeedbackStatsWithClient with the shared client.
func (r *FeedbackRepository) Stats(ctx context.Context, userID string) (*FeedbackStats, error) {
	return QueryFeedbackStatsWithClient(ctx, r.client, r.dataset, r.table, userID)
}

// CategoryCorrections delegates to QueryCategoryCorrectionsWithClient with the shared client.
func (r *FeedbackRepository) CategoryCorrections(ctx context.Context, limit int) ([]*CategoryCorrection, error) {
	return QueryCategoryCorrectionsWithClient(ctx, r.client, r.dataset, r.table, limit)
}

// AccuracyByModelVersion delegates to QueryAccuracyByModelVersionWithClient with the shared client.
func (r *FeedbackRepository) AccuracyByModelVersion(ctx context.Context) ([]*ModelAccuracy, error) {
	return QueryAccuracyByModelVersionWithClient(ctx, r.client, r.dataset, r.table)
}

// TrainingExamples delegates to QueryTrainingExamplesWithClient with the shared client.
func (r *FeedbackRepository) TrainingExamples(ctx context.Context, lookbackDays int) ([]*TrainingExample, error) {
	return QueryTrainingExamplesWithClient(ctx, r.client, r.dataset, r.table, lookbackDays)
}

// CountFeedbackSince delegates to CountFeedbackSinceWithClient with the shared client.
func (r *FeedbackRepository) CountFeedbackSince(ctx context.Context, since time.Time) (int64, error) {
	return CountFeedbackSinceWithClient(ctx, r.client, r.dataset, r.table, since)
}
