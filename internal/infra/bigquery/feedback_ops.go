package bigquery

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/iterator"
)

// InsertFeedbackWithClient appends a feedback row. The row's feedback_id is
// used as the streaming insert ID, so retrying the same submission does not
// produce a second row.
func InsertFeedbackWithClient(ctx context.Context, client *bigquery.Client, dataset, table string, row *FeedbackRow) error {
	saver := &bigquery.StructSaver{
		Struct:   row,
		InsertID: row.FeedbackID,
	}
	inserter := client.Dataset(dataset).Table(table).Inserter()
	if err := inserter.Put(ctx, saver); err != nil {
		return fmt.Errorf("InsertFeedback: inserting row: %w", err)
	}
	return nil
}

// QueryFeedbackStatsWithClient summarizes agreement between predictions and
// user corrections, optionally scoped to one user.
func QueryFeedbackStatsWithClient(ctx context.Context, client *bigquery.Client, dataset, table, userID string) (*FeedbackStats, error) {
	q := client.Query(fmt.Sprintf(`
		SELECT
			COUNT(*) AS total,
			COUNTIF(user_category != original_category) AS corrections,
			SAFE_DIVIDE(COUNTIF(user_category = original_category), COUNT(*)) AS agreement
		FROM %s.%s
		WHERE @user_id = '' OR user_id = @user_id
	`, dataset, table))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "user_id", Value: userID},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("QueryFeedbackStats: query read: %w", err)
	}

	var stats FeedbackStats
	if err := it.Next(&stats); err != nil && err != iterator.Done {
		return nil, fmt.Errorf("QueryFeedbackStats: iter next: %w", err)
	}
	return &stats, nil
}

// QueryCategoryCorrectionsWithClient lists the predicted categories users
// correct most often.
func QueryCategoryCorrectionsWithClient(ctx context.Context, client *bigquery.Client, dataset, table string, limit int) ([]*CategoryCorrection, error) {
	q := client.Query(fmt.Sprintf(`
		SELECT
			original_category,
			COUNT(*) AS corrections
		FROM %s.%s
		WHERE user_category != original_category
		GROUP BY original_category
		ORDER BY corrections DESC
		LIMIT @limit
	`, dataset, table))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "limit", Value: int64(limit)},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("QueryCategoryCorrections: query read: %w", err)
	}

	var rows []*CategoryCorrection
	for {
		var r CategoryCorrection
		err := it.Next(&r)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("QueryCategoryCorrections: iter next: %w", err)
		}
		rows = append(rows, &r)
	}
	return rows, nil
}

// QueryAccuracyByModelVersionWithClient computes per-model-version accuracy,
// treating an uncorrected prediction as a correct one.
func QueryAccuracyByModelVersionWithClient(ctx context.Context, client *bigquery.Client, dataset, table string) ([]*ModelAccuracy, error) {
	q := client.Query(fmt.Sprintf(`
		SELECT
			model_version,
			COUNT(*) AS total,
			SAFE_DIVIDE(COUNTIF(user_category = original_category), COUNT(*)) AS accuracy
		FROM %s.%s
		GROUP BY model_version
		ORDER BY model_version
	`, dataset, table))

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("QueryAccuracyByModelVersion: query read: %w", err)
	}

	var rows []*ModelAccuracy
	for {
		var r ModelAccuracy
		err := it.Next(&r)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("QueryAccuracyByModelVersion: iter next: %w", err)
		}
		rows = append(rows, &r)
	}
	return rows, nil
}

// QueryTrainingExamplesWithClient exports labeled examples from the lookback
// window for the next training run. When a transaction received several
// corrections, the latest one wins.
func QueryTrainingExamplesWithClient(ctx context.Context, client *bigquery.Client, dataset, table string, lookbackDays int) ([]*TrainingExample, error) {
	q := client.Query(fmt.Sprintf(`
		SELECT
			vendor_cleaned,
			amount,
			template_used,
			user_category AS category,
			IFNULL(user_subcategory, '') AS subcategory,
			feedback_timestamp AS labeled_at
		FROM %s.%s
		WHERE feedback_timestamp >= TIMESTAMP_SUB(CURRENT_TIMESTAMP(), INTERVAL @lookback_days DAY)
		QUALIFY ROW_NUMBER() OVER (PARTITION BY transaction_id ORDER BY feedback_timestamp DESC) = 1
	`, dataset, table))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "lookback_days", Value: int64(lookbackDays)},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("QueryTrainingExamples: query read: %w", err)
	}

	var rows []*TrainingExample
	for {
		var r TrainingExample
		err := it.Next(&r)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("QueryTrainingExamples: iter next: %w", err)
		}
		rows = append(rows, &r)
	}
	return rows, nil
}

// CountFeedbackSinceWithClient counts feedback rows newer than the cutoff.
// Drives the retraining gate: no export until enough corrections exist.
func CountFeedbackSinceWithClient(ctx context.Context, client *bigquery.Client, dataset, table string, since time.Time) (int64, error) {
	q := client.Query(fmt.Sprintf(`
		SELECT COUNT(*) AS total
		FROM %s.%s
		WHERE feedback_timestamp >= @since
	`, dataset, table))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "since", Value: since},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return 0, fmt.Errorf("CountFeedbackSince: query read: %w", err)
	}

	var row struct {
		Total int64 `bigquery:"total"`
	}
	if err := it.Next(&row); err != nil && err != iterator.Done {
		return 0, fmt.Errorf("CountFeedbackSince: iter next: %w", err)
	}
	return row.Total, nil
}
