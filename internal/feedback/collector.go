package feedback

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/sdancy10/Financial-Tracker-Backend/internal/domain"
	infra "github.com/sdancy10/Financial-Tracker-Backend/internal/infra/bigquery"
)

// feedbackNamespace fixes the ID derivation for feedback records. A user
// resubmitting the identical correction yields the identical feedback_id,
// which the append layer deduplicates.
var feedbackNamespace = uuid.MustParse("7c29e1ab-90d4-4a3b-8a66-51f0d9b2ce13")

// Submission is one user correction as it arrives from the API or CLI.
type Submission struct {
	TransactionID string `json:"transaction_id"`
	UserID        string `json:"user_id"`
	Category      string `json:"category"`
	Subcategory   string `json:"subcategory,omitempty"`
}

// TransactionGetter loads a stored transaction so the collector can snapshot
// the original prediction alongside the correction.
type TransactionGetter interface {
	Get(ctx context.Context, userID, id string) (*domain.Transaction, error)
}

// Sink appends feedback rows.
type Sink interface {
	InsertFeedback(ctx context.Context, row *infra.FeedbackRow) error
}

// Collector turns corrections into append-only feedback records. It never
// touches the transaction itself: the stored prediction stays as the model
// made it, and the correction lives next to it as training signal.
type Collector struct {
	transactions TransactionGetter
	sink         Sink
	log          zerolog.Logger
}

func NewCollector(transactions TransactionGetter, sink Sink, log zerolog.Logger) *Collector {
	return &Collector{transactions: transactions, sink: sink, log: log}
}

// FeedbackID derives the deterministic ID for a correction.
func FeedbackID(transactionID, category, subcategory string) string {
	key := transactionID + ":" + category + ":" + subcategory
	return uuid.NewSHA1(feedbackNamespace, []byte(key)).String()
}

// Submit validates the correction, snapshots the transaction's original
// prediction, and appends the feedback record.
func (c *Collector) Submit(ctx context.Context, sub *Submission) (*domain.Feedback, error) {
	if err := validateSubmission(sub); err != nil {
		return nil, err
	}

	tx, err := c.transactions.Get(ctx, sub.UserID, sub.TransactionID)
	if err != nil {
		return nil, fmt.Errorf("Submit: loading transaction %s: %w", sub.TransactionID, err)
	}

	fb := &domain.Feedback{
		FeedbackID:           FeedbackID(sub.TransactionID, sub.Category, sub.Subcategory),
		TransactionID:        tx.ID,
		UserID:               tx.UserID,
		UserCategory:         sub.Category,
		UserSubcategory:      sub.Subcategory,
		PredictionConfidence: tx.PredictionConfidence,
		ModelVersion:         tx.ModelVersion,
		Vendor:               tx.Vendor,
		VendorCleaned:        tx.VendorCleaned,
		Amount:               tx.Amount,
		TemplateUsed:         tx.TemplateUsed,
		FeedbackTimestamp:    time.Now().UTC(),
		TransactionDate:      tx.Date,
	}
	if tx.Category != nil {
		fb.OriginalCategory = *tx.Category
	}
	if tx.Subcategory != nil {
		fb.OriginalSubcategory = *tx.Subcategory
	}

	if err := c.sink.InsertFeedback(ctx, infra.RowFromFeedback(fb)); err != nil {
		return nil, fmt.Errorf("Submit: appending feedback %s: %w", fb.FeedbackID, err)
	}

	c.log.Info().
		Str("feedback_id", fb.FeedbackID).
		Str("transaction_id", fb.TransactionID).
		Str("original_category", fb.OriginalCategory).
		Str("user_category", fb.UserCategory).
		Msg("feedback recorded")
	return fb, nil
}

func validateSubmission(sub *Submission) error {
	var violations []string
	if strings.TrimSpace(sub.TransactionID) == "" {
		violations = append(violations, "transaction_id: missing")
	}
	if strings.TrimSpace(sub.UserID) == "" {
		violations = append(violations, "user_id: missing")
	}
	if strings.TrimSpace(sub.Category) == "" {
		violations = append(violations, "category: missing")
	}
	if len(violations) > 0 {
		return &domain.ValidationError{Violations: violations}
	}
	return nil
}
