package bigquery

import (
	"time"

	"cloud.google.com/go/bigquery"

	"github.com/sdancy10/Financial-Tracker-Backend/internal/domain"
)

// FeedbackRow is the ml_feedback table schema. The table is append-only;
// corrections never rewrite the transaction they refer to.
type FeedbackRow struct {
	FeedbackID    string `bigquery:"feedback_id"`
	TransactionID string `bigquery:"transaction_id"`
	UserID        string `bigquery:"user_id"`

	OriginalCategory    string              `bigquery:"original_category"`
	OriginalSubcategory bigquery.NullString `bigquery:"original_subcategory"`
	UserCategory        string              `bigquery:"user_category"`
	UserSubcategory     bigquery.NullString `bigquery:"user_subcategory"`

	PredictionConfidence float64             `bigquery:"prediction_confidence"`
	ModelVersion         bigquery.NullString `bigquery:"model_version"`

	Vendor        string  `bigquery:"vendor"`
	VendorCleaned string  `bigquery:"vendor_cleaned"`
	Amount        float64 `bigquery:"amount"`
	TemplateUsed  string  `bigquery:"template_used"`

	FeedbackTimestamp time.Time `bigquery:"feedback_timestamp"`
	TransactionDate   time.Time `bigquery:"transaction_date"`
}

// RowFromFeedback converts a domain feedback record into its table row.
func RowFromFeedback(f *domain.Feedback) *FeedbackRow {
	return &FeedbackRow{
		FeedbackID:           f.FeedbackID,
		TransactionID:        f.TransactionID,
		UserID:               f.UserID,
		OriginalCategory:     f.OriginalCategory,
		OriginalSubcategory:  nullString(f.OriginalSubcategory),
		UserCategory:         f.UserCategory,
		UserSubcategory:      nullString(f.UserSubcategory),
		PredictionConfidence: f.PredictionConfidence,
		ModelVersion:         nullString(f.ModelVersion),
		Vendor:               f.Vendor,
		VendorCleaned:        f.VendorCleaned,
		Amount:               f.Amount,
		TemplateUsed:         f.TemplateUsed,
		FeedbackTimestamp:    f.FeedbackTimestamp,
		TransactionDate:      f.TransactionDate,
	}
}

func nullString(s string) bigquery.NullString {
	return bigquery.NullString{StringVal: s, Valid: s != ""}
}

// FeedbackStats summarizes how the model's predictions held up against user
// corrections.
type FeedbackStats struct {
	Total       int64   `bigquery:"total"`
	Corrections int64   `bigquery:"corrections"`
	Agreement   float64 `bigquery:"agreement"`
}

// CategoryCorrection counts corrections away from one predicted category.
type CategoryCorrection struct {
	OriginalCategory string `bigquery:"original_category"`
	Corrections      int64  `bigquery:"corrections"`
}

// ModelAccuracy is per-model-version prediction accuracy.
type ModelAccuracy struct {
	ModelVersion bigquery.NullString `bigquery:"model_version"`
	Total        int64               `bigquery:"total"`
	Accuracy     float64             `bigquery:"accuracy"`
}

// TrainingExample is one labeled example for the next training run: the
// transaction features plus the user's corrected label.
type TrainingExample struct {
	VendorCleaned string    `bigquery:"vendor_cleaned"`
	Amount        float64   `bigquery:"amount"`
	TemplateUsed  string    `bigquery:"template_used"`
	Category      string    `bigquery:"category"`
	Subcategory   string    `bigquery:"subcategory"`
	LabeledAt     time.Time `bigquery:"labeled_at"`
}
