package domain

import (
	"time"
)

// Status is the lifecycle state of a Transaction. Transitions are monotone:
// pending -> processed or pending -> failed. Terminal states are never reopened;
// user corrections append Feedback records instead.
type Status string

const (
	StatusPending   Status = "pending"
	StatusProcessed Status = "processed"
	StatusFailed    Status = "failed"
)

// RawMessage is one transactional email as delivered by the mail-retrieval
// collaborator. Read-only to the pipeline.
type RawMessage struct {
	MessageID  string // globally unique per mail account
	AccountID  string // e.g. "gmail_user@example.com"
	UserID     string
	Sender     string
	Subject    string
	Body       string
	ReceivedAt time.Time
}

// CandidateTransaction is the extracted-but-unvalidated output of the template
// matcher. It exists only during a single pipeline run and is never persisted.
type CandidateTransaction struct {
	SourceMessageID string
	AccountID       string
	UserID          string
	TemplateID      string
	TemplateVersion int
	ExtractedFields map[string]string // field name -> raw captured string
	MatchConfidence float64
	ReceivedAt      time.Time
}

// Transaction is one durable, validated transaction record. ID is derived
// deterministically from the source message so redelivery recomputes the same id.
type Transaction struct {
	ID              string
	SourceMessageID string

	Date        time.Time // UTC instant
	Description string
	Amount      float64 // signed: debits negative, credits positive
	Currency    string
	AccountID   string
	UserID      string

	Vendor          string
	VendorCleaned   string
	VendorMetaphone string
	Account         string // last-4 account fragment captured from the email

	Status Status

	Category             *string
	Subcategory          *string
	PredictionConfidence float64
	LowConfidence        bool
	ModelVersion         string
	PredictionSource     string
	PredictedAt          time.Time

	TemplateUsed    string
	TemplateVersion int

	// Calendar components of Date in the account timezone, used by the
	// retraining feature set.
	Day     int
	Month   int
	Year    int
	DayName string

	CreatedAt time.Time
}

// Prediction is one category prediction from an inference backend.
type Prediction struct {
	Category      string
	Subcategory   string
	Confidence    float64
	ModelVersion  string
	Source        string // backend that produced it: cloud_function, vertex_ai, local
	PredictedAt   time.Time
	LowConfidence bool
}

// Feedback is an append-only user correction to a previously predicted
// category. Never updated or deleted.
type Feedback struct {
	FeedbackID           string
	TransactionID        string
	UserID               string
	OriginalCategory     string
	OriginalSubcategory  string
	UserCategory         string
	UserSubcategory      string
	PredictionConfidence float64
	ModelVersion         string
	Vendor               string
	VendorCleaned        string
	Amount               float64
	TemplateUsed         string
	FeedbackTimestamp    time.Time
	TransactionDate      time.Time
}
