package pipeline

import (
	"context"

	"github.com/sdancy10/Financial-Tracker-Backend/internal/domain"
)

// TemplateMatcher finds the first template whose rules match a raw message.
type TemplateMatcher interface {
	Match(msg domain.RawMessage) (*domain.CandidateTransaction, error)
}

// TransactionStore persists transactions keyed by their deterministic ID.
type TransactionStore interface {
	// Exists reports whether a transaction with the given ID was already
	// stored. Used to skip duplicates before any inference work is spent.
	Exists(ctx context.Context, userID, id string) (bool, error)

	// CreateIfAbsent writes the transaction unless one with the same ID
	// already exists. Returns false when the write was skipped.
	CreateIfAbsent(ctx context.Context, tx *domain.Transaction) (bool, error)
}

// Predictor assigns a category and subcategory to a transaction.
type Predictor interface {
	Predict(ctx context.Context, tx *domain.Transaction) (*domain.Prediction, error)
}
