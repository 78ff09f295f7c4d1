package firestore

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/sdancy10/Financial-Tracker-Backend/internal/domain"
)

// transactionDoc is the Firestore document shape for a stored transaction.
type transactionDoc struct {
	ID              string    `firestore:"id"`
	SourceMessageID string    `firestore:"source_message_id"`
	Date            time.Time `firestore:"date"`
	Description     string    `firestore:"description"`
	Amount          float64   `firestore:"amount"`
	Currency        string    `firestore:"currency"`
	AccountID       string    `firestore:"account_id"`
	UserID          string    `firestore:"user_id"`

	Vendor          string `firestore:"vendor"`
	VendorCleaned   string `firestore:"vendor_cleaned"`
	VendorMetaphone string `firestore:"vendor_metaphone"`
	Account         string `firestore:"account,omitempty"`

	Status string `firestore:"status"`

	Category             string    `firestore:"category,omitempty"`
	Subcategory          string    `firestore:"subcategory,omitempty"`
	PredictionConfidence float64   `firestore:"prediction_confidence"`
	LowConfidence        bool      `firestore:"low_confidence"`
	ModelVersion         string    `firestore:"model_version,omitempty"`
	PredictionSource     string    `firestore:"prediction_source,omitempty"`
	PredictedAt          time.Time `firestore:"predicted_at,omitempty"`

	TemplateUsed    string `firestore:"template_used"`
	TemplateVersion int    `firestore:"template_version"`

	Day     int    `firestore:"day"`
	Month   int    `firestore:"month"`
	Year    int    `firestore:"year"`
	DayName string `firestore:"day_name"`

	CreatedAt time.Time `firestore:"created_at"`
}

// TransactionStore persists transactions under each user's subcollection,
// keyed by the deterministic transaction ID.
type TransactionStore struct {
	client *firestore.Client
}

// NewTransactionStore creates a store with its own Firestore client.
func NewTransactionStore(ctx context.Context, projectID string) (*TransactionStore, error) {
	client, err := firestore.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("NewTransactionStore: creating client: %w", err)
	}
	return NewTransactionStoreWithClient(client), nil
}

// NewTransactionStoreWithClient creates a store over an existing client.
func NewTransactionStoreWithClient(client *firestore.Client) *TransactionStore {
	return &TransactionStore{client: client}
}

// Close closes the Firestore client connection.
func (s *TransactionStore) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

func (s *TransactionStore) doc(userID, id string) *firestore.DocumentRef {
	return s.client.Collection("users").Doc(userID).Collection("transactions").Doc(id)
}

// Exists reports whether a transaction with the given ID was already stored.
func (s *TransactionStore) Exists(ctx context.Context, userID, id string) (bool, error) {
	snap, err := s.doc(userID, id).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return false, nil
	}
	if err != nil {
		return false, wrapStoreErr("Exists", err)
	}
	return snap.Exists(), nil
}

// CreateIfAbsent writes the transaction unless one with the same ID already
// exists. Firestore's Create precondition makes the check-and-write atomic,
// so two workers racing on the same message produce exactly one document.
func (s *TransactionStore) CreateIfAbsent(ctx context.Context, tx *domain.Transaction) (bool, error) {
	_, err := s.doc(tx.UserID, tx.ID).Create(ctx, docFromTransaction(tx))
	if status.Code(err) == codes.AlreadyExists {
		return false, nil
	}
	if err != nil {
		return false, wrapStoreErr("CreateIfAbsent", err)
	}
	return true, nil
}

// Get fetches one stored transaction.
func (s *TransactionStore) Get(ctx context.Context, userID, id string) (*domain.Transaction, error) {
	snap, err := s.doc(userID, id).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return nil, fmt.Errorf("Get: transaction %s: %w", id, domain.ErrTransactionNotFound)
	}
	if err != nil {
		return nil, wrapStoreErr("Get", err)
	}

	var doc transactionDoc
	if err := snap.DataTo(&doc); err != nil {
		return nil, fmt.Errorf("Get: decoding transaction %s: %w", id, err)
	}
	return transactionFromDoc(&doc), nil
}

// wrapStoreErr classifies Firestore failures. Outage-shaped errors become
// StoreUnavailableError so batch processing knows to stop rather than fail
// every remaining message one by one.
func wrapStoreErr(op string, err error) error {
	switch status.Code(err) {
	case codes.Unavailable, codes.DeadlineExceeded, codes.ResourceExhausted:
		return &domain.StoreUnavailableError{Op: op, Err: err}
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}

func docFromTransaction(tx *domain.Transaction) *transactionDoc {
	doc := &transactionDoc{
		ID:                   tx.ID,
		SourceMessageID:      tx.SourceMessageID,
		Date:                 tx.Date,
		Description:          tx.Description,
		Amount:               tx.Amount,
		Currency:             tx.Currency,
		AccountID:            tx.AccountID,
		UserID:               tx.UserID,
		Vendor:               tx.Vendor,
		VendorCleaned:        tx.VendorCleaned,
		VendorMetaphone:      tx.VendorMetaphone,
		Account:              tx.Account,
		Status:               string(tx.Status),
		PredictionConfidence: tx.PredictionConfidence,
		LowConfidence:        tx.LowConfidence,
		ModelVersion:         tx.ModelVersion,
		PredictionSource:     tx.PredictionSource,
		PredictedAt:          tx.PredictedAt,
		TemplateUsed:         tx.TemplateUsed,
		TemplateVersion:      tx.TemplateVersion,
		Day:                  tx.Day,
		Month:                tx.Month,
		Year:                 tx.Year,
		DayName:              tx.DayName,
		CreatedAt:            tx.CreatedAt,
	}
	if tx.Category != nil {
		doc.Category = *tx.Category
	}
	if tx.Subcategory != nil {
		doc.Subcategory = *tx.Subcategory
	}
	return doc
}

func transactionFromDoc(doc *transactionDoc) *domain.Transaction {
	tx := &domain.Transaction{
		ID:                   doc.ID,
		SourceMessageID:      doc.SourceMessageID,
		Date:                 doc.Date,
		Description:          doc.Description,
		Amount:               doc.Amount,
		Currency:             doc.Currency,
		AccountID:            doc.AccountID,
		UserID:               doc.UserID,
		Vendor:               doc.Vendor,
		VendorCleaned:        doc.VendorCleaned,
		VendorMetaphone:      doc.VendorMetaphone,
		Account:              doc.Account,
		Status:               domain.Status(doc.Status),
		PredictionConfidence: doc.PredictionConfidence,
		LowConfidence:        doc.LowConfidence,
		ModelVersion:         doc.ModelVersion,
		PredictionSource:     doc.PredictionSource,
		PredictedAt:          doc.PredictedAt,
		TemplateUsed:         doc.TemplateUsed,
		TemplateVersion:      doc.TemplateVersion,
		Day:                  doc.Day,
		Month:                doc.Month,
		Year:                 doc.Year,
		DayName:              doc.DayName,
		CreatedAt:            doc.CreatedAt,
	}
	if doc.Category != "" {
		tx.Category = &doc.Category
	}
	if doc.Subcategory != "" {
		tx.Subcategory = &doc.Subcategory
	}
	return tx
}
