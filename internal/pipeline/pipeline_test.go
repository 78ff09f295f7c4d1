package pipeline

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sdancy10/Financial-Tracker-Backend/internal/domain"
	"github.com/sdancy10/Financial-Tracker-Backend/internal/normalize"
	"github.com/sdancy10/Financial-Tracker-Backend/internal/template"
)

type fakeStore struct {
	mu        sync.Mutex
	existing  map[string]bool
	created   []*domain.Transaction
	existsErr error
	createErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{existing: make(map[string]bool)}
}

func (s *fakeStore) Exists(ctx context.Context, userID, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.existsErr != nil {
		return false, s.existsErr
	}
	return s.existing[id], nil
}

func (s *fakeStore) CreateIfAbsent(ctx context.Context, tx *domain.Transaction) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return false, s.createErr
	}
	if s.existing[tx.ID] {
		return false, nil
	}
	s.existing[tx.ID] = true
	s.created = append(s.created, tx)
	return true, nil
}

type fakePredictor struct {
	mu         sync.Mutex
	prediction *domain.Prediction
	err        error
	calls      int
}

func (p *fakePredictor) Predict(ctx context.Context, tx *domain.Transaction) (*domain.Prediction, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if p.err != nil {
		return nil, p.err
	}
	return p.prediction, nil
}

func debitTemplates(t *testing.T) *template.Store {
	store, err := template.NewStore([]*template.Template{
		{
			ID:             "test-bank-debit",
			Version:        2,
			Direction:      template.DirectionDebit,
			SenderContains: "bank",
			Fields: map[string]string{
				"amount":  `charge of \$([0-9,.]+) at`,
				"vendor":  ` at ([A-Z ]+?) on `,
				"date":    ` on (\d{4}-\d{2}-\d{2})`,
				"account": `card ending (\d{4})`,
			},
		},
	})
	require.NoError(t, err)
	return store
}

func debitMessage(id string) domain.RawMessage {
	return domain.RawMessage{
		MessageID:  id,
		AccountID:  "acct-1",
		UserID:     "user-1",
		Sender:     "alerts@bank.example.com",
		Subject:    "Debit card transaction",
		Body:       "A charge of $42.17 at COFFEE SHOP on 2024-03-01 with your card ending 1234.",
		ReceivedAt: time.Date(2024, 3, 1, 14, 30, 0, 0, time.UTC),
	}
}

func newTestProcessor(t *testing.T, store TransactionStore, predictor Predictor, workers int) *Processor {
	templates := debitTemplates(t)
	log := zerolog.Nop()
	p := NewMessagePipeline(
		template.NewMatcher(templates, log),
		normalize.New(time.UTC, "USD"),
		templates,
		defaultValidator(),
		store,
		predictor,
	)
	return NewProcessor(p, workers, log)
}

func TestProcessMessage_HappyPath(t *testing.T) {
	store := newFakeStore()
	predictor := &fakePredictor{prediction: &domain.Prediction{
		Category:     "Food & Dining",
		Subcategory:  "Coffee Shops",
		Confidence:   0.93,
		ModelVersion: "v3",
		Source:       "cloud_function",
		PredictedAt:  time.Now().UTC(),
	}}
	proc := newTestProcessor(t, store, predictor, 1)

	outcome, err := proc.ProcessMessage(context.Background(), debitMessage("msg-1"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeProcessed, outcome)

	require.Len(t, store.created, 1)
	tx := store.created[0]
	assert.Equal(t, TransactionID("user-1", "msg-1"), tx.ID)
	assert.Equal(t, -42.17, tx.Amount)
	assert.Equal(t, "USD", tx.Currency)
	assert.Equal(t, "coffee shop", tx.Description)
	assert.Equal(t, "coffee shop", tx.VendorCleaned)
	assert.Equal(t, "1234", tx.Account)
	assert.Equal(t, "test-bank-debit", tx.TemplateUsed)
	assert.Equal(t, 2, tx.TemplateVersion)
	assert.Equal(t, domain.StatusProcessed, tx.Status)
	require.NotNil(t, tx.Category)
	assert.Equal(t, "Food & Dining", *tx.Category)
	require.NotNil(t, tx.Subcategory)
	assert.Equal(t, "Coffee Shops", *tx.Subcategory)
	assert.Equal(t, 0.93, tx.PredictionConfidence)
	assert.Equal(t, "cloud_function", tx.PredictionSource)
}

func TestProcessMessage_DuplicateSkippedBeforePrediction(t *testing.T) {
	store := newFakeStore()
	store.existing[TransactionID("user-1", "msg-1")] = true
	predictor := &fakePredictor{prediction: &domain.Prediction{Category: "Food & Dining"}}
	proc := newTestProcessor(t, store, predictor, 1)

	outcome, err := proc.ProcessMessage(context.Background(), debitMessage("msg-1"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeDuplicate, outcome)
	assert.Equal(t, 0, predictor.calls, "duplicates must not reach the predictor")
	assert.Empty(t, store.created)
}

func TestProcessMessage_NoPredictionPersistsUnscored(t *testing.T) {
	store := newFakeStore()
	predictor := &fakePredictor{err: domain.ErrNoPredictionAvailable}
	proc := newTestProcessor(t, store, predictor, 1)

	outcome, err := proc.ProcessMessage(context.Background(), debitMessage("msg-1"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeProcessed, outcome)

	require.Len(t, store.created, 1)
	tx := store.created[0]
	assert.Nil(t, tx.Category)
	assert.Nil(t, tx.Subcategory)
	assert.Equal(t, domain.StatusProcessed, tx.Status)
	assert.Zero(t, tx.PredictionConfidence)
}

func TestProcessMessage_NoTemplate(t *testing.T) {
	store := newFakeStore()
	proc := newTestProcessor(t, store, &fakePredictor{prediction: &domain.Prediction{Category: "X"}}, 1)

	msg := debitMessage("msg-1")
	msg.Sender = "newsletter@shopping.example.com"
	msg.Body = "Big sale this weekend!"

	outcome, err := proc.ProcessMessage(context.Background(), msg)
	require.NoError(t, err)
	assert.Equal(t, OutcomeNoTemplate, outcome)
	assert.Empty(t, store.created)
}

func TestProcessMessage_StoreUnavailableIsAnError(t *testing.T) {
	store := newFakeStore()
	store.existsErr = &domain.StoreUnavailableError{Op: "Exists", Err: fmt.Errorf("deadline exceeded")}
	proc := newTestProcessor(t, store, &fakePredictor{prediction: &domain.Prediction{Category: "X"}}, 1)

	outcome, err := proc.ProcessMessage(context.Background(), debitMessage("msg-1"))
	require.Error(t, err)
	assert.True(t, domain.IsStoreUnavailable(err))
	assert.Equal(t, OutcomeFailed, outcome)
}

func TestProcessBatch_Aggregates(t *testing.T) {
	store := newFakeStore()
	store.existing[TransactionID("user-1", "dup-1")] = true
	predictor := &fakePredictor{prediction: &domain.Prediction{Category: "Food & Dining"}}
	proc := newTestProcessor(t, store, predictor, 3)

	noMatch := debitMessage("junk-1")
	noMatch.Body = "nothing transactional here"

	msgs := []domain.RawMessage{
		debitMessage("msg-1"),
		debitMessage("msg-2"),
		debitMessage("dup-1"),
		noMatch,
	}

	result, err := proc.ProcessBatch(context.Background(), msgs)
	require.NoError(t, err)

	assert.Equal(t, 4, result.Total)
	assert.Equal(t, 2, result.Processed)
	assert.Equal(t, 1, result.Duplicates)
	assert.Equal(t, 1, result.NoTemplate)
	assert.Equal(t, 0, result.Invalid)
	assert.Equal(t, 0, result.Failed)
}

func TestProcessBatch_AbortsWhenStoreUnavailable(t *testing.T) {
	store := newFakeStore()
	store.existsErr = &domain.StoreUnavailableError{Op: "Exists", Err: fmt.Errorf("connection refused")}
	proc := newTestProcessor(t, store, &fakePredictor{prediction: &domain.Prediction{Category: "X"}}, 2)

	msgs := make([]domain.RawMessage, 20)
	for i := range msgs {
		msgs[i] = debitMessage(fmt.Sprintf("msg-%d", i))
	}

	result, err := proc.ProcessBatch(context.Background(), msgs)
	require.Error(t, err)
	assert.True(t, domain.IsStoreUnavailable(err))
	assert.Equal(t, 0, result.Processed)
}

func TestProcessBatch_PerMessageFailuresAreIsolated(t *testing.T) {
	store := newFakeStore()
	predictor := &fakePredictor{err: fmt.Errorf("inference backend exploded")}
	proc := newTestProcessor(t, store, predictor, 2)

	msgs := []domain.RawMessage{debitMessage("msg-1"), debitMessage("msg-2")}
	result, err := proc.ProcessBatch(context.Background(), msgs)
	require.NoError(t, err)

	assert.Equal(t, 2, result.Failed)
	assert.Equal(t, 0, result.Processed)
}

func TestProcessBatch_Empty(t *testing.T) {
	proc := newTestProcessor(t, newFakeStore(), &fakePredictor{}, 2)
	result, err := proc.ProcessBatch(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Total)
}
