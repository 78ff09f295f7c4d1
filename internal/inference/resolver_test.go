package inference

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sdancy10/Financial-Tracker-Backend/internal/domain"
)

type stubBackend struct {
	name  string
	pred  *domain.Prediction
	err   error
	calls int
}

func (s *stubBackend) Name() string { return s.name }

func (s *stubBackend) Predict(ctx context.Context, tx *domain.Transaction) (*domain.Prediction, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.pred, nil
}

func testTx() *domain.Transaction {
	return &domain.Transaction{
		ID:            "tx-1",
		VendorCleaned: "coffee shop",
		Amount:        -42.17,
	}
}

func TestResolver_PrimarySucceeds(t *testing.T) {
	primary := &stubBackend{name: "cloud_function", pred: &domain.Prediction{
		Category: "Food & Dining", Confidence: 0.9, Source: "cloud_function",
	}}
	fallback := &stubBackend{name: "local"}
	r := NewResolver(0.7, zerolog.Nop(), primary, fallback)

	pred, err := r.Predict(context.Background(), testTx())
	require.NoError(t, err)
	assert.Equal(t, "Food & Dining", pred.Category)
	assert.False(t, pred.LowConfidence)
	assert.Equal(t, 0, fallback.calls)
}

func TestResolver_FallsBackOnTimeout(t *testing.T) {
	primary := &stubBackend{name: "cloud_function", err: fmt.Errorf("call: %w", domain.ErrInferenceTimeout)}
	fallback := &stubBackend{name: "local", pred: &domain.Prediction{
		Category: "Food & Dining", Confidence: 0.8, Source: "local",
	}}

	var buf bytes.Buffer
	log := zerolog.New(&buf)
	r := NewResolver(0.7, log, primary, fallback)

	pred, err := r.Predict(context.Background(), testTx())
	require.NoError(t, err)
	assert.Equal(t, "local", pred.Source)
	assert.Equal(t, 1, fallback.calls)

	logged := buf.String()
	assert.Equal(t, 1, strings.Count(logged, "inference fallback"))
	assert.Contains(t, logged, `"backend":"cloud_function"`)
	assert.Contains(t, logged, `"elapsed"`)
}

func TestResolver_WalksFullChain(t *testing.T) {
	cf := &stubBackend{name: "cloud_function", err: fmt.Errorf("call: %w", domain.ErrInferenceTimeout)}
	vertex := &stubBackend{name: "vertex_ai", err: fmt.Errorf("predict: 503")}
	local := &stubBackend{name: "local", pred: &domain.Prediction{
		Category: "Food & Dining", Confidence: 0.8, Source: "local",
	}}

	var buf bytes.Buffer
	r := NewResolver(0.7, zerolog.New(&buf), cf, vertex, local)

	pred, err := r.Predict(context.Background(), testTx())
	require.NoError(t, err)
	assert.Equal(t, "local", pred.Source)
	assert.Equal(t, 1, vertex.calls)

	logged := buf.String()
	assert.Equal(t, 2, strings.Count(logged, "inference fallback"))
	assert.Contains(t, logged, `"backend":"vertex_ai"`)
}

func TestResolver_FallsBackWhenPrimaryHasNoAnswer(t *testing.T) {
	primary := &stubBackend{name: "cloud_function", err: domain.ErrNoPredictionAvailable}
	fallback := &stubBackend{name: "local", pred: &domain.Prediction{
		Category: "Shopping", Confidence: 0.75, Source: "local",
	}}
	r := NewResolver(0.7, zerolog.Nop(), primary, fallback)

	pred, err := r.Predict(context.Background(), testTx())
	require.NoError(t, err)
	assert.Equal(t, "Shopping", pred.Category)
}

func TestResolver_NoPredictionWhenFallbackEmpty(t *testing.T) {
	primary := &stubBackend{name: "cloud_function", err: fmt.Errorf("connection refused")}
	fallback := &stubBackend{name: "local", err: domain.ErrNoPredictionAvailable}
	r := NewResolver(0.7, zerolog.Nop(), primary, fallback)

	_, err := r.Predict(context.Background(), testTx())
	assert.ErrorIs(t, err, domain.ErrNoPredictionAvailable)
}

func TestResolver_NoFallbackPropagatesError(t *testing.T) {
	primary := &stubBackend{name: "local", err: domain.ErrNoPredictionAvailable}
	r := NewResolver(0.7, zerolog.Nop(), primary)

	_, err := r.Predict(context.Background(), testTx())
	assert.ErrorIs(t, err, domain.ErrNoPredictionAvailable)
}

func TestResolver_CanceledContextDoesNotFallBack(t *testing.T) {
	primary := &stubBackend{name: "cloud_function", err: fmt.Errorf("call: %w", context.Canceled)}
	fallback := &stubBackend{name: "local", pred: &domain.Prediction{Category: "X"}}
	r := NewResolver(0.7, zerolog.Nop(), primary, fallback)

	_, err := r.Predict(context.Background(), testTx())
	require.Error(t, err)
	assert.Equal(t, 0, fallback.calls)
}

func TestResolver_LowConfidenceFlagged(t *testing.T) {
	primary := &stubBackend{name: "cloud_function", pred: &domain.Prediction{
		Category: "Shopping", Confidence: 0.42, Source: "cloud_function",
	}}
	r := NewResolver(0.7, zerolog.Nop(), primary)

	pred, err := r.Predict(context.Background(), testTx())
	require.NoError(t, err)
	assert.True(t, pred.LowConfidence)
	assert.Equal(t, "Shopping", pred.Category, "low confidence keeps the prediction")
}

func TestModelCache_TTLAndBound(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c := newModelCache(2, 10*time.Minute)
	c.now = func() time.Time { return now }

	c.put("a", &Model{Version: "v1"})
	m, ok := c.get("a")
	require.True(t, ok)
	assert.Equal(t, "v1", m.Version)

	// Expired entries reload.
	now = now.Add(11 * time.Minute)
	_, ok = c.get("a")
	assert.False(t, ok)

	// Oldest evicted at the bound.
	c.put("a", &Model{Version: "v1"})
	now = now.Add(time.Minute)
	c.put("b", &Model{Version: "v2"})
	now = now.Add(time.Minute)
	c.put("c", &Model{Version: "v3"})

	_, ok = c.get("a")
	assert.False(t, ok)
	_, ok = c.get("b")
	assert.True(t, ok)
	_, ok = c.get("c")
	assert.True(t, ok)
}
