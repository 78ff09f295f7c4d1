package inference

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/sdancy10/Financial-Tracker-Backend/internal/artifacts"
	"github.com/sdancy10/Financial-Tracker-Backend/internal/domain"
)

// Label is one category assignment in a model artifact.
type Label struct {
	Category    string  `json:"category"`
	Subcategory string  `json:"subcategory,omitempty"`
	Confidence  float64 `json:"confidence"`
}

// Model is the exported-artifact form of the categorization model: a lookup
// table over cleaned vendor names, with a phonetic-code fallback for vendors
// the exact table has never seen.
type Model struct {
	Version    string           `json:"model_version"`
	Vendors    map[string]Label `json:"vendors"`
	Metaphones map[string]Label `json:"metaphones"`
}

// Lookup finds a label for the vendor, trying the exact cleaned name first
// and the phonetic code second.
func (m *Model) Lookup(vendorCleaned, metaphone string) (Label, bool) {
	if label, ok := m.Vendors[vendorCleaned]; ok {
		return label, true
	}
	if metaphone != "" {
		if label, ok := m.Metaphones[metaphone]; ok {
			return label, true
		}
	}
	return Label{}, false
}

// ParseModel decodes a model artifact.
func ParseModel(data []byte) (*Model, error) {
	var m Model
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("ParseModel: decoding artifact: %w", err)
	}
	if m.Version == "" {
		return nil, fmt.Errorf("ParseModel: artifact has no model_version")
	}
	return &m, nil
}

// LocalBackend predicts from a downloaded model artifact. It is both the
// "local" inference mode and the fallback when a remote backend is down.
type LocalBackend struct {
	fetcher     artifacts.Fetcher
	artifactURI string
	cache       *modelCache
	log         zerolog.Logger
}

// NewLocalBackend creates a backend over the artifact at the given URI.
// cacheMax and cacheTTL bound the in-memory artifact cache.
func NewLocalBackend(fetcher artifacts.Fetcher, artifactURI string, cacheMax int, cacheTTL time.Duration, log zerolog.Logger) *LocalBackend {
	return &LocalBackend{
		fetcher:     fetcher,
		artifactURI: artifactURI,
		cache:       newModelCache(cacheMax, cacheTTL),
		log:         log,
	}
}

func (b *LocalBackend) Name() string { return "local" }

// Predict looks the transaction's vendor up in the artifact. No artifact,
// an unloadable artifact, or no table entry all mean no prediction; the
// caller decides what to do then.
func (b *LocalBackend) Predict(ctx context.Context, tx *domain.Transaction) (*domain.Prediction, error) {
	if b.artifactURI == "" {
		return nil, domain.ErrNoPredictionAvailable
	}

	model, err := b.load(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, fmt.Errorf("Predict: loading model artifact: %w", err)
		}
		b.log.Warn().
			Str("artifact", b.artifactURI).
			Err(err).
			Msg("model artifact unavailable")
		return nil, domain.ErrNoPredictionAvailable
	}

	label, ok := model.Lookup(tx.VendorCleaned, tx.VendorMetaphone)
	if !ok {
		return nil, domain.ErrNoPredictionAvailable
	}

	return &domain.Prediction{
		Category:     label.Category,
		Subcategory:  label.Subcategory,
		Confidence:   label.Confidence,
		ModelVersion: model.Version,
		Source:       b.Name(),
		PredictedAt:  time.Now().UTC(),
	}, nil
}

// Refresh drops the cached artifact so the next prediction reloads it.
func (b *LocalBackend) Refresh() {
	b.cache.invalidate(b.artifactURI)
}

func (b *LocalBackend) load(ctx context.Context) (*Model, error) {
	if m, ok := b.cache.get(b.artifactURI); ok {
		return m, nil
	}
	data, err := b.fetcher.Fetch(ctx, b.artifactURI)
	if err != nil {
		return nil, err
	}
	m, err := ParseModel(data)
	if err != nil {
		return nil, err
	}
	b.cache.put(b.artifactURI, m)
	return m, nil
}
