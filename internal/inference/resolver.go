package inference

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/sdancy10/Financial-Tracker-Backend/internal/artifacts"
	"github.com/sdancy10/Financial-Tracker-Backend/internal/config"
	"github.com/sdancy10/Financial-Tracker-Backend/internal/domain"
)

// Backend is one way of producing a category prediction.
type Backend interface {
	Name() string
	Predict(ctx context.Context, tx *domain.Transaction) (*domain.Prediction, error)
}

// Resolver tries an ordered chain of backends. A backend that times out,
// fails in transport, or has nothing to say hands the transaction to the
// next one; only when the whole chain comes up empty does the caller see
// ErrNoPredictionAvailable.
type Resolver struct {
	backends  []Backend
	threshold float64
	log       zerolog.Logger
}

// NewResolver builds a resolver over the given chain, in fallback order.
func NewResolver(threshold float64, log zerolog.Logger, backends ...Backend) *Resolver {
	return &Resolver{backends: backends, threshold: threshold, log: log}
}

// Predict walks the chain and flags low-confidence results.
func (r *Resolver) Predict(ctx context.Context, tx *domain.Transaction) (*domain.Prediction, error) {
	var lastErr error
	for i, backend := range r.backends {
		start := time.Now()
		pred, err := backend.Predict(ctx, tx)
		if err == nil {
			if pred.Confidence < r.threshold {
				pred.LowConfidence = true
			}
			return pred, nil
		}
		if errors.Is(err, context.Canceled) {
			return nil, err
		}

		lastErr = err
		if i == len(r.backends)-1 {
			break
		}

		// One warn event per hop, carrying which backend failed and how
		// long it took to give up.
		r.log.Warn().
			Str("backend", backend.Name()).
			Str("fallback", r.backends[i+1].Name()).
			Dur("elapsed", time.Since(start)).
			Err(err).
			Msg("inference fallback")
	}

	if errors.Is(lastErr, domain.ErrNoPredictionAvailable) {
		return nil, domain.ErrNoPredictionAvailable
	}
	last := r.backends[len(r.backends)-1]
	return nil, fmt.Errorf("Predict: backend %s: %w", last.Name(), lastErr)
}

// Build assembles the chain for the configured inference mode. The local
// backend always terminates the chain; in cloud_function mode a configured
// Vertex endpoint slots in between the two.
func Build(ctx context.Context, cfg *config.Config, fetcher artifacts.Fetcher, log zerolog.Logger) (*Resolver, error) {
	if fetcher == nil {
		fetcher = artifacts.NewGCSFetcher()
	}
	local := NewLocalBackend(
		fetcher,
		cfg.ML.Model.ArtifactPath,
		cfg.ML.Model.CacheMaxEntries,
		cfg.ModelCacheTTL(),
		log,
	)
	threshold := cfg.ML.Inference.ConfidenceThreshold
	timeout := cfg.InferenceTimeout()

	switch cfg.ML.Inference.Mode {
	case config.InferenceModeLocal:
		return NewResolver(threshold, log, local), nil
	case config.InferenceModeCloudFunction:
		chain := make([]Backend, 0, 3)
		primary, err := NewCloudFunctionBackend(ctx, ResolveFunctionURL(cfg), timeout)
		if err != nil {
			return nil, fmt.Errorf("Build: %w", err)
		}
		chain = append(chain, primary)
		if cfg.ML.Inference.VertexEndpoint != "" {
			vertex, err := NewVertexBackend(ctx, cfg.ML.Inference.VertexEndpoint, timeout)
			if err != nil {
				return nil, fmt.Errorf("Build: %w", err)
			}
			chain = append(chain, vertex)
		}
		chain = append(chain, local)
		return NewResolver(threshold, log, chain...), nil
	case config.InferenceModeVertexAI:
		primary, err := NewVertexBackend(ctx, cfg.ML.Inference.VertexEndpoint, timeout)
		if err != nil {
			return nil, fmt.Errorf("Build: %w", err)
		}
		return NewResolver(threshold, log, primary, local), nil
	default:
		return nil, fmt.Errorf("Build: unknown inference mode %q", cfg.ML.Inference.Mode)
	}
}
