package pipeline

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"

	"github.com/sdancy10/Financial-Tracker-Backend/internal/domain"
)

// BatchResult aggregates the per-message outcomes of one batch.
type BatchResult struct {
	Total      int
	Processed  int
	Duplicates int
	NoTemplate int
	Invalid    int
	Failed     int
}

// Processor runs batches of raw messages through the pipeline with a bounded
// worker pool. Per-message failures are isolated; a storage outage aborts
// the whole batch since every remaining message would hit the same wall.
type Processor struct {
	pipeline *Pipeline
	workers  int
	log      zerolog.Logger
}

// NewProcessor creates a processor running at most workers messages at once.
func NewProcessor(p *Pipeline, workers int, log zerolog.Logger) *Processor {
	if workers <= 0 {
		workers = 1
	}
	return &Processor{pipeline: p, workers: workers, log: log}
}

// ProcessMessage runs a single message through the pipeline and classifies
// the result. Expected rejections (no template, invalid data) come back as
// outcomes, not errors; the error return is reserved for storage outages
// and other faults the caller may want to abort on.
func (p *Processor) ProcessMessage(ctx context.Context, msg domain.RawMessage) (Outcome, error) {
	state := &PipelineState{Message: msg}
	err := p.pipeline.Execute(ctx, state)
	if err == nil {
		return state.Outcome, nil
	}

	var noTemplate *domain.NoTemplateMatchedError
	var normErr *domain.NormalizationError
	var valErr *domain.ValidationError
	switch {
	case errors.As(err, &noTemplate):
		return OutcomeNoTemplate, nil
	case errors.As(err, &normErr):
		p.log.Warn().
			Str("message_id", msg.MessageID).
			Str("field", normErr.Field).
			Err(normErr.Err).
			Msg("rejected message: normalization failed")
		return OutcomeInvalid, nil
	case errors.As(err, &valErr):
		p.log.Warn().
			Str("message_id", msg.MessageID).
			Strs("violations", valErr.Violations).
			Msg("rejected message: validation failed")
		return OutcomeInvalid, nil
	case domain.IsStoreUnavailable(err):
		return OutcomeFailed, err
	default:
		p.log.Error().
			Str("message_id", msg.MessageID).
			Err(err).
			Msg("message processing failed")
		return OutcomeFailed, nil
	}
}

// ProcessBatch runs the messages through the pipeline concurrently and
// returns the aggregate result. The returned error is non-nil only when the
// batch was aborted, and the partial result is still returned alongside it.
func (p *Processor) ProcessBatch(ctx context.Context, msgs []domain.RawMessage) (*BatchResult, error) {
	result := &BatchResult{Total: len(msgs)}
	if len(msgs) == 0 {
		return result, nil
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		mu       sync.Mutex
		abortErr error
		wg       sync.WaitGroup
	)
	msgChan := make(chan domain.RawMessage)

	for i := 0; i < p.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for msg := range msgChan {
				outcome, err := p.ProcessMessage(ctx, msg)

				mu.Lock()
				switch outcome {
				case OutcomeProcessed:
					result.Processed++
				case OutcomeDuplicate:
					result.Duplicates++
				case OutcomeNoTemplate:
					result.NoTemplate++
				case OutcomeInvalid:
					result.Invalid++
				default:
					result.Failed++
				}
				if err != nil && abortErr == nil {
					abortErr = err
					cancel()
				}
				mu.Unlock()
			}
		}()
	}

feed:
	for _, msg := range msgs {
		select {
		case msgChan <- msg:
		case <-ctx.Done():
			break feed
		}
	}
	close(msgChan)
	wg.Wait()

	if abortErr != nil {
		p.log.Error().Err(abortErr).Msg("batch aborted: transaction store unavailable")
		return result, abortErr
	}

	p.log.Info().
		Int("total", result.Total).
		Int("processed", result.Processed).
		Int("duplicates_skipped", result.Duplicates).
		Int("no_template", result.NoTemplate).
		Int("invalid", result.Invalid).
		Int("failed", result.Failed).
		Msg("batch complete")
	return result, nil
}
