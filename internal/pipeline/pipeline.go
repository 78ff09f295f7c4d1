package pipeline

import (
	"context"
	"fmt"

	"github.com/sdancy10/Financial-Tracker-Backend/internal/normalize"
	"github.com/sdancy10/Financial-Tracker-Backend/internal/template"
)

// Pipeline executes a sequence of steps in order.
type Pipeline struct {
	steps []PipelineStep
}

// NewPipeline creates a new pipeline with the given steps.
func NewPipeline(steps ...PipelineStep) *Pipeline {
	return &Pipeline{steps: steps}
}

// Execute runs the steps sequentially. A step that sets the state's outcome
// ends the run; remaining steps are skipped.
func (p *Pipeline) Execute(ctx context.Context, state *PipelineState) error {
	for i, step := range p.steps {
		if err := step.Execute(ctx, state); err != nil {
			return fmt.Errorf("pipeline step %d: %w", i+1, err)
		}
		if state.Outcome != "" {
			return nil
		}
	}
	return nil
}

// NewMessagePipeline creates the standard 6-step pipeline that turns one
// raw email message into a stored, categorized transaction.
func NewMessagePipeline(
	matcher TemplateMatcher,
	normalizer *normalize.Normalizer,
	templates *template.Store,
	validator *Validator,
	store TransactionStore,
	predictor Predictor,
) *Pipeline {
	return NewPipeline(
		&MatchTemplateStep{Matcher: matcher},
		&BuildTransactionStep{Normalizer: normalizer, Templates: templates},
		&ValidateStep{Validator: validator},
		&DuplicateGateStep{Store: store},
		&PredictStep{Predictor: predictor},
		&PersistStep{Store: store},
	)
}
