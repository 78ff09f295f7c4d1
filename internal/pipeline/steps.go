package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sdancy10/Financial-Tracker-Backend/internal/domain"
	"github.com/sdancy10/Financial-Tracker-Backend/internal/normalize"
	"github.com/sdancy10/Financial-Tracker-Backend/internal/template"
)

// Outcome is the terminal result of running one message through the pipeline.
type Outcome string

const (
	OutcomeProcessed  Outcome = "processed"
	OutcomeDuplicate  Outcome = "duplicate_skipped"
	OutcomeNoTemplate Outcome = "no_template"
	OutcomeInvalid    Outcome = "invalid"
	OutcomeFailed     Outcome = "failed"
)

// PipelineStep represents a single step in the message processing pipeline.
type PipelineStep interface {
	Execute(ctx context.Context, state *PipelineState) error
}

// PipelineState holds the shared state across all pipeline steps.
type PipelineState struct {
	Message     domain.RawMessage
	Candidate   *domain.CandidateTransaction
	Normalized  *normalize.Normalized
	Transaction *domain.Transaction

	// Outcome is set by a step that ends processing. Once set, remaining
	// steps are skipped.
	Outcome Outcome
}

// Step 1: MatchTemplateStep finds the first template matching the message.
type MatchTemplateStep struct {
	Matcher TemplateMatcher
}

func (s *MatchTemplateStep) Execute(ctx context.Context, state *PipelineState) error {
	candidate, err := s.Matcher.Match(state.Message)
	if err != nil {
		return err
	}
	state.Candidate = candidate
	return nil
}

// Step 2: BuildTransactionStep normalizes the candidate's captures and
// assembles the transaction, including its deterministic ID.
type BuildTransactionStep struct {
	Normalizer *normalize.Normalizer
	Templates  *template.Store
}

func (s *BuildTransactionStep) Execute(ctx context.Context, state *PipelineState) error {
	tpl, ok := s.Templates.Get(state.Candidate.TemplateID)
	if !ok {
		return fmt.Errorf("BuildTransactionStep: unknown template %q", state.Candidate.TemplateID)
	}

	norm, err := s.Normalizer.Normalize(state.Candidate, tpl)
	if err != nil {
		return err
	}
	state.Normalized = norm

	state.Transaction = &domain.Transaction{
		ID:              TransactionID(state.Candidate.UserID, state.Candidate.SourceMessageID),
		SourceMessageID: state.Candidate.SourceMessageID,
		Date:            norm.Date,
		Description:     norm.Description,
		Amount:          norm.Amount,
		Currency:        norm.Currency,
		AccountID:       state.Candidate.AccountID,
		UserID:          state.Candidate.UserID,
		Vendor:          norm.Vendor,
		VendorCleaned:   norm.VendorCleaned,
		VendorMetaphone: norm.VendorMetaphone,
		Account:         norm.Account,
		Status:          domain.StatusPending,
		TemplateUsed:    tpl.ID,
		TemplateVersion: tpl.Version,
		Day:             norm.Day,
		Month:           norm.Month,
		Year:            norm.Year,
		DayName:         norm.DayName,
		CreatedAt:       time.Now().UTC(),
	}
	return nil
}

// Step 3: ValidateStep checks the assembled transaction against the rules.
type ValidateStep struct {
	Validator *Validator
}

func (s *ValidateStep) Execute(ctx context.Context, state *PipelineState) error {
	return s.Validator.Validate(state.Transaction)
}

// Step 4: DuplicateGateStep skips messages whose transaction was already
// stored, before any inference work is spent on them.
type DuplicateGateStep struct {
	Store TransactionStore
}

func (s *DuplicateGateStep) Execute(ctx context.Context, state *PipelineState) error {
	exists, err := s.Store.Exists(ctx, state.Transaction.UserID, state.Transaction.ID)
	if err != nil {
		return fmt.Errorf("DuplicateGateStep: checking transaction %s: %w", state.Transaction.ID, err)
	}
	if exists {
		state.Outcome = OutcomeDuplicate
	}
	return nil
}

// Step 5: PredictStep attaches a category prediction to the transaction.
// An unscored transaction is a valid terminal state: when every backend is
// exhausted, the transaction still persists processed with a null category.
type PredictStep struct {
	Predictor Predictor
}

func (s *PredictStep) Execute(ctx context.Context, state *PipelineState) error {
	tx := state.Transaction

	pred, err := s.Predictor.Predict(ctx, tx)
	if err != nil {
		if errors.Is(err, domain.ErrNoPredictionAvailable) {
			tx.Status = domain.StatusProcessed
			return nil
		}
		return fmt.Errorf("PredictStep: predicting for %s: %w", tx.ID, err)
	}

	tx.Category = &pred.Category
	if pred.Subcategory != "" {
		tx.Subcategory = &pred.Subcategory
	}
	tx.PredictionConfidence = pred.Confidence
	tx.LowConfidence = pred.LowConfidence
	tx.ModelVersion = pred.ModelVersion
	tx.PredictionSource = pred.Source
	tx.PredictedAt = pred.PredictedAt
	tx.Status = domain.StatusProcessed
	return nil
}

// Step 6: PersistStep writes the transaction. A concurrent writer beating us
// to the same ID counts as a duplicate, not an error.
type PersistStep struct {
	Store TransactionStore
}

func (s *PersistStep) Execute(ctx context.Context, state *PipelineState) error {
	created, err := s.Store.CreateIfAbsent(ctx, state.Transaction)
	if err != nil {
		return fmt.Errorf("PersistStep: storing transaction %s: %w", state.Transaction.ID, err)
	}
	if !created {
		state.Outcome = OutcomeDuplicate
		return nil
	}
	state.Outcome = OutcomeProcessed
	return nil
}
