package pipeline

import (
	"fmt"
	"strings"
	"time"

	"github.com/sdancy10/Financial-Tracker-Backend/internal/domain"
)

// Validator checks fully-built transactions against the configured rules.
// All violations are collected into a single ValidationError so a rejected
// transaction can be diagnosed in one pass.
type Validator struct {
	required map[string]bool
	statuses map[string]bool
}

// NewValidator creates a validator for the given required field names and
// allowed status values.
func NewValidator(required map[string]bool, statuses map[string]bool) *Validator {
	return &Validator{required: required, statuses: statuses}
}

// Validate returns nil when the transaction passes every rule, or a
// ValidationError listing every violation found.
func (v *Validator) Validate(tx *domain.Transaction) error {
	var violations []string

	if tx.ID == "" {
		violations = append(violations, "id: missing")
	}
	if v.required["date"] && tx.Date.Equal(time.Time{}) {
		violations = append(violations, "date: missing")
	}
	if v.required["description"] && strings.TrimSpace(tx.Description) == "" {
		violations = append(violations, "description: missing")
	}
	if v.required["account_id"] && strings.TrimSpace(tx.AccountID) == "" {
		violations = append(violations, "account_id: missing")
	}
	if v.required["user_id"] && strings.TrimSpace(tx.UserID) == "" {
		violations = append(violations, "user_id: missing")
	}
	if v.required["amount"] && tx.Amount == 0 {
		violations = append(violations, "amount: must be non-zero")
	}
	if len(v.statuses) > 0 && !v.statuses[string(tx.Status)] {
		violations = append(violations, fmt.Sprintf("status: %q is not an allowed value", tx.Status))
	}

	if len(violations) > 0 {
		return &domain.ValidationError{Violations: violations}
	}
	return nil
}
