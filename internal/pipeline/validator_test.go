package pipeline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sdancy10/Financial-Tracker-Backend/internal/domain"
)

func defaultValidator() *Validator {
	return NewValidator(
		map[string]bool{"date": true, "description": true, "amount": true, "account_id": true, "user_id": true},
		map[string]bool{"pending": true, "processed": true, "failed": true},
	)
}

func validTransaction() *domain.Transaction {
	return &domain.Transaction{
		ID:          TransactionID("user-1", "msg-1"),
		Date:        time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
		Description: "coffee shop",
		Amount:      -42.17,
		AccountID:   "acct-1",
		UserID:      "user-1",
		Status:      domain.StatusPending,
	}
}

func TestValidate_Passes(t *testing.T) {
	assert.NoError(t, defaultValidator().Validate(validTransaction()))
}

func TestValidate_CollectsAllViolations(t *testing.T) {
	tx := validTransaction()
	tx.ID = ""
	tx.Description = "   "
	tx.Amount = 0
	tx.Status = "archived"

	err := defaultValidator().Validate(tx)
	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)

	assert.Len(t, verr.Violations, 4)
	assert.Contains(t, verr.Violations, "id: missing")
	assert.Contains(t, verr.Violations, "description: missing")
	assert.Contains(t, verr.Violations, "amount: must be non-zero")
	assert.Contains(t, verr.Violations, `status: "archived" is not an allowed value`)
}

func TestValidate_ZeroAmountRejected(t *testing.T) {
	tx := validTransaction()
	tx.Amount = 0

	err := defaultValidator().Validate(tx)
	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, []string{"amount: must be non-zero"}, verr.Violations)
}

func TestValidate_RequiredFieldsFromConfig(t *testing.T) {
	// Only amount required: missing account and user pass through.
	v := NewValidator(map[string]bool{"amount": true}, nil)
	tx := validTransaction()
	tx.AccountID = ""
	tx.UserID = ""

	assert.NoError(t, v.Validate(tx))
}

func TestTransactionID_Deterministic(t *testing.T) {
	a := TransactionID("user-1", "msg-1")
	b := TransactionID("user-1", "msg-1")
	c := TransactionID("user-2", "msg-1")

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 36)
}
