package pipeline

import (
	"github.com/google/uuid"
)

// transactionNamespace is the fixed namespace for deriving transaction IDs.
// Changing it would re-key every stored transaction, so it never changes.
var transactionNamespace = uuid.MustParse("b6a3f9d2-4c81-4f5e-9a07-3d2e8c1b5f40")

// TransactionID derives the deterministic ID for a transaction from the
// user and the source message. Reprocessing the same message always yields
// the same ID, which is what makes the duplicate gate work.
func TransactionID(userID, sourceMessageID string) string {
	return uuid.NewSHA1(transactionNamespace, []byte(userID+":"+sourceMessageID)).String()
}
