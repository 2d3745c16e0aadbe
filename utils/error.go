package utils

import "errors"

var ErrorRecordNotFound = errors.New("record not found")

// Ledger error taxonomy. The HTTP layer maps these to responses; none of the
// messages are user-facing text.
var (
	ErrorInvalidAccountReference   = errors.New("invalid account reference")
	ErrorAccountInactive           = errors.New("account inactive")
	ErrorInvalidDateRange          = errors.New("invalid date range")
	ErrorConcurrentBalanceConflict = errors.New("concurrent balance conflict")
)
