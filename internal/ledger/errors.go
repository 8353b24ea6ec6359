package ledger

import "errors"

// Sentinel errors returned by engine operations. Handlers map these to HTTP
// statuses with errors.Is.
var (
	ErrNotFound            = errors.New("record not found")                      // Record id does not resolve
	ErrInvalidState        = errors.New("transaction is not pending")            // Transition attempted on a terminal record
	ErrInsufficientBalance = errors.New("insufficient balance")                  // Withdrawal or purchase exceeds balance
	ErrInvalidAmount       = errors.New("amount must be a positive whole value") // Malformed input amount
)
