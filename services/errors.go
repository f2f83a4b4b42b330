package services

import "errors"

// Conflict errors: terminal for the specific operation, never retried.
var (
	ErrInsufficientBalance = errors.New("insufficient BIM balance")
	ErrDailyCapExceeded    = errors.New("daily withdrawal cap exceeded")
	ErrWithdrawalState     = errors.New("withdrawal not in an executable state")
	ErrUserNotFound        = errors.New("user not found")
)

// ErrNeedsReconciliation means funds may have left the treasury while our
// record-keeping failed. The withdrawal is parked and must never be retried
// automatically.
var ErrNeedsReconciliation = errors.New("withdrawal needs manual reconciliation")

// RetryableFailure reports whether a payout execution error is transient
// (funds never moved, safe to resubmit) as opposed to a terminal conflict.
func RetryableFailure(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, ErrInsufficientBalance),
		errors.Is(err, ErrDailyCapExceeded),
		errors.Is(err, ErrWithdrawalState),
		errors.Is(err, ErrUserNotFound),
		errors.Is(err, ErrNeedsReconciliation):
		return false
	}
	return true
}
