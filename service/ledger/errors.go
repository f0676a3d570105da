package ledger

import "errors"

// Admission rejections. These are normal control flow, not failures.
var (
	ErrInsufficientBudget = errors.New("insufficient budget")
	ErrMaxPositions       = errors.New("maximum open positions reached")
	ErrDuplicatePosition  = errors.New("position already open for mint")
	ErrZeroAmount         = errors.New("computed token amount is not positive")
)

// Invariant violations. The operation is aborted with no state change.
var (
	ErrPositionNotFound = errors.New("no open position for mint")
	ErrNegativeProceeds = errors.New("computed proceeds are negative")
)

// ErrPersistence wraps failures writing positions or the trade log.
// In-memory state stays authoritative when it is returned.
var ErrPersistence = errors.New("persistence failure")

// IsAdmissionRejection reports whether err is an admission rejection.
func IsAdmissionRejection(err error) bool {
	return errors.Is(err, ErrInsufficientBudget) ||
		errors.Is(err, ErrMaxPositions) ||
		errors.Is(err, ErrDuplicatePosition) ||
		errors.Is(err, ErrZeroAmount)
}

// rejectionLabel is the metrics label for an admission rejection.
func rejectionLabel(err error) string {
	switch {
	case errors.Is(err, ErrInsufficientBudget):
		return "insufficient_budget"
	case errors.Is(err, ErrMaxPositions):
		return "max_positions"
	case errors.Is(err, ErrDuplicatePosition):
		return "duplicate_position"
	case errors.Is(err, ErrZeroAmount):
		return "zero_amount"
	default:
		return "other"
	}
}
