package domain

import "errors"

var (
	ErrUserNotFound   = errors.New("user not found")
	ErrSymbolNotFound = errors.New("symbol not found")
	ErrOrderNotFound  = errors.New("order not found")

	ErrInsufficientFunds    = errors.New("insufficient funds")
	ErrInsufficientHoldings = errors.New("insufficient holdings")

	// ErrInvalidWindow rejects a manipulation command whose end does not
	// follow its start.
	ErrInvalidWindow = errors.New("invalid manipulation window")

	// ErrFeedUnavailable is soft: it moves price resolution down the
	// fallback chain and never reaches the trigger engine.
	ErrFeedUnavailable = errors.New("price feed unavailable")

	// ErrExecutionFailed wraps any failure inside the atomic trade commit.
	ErrExecutionFailed = errors.New("trade execution failed")

	ErrOrderNotActive = errors.New("order is not active")
	ErrNotOrderOwner  = errors.New("order belongs to another user")

	ErrInvalidOrder  = errors.New("invalid order parameters")
	ErrInvalidAmount = errors.New("amount must be positive")
)
