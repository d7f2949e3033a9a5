package domain

import (
	"context"
	"time"
)

// PriceRepository persists per-symbol price states.
type PriceRepository interface {
	SavePrice(ctx context.Context, state *PriceState) error
	GetPrice(ctx context.Context, symbol string) (*PriceState, error)
	ListPrices(ctx context.Context) ([]*PriceState, error)
}

// OrderRepository defines storage operations for conditional orders.
type OrderRepository interface {
	SaveOrder(ctx context.Context, order *ConditionalOrder) error
	GetOrder(ctx context.Context, id string) (*ConditionalOrder, error)
	UpdateOrder(ctx context.Context, order *ConditionalOrder) error

	// MarkTriggered flips ACTIVE -> TRIGGERED against the persisted status.
	// Returns ErrOrderNotActive when the stored order is no longer ACTIVE,
	// so a cancellation that already landed (user or OCO sibling) wins over
	// a stale evaluation copy.
	MarkTriggered(ctx context.Context, id string, at time.Time) error

	// ReactivateOrder flips TRIGGERED -> ACTIVE after a failed fill. A no-op
	// when the stored order is in any other status: it never resurrects a
	// CANCELED or COMPLETED order.
	ReactivateOrder(ctx context.Context, id string) error

	ListActiveOrdersBySymbol(ctx context.Context, symbol string) ([]*ConditionalOrder, error)
	ListOrdersByOwner(ctx context.Context, ownerID string, limit int) ([]*ConditionalOrder, error)
}

// TradeTx is the set of account mutations available inside one atomic unit.
// A trade's balance debit/credit, position update, ledger append, order
// completion and OCO sibling cancellation all go through a single TradeTx.
type TradeTx interface {
	GetUser(ctx context.Context, id string) (*User, error)
	AdjustBalance(ctx context.Context, userID string, delta float64) error

	GetPosition(ctx context.Context, ownerID, symbol string) (*Position, error)
	SavePosition(ctx context.Context, pos *Position) error
	DeletePosition(ctx context.Context, ownerID, symbol string) error

	// AppendTransaction assigns the ledger entry id on success.
	AppendTransaction(ctx context.Context, tx *Transaction) error

	GetOrderForUpdate(ctx context.Context, id string) (*ConditionalOrder, error)
	UpdateOrder(ctx context.Context, order *ConditionalOrder) error
}

// AccountStore is the persistence contract for users, balances, positions and
// the ledger. Transact runs fn inside one transaction: every mutation commits
// or none do.
type AccountStore interface {
	TradeTx
	CreateUser(ctx context.Context, user *User) error
	ListTransactions(ctx context.Context, ownerID string, limit int) ([]*Transaction, error)
	ListPositions(ctx context.Context, ownerID string) ([]*Position, error)
	Transact(ctx context.Context, fn func(tx TradeTx) error) error
}

// PriceFetcher is the bounded REST fallback for an externally observed price.
// Unavailability is reported as ErrFeedUnavailable and must not block callers
// beyond the configured timeout.
type PriceFetcher interface {
	FetchPrice(ctx context.Context, symbol string) (float64, error)
}
