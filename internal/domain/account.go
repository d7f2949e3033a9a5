package domain

import "time"

// User carries the cash balance. Mutated exclusively through deposit,
// withdraw and trade operations, each producing exactly one ledger entry.
type User struct {
	ID        string
	Balance   float64
	CreatedAt time.Time
}

// Position is a user's holding of one asset plus its weighted cost basis.
// Removed when a sell brings the amount to zero.
type Position struct {
	OwnerID      string
	Symbol       string
	Amount       float64
	AveragePrice float64
}

type TransactionKind string

const (
	TxDeposit   TransactionKind = "DEPOSIT"
	TxWithdraw  TransactionKind = "WITHDRAW"
	TxTradeBuy  TransactionKind = "TRADE_BUY"
	TxTradeSell TransactionKind = "TRADE_SELL"
)

// Transaction is one append-only ledger entry. Amount is signed: negative for
// cash leaving the balance, positive for cash entering it.
type Transaction struct {
	ID        int64
	OwnerID   string
	Kind      TransactionKind
	Amount    float64
	CreatedAt time.Time
}
