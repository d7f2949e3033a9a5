package domain

import "time"

type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

type OrderKind string

const (
	OrderStopLimit    OrderKind = "STOP_LIMIT"
	OrderTrailingStop OrderKind = "TRAILING_STOP"
	OrderOCO          OrderKind = "OCO"
)

type OrderStatus string

const (
	OrderActive    OrderStatus = "ACTIVE"
	OrderTriggered OrderStatus = "TRIGGERED"
	OrderCompleted OrderStatus = "COMPLETED"
	OrderCanceled  OrderStatus = "CANCELED"
)

type TrailingDeltaKind string

const (
	TrailingPercentage TrailingDeltaKind = "PERCENTAGE"
	TrailingAbsolute   TrailingDeltaKind = "ABSOLUTE"
)

// TrailingDelta is the distance a trailing stop keeps from the best observed
// price, either as a percentage of the reference or an absolute amount.
type TrailingDelta struct {
	Kind  TrailingDeltaKind
	Value float64
}

// OCOPair links the two legs of a one-cancels-the-other pair. It is a weak
// relation by id, not ownership; both legs are independent records.
type OCOPair struct {
	StopOrderID  string
	LimitOrderID string
}

// SiblingID returns the id of the other leg of the pair.
func (p *OCOPair) SiblingID(orderID string) string {
	if p.StopOrderID == orderID {
		return p.LimitOrderID
	}
	return p.StopOrderID
}

// ConditionalOrder is a standing order evaluated against every price tick.
// STOP_LIMIT and OCO orders carry StopPrice+LimitPrice; TRAILING_STOP orders
// carry TrailingDelta+TrailingReferencePrice (StopPrice is recomputed as the
// reference tracks new extremes and acts as the limit price on execution).
type ConditionalOrder struct {
	ID      string
	OwnerID string
	Symbol  string
	Side    Side
	Kind    OrderKind
	Amount  float64
	Status  OrderStatus

	StopPrice  float64
	LimitPrice float64

	TrailingDelta          *TrailingDelta
	TrailingReferencePrice float64

	OCO *OCOPair

	ExecutedTradeID int64

	CreatedAt   time.Time
	TriggeredAt time.Time
	CompletedAt time.Time
	CanceledAt  time.Time
}

// ExecutionPrice is the price a triggered order fills at: the configured limit
// price, or for trailing stops the last computed stop price.
func (o *ConditionalOrder) ExecutionPrice() float64 {
	if o.Kind == OrderTrailingStop {
		return o.StopPrice
	}
	return o.LimitPrice
}
