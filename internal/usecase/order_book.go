package usecase

import (
	"context"
	"errors"

	"github.com/vitos/crypto_market_sim/internal/domain"
	"go.uber.org/zap"
)

// OrderBook evaluates the ACTIVE conditional orders of a symbol against each
// tick. Trailing stops recompute their threshold as the reference tracks new
// extremes; triggered orders are handed to the executor synchronously in the
// same tick, so trigger and fill are atomic from the caller's perspective.
type OrderBook struct {
	orders   domain.OrderRepository
	executor *TradeExecutor
	logger   *zap.Logger
	clock    Clock
}

func NewOrderBook(orders domain.OrderRepository, executor *TradeExecutor, logger *zap.Logger, clock Clock) *OrderBook {
	return &OrderBook{
		orders:   orders,
		executor: executor,
		logger:   logger,
		clock:    clock,
	}
}

// Evaluate runs one symbol's trigger pass for the given tick price.
// Execution failures abort only that order's fill; the pass continues.
func (b *OrderBook) Evaluate(ctx context.Context, symbol string, price float64) {
	orders, err := b.orders.ListActiveOrdersBySymbol(ctx, symbol)
	if err != nil {
		b.logger.Error("failed to list active orders",
			zap.String("symbol", symbol), zap.Error(err))
		return
	}

	for _, order := range orders {
		// Status is the single source of truth: a cancellation from
		// outside the tick loop wins over evaluation.
		if order.Status != domain.OrderActive {
			continue
		}

		if order.Kind == domain.OrderTrailingStop {
			b.updateTrailing(ctx, order, price)
		}

		if !triggerHit(order, price) {
			continue
		}

		// The transition is conditional on the persisted status: if the
		// order was canceled since the list was fetched (by the user, or by
		// an OCO sibling filling earlier in this pass), it stays canceled.
		now := b.clock.Now()
		if err := b.orders.MarkTriggered(ctx, order.ID, now); err != nil {
			if !errors.Is(err, domain.ErrOrderNotActive) {
				b.logger.Error("failed to mark order triggered",
					zap.String("order_id", order.ID), zap.Error(err))
			}
			continue
		}
		order.Status = domain.OrderTriggered
		order.TriggeredAt = now

		b.logger.Info("order triggered",
			zap.String("order_id", order.ID),
			zap.String("symbol", symbol),
			zap.String("kind", string(order.Kind)),
			zap.String("side", string(order.Side)),
			zap.Float64("price", price),
			zap.Float64("stop_price", order.StopPrice))

		if err := b.executor.Execute(ctx, order); err != nil {
			// Soft business failures (funds, holdings) are expected;
			// the order is already back to ACTIVE.
			if errors.Is(err, domain.ErrExecutionFailed) {
				continue
			}
			b.logger.Error("unexpected execution error",
				zap.String("order_id", order.ID), zap.Error(err))
		}
	}
}

// updateTrailing tracks the running extreme and recomputes the stop. A SELL
// trailing stop follows the peak down by delta; a BUY follows the trough up.
// The recomputed values are persisted so a restart keeps the extreme.
func (b *OrderBook) updateTrailing(ctx context.Context, order *domain.ConditionalOrder, price float64) {
	if order.TrailingDelta == nil {
		return
	}

	moved := false
	switch order.Side {
	case domain.SideSell:
		if price > order.TrailingReferencePrice {
			order.TrailingReferencePrice = price
			moved = true
		}
	case domain.SideBuy:
		if price < order.TrailingReferencePrice {
			order.TrailingReferencePrice = price
			moved = true
		}
	}
	if !moved && order.StopPrice != 0 {
		return
	}

	ref := order.TrailingReferencePrice
	delta := order.TrailingDelta.Value
	if order.TrailingDelta.Kind == domain.TrailingPercentage {
		delta = ref * order.TrailingDelta.Value / 100
	}
	if order.Side == domain.SideSell {
		order.StopPrice = ref - delta
	} else {
		order.StopPrice = ref + delta
	}

	if err := b.orders.UpdateOrder(ctx, order); err != nil {
		b.logger.Error("failed to persist trailing stop update",
			zap.String("order_id", order.ID), zap.Error(err))
	}
}

func triggerHit(order *domain.ConditionalOrder, price float64) bool {
	if order.StopPrice <= 0 {
		return false
	}
	if order.Side == domain.SideSell {
		return price <= order.StopPrice
	}
	return price >= order.StopPrice
}
