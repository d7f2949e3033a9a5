package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/vitos/crypto_market_sim/internal/domain"
	"go.uber.org/zap"
)

// TradeExecutor applies a TRIGGERED conditional order as a trade. All
// mutations of one fill — balance, position, ledger entry, order completion
// and OCO sibling cancellation — run inside a single store transaction.
// On any failure the order is reverted to ACTIVE so the next qualifying tick
// re-evaluates it.
type TradeExecutor struct {
	store  domain.AccountStore
	orders domain.OrderRepository
	logger *zap.Logger
	clock  Clock

	mu        sync.Mutex
	userLocks map[string]*sync.Mutex
}

func NewTradeExecutor(store domain.AccountStore, orders domain.OrderRepository, logger *zap.Logger, clock Clock) *TradeExecutor {
	return &TradeExecutor{
		store:     store,
		orders:    orders,
		logger:    logger,
		clock:     clock,
		userLocks: make(map[string]*sync.Mutex),
	}
}

// userLock returns the mutex serializing trades for one user. Per-user, not
// global, so a slow fill cannot starve unrelated users.
func (e *TradeExecutor) userLock(userID string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	l, ok := e.userLocks[userID]
	if !ok {
		l = &sync.Mutex{}
		e.userLocks[userID] = l
	}
	return l
}

// Execute fills a triggered order at its execution price. The returned error
// wraps ErrExecutionFailed; by the time it returns, the order has already
// been reverted to ACTIVE.
func (e *TradeExecutor) Execute(ctx context.Context, order *domain.ConditionalOrder) error {
	lock := e.userLock(order.OwnerID)
	lock.Lock()
	defer lock.Unlock()

	execPrice := order.ExecutionPrice()
	total := order.Amount * execPrice
	now := e.clock.Now()

	err := e.store.Transact(ctx, func(tx domain.TradeTx) error {
		user, err := tx.GetUser(ctx, order.OwnerID)
		if err != nil {
			return err
		}

		var txKind domain.TransactionKind
		var ledgerAmount float64

		switch order.Side {
		case domain.SideBuy:
			if user.Balance < total {
				return domain.ErrInsufficientFunds
			}
			if err := tx.AdjustBalance(ctx, user.ID, -total); err != nil {
				return err
			}
			if err := e.upsertPosition(ctx, tx, order, execPrice); err != nil {
				return err
			}
			txKind = domain.TxTradeBuy
			ledgerAmount = -total

		case domain.SideSell:
			pos, err := tx.GetPosition(ctx, order.OwnerID, order.Symbol)
			if err != nil {
				return err
			}
			if pos == nil || pos.Amount < order.Amount {
				return domain.ErrInsufficientHoldings
			}
			if err := tx.AdjustBalance(ctx, user.ID, total); err != nil {
				return err
			}
			pos.Amount -= order.Amount
			if pos.Amount <= 0 {
				if err := tx.DeletePosition(ctx, pos.OwnerID, pos.Symbol); err != nil {
					return err
				}
			} else if err := tx.SavePosition(ctx, pos); err != nil {
				return err
			}
			txKind = domain.TxTradeSell
			ledgerAmount = total

		default:
			return fmt.Errorf("%w: side %s", domain.ErrInvalidOrder, order.Side)
		}

		entry := &domain.Transaction{
			OwnerID:   order.OwnerID,
			Kind:      txKind,
			Amount:    ledgerAmount,
			CreatedAt: now,
		}
		if err := tx.AppendTransaction(ctx, entry); err != nil {
			return err
		}

		order.Status = domain.OrderCompleted
		order.CompletedAt = now
		order.ExecutedTradeID = entry.ID
		if err := tx.UpdateOrder(ctx, order); err != nil {
			return err
		}

		if order.OCO != nil {
			if err := e.cancelSibling(ctx, tx, order, now); err != nil {
				return err
			}
		}
		return nil
	})

	if err != nil {
		e.revertToActive(ctx, order)
		e.logger.Warn("trade execution failed, order reverted to active",
			zap.String("order_id", order.ID),
			zap.String("symbol", order.Symbol),
			zap.String("owner_id", order.OwnerID),
			zap.Error(err))
		return fmt.Errorf("%w: %v", domain.ErrExecutionFailed, err)
	}

	e.logger.Info("order executed",
		zap.String("order_id", order.ID),
		zap.String("symbol", order.Symbol),
		zap.String("side", string(order.Side)),
		zap.Float64("amount", order.Amount),
		zap.Float64("price", execPrice),
		zap.Float64("total", total))
	return nil
}

func (e *TradeExecutor) upsertPosition(ctx context.Context, tx domain.TradeTx, order *domain.ConditionalOrder, execPrice float64) error {
	pos, err := tx.GetPosition(ctx, order.OwnerID, order.Symbol)
	if err != nil {
		return err
	}
	if pos == nil {
		return tx.SavePosition(ctx, &domain.Position{
			OwnerID:      order.OwnerID,
			Symbol:       order.Symbol,
			Amount:       order.Amount,
			AveragePrice: execPrice,
		})
	}
	newAmount := pos.Amount + order.Amount
	pos.AveragePrice = (pos.Amount*pos.AveragePrice + order.Amount*execPrice) / newAmount
	pos.Amount = newAmount
	return tx.SavePosition(ctx, pos)
}

// cancelSibling retracts the other leg of an OCO pair inside the same
// transaction: at most one side of a pair ever completes.
func (e *TradeExecutor) cancelSibling(ctx context.Context, tx domain.TradeTx, order *domain.ConditionalOrder, now time.Time) error {
	siblingID := order.OCO.SiblingID(order.ID)
	if siblingID == "" {
		return nil
	}
	sibling, err := tx.GetOrderForUpdate(ctx, siblingID)
	if err != nil {
		return fmt.Errorf("load oco sibling %s: %w", siblingID, err)
	}
	if sibling.Status == domain.OrderCompleted || sibling.Status == domain.OrderCanceled {
		return nil
	}
	sibling.Status = domain.OrderCanceled
	sibling.CanceledAt = now
	return tx.UpdateOrder(ctx, sibling)
}

// revertToActive puts a failed fill back into the evaluation set. The trigger
// condition will fire again on the next qualifying tick; there is no retry
// within the same tick. The store-side transition only applies to a TRIGGERED
// order, so a cancellation that landed in the meantime is never undone.
func (e *TradeExecutor) revertToActive(ctx context.Context, order *domain.ConditionalOrder) {
	order.Status = domain.OrderActive
	order.TriggeredAt = time.Time{}
	order.CompletedAt = time.Time{}
	order.ExecutedTradeID = 0
	if err := e.orders.ReactivateOrder(ctx, order.ID); err != nil {
		e.logger.Error("failed to revert order to active",
			zap.String("order_id", order.ID), zap.Error(err))
	}
}
