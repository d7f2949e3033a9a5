package usecase

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/vitos/crypto_market_sim/internal/domain"
	"go.uber.org/zap"
)

// OrderService handles order placement and cancellation from outside the tick
// loop. Placement validates the kind/field invariant; cancellation treats the
// persisted status as the single source of truth.
type OrderService struct {
	orders domain.OrderRepository
	store  domain.AccountStore
	market *MarketService
	logger *zap.Logger
	clock  Clock
}

func NewOrderService(orders domain.OrderRepository, store domain.AccountStore, market *MarketService, logger *zap.Logger, clock Clock) *OrderService {
	return &OrderService{
		orders: orders,
		store:  store,
		market: market,
		logger: logger,
		clock:  clock,
	}
}

func (s *OrderService) validateCommon(ctx context.Context, ownerID, symbol string, amount float64) error {
	if amount <= 0 {
		return domain.ErrInvalidAmount
	}
	if _, err := s.store.GetUser(ctx, ownerID); err != nil {
		return domain.ErrUserNotFound
	}
	if _, err := s.market.GetPrice(symbol); err != nil {
		return domain.ErrSymbolNotFound
	}
	return nil
}

// PlaceStopLimit creates an ACTIVE stop-limit order.
func (s *OrderService) PlaceStopLimit(ctx context.Context, ownerID, symbol string, side domain.Side, amount, stopPrice, limitPrice float64) (*domain.ConditionalOrder, error) {
	if err := s.validateCommon(ctx, ownerID, symbol, amount); err != nil {
		return nil, err
	}
	if stopPrice <= 0 || limitPrice <= 0 {
		return nil, fmt.Errorf("%w: stop and limit prices must be positive", domain.ErrInvalidOrder)
	}

	order := &domain.ConditionalOrder{
		ID:         uuid.NewString(),
		OwnerID:    ownerID,
		Symbol:     symbol,
		Side:       side,
		Kind:       domain.OrderStopLimit,
		Amount:     amount,
		Status:     domain.OrderActive,
		StopPrice:  stopPrice,
		LimitPrice: limitPrice,
		CreatedAt:  s.clock.Now(),
	}
	if err := s.orders.SaveOrder(ctx, order); err != nil {
		return nil, err
	}
	s.logOrderPlaced(order)
	return order, nil
}

// PlaceTrailingStop creates an ACTIVE trailing stop. The reference price
// starts at the symbol's current price and from then on tracks the running
// extreme on every tick.
func (s *OrderService) PlaceTrailingStop(ctx context.Context, ownerID, symbol string, side domain.Side, amount float64, delta domain.TrailingDelta) (*domain.ConditionalOrder, error) {
	if err := s.validateCommon(ctx, ownerID, symbol, amount); err != nil {
		return nil, err
	}
	if delta.Value <= 0 {
		return nil, fmt.Errorf("%w: trailing delta must be positive", domain.ErrInvalidOrder)
	}
	if delta.Kind != domain.TrailingPercentage && delta.Kind != domain.TrailingAbsolute {
		return nil, fmt.Errorf("%w: unknown trailing delta kind %q", domain.ErrInvalidOrder, delta.Kind)
	}

	state, err := s.market.GetPrice(symbol)
	if err != nil {
		return nil, err
	}

	d := delta
	order := &domain.ConditionalOrder{
		ID:                     uuid.NewString(),
		OwnerID:                ownerID,
		Symbol:                 symbol,
		Side:                   side,
		Kind:                   domain.OrderTrailingStop,
		Amount:                 amount,
		Status:                 domain.OrderActive,
		TrailingDelta:          &d,
		TrailingReferencePrice: state.Price,
		CreatedAt:              s.clock.Now(),
	}
	if err := s.orders.SaveOrder(ctx, order); err != nil {
		return nil, err
	}
	s.logOrderPlaced(order)
	return order, nil
}

// OCOLeg carries the trigger and fill prices for one leg of an OCO pair.
type OCOLeg struct {
	StopPrice  float64
	LimitPrice float64
}

// PlaceOCO creates both legs of a one-cancels-the-other pair as independent
// records linked by id: a stop leg and a limit leg, each with its own stop
// and limit price. Completing either cancels the other.
func (s *OrderService) PlaceOCO(ctx context.Context, ownerID, symbol string, side domain.Side, amount float64, stopLeg, limitLeg OCOLeg) (*domain.ConditionalOrder, *domain.ConditionalOrder, error) {
	if err := s.validateCommon(ctx, ownerID, symbol, amount); err != nil {
		return nil, nil, err
	}
	if stopLeg.StopPrice <= 0 || stopLeg.LimitPrice <= 0 || limitLeg.StopPrice <= 0 || limitLeg.LimitPrice <= 0 {
		return nil, nil, fmt.Errorf("%w: oco leg prices must be positive", domain.ErrInvalidOrder)
	}

	now := s.clock.Now()
	pair := &domain.OCOPair{
		StopOrderID:  uuid.NewString(),
		LimitOrderID: uuid.NewString(),
	}

	stopOrder := &domain.ConditionalOrder{
		ID:         pair.StopOrderID,
		OwnerID:    ownerID,
		Symbol:     symbol,
		Side:       side,
		Kind:       domain.OrderOCO,
		Amount:     amount,
		Status:     domain.OrderActive,
		StopPrice:  stopLeg.StopPrice,
		LimitPrice: stopLeg.LimitPrice,
		OCO:        &domain.OCOPair{StopOrderID: pair.StopOrderID, LimitOrderID: pair.LimitOrderID},
		CreatedAt:  now,
	}
	limitOrder := &domain.ConditionalOrder{
		ID:         pair.LimitOrderID,
		OwnerID:    ownerID,
		Symbol:     symbol,
		Side:       side,
		Kind:       domain.OrderOCO,
		Amount:     amount,
		Status:     domain.OrderActive,
		StopPrice:  limitLeg.StopPrice,
		LimitPrice: limitLeg.LimitPrice,
		OCO:        &domain.OCOPair{StopOrderID: pair.StopOrderID, LimitOrderID: pair.LimitOrderID},
		CreatedAt:  now,
	}

	if err := s.orders.SaveOrder(ctx, stopOrder); err != nil {
		return nil, nil, err
	}
	if err := s.orders.SaveOrder(ctx, limitOrder); err != nil {
		return nil, nil, err
	}
	s.logOrderPlaced(stopOrder)
	s.logOrderPlaced(limitOrder)
	return stopOrder, limitOrder, nil
}

// CancelOrder retracts an ACTIVE order owned by ownerID.
func (s *OrderService) CancelOrder(ctx context.Context, id, ownerID string) (*domain.ConditionalOrder, error) {
	order, err := s.orders.GetOrder(ctx, id)
	if err != nil {
		return nil, domain.ErrOrderNotFound
	}
	if order.OwnerID != ownerID {
		return nil, domain.ErrNotOrderOwner
	}
	if order.Status != domain.OrderActive {
		return nil, domain.ErrOrderNotActive
	}

	order.Status = domain.OrderCanceled
	order.CanceledAt = s.clock.Now()
	if err := s.orders.UpdateOrder(ctx, order); err != nil {
		return nil, err
	}
	s.logger.Info("order canceled",
		zap.String("order_id", order.ID),
		zap.String("owner_id", ownerID))
	return order, nil
}

// ListOrders returns a user's orders, newest first.
func (s *OrderService) ListOrders(ctx context.Context, ownerID string, limit int) ([]*domain.ConditionalOrder, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.orders.ListOrdersByOwner(ctx, ownerID, limit)
}

func (s *OrderService) logOrderPlaced(order *domain.ConditionalOrder) {
	s.logger.Info("order placed",
		zap.String("order_id", order.ID),
		zap.String("owner_id", order.OwnerID),
		zap.String("symbol", order.Symbol),
		zap.String("kind", string(order.Kind)),
		zap.String("side", string(order.Side)),
		zap.Float64("amount", order.Amount))
}
