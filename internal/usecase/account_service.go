package usecase

import (
	"context"

	"github.com/google/uuid"
	"github.com/vitos/crypto_market_sim/internal/domain"
	"go.uber.org/zap"
)

// AccountService covers the cash side of a user account: creation, deposits
// and withdrawals. Every balance mutation produces exactly one ledger entry,
// committed in the same transaction as the balance change.
type AccountService struct {
	store  domain.AccountStore
	logger *zap.Logger
	clock  Clock
}

func NewAccountService(store domain.AccountStore, logger *zap.Logger, clock Clock) *AccountService {
	return &AccountService{store: store, logger: logger, clock: clock}
}

func (s *AccountService) CreateUser(ctx context.Context) (*domain.User, error) {
	user := &domain.User{
		ID:        uuid.NewString(),
		Balance:   0,
		CreatedAt: s.clock.Now(),
	}
	if err := s.store.CreateUser(ctx, user); err != nil {
		return nil, err
	}
	s.logger.Info("user created", zap.String("user_id", user.ID))
	return user, nil
}

func (s *AccountService) GetUser(ctx context.Context, id string) (*domain.User, error) {
	return s.store.GetUser(ctx, id)
}

func (s *AccountService) Deposit(ctx context.Context, userID string, amount float64) error {
	if amount <= 0 {
		return domain.ErrInvalidAmount
	}
	now := s.clock.Now()
	return s.store.Transact(ctx, func(tx domain.TradeTx) error {
		if _, err := tx.GetUser(ctx, userID); err != nil {
			return err
		}
		if err := tx.AdjustBalance(ctx, userID, amount); err != nil {
			return err
		}
		return tx.AppendTransaction(ctx, &domain.Transaction{
			OwnerID:   userID,
			Kind:      domain.TxDeposit,
			Amount:    amount,
			CreatedAt: now,
		})
	})
}

func (s *AccountService) Withdraw(ctx context.Context, userID string, amount float64) error {
	if amount <= 0 {
		return domain.ErrInvalidAmount
	}
	now := s.clock.Now()
	return s.store.Transact(ctx, func(tx domain.TradeTx) error {
		user, err := tx.GetUser(ctx, userID)
		if err != nil {
			return err
		}
		if user.Balance < amount {
			return domain.ErrInsufficientFunds
		}
		if err := tx.AdjustBalance(ctx, userID, -amount); err != nil {
			return err
		}
		return tx.AppendTransaction(ctx, &domain.Transaction{
			OwnerID:   userID,
			Kind:      domain.TxWithdraw,
			Amount:    -amount,
			CreatedAt: now,
		})
	})
}

func (s *AccountService) ListTransactions(ctx context.Context, userID string, limit int) ([]*domain.Transaction, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.store.ListTransactions(ctx, userID, limit)
}

func (s *AccountService) ListPositions(ctx context.Context, userID string) ([]*domain.Position, error) {
	return s.store.ListPositions(ctx, userID)
}
