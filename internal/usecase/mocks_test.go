package usecase_test

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/vitos/crypto_market_sim/internal/domain"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(t time.Time) *fakeClock { return &fakeClock{now: t} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// memStore is an in-memory AccountStore + OrderRepository + PriceRepository.
// Transact takes a snapshot and restores it on error, so rollback behaves
// like the real database. FailOn lets tests inject a failure at a named
// mutation point.
type memStore struct {
	mu        sync.Mutex
	users     map[string]*domain.User
	positions map[string]*domain.Position
	orders    map[string]*domain.ConditionalOrder
	ledger    []*domain.Transaction
	prices    map[string]*domain.PriceState
	nextTxID  int64

	FailOn map[string]bool
}

func newMemStore() *memStore {
	return &memStore{
		users:     make(map[string]*domain.User),
		positions: make(map[string]*domain.Position),
		orders:    make(map[string]*domain.ConditionalOrder),
		prices:    make(map[string]*domain.PriceState),
		FailOn:    make(map[string]bool),
	}
}

func posKey(ownerID, symbol string) string { return ownerID + "|" + symbol }

func (m *memStore) fail(op string) error {
	if m.FailOn[op] {
		return fmt.Errorf("injected failure at %s", op)
	}
	return nil
}

// --- AccountStore ---

func (m *memStore) CreateUser(ctx context.Context, user *domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u := *user
	m.users[user.ID] = &u
	return nil
}

func (m *memStore) GetUser(ctx context.Context, id string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *memStore) AdjustBalance(ctx context.Context, userID string, delta float64) error {
	if err := m.fail("AdjustBalance"); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return domain.ErrUserNotFound
	}
	u.Balance += delta
	return nil
}

func (m *memStore) GetPosition(ctx context.Context, ownerID, symbol string) (*domain.Position, error) {
	if err := m.fail("GetPosition"); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.positions[posKey(ownerID, symbol)]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (m *memStore) SavePosition(ctx context.Context, pos *domain.Position) error {
	if err := m.fail("SavePosition"); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *pos
	m.positions[posKey(pos.OwnerID, pos.Symbol)] = &cp
	return nil
}

func (m *memStore) DeletePosition(ctx context.Context, ownerID, symbol string) error {
	if err := m.fail("DeletePosition"); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.positions, posKey(ownerID, symbol))
	return nil
}

func (m *memStore) AppendTransaction(ctx context.Context, tx *domain.Transaction) error {
	if err := m.fail("AppendTransaction"); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextTxID++
	tx.ID = m.nextTxID
	cp := *tx
	m.ledger = append(m.ledger, &cp)
	return nil
}

func (m *memStore) ListTransactions(ctx context.Context, ownerID string, limit int) ([]*domain.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.Transaction
	for i := len(m.ledger) - 1; i >= 0 && len(out) < limit; i-- {
		if m.ledger[i].OwnerID == ownerID {
			cp := *m.ledger[i]
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memStore) ListPositions(ctx context.Context, ownerID string) ([]*domain.Position, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.Position
	for _, p := range m.positions {
		if p.OwnerID == ownerID {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memStore) Transact(ctx context.Context, fn func(tx domain.TradeTx) error) error {
	snapshot := m.snapshot()
	if err := fn(m); err != nil {
		m.restore(snapshot)
		return err
	}
	return nil
}

type storeSnapshot struct {
	users     map[string]*domain.User
	positions map[string]*domain.Position
	orders    map[string]*domain.ConditionalOrder
	ledger    []*domain.Transaction
	nextTxID  int64
}

func (m *memStore) snapshot() storeSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := storeSnapshot{
		users:     make(map[string]*domain.User, len(m.users)),
		positions: make(map[string]*domain.Position, len(m.positions)),
		orders:    make(map[string]*domain.ConditionalOrder, len(m.orders)),
		ledger:    make([]*domain.Transaction, len(m.ledger)),
		nextTxID:  m.nextTxID,
	}
	for k, v := range m.users {
		cp := *v
		s.users[k] = &cp
	}
	for k, v := range m.positions {
		cp := *v
		s.positions[k] = &cp
	}
	for k, v := range m.orders {
		cp := cloneOrder(v)
		s.orders[k] = cp
	}
	copy(s.ledger, m.ledger)
	return s
}

func (m *memStore) restore(s storeSnapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users = s.users
	m.positions = s.positions
	m.orders = s.orders
	m.ledger = s.ledger
	m.nextTxID = s.nextTxID
}

// --- OrderRepository ---

func cloneOrder(o *domain.ConditionalOrder) *domain.ConditionalOrder {
	cp := *o
	if o.TrailingDelta != nil {
		d := *o.TrailingDelta
		cp.TrailingDelta = &d
	}
	if o.OCO != nil {
		p := *o.OCO
		cp.OCO = &p
	}
	return &cp
}

func (m *memStore) SaveOrder(ctx context.Context, order *domain.ConditionalOrder) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders[order.ID] = cloneOrder(order)
	return nil
}

func (m *memStore) GetOrder(ctx context.Context, id string) (*domain.ConditionalOrder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, domain.ErrOrderNotFound
	}
	return cloneOrder(o), nil
}

func (m *memStore) GetOrderForUpdate(ctx context.Context, id string) (*domain.ConditionalOrder, error) {
	return m.GetOrder(ctx, id)
}

func (m *memStore) UpdateOrder(ctx context.Context, order *domain.ConditionalOrder) error {
	if err := m.fail("UpdateOrder"); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.orders[order.ID]; !ok {
		return domain.ErrOrderNotFound
	}
	m.orders[order.ID] = cloneOrder(order)
	return nil
}

func (m *memStore) MarkTriggered(ctx context.Context, id string, at time.Time) error {
	if err := m.fail("MarkTriggered"); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return domain.ErrOrderNotFound
	}
	if o.Status != domain.OrderActive {
		return domain.ErrOrderNotActive
	}
	o.Status = domain.OrderTriggered
	o.TriggeredAt = at
	return nil
}

func (m *memStore) ReactivateOrder(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok || o.Status != domain.OrderTriggered {
		return nil
	}
	o.Status = domain.OrderActive
	o.TriggeredAt = time.Time{}
	o.CompletedAt = time.Time{}
	o.ExecutedTradeID = 0
	return nil
}

func (m *memStore) ListActiveOrdersBySymbol(ctx context.Context, symbol string) ([]*domain.ConditionalOrder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.ConditionalOrder
	for _, o := range m.orders {
		if o.Symbol == symbol && o.Status == domain.OrderActive {
			out = append(out, cloneOrder(o))
		}
	}
	return out, nil
}

func (m *memStore) ListOrdersByOwner(ctx context.Context, ownerID string, limit int) ([]*domain.ConditionalOrder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.ConditionalOrder
	for _, o := range m.orders {
		if o.OwnerID == ownerID && len(out) < limit {
			out = append(out, cloneOrder(o))
		}
	}
	return out, nil
}

// --- PriceRepository ---

func (m *memStore) SavePrice(ctx context.Context, state *domain.PriceState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prices[state.Symbol] = state.Clone()
	return nil
}

func (m *memStore) GetPrice(ctx context.Context, symbol string) (*domain.PriceState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.prices[symbol]
	if !ok {
		return nil, domain.ErrSymbolNotFound
	}
	return p.Clone(), nil
}

func (m *memStore) ListPrices(ctx context.Context) ([]*domain.PriceState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.PriceState
	for _, p := range m.prices {
		out = append(out, p.Clone())
	}
	return out, nil
}

// fakeFetcher is a scripted PriceFetcher.
type fakeFetcher struct {
	mu    sync.Mutex
	price float64
	err   error
	calls int
}

func (f *fakeFetcher) FetchPrice(ctx context.Context, symbol string) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return 0, f.err
	}
	return f.price, nil
}
