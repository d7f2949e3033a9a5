package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/vitos/crypto_market_sim/internal/domain"
)

// dbtx is satisfied by both *sql.DB and *sql.Tx so every query runs the same
// inside and outside a transaction.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// SQLiteStore implements PriceRepository, OrderRepository and AccountStore on
// a single SQLite database. Transact gives the trade executor its
// all-or-nothing commit boundary.
type SQLiteStore struct {
	db *sql.DB
	queries
}

type queries struct {
	db dbtx
}

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, err
	}

	store := &SQLiteStore{db: db, queries: queries{db: db}}
	if err := store.initSchema(); err != nil {
		return nil, err
	}
	return store, nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

func (s *SQLiteStore) initSchema() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			balance REAL NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS prices (
			symbol TEXT PRIMARY KEY,
			price REAL NOT NULL,
			updated_at DATETIME NOT NULL,
			open REAL NOT NULL,
			high REAL NOT NULL,
			low REAL NOT NULL,
			last_day_key TEXT NOT NULL,
			manip_phase TEXT,
			manip_start DATETIME,
			manip_end DATETIME,
			manip_end_value REAL,
			manip_original_price REAL,
			manip_duration_ms INTEGER,
			manip_cooldown_end DATETIME
		);`,
		`CREATE TABLE IF NOT EXISTS orders (
			id TEXT PRIMARY KEY,
			owner_id TEXT NOT NULL,
			symbol TEXT NOT NULL,
			side TEXT NOT NULL,
			kind TEXT NOT NULL,
			amount REAL NOT NULL,
			status TEXT NOT NULL,
			stop_price REAL NOT NULL DEFAULT 0,
			limit_price REAL NOT NULL DEFAULT 0,
			trailing_kind TEXT,
			trailing_value REAL,
			trailing_ref REAL NOT NULL DEFAULT 0,
			oco_stop_id TEXT,
			oco_limit_id TEXT,
			executed_trade_id INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL,
			triggered_at DATETIME,
			completed_at DATETIME,
			canceled_at DATETIME
		);`,
		`CREATE INDEX IF NOT EXISTS idx_orders_symbol_status ON orders(symbol, status);`,
		`CREATE INDEX IF NOT EXISTS idx_orders_owner ON orders(owner_id);`,
		`CREATE TABLE IF NOT EXISTS positions (
			owner_id TEXT NOT NULL,
			symbol TEXT NOT NULL,
			amount REAL NOT NULL,
			average_price REAL NOT NULL,
			PRIMARY KEY (owner_id, symbol)
		);`,
		`CREATE TABLE IF NOT EXISTS transactions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			owner_id TEXT NOT NULL,
			kind TEXT NOT NULL,
			amount REAL NOT NULL,
			created_at DATETIME NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_transactions_owner ON transactions(owner_id);`,
	}

	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to exec schema statement: %w", err)
		}
	}
	return nil
}

// Transact runs fn inside one transaction. Any error rolls back every
// mutation fn made.
func (s *SQLiteStore) Transact(ctx context.Context, fn func(tx domain.TradeTx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(&queries{db: tx}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("%w (rollback failed: %v)", err, rbErr)
		}
		return err
	}
	return tx.Commit()
}

// --- PriceRepository ---

func (q *queries) SavePrice(ctx context.Context, state *domain.PriceState) error {
	var (
		phase, start, end, endValue, origPrice, durationMs, cooldownEnd any
	)
	if m := state.Manipulation; m != nil {
		phase = string(m.Phase)
		start = m.StartTime
		end = m.EndTime
		endValue = m.EndValue
		origPrice = m.OriginalPrice
		durationMs = m.DurationMs
		if !m.CoolDownEndTime.IsZero() {
			cooldownEnd = m.CoolDownEndTime
		}
	}

	query := `INSERT INTO prices (symbol, price, updated_at, open, high, low, last_day_key,
			manip_phase, manip_start, manip_end, manip_end_value, manip_original_price, manip_duration_ms, manip_cooldown_end)
		  VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		  ON CONFLICT(symbol) DO UPDATE SET
			price=excluded.price, updated_at=excluded.updated_at,
			open=excluded.open, high=excluded.high, low=excluded.low,
			last_day_key=excluded.last_day_key,
			manip_phase=excluded.manip_phase, manip_start=excluded.manip_start,
			manip_end=excluded.manip_end, manip_end_value=excluded.manip_end_value,
			manip_original_price=excluded.manip_original_price,
			manip_duration_ms=excluded.manip_duration_ms,
			manip_cooldown_end=excluded.manip_cooldown_end`
	_, err := q.db.ExecContext(ctx, query,
		state.Symbol, state.Price, state.UpdatedAt, state.Open, state.High, state.Low, state.LastDayKey,
		phase, start, end, endValue, origPrice, durationMs, cooldownEnd)
	return err
}

const priceColumns = `symbol, price, updated_at, open, high, low, last_day_key,
	manip_phase, manip_start, manip_end, manip_end_value, manip_original_price, manip_duration_ms, manip_cooldown_end`

func scanPrice(row interface{ Scan(dest ...any) error }) (*domain.PriceState, error) {
	var p domain.PriceState
	var phase sql.NullString
	var start, end, cooldownEnd sql.NullTime
	var endValue, origPrice sql.NullFloat64
	var durationMs sql.NullInt64

	err := row.Scan(&p.Symbol, &p.Price, &p.UpdatedAt, &p.Open, &p.High, &p.Low, &p.LastDayKey,
		&phase, &start, &end, &endValue, &origPrice, &durationMs, &cooldownEnd)
	if err != nil {
		return nil, err
	}
	if phase.Valid {
		p.Manipulation = &domain.ManipulationState{
			Phase:         domain.ManipulationPhase(phase.String),
			StartTime:     start.Time,
			EndTime:       end.Time,
			EndValue:      endValue.Float64,
			OriginalPrice: origPrice.Float64,
			DurationMs:    durationMs.Int64,
		}
		if cooldownEnd.Valid {
			p.Manipulation.CoolDownEndTime = cooldownEnd.Time
		}
	}
	return &p, nil
}

func (q *queries) GetPrice(ctx context.Context, symbol string) (*domain.PriceState, error) {
	row := q.db.QueryRowContext(ctx, `SELECT `+priceColumns+` FROM prices WHERE symbol = ?`, symbol)
	state, err := scanPrice(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrSymbolNotFound
	}
	return state, err
}

func (q *queries) ListPrices(ctx context.Context) ([]*domain.PriceState, error) {
	rows, err := q.db.QueryContext(ctx, `SELECT `+priceColumns+` FROM prices ORDER BY symbol`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var states []*domain.PriceState
	for rows.Next() {
		state, err := scanPrice(rows)
		if err != nil {
			return nil, err
		}
		states = append(states, state)
	}
	return states, rows.Err()
}

// --- OrderRepository ---

const orderColumns = `id, owner_id, symbol, side, kind, amount, status, stop_price, limit_price,
	trailing_kind, trailing_value, trailing_ref, oco_stop_id, oco_limit_id,
	executed_trade_id, created_at, triggered_at, completed_at, canceled_at`

func (q *queries) SaveOrder(ctx context.Context, o *domain.ConditionalOrder) error {
	var trailingKind, trailingValue, ocoStop, ocoLimit any
	if o.TrailingDelta != nil {
		trailingKind = string(o.TrailingDelta.Kind)
		trailingValue = o.TrailingDelta.Value
	}
	if o.OCO != nil {
		ocoStop = o.OCO.StopOrderID
		ocoLimit = o.OCO.LimitOrderID
	}

	query := `INSERT INTO orders (` + orderColumns + `)
		  VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := q.db.ExecContext(ctx, query,
		o.ID, o.OwnerID, o.Symbol, string(o.Side), string(o.Kind), o.Amount, string(o.Status),
		o.StopPrice, o.LimitPrice, trailingKind, trailingValue, o.TrailingReferencePrice,
		ocoStop, ocoLimit, o.ExecutedTradeID, o.CreatedAt,
		nullTime(o.TriggeredAt), nullTime(o.CompletedAt), nullTime(o.CanceledAt))
	return err
}

func (q *queries) UpdateOrder(ctx context.Context, o *domain.ConditionalOrder) error {
	query := `UPDATE orders SET status = ?, stop_price = ?, trailing_ref = ?,
			executed_trade_id = ?, triggered_at = ?, completed_at = ?, canceled_at = ?
		  WHERE id = ?`
	res, err := q.db.ExecContext(ctx, query,
		string(o.Status), o.StopPrice, o.TrailingReferencePrice, o.ExecutedTradeID,
		nullTime(o.TriggeredAt), nullTime(o.CompletedAt), nullTime(o.CanceledAt), o.ID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err == nil && n == 0 {
		return domain.ErrOrderNotFound
	}
	return err
}

// MarkTriggered guards the transition with the persisted status: a row already
// CANCELED or COMPLETED is left untouched and reported as not active.
func (q *queries) MarkTriggered(ctx context.Context, id string, at time.Time) error {
	res, err := q.db.ExecContext(ctx,
		`UPDATE orders SET status = ?, triggered_at = ? WHERE id = ? AND status = ?`,
		string(domain.OrderTriggered), at, id, string(domain.OrderActive))
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err == nil && n == 0 {
		return domain.ErrOrderNotActive
	}
	return err
}

// ReactivateOrder undoes a failed fill. Only a TRIGGERED row qualifies;
// anything else keeps its status.
func (q *queries) ReactivateOrder(ctx context.Context, id string) error {
	_, err := q.db.ExecContext(ctx,
		`UPDATE orders SET status = ?, triggered_at = NULL, completed_at = NULL, executed_trade_id = 0
		 WHERE id = ? AND status = ?`,
		string(domain.OrderActive), id, string(domain.OrderTriggered))
	return err
}

func scanOrder(row interface{ Scan(dest ...any) error }) (*domain.ConditionalOrder, error) {
	var o domain.ConditionalOrder
	var side, kind, status string
	var trailingKind sql.NullString
	var trailingValue sql.NullFloat64
	var ocoStop, ocoLimit sql.NullString
	var triggeredAt, completedAt, canceledAt sql.NullTime

	err := row.Scan(&o.ID, &o.OwnerID, &o.Symbol, &side, &kind, &o.Amount, &status,
		&o.StopPrice, &o.LimitPrice, &trailingKind, &trailingValue, &o.TrailingReferencePrice,
		&ocoStop, &ocoLimit, &o.ExecutedTradeID, &o.CreatedAt,
		&triggeredAt, &completedAt, &canceledAt)
	if err != nil {
		return nil, err
	}

	o.Side = domain.Side(side)
	o.Kind = domain.OrderKind(kind)
	o.Status = domain.OrderStatus(status)
	if trailingKind.Valid {
		o.TrailingDelta = &domain.TrailingDelta{
			Kind:  domain.TrailingDeltaKind(trailingKind.String),
			Value: trailingValue.Float64,
		}
	}
	if ocoStop.Valid && ocoLimit.Valid {
		o.OCO = &domain.OCOPair{StopOrderID: ocoStop.String, LimitOrderID: ocoLimit.String}
	}
	o.TriggeredAt = triggeredAt.Time
	o.CompletedAt = completedAt.Time
	o.CanceledAt = canceledAt.Time
	return &o, nil
}

func (q *queries) GetOrder(ctx context.Context, id string) (*domain.ConditionalOrder, error) {
	row := q.db.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = ?`, id)
	order, err := scanOrder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrOrderNotFound
	}
	return order, err
}

// GetOrderForUpdate is GetOrder under the ambient transaction; SQLite's
// single-writer model makes the read-for-update distinction moot.
func (q *queries) GetOrderForUpdate(ctx context.Context, id string) (*domain.ConditionalOrder, error) {
	return q.GetOrder(ctx, id)
}

func (q *queries) listOrders(ctx context.Context, query string, args ...any) ([]*domain.ConditionalOrder, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []*domain.ConditionalOrder
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

func (q *queries) ListActiveOrdersBySymbol(ctx context.Context, symbol string) ([]*domain.ConditionalOrder, error) {
	return q.listOrders(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE symbol = ? AND status = ? ORDER BY created_at`,
		symbol, string(domain.OrderActive))
}

func (q *queries) ListOrdersByOwner(ctx context.Context, ownerID string, limit int) ([]*domain.ConditionalOrder, error) {
	return q.listOrders(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE owner_id = ? ORDER BY created_at DESC LIMIT ?`,
		ownerID, limit)
}

// --- AccountStore ---

func (q *queries) CreateUser(ctx context.Context, user *domain.User) error {
	_, err := q.db.ExecContext(ctx,
		`INSERT INTO users (id, balance, created_at) VALUES (?, ?, ?)`,
		user.ID, user.Balance, user.CreatedAt)
	return err
}

func (q *queries) GetUser(ctx context.Context, id string) (*domain.User, error) {
	row := q.db.QueryRowContext(ctx, `SELECT id, balance, created_at FROM users WHERE id = ?`, id)
	var u domain.User
	err := row.Scan(&u.ID, &u.Balance, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (q *queries) AdjustBalance(ctx context.Context, userID string, delta float64) error {
	res, err := q.db.ExecContext(ctx,
		`UPDATE users SET balance = balance + ? WHERE id = ?`, delta, userID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err == nil && n == 0 {
		return domain.ErrUserNotFound
	}
	return err
}

func (q *queries) GetPosition(ctx context.Context, ownerID, symbol string) (*domain.Position, error) {
	row := q.db.QueryRowContext(ctx,
		`SELECT owner_id, symbol, amount, average_price FROM positions WHERE owner_id = ? AND symbol = ?`,
		ownerID, symbol)
	var p domain.Position
	err := row.Scan(&p.OwnerID, &p.Symbol, &p.Amount, &p.AveragePrice)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (q *queries) SavePosition(ctx context.Context, pos *domain.Position) error {
	query := `INSERT INTO positions (owner_id, symbol, amount, average_price)
		  VALUES (?, ?, ?, ?)
		  ON CONFLICT(owner_id, symbol) DO UPDATE SET
			amount=excluded.amount, average_price=excluded.average_price`
	_, err := q.db.ExecContext(ctx, query, pos.OwnerID, pos.Symbol, pos.Amount, pos.AveragePrice)
	return err
}

func (q *queries) DeletePosition(ctx context.Context, ownerID, symbol string) error {
	_, err := q.db.ExecContext(ctx,
		`DELETE FROM positions WHERE owner_id = ? AND symbol = ?`, ownerID, symbol)
	return err
}

func (q *queries) ListPositions(ctx context.Context, ownerID string) ([]*domain.Position, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT owner_id, symbol, amount, average_price FROM positions WHERE owner_id = ? ORDER BY symbol`,
		ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var positions []*domain.Position
	for rows.Next() {
		var p domain.Position
		if err := rows.Scan(&p.OwnerID, &p.Symbol, &p.Amount, &p.AveragePrice); err != nil {
			return nil, err
		}
		positions = append(positions, &p)
	}
	return positions, rows.Err()
}

func (q *queries) AppendTransaction(ctx context.Context, tx *domain.Transaction) error {
	res, err := q.db.ExecContext(ctx,
		`INSERT INTO transactions (owner_id, kind, amount, created_at) VALUES (?, ?, ?, ?)`,
		tx.OwnerID, string(tx.Kind), tx.Amount, tx.CreatedAt)
	if err != nil {
		return err
	}
	tx.ID, err = res.LastInsertId()
	return err
}

func (q *queries) ListTransactions(ctx context.Context, ownerID string, limit int) ([]*domain.Transaction, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT id, owner_id, kind, amount, created_at FROM transactions WHERE owner_id = ? ORDER BY id DESC LIMIT ?`,
		ownerID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var txs []*domain.Transaction
	for rows.Next() {
		var t domain.Transaction
		var kind string
		if err := rows.Scan(&t.ID, &t.OwnerID, &kind, &t.Amount, &t.CreatedAt); err != nil {
			return nil, err
		}
		t.Kind = domain.TransactionKind(kind)
		txs = append(txs, &t)
	}
	return txs, rows.Err()
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
