package usecase

import (
	"context"
	"sync"
	"time"

	"github.com/vitos/crypto_market_sim/internal/domain"
	"go.uber.org/zap"
)

// Broadcaster receives the full ordered price snapshot after each tick.
// Implemented by the websocket fan-out hub.
type Broadcaster interface {
	BroadcastPrices(states []*domain.PriceState)
}

// TickDriver is the scheduling loop: once per interval it advances every
// tracked symbol's price series, persists it, pushes the snapshot to
// subscribers and runs the order book for that symbol. The driver itself is
// stateless beyond the timer; all per-symbol state lives in the market
// service.
type TickDriver struct {
	market      *MarketService
	book        *OrderBook
	priceRepo   domain.PriceRepository
	broadcaster Broadcaster
	interval    time.Duration
	logger      *zap.Logger
	clock       Clock
}

func NewTickDriver(market *MarketService, book *OrderBook, priceRepo domain.PriceRepository, broadcaster Broadcaster, interval time.Duration, logger *zap.Logger, clock Clock) *TickDriver {
	if interval <= 0 {
		interval = time.Second
	}
	return &TickDriver{
		market:      market,
		book:        book,
		priceRepo:   priceRepo,
		broadcaster: broadcaster,
		interval:    interval,
		logger:      logger,
		clock:       clock,
	}
}

// Run drives ticks until the context is canceled. Ticks for a single symbol
// are strictly ordered in time; nothing inside a tick may block it forever.
func (d *TickDriver) Run(ctx context.Context) {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	d.logger.Info("tick driver started", zap.Duration("interval", d.interval))
	for {
		select {
		case <-ctx.Done():
			d.logger.Info("tick driver stopped")
			return
		case <-ticker.C:
			d.Tick(ctx)
		}
	}
}

// Tick processes all symbols once. Symbols have no cross-dependency and run
// in parallel; user-level exclusivity is enforced further down in the
// executor.
func (d *TickDriver) Tick(ctx context.Context) {
	now := d.clock.Now()
	symbols := d.market.Symbols()

	var wg sync.WaitGroup
	for _, symbol := range symbols {
		wg.Add(1)
		go func(symbol string) {
			defer wg.Done()
			d.processSymbol(ctx, symbol, now)
		}(symbol)
	}
	wg.Wait()

	if d.broadcaster != nil {
		d.broadcaster.BroadcastPrices(d.market.Snapshot())
	}
}

func (d *TickDriver) processSymbol(ctx context.Context, symbol string, now time.Time) {
	state, err := d.market.Advance(ctx, symbol, now)
	if err != nil {
		d.logger.Error("failed to advance price series",
			zap.String("symbol", symbol), zap.Error(err))
		return
	}
	if err := d.priceRepo.SavePrice(ctx, state); err != nil {
		// Persistence trouble must not stop evaluation of this tick.
		d.logger.Error("failed to persist price state",
			zap.String("symbol", symbol), zap.Error(err))
	}
	d.book.Evaluate(ctx, symbol, state.Price)
}
