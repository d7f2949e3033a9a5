package usecase

import (
	"context"
	"math"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/vitos/crypto_market_sim/internal/domain"
	"go.uber.org/zap"
)

const (
	// priceFloor keeps the random walk strictly positive.
	priceFloor = 1e-8
	// manipulationNoiseAmp is the pseudo-volatility layered on top of the
	// eased trajectory, as a fraction of the base price.
	manipulationNoiseAmp = 0.002
)

// MarketConfig tunes price resolution behaviour.
type MarketConfig struct {
	// DefaultVolatility bounds the per-tick random walk when no external
	// price is available.
	DefaultVolatility float64
	// FeedMaxAge is how long a streamed quote stays usable.
	FeedMaxAge time.Duration
	// FetchTimeout bounds the REST fallback fetch.
	FetchTimeout time.Duration
}

type feedQuote struct {
	price float64
	at    time.Time
}

// symbolSlot gives each symbol its own writer lock so the tick driver can
// advance symbols in parallel while readers take consistent copies.
type symbolSlot struct {
	mu         sync.Mutex
	state      *domain.PriceState
	volatility float64
}

// MarketService owns the per-symbol price table: the synthetic price state
// machine of the simulator. It resolves each tick's market price through the
// priority chain streamed feed -> REST fallback -> bounded random walk, and
// applies the manipulation trajectory when one is set.
type MarketService struct {
	priceRepo domain.PriceRepository
	fetcher   domain.PriceFetcher
	logger    *zap.Logger
	clock     Clock
	cfg       MarketConfig

	mu    sync.RWMutex
	slots map[string]*symbolSlot

	feedMu sync.RWMutex
	feed   map[string]feedQuote
}

func NewMarketService(priceRepo domain.PriceRepository, fetcher domain.PriceFetcher, logger *zap.Logger, clock Clock, cfg MarketConfig) *MarketService {
	if cfg.DefaultVolatility <= 0 {
		cfg.DefaultVolatility = 0.001
	}
	if cfg.FeedMaxAge <= 0 {
		cfg.FeedMaxAge = 10 * time.Second
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = 3 * time.Second
	}
	return &MarketService{
		priceRepo: priceRepo,
		fetcher:   fetcher,
		logger:    logger,
		clock:     clock,
		cfg:       cfg,
		slots:     make(map[string]*symbolSlot),
		feed:      make(map[string]feedQuote),
	}
}

// RegisterSymbol adds a symbol with its starting price. Existing symbols keep
// their state; only the volatility is refreshed.
func (s *MarketService) RegisterSymbol(symbol string, initialPrice, volatility float64) {
	if volatility <= 0 {
		volatility = s.cfg.DefaultVolatility
	}
	now := s.clock.Now()

	s.mu.Lock()
	defer s.mu.Unlock()
	if slot, ok := s.slots[symbol]; ok {
		slot.volatility = volatility
		return
	}
	s.slots[symbol] = &symbolSlot{
		state: &domain.PriceState{
			Symbol:     symbol,
			Price:      initialPrice,
			UpdatedAt:  now,
			Open:       initialPrice,
			High:       initialPrice,
			Low:        initialPrice,
			LastDayKey: now.UTC().Format(domain.DayKeyFormat),
		},
		volatility: volatility,
	}
}

// LoadInitialPrices restores persisted price states for already registered
// symbols, so a restart resumes from the stored price and OHLC envelope.
func (s *MarketService) LoadInitialPrices(ctx context.Context) error {
	states, err := s.priceRepo.ListPrices(ctx)
	if err != nil {
		return err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, st := range states {
		slot, ok := s.slots[st.Symbol]
		if !ok {
			continue
		}
		slot.mu.Lock()
		slot.state = st.Clone()
		slot.mu.Unlock()
	}
	return nil
}

// Symbols returns all registered symbols in stable order.
func (s *MarketService) Symbols() []string {
	s.mu.RLock()
	symbols := make([]string, 0, len(s.slots))
	for sym := range s.slots {
		symbols = append(symbols, sym)
	}
	s.mu.RUnlock()
	sort.Strings(symbols)
	return symbols
}

// GetPrice returns a copy of the current state for one symbol.
func (s *MarketService) GetPrice(symbol string) (*domain.PriceState, error) {
	slot := s.slot(symbol)
	if slot == nil {
		return nil, domain.ErrSymbolNotFound
	}
	slot.mu.Lock()
	defer slot.mu.Unlock()
	return slot.state.Clone(), nil
}

// Snapshot returns copies of every symbol's state, ordered by symbol.
func (s *MarketService) Snapshot() []*domain.PriceState {
	symbols := s.Symbols()
	out := make([]*domain.PriceState, 0, len(symbols))
	for _, sym := range symbols {
		if st, err := s.GetPrice(sym); err == nil {
			out = append(out, st)
		}
	}
	return out
}

// UpdateFeedPrice records a streamed quote. Called from the feed listener
// goroutine; the tick loop only ever reads the cache.
func (s *MarketService) UpdateFeedPrice(symbol string, price float64, at time.Time) {
	if price <= 0 {
		return
	}
	s.feedMu.Lock()
	s.feed[symbol] = feedQuote{price: price, at: at}
	s.feedMu.Unlock()
}

// SetManipulation installs an eased price trajectory for a symbol. A command
// arriving while one is active or cooling down overwrites it, anchored at the
// symbol's current price.
func (s *MarketService) SetManipulation(ctx context.Context, symbol string, startTime, endTime time.Time, endValue float64) error {
	if !endTime.After(startTime) {
		return domain.ErrInvalidWindow
	}
	slot := s.slot(symbol)
	if slot == nil {
		return domain.ErrSymbolNotFound
	}

	slot.mu.Lock()
	slot.state.Manipulation = domain.NewManipulation(startTime, endTime, endValue, slot.state.Price)
	snapshot := slot.state.Clone()
	slot.mu.Unlock()

	s.logger.Info("manipulation set",
		zap.String("symbol", symbol),
		zap.Time("start", startTime),
		zap.Time("end", endTime),
		zap.Float64("end_value", endValue),
		zap.Float64("original_price", snapshot.Manipulation.OriginalPrice))

	return s.priceRepo.SavePrice(ctx, snapshot)
}

// Advance moves one symbol's price state forward by a tick and returns a copy
// of the result. Phase ordering guarantees continuity at every boundary: the
// active window ends exactly at EndValue, and the cooldown blend starts from
// EndValue rather than the last noisy price.
func (s *MarketService) Advance(ctx context.Context, symbol string, now time.Time) (*domain.PriceState, error) {
	slot := s.slot(symbol)
	if slot == nil {
		return nil, domain.ErrSymbolNotFound
	}

	slot.mu.Lock()
	defer slot.mu.Unlock()
	state := slot.state

	market := s.resolveMarketPrice(ctx, symbol, state.Price, slot.volatility, now)

	var next float64
	m := state.Manipulation
	switch {
	case m == nil:
		next = market
	case m.Phase == domain.ManipulationActive && now.Before(m.EndTime):
		elapsed := now.Sub(m.StartTime).Milliseconds()
		base := Ease(m.OriginalPrice, m.EndValue, m.DurationMs, elapsed)
		next = base + s.manipulationNoise(base, now)
	case m.Phase == domain.ManipulationActive:
		// Window elapsed: anchor the cooldown at the target value.
		m.EnterCooldown()
		next = m.EndValue
	case m.Phase == domain.ManipulationCooldown && now.Before(m.CoolDownEndTime):
		total := m.CoolDownEndTime.Sub(m.EndTime).Milliseconds()
		elapsed := now.Sub(m.EndTime).Milliseconds()
		next = Ease(m.EndValue, market, total, elapsed)
	default:
		state.Manipulation = nil
		next = market
	}

	if next < priceFloor {
		next = priceFloor
	}
	next = RoundPrice(next)

	// The envelope resets to the first price of the new UTC day, not to the
	// previous day's close.
	dayKey := now.UTC().Format(domain.DayKeyFormat)
	if state.LastDayKey != dayKey {
		state.ResetDay(dayKey, next)
	}
	state.ApplyPrice(next, now)
	return state.Clone(), nil
}

func (s *MarketService) slot(symbol string) *symbolSlot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.slots[symbol]
}

// resolveMarketPrice walks the fallback chain: streamed quote, REST fetch,
// bounded random walk. Failures are absorbed here and never abort a tick.
func (s *MarketService) resolveMarketPrice(ctx context.Context, symbol string, lastPrice, volatility float64, now time.Time) float64 {
	s.feedMu.RLock()
	quote, ok := s.feed[symbol]
	s.feedMu.RUnlock()
	if ok && now.Sub(quote.at) <= s.cfg.FeedMaxAge {
		return quote.price
	}

	if s.fetcher != nil {
		fetchCtx, cancel := context.WithTimeout(ctx, s.cfg.FetchTimeout)
		price, err := s.fetcher.FetchPrice(fetchCtx, symbol)
		cancel()
		if err == nil && price > 0 {
			return price
		}
		s.logger.Debug("fallback fetch failed, using random walk",
			zap.String("symbol", symbol), zap.Error(err))
	}

	return s.randomWalk(lastPrice, volatility)
}

func (s *MarketService) randomWalk(lastPrice, volatility float64) float64 {
	drift := (rand.Float64()*2 - 1) * volatility
	return math.Max(priceFloor, lastPrice*(1+drift))
}

// manipulationNoise layers two out-of-phase sine waves plus a little uniform
// noise over the eased trajectory so the manipulated price does not render as
// a straight line. Total amplitude stays near 0.2% of the base price.
func (s *MarketService) manipulationNoise(base float64, now time.Time) float64 {
	t := float64(now.UnixMilli()) / 1000.0
	w1 := math.Sin(2 * math.Pi * t / 7.3)
	w2 := math.Sin(2*math.Pi*t/2.9 + 1.7)
	n := rand.Float64()*2 - 1
	return base * manipulationNoiseAmp * (0.45*w1 + 0.35*w2 + 0.2*n)
}
