package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/vitos/crypto_market_sim/internal/infrastructure/feed"
	"github.com/vitos/crypto_market_sim/internal/infrastructure/logger"
	"github.com/vitos/crypto_market_sim/internal/infrastructure/storage"
	"github.com/vitos/crypto_market_sim/internal/usecase"
	"github.com/vitos/crypto_market_sim/internal/web"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Database struct {
		Path string `yaml:"path"`
	} `yaml:"database"`
	Tick struct {
		IntervalMs int `yaml:"interval_ms"`
	} `yaml:"tick"`
	Market struct {
		DefaultVolatility float64 `yaml:"default_volatility"`
		FeedMaxAgeMs      int     `yaml:"feed_max_age_ms"`
		FetchTimeoutMs    int     `yaml:"fetch_timeout_ms"`
	} `yaml:"market"`
	Feed struct {
		Enabled            bool    `yaml:"enabled"`
		WSEndpoint         string  `yaml:"ws_endpoint"`
		RESTEndpoint       string  `yaml:"rest_endpoint"`
		RESTRequestsPerSec float64 `yaml:"rest_requests_per_sec"`
	} `yaml:"feed"`
	Symbols []struct {
		Symbol       string  `yaml:"symbol"`
		InitialPrice float64 `yaml:"initial_price"`
		Volatility   float64 `yaml:"volatility"`
	} `yaml:"symbols"`
	Logging struct {
		Level string `yaml:"level"`
	} `yaml:"logging"`
	Server struct {
		Port int `yaml:"port"`
	} `yaml:"server"`
}

func loadConfig(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg Config
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func main() {
	// .env is optional; real config lives in config.yaml
	_ = godotenv.Load()

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config/config.yaml"
	}
	cfg, err := loadConfig(configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.NewLogger(cfg.Logging.Level)
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	dbPath := cfg.Database.Path
	if dbPath == "" {
		dbPath = "simulator.db"
	}
	store, err := storage.NewSQLiteStore(dbPath)
	if err != nil {
		log.Fatal("Failed to init sqlite", zap.Error(err))
	}
	defer store.Close()

	clock := usecase.RealClock{}

	// REST fallback is optional; without it the random walk takes over.
	var fetcher *feed.RESTFetcher
	if cfg.Feed.RESTEndpoint != "" {
		fetcher = feed.NewRESTFetcher(cfg.Feed.RESTEndpoint,
			time.Duration(cfg.Market.FetchTimeoutMs)*time.Millisecond,
			cfg.Feed.RESTRequestsPerSec)
	}

	marketCfg := usecase.MarketConfig{
		DefaultVolatility: cfg.Market.DefaultVolatility,
		FeedMaxAge:        time.Duration(cfg.Market.FeedMaxAgeMs) * time.Millisecond,
		FetchTimeout:      time.Duration(cfg.Market.FetchTimeoutMs) * time.Millisecond,
	}
	var market *usecase.MarketService
	if fetcher != nil {
		market = usecase.NewMarketService(store, fetcher, log, clock, marketCfg)
	} else {
		market = usecase.NewMarketService(store, nil, log, clock, marketCfg)
	}

	symbols := make([]string, 0, len(cfg.Symbols))
	for _, s := range cfg.Symbols {
		market.RegisterSymbol(s.Symbol, s.InitialPrice, s.Volatility)
		symbols = append(symbols, s.Symbol)
	}
	if err := market.LoadInitialPrices(context.Background()); err != nil {
		log.Error("Failed to load initial prices", zap.Error(err))
	}

	auditLog, err := logger.NewFileLogger("trades.log", cfg.Logging.Level)
	if err != nil {
		log.Error("Failed to init trade audit logger, using default", zap.Error(err))
		auditLog = log
	}

	executor := usecase.NewTradeExecutor(store, store, auditLog, clock)
	book := usecase.NewOrderBook(store, executor, log, clock)
	orderService := usecase.NewOrderService(store, store, market, log, clock)
	accountService := usecase.NewAccountService(store, log, clock)

	hub := web.NewHub(log)
	interval := time.Duration(cfg.Tick.IntervalMs) * time.Millisecond
	driver := usecase.NewTickDriver(market, book, store, hub, interval, log, clock)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Streaming feed pushes quotes into the market's read-mostly cache.
	if cfg.Feed.Enabled && cfg.Feed.WSEndpoint != "" {
		listener := feed.NewListener(cfg.Feed.WSEndpoint, log)
		listener.OnPriceUpdate(func(symbol string, price float64, at time.Time) {
			market.UpdateFeedPrice(symbol, price, at)
		})
		if err := listener.Subscribe(symbols); err != nil {
			log.Warn("Failed to subscribe to price feed", zap.Error(err))
		}
		defer listener.Close()
	}

	go driver.Run(ctx)

	port := cfg.Server.Port
	if port == 0 {
		port = 8080
	}
	server := web.NewServer(port, market, orderService, accountService, hub, log)
	go func() {
		if err := server.Start(); err != nil {
			log.Fatal("Server failed", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	log.Info("Shutting down...")
	cancel()
	server.Shutdown(context.Background())
}
