package web

import (
	"context"
	"fmt"
	"net/http"

	"github.com/vitos/crypto_market_sim/internal/usecase"
	"go.uber.org/zap"
)

type Server struct {
	router   *http.ServeMux
	server   *http.Server
	market   *usecase.MarketService
	orders   *usecase.OrderService
	accounts *usecase.AccountService
	hub      *Hub
	logger   *zap.Logger
}

func NewServer(
	port int,
	market *usecase.MarketService,
	orders *usecase.OrderService,
	accounts *usecase.AccountService,
	hub *Hub,
	logger *zap.Logger,
) *Server {
	s := &Server{
		router:   http.NewServeMux(),
		market:   market,
		orders:   orders,
		accounts: accounts,
		hub:      hub,
		logger:   logger,
	}
	s.routes()
	s.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: s.router,
	}
	return s
}

func (s *Server) routes() {
	// Prices
	s.router.HandleFunc("GET /api/prices", s.handleListPrices)
	s.router.HandleFunc("GET /api/prices/{symbol}", s.handleGetPrice)

	// Manipulation (admin)
	s.router.HandleFunc("POST /api/manipulation", s.handleSetManipulation)

	// Users
	s.router.HandleFunc("POST /api/users", s.handleCreateUser)
	s.router.HandleFunc("GET /api/users/{id}", s.handleGetUser)
	s.router.HandleFunc("POST /api/users/{id}/deposit", s.handleDeposit)
	s.router.HandleFunc("POST /api/users/{id}/withdraw", s.handleWithdraw)
	s.router.HandleFunc("GET /api/users/{id}/positions", s.handleListPositions)
	s.router.HandleFunc("GET /api/users/{id}/transactions", s.handleListTransactions)

	// Orders
	s.router.HandleFunc("POST /api/orders", s.handlePlaceOrder)
	s.router.HandleFunc("DELETE /api/orders/{id}", s.handleCancelOrder)
	s.router.HandleFunc("GET /api/orders", s.handleListOrders)

	// Live price stream
	s.router.HandleFunc("GET /ws/prices", s.hub.HandleWS)
}

func (s *Server) Start() error {
	s.logger.Info("Starting web server", zap.String("addr", s.server.Addr))
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
