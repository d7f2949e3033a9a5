package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/vitos/crypto_market_sim/internal/domain"
	"github.com/vitos/crypto_market_sim/internal/usecase"
	"go.uber.org/zap"
)

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("Failed to encode response", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrUserNotFound),
		errors.Is(err, domain.ErrSymbolNotFound),
		errors.Is(err, domain.ErrOrderNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrInsufficientFunds),
		errors.Is(err, domain.ErrInsufficientHoldings):
		status = http.StatusConflict
	case errors.Is(err, domain.ErrInvalidWindow),
		errors.Is(err, domain.ErrInvalidOrder),
		errors.Is(err, domain.ErrInvalidAmount):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrNotOrderOwner):
		status = http.StatusForbidden
	case errors.Is(err, domain.ErrOrderNotActive):
		status = http.StatusConflict
	}
	s.writeJSON(w, status, map[string]string{"error": err.Error()})
}

// --- Prices ---

func (s *Server) handleListPrices(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.market.Snapshot())
}

func (s *Server) handleGetPrice(w http.ResponseWriter, r *http.Request) {
	state, err := s.market.GetPrice(r.PathValue("symbol"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, state)
}

// --- Manipulation ---

func (s *Server) handleSetManipulation(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Symbol    string    `json:"symbol"`
		StartTime time.Time `json:"start_time"`
		EndTime   time.Time `json:"end_time"`
		EndValue  float64   `json:"end_value"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if err := s.market.SetManipulation(r.Context(), req.Symbol, req.StartTime, req.EndTime, req.EndValue); err != nil {
		s.writeError(w, err)
		return
	}
	state, err := s.market.GetPrice(req.Symbol)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, state)
}

// --- Users ---

func (s *Server) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	user, err := s.accounts.CreateUser(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, user)
}

func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	user, err := s.accounts.GetUser(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, user)
}

type amountRequest struct {
	Amount float64 `json:"amount"`
}

func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request) {
	var req amountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := s.accounts.Deposit(r.Context(), r.PathValue("id"), req.Amount); err != nil {
		s.writeError(w, err)
		return
	}
	user, err := s.accounts.GetUser(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, user)
}

func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	var req amountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := s.accounts.Withdraw(r.Context(), r.PathValue("id"), req.Amount); err != nil {
		s.writeError(w, err)
		return
	}
	user, err := s.accounts.GetUser(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, user)
}

func (s *Server) handleListPositions(w http.ResponseWriter, r *http.Request) {
	positions, err := s.accounts.ListPositions(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, positions)
}

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	txs, err := s.accounts.ListTransactions(r.Context(), r.PathValue("id"), 100)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, txs)
}

// --- Orders ---

type placeOrderRequest struct {
	OwnerID    string  `json:"owner_id"`
	Symbol     string  `json:"symbol"`
	Side       string  `json:"side"`
	Kind       string  `json:"kind"`
	Amount     float64 `json:"amount"`
	StopPrice  float64 `json:"stop_price"`
	LimitPrice float64 `json:"limit_price"`
	Trailing   *struct {
		Kind  string  `json:"kind"`
		Value float64 `json:"value"`
	} `json:"trailing"`
	OCOStopLeg  *usecase.OCOLeg `json:"oco_stop_leg"`
	OCOLimitLeg *usecase.OCOLeg `json:"oco_limit_leg"`
}

func (s *Server) handlePlaceOrder(w http.ResponseWriter, r *http.Request) {
	var req placeOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	side := domain.Side(req.Side)
	switch domain.OrderKind(req.Kind) {
	case domain.OrderStopLimit:
		order, err := s.orders.PlaceStopLimit(r.Context(), req.OwnerID, req.Symbol, side, req.Amount, req.StopPrice, req.LimitPrice)
		if err != nil {
			s.writeError(w, err)
			return
		}
		s.writeJSON(w, http.StatusCreated, order)

	case domain.OrderTrailingStop:
		if req.Trailing == nil {
			http.Error(w, "trailing delta required", http.StatusBadRequest)
			return
		}
		order, err := s.orders.PlaceTrailingStop(r.Context(), req.OwnerID, req.Symbol, side, req.Amount, domain.TrailingDelta{
			Kind:  domain.TrailingDeltaKind(req.Trailing.Kind),
			Value: req.Trailing.Value,
		})
		if err != nil {
			s.writeError(w, err)
			return
		}
		s.writeJSON(w, http.StatusCreated, order)

	case domain.OrderOCO:
		if req.OCOStopLeg == nil || req.OCOLimitLeg == nil {
			http.Error(w, "both oco legs required", http.StatusBadRequest)
			return
		}
		stopOrder, limitOrder, err := s.orders.PlaceOCO(r.Context(), req.OwnerID, req.Symbol, side, req.Amount, *req.OCOStopLeg, *req.OCOLimitLeg)
		if err != nil {
			s.writeError(w, err)
			return
		}
		s.writeJSON(w, http.StatusCreated, []*domain.ConditionalOrder{stopOrder, limitOrder})

	default:
		http.Error(w, "unknown order kind", http.StatusBadRequest)
	}
}

func (s *Server) handleCancelOrder(w http.ResponseWriter, r *http.Request) {
	ownerID := r.URL.Query().Get("owner_id")
	order, err := s.orders.CancelOrder(r.Context(), r.PathValue("id"), ownerID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, order)
}

func (s *Server) handleListOrders(w http.ResponseWriter, r *http.Request) {
	ownerID := r.URL.Query().Get("owner_id")
	if ownerID == "" {
		http.Error(w, "owner_id required", http.StatusBadRequest)
		return
	}
	orders, err := s.orders.ListOrders(r.Context(), ownerID, 100)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, orders)
}
