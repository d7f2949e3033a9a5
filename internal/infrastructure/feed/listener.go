package feed

import (
	"encoding/json"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Listener maintains a websocket subscription to an external exchange ticker
// stream and pushes every quote into registered callbacks. It is best-effort:
// the simulator keeps ticking from its fallback chain while the stream is
// down, and the listener reconnects with backoff.
type Listener struct {
	wsURL  string
	logger *zap.Logger

	mu         sync.Mutex
	conn       *websocket.Conn
	callbacks  []func(symbol string, price float64, at time.Time)
	subscribed map[string]bool
	closed     bool
}

func NewListener(wsURL string, logger *zap.Logger) *Listener {
	return &Listener{
		wsURL:      wsURL,
		logger:     logger,
		subscribed: make(map[string]bool),
	}
}

// OnPriceUpdate registers a callback invoked for every streamed quote.
// Callbacks run on the read-loop goroutine and must not block.
func (l *Listener) OnPriceUpdate(cb func(symbol string, price float64, at time.Time)) {
	l.mu.Lock()
	l.callbacks = append(l.callbacks, cb)
	l.mu.Unlock()
}

// Subscribe ensures the connection is up and subscribed to the given
// symbols. Already subscribed symbols are skipped.
func (l *Listener) Subscribe(symbols []string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.conn == nil {
		conn, _, err := websocket.DefaultDialer.Dial(l.wsURL, nil)
		if err != nil {
			return err
		}
		l.conn = conn
		go l.readLoop(conn)
	}

	var args []string
	for _, s := range symbols {
		if l.subscribed[s] {
			continue
		}
		args = append(args, "tickers."+s)
		l.subscribed[s] = true
	}
	if len(args) == 0 {
		return nil
	}

	msg := map[string]any{"op": "subscribe", "args": args}
	return l.conn.WriteJSON(msg)
}

// Close stops the listener permanently.
func (l *Listener) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	if l.conn != nil {
		return l.conn.Close()
	}
	return nil
}

func (l *Listener) readLoop(conn *websocket.Conn) {
	defer l.reconnect()
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			l.logger.Warn("feed read error", zap.Error(err))
			return
		}

		var event struct {
			Topic string `json:"topic"`
			Data  struct {
				Symbol    string `json:"symbol"`
				LastPrice string `json:"lastPrice"`
			} `json:"data"`
		}
		if err := json.Unmarshal(message, &event); err != nil {
			continue
		}
		if !strings.HasPrefix(event.Topic, "tickers.") {
			continue
		}

		symbol := event.Data.Symbol
		if symbol == "" {
			symbol = strings.TrimPrefix(event.Topic, "tickers.")
		}
		price, err := strconv.ParseFloat(event.Data.LastPrice, 64)
		if err != nil || price <= 0 {
			continue
		}

		now := time.Now()
		l.mu.Lock()
		callbacks := make([]func(string, float64, time.Time), len(l.callbacks))
		copy(callbacks, l.callbacks)
		l.mu.Unlock()

		for _, cb := range callbacks {
			cb(symbol, price, now)
		}
	}
}

func (l *Listener) reconnect() {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.conn = nil
	symbols := make([]string, 0, len(l.subscribed))
	for s := range l.subscribed {
		symbols = append(symbols, s)
		delete(l.subscribed, s)
	}
	l.mu.Unlock()

	time.Sleep(5 * time.Second)
	if err := l.Subscribe(symbols); err != nil {
		l.logger.Warn("feed reconnect failed", zap.Error(err))
		go l.reconnect()
	}
}
