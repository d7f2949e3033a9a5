package feed

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/vitos/crypto_market_sim/internal/domain"
)

func tickerResponse(lastPrice string) string {
	return `{"result":{"list":[{"lastPrice":"` + lastPrice + `"}]}}`
}

func TestFetchPriceParsesTicker(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("symbol") != "BTCUSDT" {
			http.Error(w, "wrong symbol", http.StatusBadRequest)
			return
		}
		w.Write([]byte(tickerResponse("45123.5")))
	}))
	defer srv.Close()

	fetcher := NewRESTFetcher(srv.URL, time.Second, 100)
	price, err := fetcher.FetchPrice(context.Background(), "BTCUSDT")
	if err != nil {
		t.Fatalf("FetchPrice: %v", err)
	}
	if price != 45123.5 {
		t.Errorf("price = %v, want 45123.5", price)
	}
}

func TestFetchPriceServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	fetcher := NewRESTFetcher(srv.URL, time.Second, 100)
	_, err := fetcher.FetchPrice(context.Background(), "BTCUSDT")
	if !errors.Is(err, domain.ErrFeedUnavailable) {
		t.Errorf("want ErrFeedUnavailable, got %v", err)
	}
}

func TestFetchPriceBadPayloads(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"empty list", `{"result":{"list":[]}}`},
		{"not json", `<html>`},
		{"zero price", tickerResponse("0")},
		{"garbage price", tickerResponse("abc")},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(c.body))
			}))
			defer srv.Close()

			fetcher := NewRESTFetcher(srv.URL, time.Second, 100)
			_, err := fetcher.FetchPrice(context.Background(), "BTCUSDT")
			if !errors.Is(err, domain.ErrFeedUnavailable) {
				t.Errorf("want ErrFeedUnavailable, got %v", err)
			}
		})
	}
}

func TestFetchPriceRateLimited(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Write([]byte(tickerResponse("100")))
	}))
	defer srv.Close()

	// Burst of one: the second immediate request must be throttled locally.
	fetcher := NewRESTFetcher(srv.URL, time.Second, 0.001)
	if _, err := fetcher.FetchPrice(context.Background(), "BTCUSDT"); err != nil {
		t.Fatalf("first fetch: %v", err)
	}
	_, err := fetcher.FetchPrice(context.Background(), "BTCUSDT")
	if !errors.Is(err, domain.ErrFeedUnavailable) {
		t.Errorf("want ErrFeedUnavailable on throttle, got %v", err)
	}
	if calls != 1 {
		t.Errorf("server saw %d calls, want 1", calls)
	}
}
