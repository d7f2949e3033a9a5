package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/vitos/crypto_market_sim/internal/domain"
	"golang.org/x/time/rate"
)

// RESTFetcher is the polled fallback when no streamed quote is fresh. The
// rate limiter keeps tick-driven polling within the exchange's public quota;
// a throttled or failed request reports ErrFeedUnavailable so the caller
// moves on to the synthetic price.
type RESTFetcher struct {
	baseURL string
	client  *http.Client
	limiter *rate.Limiter
}

func NewRESTFetcher(baseURL string, timeout time.Duration, requestsPerSec float64) *RESTFetcher {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	if requestsPerSec <= 0 {
		requestsPerSec = 5
	}
	return &RESTFetcher{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(rate.Limit(requestsPerSec), 1),
	}
}

func (f *RESTFetcher) FetchPrice(ctx context.Context, symbol string) (float64, error) {
	if !f.limiter.Allow() {
		return 0, fmt.Errorf("%w: rate limited", domain.ErrFeedUnavailable)
	}

	url := f.baseURL + "/v5/market/tickers?category=spot&symbol=" + symbol
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", domain.ErrFeedUnavailable, err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", domain.ErrFeedUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return 0, fmt.Errorf("%w: status %d", domain.ErrFeedUnavailable, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", domain.ErrFeedUnavailable, err)
	}

	var result struct {
		Result struct {
			List []struct {
				LastPrice string `json:"lastPrice"`
			} `json:"list"`
		} `json:"result"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return 0, fmt.Errorf("%w: %v", domain.ErrFeedUnavailable, err)
	}
	if len(result.Result.List) == 0 {
		return 0, fmt.Errorf("%w: empty ticker list", domain.ErrFeedUnavailable)
	}

	price, err := strconv.ParseFloat(result.Result.List[0].LastPrice, 64)
	if err != nil || price <= 0 {
		return 0, fmt.Errorf("%w: bad price", domain.ErrFeedUnavailable)
	}
	return price, nil
}
