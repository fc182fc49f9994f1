package settlement

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"sync"
	"time"

	"github.com/upmolt/backend/internal/metrics"
)

const DefaultPriceURL = "https://api.coingecko.com/api/v3/simple/price?ids=solana&vs_currencies=usd"

// Quoter caches the SOL/USD price for ttl. When the feed fails it serves the
// last good price, or fallback when there is none.
type Quoter struct {
	url      string
	ttl      time.Duration
	fallback float64
	client   *http.Client
	log      *slog.Logger
	now      func() time.Time

	mu     sync.Mutex
	price  float64
	quoted time.Time
}

func NewQuoter(url string, ttl time.Duration, fallback float64, log *slog.Logger) *Quoter {
	if url == "" {
		url = DefaultPriceURL
	}
	if log == nil {
		log = slog.Default()
	}
	return &Quoter{
		url:      url,
		ttl:      ttl,
		fallback: fallback,
		client:   &http.Client{Timeout: 5 * time.Second},
		log:      log,
		now:      time.Now,
	}
}

// Price returns the SOL/USD price. It never fails.
func (q *Quoter) Price(ctx context.Context) float64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.price > 0 && q.now().Sub(q.quoted) < q.ttl {
		return q.price
	}
	p, err := q.fetch(ctx)
	if err != nil {
		q.log.Warn("sol price feed unavailable", "error", err)
		if q.price > 0 {
			return q.price
		}
		return q.fallback
	}
	q.price, q.quoted = p, q.now()
	metrics.SOLPrice.Set(p)
	return p
}

// ToSOL converts usd at the current price, rounded to 6 decimals.
func (q *Quoter) ToSOL(ctx context.Context, usd float64) float64 {
	return math.Round(usd/q.Price(ctx)*1e6) / 1e6
}

func (q *Quoter) fetch(ctx context.Context) (float64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, q.url, nil)
	if err != nil {
		return 0, err
	}
	resp, err := q.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("price feed returned %d", resp.StatusCode)
	}
	var body struct {
		Solana struct {
			USD float64 `json:"usd"`
		} `json:"solana"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return 0, fmt.Errorf("decode price: %w", err)
	}
	if body.Solana.USD <= 0 {
		return 0, fmt.Errorf("price feed returned no usd price")
	}
	return body.Solana.USD, nil
}
