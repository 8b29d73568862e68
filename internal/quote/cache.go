package quote

import (
	"context"
	"fmt"
	"time"

	"github.com/dgraph-io/ristretto"

	"github.com/Rahwulkumar/trading-journal/internal/metrics"
	"github.com/Rahwulkumar/trading-journal/internal/model"
)

// CandleCache memoises historical candles in front of another Source.
// Live quotes are never cached.
type CandleCache struct {
	Source
	cache   *ristretto.Cache
	ttl     time.Duration
	metrics *metrics.Metrics
}

// NewCandleCache wraps src. A non-positive ttl disables caching.
func NewCandleCache(src Source, ttl time.Duration, m *metrics.Metrics) (*CandleCache, error) {
	c, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 1e5,
		MaxCost:     1 << 14,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("candle cache: %w", err)
	}
	return &CandleCache{Source: src, cache: c, ttl: ttl, metrics: m}, nil
}

func (c *CandleCache) GetHistoricalCandles(ctx context.Context, symbol, timeframe string, start, end time.Time) ([]model.Candle, error) {
	if c.ttl <= 0 || start.IsZero() || end.IsZero() {
		return c.Source.GetHistoricalCandles(ctx, symbol, timeframe, start, end)
	}
	key := fmt.Sprintf("%s|%s|%d|%d", NormalizeSymbol(symbol), timeframe, start.Unix(), end.Unix())
	if v, ok := c.cache.Get(key); ok {
		c.metrics.CandleCache(true)
		return v.([]model.Candle), nil
	}
	c.metrics.CandleCache(false)

	candles, err := c.Source.GetHistoricalCandles(ctx, symbol, timeframe, start, end)
	if err != nil {
		return nil, err
	}
	c.cache.SetWithTTL(key, candles, 1, c.ttl)
	return candles, nil
}

// Wait blocks until pending cache writes are applied.
func (c *CandleCache) Wait() { c.cache.Wait() }

// Close releases the cache's goroutines.
func (c *CandleCache) Close() { c.cache.Close() }
