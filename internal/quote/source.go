// Package quote fetches bid/ask quotes and historical candles from a market-data
// provider. Callers depend on Source only; whether the live TraderMade client or
// the deterministic mock is behind it is decided by configuration.
package quote

import (
	"context"
	"strings"
	"time"

	"github.com/Rahwulkumar/trading-journal/internal/model"
)

// Source is a market-data provider.
// All failures come back as values; implementations never panic past this boundary.
type Source interface {
	// GetQuote fetches the current quote for one symbol.
	GetQuote(ctx context.Context, symbol string) (model.Quote, error)

	// GetQuotes fetches quotes for a set of symbols in one batch.
	// It returns one result per distinct symbol; a failing symbol yields a
	// result with Err set rather than aborting the batch.
	GetQuotes(ctx context.Context, symbols []string) []model.QuoteResult

	// GetHistoricalCandles returns OHLC candles ordered by time ascending.
	// Zero start/end default to the last 24 hours.
	GetHistoricalCandles(ctx context.Context, symbol, timeframe string, start, end time.Time) ([]model.Candle, error)
}

// NormalizeSymbol upper-cases a symbol and strips separators ("eur/usd" -> "EURUSD").
func NormalizeSymbol(s string) string {
	s = strings.ToUpper(strings.TrimSpace(s))
	return strings.NewReplacer("/", "", "_", "", "-", "", " ", "").Replace(s)
}

// Distinct returns the normalized, de-duplicated symbols in first-seen order.
func Distinct(symbols []string) []string {
	seen := make(map[string]bool, len(symbols))
	out := make([]string, 0, len(symbols))
	for _, s := range symbols {
		n := NormalizeSymbol(s)
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	return out
}

// Successes filters a batch down to the quotes that resolved.
func Successes(results []model.QuoteResult) []model.Quote {
	out := make([]model.Quote, 0, len(results))
	for _, r := range results {
		if r.OK() {
			out = append(out, r.Quote)
		}
	}
	return out
}

// Failures returns the failed entries of a batch.
func Failures(results []model.QuoteResult) []model.QuoteResult {
	var out []model.QuoteResult
	for _, r := range results {
		if !r.OK() {
			out = append(out, r)
		}
	}
	return out
}

// MidLookup maps symbol to mid price for the successful entries only.
func MidLookup(results []model.QuoteResult) map[string]float64 {
	mids := make(map[string]float64, len(results))
	for _, r := range results {
		if r.OK() {
			mids[NormalizeSymbol(r.Symbol)] = r.Quote.Mid
		}
	}
	return mids
}

// failAll produces one failed result per symbol.
func failAll(symbols []string, err error) []model.QuoteResult {
	out := make([]model.QuoteResult, len(symbols))
	for i, s := range symbols {
		out[i] = model.QuoteResult{Symbol: s, Err: err}
	}
	return out
}

// window applies the default 24h range to zero bounds.
func window(start, end, now time.Time) (time.Time, time.Time) {
	if end.IsZero() {
		end = now
	}
	if start.IsZero() {
		start = end.Add(-24 * time.Hour)
	}
	return start, end
}
