package quote

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"math/rand"
	"time"

	"github.com/Rahwulkumar/trading-journal/internal/model"
)

// MockTimestamp marks quotes produced by the mock source.
const MockTimestamp = "mock_data"

type bidAsk struct{ bid, ask float64 }

var mockBook = map[string]bidAsk{
	"EURUSD": {1.0870, 1.0875},
	"GBPUSD": {1.2645, 1.2650},
	"USDJPY": {148.20, 148.30},
	"GBPJPY": {187.40, 187.50},
	"AUDUSD": {0.6745, 0.6750},
	"USDCAD": {1.3645, 1.3650},
}

// Mock is an offline Source with a fixed quote book and reproducible candles.
type Mock struct {
	// Now is the clock used for default candle windows.
	Now func() time.Time
}

// NewMock returns a mock source on the wall clock.
func NewMock() *Mock { return &Mock{Now: time.Now} }

// MockSymbols lists the instruments the mock can price.
func MockSymbols() []string {
	return []string{"EURUSD", "GBPUSD", "USDJPY", "GBPJPY", "AUDUSD", "USDCAD"}
}

func (m *Mock) GetQuote(ctx context.Context, symbol string) (model.Quote, error) {
	if err := ctx.Err(); err != nil {
		return model.Quote{}, &TransportError{Err: err}
	}
	sym := NormalizeSymbol(symbol)
	p, ok := mockBook[sym]
	if !ok {
		return model.Quote{}, unavailable(sym)
	}
	return model.NewQuote(sym, p.bid, p.ask, MockTimestamp), nil
}

func (m *Mock) GetQuotes(ctx context.Context, symbols []string) []model.QuoteResult {
	syms := Distinct(symbols)
	out := make([]model.QuoteResult, len(syms))
	for i, s := range syms {
		q, err := m.GetQuote(ctx, s)
		out[i] = model.QuoteResult{Symbol: s, Quote: q, Err: err}
	}
	return out
}

// GetHistoricalCandles generates 24 hourly candles ending at the hour of end.
// The series depends only on symbol and end hour, so repeated calls agree.
func (m *Mock) GetHistoricalCandles(ctx context.Context, symbol, timeframe string, start, end time.Time) ([]model.Candle, error) {
	if err := ctx.Err(); err != nil {
		return nil, &TransportError{Err: err}
	}
	sym := NormalizeSymbol(symbol)
	if sym == "" {
		return nil, fmt.Errorf("symbol is required")
	}
	now := time.Now
	if m.Now != nil {
		now = m.Now
	}
	_, end = window(start, end, now())
	end = end.UTC().Truncate(time.Hour)

	base := 1.0
	if p, ok := mockBook[sym]; ok {
		base = p.bid
	}

	h := fnv.New64a()
	_, _ = h.Write([]byte(sym))
	rng := rand.New(rand.NewSource(int64(h.Sum64()) ^ end.Unix()))

	const n = 24
	candles := make([]model.Candle, 0, n)
	price := base
	for i := n - 1; i >= 0; i-- {
		open := price
		cl := open * (1 + (rng.Float64()-0.5)*0.002)
		high := math.Max(open, cl) * (1 + rng.Float64()*0.0005)
		low := math.Min(open, cl) * (1 - rng.Float64()*0.0005)
		candles = append(candles, model.Candle{
			Time:  end.Add(-time.Duration(i) * time.Hour).Format(time.RFC3339),
			Open:  round5(open),
			High:  round5(high),
			Low:   round5(low),
			Close: round5(cl),
		})
		price = cl
	}
	return candles, nil
}

func round5(v float64) float64 { return math.Round(v*1e5) / 1e5 }
