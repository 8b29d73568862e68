package quote

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Rahwulkumar/trading-journal/internal/model"
)

func TestMock_Quotes(t *testing.T) {
	m := NewMock()
	q, err := m.GetQuote(context.Background(), "eurusd")
	require.NoError(t, err)
	assert.Equal(t, "EURUSD", q.Symbol)
	assert.InDelta(t, 1.08725, q.Mid, 1e-9)
	assert.Equal(t, MockTimestamp, q.Timestamp)

	res := m.GetQuotes(context.Background(), []string{"USDJPY", "XAUUSD"})
	require.Len(t, res, 2)
	assert.InDelta(t, 148.25, res[0].Quote.Mid, 1e-9)
	assert.ErrorIs(t, res[1].Err, ErrPriceUnavailable)
}

func TestMock_CandlesDeterministic(t *testing.T) {
	end := time.Date(2024, 1, 15, 14, 37, 0, 0, time.UTC)
	m := &Mock{Now: func() time.Time { return end }}

	a, err := m.GetHistoricalCandles(context.Background(), "GBPUSD", "1h", time.Time{}, time.Time{})
	require.NoError(t, err)
	b, err := m.GetHistoricalCandles(context.Background(), "GBPUSD", "1h", time.Time{}, end)
	require.NoError(t, err)

	require.Len(t, a, 24)
	assert.Equal(t, a, b)
	assert.Equal(t, "2024-01-15T14:00:00Z", a[23].Time)
	assert.Equal(t, "2024-01-14T15:00:00Z", a[0].Time)
	assert.Equal(t, 1.2645, a[0].Open)
	for _, c := range a {
		assert.GreaterOrEqual(t, c.High, c.Low)
		assert.GreaterOrEqual(t, c.High, c.Open)
		assert.LessOrEqual(t, c.Low, c.Close)
	}
}

func TestMock_UnknownSymbolUsesUnitBase(t *testing.T) {
	m := NewMock()
	candles, err := m.GetHistoricalCandles(context.Background(), "XYZABC", "1h", time.Time{}, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 1.0, candles[0].Open)
}

func TestCandleCache(t *testing.T) {
	src := &countingSource{Source: NewMock()}
	c, err := NewCandleCache(src, time.Minute, nil)
	require.NoError(t, err)
	defer c.Close()

	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(24 * time.Hour)
	first, err := c.GetHistoricalCandles(context.Background(), "EURUSD", "1h", start, end)
	require.NoError(t, err)
	c.Wait()
	second, err := c.GetHistoricalCandles(context.Background(), "EURUSD", "1h", start, end)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, src.candleCalls)
}

func TestNew_Selector(t *testing.T) {
	src, err := New(Settings{Kind: "mock"}, nil, nil, nil)
	require.NoError(t, err)
	_, ok := src.Source.(*Mock)
	assert.True(t, ok)

	src, err = New(Settings{Kind: "live", APIKey: "k"}, nil, nil, nil)
	require.NoError(t, err)
	_, ok = src.Source.(*TraderMade)
	assert.True(t, ok)

	_, err = New(Settings{Kind: "paper"}, nil, nil, nil)
	assert.Error(t, err)
}

func TestNormalizeAndDistinct(t *testing.T) {
	assert.Equal(t, "EURUSD", NormalizeSymbol(" eur/usd "))
	assert.Equal(t, "GBPJPY", NormalizeSymbol("gbp_jpy"))
	assert.Equal(t, []string{"EURUSD", "GBPUSD"}, Distinct([]string{"EURUSD", "eur-usd", "", "GBPUSD"}))
}

type countingSource struct {
	Source
	candleCalls int
}

func (c *countingSource) GetHistoricalCandles(ctx context.Context, symbol, timeframe string, start, end time.Time) ([]model.Candle, error) {
	c.candleCalls++
	return c.Source.GetHistoricalCandles(ctx, symbol, timeframe, start, end)
}
