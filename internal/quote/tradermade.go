package quote

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/spf13/cast"

	"github.com/Rahwulkumar/trading-journal/internal/breaker"
	"github.com/Rahwulkumar/trading-journal/internal/metrics"
	"github.com/Rahwulkumar/trading-journal/internal/model"
)

// DefaultBaseURL is TraderMade's REST API root.
const DefaultBaseURL = "https://marketdata.tradermade.com/api/v1"

// maxErrorBody bounds how much of an upstream error body is kept.
const maxErrorBody = 256

// TraderMade is the live Source backed by the TraderMade REST API.
type TraderMade struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	cb         *breaker.CircuitBreaker
	metrics    *metrics.Metrics
	health     *metrics.HealthStatus
	log        *slog.Logger
	now        func() time.Time
}

// TraderMadeConfig configures the live client.
type TraderMadeConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// NewTraderMade creates the live client. An empty APIKey is accepted; every call
// then fails with ErrNotConfigured.
func NewTraderMade(cfg TraderMadeConfig, m *metrics.Metrics, h *metrics.HealthStatus, log *slog.Logger) *TraderMade {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if log == nil {
		log = slog.Default()
	}

	cb := breaker.New("tradermade", 5, 15*time.Second)
	cb.IsFailure = func(err error) bool {
		var up *UpstreamError
		if errors.As(err, &up) {
			return up.Status >= 500 || up.Status == http.StatusTooManyRequests
		}
		var tr *TransportError
		return errors.As(err, &tr)
	}
	cb.OnStateChange = func(name string, from, to breaker.State) {
		log.Warn("circuit breaker transition", "breaker", name, "from", from.String(), "to", to.String())
		m.BreakerChanged(name, int(to))
	}

	return &TraderMade{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		cb:         cb,
		metrics:    m,
		health:     h,
		log:        log.With(slog.String("component", "tradermade")),
		now:        time.Now,
	}
}

// liveQuote is one entry of the /live response. TraderMade returns either an
// "instrument" or a base/quote currency pair, and numbers as JSON numbers or strings.
type liveQuote struct {
	Instrument    string `json:"instrument"`
	BaseCurrency  string `json:"base_currency"`
	QuoteCurrency string `json:"quote_currency"`
	Bid           any    `json:"bid"`
	Ask           any    `json:"ask"`
	Timestamp     any    `json:"timestamp"`
	Error         any    `json:"error"`
}

type liveResponse struct {
	Quotes    []liveQuote `json:"quotes"`
	Timestamp any         `json:"timestamp"`
}

type seriesRecord struct {
	Date  string `json:"date"`
	Open  any    `json:"open"`
	High  any    `json:"high"`
	Low   any    `json:"low"`
	Close any    `json:"close"`
}

type seriesResponse struct {
	Quotes []seriesRecord `json:"quotes"`
}

// GetQuote fetches one symbol through the batched path.
func (c *TraderMade) GetQuote(ctx context.Context, symbol string) (model.Quote, error) {
	res := c.GetQuotes(ctx, []string{symbol})
	if len(res) == 0 {
		return model.Quote{}, unavailable(NormalizeSymbol(symbol))
	}
	return res[0].Quote, res[0].Err
}

// GetQuotes issues a single /live request for all distinct symbols.
func (c *TraderMade) GetQuotes(ctx context.Context, symbols []string) []model.QuoteResult {
	syms := Distinct(symbols)
	if len(syms) == 0 {
		return nil
	}
	if c.apiKey == "" {
		return failAll(syms, ErrNotConfigured)
	}

	params := url.Values{}
	params.Set("currency", strings.Join(syms, ","))
	params.Set("api_key", c.apiKey)

	var resp liveResponse
	if err := c.getJSON(ctx, "/live", params, &resp); err != nil {
		return failAll(syms, err)
	}

	byInstrument := make(map[string]model.Quote, len(resp.Quotes))
	for _, q := range resp.Quotes {
		inst := q.Instrument
		if inst == "" {
			inst = q.BaseCurrency + q.QuoteCurrency
		}
		inst = NormalizeSymbol(inst)
		if inst == "" || q.Error != nil {
			continue
		}
		bid, errB := cast.ToFloat64E(q.Bid)
		ask, errA := cast.ToFloat64E(q.Ask)
		if errB != nil || errA != nil || bid <= 0 || ask <= 0 {
			continue
		}
		ts := q.Timestamp
		if ts == nil {
			ts = resp.Timestamp
		}
		byInstrument[inst] = model.NewQuote(inst, bid, ask, cast.ToString(ts))
	}

	out := make([]model.QuoteResult, len(syms))
	for i, s := range syms {
		if q, ok := byInstrument[s]; ok {
			out[i] = model.QuoteResult{Symbol: s, Quote: q}
		} else {
			out[i] = model.QuoteResult{Symbol: s, Err: unavailable(s)}
		}
	}
	return out
}

// GetHistoricalCandles calls /timeseries in records format.
// The provider works in whole days, so only the date part of start/end is sent.
func (c *TraderMade) GetHistoricalCandles(ctx context.Context, symbol, timeframe string, start, end time.Time) ([]model.Candle, error) {
	sym := NormalizeSymbol(symbol)
	if sym == "" {
		return nil, fmt.Errorf("symbol is required")
	}
	if c.apiKey == "" {
		return nil, ErrNotConfigured
	}
	start, end = window(start, end, c.now())

	params := url.Values{}
	params.Set("currency", sym)
	params.Set("api_key", c.apiKey)
	params.Set("start_date", start.Format("2006-01-02"))
	params.Set("end_date", end.Format("2006-01-02"))
	params.Set("format", "records")

	var resp seriesResponse
	if err := c.getJSON(ctx, "/timeseries", params, &resp); err != nil {
		return nil, err
	}

	candles := make([]model.Candle, 0, len(resp.Quotes))
	for _, r := range resp.Quotes {
		if r.Date == "" {
			continue
		}
		o, e1 := cast.ToFloat64E(r.Open)
		h, e2 := cast.ToFloat64E(r.High)
		l, e3 := cast.ToFloat64E(r.Low)
		cl, e4 := cast.ToFloat64E(r.Close)
		if err := errors.Join(e1, e2, e3, e4); err != nil {
			return nil, &DecodeError{Err: fmt.Errorf("candle %s: %w", r.Date, err)}
		}
		candles = append(candles, model.Candle{Time: r.Date, Open: o, High: h, Low: l, Close: cl})
	}
	sort.SliceStable(candles, func(i, j int) bool { return candles[i].Time < candles[j].Time })
	return candles, nil
}

// getJSON performs one GET through the circuit breaker and decodes the body into out.
func (c *TraderMade) getJSON(ctx context.Context, path string, params url.Values, out any) error {
	start := time.Now()
	err := c.cb.Execute(func() error {
		return c.doGet(ctx, path, params, out)
	})
	if errors.Is(err, breaker.ErrOpen) {
		err = &TransportError{Err: err}
	}

	c.metrics.ObserveQuote(time.Since(start), Kind(err))
	c.health.RecordQuote(err)
	if err != nil {
		c.log.Warn("request failed", "path", path, "kind", Kind(err), "err", err)
	}
	return err
}

func (c *TraderMade) doGet(ctx context.Context, path string, params url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+params.Encode(), nil)
	if err != nil {
		return &TransportError{Err: err}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &TransportError{Err: redactKey(err, c.apiKey)}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &UpstreamError{Status: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return &TransportError{Err: err}
	}
	if err := json.Unmarshal(body, out); err != nil {
		return &DecodeError{Err: err}
	}
	return nil
}

// redactKey keeps the API key out of logged URL errors.
func redactKey(err error, key string) error {
	if key == "" || !strings.Contains(err.Error(), key) {
		return err
	}
	return errors.New(strings.ReplaceAll(err.Error(), key, "***"))
}
