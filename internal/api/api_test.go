package api

import (
	"bytes"
	"context"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Rahwulkumar/trading-journal/internal/blob"
	"github.com/Rahwulkumar/trading-journal/internal/gateway"
	"github.com/Rahwulkumar/trading-journal/internal/portfolio"
	"github.com/Rahwulkumar/trading-journal/internal/quote"
	"github.com/Rahwulkumar/trading-journal/internal/store/sqlite"
)

type recConn struct {
	mu   sync.Mutex
	msgs [][]byte
}

func (r *recConn) Send(b []byte) error {
	r.mu.Lock()
	r.msgs = append(r.msgs, b)
	r.mu.Unlock()
	return nil
}

func (r *recConn) Close() error { return nil }

type wireEnvelope struct {
	Type    string         `json:"type"`
	Account string         `json:"account"`
	Data    map[string]any `json:"data"`
}

func (r *recConn) envelopes(t *testing.T) []wireEnvelope {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]wireEnvelope, len(r.msgs))
	for i, m := range r.msgs {
		require.NoError(t, json.Unmarshal(m, &out[i]))
	}
	return out
}

type fixture struct {
	t      *testing.T
	router *gin.Engine
	ledger *sqlite.Ledger
	hub    *gateway.Hub
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	l, err := sqlite.Open(filepath.Join(t.TempDir(), "journal.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })

	dir := t.TempDir()
	blobs, err := blob.NewLocal(dir, "/uploads")
	require.NoError(t, err)

	mock := quote.NewMock()
	hub := gateway.NewHub(nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	ws := &gateway.Server{
		Upgrader:    gateway.NewUpgrader(nil),
		Hub:         hub,
		Streamer:    gateway.NewPriceStreamer(mock, 20*time.Millisecond, nil, nil, nil),
		BaseContext: ctx,
	}
	r, err := NewRouter(Deps{
		Ledger:         l,
		Quotes:         mock,
		Engine:         portfolio.NewEngine(mock, nil, nil),
		Broadcaster:    gateway.NewBroadcaster(hub, nil, nil, nil),
		WS:             ws,
		Blobs:          blobs,
		Origins:        []string{"http://localhost:5173"},
		UploadDir:      dir,
		MaxUploadBytes: 1024,
	})
	require.NoError(t, err)
	return &fixture{t: t, router: r, ledger: l, hub: hub}
}

func (f *fixture) do(method, path string, body any) *httptest.ResponseRecorder {
	f.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(f.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func closedTrade() map[string]any {
	return map[string]any{
		"date":           "2024-03-01",
		"entry_datetime": "2024-03-01T09:00:00Z",
		"exit_datetime":  "2024-03-01T15:00:00Z",
		"instrument":     "eurusd",
		"direction":      "Long",
		"entry_price":    1.08,
		"exit_price":     1.085,
		"size":           10000,
		"fees":           5,
		"account":        "FTMO-1",
		"risk_amount":    50,
		"rules_followed": []string{"trend"},
		"screenshots":    []map[string]string{{"label": "entry", "screenshot_url": "/uploads/a.png"}},
	}
}

func openTrade(instrument, direction string, entry, size float64) map[string]any {
	return map[string]any{
		"date":           "2024-03-02",
		"entry_datetime": "2024-03-02T09:00:00Z",
		"instrument":     instrument,
		"direction":      direction,
		"entry_price":    entry,
		"exit_price":     0,
		"size":           size,
		"fees":           5,
		"account":        "FTMO-1",
		"trade_type":     "live",
		"risk_amount":    50,
	}
}

func TestSystemEndpoints(t *testing.T) {
	f := newFixture(t)

	w := f.do(http.MethodGet, "/", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, Version, decode[map[string]any](t, w)["version"])

	w = f.do(http.MethodGet, "/api/status", nil)
	assert.Equal(t, true, decode[map[string]any](t, w)["api_running"])

	w = f.do(http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, w.Code)
	h := decode[map[string]any](t, w)
	assert.Equal(t, "healthy", h["status"])
	assert.Equal(t, float64(0), h["total_trades"])
}

func TestRequestIDAndCORS(t *testing.T) {
	f := newFixture(t)

	w := f.do(http.MethodGet, "/api/status", nil)
	assert.Len(t, w.Header().Get(requestIDHeader), 26)

	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	req.Header.Set(requestIDHeader, "abc-123")
	w = httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	assert.Equal(t, "abc-123", w.Header().Get(requestIDHeader))

	req = httptest.NewRequest(http.MethodOptions, "/trades/", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	w = httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "http://localhost:5173", w.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/api/status", nil)
	req.Header.Set("Origin", "http://evil.test")
	w = httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestCreateTrade_BroadcastsAndCachesPerformance(t *testing.T) {
	f := newFixture(t)
	sub := &recConn{}
	require.True(t, f.hub.Connect("FTMO-1", sub))

	w := f.do(http.MethodPost, "/trades/", closedTrade())
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	created := decode[map[string]any](t, w)
	assert.Equal(t, "EURUSD", created["instrument"])
	assert.Equal(t, "long", created["direction"])
	assert.Len(t, created["chart_data"], 24)

	envs := sub.envelopes(t)
	require.Len(t, envs, 2)
	assert.Equal(t, "trade_update", envs[0].Type)
	assert.Equal(t, "FTMO-1", envs[0].Account)
	assert.Equal(t, 45.0, envs[0].Data["pnl"])
	assert.Equal(t, "performance_update", envs[1].Type)
	assert.Equal(t, 45.0, envs[1].Data["net_pnl"])
	assert.Equal(t, 999.99, envs[1].Data["profit_factor"])

	w = f.do(http.MethodGet, "/analytics/performance/?account=FTMO-1", nil)
	days := decode[[]map[string]any](t, w)
	require.Len(t, days, 1)
	assert.Equal(t, "2024-03-01", days[0]["date"])
}

func TestCreateTrade_Validation(t *testing.T) {
	f := newFixture(t)

	bad := closedTrade()
	bad["direction"] = "sideways"
	w := f.do(http.MethodPost, "/trades/", bad)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "validation_error", decode[apiError](t, w).Code)

	bad = closedTrade()
	bad["instrument"] = "E"
	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodPost, "/trades/", bad).Code)

	bad = closedTrade()
	delete(bad, "account")
	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodPost, "/trades/", bad).Code)
}

func TestTradeCRUD(t *testing.T) {
	f := newFixture(t)

	w := f.do(http.MethodPost, "/trades/", closedTrade())
	require.Equal(t, http.StatusOK, w.Code)
	id := int64(decode[map[string]any](t, w)["id"].(float64))
	path := "/trades/" + strconv.FormatInt(id, 10)

	w = f.do(http.MethodGet, path, nil)
	require.Equal(t, http.StatusOK, w.Code)
	got := decode[map[string]any](t, w)
	assert.Equal(t, []any{"trend"}, got["rules_followed"])
	assert.Len(t, got["screenshots"], 1)

	upd := closedTrade()
	upd["exit_price"] = 1.07
	upd["date"] = "2024-03-04"
	w = f.do(http.MethodPut, path, upd)
	require.Equal(t, http.StatusOK, w.Code)

	days, err := f.ledger.ListPerformance(context.Background(), "FTMO-1", "", "")
	require.NoError(t, err)
	require.Len(t, days, 1)
	assert.Equal(t, "2024-03-04", days[0].Date)
	assert.Equal(t, -105.0, days[0].NetPnL)

	w = f.do(http.MethodGet, "/trades/?account=FTMO-1", nil)
	assert.Len(t, decode[[]map[string]any](t, w), 1)
	w = f.do(http.MethodGet, "/trades/?account=nobody", nil)
	assert.Equal(t, "[]", w.Body.String())

	assert.Equal(t, http.StatusOK, f.do(http.MethodDelete, path, nil).Code)
	assert.Equal(t, http.StatusNotFound, f.do(http.MethodGet, path, nil).Code)
	assert.Equal(t, http.StatusNotFound, f.do(http.MethodDelete, path, nil).Code)
	assert.Equal(t, http.StatusNotFound, f.do(http.MethodPut, path, closedTrade()).Code)
	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodGet, "/trades/abc", nil).Code)

	days, err = f.ledger.ListPerformance(context.Background(), "FTMO-1", "", "")
	require.NoError(t, err)
	assert.Empty(t, days)
}

func TestLiveTradesPnLAndClose(t *testing.T) {
	f := newFixture(t)

	w := f.do(http.MethodGet, "/api/live-trades-pnl", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "No active live trades found", decode[map[string]any](t, w)["message"])

	w = f.do(http.MethodPost, "/trades/", openTrade("EURUSD", "long", 1.08, 10000))
	require.Equal(t, http.StatusOK, w.Code)
	id := int64(decode[map[string]any](t, w)["id"].(float64))
	f.do(http.MethodPost, "/trades/", openTrade("XAUXAG", "short", 10, 1))

	w = f.do(http.MethodGet, "/api/live-trades-pnl", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode[map[string]any](t, w)
	assert.Equal(t, float64(2), body["total_live_trades"])
	rows := body["data"].([]any)
	first := rows[0].(map[string]any)
	assert.Equal(t, 67.5, first["live_pnl"])
	assert.InDelta(t, 1.08725, first["current_price"], 1e-9)
	second := rows[1].(map[string]any)
	assert.Equal(t, float64(0), second["live_pnl"])
	assert.Nil(t, second["current_price"])
	assert.Equal(t, "Price not available for XAUXAG", second["error"])

	sub := &recConn{}
	require.True(t, f.hub.Connect(gateway.TradeTopic(id), sub))
	closePath := "/api/close-live-trade/" + strconv.FormatInt(id, 10)

	w = f.do(http.MethodPost, closePath, map[string]any{"exit_price": "1.0900"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	data := decode[map[string]any](t, w)["data"].(map[string]any)
	assert.Equal(t, 95.0, data["final_pnl"])
	assert.Equal(t, 1.9, data["r_multiple"])

	envs := sub.envelopes(t)
	require.Len(t, envs, 1)
	assert.Equal(t, "trade_closed", envs[0].Type)
	assert.Equal(t, 95.0, envs[0].Data["final_pnl"])

	w = f.do(http.MethodPost, closePath, map[string]any{"exit_price": 1.1})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, http.StatusNotFound, f.do(http.MethodPost, "/api/close-live-trade/999", nil).Code)

	tr, err := f.ledger.GetTrade(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, tr.TradeType)
	assert.Equal(t, sqlite.TradeTypeClosedLive, *tr.TradeType)
}

func TestCloseLiveTrade_UsesMidWhenNoPrice(t *testing.T) {
	f := newFixture(t)
	trade := openTrade("GBPUSD", "short", 1.27, 1000)
	trade["fees"] = 0
	w := f.do(http.MethodPost, "/trades/", trade)
	require.Equal(t, http.StatusOK, w.Code)
	id := int64(decode[map[string]any](t, w)["id"].(float64))

	w = f.do(http.MethodPost, "/api/close-live-trade/"+strconv.FormatInt(id, 10), nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	data := decode[map[string]any](t, w)["data"].(map[string]any)
	assert.InDelta(t, 1.26475, data["exit_price"], 1e-9)
	assert.Equal(t, 5.25, data["final_pnl"])
}

func TestLivePrices(t *testing.T) {
	f := newFixture(t)

	w := f.do(http.MethodGet, "/api/live-price/eur-usd", nil)
	require.Equal(t, http.StatusOK, w.Code)
	q := decode[map[string]any](t, w)["data"].(map[string]any)
	assert.Equal(t, "EURUSD", q["symbol"])

	w = f.do(http.MethodGet, "/api/live-price/ZZZZZZ", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "price_unavailable", decode[apiError](t, w).Code)

	w = f.do(http.MethodPost, "/api/live-prices", map[string]any{"symbols": []string{"eurusd", "XXXYYY"}})
	require.Equal(t, http.StatusOK, w.Code)
	body := decode[map[string]any](t, w)
	assert.Equal(t, float64(2), body["total_requested"])
	assert.Equal(t, float64(1), body["total_successful"])
	errs := body["errors"].([]any)
	require.Len(t, errs, 1)
	assert.Equal(t, "XXXYYY", errs[0].(map[string]any)["symbol"])
	assert.Equal(t, "unavailable", errs[0].(map[string]any)["kind"])

	w = f.do(http.MethodPost, "/api/live-prices", map[string]any{"symbols": []string{}})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHistoricalData(t *testing.T) {
	f := newFixture(t)

	w := f.do(http.MethodGet, "/api/historical-data/EURUSD?end_date=2024-03-01T12:00:00Z", nil)
	require.Equal(t, http.StatusOK, w.Code)
	data := decode[map[string]any](t, w)["data"].(map[string]any)
	assert.Equal(t, "1H", data["timeframe"])
	assert.Equal(t, float64(24), data["total_candles"])

	w = f.do(http.MethodGet, "/api/historical-data/EURUSD?start_date=nope", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func multipartBody(t *testing.T, filename, contentType string, data []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	h := textproto.MIMEHeader{}
	h.Set("Content-Disposition", `form-data; name="file"; filename="`+filename+`"`)
	h.Set("Content-Type", contentType)
	part, err := mw.CreatePart(h)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func (f *fixture) upload(path, filename, contentType string, data []byte) *httptest.ResponseRecorder {
	body, ct := multipartBody(f.t, filename, contentType, data)
	req := httptest.NewRequest(http.MethodPost, path, body)
	req.Header.Set("Content-Type", ct)
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func TestUploads(t *testing.T) {
	f := newFixture(t)

	w := f.upload("/api/upload-screenshot", "entry.png", "image/png", []byte("png-data"))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	url := decode[map[string]any](t, w)["url"].(string)
	assert.Regexp(t, `^/uploads/.+\.png$`, url)

	w = f.do(http.MethodGet, url, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "png-data", w.Body.String())

	w = f.upload("/api/upload-screenshot", "notes.txt", "text/plain", []byte("text"))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.upload("/upload-screenshot/", "notes.txt", "text/plain", []byte("text"))
	assert.Equal(t, http.StatusOK, w.Code)

	w = f.upload("/api/upload-screenshot", "big.png", "image/png", bytes.Repeat([]byte("x"), 2048))
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)

	w = f.do(http.MethodPost, "/api/upload-screenshot", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAccounts(t *testing.T) {
	f := newFixture(t)

	w := f.do(http.MethodPost, "/accounts/", map[string]any{"account_name": "FTMO-1", "prop_firm": "FTMO"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(100000), decode[map[string]any](t, w)["capital_size"])

	w = f.do(http.MethodPost, "/accounts/", map[string]any{"account_name": "FTMO-1", "prop_firm": "FTMO"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "conflict", decode[apiError](t, w).Code)

	assert.Len(t, decode[[]map[string]any](t, f.do(http.MethodGet, "/accounts/", nil)), 1)

	require.Equal(t, http.StatusOK, f.do(http.MethodPost, "/trades/", closedTrade()).Code)
	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodDelete, "/accounts/FTMO-1", nil).Code)
	assert.Equal(t, http.StatusNotFound, f.do(http.MethodDelete, "/accounts/nobody", nil).Code)
}

func TestStrategiesNotesAndBias(t *testing.T) {
	f := newFixture(t)

	w := f.do(http.MethodPost, "/strategies/", map[string]any{"strategy_name": "Breakout", "rules": []string{}})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = f.do(http.MethodPost, "/strategies/", map[string]any{"strategy_name": " Breakout ", "rules": []string{"wait for retest"}})
	require.Equal(t, http.StatusOK, w.Code)
	st := decode[map[string]any](t, w)
	assert.Equal(t, "Breakout", st["strategy_name"])
	stPath := "/strategies/" + strconv.FormatInt(int64(st["id"].(float64)), 10)

	w = f.do(http.MethodPost, "/strategies/", map[string]any{"strategy_name": "Breakout", "rules": []string{"x"}})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = f.do(http.MethodPut, stPath, map[string]any{"strategy_name": "Breakout v2", "rules": []string{"a", "b"}})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]map[string]any](t, f.do(http.MethodGet, "/strategies/", nil)), 1)
	assert.Equal(t, http.StatusOK, f.do(http.MethodDelete, stPath, nil).Code)

	w = f.do(http.MethodPost, "/notes/", map[string]any{"date": "2024-03-01", "content": "patient day"})
	require.Equal(t, http.StatusOK, w.Code)
	notePath := "/notes/" + strconv.FormatInt(int64(decode[map[string]any](t, w)["id"].(float64)), 10)
	assert.Len(t, decode[[]map[string]any](t, f.do(http.MethodGet, "/notes/?date=2024-03-01", nil)), 1)
	assert.Empty(t, decode[[]map[string]any](t, f.do(http.MethodGet, "/notes/?date=2024-03-02", nil)))
	assert.Equal(t, http.StatusOK, f.do(http.MethodDelete, notePath, nil).Code)
	assert.Equal(t, http.StatusNotFound, f.do(http.MethodDelete, notePath, nil).Code)

	w = f.do(http.MethodPost, "/weekly-bias/", map[string]any{
		"week_start_date": "2024-03-04",
		"week_end_date":   "2024-03-08",
		"pair":            "EURUSD",
		"bias_points":     []map[string]string{{"bias_type": "bullish", "point": "HTF demand"}},
		"arguments":       []map[string]string{{"direction": "long", "reason": "CPI"}},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	biasPath := "/weekly-bias/" + strconv.FormatInt(int64(decode[map[string]any](t, w)["id"].(float64)), 10)

	w = f.do(http.MethodGet, biasPath, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[map[string]any](t, w)["bias_points"], 1)
	assert.Len(t, decode[[]map[string]any](t, f.do(http.MethodGet, "/weekly-bias/", nil)), 1)
	assert.Equal(t, http.StatusOK, f.do(http.MethodDelete, biasPath, nil).Code)
	assert.Equal(t, http.StatusNotFound, f.do(http.MethodGet, biasPath, nil).Code)
}

func TestAnalyticsSummary(t *testing.T) {
	f := newFixture(t)

	w := f.do(http.MethodGet, "/analytics/summary/", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(0), decode[map[string]any](t, w)["total_trades"])

	f.do(http.MethodPost, "/accounts/", map[string]any{"account_name": "FTMO-1", "prop_firm": "FTMO"})
	f.do(http.MethodPost, "/trades/", closedTrade())

	w = f.do(http.MethodGet, "/analytics/summary/?account=FTMO-1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	s := decode[map[string]any](t, w)
	assert.Equal(t, float64(1), s["total_trades"])
	assert.Equal(t, float64(100), s["win_rate_percent"])
	assert.Equal(t, 0.9, s["average_r_multiple"])
	assert.Equal(t, "EURUSD", s["most_traded_pair"])
	dd := s["drawdown"].(map[string]any)
	assert.Equal(t, float64(5000), dd["daily_limit"])
	assert.Equal(t, false, dd["overall_breached"])
}

func TestStatusOf(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   string
	}{
		{sqlite.ErrNotFound, http.StatusNotFound, "not_found"},
		{sqlite.ErrConflict, http.StatusBadRequest, "conflict"},
		{sqlite.ErrInvalid, http.StatusBadRequest, "validation_error"},
		{quote.ErrNotConfigured, http.StatusServiceUnavailable, "quote_not_configured"},
		{&quote.UpstreamError{Status: 500}, http.StatusBadGateway, "quote_upstream"},
		{&quote.TransportError{Err: assert.AnError}, http.StatusBadGateway, "quote_transport"},
		{assert.AnError, http.StatusInternalServerError, "internal_server_error"},
	}
	for _, tt := range tests {
		status, code := statusOf(tt.err)
		assert.Equal(t, tt.status, status, tt.err.Error())
		assert.Equal(t, tt.code, code)
	}
}

func TestIsSymbol(t *testing.T) {
	assert.True(t, isSymbol("EURUSD"))
	assert.True(t, isSymbol("eur/usd"))
	assert.True(t, isSymbol("US30"))
	assert.False(t, isSymbol("E"))
	assert.False(t, isSymbol("EUR.USD!"))
}
