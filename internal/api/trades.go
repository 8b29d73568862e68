package api

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cast"

	"github.com/Rahwulkumar/trading-journal/internal/model"
	"github.com/Rahwulkumar/trading-journal/internal/portfolio"
)

const (
	defaultTimeframe = "1H"
	chartTimeout     = 10 * time.Second
)

func (s *Server) createTrade(c *gin.Context) {
	var t model.Trade
	if err := c.ShouldBindJSON(&t); err != nil {
		s.invalid(c, err)
		return
	}
	normalizeTrade(&t)
	ctx := c.Request.Context()

	if len(t.ChartData) == 0 {
		t.ChartData = s.chartCandles(ctx, &t)
	}
	id, err := s.Ledger.CreateTrade(ctx, &t)
	if err != nil {
		s.fail(c, "create trade", err)
		return
	}

	var pnl float64
	if portfolio.Settled(t) {
		pnl = portfolio.RealizedPnL(t)
	}
	s.Broadcaster.OnTradeCreated(t.Account, model.TradeSummary{
		TradeID:    id,
		Instrument: t.Instrument,
		Direction:  t.Direction,
		PnL:        pnl,
		Date:       t.Date,
	})
	s.refreshPerformance(ctx, t.Account, t.Date)

	c.JSON(http.StatusOK, t)
}

func (s *Server) listTrades(c *gin.Context) {
	trades, err := s.Ledger.ListTrades(c.Request.Context(), model.TradeFilter{
		Account: c.Query("account"),
		Date:    c.Query("date"),
	})
	if err != nil {
		s.fail(c, "list trades", err)
		return
	}
	if trades == nil {
		trades = []model.Trade{}
	}
	c.JSON(http.StatusOK, trades)
}

func (s *Server) getTrade(c *gin.Context) {
	id, ok := s.idParam(c)
	if !ok {
		return
	}
	t, err := s.Ledger.GetTrade(c.Request.Context(), id)
	if err != nil {
		s.fail(c, "get trade", err)
		return
	}
	c.JSON(http.StatusOK, t)
}

func (s *Server) updateTrade(c *gin.Context) {
	id, ok := s.idParam(c)
	if !ok {
		return
	}
	var t model.Trade
	if err := c.ShouldBindJSON(&t); err != nil {
		s.invalid(c, err)
		return
	}
	normalizeTrade(&t)
	ctx := c.Request.Context()

	prev, err := s.Ledger.GetTrade(ctx, id)
	if err != nil {
		s.fail(c, "update trade", err)
		return
	}
	if err := s.Ledger.UpdateTrade(ctx, id, &t); err != nil {
		s.fail(c, "update trade", err)
		return
	}

	s.refreshPerformance(ctx, t.Account, t.Date)
	if prev.Account != t.Account || prev.Date != t.Date {
		s.refreshPerformance(ctx, prev.Account, prev.Date)
	}
	c.JSON(http.StatusOK, t)
}

func (s *Server) deleteTrade(c *gin.Context) {
	id, ok := s.idParam(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	t, err := s.Ledger.GetTrade(ctx, id)
	if err != nil {
		s.fail(c, "delete trade", err)
		return
	}
	if err := s.Ledger.DeleteTrade(ctx, id); err != nil {
		s.fail(c, "delete trade", err)
		return
	}
	s.refreshPerformance(ctx, t.Account, t.Date)
	c.JSON(http.StatusOK, gin.H{"message": "Trade deleted"})
}

// refreshPerformance recomputes the cached aggregate of one account day and
// broadcasts it. The triggering write has already succeeded, so failures are only logged.
func (s *Server) refreshPerformance(ctx context.Context, account, date string) {
	if account == "" || date == "" {
		return
	}
	trades, err := s.Ledger.ListTrades(ctx, model.TradeFilter{Account: account, Date: date})
	if err != nil {
		s.log.Warn("performance refresh failed", "account", account, "date", date, "err", err)
		return
	}
	day, ok := portfolio.PerformanceFor(account, date, trades)
	if ok {
		day.UpdatedAt = s.now().UTC().Format(time.RFC3339)
		err = s.Ledger.UpsertPerformance(ctx, day)
	} else {
		err = s.Ledger.DeletePerformance(ctx, account, date)
	}
	if err != nil {
		s.log.Warn("performance cache write failed", "account", account, "date", date, "err", err)
		return
	}
	s.Broadcaster.OnPerformanceUpdated(account, day)
}

// chartCandles fetches the candles between entry and exit. Missing timestamps or
// a failed fetch yield no chart; the trade is still recorded.
func (s *Server) chartCandles(ctx context.Context, t *model.Trade) []model.Candle {
	if t.EntryDatetime == nil || t.ExitDatetime == nil || *t.EntryDatetime == "" || *t.ExitDatetime == "" {
		return nil
	}
	start, err1 := cast.ToTimeE(*t.EntryDatetime)
	end, err2 := cast.ToTimeE(*t.ExitDatetime)
	if err1 != nil || err2 != nil || !end.After(start) {
		s.log.Info("skipping chart fetch", "instrument", t.Instrument, "entry", *t.EntryDatetime, "exit", *t.ExitDatetime)
		return nil
	}
	tf := defaultTimeframe
	if t.Timeframe != nil && *t.Timeframe != "" {
		tf = *t.Timeframe
	}

	ctx, cancel := context.WithTimeout(ctx, chartTimeout)
	defer cancel()
	candles, err := s.Quotes.GetHistoricalCandles(ctx, t.Instrument, tf, start, end)
	if err != nil {
		s.log.Warn("chart fetch failed", "instrument", t.Instrument, "err", err)
		return nil
	}
	return candles
}

func normalizeTrade(t *model.Trade) {
	t.Instrument = strings.ToUpper(strings.TrimSpace(t.Instrument))
	if d, ok := model.ParseDirection(t.Direction); ok {
		t.Direction = string(d)
	}
	t.Account = strings.TrimSpace(t.Account)
}

func (s *Server) idParam(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		s.badRequest(c, "invalid id "+strconv.Quote(c.Param("id")))
		return 0, false
	}
	return id, true
}
