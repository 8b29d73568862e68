package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cast"

	"github.com/Rahwulkumar/trading-journal/internal/logger"
	"github.com/Rahwulkumar/trading-journal/internal/model"
	"github.com/Rahwulkumar/trading-journal/internal/notification"
	"github.com/Rahwulkumar/trading-journal/internal/portfolio"
	"github.com/Rahwulkumar/trading-journal/internal/quote"
)

const notifyTimeout = 10 * time.Second

func (s *Server) livePrice(c *gin.Context) {
	ctx := c.Request.Context()
	sym := quote.NormalizeSymbol(c.Param("symbol"))
	q, err := s.Quotes.GetQuote(ctx, sym)
	if err == nil {
		c.JSON(http.StatusOK, gin.H{"success": true, "data": q})
		return
	}

	if s.Snapshots != nil && !errors.Is(err, quote.ErrPriceUnavailable) {
		if snap, savedAt, serr := s.Snapshots.Latest(ctx, sym); serr == nil {
			s.log.Info("serving quote snapshot", "symbol", sym, "err", err)
			c.JSON(http.StatusOK, gin.H{
				"success":  true,
				"data":     snap,
				"source":   "snapshot",
				"saved_at": savedAt.Format(time.RFC3339),
			})
			return
		}
	}
	s.fail(c, "live price", err)
}

type livePricesRequest struct {
	Symbols []string `json:"symbols" binding:"required,min=1"`
}

type priceFailure struct {
	Symbol string `json:"symbol"`
	Error  string `json:"error"`
	Kind   string `json:"kind"`
}

func (s *Server) livePrices(c *gin.Context) {
	var req livePricesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, "No symbols provided")
		return
	}
	results := s.Quotes.GetQuotes(c.Request.Context(), req.Symbols)
	ok := quote.Successes(results)

	var failed []priceFailure
	for _, f := range quote.Failures(results) {
		failed = append(failed, priceFailure{Symbol: f.Symbol, Error: f.Err.Error(), Kind: quote.Kind(f.Err)})
	}
	c.JSON(http.StatusOK, gin.H{
		"success":          true,
		"data":             ok,
		"errors":           failed,
		"total_requested":  len(req.Symbols),
		"total_successful": len(ok),
	})
}

func (s *Server) liveTradesPnL(c *gin.Context) {
	ctx := c.Request.Context()
	positions, err := s.Ledger.ListOpenPositions(ctx)
	if err != nil {
		s.fail(c, "live trades pnl", err)
		return
	}
	if len(positions) == 0 {
		c.JSON(http.StatusOK, gin.H{
			"success": true,
			"data":    []model.PositionPnL{},
			"message": "No active live trades found",
		})
		return
	}
	rows := s.Engine.ComputeLivePnL(ctx, positions)
	c.JSON(http.StatusOK, gin.H{
		"success":           true,
		"data":              rows,
		"total_live_trades": len(rows),
		"timestamp":         s.now().Format(time.RFC3339),
	})
}

func (s *Server) historicalData(c *gin.Context) {
	sym := quote.NormalizeSymbol(c.Param("symbol"))
	tf := c.DefaultQuery("timeframe", defaultTimeframe)

	var start, end time.Time
	var err error
	if v := c.Query("start_date"); v != "" {
		if start, err = cast.ToTimeE(v); err != nil {
			s.badRequest(c, "invalid start_date: "+err.Error())
			return
		}
	}
	if v := c.Query("end_date"); v != "" {
		if end, err = cast.ToTimeE(v); err != nil {
			s.badRequest(c, "invalid end_date: "+err.Error())
			return
		}
	}

	candles, err := s.Quotes.GetHistoricalCandles(c.Request.Context(), sym, tf, start, end)
	if err != nil {
		s.fail(c, "historical data", err)
		return
	}
	if candles == nil {
		candles = []model.Candle{}
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data": gin.H{
			"symbol":        sym,
			"candles":       candles,
			"timeframe":     tf,
			"total_candles": len(candles),
		},
	})
}

type closeRequest struct {
	ExitPrice any `json:"exit_price"`
}

// closeLiveTrade exits an open trade at the given price, or at the current mid
// when none is supplied, and notifies the trade's subscribers.
func (s *Server) closeLiveTrade(c *gin.Context) {
	id, ok := s.idParam(c)
	if !ok {
		return
	}
	var req closeRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
			s.badRequest(c, "invalid body: "+err.Error())
			return
		}
	}
	ctx := c.Request.Context()

	pos, err := s.Ledger.GetPosition(ctx, id)
	if err != nil {
		s.fail(c, "close trade", err)
		return
	}
	if !pos.Open() {
		s.badRequest(c, "trade is already closed")
		return
	}

	var exitPrice float64
	if req.ExitPrice != nil {
		if exitPrice, err = cast.ToFloat64E(req.ExitPrice); err != nil {
			s.badRequest(c, "exit_price must be a number")
			return
		}
	}
	if exitPrice <= 0 {
		q, err := s.Quotes.GetQuote(ctx, pos.Instrument)
		if err != nil {
			s.fail(c, "close trade", err)
			return
		}
		exitPrice = q.Mid
	}

	finalPnL := portfolio.ComputePnL(pos.Direction, pos.EntryPrice, exitPrice, pos.Size, pos.Fees)
	rMultiple := portfolio.Round2(portfolio.RMultiple(finalPnL, pos.RiskAmount))
	closedAt := s.now()
	if err := s.Ledger.RecordClose(ctx, id, exitPrice, closedAt); err != nil {
		s.fail(c, "close trade", err)
		return
	}

	s.Broadcaster.OnTradeClosed(pos.Account, model.CloseSummary{
		TradeID:   id,
		FinalPnL:  finalPnL,
		ExitPrice: exitPrice,
		RMultiple: rMultiple,
	})
	if t, err := s.Ledger.GetTrade(ctx, id); err == nil {
		s.refreshPerformance(ctx, t.Account, t.Date)
	}
	s.notifyClose(ctx, pos, exitPrice, finalPnL, rMultiple)

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Trade closed successfully",
		"data": gin.H{
			"trade_id":   id,
			"exit_price": exitPrice,
			"final_pnl":  finalPnL,
			"r_multiple": rMultiple,
			"closed_at":  closedAt.Format(time.RFC3339),
		},
	})
}

// notifyClose sends the closure alert in the background.
func (s *Server) notifyClose(ctx context.Context, pos model.Position, exitPrice, pnl, r float64) {
	level := notification.AlertInfo
	if pnl < 0 {
		level = notification.AlertWarning
	}
	alert := notification.Alert{
		Level:   level,
		Title:   "Trade closed: " + pos.Instrument,
		Message: fmt.Sprintf("trade %d %s closed at %v, P&L %.2f (%.2fR) on %s", pos.ID, pos.Direction, exitPrice, pnl, r, pos.Account),
		TS:      s.now().UTC(),
	}
	traceAttrs := logger.LogWithTrace(ctx)
	go func() {
		nctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
		defer cancel()
		if err := s.Notifier.Send(nctx, alert); err != nil {
			s.log.Warn("close notification failed", append([]any{"trade_id", pos.ID, "err", err}, traceAttrs...)...)
		}
	}()
}
