package portfolio

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Rahwulkumar/trading-journal/internal/metrics"
	"github.com/Rahwulkumar/trading-journal/internal/model"
	"github.com/Rahwulkumar/trading-journal/internal/quote"
)

// QuoteBatcher is the slice of quote.Source the engine needs.
type QuoteBatcher interface {
	GetQuotes(ctx context.Context, symbols []string) []model.QuoteResult
}

// Engine marks open positions to market.
type Engine struct {
	quotes  QuoteBatcher
	metrics *metrics.Metrics
	log     *slog.Logger

	// Now is the clock used for position durations.
	Now func() time.Time
}

// NewEngine creates an engine over quotes.
func NewEngine(quotes QuoteBatcher, m *metrics.Metrics, log *slog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}
	return &Engine{
		quotes:  quotes,
		metrics: m,
		log:     log.With(slog.String("component", "pnl")),
		Now:     time.Now,
	}
}

// ComputeLivePnL returns one result per open position, in input order.
// Positions with an exit time are skipped. Quotes for the distinct instruments
// are fetched in a single batch; a position whose instrument has no quote gets
// pnl 0 and is flagged unavailable.
func (e *Engine) ComputeLivePnL(ctx context.Context, positions []model.Position) []model.PositionPnL {
	open := make([]model.Position, 0, len(positions))
	for _, p := range positions {
		if !p.Open() {
			e.log.Debug("closed position skipped", "trade_id", p.ID)
			continue
		}
		open = append(open, p)
	}
	out := make([]model.PositionPnL, 0, len(open))
	if len(open) == 0 {
		return out
	}

	symbols := make([]string, len(open))
	for i, p := range open {
		symbols[i] = p.Instrument
	}
	symbols = quote.Distinct(symbols)
	results := e.quotes.GetQuotes(ctx, symbols)
	mids := quote.MidLookup(results)
	for _, f := range quote.Failures(results) {
		e.log.Debug("quote missing", "symbol", f.Symbol, "kind", quote.Kind(f.Err), "err", f.Err)
	}

	now := e.Now()
	for _, p := range open {
		if _, ok := model.ParseDirection(p.Direction); !ok {
			e.log.Warn("unrecognised direction priced as short", "trade_id", p.ID, "direction", p.Direction)
		}

		row := model.PositionPnL{
			TradeID:       p.ID,
			Instrument:    p.Instrument,
			Direction:     p.Direction,
			EntryPrice:    p.EntryPrice,
			Size:          p.Size,
			EntryDatetime: p.EntryTime,
		}
		if p.EntryTime != nil {
			row.DurationMinutes = now.Sub(*p.EntryTime).Minutes()
		}

		mid, ok := mids[quote.NormalizeSymbol(p.Instrument)]
		if !ok {
			row.Unavailable = true
			row.Error = fmt.Sprintf("Price not available for %s", p.Instrument)
			out = append(out, row)
			continue
		}

		row.CurrentPrice = &mid
		row.LivePnL = ComputePnL(p.Direction, p.EntryPrice, mid, p.Size, p.Fees)
		out = append(out, row)
	}

	e.metrics.LivePnL(len(open))
	return out
}
