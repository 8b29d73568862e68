// Package portfolio computes trade P&L: live marks for open positions, realised
// results for closed trades, and the analytics built on top of them.
package portfolio

import (
	"github.com/shopspring/decimal"

	"github.com/Rahwulkumar/trading-journal/internal/model"
)

// ComputePnL returns (price-entry)*size-fees for long and (entry-price)*size-fees
// otherwise, rounded to 2 decimal places. Any direction that is not long is priced as short.
func ComputePnL(direction string, entry, price, size, fees float64) float64 {
	d, _ := model.ParseDirection(direction)
	e := decimal.NewFromFloat(entry)
	p := decimal.NewFromFloat(price)

	move := e.Sub(p)
	if d == model.Long {
		move = p.Sub(e)
	}
	pnl := move.Mul(decimal.NewFromFloat(size)).Sub(decimal.NewFromFloat(fees))
	return pnl.Round(2).InexactFloat64()
}

// RMultiple is pnl divided by risk, or 0 when risk is not positive.
func RMultiple(pnl, risk float64) float64 {
	if risk <= 0 {
		return 0
	}
	return decimal.NewFromFloat(pnl).Div(decimal.NewFromFloat(risk)).InexactFloat64()
}

// Round2 rounds v half away from zero to 2 decimal places.
func Round2(v float64) float64 {
	return decimal.NewFromFloat(v).Round(2).InexactFloat64()
}

// RealizedPnL prices a trade at its recorded exit.
func RealizedPnL(t model.Trade) float64 {
	return ComputePnL(t.Direction, t.EntryPrice, t.ExitPrice, t.Size, t.Fees)
}
