package portfolio

import (
	"math"

	"github.com/shopspring/decimal"

	"github.com/Rahwulkumar/trading-journal/internal/model"
)

// NoLossProfitFactor is reported when a day has wins but no losing trades.
const NoLossProfitFactor = 999.99

// TradeRef identifies the best or worst trade of a summary.
type TradeRef struct {
	ID     int64   `json:"id"`
	Pair   string  `json:"pair"`
	Profit float64 `json:"profit"`
}

// Summary is the journal-wide analytics overview.
type Summary struct {
	TotalTrades        int       `json:"total_trades"`
	WinRatePercent     float64   `json:"win_rate_percent"`
	AverageRMultiple   float64   `json:"average_r_multiple"`
	AverageProfit      float64   `json:"average_profit"`
	BestTrade          *TradeRef `json:"best_trade"`
	WorstTrade         *TradeRef `json:"worst_trade"`
	MostTradedPair     *string   `json:"most_traded_pair"`
	MostProfitablePair *string   `json:"most_profitable_pair"`
}

// Settled reports whether t carries a realised result: it has an exit price and is
// not an open position (live or timestamped entry without exit).
func Settled(t model.Trade) bool {
	if t.ExitPrice <= 0 {
		return false
	}
	live := t.TradeType != nil && *t.TradeType == "live"
	return !((live || t.EntryDatetime != nil) && t.Open())
}

// Summarize aggregates settled trades. Trades with no risk amount count as risking 1.
func Summarize(trades []model.Trade) Summary {
	var s Summary
	var wins int
	var totalR, totalProfit decimal.Decimal
	var pairs []string
	perPairCount := map[string]int{}
	perPairProfit := map[string]decimal.Decimal{}

	for _, t := range trades {
		if !Settled(t) {
			continue
		}
		s.TotalTrades++
		pnl := RealizedPnL(t)
		risk := t.Risk()
		if risk <= 0 {
			risk = 1
		}
		if pnl > 0 {
			wins++
		}
		totalProfit = totalProfit.Add(decimal.NewFromFloat(pnl))
		totalR = totalR.Add(decimal.NewFromFloat(pnl).Div(decimal.NewFromFloat(risk)))

		if s.BestTrade == nil || pnl > s.BestTrade.Profit {
			s.BestTrade = &TradeRef{ID: t.ID, Pair: t.Instrument, Profit: pnl}
		}
		if s.WorstTrade == nil || pnl < s.WorstTrade.Profit {
			s.WorstTrade = &TradeRef{ID: t.ID, Pair: t.Instrument, Profit: pnl}
		}

		if _, seen := perPairCount[t.Instrument]; !seen {
			pairs = append(pairs, t.Instrument)
		}
		perPairCount[t.Instrument]++
		perPairProfit[t.Instrument] = perPairProfit[t.Instrument].Add(decimal.NewFromFloat(pnl))
	}

	if s.TotalTrades == 0 {
		return s
	}

	n := decimal.NewFromInt(int64(s.TotalTrades))
	s.WinRatePercent = decimal.NewFromInt(int64(wins)).Div(n).Mul(decimal.NewFromInt(100)).Round(2).InexactFloat64()
	s.AverageRMultiple = totalR.Div(n).Round(2).InexactFloat64()
	s.AverageProfit = totalProfit.Div(n).Round(2).InexactFloat64()

	mostTraded, mostProfitable := pairs[0], pairs[0]
	for _, p := range pairs[1:] {
		if perPairCount[p] > perPairCount[mostTraded] {
			mostTraded = p
		}
		if perPairProfit[p].GreaterThan(perPairProfit[mostProfitable]) {
			mostProfitable = p
		}
	}
	s.MostTradedPair = &mostTraded
	s.MostProfitablePair = &mostProfitable
	return s
}

// PerformanceFor aggregates the settled trades of one account on one date.
// ok is false when there is nothing to aggregate.
func PerformanceFor(account, date string, trades []model.Trade) (model.PerformanceDay, bool) {
	day := model.PerformanceDay{Account: account, Date: date}
	var gross, net, grossWin, grossLoss decimal.Decimal

	for _, t := range trades {
		if t.Account != account || t.Date != date || !Settled(t) {
			continue
		}
		pnl := RealizedPnL(t)
		d := decimal.NewFromFloat(pnl)
		day.TotalTrades++
		net = net.Add(d)
		gross = gross.Add(d).Add(decimal.NewFromFloat(t.Fees))

		if pnl > 0 {
			day.WinningTrades++
			grossWin = grossWin.Add(d)
			day.LargestWin = math.Max(day.LargestWin, pnl)
		} else {
			day.LosingTrades++
		}
		if pnl < 0 {
			grossLoss = grossLoss.Add(d.Abs())
			day.LargestLoss = math.Min(day.LargestLoss, pnl)
		}
	}
	if day.TotalTrades == 0 {
		return day, false
	}

	day.GrossPnL = gross.Round(2).InexactFloat64()
	day.NetPnL = net.Round(2).InexactFloat64()
	day.WinRate = decimal.NewFromInt(int64(day.WinningTrades)).
		Div(decimal.NewFromInt(int64(day.TotalTrades))).
		Mul(decimal.NewFromInt(100)).Round(2).InexactFloat64()
	if grossLoss.IsPositive() {
		day.ProfitFactor = grossWin.Div(grossLoss).Round(2).InexactFloat64()
	} else {
		day.ProfitFactor = NoLossProfitFactor
	}
	return day, true
}
