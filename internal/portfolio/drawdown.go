package portfolio

import (
	"github.com/shopspring/decimal"

	"github.com/Rahwulkumar/trading-journal/internal/model"
)

// DrawdownStatus compares an account's realised results with its prop-firm limits.
// Limits are percentages of capital; losses are reported as negative amounts.
type DrawdownStatus struct {
	Account         string  `json:"account"`
	CapitalSize     float64 `json:"capital_size"`
	DailyLimit      float64 `json:"daily_limit"`
	OverallLimit    float64 `json:"overall_limit"`
	WorstDay        string  `json:"worst_day,omitempty"`
	WorstDayPnL     float64 `json:"worst_day_pnl"`
	MaxDrawdown     float64 `json:"max_drawdown"`
	NetPnL          float64 `json:"net_pnl"`
	DailyBreached   bool    `json:"daily_breached"`
	OverallBreached bool    `json:"overall_breached"`
}

// Drawdown walks the account's performance days in date order, tracking peak equity
// and the deepest peak-to-trough decline.
func Drawdown(acct model.Account, days []model.PerformanceDay) DrawdownStatus {
	acct = acct.WithDefaults()
	capital := decimal.NewFromFloat(acct.CapitalSize)
	hundred := decimal.NewFromInt(100)

	st := DrawdownStatus{
		Account:      acct.AccountName,
		CapitalSize:  acct.CapitalSize,
		DailyLimit:   capital.Mul(decimal.NewFromFloat(acct.MaxDailyDrawdown)).Div(hundred).Round(2).InexactFloat64(),
		OverallLimit: capital.Mul(decimal.NewFromFloat(acct.MaxOverallDrawdown)).Div(hundred).Round(2).InexactFloat64(),
	}

	equity := capital
	peak := capital
	maxDD := decimal.Zero
	for _, d := range days {
		if d.Account != acct.AccountName {
			continue
		}
		if d.NetPnL < st.WorstDayPnL {
			st.WorstDayPnL = d.NetPnL
			st.WorstDay = d.Date
		}
		equity = equity.Add(decimal.NewFromFloat(d.NetPnL))
		if equity.GreaterThan(peak) {
			peak = equity
		}
		if dd := peak.Sub(equity); dd.GreaterThan(maxDD) {
			maxDD = dd
		}
	}

	st.NetPnL = equity.Sub(capital).Round(2).InexactFloat64()
	st.MaxDrawdown = maxDD.Neg().Round(2).InexactFloat64()
	st.DailyBreached = -st.WorstDayPnL >= st.DailyLimit && st.WorstDayPnL < 0
	st.OverallBreached = maxDD.GreaterThanOrEqual(decimal.NewFromFloat(st.OverallLimit)) && maxDD.IsPositive()
	return st
}
