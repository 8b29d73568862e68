package model

// Account is a trading account, usually a prop-firm evaluation.
type Account struct {
	AccountName        string  `json:"account_name" binding:"required" yaml:"account_name"`
	PropFirm           string  `json:"prop_firm" binding:"required" yaml:"prop_firm"`
	CapitalSize        float64 `json:"capital_size" yaml:"capital_size"`
	MaxDailyDrawdown   float64 `json:"max_daily_drawdown" yaml:"max_daily_drawdown"`
	MaxOverallDrawdown float64 `json:"max_overall_drawdown" yaml:"max_overall_drawdown"`
}

// Account defaults applied when a field is left at zero.
const (
	DefaultCapitalSize        = 100000
	DefaultMaxDailyDrawdown   = 5
	DefaultMaxOverallDrawdown = 10
)

// WithDefaults returns a copy with zero limits replaced by the defaults.
func (a Account) WithDefaults() Account {
	if a.CapitalSize == 0 {
		a.CapitalSize = DefaultCapitalSize
	}
	if a.MaxDailyDrawdown == 0 {
		a.MaxDailyDrawdown = DefaultMaxDailyDrawdown
	}
	if a.MaxOverallDrawdown == 0 {
		a.MaxOverallDrawdown = DefaultMaxOverallDrawdown
	}
	return a
}

// Strategy is a named playbook with its checklist of rules.
type Strategy struct {
	ID           int64    `json:"id"`
	StrategyName string   `json:"strategy_name" binding:"required" yaml:"strategy_name"`
	Rules        []string `json:"rules" binding:"required,min=1,dive,required" yaml:"rules"`
}

// Note is a free-form daily journal note.
type Note struct {
	ID      int64  `json:"id"`
	Date    string `json:"date" binding:"required"`
	Content string `json:"content" binding:"required"`
}

// WeeklyBias records the directional expectation for a pair over one week.
type WeeklyBias struct {
	ID                int64          `json:"id"`
	WeekStartDate     string         `json:"week_start_date" binding:"required"`
	WeekEndDate       string         `json:"week_end_date" binding:"required"`
	Pair              string         `json:"pair" binding:"required"`
	ExpectingNotes    *string        `json:"expecting_notes"`
	NotExpectingNotes *string        `json:"not_expecting_notes"`
	BiasPoints        []BiasPoint    `json:"bias_points"`
	Arguments         []BiasArgument `json:"arguments"`
	Screenshots       []Screenshot   `json:"screenshots"`
}

// BiasPoint is one supporting observation of a weekly bias.
type BiasPoint struct {
	BiasType string `json:"bias_type" binding:"required"`
	Point    string `json:"point" binding:"required"`
}

// BiasArgument is one directional argument of a weekly bias.
type BiasArgument struct {
	Direction string `json:"direction" binding:"required"`
	Reason    string `json:"reason" binding:"required"`
}

// PerformanceDay aggregates one account's closed trades for one date.
type PerformanceDay struct {
	Account       string  `json:"account"`
	Date          string  `json:"date"`
	TotalTrades   int     `json:"total_trades"`
	WinningTrades int     `json:"winning_trades"`
	LosingTrades  int     `json:"losing_trades"`
	GrossPnL      float64 `json:"gross_pnl"`
	NetPnL        float64 `json:"net_pnl"`
	LargestWin    float64 `json:"largest_win"`
	LargestLoss   float64 `json:"largest_loss"`
	WinRate       float64 `json:"win_rate"`
	ProfitFactor  float64 `json:"profit_factor"`
	UpdatedAt     string  `json:"updated_at,omitempty"`
}
