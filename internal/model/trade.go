package model

// Trade is a journal entry as persisted by the ledger.
// Optional columns are pointers so that "absent" survives a round trip.
type Trade struct {
	ID             int64        `json:"id"`
	Date           string       `json:"date" binding:"required"`
	EntryDatetime  *string      `json:"entry_datetime"`
	ExitDatetime   *string      `json:"exit_datetime"`
	Instrument     string       `json:"instrument" binding:"required,symbol"`
	Direction      string       `json:"direction" binding:"required,direction"`
	EntryPrice     float64      `json:"entry_price"`
	ExitPrice      float64      `json:"exit_price"`
	Size           float64      `json:"size"`
	Fees           float64      `json:"fees"`
	Account        string       `json:"account" binding:"required"`
	StopLoss       *float64     `json:"stop_loss"`
	TakeProfit     *float64     `json:"take_profit"`
	TradeType      *string      `json:"trade_type"`
	Rationale      *string      `json:"rationale"`
	Tags           *string      `json:"tags"`
	PreEmotion     *string      `json:"pre_emotion"`
	PostReflection *string      `json:"post_reflection"`
	Timeframe      *string      `json:"timeframe"`
	RiskAmount     *float64     `json:"risk_amount"`
	StrategyTag    *string      `json:"strategy_tag"`
	RulesFollowed  []string     `json:"rules_followed"`
	Screenshots    []Screenshot `json:"screenshots"`
	ChartData      []Candle     `json:"chart_data,omitempty"`
}

// Screenshot links an uploaded image to a trade or a weekly bias.
type Screenshot struct {
	Label         string `json:"label" binding:"required"`
	ScreenshotURL string `json:"screenshot_url" binding:"required"`
}

// Open reports whether the trade still has no exit timestamp.
func (t *Trade) Open() bool {
	return t.ExitDatetime == nil || *t.ExitDatetime == ""
}

// Risk returns the risk amount, or 0 when none was recorded.
func (t *Trade) Risk() float64 {
	if t.RiskAmount == nil {
		return 0
	}
	return *t.RiskAmount
}

// TradeFilter narrows ListTrades.
type TradeFilter struct {
	Account string
	Date    string
}
