package model

import "time"

// Envelope types pushed to live subscribers.
const (
	EnvTradeUpdate       = "trade_update"
	EnvPerformanceUpdate = "performance_update"
	EnvTradeClosed       = "trade_closed"
	EnvPriceUpdate       = "price_update"
	EnvError             = "error"
)

// Envelope is the tagged message sent over live sockets.
type Envelope struct {
	Type      string    `json:"type"`
	Account   string    `json:"account,omitempty"`
	Data      any       `json:"data,omitempty"`
	Message   string    `json:"message,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// TradeSummary is the payload of a trade_update envelope.
type TradeSummary struct {
	TradeID    int64   `json:"trade_id"`
	Instrument string  `json:"instrument"`
	Direction  string  `json:"direction"`
	PnL        float64 `json:"pnl"`
	Date       string  `json:"date"`
}

// CloseSummary is the payload of a trade_closed envelope.
type CloseSummary struct {
	Type      string  `json:"type"`
	TradeID   int64   `json:"trade_id"`
	FinalPnL  float64 `json:"final_pnl"`
	ExitPrice float64 `json:"exit_price"`
	RMultiple float64 `json:"r_multiple"`
}
