package model

import (
	"strings"
	"time"
)

// Direction of a position.
type Direction string

const (
	Long  Direction = "long"
	Short Direction = "short"
)

// ParseDirection normalises a direction string case-insensitively.
// ok is false for anything other than long or short.
func ParseDirection(s string) (Direction, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "long":
		return Long, true
	case "short":
		return Short, true
	}
	return Short, false
}

// Position is the read-only view of an open trade used for live P&L.
type Position struct {
	ID         int64      `json:"trade_id"`
	Account    string     `json:"account"`
	Instrument string     `json:"instrument"`
	Direction  string     `json:"direction"`
	EntryPrice float64    `json:"entry_price"`
	Size       float64    `json:"size"`
	Fees       float64    `json:"fees"`
	RiskAmount float64    `json:"risk_amount"`
	EntryTime  *time.Time `json:"entry_datetime"`
	ExitTime   *time.Time `json:"exit_datetime,omitempty"`
}

// Open reports whether the position has no exit timestamp.
func (p *Position) Open() bool { return p.ExitTime == nil }

// PositionPnL is one row of a live P&L computation.
// CurrentPrice is nil and Error is set when no quote could be resolved.
type PositionPnL struct {
	TradeID         int64      `json:"trade_id"`
	Instrument      string     `json:"instrument"`
	Direction       string     `json:"direction"`
	EntryPrice      float64    `json:"entry_price"`
	CurrentPrice    *float64   `json:"current_price"`
	Size            float64    `json:"size"`
	LivePnL         float64    `json:"live_pnl"`
	EntryDatetime   *time.Time `json:"entry_datetime"`
	DurationMinutes float64    `json:"duration_minutes"`
	Unavailable     bool       `json:"price_unavailable,omitempty"`
	Error           string     `json:"error,omitempty"`
}
