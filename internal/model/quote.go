package model

// Quote is a provider bid/ask for one instrument.
type Quote struct {
	Symbol    string  `json:"symbol"`
	Bid       float64 `json:"bid"`
	Ask       float64 `json:"ask"`
	Mid       float64 `json:"mid"`
	Timestamp string  `json:"timestamp"`
}

// NewQuote fills Mid from bid and ask.
func NewQuote(symbol string, bid, ask float64, ts string) Quote {
	return Quote{Symbol: symbol, Bid: bid, Ask: ask, Mid: (bid + ask) / 2, Timestamp: ts}
}

// QuoteResult is one entry of a batched quote fetch. Exactly one of Quote or Err is meaningful.
type QuoteResult struct {
	Symbol string
	Quote  Quote
	Err    error
}

// OK reports whether the fetch for this symbol succeeded.
func (r QuoteResult) OK() bool { return r.Err == nil }

// Candle is an OHLC bar. Series are ordered by Time ascending.
type Candle struct {
	Time  string  `json:"time"`
	Open  float64 `json:"open"`
	High  float64 `json:"high"`
	Low   float64 `json:"low"`
	Close float64 `json:"close"`
}
