package quote

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/Rahwulkumar/trading-journal/internal/metrics"
)

// Settings selects and configures a Source.
type Settings struct {
	Kind           string // "mock" or "live"
	APIKey         string
	BaseURL        string
	Timeout        time.Duration
	CandleCacheTTL time.Duration
}

// New builds the configured Source wrapped in a candle cache.
func New(s Settings, m *metrics.Metrics, h *metrics.HealthStatus, log *slog.Logger) (*CandleCache, error) {
	var src Source
	switch s.Kind {
	case "", "mock":
		src = NewMock()
	case "live":
		src = NewTraderMade(TraderMadeConfig{BaseURL: s.BaseURL, APIKey: s.APIKey, Timeout: s.Timeout}, m, h, log)
	default:
		return nil, fmt.Errorf("quote: unknown source %q", s.Kind)
	}
	return NewCandleCache(src, s.CandleCacheTTL, m)
}
