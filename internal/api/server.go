// Package api is the journal's HTTP surface: CRUD over the ledger, market data
// proxied from the quote source, analytics, uploads and the websocket endpoints.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Rahwulkumar/trading-journal/internal/blob"
	"github.com/Rahwulkumar/trading-journal/internal/gateway"
	"github.com/Rahwulkumar/trading-journal/internal/metrics"
	"github.com/Rahwulkumar/trading-journal/internal/model"
	"github.com/Rahwulkumar/trading-journal/internal/notification"
	"github.com/Rahwulkumar/trading-journal/internal/portfolio"
	"github.com/Rahwulkumar/trading-journal/internal/quote"
	"github.com/Rahwulkumar/trading-journal/internal/store/sqlite"
)

// Version is reported by the index and status endpoints.
const Version = "1.0.0"

// SnapshotReader serves the last streamed quote when the provider call fails.
type SnapshotReader interface {
	Latest(ctx context.Context, symbol string) (model.Quote, time.Time, error)
}

// Deps are the collaborators the router is built from. Snapshots, Notifier,
// Metrics and Health are optional.
type Deps struct {
	Ledger      *sqlite.Ledger
	Quotes      quote.Source
	Engine      *portfolio.Engine
	Broadcaster *gateway.Broadcaster
	WS          *gateway.Server
	Blobs       blob.Store
	Snapshots   SnapshotReader
	Notifier    notification.Notifier
	Metrics     *metrics.Metrics
	Health      *metrics.HealthStatus
	Log         *slog.Logger

	Origins        []string
	UploadDir      string // served under UploadURL when set
	UploadURL      string
	MaxUploadBytes int64
}

// Server holds the handlers' dependencies.
type Server struct {
	Deps
	log *slog.Logger
	now func() time.Time
}

// NewRouter registers every route on a new gin engine.
func NewRouter(d Deps) (*gin.Engine, error) {
	if err := RegisterValidators(); err != nil {
		return nil, err
	}
	if d.Log == nil {
		d.Log = slog.Default()
	}
	if d.Notifier == nil {
		d.Notifier = notification.NewLogNotifier(d.Log)
	}
	if d.MaxUploadBytes <= 0 {
		d.MaxUploadBytes = 100 << 20
	}
	if d.UploadURL == "" {
		d.UploadURL = "/uploads"
	}
	s := &Server{Deps: d, log: d.Log.With(slog.String("component", "api")), now: time.Now}

	r := gin.New()
	r.Use(requestID(), requestLog(s.log), gin.Recovery(), cors(d.Origins), observe(d.Metrics))

	r.GET("/", s.index)
	r.GET("/health", s.health)
	r.GET("/api/status", s.status)

	r.POST("/trades/", s.createTrade)
	r.GET("/trades/", s.listTrades)
	r.GET("/trades/:id", s.getTrade)
	r.PUT("/trades/:id", s.updateTrade)
	r.DELETE("/trades/:id", s.deleteTrade)

	r.GET("/analytics/summary/", s.analyticsSummary)
	r.GET("/analytics/performance/", s.analyticsPerformance)

	r.POST("/strategies/", s.createStrategy)
	r.GET("/strategies/", s.listStrategies)
	r.PUT("/strategies/:id", s.updateStrategy)
	r.DELETE("/strategies/:id", s.deleteStrategy)

	r.GET("/accounts/", s.listAccounts)
	r.POST("/accounts/", s.createAccount)
	r.DELETE("/accounts/:name", s.deleteAccount)

	r.POST("/notes/", s.createNote)
	r.GET("/notes/", s.listNotes)
	r.DELETE("/notes/:id", s.deleteNote)

	r.POST("/weekly-bias/", s.createWeeklyBias)
	r.GET("/weekly-bias/", s.listWeeklyBiases)
	r.GET("/weekly-bias/:id", s.getWeeklyBias)
	r.DELETE("/weekly-bias/:id", s.deleteWeeklyBias)

	r.POST("/api/upload-screenshot", s.uploadScreenshot)
	r.POST("/upload-screenshot/", s.uploadLegacy)
	if d.UploadDir != "" {
		r.Static(d.UploadURL, d.UploadDir)
	}

	r.GET("/api/live-price/:symbol", s.livePrice)
	r.POST("/api/live-prices", s.livePrices)
	r.GET("/api/live-trades-pnl", s.liveTradesPnL)
	r.GET("/api/historical-data/:symbol", s.historicalData)
	r.POST("/api/close-live-trade/:id", s.closeLiveTrade)

	if d.WS != nil {
		r.GET("/ws/:client_id", func(c *gin.Context) {
			d.WS.ServeTopic(c.Writer, c.Request, c.Param("client_id"))
		})
		r.GET("/ws/live-prices/:client_id", func(c *gin.Context) {
			d.WS.ServePrices(c.Writer, c.Request, c.Param("client_id"))
		})
	}

	return r, nil
}

func (s *Server) index(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message":   "Trading journal API is running",
		"version":   Version,
		"status":    "healthy",
		"timestamp": s.now().Format(time.RFC3339),
		"endpoints": gin.H{
			"trades":            "/trades/",
			"accounts":          "/accounts/",
			"strategies":        "/strategies/",
			"reports":           "/analytics/summary/",
			"live_prices":       "/api/live-price/{symbol}",
			"live_trades_pnl":   "/api/live-trades-pnl",
			"upload_screenshot": "/api/upload-screenshot",
			"websocket":         "/ws/{client_id}",
			"price_stream":      "/ws/live-prices/{client_id}",
		},
	})
}

func (s *Server) health(c *gin.Context) {
	n, err := s.Ledger.CountTrades(c.Request.Context())
	if err != nil {
		s.log.Error("health check failed", "err", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":      "unhealthy",
			"error":       err.Error(),
			"server_time": s.now().Format(time.RFC3339),
		})
		return
	}
	resp := gin.H{
		"status":       "healthy",
		"database":     "connected",
		"total_trades": n,
		"server_time":  s.now().Format(time.RFC3339),
	}
	if s.Health != nil {
		rep := s.Health.Snapshot()
		resp["checks"] = rep
		resp["quote_source"] = rep.QuoteSource
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) status(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"api_running": true,
		"timestamp":   s.now().Format(time.RFC3339),
		"version":     Version,
	})
}
