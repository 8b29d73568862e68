package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	goredis "github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"

	"github.com/Rahwulkumar/trading-journal/config"
	"github.com/Rahwulkumar/trading-journal/internal/api"
	"github.com/Rahwulkumar/trading-journal/internal/blob"
	"github.com/Rahwulkumar/trading-journal/internal/gateway"
	"github.com/Rahwulkumar/trading-journal/internal/logger"
	"github.com/Rahwulkumar/trading-journal/internal/metrics"
	"github.com/Rahwulkumar/trading-journal/internal/notification"
	"github.com/Rahwulkumar/trading-journal/internal/portfolio"
	"github.com/Rahwulkumar/trading-journal/internal/quote"
	redisstore "github.com/Rahwulkumar/trading-journal/internal/store/redis"
)

const (
	livenessInterval = 15 * time.Second
	shutdownTimeout  = 10 * time.Second
)

func newServeCmd(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the API and metrics servers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := o.config()
			if err != nil {
				return err
			}
			log := logger.Init(serviceName, logger.ParseLevel(cfg.LogLevel), logger.Options{File: cfg.LogFile})
			return serve(cmd.Context(), cfg, log)
		},
	}
}

func serve(parent context.Context, cfg *config.Config, log *slog.Logger) (err error) {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	var closers []func() error
	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			err = multierr.Append(err, closers[i]())
		}
	}()

	// Metrics and health
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewMetrics(reg)
	health := metrics.NewHealthStatus(cfg.QuoteSource, cfg.RedisEnabled())

	// Persistence
	ledger, err := openLedger(cfg, log)
	if err != nil {
		return err
	}
	closers = append(closers, ledger.Close)

	// Quote source
	quotes, err := quote.New(quote.Settings{
		Kind:           cfg.QuoteSource,
		APIKey:         cfg.TraderMadeAPIKey,
		BaseURL:        cfg.TraderMadeURL,
		Timeout:        cfg.QuoteTimeout,
		CandleCacheTTL: cfg.CandleCacheTTL,
	}, m, health, log)
	if err != nil {
		return err
	}
	closers = append(closers, func() error { quotes.Close(); return nil })
	if cfg.QuoteSource == config.QuoteSourceLive && cfg.TraderMadeAPIKey == "" {
		log.Warn("TRADEMADE_API_KEY not set; quote endpoints will report not configured")
	}

	// Redis is optional: relay and snapshots only run when it is configured.
	var (
		rdb       *goredis.Client
		relay     *gateway.Relay
		sink      gateway.SnapshotSink
		snapshots api.SnapshotReader
	)
	hub := gateway.NewHub(m, log)
	if cfg.RedisEnabled() {
		rdb, err = redisstore.Connect(ctx, redisstore.Config{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
		if err != nil {
			return err
		}
		closers = append(closers, rdb.Close)
		store := redisstore.NewSnapshotStore(rdb, 0, m, log)
		sink, snapshots = store, store

		relay = gateway.NewRelay(rdb, gateway.DefaultRelayChannel, hub, m, log)
		go func() {
			if err := relay.Run(ctx); err != nil {
				log.Error("relay stopped, broadcasting locally", "err", err)
			}
		}()
		log.Info("redis connected", "addr", cfg.RedisAddr)
	}
	health.StartLivenessChecker(ctx, rdb, ledger.DB(), livenessInterval)

	// Screenshot storage
	blobs, closeBlobs, err := blob.New(ctx, blob.Config{
		Backend:         cfg.BlobBackend,
		Dir:             cfg.UploadDir,
		BaseURL:         cfg.UploadBaseURL,
		Bucket:          cfg.GCSBucket,
		CredentialsFile: cfg.GCSCredentialsFile,
	})
	if err != nil {
		return err
	}
	closers = append(closers, closeBlobs)
	uploadDir := ""
	if cfg.BlobBackend == config.BlobLocal {
		uploadDir = cfg.UploadDir
	}

	origins := cfg.Origins()
	streamer := gateway.NewPriceStreamer(quotes, cfg.StreamInterval, sink, m, log)
	gin.SetMode(gin.ReleaseMode)
	router, err := api.NewRouter(api.Deps{
		Ledger:      ledger,
		Quotes:      quotes,
		Engine:      portfolio.NewEngine(quotes, m, log),
		Broadcaster: gateway.NewBroadcaster(hub, relay, m, log),
		WS: &gateway.Server{
			Upgrader:    gateway.NewUpgrader(origins),
			Hub:         hub,
			Streamer:    streamer,
			Log:         log,
			BaseContext: ctx,
		},
		Blobs:          blobs,
		Snapshots:      snapshots,
		Notifier:       notification.New(cfg.NotifyWebhookURL, log),
		Metrics:        m,
		Health:         health,
		Log:            log,
		Origins:        origins,
		UploadDir:      uploadDir,
		UploadURL:      cfg.UploadBaseURL,
		MaxUploadBytes: cfg.MaxUploadBytes,
	})
	if err != nil {
		return err
	}

	metricsSrv := metrics.NewServer(cfg.MetricsAddr, health, reg, log)
	metricsSrv.Start()

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		log.Info("api listening", "addr", cfg.ListenAddr, "quote_source", cfg.QuoteSource, "blob", cfg.BlobBackend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case sig := <-sigCh:
		log.Info("shutting down", "signal", sig.String())
	case err := <-serveErr:
		if err != nil {
			log.Error("api server failed", "err", err)
			cancel()
			return fmt.Errorf("api server: %w", err)
		}
	case <-parent.Done():
		log.Info("shutting down", "reason", parent.Err())
	}

	// Stop streaming loops and the relay first, then drop every socket so
	// Shutdown does not wait on hijacked connections.
	cancel()
	hub.Close()

	sctx, scancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer scancel()
	err = multierr.Combine(srv.Shutdown(sctx), metricsSrv.Stop(sctx))
	log.Info("shutdown complete")
	return err
}
