// Package redis keeps the latest streamed quote per symbol in Redis so that
// any API instance can serve a recent price without calling the provider.
package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/spf13/cast"

	"github.com/Rahwulkumar/trading-journal/internal/breaker"
	"github.com/Rahwulkumar/trading-journal/internal/metrics"
	"github.com/Rahwulkumar/trading-journal/internal/model"
)

const (
	keyPrefix  = "journal:quote:"
	defaultTTL = 10 * time.Minute
)

// ErrNoSnapshot is returned when no recent quote is stored for a symbol.
var ErrNoSnapshot = errors.New("no quote snapshot")

// Config configures the Redis connection.
type Config struct {
	Addr     string // e.g. "localhost:6379"
	Password string
	DB       int
}

// Connect creates a client and pings the server.
func Connect(ctx context.Context, cfg Config) (*goredis.Client, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, nil
}

// SnapshotStore writes quote hashes under journal:quote:<SYMBOL> with a TTL.
// Writes go through a circuit breaker so a dead Redis costs one fast failure per call.
type SnapshotStore struct {
	client *goredis.Client
	cb     *breaker.CircuitBreaker
	ttl    time.Duration
	log    *slog.Logger
}

// NewSnapshotStore wraps client. A non-positive ttl uses the default.
func NewSnapshotStore(client *goredis.Client, ttl time.Duration, m *metrics.Metrics, log *slog.Logger) *SnapshotStore {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	if log == nil {
		log = slog.Default()
	}
	log = log.With(slog.String("component", "snapshots"))

	cb := breaker.New("redis", 5, 10*time.Second)
	cb.OnStateChange = func(name string, from, to breaker.State) {
		log.Warn("circuit breaker transition", "breaker", name, "from", from.String(), "to", to.String())
		m.BreakerChanged(name, int(to))
	}
	return &SnapshotStore{client: client, cb: cb, ttl: ttl, log: log}
}

// Key returns the hash key for symbol.
func Key(symbol string) string { return keyPrefix + symbol }

// SaveQuotes stores every quote in one pipeline.
func (s *SnapshotStore) SaveQuotes(ctx context.Context, quotes []model.Quote) error {
	if len(quotes) == 0 {
		return nil
	}
	now := strconv.FormatInt(time.Now().Unix(), 10)
	return s.cb.Execute(func() error {
		pipe := s.client.Pipeline()
		for _, q := range quotes {
			key := Key(q.Symbol)
			pipe.HSet(ctx, key,
				"bid", q.Bid,
				"ask", q.Ask,
				"mid", q.Mid,
				"timestamp", q.Timestamp,
				"saved_at", now,
			)
			pipe.Expire(ctx, key, s.ttl)
		}
		_, err := pipe.Exec(ctx)
		return err
	})
}

// Latest returns the stored quote for symbol and when it was saved.
func (s *SnapshotStore) Latest(ctx context.Context, symbol string) (model.Quote, time.Time, error) {
	var fields map[string]string
	err := s.cb.Execute(func() error {
		var err error
		fields, err = s.client.HGetAll(ctx, Key(symbol)).Result()
		return err
	})
	if err != nil {
		return model.Quote{}, time.Time{}, fmt.Errorf("redis snapshot %s: %w", symbol, err)
	}
	if len(fields) == 0 {
		return model.Quote{}, time.Time{}, ErrNoSnapshot
	}
	return decodeQuote(symbol, fields)
}

func decodeQuote(symbol string, fields map[string]string) (model.Quote, time.Time, error) {
	bid, err1 := cast.ToFloat64E(fields["bid"])
	ask, err2 := cast.ToFloat64E(fields["ask"])
	if err := errors.Join(err1, err2); err != nil {
		return model.Quote{}, time.Time{}, fmt.Errorf("redis snapshot %s: %w", symbol, err)
	}
	q := model.NewQuote(symbol, bid, ask, fields["timestamp"])
	saved := time.Unix(cast.ToInt64(fields["saved_at"]), 0).UTC()
	return q, saved, nil
}
