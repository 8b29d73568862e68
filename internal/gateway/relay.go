package gateway

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/Rahwulkumar/trading-journal/internal/metrics"
)

// DefaultRelayChannel is the Redis channel shared by all API instances.
const DefaultRelayChannel = "journal:broadcast"

const (
	defaultMaxPending = 1024
	defaultRetryAfter = 5 * time.Second
	defaultEchoWait   = 2 * time.Second
	publishTimeout    = 2 * time.Second
)

type relayMsg struct {
	Origin  string          `json:"origin"`
	Seq     uint64          `json:"seq"`
	Topic   string          `json:"topic"`
	Payload json.RawMessage `json:"payload"`
}

// Relay fans envelopes out across instances through Redis Pub/Sub.
//
// Every message sent while the relay runs goes through one FIFO drained by a
// single publisher, and every instance, including the publisher, delivers what
// it receives to its own Hub. When Redis rejects a publish, or the backlog grows
// past maxPending, the publisher waits for its earlier messages to come back
// through the subscription and then delivers locally, so one topic never sees a
// message overtake an older one. Late echoes of messages already superseded by
// a local delivery are dropped.
type Relay struct {
	rdb     *goredis.Client
	channel string
	hub     *Hub
	origin  string
	metrics *metrics.Metrics
	log     *slog.Logger

	maxPending int
	retryAfter time.Duration
	echoWait   time.Duration

	mu      sync.Mutex
	running bool
	seq     uint64
	pending []relayMsg
	wake    chan struct{}

	// deliverMu orders subscription deliveries against local fallbacks.
	deliverMu sync.Mutex
	published atomic.Uint64 // last own seq accepted by Redis
	echoed    atomic.Uint64 // last own seq received back
	floor     atomic.Uint64 // last own seq delivered locally
	echo      chan struct{}
}

// NewRelay creates a relay on channel (DefaultRelayChannel when empty).
func NewRelay(rdb *goredis.Client, channel string, hub *Hub, m *metrics.Metrics, log *slog.Logger) *Relay {
	if channel == "" {
		channel = DefaultRelayChannel
	}
	if log == nil {
		log = slog.Default()
	}
	return &Relay{
		rdb:        rdb,
		channel:    channel,
		hub:        hub,
		origin:     uuid.NewString(),
		metrics:    m,
		log:        log.With(slog.String("component", "relay")),
		maxPending: defaultMaxPending,
		retryAfter: defaultRetryAfter,
		echoWait:   defaultEchoWait,
		wake:       make(chan struct{}, 1),
		echo:       make(chan struct{}, 1),
	}
}

// Ready reports whether Run is subscribed and publishing.
func (r *Relay) Ready() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

// Send queues msg for topic. While the relay is not running it is delivered to
// the local hub immediately.
func (r *Relay) Send(topic string, msg []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.running {
		r.hub.Broadcast(topic, msg)
		return
	}
	r.seq++
	r.pending = append(r.pending, relayMsg{Origin: r.origin, Seq: r.seq, Topic: topic, Payload: msg})
	select {
	case r.wake <- struct{}{}:
	default:
	}
}

// Run subscribes to the relay channel and publishes queued messages.
// Blocks until ctx is cancelled. Messages still queued on return are delivered locally.
func (r *Relay) Run(ctx context.Context) error {
	pubsub := r.rdb.Subscribe(ctx, r.channel)
	defer pubsub.Close()

	// Wait for confirmation so nothing we publish is missed by our own subscriber.
	if _, err := pubsub.Receive(ctx); err != nil {
		return err
	}
	r.log.Info("subscribed", "channel", r.channel)
	r.mu.Lock()
	r.running = true
	r.mu.Unlock()

	loopCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		r.publishLoop(loopCtx)
	}()
	defer func() {
		cancel()
		<-done
		r.stop()
	}()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var m relayMsg
			if err := json.Unmarshal([]byte(msg.Payload), &m); err != nil {
				r.log.Warn("bad relay message", "err", err)
				continue
			}
			r.receive(m)
		}
	}
}

func (r *Relay) receive(m relayMsg) {
	r.deliverMu.Lock()
	own := m.Origin == r.origin
	if own && m.Seq <= r.floor.Load() {
		r.deliverMu.Unlock()
		r.log.Debug("late echo dropped", "topic", m.Topic, "seq", m.Seq)
		return
	}
	r.hub.Broadcast(m.Topic, m.Payload)
	r.deliverMu.Unlock()
	r.metrics.Relayed()

	if own {
		storeMax(&r.echoed, m.Seq)
		select {
		case r.echo <- struct{}{}:
		default:
		}
	}
}

// stop delivers whatever is still queued, in order, and switches Send to local delivery.
func (r *Relay) stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.running = false
	for _, m := range r.pending {
		r.hub.Broadcast(m.Topic, m.Payload)
	}
	if n := len(r.pending); n > 0 {
		r.log.Info("delivered queued messages locally", "count", n)
	}
	r.pending = nil
}

func (r *Relay) next(ctx context.Context) (relayMsg, int, bool) {
	for {
		if ctx.Err() != nil {
			return relayMsg{}, 0, false
		}
		r.mu.Lock()
		if len(r.pending) > 0 {
			m := r.pending[0]
			r.pending[0] = relayMsg{}
			r.pending = r.pending[1:]
			backlog := len(r.pending)
			r.mu.Unlock()
			return m, backlog, true
		}
		r.mu.Unlock()

		select {
		case <-ctx.Done():
			return relayMsg{}, 0, false
		case <-r.wake:
		}
	}
}

func (r *Relay) publishLoop(ctx context.Context) {
	var degradedUntil time.Time
	for {
		m, backlog, ok := r.next(ctx)
		if !ok {
			return
		}
		if time.Now().Before(degradedUntil) {
			r.deliverLocal(ctx, m)
			continue
		}
		if backlog >= r.maxPending {
			r.log.Warn("relay backlog full, delivering locally", "topic", m.Topic, "backlog", backlog)
			r.deliverLocal(ctx, m)
			continue
		}
		if err := r.publish(ctx, m); err != nil {
			r.log.Warn("relay publish failed, delivering locally", "topic", m.Topic, "err", err)
			degradedUntil = time.Now().Add(r.retryAfter)
			r.deliverLocal(ctx, m)
		}
	}
}

func (r *Relay) publish(ctx context.Context, m relayMsg) error {
	data, err := json.Marshal(m)
	if err != nil {
		return err
	}
	pctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	if err := r.rdb.Publish(pctx, r.channel, data).Err(); err != nil {
		return err
	}
	r.published.Store(m.Seq)
	return nil
}

// deliverLocal hands m to the hub once every earlier published message has
// come back, or echoWait has passed.
func (r *Relay) deliverLocal(ctx context.Context, m relayMsg) {
	r.waitEcho(ctx, r.published.Load())

	r.deliverMu.Lock()
	r.floor.Store(m.Seq)
	r.hub.Broadcast(m.Topic, m.Payload)
	r.deliverMu.Unlock()
}

func (r *Relay) waitEcho(ctx context.Context, target uint64) {
	if r.echoed.Load() >= target {
		return
	}
	timer := time.NewTimer(r.echoWait)
	defer timer.Stop()
	for r.echoed.Load() < target {
		select {
		case <-r.echo:
		case <-timer.C:
			r.log.Warn("echo wait expired, later echoes dropped", "want", target, "have", r.echoed.Load())
			storeMax(&r.echoed, target)
			return
		case <-ctx.Done():
			return
		}
	}
}

func storeMax(v *atomic.Uint64, n uint64) {
	for {
		cur := v.Load()
		if cur >= n || v.CompareAndSwap(cur, n) {
			return
		}
	}
}
