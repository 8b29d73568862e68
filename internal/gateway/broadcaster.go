package gateway

import (
	"log/slog"
	"strconv"
	"time"

	"github.com/goccy/go-json"

	"github.com/Rahwulkumar/trading-journal/internal/metrics"
	"github.com/Rahwulkumar/trading-journal/internal/model"
)

// TradeTopic is the topic that carries closure events for one trade.
func TradeTopic(tradeID int64) string {
	return "trade_" + strconv.FormatInt(tradeID, 10)
}

// Broadcaster turns trade mutations into envelopes and fans them out.
// Every method is fire-and-forget: failures are logged and never returned.
type Broadcaster struct {
	hub     *Hub
	relay   *Relay
	metrics *metrics.Metrics
	log     *slog.Logger
	now     func() time.Time
}

// NewBroadcaster delivers through hub directly, or through relay when it is non-nil
// so that subscribers on every instance receive the event.
func NewBroadcaster(hub *Hub, relay *Relay, m *metrics.Metrics, log *slog.Logger) *Broadcaster {
	if log == nil {
		log = slog.Default()
	}
	return &Broadcaster{
		hub:     hub,
		relay:   relay,
		metrics: m,
		log:     log.With(slog.String("component", "broadcaster")),
		now:     time.Now,
	}
}

// OnTradeCreated notifies the account topic of a newly recorded trade.
func (b *Broadcaster) OnTradeCreated(account string, s model.TradeSummary) {
	b.dispatch(account, model.Envelope{Type: model.EnvTradeUpdate, Account: account, Data: s})
}

// OnPerformanceUpdated notifies the account topic of a refreshed daily aggregate.
func (b *Broadcaster) OnPerformanceUpdated(account string, perf any) {
	b.dispatch(account, model.Envelope{Type: model.EnvPerformanceUpdate, Account: account, Data: perf})
}

// OnTradeClosed notifies subscribers of the trade's own topic.
func (b *Broadcaster) OnTradeClosed(account string, c model.CloseSummary) {
	if c.Type == "" {
		c.Type = model.EnvTradeClosed
	}
	b.dispatch(TradeTopic(c.TradeID), model.Envelope{Type: model.EnvTradeClosed, Account: account, Data: c})
}

func (b *Broadcaster) dispatch(topic string, env model.Envelope) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error("dispatch panic", "topic", topic, "type", env.Type, "panic", r)
		}
	}()

	env.Timestamp = b.now().UTC()
	msg, err := json.Marshal(env)
	if err != nil {
		b.log.Warn("envelope encode failed", "topic", topic, "type", env.Type, "err", err)
		return
	}
	b.metrics.Broadcast(env.Type)

	if b.relay != nil {
		b.relay.Send(topic, msg)
		return
	}
	n := b.hub.Broadcast(topic, msg)
	b.log.Debug("broadcast", "topic", topic, "type", env.Type, "delivered", n)
}
