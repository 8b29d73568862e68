package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/Rahwulkumar/trading-journal/internal/metrics"
	"github.com/Rahwulkumar/trading-journal/internal/model"
	"github.com/Rahwulkumar/trading-journal/internal/quote"
)

// QuoteFetcher is the batched quote call the streamer polls.
type QuoteFetcher interface {
	GetQuotes(ctx context.Context, symbols []string) []model.QuoteResult
}

// SnapshotSink keeps the latest streamed quotes, e.g. in Redis.
type SnapshotSink interface {
	SaveQuotes(ctx context.Context, quotes []model.Quote) error
}

// SubscribeMsg is the client request that starts or replaces a price stream.
type SubscribeMsg struct {
	Type    string   `json:"type"`
	Symbols []string `json:"symbols"`
}

// PriceUpdate is pushed on every tick. Data holds only the symbols that resolved.
type PriceUpdate struct {
	Type      string        `json:"type"`
	Data      []model.Quote `json:"data"`
	Timestamp time.Time     `json:"timestamp"`
}

// ErrorMsg is sent once before a stream is terminated.
type ErrorMsg struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// PriceStreamer runs one polling loop per websocket connection.
type PriceStreamer struct {
	quotes   QuoteFetcher
	interval time.Duration
	sink     SnapshotSink
	metrics  *metrics.Metrics
	log      *slog.Logger
}

// NewPriceStreamer polls quotes every interval. sink may be nil.
func NewPriceStreamer(quotes QuoteFetcher, interval time.Duration, sink SnapshotSink, m *metrics.Metrics, log *slog.Logger) *PriceStreamer {
	if interval <= 0 {
		interval = time.Second
	}
	if log == nil {
		log = slog.Default()
	}
	return &PriceStreamer{
		quotes:   quotes,
		interval: interval,
		sink:     sink,
		metrics:  m,
		log:      log.With(slog.String("component", "price_stream")),
	}
}

// Serve drives conn until the peer disconnects, a fetch or write fails, or ctx ends.
// The connection is always closed on return.
//
// The loop waits for a subscribe message, then pushes a price_update every interval.
// A later subscribe message replaces the symbol set. When the provider call fails
// outright, one error message is sent and the connection is closed.
func (s *PriceStreamer) Serve(ctx context.Context, conn *websocket.Conn) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer conn.Close()

	s.metrics.StreamStarted()
	defer s.metrics.StreamStopped()

	subs := make(chan []string, 1)
	readErr := make(chan error, 1)
	go s.readLoop(ctx, conn, subs, readErr)

	var symbols []string
	var tick <-chan time.Time
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.closeFrame(conn, websocket.CloseGoingAway, "server shutting down")
			return

		case err := <-readErr:
			var bad *badMessageError
			if errors.As(err, &bad) {
				s.sendError(conn, bad.Error())
			}
			return

		case symbols = <-subs:
			s.log.Debug("subscribed", "symbols", symbols)
			if err := s.push(ctx, conn, symbols); err != nil {
				s.fail(conn, err)
				return
			}
			ticker.Reset(s.interval)
			tick = ticker.C

		case <-tick:
			if ctx.Err() != nil {
				continue
			}
			if err := s.push(ctx, conn, symbols); err != nil {
				s.fail(conn, err)
				return
			}
		}
	}
}

// push fetches one batch and writes a price_update.
func (s *PriceStreamer) push(ctx context.Context, conn *websocket.Conn, symbols []string) error {
	results := s.quotes.GetQuotes(ctx, symbols)
	if err := batchError(results); err != nil {
		return err
	}
	quotes := quote.Successes(results)

	if s.sink != nil && len(quotes) > 0 {
		if err := s.sink.SaveQuotes(ctx, quotes); err != nil {
			s.log.Debug("snapshot save failed", "err", err)
		}
	}

	msg, err := json.Marshal(PriceUpdate{Type: model.EnvPriceUpdate, Data: quotes, Timestamp: time.Now().UTC()})
	if err != nil {
		return err
	}
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteMessage(websocket.TextMessage, msg)
}

// batchError reports a provider-level failure: every symbol failed and none of the
// failures is a plain per-symbol "price unavailable".
func batchError(results []model.QuoteResult) error {
	if len(results) == 0 {
		return nil
	}
	for _, r := range results {
		if r.OK() || errors.Is(r.Err, quote.ErrPriceUnavailable) {
			return nil
		}
	}
	return results[0].Err
}

func (s *PriceStreamer) fail(conn *websocket.Conn, err error) {
	s.log.Warn("stream terminated", "kind", quote.Kind(err), "err", err)
	s.sendError(conn, err.Error())
}

func (s *PriceStreamer) sendError(conn *websocket.Conn, message string) {
	msg, _ := json.Marshal(ErrorMsg{Type: model.EnvError, Message: message})
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
		return
	}
	s.closeFrame(conn, websocket.CloseNormalClosure, "")
}

func (s *PriceStreamer) closeFrame(conn *websocket.Conn, code int, text string) {
	conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, text), time.Now().Add(writeWait))
}

type badMessageError struct{ reason string }

func (e *badMessageError) Error() string { return e.reason }

// readLoop forwards subscribe requests and reports when the peer goes away.
// It is the only reader of conn.
func (s *PriceStreamer) readLoop(ctx context.Context, conn *websocket.Conn, subs chan []string, readErr chan<- error) {
	conn.SetReadLimit(maxMessageSize)
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			readErr <- err
			return
		}

		var msg SubscribeMsg
		if err := json.Unmarshal(data, &msg); err != nil {
			readErr <- &badMessageError{reason: fmt.Sprintf("invalid message: %v", err)}
			return
		}
		if msg.Type != "subscribe" {
			continue
		}
		symbols := quote.Distinct(msg.Symbols)
		if len(symbols) == 0 {
			readErr <- &badMessageError{reason: "subscribe requires at least one symbol"}
			return
		}

		// Keep only the newest request if the loop has not picked up the last one.
		select {
		case <-subs:
		default:
		}
		select {
		case subs <- symbols:
		case <-ctx.Done():
			return
		}
	}
}
