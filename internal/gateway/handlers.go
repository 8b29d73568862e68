package gateway

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"
)

// NewUpgrader accepts browsers from origins, or any origin when the list is empty or contains "*".
func NewUpgrader(origins []string) *websocket.Upgrader {
	allowed := make(map[string]bool, len(origins))
	allowAll := len(origins) == 0
	for _, o := range origins {
		if o == "*" {
			allowAll = true
		}
		allowed[strings.TrimRight(o, "/")] = true
	}
	return &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return allowAll || origin == "" || allowed[origin]
		},
	}
}

// Server upgrades HTTP requests onto the hub or a price stream.
type Server struct {
	Upgrader *websocket.Upgrader
	Hub      *Hub
	Streamer *PriceStreamer
	Log      *slog.Logger

	// BaseContext is cancelled on shutdown to stop every price stream.
	BaseContext context.Context
}

// ServeTopic upgrades the request and subscribes the socket to topic until it closes.
func (s *Server) ServeTopic(w http.ResponseWriter, r *http.Request, topic string) {
	conn, err := s.Upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger().Warn("ws upgrade failed", "topic", topic, "err", err)
		return
	}
	NewClient(s.Hub, conn, topic, s.logger()).Serve()
}

// ServePrices upgrades the request and runs a price stream on it.
func (s *Server) ServePrices(w http.ResponseWriter, r *http.Request, clientID string) {
	conn, err := s.Upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger().Warn("ws upgrade failed", "client", clientID, "err", err)
		return
	}
	ctx := s.BaseContext
	if ctx == nil {
		ctx = context.Background()
	}
	s.logger().Debug("price stream opened", "client", clientID)
	s.Streamer.Serve(ctx, conn)
	s.logger().Debug("price stream closed", "client", clientID)
}

func (s *Server) logger() *slog.Logger {
	if s.Log == nil {
		return slog.Default()
	}
	return s.Log
}
