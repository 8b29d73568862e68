package api

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dialWS(t *testing.T, srv *httptest.Server, path string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+path, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readWS(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var v map[string]any
	require.NoError(t, json.Unmarshal(data, &v))
	return v
}

func TestWS_AccountTopicReceivesTradeUpdates(t *testing.T) {
	f := newFixture(t)
	srv := httptest.NewServer(f.router)
	defer srv.Close()

	conn := dialWS(t, srv, "/ws/FTMO-1")
	require.Eventually(t, func() bool { return f.hub.ConnCount("FTMO-1") == 1 }, 2*time.Second, 10*time.Millisecond)

	w := f.do("POST", "/trades/", closedTrade())
	require.Equal(t, 200, w.Code)

	env := readWS(t, conn)
	assert.Equal(t, "trade_update", env["type"])
	assert.Equal(t, "FTMO-1", env["account"])
	env = readWS(t, conn)
	assert.Equal(t, "performance_update", env["type"])
}

func TestWS_PriceStream(t *testing.T) {
	f := newFixture(t)
	srv := httptest.NewServer(f.router)
	defer srv.Close()

	conn := dialWS(t, srv, "/ws/live-prices/client-1")
	require.NoError(t, conn.WriteJSON(map[string]any{"type": "subscribe", "symbols": []string{"EURUSD", "NOPE99"}}))

	for i := 0; i < 2; i++ {
		msg := readWS(t, conn)
		assert.Equal(t, "price_update", msg["type"])
		data := msg["data"].([]any)
		require.Len(t, data, 1)
		assert.Equal(t, "EURUSD", data[0].(map[string]any)["symbol"])
	}
}
