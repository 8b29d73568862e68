package notification

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWebhookNotifier_Send(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(srv.URL, nil)
	err := n.Send(context.Background(), Alert{Level: AlertInfo, Title: "Trade closed", Message: "EURUSD +45.00"})
	require.NoError(t, err)

	assert.Equal(t, "INFO", got["level"])
	assert.Equal(t, "Trade closed", got["title"])
	assert.Equal(t, "EURUSD +45.00", got["message"])
	assert.NotEmpty(t, got["ts"])
}

func TestWebhookNotifier_Non2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	err := NewWebhookNotifier(srv.URL, nil).Send(context.Background(), Alert{Title: "x"})
	assert.ErrorContains(t, err, "unexpected status 502")
}

func TestNew(t *testing.T) {
	assert.IsType(t, &LogNotifier{}, New("", nil))
	assert.IsType(t, &WebhookNotifier{}, New("http://hooks.test/x", nil))
	assert.NoError(t, NewLogNotifier(nil).Send(context.Background(), Alert{Title: "t"}))
}
