package realtime

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestShouldSend(t *testing.T) {
	h := NewHub(testLogger())

	event := &Event{Type: EventPurchase, BusinessID: "biz_1"}

	tests := []struct {
		name string
		sub  Subscription
		want bool
	}{
		{"all events", Subscription{AllEvents: true}, true},
		{"matching type", Subscription{EventTypes: []EventType{EventPurchase}}, true},
		{"non-matching type", Subscription{EventTypes: []EventType{EventReward}}, false},
		{"matching business", Subscription{AllEvents: true, BusinessIDs: []string{"biz_1"}}, true},
		{"other business", Subscription{AllEvents: true, BusinessIDs: []string{"biz_2"}}, false},
		{"type ok business wrong", Subscription{EventTypes: []EventType{EventPurchase}, BusinessIDs: []string{"biz_2"}}, false},
		{"empty subscription matches", Subscription{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &Client{sub: tt.sub}
			assert.Equal(t, tt.want, h.shouldSend(client, event))
		})
	}
}

func TestHub_BroadcastToClient(t *testing.T) {
	h := NewHub(testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.Run(ctx)

	srv := httptest.NewServer(http.HandlerFunc(h.HandleWebSocket))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer func() { _ = conn.Close() }()

	// Give the hub time to register the client
	require.Eventually(t, func() bool {
		return h.Stats()["connectedClients"].(int) == 1
	}, 2*time.Second, 10*time.Millisecond)

	h.BroadcastPurchase("biz_1", map[string]interface{}{"customerId": "cus_1"})

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)

	var event Event
	require.NoError(t, json.Unmarshal(msg, &event))
	assert.Equal(t, EventPurchase, event.Type)
	assert.Equal(t, "biz_1", event.BusinessID)
}

func TestHub_RejectsAfterShutdown(t *testing.T) {
	h := NewHub(testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	go h.Run(ctx)
	cancel()

	// Wait for Run to exit and close the done channel
	require.Eventually(t, func() bool {
		select {
		case <-h.done:
			return true
		default:
			return false
		}
	}, 2*time.Second, 10*time.Millisecond)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/ws", nil)
	h.HandleWebSocket(w, req)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestHub_Stats(t *testing.T) {
	h := NewHub(testLogger())
	stats := h.Stats()
	assert.Equal(t, 0, stats["connectedClients"])
	assert.Equal(t, int64(0), stats["totalEvents"])
}
