package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/atikulmunna/loomwatch/internal/aggregator"
	"github.com/atikulmunna/loomwatch/internal/hub"
	"github.com/atikulmunna/loomwatch/internal/model"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) (*httptest.Server, *hub.Hub, *aggregator.Aggregator) {
	t.Helper()
	h := hub.New(zerolog.Nop())
	agg := aggregator.New(aggregator.Sources{Maintenance: func() bool { return true }})
	ts := httptest.NewServer(New(h, agg, "", zerolog.Nop()).Handler())
	t.Cleanup(ts.Close)
	return ts, h, agg
}

func getJSON(t *testing.T, url string, into interface{}) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.NewDecoder(resp.Body).Decode(into))
}

func TestHealthz(t *testing.T) {
	ts, _, agg := newTestServer(t)
	agg.RecordLine(true)
	agg.RecordPool("blue")

	var body map[string]interface{}
	getJSON(t, ts.URL+"/healthz", &body)

	assert.Equal(t, "ok", body["status"])
	assert.EqualValues(t, 1, body["lines_read"])
	assert.Equal(t, "blue", body["current_pool"])
	assert.Equal(t, true, body["maintenance"])
}

func TestStats(t *testing.T) {
	ts, _, agg := newTestServer(t)
	agg.RecordLine(true)
	agg.RecordLine(false)
	agg.RecordWindow(50, true, 2, 200, 1)

	var stats aggregator.Stats
	getJSON(t, ts.URL+"/api/stats", &stats)

	assert.EqualValues(t, 2, stats.LinesRead)
	assert.EqualValues(t, 1, stats.LinesUnparsed)
	require.NotNil(t, stats.ErrorRate)
	assert.Equal(t, 50.0, *stats.ErrorRate)
	assert.Equal(t, 200, stats.WindowCapacity)
}

func TestWebSocketStreamsAlerts(t *testing.T) {
	ts, h, _ := newTestServer(t)

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return h.Subscribers() == 1 }, 2*time.Second, 10*time.Millisecond)

	h.Publish(model.AlertRecord{
		Alert:    model.Alert{ID: "a1", Kind: model.KindFailover, Summary: "Failover detected: blue -> green"},
		Decision: "dispatched",
	})

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var got model.AlertRecord
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, "a1", got.Alert.ID)
	assert.Equal(t, model.KindFailover, got.Alert.Kind)
	assert.Equal(t, "dispatched", got.Decision)
}

func TestWebSocketUnsubscribesOnDisconnect(t *testing.T) {
	ts, h, _ := newTestServer(t)

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return h.Subscribers() == 1 }, 2*time.Second, 10*time.Millisecond)

	conn.Close()
	assert.Eventually(t, func() bool { return h.Subscribers() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestRunStopsOnCancel(t *testing.T) {
	h := hub.New(zerolog.Nop())
	s := New(h, aggregator.New(aggregator.Sources{}), "127.0.0.1:0", zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
