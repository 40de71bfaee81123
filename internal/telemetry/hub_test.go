package telemetry

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestHubSendsSnapshotOnConnect(t *testing.T) {
	hub := NewHub(func() any { return map[string]int{"open": 3} }, time.Minute)
	srv := httptest.NewServer(http.HandlerFunc(hub.Handler))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv), nil)
	require.NoError(t, err)
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, payload, err := conn.ReadMessage()
	require.NoError(t, err, "snapshot must arrive without waiting an interval")

	var got map[string]int
	require.NoError(t, json.Unmarshal(payload, &got))
	assert.Equal(t, 3, got["open"])
	assert.Eventually(t, func() bool { return hub.Clients() == 1 },
		time.Second, 10*time.Millisecond)
}

// Clients connect while the broadcast loop is firing as fast as it can; the
// initial snapshot and the broadcasts must never write one conn from two
// goroutines.
func TestHubBroadcastsDuringClientChurn(t *testing.T) {
	var seq atomic.Int64
	hub := NewHub(func() any { return map[string]int64{"seq": seq.Add(1)} }, time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	srv := httptest.NewServer(http.HandlerFunc(hub.Handler))
	defer srv.Close()

	const clients = 20
	var wg sync.WaitGroup
	wg.Add(clients)
	for i := 0; i < clients; i++ {
		go func() {
			defer wg.Done()
			conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv), nil)
			if err != nil {
				t.Error(err)
				return
			}
			defer conn.Close()

			conn.SetReadDeadline(time.Now().Add(3 * time.Second))
			for n := 0; n < 3; n++ {
				if _, _, err := conn.ReadMessage(); err != nil {
					t.Errorf("read %d: %v", n, err)
					return
				}
			}
		}()
	}
	wg.Wait()
}
