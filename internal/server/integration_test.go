package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Tyrowin/medrelay/internal/relay"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testOrigin  = "http://localhost:8080"
	readTimeout = 2 * time.Second
)

type relayFixture struct {
	t   *testing.T
	hub *relay.Hub
	url string
}

func startRelay(t *testing.T, customize func(cfg *Config)) *relayFixture {
	t.Helper()

	srv, hub := newTestServer(t, customize)
	ts := httptest.NewServer(SetupRoutes(srv))
	t.Cleanup(ts.Close)

	return &relayFixture{
		t:   t,
		hub: hub,
		url: "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws",
	}
}

func (f *relayFixture) dial(origin string) (*websocket.Conn, *http.Response, error) {
	header := http.Header{}
	if origin != "" {
		header.Set("Origin", origin)
	}
	return websocket.DefaultDialer.Dial(f.url, header)
}

// join dials the relay. The handshake completes only after admission, so
// every broadcast handled afterwards reaches the returned connection.
func (f *relayFixture) join() *websocket.Conn {
	f.t.Helper()

	conn, _, err := f.dial(testOrigin)
	require.NoError(f.t, err)
	f.t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func (f *relayFixture) stats() relay.Stats {
	f.t.Helper()
	stats, err := f.hub.Stats(f.t.Context())
	require.NoError(f.t, err)
	return stats
}

func (f *relayFixture) waitConnections(n int) {
	f.t.Helper()
	require.Eventually(f.t, func() bool {
		stats, err := f.hub.Stats(f.t.Context())
		return err == nil && stats.Connections == n
	}, readTimeout, 10*time.Millisecond, "expected %d connections", n)
}

func sendChat(t *testing.T, conn *websocket.Conn, data string) {
	t.Helper()
	frame := fmt.Sprintf(`{"event":"chatMessage","data":%s}`, data)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(frame)))
}

func readChat(t *testing.T, conn *websocket.Conn) relay.ChatEvent {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(readTimeout)))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)

	var envelope relay.Envelope
	require.NoError(t, json.Unmarshal(raw, &envelope))
	require.Equal(t, relay.EventChatMessage, envelope.Event)

	var event relay.ChatEvent
	require.NoError(t, json.Unmarshal(envelope.Data, &event))
	return event
}

func TestRelayBroadcastScenarios(t *testing.T) {
	tests := []struct {
		name string
		data string
		want relay.ChatEvent
	}{
		{
			name: "complete message",
			data: `{"name":"Alice","message":"hi","timestamp":1000}`,
			want: relay.ChatEvent{Name: "Alice", Message: "hi", Timestamp: 1000},
		},
		{
			name: "missing name and timestamp",
			data: `{"message":"hello"}`,
			want: relay.ChatEvent{Name: "User", Message: "hello", Timestamp: fixedNow.UnixMilli()},
		},
		{
			name: "non string name",
			data: `{"name":42,"message":"x","timestamp":5}`,
			want: relay.ChatEvent{Name: "User", Message: "x", Timestamp: 5},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := startRelay(t, nil)
			sender := f.join()
			other := f.join()

			sendChat(t, sender, tt.data)

			assert.Equal(t, tt.want, readChat(t, other))
			assert.Equal(t, tt.want, readChat(t, sender), "sender receives its own message")
		})
	}
}

func TestRelayDropsEmptyMessages(t *testing.T) {
	f := startRelay(t, nil)
	sender := f.join()
	other := f.join()

	sendChat(t, sender, `{"name":"Bob","message":""}`)
	sendChat(t, sender, `{"name":"Bob"}`)
	sendChat(t, sender, `{"name":"Bob","message":"marker"}`)

	// Delivery is ordered, so the marker arriving first means nothing was
	// broadcast for the empty messages.
	assert.Equal(t, "marker", readChat(t, other).Message)
	assert.Equal(t, "marker", readChat(t, sender).Message)
}

func TestRelayPreservesSenderOrder(t *testing.T) {
	f := startRelay(t, nil)
	a := f.join()
	b := f.join()

	sendChat(t, a, `{"message":"m1"}`)
	sendChat(t, a, `{"message":"m2"}`)

	for _, conn := range []*websocket.Conn{a, b} {
		assert.Equal(t, "m1", readChat(t, conn).Message)
		assert.Equal(t, "m2", readChat(t, conn).Message)
	}
}

func TestRelayOrdersMessagesAcrossSenders(t *testing.T) {
	f := startRelay(t, nil)
	a := f.join()
	b := f.join()

	sendChat(t, a, `{"message":"m1"}`)
	require.Equal(t, "m1", readChat(t, b).Message)
	sendChat(t, b, `{"message":"m2"}`)

	assert.Equal(t, "m1", readChat(t, a).Message)
	assert.Equal(t, "m2", readChat(t, a).Message)
	assert.Equal(t, "m2", readChat(t, b).Message)
}

func TestRelayDeliversToPeersRightAfterHandshake(t *testing.T) {
	f := startRelay(t, nil)
	sender := f.join()

	for i := range 100 {
		peer, _, err := f.dial(testOrigin)
		require.NoError(t, err)

		message := fmt.Sprintf("after-handshake-%d", i)
		sendChat(t, sender, fmt.Sprintf(`{"message":%q}`, message))

		assert.Equal(t, message, readChat(t, peer).Message, "peer %d missed a broadcast sent after it connected", i)
		assert.Equal(t, message, readChat(t, sender).Message)
		require.NoError(t, peer.Close())
	}
}

func TestRelayIgnoresUnknownFrames(t *testing.T) {
	f := startRelay(t, nil)
	sender := f.join()
	other := f.join()

	require.NoError(t, sender.WriteMessage(websocket.TextMessage, []byte("not json")))
	require.NoError(t, sender.WriteMessage(websocket.TextMessage, []byte(`{"event":"typing","data":{"message":"x"}}`)))
	require.NoError(t, sender.WriteMessage(websocket.TextMessage, []byte(`{"event":"chatMessage","data":"just a string"}`)))
	sendChat(t, sender, `{"message":"still connected"}`)
	assert.Equal(t, "still connected", readChat(t, other).Message)
}

func TestRelayRemovesDisconnectedClients(t *testing.T) {
	f := startRelay(t, nil)
	leaving := f.join()
	staying := f.join()

	require.NoError(t, leaving.Close())
	f.waitConnections(1)

	sendChat(t, staying, `{"message":"alone"}`)
	assert.Equal(t, "alone", readChat(t, staying).Message)
	assert.Equal(t, relay.Stats{Rooms: 1, Connections: 1}, f.stats())
}

func TestRelayRejectsDisallowedOrigin(t *testing.T) {
	f := startRelay(t, nil)

	for _, origin := range []string{"https://evil.example", ""} {
		conn, resp, err := f.dial(origin)
		require.Error(t, err, "origin %q", origin)
		if conn != nil {
			_ = conn.Close()
		}
		require.NotNil(t, resp)
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	}
	assert.Zero(t, f.stats().Connections)
}

func TestRelayClosesOversizedFrames(t *testing.T) {
	f := startRelay(t, func(cfg *Config) { cfg.MaxMessageSize = 64 })
	conn := f.join()

	sendChat(t, conn, fmt.Sprintf(`{"message":%q}`, strings.Repeat("x", 128)))

	f.waitConnections(0)
}

func TestRelayShutdownClosesClients(t *testing.T) {
	f := startRelay(t, nil)
	conn := f.join()

	require.NoError(t, stopHub(f.hub))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(readTimeout)))
	_, _, err := conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)
}
