package server

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sunridgelabs/fieldops/backend/internal/realtime"
)

func dialWebsocket(testContext *testing.T, server *httptest.Server) *websocket.Conn {
	testContext.Helper()
	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		testContext.Fatalf("failed to dial websocket: %v", err)
	}
	return conn
}

func TestWebsocketEchoesInboundMessages(testContext *testing.T) {
	fixture := newRouterFixture(testContext, nil)
	server := httptest.NewServer(fixture.handler)
	defer server.Close()

	conn := dialWebsocket(testContext, server)
	defer conn.Close()

	if err := conn.WriteMessage(websocket.TextMessage, []byte("hello")); err != nil {
		testContext.Fatalf("failed to write message: %v", err)
	}
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, payload, err := conn.ReadMessage()
	if err != nil {
		testContext.Fatalf("failed to read echo: %v", err)
	}
	if string(payload) != "Server received: hello" {
		testContext.Fatalf("unexpected echo payload: %s", payload)
	}
}

func TestWebsocketReceivesBroadcasts(testContext *testing.T) {
	fixture := newRouterFixture(testContext, nil)
	server := httptest.NewServer(fixture.handler)
	defer server.Close()

	conn := dialWebsocket(testContext, server)
	defer conn.Close()

	// Registration happens inside the upgrade handler; wait for it.
	deadline := time.Now().Add(2 * time.Second)
	for fixture.registry.Count() == 0 {
		if time.Now().After(deadline) {
			testContext.Fatalf("connection never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	fixture.hub.Broadcast(realtime.EventDataSyncComplete, map[string]any{"synced_count": 3})

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, payload, err := conn.ReadMessage()
	if err != nil {
		testContext.Fatalf("failed to read broadcast: %v", err)
	}
	var event map[string]any
	if err := json.Unmarshal(payload, &event); err != nil {
		testContext.Fatalf("failed to decode broadcast %q: %v", payload, err)
	}
	if event["type"] != realtime.EventDataSyncComplete {
		testContext.Fatalf("unexpected event type: %v", event["type"])
	}
	if event["synced_count"] != float64(3) {
		testContext.Fatalf("unexpected synced_count: %v", event["synced_count"])
	}
	if _, err := time.Parse(time.RFC3339, event["timestamp"].(string)); err != nil {
		testContext.Fatalf("expected RFC3339 timestamp, got %v", event["timestamp"])
	}
}

func TestWebsocketDisconnectUnregisters(testContext *testing.T) {
	fixture := newRouterFixture(testContext, nil)
	server := httptest.NewServer(fixture.handler)
	defer server.Close()

	conn := dialWebsocket(testContext, server)

	deadline := time.Now().Add(2 * time.Second)
	for fixture.registry.Count() == 0 {
		if time.Now().After(deadline) {
			testContext.Fatalf("connection never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	_ = conn.Close()

	deadline = time.Now().Add(2 * time.Second)
	for fixture.registry.Count() != 0 {
		if time.Now().After(deadline) {
			testContext.Fatalf("connection never unregistered after close")
		}
		time.Sleep(5 * time.Millisecond)
	}
}
