package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	gorillaws "github.com/gorilla/websocket"

	"cyberquest/core"
	"cyberquest/realtime"
)

func dial(t *testing.T, url string, header http.Header) (*gorillaws.Conn, *http.Response, error) {
	t.Helper()
	wsURL := "ws" + url[len("http"):] // convert http->ws
	return gorillaws.DefaultDialer.Dial(wsURL, header)
}

func waitForSubscribers(t *testing.T, hub *realtime.Hub, n int) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for hub.Len() < n {
		if time.Now().After(deadline) {
			t.Fatal("subscriber never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestHandlerStreamsEvents(t *testing.T) {
	hub := realtime.NewHub()
	server := httptest.NewServer(Handler(hub, Options{}))
	defer server.Close()

	conn, _, err := dial(t, server.URL+"?session=s1", nil)
	if err != nil {
		t.Fatalf("dial ws: %v", err)
	}
	defer conn.Close()
	waitForSubscribers(t, hub, 1)

	hub.Broadcast(context.Background(), core.NewLevelCompleted("other", 1, 1))
	hub.Broadcast(context.Background(), core.NewLevelCompleted("s1", 2, 3))

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read message: %v", err)
	}

	var received core.Event
	if err := json.Unmarshal(msg, &received); err != nil {
		t.Fatalf("decode event: %v", err)
	}
	if received.SessionID != "s1" || received.Level != 2 || received.Stars != 3 {
		t.Fatalf("unexpected event: %+v", received)
	}
}

func TestHandlerUnsubscribesOnClose(t *testing.T) {
	hub := realtime.NewHub()
	server := httptest.NewServer(Handler(hub, Options{}))
	defer server.Close()

	conn, _, err := dial(t, server.URL, nil)
	if err != nil {
		t.Fatalf("dial ws: %v", err)
	}
	waitForSubscribers(t, hub, 1)
	conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for hub.Len() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("subscriber not removed after client closed")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestHandlerRejectsForeignOrigin(t *testing.T) {
	hub := realtime.NewHub()
	server := httptest.NewServer(Handler(hub, Options{AllowedOrigins: []string{"https://game.example"}}))
	defer server.Close()

	_, resp, err := dial(t, server.URL, http.Header{"Origin": []string{"https://evil.example"}})
	if err == nil {
		t.Fatal("expected handshake failure")
	}
	if resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %+v", resp)
	}
}
