package main

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func waitClients(t *testing.T, hub *Hub, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for hub.Count() != n {
		if time.Now().After(deadline) {
			t.Fatalf("Expected %d websocket clients, got %d", n, hub.Count())
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestHubBroadcast(t *testing.T) {
	d, _ := testDaemon(t)
	router := d.setupRouter()

	server := httptest.NewServer(router)
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/events"
	client, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Failed to dial: %v", err)
	}
	defer func() {
		_ = client.Close()
	}()

	waitClients(t, d.hub, 1)

	d.hub.Broadcast("connected", map[string]any{"port": "/dev/ttyUSB0"})

	_ = client.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := client.ReadMessage()
	if err != nil {
		t.Fatalf("Failed to read broadcast: %v", err)
	}

	var event struct {
		Type string         `json:"type"`
		Data map[string]any `json:"data"`
	}
	if err = json.Unmarshal(msg, &event); err != nil {
		t.Fatalf("Failed to decode broadcast: %v", err)
	}
	if event.Type != "connected" || event.Data["port"] != "/dev/ttyUSB0" {
		t.Fatalf("Expected a connected event, got %s", msg)
	}
}

func TestHubDropsClosedClients(t *testing.T) {
	d, _ := testDaemon(t)
	router := d.setupRouter()

	server := httptest.NewServer(router)
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/events"
	client, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Failed to dial: %v", err)
	}

	waitClients(t, d.hub, 1)

	_ = client.Close()
	waitClients(t, d.hub, 0)
}
