// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/coomerdl/coomerdl/pkg/eventbus"
)

func TestWSHubBroadcastsToConnectedClient(t *testing.T) {
	hub := NewWSHub()
	go hub.Run()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Error(err)
			return
		}
		client := &WSClient{conn: conn, send: make(chan []byte, 16), hub: hub}
		hub.register <- client
		go client.writePump()
		go client.readPump()
	}))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	// Give the hub a moment to register the client before broadcasting.
	time.Sleep(50 * time.Millisecond)
	hub.BroadcastEvent(eventbus.Event{Topic: eventbus.TopicProfileUpdate, Reason: eventbus.ReasonManualRefresh})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatal(err)
	}

	var msg WSMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatal(err)
	}
	if msg.Type != "event" {
		t.Fatalf("expected event message, got %q", msg.Type)
	}
}

func TestWSHubClientCount(t *testing.T) {
	hub := NewWSHub()
	go hub.Run()

	client := &WSClient{send: make(chan []byte, 1), hub: hub}
	hub.register <- client
	time.Sleep(20 * time.Millisecond)
	if hub.ClientCount() != 1 {
		t.Fatalf("expected 1 client, got %d", hub.ClientCount())
	}

	hub.unregister <- client
	time.Sleep(20 * time.Millisecond)
	if hub.ClientCount() != 0 {
		t.Fatalf("expected 0 clients, got %d", hub.ClientCount())
	}
}
