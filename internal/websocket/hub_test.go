package websocket

import (
	"testing"
	"time"
)

func TestHub(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	client := &Client{
		hub:  hub,
		send: make(chan []byte, 1),
	}

	hub.register <- client

	hub.BroadcastJSON(map[string]string{"plugin_id": "p1"})

	select {
	case received := <-client.send:
		if string(received) != `{"plugin_id":"p1"}` {
			t.Errorf("client received wrong message: %s", received)
		}
	case <-time.After(1 * time.Second):
		t.Fatal("client did not receive broadcast message in time")
	}

	hub.unregister <- client
	time.Sleep(10 * time.Millisecond)
	if len(hub.clients) != 0 {
		t.Fatalf("expected 0 clients after unregistration, got %d", len(hub.clients))
	}
}
