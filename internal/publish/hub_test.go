package publish

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func dialTestHub(t *testing.T, hub *WSHub) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestWSHub_BroadcastsQuoteUpdates(t *testing.T) {
	hub := NewWSHub()
	go hub.Run()

	conn := dialTestHub(t, hub)

	update := QuoteUpdate{EventID: "e1", BuyYes: "55.12", BuyNo: "44.88"}
	deadline := time.After(2 * time.Second)
	received := make(chan QuoteUpdate, 1)
	go func() {
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var u QuoteUpdate
			if json.Unmarshal(data, &u) == nil {
				received <- u
				return
			}
		}
	}()

	// Registration races the first publish; keep sending until delivery.
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case u := <-received:
			if u.EventID != "e1" || u.BuyYes != "55.12" {
				t.Errorf("unexpected update: %+v", u)
			}
			return
		case <-ticker.C:
			hub.PublishQuotes(context.Background(), update)
		case <-deadline:
			t.Fatal("no quote update received")
		}
	}
}

// Pings and broadcasts write the same connection from different
// goroutines; the per-connection write mutex keeps that safe.
func TestWSHub_ConcurrentPingsAndBroadcasts(t *testing.T) {
	hub := NewWSHub()
	hub.pingInterval = 2 * time.Millisecond
	go hub.Run()

	conn := dialTestHub(t, hub)

	var got int
	received := make(chan struct{}, 256)
	go func() {
		// ReadMessage also services ping frames from the hub.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
			received <- struct{}{}
		}
	}()

	update := QuoteUpdate{EventID: "e1", BuyYes: "51", BuyNo: "49"}
	stop := time.After(300 * time.Millisecond)
	ticker := time.NewTicker(time.Millisecond)
	defer ticker.Stop()
loop:
	for {
		select {
		case <-ticker.C:
			hub.PublishQuotes(context.Background(), update)
		case <-received:
			got++
		case <-stop:
			break loop
		}
	}

	if got == 0 {
		t.Fatal("expected broadcasts to arrive while pings were in flight")
	}
}
