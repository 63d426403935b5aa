package relay

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

// TestCreatePairHelper exercises the HTTP pairing helpers end to end
// against a live hub.
func TestCreatePairHelper(t *testing.T) {
	hub := NewHub()
	srv := httptest.NewServer(hub.Routes())
	defer srv.Close()

	code, err := CreatePair(context.Background(), srv.URL, "studio-mac")
	if err != nil {
		t.Fatalf("CreatePair: %v", err)
	}
	status, err := PairStatus(context.Background(), srv.URL, code)
	if err != nil {
		t.Fatalf("PairStatus: %v", err)
	}
	if status.Paired || status.Hostname != "studio-mac" {
		t.Fatalf("status = %+v", status)
	}

	if _, err := PairStatus(context.Background(), srv.URL, "ZZZZ-ZZZZ"); err == nil {
		t.Fatal("PairStatus for unknown room did not error")
	}
}

// TestClientPublishesToPeer verifies the adapter path: async Connect, then
// BroadcastActivePeer and PublishTranscription arrive on the peer side.
func TestClientPublishesToPeer(t *testing.T) {
	hub := NewHub()
	srv := httptest.NewServer(hub.Routes())
	defer srv.Close()

	code, err := CreatePair(context.Background(), srv.URL, "studio-mac")
	if err != nil {
		t.Fatalf("CreatePair: %v", err)
	}
	peer := dialRoom(t, srv, RoleClient, code)
	defer peer.Close()

	c := NewClient(srv.URL, code, Inbound{}, nil)
	defer c.Disconnect()
	c.Connect()
	waitFor(t, "client connect", c.Connected)

	c.BroadcastActivePeer("atem-1", 1000)
	var got Message
	if err := json.Unmarshal(readText(t, peer), &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Type != TypeActivePeer || got.ClientID != "atem-1" || got.TimestampMs != 1000 {
		t.Fatalf("peer received %+v", got)
	}

	c.PublishTranscription("atem-1", "speech_segment_3", 2040)
	if err := json.Unmarshal(readText(t, peer), &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Type != TypeTranscription || got.SegmentID != "speech_segment_3" || got.TimestampMs != 2040 {
		t.Fatalf("peer received %+v", got)
	}
}

// TestClientDispatchesInbound verifies activity and disconnect frames from
// a peer reach the handlers.
func TestClientDispatchesInbound(t *testing.T) {
	hub := NewHub()
	srv := httptest.NewServer(hub.Routes())
	defer srv.Close()

	code, err := CreatePair(context.Background(), srv.URL, "studio-mac")
	if err != nil {
		t.Fatalf("CreatePair: %v", err)
	}

	type activity struct {
		id      string
		ts      uint64
		focused bool
	}
	activityCh := make(chan activity, 1)
	disconnectCh := make(chan string, 1)
	c := NewClient(srv.URL, code, Inbound{
		OnActivity: func(clientID string, timestampMs uint64, focused bool) {
			activityCh <- activity{clientID, timestampMs, focused}
		},
		OnDisconnected: func(clientID string) {
			disconnectCh <- clientID
		},
	}, nil)
	defer c.Disconnect()
	c.Connect()
	waitFor(t, "client connect", c.Connected)

	peer := dialRoom(t, srv, RoleClient, code)
	defer peer.Close()

	frame, _ := json.Marshal(Message{Type: TypeActivity, ClientID: "atem-2", TimestampMs: 77, Focused: true})
	if err := peer.WriteMessage(websocket.TextMessage, frame); err != nil {
		t.Fatalf("peer write: %v", err)
	}
	select {
	case got := <-activityCh:
		if got.id != "atem-2" || got.ts != 77 || !got.focused {
			t.Fatalf("activity = %+v", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("activity never dispatched")
	}

	frame, _ = json.Marshal(Message{Type: TypeDisconnected, ClientID: "atem-2"})
	if err := peer.WriteMessage(websocket.TextMessage, frame); err != nil {
		t.Fatalf("peer write: %v", err)
	}
	select {
	case id := <-disconnectCh:
		if id != "atem-2" {
			t.Fatalf("disconnect id = %q", id)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("disconnect never dispatched")
	}
}

// TestPublishWithoutConnectionIsDropped verifies the fail-soft contract:
// publishing while disconnected neither blocks nor panics.
func TestPublishWithoutConnectionIsDropped(t *testing.T) {
	c := NewClient("http://127.0.0.1:9", "AAAA-BBBB", Inbound{}, nil)
	c.BroadcastActivePeer("atem-1", 1)
	c.PublishTranscription("atem-1", "speech_segment_1", 2)
	if c.Connected() {
		t.Fatal("client reports connected without a dial")
	}
}

// TestDisconnectInvalidatesInFlightDial verifies a Disconnect issued while
// the dial goroutine is still retrying leaves the client disconnected.
func TestDisconnectInvalidatesInFlightDial(t *testing.T) {
	// Port 9 (discard) never answers a websocket handshake.
	c := NewClient("http://127.0.0.1:9", "AAAA-BBBB", Inbound{}, nil)
	c.Connect()
	c.Disconnect()

	// Give the dial retries time to lose the race.
	time.Sleep(100 * time.Millisecond)
	if c.Connected() {
		t.Fatal("superseded dial established a connection")
	}
}

// TestPublishNeverBlocksOnFullQueue verifies the adapter contract while
// connected: with the writer stalled and the send queue full, publishes
// drop instead of blocking the caller. The callers hold the monitor's lock,
// so a block here would stall every monitor operation.
func TestPublishNeverBlocksOnFullQueue(t *testing.T) {
	c := NewClient("http://127.0.0.1:9", "AAAA-BBBB", Inbound{}, nil)
	// Install a queue with no writer draining it, as if the socket stalled.
	c.mu.Lock()
	c.send = make(chan []byte, 1)
	c.mu.Unlock()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 10; i++ {
			c.BroadcastActivePeer("atem-1", uint64(i))
			c.PublishTranscription("atem-1", "speech_segment_1", uint64(i))
		}
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a full send queue")
	}

	c.mu.Lock()
	queued := len(c.send)
	c.mu.Unlock()
	if queued != 1 {
		t.Fatalf("queued = %d, want 1 (overflow dropped)", queued)
	}
}

// TestDialGivesUpPromptly verifies the dial loop does not sleep the backoff
// after its final failed attempt. Three refused attempts with 500ms/1000ms
// backoffs between them must finish well under the 2.5s bound; a trailing
// sleep would push past it.
func TestDialGivesUpPromptly(t *testing.T) {
	c := NewClient("http://127.0.0.1:9", "AAAA-BBBB", Inbound{}, nil)
	c.Connect()

	deadline := time.Now().Add(2500 * time.Millisecond)
	for {
		c.mu.Lock()
		dialing := c.dialing
		c.mu.Unlock()
		if !dialing {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("dial goroutine still parked after the final attempt")
		}
		time.Sleep(10 * time.Millisecond)
	}
	if c.Connected() {
		t.Fatal("dial to a dead port reported connected")
	}
}
