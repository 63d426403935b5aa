package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/voice-station-lab/internal/logging"
	"github.com/voice-station-lab/internal/metrics"
)

const (
	dialAttempts = 3
	dialBackoff  = 500 * time.Millisecond
	httpTimeout  = 5 * time.Second
)

// Inbound is the set of handlers for messages arriving from peer clients
// through the relay. Members are optional. Handlers run on the client's
// read-pump goroutine, never on the monitor's adapter call stack, so they
// may safely call back into the monitor.
type Inbound struct {
	OnActivity     func(clientID string, timestampMs uint64, focused bool)
	OnDisconnected func(clientID string)
}

// Client is the station side of a pair room. It implements
// monitor.SignalingAdapter: Connect dials the relay asynchronously and
// publishes only enqueue onto a bounded send queue drained by a writer
// goroutine, so the monitor's lock-held adapter calls never block on I/O.
// Publishes are dropped (fail-soft) while the websocket is down or the
// queue is full.
type Client struct {
	baseURL string
	code    string
	inbound Inbound
	metrics *metrics.Metrics

	mu      sync.Mutex
	conn    *websocket.Conn
	send    chan []byte
	dialing bool
	gen     int
}

// NewClient creates a relay client for an existing pair room. baseURL is
// the hub's HTTP base (http://host:port); m may be nil.
func NewClient(baseURL, code string, inbound Inbound, m *metrics.Metrics) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		code:    code,
		inbound: inbound,
		metrics: m,
	}
}

// wsURL derives the websocket endpoint from the HTTP base URL.
func (c *Client) wsURL() string {
	base := c.baseURL
	if strings.HasPrefix(base, "https://") {
		base = "wss://" + strings.TrimPrefix(base, "https://")
	} else {
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	return fmt.Sprintf("%s/ws?role=%s&code=%s", base, RoleStation, c.code)
}

// Connect starts an asynchronous dial to the relay. It returns immediately;
// a dial already in flight or an established connection makes it a no-op.
func (c *Client) Connect() {
	c.mu.Lock()
	if c.conn != nil || c.dialing {
		c.mu.Unlock()
		return
	}
	c.dialing = true
	c.gen++
	gen := c.gen
	c.mu.Unlock()

	go c.dial(gen)
}

func (c *Client) dial(gen int) {
	var conn *websocket.Conn
	var err error
	for attempt := 0; attempt < dialAttempts; attempt++ {
		conn, _, err = websocket.DefaultDialer.Dial(c.wsURL(), nil)
		if err == nil {
			break
		}
		logging.Warnw("relay dial failed", "attempt", attempt+1, "err", err, "url", c.wsURL())
		if attempt+1 < dialAttempts {
			time.Sleep(dialBackoff * time.Duration(attempt+1))
		}
	}

	c.mu.Lock()
	if err != nil {
		c.dialing = false
		c.mu.Unlock()
		logging.Errorw("relay connect gave up", logging.RoomFields(c.code, RoleStation)...)
		return
	}
	// Disconnect (or a newer Connect) may have superseded this dial.
	if gen != c.gen || c.conn != nil {
		c.mu.Unlock()
		_ = conn.Close()
		return
	}
	send := make(chan []byte, sendQueueSize)
	c.conn = conn
	c.send = send
	c.dialing = false
	c.mu.Unlock()

	logging.Infow("relay connected", logging.RoomFields(c.code, RoleStation)...)
	go c.writePump(conn, send)
	go c.readPump(conn)
}

// detachConn clears the connection and closes its send queue if conn is
// still the current one. The queue is closed only here, under the mutex,
// so publish's non-blocking enqueue never races a close.
func (c *Client) detachConn(conn *websocket.Conn) {
	c.mu.Lock()
	if c.conn == conn {
		c.conn = nil
		close(c.send)
		c.send = nil
	}
	c.mu.Unlock()
}

// Disconnect drops the websocket if present and invalidates any dial still
// in flight. The client may be reconnected later with Connect.
func (c *Client) Disconnect() {
	c.mu.Lock()
	conn := c.conn
	if conn != nil {
		c.conn = nil
		close(c.send)
		c.send = nil
	}
	c.dialing = false
	c.gen++
	c.mu.Unlock()
	if conn != nil {
		_ = conn.Close()
		logging.Infow("relay disconnected", logging.RoomFields(c.code, RoleStation)...)
	}
}

// BroadcastActivePeer publishes an active-peer change to the relay. An
// empty clientID announces that the active slot was cleared.
func (c *Client) BroadcastActivePeer(clientID string, timestampMs uint64) {
	c.publish(Message{Type: TypeActivePeer, ClientID: clientID, TimestampMs: timestampMs})
}

// PublishTranscription publishes a detected speech segment to the relay.
func (c *Client) PublishTranscription(clientID, segmentID string, timestampMs uint64) {
	c.publish(Message{Type: TypeTranscription, ClientID: clientID, SegmentID: segmentID, TimestampMs: timestampMs})
}

// publish enqueues the message for the writer goroutine. The enqueue is
// non-blocking under the mutex: publishes arrive from the monitor with its
// lock held, so a stalled relay socket must never propagate back as a
// blocked monitor operation. Messages are dropped while disconnected or
// when the queue is full.
func (c *Client) publish(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.send == nil {
		if c.metrics != nil {
			c.metrics.RelayPublishErrors.Inc()
		}
		logging.Debugw("relay publish dropped; not connected", "type", msg.Type)
		return
	}
	select {
	case c.send <- data:
		if c.metrics != nil {
			c.metrics.RelayPublishes.Inc()
		}
	default:
		if c.metrics != nil {
			c.metrics.RelayPublishErrors.Inc()
		}
		logging.Warnw("relay publish dropped; send queue full", "type", msg.Type)
	}
}

// writePump drains the send queue onto the websocket until the queue is
// closed by detach or a write fails. A write failure closes the socket,
// which makes the read pump exit and detach the connection.
func (c *Client) writePump(conn *websocket.Conn, send chan []byte) {
	for data := range send {
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			logging.Warnw("relay write failed", "err", err)
			_ = conn.Close()
			return
		}
	}
}

// readPump decodes inbound frames and dispatches them to the handlers until
// the connection errors or is closed.
func (c *Client) readPump(conn *websocket.Conn) {
	defer func() {
		c.detachConn(conn)
		_ = conn.Close()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			logging.Debugw("relay read pump exiting", "err", err)
			return
		}
		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			logging.Warnw("relay: undecodable frame", "err", err)
			continue
		}
		switch msg.Type {
		case TypeActivity:
			if c.inbound.OnActivity != nil {
				c.inbound.OnActivity(msg.ClientID, msg.TimestampMs, msg.Focused)
			}
		case TypeDisconnected:
			if c.inbound.OnDisconnected != nil {
				c.inbound.OnDisconnected(msg.ClientID)
			}
		default:
			logging.Debugw("relay: ignoring frame", "type", msg.Type)
		}
	}
}

// Connected reports whether the websocket is currently established.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// CreatePair registers a new pair room on the hub and returns its code.
func CreatePair(ctx context.Context, baseURL, hostname string) (string, error) {
	body, _ := json.Marshal(CreatePairRequest{Hostname: hostname})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		strings.TrimRight(baseURL, "/")+"/api/pair", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create pair request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	client := &http.Client{Timeout: httpTimeout}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("create pair: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("create pair: unexpected status %d", resp.StatusCode)
	}
	var out CreatePairResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("create pair: decode response: %w", err)
	}
	return out.Code, nil
}

// PairStatus reports whether a station has joined the room and the hostname
// it was registered with.
func PairStatus(ctx context.Context, baseURL, code string) (*PairStatusResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		strings.TrimRight(baseURL, "/")+"/api/pair/"+code, nil)
	if err != nil {
		return nil, fmt.Errorf("pair status request: %w", err)
	}
	client := &http.Client{Timeout: httpTimeout}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("pair status: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("pair status: room %s not found", code)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("pair status: unexpected status %d", resp.StatusCode)
	}
	var out PairStatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("pair status: decode response: %w", err)
	}
	return &out, nil
}
