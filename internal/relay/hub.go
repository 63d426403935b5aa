package relay

import (
	"encoding/json"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/voice-station-lab/internal/logging"
)

// Characters for pairing codes. Ambiguous glyphs (0/O, 1/I/L) are excluded
// so codes survive being read aloud.
const codeChars = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"

// roomExpiry is how long an unpaired room is kept before cleanup removes it.
const roomExpiry = 10 * time.Minute

// sendQueueSize bounds the per-connection outbound queue. Frames are
// dropped, not blocked on, when the peer cannot keep up.
const sendQueueSize = 64

// roomConn is one websocket attached to a room. The send channel is closed
// only under the hub mutex, after the connection has been detached, so
// forward never races a close.
type roomConn struct {
	id   string
	conn *websocket.Conn
	send chan []byte
}

// pairRoom couples at most one connection per role under a pairing code.
type pairRoom struct {
	code      string
	hostname  string
	client    *roomConn
	station   *roomConn
	createdAt time.Time
}

// Hub owns the pair rooms and the HTTP surface that creates and joins them.
// Text frames received from one role are forwarded verbatim to the other.
type Hub struct {
	mu       sync.Mutex
	rooms    map[string]*pairRoom
	upgrader websocket.Upgrader
}

// NewHub creates an empty relay hub.
func NewHub() *Hub {
	return &Hub{
		rooms: make(map[string]*pairRoom),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Pairing codes are the access control; origins are not.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// Routes returns a mux with the pairing API and the websocket endpoint.
func (h *Hub) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/pair", h.handleCreatePair)
	mux.HandleFunc("GET /api/pair/{code}", h.handlePairStatus)
	mux.HandleFunc("GET /ws", h.handleWS)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return mux
}

// generatePairingCode returns an 8-char code formatted "XXXX-YYYY".
func generatePairingCode() string {
	b := make([]byte, 8)
	for i := range b {
		b[i] = codeChars[rand.Intn(len(codeChars))]
	}
	return string(b[:4]) + "-" + string(b[4:])
}

func (h *Hub) handleCreatePair(w http.ResponseWriter, r *http.Request) {
	var req CreatePairRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	code := generatePairingCode()
	h.mu.Lock()
	h.rooms[code] = &pairRoom{
		code:      code,
		hostname:  req.Hostname,
		createdAt: time.Now(),
	}
	h.mu.Unlock()

	logging.Infow("pair room created", logging.RoomFields(code, "")...)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(CreatePairResponse{Code: code})
}

func (h *Hub) handlePairStatus(w http.ResponseWriter, r *http.Request) {
	code := r.PathValue("code")
	h.mu.Lock()
	room, ok := h.rooms[code]
	var resp PairStatusResponse
	if ok {
		resp = PairStatusResponse{Paired: room.station != nil, Hostname: room.hostname}
	}
	h.mu.Unlock()

	if !ok {
		http.Error(w, `{"error":"room not found"}`, http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func (h *Hub) handleWS(w http.ResponseWriter, r *http.Request) {
	role := r.URL.Query().Get("role")
	code := r.URL.Query().Get("code")
	if role != RoleClient && role != RoleStation {
		http.Error(w, "unknown role", http.StatusBadRequest)
		return
	}

	h.mu.Lock()
	_, ok := h.rooms[code]
	h.mu.Unlock()
	if !ok {
		http.Error(w, "room not found", http.StatusNotFound)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Warnw("websocket upgrade failed", "err", err)
		return
	}

	rc := &roomConn{id: uuid.NewString(), conn: conn, send: make(chan []byte, sendQueueSize)}
	if !h.attach(code, role, rc) {
		_ = conn.Close()
		return
	}
	logging.Infow("relay connected", append(logging.RoomFields(code, role), "conn.id", rc.id)...)
	h.serveConn(code, role, rc)
}

// attach registers rc as the room's connection for role, replacing any
// previous connection for that role.
func (h *Hub) attach(code, role string, rc *roomConn) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	room, ok := h.rooms[code]
	if !ok {
		return false
	}
	var old *roomConn
	if role == RoleClient {
		old = room.client
		room.client = rc
	} else {
		old = room.station
		room.station = rc
	}
	if old != nil {
		close(old.send)
		_ = old.conn.Close()
	}
	return true
}

// detach removes rc from the room if it is still the registered connection
// for role, and closes its send queue. The room itself stays registered
// even when both slots are empty: the station drops its connection on
// every dictation disable and rejoins with the same code on the next
// enable, so rooms are only reclaimed by CleanupExpired.
func (h *Hub) detach(code, role string, rc *roomConn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	room, ok := h.rooms[code]
	if !ok {
		return
	}
	if role == RoleClient && room.client == rc {
		room.client = nil
	} else if role == RoleStation && room.station == rc {
		room.station = nil
	} else {
		return
	}
	close(rc.send)
}

// forward queues data on the opposite role's connection. Frames are dropped
// when the other side is absent or its queue is full.
func (h *Hub) forward(code, fromRole string, data []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	room, ok := h.rooms[code]
	if !ok {
		return
	}
	var other *roomConn
	if fromRole == RoleClient {
		other = room.station
	} else {
		other = room.client
	}
	if other == nil {
		return
	}
	select {
	case other.send <- data:
	default:
		logging.Warnw("dropping relay frame; peer queue full", logging.RoomFields(code, fromRole)...)
	}
}

func (h *Hub) serveConn(code, role string, rc *roomConn) {
	// Writer: drain the send queue until detach closes it.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for msg := range rc.send {
			if err := rc.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				logging.Debugw("relay write failed", append(logging.RoomFields(code, role), "err", err)...)
				return
			}
		}
	}()

	for {
		msgType, data, err := rc.conn.ReadMessage()
		if err != nil {
			break
		}
		if msgType != websocket.TextMessage {
			continue
		}
		h.forward(code, role, data)
	}

	h.detach(code, role, rc)
	_ = rc.conn.Close()
	<-done
	logging.Infow("relay disconnected", append(logging.RoomFields(code, role), "conn.id", rc.id)...)
}

// CleanupExpired removes rooms older than roomExpiry that have no station
// attached. Rooms with an active station are kept regardless of age. This
// sweep is the only place rooms are removed; a room both sides have left
// keeps its code valid until it expires, so either side can reconnect
// without re-pairing.
func (h *Hub) CleanupExpired() int {
	now := time.Now()
	h.mu.Lock()
	defer h.mu.Unlock()
	removed := 0
	for code, room := range h.rooms {
		if room.station != nil {
			continue
		}
		if now.Sub(room.createdAt) < roomExpiry {
			continue
		}
		if room.client != nil {
			close(room.client.send)
			_ = room.client.conn.Close()
		}
		delete(h.rooms, code)
		removed++
	}
	if removed > 0 {
		logging.Infow("cleaned up expired pair rooms", "count", removed)
	}
	return removed
}

// RoomCount returns the number of live pair rooms.
func (h *Hub) RoomCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.rooms)
}
