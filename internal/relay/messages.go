// Package relay implements the pairing and websocket relay channel between
// the station and its peer clients: a small hub that forwards text frames
// between the two roles of a pair room, plus the station-side client that
// plugs into the monitor as its signaling adapter.
package relay

// Roles a websocket connection may claim when joining a pair room.
const (
	RoleClient  = "client"
	RoleStation = "station"
)

// Message types carried over the relay, one JSON object per text frame.
const (
	// Station -> clients
	TypeActivePeer    = "active_peer"
	TypeTranscription = "transcription"
	// Clients -> station
	TypeActivity     = "activity"
	TypeDisconnected = "disconnected"
)

// Message is the single wire envelope used in both directions. Fields not
// relevant to a type are omitted.
type Message struct {
	Type        string `json:"type"`
	ClientID    string `json:"client_id,omitempty"`
	SegmentID   string `json:"segment_id,omitempty"`
	TimestampMs uint64 `json:"timestamp_ms,omitempty"`
	Focused     bool   `json:"focused,omitempty"`
}

// CreatePairRequest is the body of POST /api/pair.
type CreatePairRequest struct {
	Hostname string `json:"hostname"`
}

// CreatePairResponse is the body returned by POST /api/pair.
type CreatePairResponse struct {
	Code string `json:"code"`
}

// PairStatusResponse is the body returned by GET /api/pair/{code}.
type PairStatusResponse struct {
	Paired   bool   `json:"paired"`
	Hostname string `json:"hostname"`
}
