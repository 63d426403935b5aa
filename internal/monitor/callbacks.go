package monitor

// LogLevel classifies messages emitted through the OnLog callback.
type LogLevel int

const (
	LevelTrace LogLevel = iota
	LevelDebug
	LevelInfo
	LevelWarn
	LevelError
)

// String returns the lowercase name of the level.
func (l LogLevel) String() string {
	switch l {
	case LevelTrace:
		return "trace"
	case LevelDebug:
		return "debug"
	case LevelInfo:
		return "info"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	default:
		return "unknown"
	}
}

// Callbacks is the capability set the owner supplies to observe the monitor.
// Every member is optional; a nil member is skipped, not an error.
//
// Callbacks are invoked synchronously while the monitor's lock is held, so
// they observe exactly the state transition that triggered them and are
// strictly ordered with respect to other operations. They must be fast and
// must never call back into the monitor from the same call stack; a
// reentrant call would deadlock.
type Callbacks struct {
	// OnLog receives diagnostic messages from the monitor.
	OnLog func(level LogLevel, msg string)
	// OnActivePeerChanged fires when the active client changes. The id is
	// empty when the active slot was cleared.
	OnActivePeerChanged func(clientID string)
	// OnDictationState fires on every dictation enable/disable transition.
	OnDictationState func(enabled bool)
	// OnTranscription fires once per detected speech segment with the
	// active client, the segment identifier and the audio-clock timestamp.
	OnTranscription func(clientID, segmentID string, timestampMs uint64)
}

// SignalingAdapter is the pluggable external channel the monitor publishes
// to. A nil adapter is a valid no-op implementation.
//
// Adapter methods are called while the monitor's lock is held and therefore
// must not block on I/O or re-enter the monitor synchronously; an
// implementation that performs network work should hand it off to its own
// goroutine (see relay.Client).
type SignalingAdapter interface {
	// Connect brings the external channel up. Invoked only while dictation
	// is enabled.
	Connect()
	// Disconnect tears the external channel down.
	Disconnect()
	// BroadcastActivePeer announces the new active client, or an empty id
	// when the slot was cleared, with the timestamp that triggered it.
	BroadcastActivePeer(clientID string, timestampMs uint64)
	// PublishTranscription announces a detected speech segment for the
	// active client.
	PublishTranscription(clientID, segmentID string, timestampMs uint64)
}
