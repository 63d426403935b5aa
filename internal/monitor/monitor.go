// Package monitor implements the station's real-time core: a single
// lock-guarded state machine that tracks client liveness and focus,
// arbitrates which client is the active dictation target, segments raw PCM
// audio into speech utterances, and publishes both kinds of events to a
// callback set and an optional external signaling channel.
//
// The monitor spawns no goroutines of its own; concurrency comes from its
// callers (an event layer, an audio-capture path and a timer), which may
// invoke it from different goroutines.
package monitor

import (
	"fmt"
	"sync"

	"github.com/voice-station-lab/internal/metrics"
)

// Defaults applied to zero-valued Config fields at construction time.
const (
	DefaultSampleRate        = 16000
	DefaultFrameDurationMs   = 20
	DefaultSilenceDurationMs = 500
	DefaultInactivityMs      = 10000
	DefaultSpeechOnsetRMS    = 0.0008
	DefaultSpeechOffsetRMS   = 0.0005
)

// Config holds the monitor's tuning parameters. Zero-valued fields are
// replaced by the documented defaults when the monitor is created; the
// config is immutable afterwards.
type Config struct {
	SampleRate          uint32
	FrameDurationMs     uint32
	SilenceDurationMs   uint32
	InactivityTimeoutMs uint64
	SpeechOnsetRMS      float64
	SpeechOffsetRMS     float64
}

// withDefaults returns a copy of the config with zero fields normalized.
func (c Config) withDefaults() Config {
	if c.SampleRate == 0 {
		c.SampleRate = DefaultSampleRate
	}
	if c.FrameDurationMs == 0 {
		c.FrameDurationMs = DefaultFrameDurationMs
	}
	if c.SilenceDurationMs == 0 {
		c.SilenceDurationMs = DefaultSilenceDurationMs
	}
	if c.InactivityTimeoutMs == 0 {
		c.InactivityTimeoutMs = DefaultInactivityMs
	}
	if c.SpeechOnsetRMS == 0 {
		c.SpeechOnsetRMS = DefaultSpeechOnsetRMS
	}
	if c.SpeechOffsetRMS == 0 {
		c.SpeechOffsetRMS = DefaultSpeechOffsetRMS
	}
	return c
}

// FrameSamples returns the number of samples in one VAD frame.
func (c Config) FrameSamples() int {
	return int(c.SampleRate * c.FrameDurationMs / 1000)
}

// clientState is the registry record for one client.
type clientState struct {
	lastActivityMs uint64
	focused        bool
}

// Monitor is the station core. All public operations acquire one exclusive
// lock for their full duration; callbacks and adapter calls happen while it
// is held (see Callbacks and SignalingAdapter for the reentrancy contract).
type Monitor struct {
	mu sync.Mutex

	cfg       Config
	cb        Callbacks
	signaling SignalingAdapter
	metrics   *metrics.Metrics

	clients      map[string]*clientState
	activeClient string

	dictationEnabled   bool
	signalingConnected bool

	vad         *energyVAD
	frameBuf    []int16
	audioTimeMs uint64
	lastTickMs  uint64

	segmentCounter uint64
}

// New creates a monitor with the given config, callback set and optional
// signaling adapter. Both adapter and m may be nil; nil members of cb are
// skipped. Zero-valued config fields are replaced by defaults.
func New(cfg Config, cb Callbacks, adapter SignalingAdapter, m *metrics.Metrics) *Monitor {
	cfg = cfg.withDefaults()
	return &Monitor{
		cfg:       cfg,
		cb:        cb,
		signaling: adapter,
		metrics:   m,
		clients:   make(map[string]*clientState),
		vad:       newEnergyVAD(cfg.SpeechOnsetRMS, cfg.SpeechOffsetRMS, cfg.SilenceDurationMs, cfg.FrameDurationMs),
		frameBuf:  make([]int16, 0, cfg.FrameSamples()),
	}
}

// Config returns the normalized configuration the monitor runs with.
func (m *Monitor) Config() Config {
	return m.cfg
}

// Close tears down all state. The signaling channel is disconnected if it
// is still marked connected. Nothing is persisted.
func (m *Monitor) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ensureSignalingDisconnectedLocked()
	m.clients = make(map[string]*clientState)
	m.activeClient = ""
	m.frameBuf = nil
	m.dictationEnabled = false
}

// SetSignalingAdapter replaces the signaling adapter. Passing nil removes
// it. The connected flag is deliberately left untouched: the adapter is a
// late-binding seam and swapping it has no side effects on the channel
// lifecycle until the next enable/disable or tick.
func (m *Monitor) SetSignalingAdapter(adapter SignalingAdapter) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.signaling = adapter
}

// SetDictationEnabled toggles the dictation pipeline. Enabling connects the
// signaling channel and resets the VAD so utterance detection starts clean;
// disabling disconnects the channel.
//
// Disable/enable is a pause/resume of frame assembly: the partially filled
// frame buffer survives both transitions, so samples buffered before a
// disable are prepended to audio fed after the next enable.
func (m *Monitor) SetDictationEnabled(enabled bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.dictationEnabled == enabled {
		return
	}
	m.dictationEnabled = enabled
	if m.cb.OnDictationState != nil {
		m.cb.OnDictationState(enabled)
	}
	if enabled {
		m.ensureSignalingConnectedLocked()
		m.vad.reset()
	} else {
		m.ensureSignalingDisconnectedLocked()
	}
}

// ReportActivity upserts the registry record for clientID and re-evaluates
// which client should be active. An empty clientID is a no-op.
//
// The switch rules are evaluated as an if/else-if chain and apply only when
// clientID is not already active:
//  1. no client is active
//  2. timestampMs is strictly newer than the active client's last activity
//  3. the active client is unfocused and clientID is focused
//
// Rule 3 means focus overrides staleness: a focused client with an older
// timestamp still preempts an unfocused, more recently active one.
func (m *Monitor) ReportActivity(clientID string, timestampMs uint64, focused bool) {
	if clientID == "" {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	state, ok := m.clients[clientID]
	if !ok {
		state = &clientState{}
		m.clients[clientID] = state
	}
	state.lastActivityMs = timestampMs
	state.focused = focused
	if m.metrics != nil {
		m.metrics.ActivityReports.Inc()
		m.metrics.ClientsConnected.Set(float64(len(m.clients)))
	}

	shouldSwitch := false
	if m.activeClient == "" {
		shouldSwitch = true
	} else if m.activeClient != clientID {
		active := m.clients[m.activeClient]
		if timestampMs > active.lastActivityMs {
			shouldSwitch = true
		} else if !active.focused && focused {
			shouldSwitch = true
		}
	}

	if shouldSwitch {
		m.activeClient = clientID
		m.notifyActiveChangeLocked(clientID, timestampMs)
	}
}

// Disconnect removes the client from the registry. Removing the active
// client clears the active slot and fires both notifications with an empty
// id, timestamped with the current audio clock. Unknown ids are a no-op.
func (m *Monitor) Disconnect(clientID string) {
	if clientID == "" {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.clients, clientID)
	if m.metrics != nil {
		m.metrics.ClientsConnected.Set(float64(len(m.clients)))
	}
	if m.activeClient == clientID {
		m.activeClient = ""
		m.notifyActiveChangeLocked("", m.audioTimeMs)
	}
}

// Feed ingests a chunk of signed 16-bit PCM at the configured sample rate.
// Chunks may be any size; the monitor assembles them into exact frames and
// runs the VAD once per completed frame. While dictation is disabled or no
// client is active the chunk is dropped without buffering.
//
// Each detected speech end allocates the next segment identifier and
// publishes it to both the transcription callback and the signaling
// adapter, addressed to the currently active client.
func (m *Monitor) Feed(samples []int16) {
	if len(samples) == 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.dictationEnabled || m.activeClient == "" {
		if m.metrics != nil {
			m.metrics.SamplesDropped.Add(float64(len(samples)))
		}
		return
	}
	m.ensureSignalingConnectedLocked()

	frameSamples := m.cfg.FrameSamples()
	processed := 0
	for processed < len(samples) {
		take := frameSamples - len(m.frameBuf)
		if remaining := len(samples) - processed; take > remaining {
			take = remaining
		}
		m.frameBuf = append(m.frameBuf, samples[processed:processed+take]...)
		processed += take

		if len(m.frameBuf) < frameSamples {
			break
		}

		started, ended := m.vad.processFrame(m.frameBuf)
		m.audioTimeMs += uint64(m.cfg.FrameDurationMs)
		if m.metrics != nil {
			m.metrics.FramesProcessed.Inc()
		}

		if started {
			m.logLocked(LevelDebug, "vad: speech start")
		}
		if ended {
			m.segmentCounter++
			segmentID := fmt.Sprintf("speech_segment_%d", m.segmentCounter)
			m.logLocked(LevelDebug, "vad: speech end "+segmentID)
			if m.metrics != nil {
				m.metrics.SpeechSegments.Inc()
			}
			if m.signaling != nil {
				m.signaling.PublishTranscription(m.activeClient, segmentID, m.audioTimeMs)
			}
			if m.cb.OnTranscription != nil {
				m.cb.OnTranscription(m.activeClient, segmentID, m.audioTimeMs)
			}
		}

		m.frameBuf = m.frameBuf[:0]
	}
}

// Tick runs the inactivity sweep: clients whose last activity is older than
// the configured timeout are evicted, and if one of them was active the
// slot is cleared with notifications timestamped nowMs. It also disconnects
// the signaling channel if dictation is off but the channel flag drifted to
// connected.
func (m *Monitor) Tick(nowMs uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastTickMs = nowMs

	// Collect victims first; deleting while ranging is fine in Go but the
	// two-phase shape keeps eviction ordering deterministic for callbacks.
	var expired []string
	for id, state := range m.clients {
		if nowMs > state.lastActivityMs && nowMs-state.lastActivityMs > m.cfg.InactivityTimeoutMs {
			expired = append(expired, id)
		}
	}

	for _, id := range expired {
		delete(m.clients, id)
		m.logLocked(LevelInfo, "evicted inactive client "+id)
		if m.metrics != nil {
			m.metrics.ClientsEvicted.Inc()
		}
		if m.activeClient == id {
			m.activeClient = ""
			m.notifyActiveChangeLocked("", nowMs)
		}
	}
	if m.metrics != nil && len(expired) > 0 {
		m.metrics.ClientsConnected.Set(float64(len(m.clients)))
	}

	// Safety net against drift between the dictation flag and the channel.
	if !m.dictationEnabled && m.signalingConnected {
		m.ensureSignalingDisconnectedLocked()
	}
}

// ActiveClient returns the current active client id, or "" if none.
func (m *Monitor) ActiveClient() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.activeClient
}

// ClientCount returns the number of clients tracked by the registry.
func (m *Monitor) ClientCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.clients)
}

func (m *Monitor) notifyActiveChangeLocked(clientID string, timestampMs uint64) {
	if m.metrics != nil {
		m.metrics.ActiveSwitches.Inc()
	}
	if m.cb.OnActivePeerChanged != nil {
		m.cb.OnActivePeerChanged(clientID)
	}
	if m.signaling != nil {
		m.signaling.BroadcastActivePeer(clientID, timestampMs)
	}
}

func (m *Monitor) ensureSignalingConnectedLocked() {
	if !m.dictationEnabled {
		return
	}
	if !m.signalingConnected && m.signaling != nil {
		m.signaling.Connect()
		m.signalingConnected = true
	}
}

func (m *Monitor) ensureSignalingDisconnectedLocked() {
	if m.signalingConnected && m.signaling != nil {
		m.signaling.Disconnect()
	}
	m.signalingConnected = false
}

func (m *Monitor) logLocked(level LogLevel, msg string) {
	if m.cb.OnLog != nil {
		m.cb.OnLog(level, msg)
	}
}
