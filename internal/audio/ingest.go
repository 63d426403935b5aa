// Package audio receives capture audio over localhost UDP and feeds it to
// the monitor as int16 PCM at the monitor's sample rate. The capture side
// (an RTC engine wrapper or a recorder process) sends one audio packet per
// datagram, either raw s16le PCM or a single opus frame.
package audio

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"sync"

	"github.com/hraban/opus"
	soxr "github.com/zaf/resample"

	"github.com/voice-station-lab/internal/logging"
	"github.com/voice-station-lab/internal/metrics"
)

// Codec identifies the payload format of ingest datagrams.
type Codec string

const (
	CodecPCM16 Codec = "pcm16"
	CodecOpus  Codec = "opus"
)

// opusRate is the decoder rate; opus payloads are decoded at 48kHz mono and
// resampled down to the configured output rate.
const opusRate = 48000

// maxOpusFrameSamples is the largest opus frame (120ms at 48kHz).
const maxOpusFrameSamples = 5760

// FeedFunc consumes decoded samples at the configured output rate.
type FeedFunc func(samples []int16)

// IngestConfig configures the UDP listener.
type IngestConfig struct {
	BindAddress string
	Port        int
	Codec       Codec
	// SampleRate is the output rate the feed expects.
	SampleRate int
}

// UDPIngest listens for audio datagrams and forwards decoded samples to a
// feed function.
type UDPIngest struct {
	cfg     IngestConfig
	feed    FeedFunc
	metrics *metrics.Metrics

	conn         *net.UDPConn
	decoder      *opus.Decoder
	resampler    *soxr.Resampler
	resamplerBuf *bytes.Buffer
	decodeBuf    []int16

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewUDPIngest creates an ingest for the given codec. For opus, a decoder
// and (when the output rate differs from 48kHz) a resampler are set up
// front so Start cannot fail on codec state.
func NewUDPIngest(cfg IngestConfig, feed FeedFunc, m *metrics.Metrics) (*UDPIngest, error) {
	if feed == nil {
		return nil, fmt.Errorf("ingest: feed function is required")
	}
	switch cfg.Codec {
	case CodecPCM16, CodecOpus:
	default:
		return nil, fmt.Errorf("ingest: unknown codec %q", cfg.Codec)
	}

	ctx, cancel := context.WithCancel(context.Background())
	in := &UDPIngest{
		cfg:     cfg,
		feed:    feed,
		metrics: m,
		ctx:     ctx,
		cancel:  cancel,
	}

	if cfg.Codec == CodecOpus {
		decoder, err := opus.NewDecoder(opusRate, 1)
		if err != nil {
			cancel()
			return nil, fmt.Errorf("ingest: create opus decoder: %w", err)
		}
		in.decoder = decoder
		in.decodeBuf = make([]int16, maxOpusFrameSamples)

		if cfg.SampleRate != opusRate {
			// Store the buffer so the resampler writes to the same buffer
			// we read decoded output from.
			buf := &bytes.Buffer{}
			resampler, err := soxr.New(buf, float64(opusRate), float64(cfg.SampleRate), 1, soxr.I16, soxr.HighQ)
			if err != nil {
				cancel()
				return nil, fmt.Errorf("ingest: create resampler: %w", err)
			}
			in.resampler = resampler
			in.resamplerBuf = buf
		}
	}

	return in, nil
}

// Start binds the UDP socket and begins receiving datagrams.
func (in *UDPIngest) Start() error {
	addr, err := net.ResolveUDPAddr("udp", fmt.Sprintf("%s:%d", in.cfg.BindAddress, in.cfg.Port))
	if err != nil {
		return fmt.Errorf("ingest: resolve address: %w", err)
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return fmt.Errorf("ingest: listen: %w", err)
	}
	in.conn = conn

	logging.Infow("audio ingest listening", "addr", conn.LocalAddr().String(), "codec", string(in.cfg.Codec))
	in.wg.Add(1)
	go in.receiveLoop()
	return nil
}

// Addr returns the bound UDP address, or nil before Start.
func (in *UDPIngest) Addr() net.Addr {
	if in.conn == nil {
		return nil
	}
	return in.conn.LocalAddr()
}

// Stop closes the socket and waits for the receive loop to exit.
func (in *UDPIngest) Stop() {
	in.cancel()
	if in.conn != nil {
		_ = in.conn.Close()
	}
	in.wg.Wait()
	if in.resampler != nil {
		_ = in.resampler.Close()
	}
}

func (in *UDPIngest) receiveLoop() {
	defer in.wg.Done()
	buf := make([]byte, 4096)
	for {
		n, _, err := in.conn.ReadFromUDP(buf)
		if err != nil {
			if in.ctx.Err() == nil {
				logging.Warnw("audio ingest read failed", "err", err)
			}
			return
		}
		if n == 0 {
			continue
		}
		if in.metrics != nil {
			in.metrics.IngestPackets.Inc()
		}
		in.handlePacket(buf[:n])
	}
}

func (in *UDPIngest) handlePacket(data []byte) {
	switch in.cfg.Codec {
	case CodecPCM16:
		if len(data) < 2 {
			return
		}
		in.feed(samplesFromPCMBytes(data))
	case CodecOpus:
		n, err := in.decoder.Decode(data, in.decodeBuf)
		if err != nil {
			if in.metrics != nil {
				in.metrics.IngestDecodeErrors.Inc()
			}
			logging.Warnw("opus decode error", "err", err, "bytes", len(data))
			return
		}
		if n == 0 {
			return
		}
		decoded := in.decodeBuf[:n]
		if in.resampler == nil {
			out := make([]int16, n)
			copy(out, decoded)
			in.feed(out)
			return
		}
		if _, err := in.resampler.Write(samplesToPCMBytes(decoded)); err != nil {
			if in.metrics != nil {
				in.metrics.IngestDecodeErrors.Inc()
			}
			logging.Warnw("resample error", "err", err)
			return
		}
		if in.resamplerBuf.Len() >= 2 {
			out := samplesFromPCMBytes(in.resamplerBuf.Bytes())
			in.resamplerBuf.Reset()
			if len(out) > 0 {
				in.feed(out)
			}
		}
	}
}
