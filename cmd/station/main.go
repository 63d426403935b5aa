package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/voice-station-lab/internal/audio"
	"github.com/voice-station-lab/internal/config"
	"github.com/voice-station-lab/internal/logging"
	"github.com/voice-station-lab/internal/metrics"
	"github.com/voice-station-lab/internal/monitor"
	"github.com/voice-station-lab/internal/relay"
)

const defaultConfigPath = "configs/station.yaml"

func nowMs() uint64 {
	return uint64(time.Now().UnixMilli())
}

func main() {
	configPath := flag.String("config", defaultConfigPath, "path to configuration file")
	flag.Parse()

	// .env is optional; real environments set variables directly.
	_ = godotenv.Load()
	logging.Init()
	defer func() { _ = logging.Sync() }()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logging.FatalExitf("failed to load configuration", "path", *configPath, "err", err)
	}
	logging.Infow("station starting",
		"config_path", *configPath,
		"hostname", cfg.Station.Hostname,
		"relay_enabled", cfg.Relay.Enabled,
		"ingest_enabled", cfg.Ingest.Enabled,
	)

	var appMetrics *metrics.Metrics
	if cfg.Metrics.Enabled {
		appMetrics = metrics.New()
	}

	mon := monitor.New(monitor.Config{
		SampleRate:          cfg.Audio.SampleRate,
		FrameDurationMs:     cfg.Audio.FrameDurationMs,
		SilenceDurationMs:   cfg.Audio.SilenceDurationMs,
		InactivityTimeoutMs: cfg.Audio.InactivityTimeoutMs,
		SpeechOnsetRMS:      cfg.Audio.SpeechOnsetRMS,
		SpeechOffsetRMS:     cfg.Audio.SpeechOffsetRMS,
	}, monitor.Callbacks{
		OnLog: func(level monitor.LogLevel, msg string) {
			switch level {
			case monitor.LevelError:
				logging.Errorw(msg)
			case monitor.LevelWarn:
				logging.Warnw(msg)
			case monitor.LevelInfo:
				logging.Infow(msg)
			default:
				logging.Debugw(msg)
			}
		},
		OnActivePeerChanged: func(clientID string) {
			if clientID == "" {
				logging.Infow("active client cleared")
				return
			}
			logging.Infow("active client changed", logging.ClientFields(clientID)...)
		},
		OnDictationState: func(enabled bool) {
			logging.Infow("dictation state changed", "enabled", enabled)
		},
		OnTranscription: func(clientID, segmentID string, timestampMs uint64) {
			logging.Infow("speech segment detected",
				append(logging.ClientFields(clientID), logging.SegmentFields(segmentID, timestampMs)...)...)
		},
	}, nil, appMetrics)
	defer mon.Close()

	// Relay: pair (or reuse a configured code) and late-bind the signaling
	// adapter. Inbound activity and disconnects from peer clients drive the
	// monitor from the relay's read pump.
	var relayClient *relay.Client
	if cfg.Relay.Enabled {
		code := cfg.Relay.Code
		if code == "" {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			code, err = relay.CreatePair(ctx, cfg.Relay.URL, cfg.Station.Hostname)
			cancel()
			if err != nil {
				logging.FatalExitf("failed to create pair room", "err", err)
			}
			logging.Infow("pair room created; enter this code on your clients", logging.RoomFields(code, "")...)
		}
		relayClient = relay.NewClient(cfg.Relay.URL, code, relay.Inbound{
			OnActivity:     mon.ReportActivity,
			OnDisconnected: mon.Disconnect,
		}, appMetrics)
		defer relayClient.Disconnect()
		mon.SetSignalingAdapter(relayClient)
	}

	// Audio ingest: capture audio arrives as UDP datagrams and is fed to
	// the monitor at its configured sample rate.
	if cfg.Ingest.Enabled {
		ingest, err := audio.NewUDPIngest(audio.IngestConfig{
			BindAddress: cfg.Ingest.BindAddress,
			Port:        cfg.Ingest.Port,
			Codec:       audio.Codec(cfg.Ingest.Codec),
			SampleRate:  int(mon.Config().SampleRate),
		}, mon.Feed, appMetrics)
		if err != nil {
			logging.FatalExitf("failed to create audio ingest", "err", err)
		}
		if err := ingest.Start(); err != nil {
			logging.FatalExitf("failed to start audio ingest", "err", err)
		}
		defer ingest.Stop()
	}

	var metricsSrv *http.Server
	if cfg.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsSrv = &http.Server{
			Addr:    fmt.Sprintf("%s:%d", cfg.Metrics.Address, cfg.Metrics.Port),
			Handler: mux,
		}
		go func() {
			logging.Infow("metrics server listening", "addr", metricsSrv.Addr)
			if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logging.Errorw("metrics server failed", "err", err)
			}
		}()
	}

	if cfg.Station.AutoEnableDictation {
		mon.SetDictationEnabled(true)
	}

	ticker := time.NewTicker(time.Duration(cfg.Station.TickIntervalMs) * time.Millisecond)
	defer ticker.Stop()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	logging.Infow("station running", "tick_interval_ms", cfg.Station.TickIntervalMs)
	for {
		select {
		case <-ticker.C:
			mon.Tick(nowMs())
		case sig := <-sigCh:
			logging.Infow("shutting down", "signal", sig.String())
			mon.SetDictationEnabled(false)
			if metricsSrv != nil {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				_ = metricsSrv.Shutdown(ctx)
				cancel()
			}
			return
		}
	}
}
