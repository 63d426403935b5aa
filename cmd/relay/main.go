package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/voice-station-lab/internal/logging"
	"github.com/voice-station-lab/internal/relay"
)

const cleanupInterval = time.Minute

func main() {
	addr := flag.String("addr", ":8080", "listen address")
	flag.Parse()

	_ = godotenv.Load()
	logging.Init()
	defer func() { _ = logging.Sync() }()

	hub := relay.NewHub()
	srv := &http.Server{
		Addr:    *addr,
		Handler: hub.Routes(),
	}

	// Periodically drop unpaired rooms nobody claimed.
	cleanupDone := make(chan struct{})
	go func() {
		ticker := time.NewTicker(cleanupInterval)
		defer ticker.Stop()
		for {
			select {
			case <-cleanupDone:
				return
			case <-ticker.C:
				hub.CleanupExpired()
			}
		}
	}()

	go func() {
		logging.Infow("relay hub listening", "addr", *addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.FatalExitf("relay hub failed", "err", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logging.Infow("shutting down", "signal", sig.String())

	close(cleanupDone)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctx)
}
