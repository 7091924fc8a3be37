// Package main provides the long-running backtest server:
// - Ingestion: completion events from a WebSocket feed
// - Warm start: the configured request set re-run over stored bars per event
// - HTTP: /health, /metrics, /status, /verify
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"
)

const forceExitAfter = 30 * time.Second

func main() {
	envFile := flag.String("env-file", ".env", "Optional KEY=VALUE file applied before reading flags from the environment")
	configPath := flag.String("config", "", "Path to YAML configuration file (default: $BACKTEST_CONFIG)")
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lshortfile)

	if n, err := loadEnvFile(*envFile); err != nil {
		logger.Fatalf("Failed to read %s: %v", *envFile, err)
	} else if n > 0 {
		logger.Printf("Loaded %d variables from %s", n, *envFile)
	}
	if *configPath == "" {
		*configPath = os.Getenv("BACKTEST_CONFIG")
	}

	server, cleanup, err := NewServer(context.Background(), *configPath)
	if err != nil {
		logger.Fatalf("Failed to create server: %v", err)
	}
	defer cleanup()

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	finished := make(chan struct{})
	go watchSignals(logger, stop, finished)

	err = server.Run(ctx)
	close(finished)

	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Printf("Server error: %v", err)
		cleanup()
		os.Exit(1)
	}
	logger.Println("Shutdown complete")
}

// watchSignals cancels on the first SIGINT/SIGTERM and exits the process on a
// second one, or when shutdown outlasts forceExitAfter.
func watchSignals(logger *log.Logger, stop context.CancelFunc, finished <-chan struct{}) {
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case sig := <-sigCh:
		logger.Printf("Received %v, shutting down", sig)
		stop()
	case <-finished:
		return
	}

	timer := time.NewTimer(forceExitAfter)
	defer timer.Stop()
	select {
	case sig := <-sigCh:
		logger.Printf("Received second %v, exiting now", sig)
		os.Exit(1)
	case <-timer.C:
		logger.Printf("Shutdown still running after %s, exiting", forceExitAfter)
		os.Exit(1)
	case <-finished:
	}
}
