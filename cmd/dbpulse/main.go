package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"dbpulse/internal/config"
	"dbpulse/internal/events"
	"dbpulse/internal/logger"
	"dbpulse/internal/optimizer"
	"dbpulse/internal/types"
	"dbpulse/internal/version"

	"go.uber.org/zap"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", "", "Path to config file")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	// Show version if requested
	if *showVersion {
		info := version.GetInfo()
		fmt.Println(info.String())
		os.Exit(0)
	}

	// Load configuration
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log, err := logger.New(&cfg.Log)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = log.Sync()
	}()

	opt := optimizer.New(cfg, log)

	// Surface key events in the log
	opt.Subscribe(events.SlowQuery, func(ev events.Event) {
		if rec, ok := ev.Payload.(types.SlowQueryRecord); ok {
			log.Warn("Slow query",
				zap.Duration("duration", rec.Duration),
				zap.String("query", rec.Query))
		}
	})
	opt.Subscribe(events.PoolError, func(ev events.Event) {
		log.Error("Pool error", zap.Any("error", ev.Payload))
	})
	opt.Subscribe(events.IndexAnalysis, func(ev events.Event) {
		if recs, ok := ev.Payload.([]types.IndexRecommendation); ok {
			for _, rec := range recs {
				log.Info("Index recommendation",
					zap.String("kind", string(rec.Kind)),
					zap.String("table", rec.Table),
					zap.String("rationale", rec.Rationale))
			}
		}
	})

	initCtx, initCancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := opt.Initialize(initCtx); err != nil {
		initCancel()
		log.Fatal("Failed to initialize optimizer", zap.Error(err))
	}
	initCancel()

	// Handle signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Wait for signal
	sig := <-sigChan
	log.Info("Received signal", zap.String("signal", sig.String()))

	// Graceful shutdown
	log.Info("Starting graceful shutdown")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := opt.Close(shutdownCtx); err != nil {
		log.Error("Shutdown error", zap.Error(err))
	}

	log.Info("Shutdown complete")
}
