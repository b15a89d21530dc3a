package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	sentry "github.com/getsentry/sentry-go"

	"tgharvester/internal/config"
	"tgharvester/internal/orchestrator"
	"tgharvester/internal/report"
	"tgharvester/internal/retry"
)

// initSentry mirrors the teacher's main.go initSentry: skip quietly when no
// DSN is configured, otherwise enable tracing and tag the environment.
func initSentry(cfg *config.Config) error {
	if cfg.SentryDSN == "" {
		log.Println("Sentry DSN not provided, skipping initialization.")
		return nil
	}
	err := sentry.Init(sentry.ClientOptions{
		Dsn:              cfg.SentryDSN,
		Environment:      cfg.AppEnv,
		EnableTracing:    true,
		TracesSampleRate: 1.0,
		Debug:            cfg.Debug,
	})
	if err != nil {
		return err
	}
	log.Println("Sentry initialized.")
	return nil
}

// buildReporter connects to MongoDB if MONGODB_URI is configured, mirroring
// the teacher's connectDatabase, and falls back to a no-op reporter
// otherwise — spec.md §6.2 keeps the core itself free of persisted state,
// so losing this sink loses no in-flight work.
func buildReporter(cfg *config.Config) (report.StatsReporter, func(), error) {
	if cfg.MongoDBURI == "" {
		log.Println("MONGODB_URI not set, stats reporting disabled.")
		return report.NoopReporter{}, func() {}, nil
	}

	client, db, err := report.ConnectMongo(cfg.MongoDBURI, cfg.MongoDBDatabase)
	if err != nil {
		return nil, nil, err
	}
	log.Println("Connected to MongoDB.")

	cleanup := func() {
		disconnectCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := client.Disconnect(disconnectCtx); err != nil {
			log.Printf("Error disconnecting from MongoDB: %v", err)
		}
	}
	return report.NewMongoReporter(db, ""), cleanup, nil
}

func main() {
	cfg, err := config.LoadEnv()
	if err != nil {
		log.Fatalf("Configuration error: %v", err)
	}

	if err := initSentry(cfg); err != nil {
		log.Fatalf("Sentry initialization error: %v", err)
	}
	if cfg.SentryDSN != "" {
		defer sentry.Flush(2 * time.Second)
	}

	reporter, cleanupReporter, err := buildReporter(cfg)
	if err != nil {
		sentry.CaptureException(err)
		log.Fatalf("Failed to set up stats reporter: %v", err)
	}
	defer cleanupReporter()

	var sink retry.Sink = retry.NopSink{}
	if cfg.SentryDSN != "" {
		sink = retry.SentrySink{}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	_, code, err := orchestrator.Run(ctx, cfg, reporter, sink, report.DefaultLanguage)
	if err != nil {
		log.Printf("Run finished with error: %v", err)
		sentry.CaptureException(err)
	}
	os.Exit(code)
}
