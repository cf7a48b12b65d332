package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"

	httpadapter "dossier/internal/adapters/http"
	pg "dossier/internal/adapters/postgres"
	"dossier/internal/broker"
	"dossier/internal/config"
	lifecyclesvc "dossier/internal/services/lifecycle"
	consumerworker "dossier/internal/workers/consumer"
	relayworker "dossier/internal/workers/relay"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Printf("warning: %v", err)
	}
	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL is required")
	}
	if cfg.BrokerSecret == "" {
		log.Fatal("BROKER_SECRET is required")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := pg.Connect(ctx, cfg.DatabaseURL, cfg.DedupTTL)
	if err != nil {
		log.Fatalf("db connect error: %v", err)
	}
	defer db.Close()
	if err := db.Migrate(ctx); err != nil {
		log.Fatalf("db migrate error: %v", err)
	}

	token := broker.NewToken(cfg.BrokerSecret)
	lifecycle := lifecyclesvc.New(db, db)
	worker := consumerworker.New(db, consumerworker.StubAnalyzer{Delay: 150 * time.Millisecond})

	srv := httpadapter.New(lifecycle, worker, token)
	r := chi.NewRouter()
	r.Mount("/", srv.Routes())

	// relay workers move accepted dispatches to the consumer webhook
	deliverer := relayworker.NewWebhookDeliverer(cfg.DispatchURL, token)
	relayworker.Run(ctx, db, db, deliverer, relayworker.Config{
		Workers:      cfg.RelayWorkers,
		PollInterval: cfg.RelayPollInterval,
		MaxAttempts:  cfg.DispatchMaxAttempts,
	})
	log.Printf("relay workers started: %d", cfg.RelayWorkers)

	errCh := make(chan error, 1)
	go func() { errCh <- http.ListenAndServe(cfg.ListenAddr, r) }()
	log.Printf("listening on %s", cfg.ListenAddr)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		log.Printf("shutting down on %s", sig)
		cancel()
		time.Sleep(300 * time.Millisecond)
	case err := <-errCh:
		log.Fatal(fmt.Errorf("server error: %w", err))
	}
}
