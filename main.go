package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/replaykit/replayd/internal/bus"
	"github.com/replaykit/replayd/internal/config"
	"github.com/replaykit/replayd/internal/policy"
	"github.com/replaykit/replayd/internal/provider"
	"github.com/replaykit/replayd/internal/recorder"
	"github.com/replaykit/replayd/internal/service"
	"github.com/replaykit/replayd/internal/store"
	transport "github.com/replaykit/replayd/internal/transport/http"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	log.Printf("Starting replayd...")
	log.Printf("HTTP Port: %d", cfg.HTTPPort)
	log.Printf("Database: %s", cfg.DatabaseURL)
	log.Printf("Provider mode: %s", cfg.ProviderMode)

	db, err := store.NewSQLiteStore(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to initialize store: %v", err)
	}
	defer db.Close()

	eventBus := bus.New()
	rec := recorder.New(db)

	client := provider.NewClient(cfg.ProviderBaseURL, cfg.ProviderAPIKey, cfg.ProviderModel, cfg.ProviderTimeout)
	caller := provider.ForMode(cfg.ProviderMode, client, rec)

	policyContent := policy.DefaultPolicy
	if cfg.PolicyPath != "" {
		raw, err := os.ReadFile(cfg.PolicyPath)
		if err != nil {
			log.Fatalf("Failed to read policy file: %v", err)
		}
		policyContent = string(raw)
	}
	policyEngine, err := policy.NewEngine(context.Background(), policyContent)
	if err != nil {
		log.Fatalf("Failed to initialize policy engine: %v", err)
	}

	workflow := service.ChainWorkflow{Phases: cfg.WorkflowPhases}
	svc := service.New(db, eventBus, caller, rec, policyEngine, workflow, service.DefaultHandlers(), service.Options{
		SnapshotEvery: cfg.SnapshotEvery,
		StepDelay:     cfg.StepDelay,
	})

	server := transport.NewServer(svc)

	go func() {
		addr := fmt.Sprintf(":%d", cfg.HTTPPort)
		if err := server.Start(addr); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	log.Printf("API started on port %d", cfg.HTTPPort)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down replayd...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Failed to shutdown server gracefully: %v", err)
	}

	log.Println("replayd stopped")
}
