package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/asintel/internal/ai"
	"github.com/asintel/internal/api"
	"github.com/asintel/internal/attackgraph"
	"github.com/asintel/internal/config"
	"github.com/asintel/internal/graph"
	"github.com/asintel/internal/kafka"
	"github.com/asintel/internal/posture"
	"github.com/asintel/internal/recon"
	"github.com/asintel/internal/risk"
	"github.com/asintel/internal/store"
)

var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

const shutdownTimeout = 30 * time.Second

func main() {
	var (
		showVersionFlag = flag.Bool("version", false, "Show version information")
		help            = flag.Bool("help", false, "Show help information")
	)
	flag.Parse()

	if *help {
		showHelp()
		return
	}
	if *showVersionFlag {
		showVersion()
		return
	}

	log.Printf("Starting asintel v%s (commit: %s, built: %s)", version, commit, date)

	cfg := config.Load()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Persistence
	connectCtx, connectCancel := context.WithTimeout(ctx, 10*time.Second)
	scanStore, err := store.NewStore(connectCtx, cfg.MongoURI)
	connectCancel()
	if err != nil {
		log.Fatalf("Failed to initialize scan store: %v", err)
	}
	defer func() {
		closeCtx, closeCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer closeCancel()
		if err := scanStore.Close(closeCtx); err != nil {
			log.Printf("Failed to close scan store: %v", err)
		}
	}()

	// Recon pipeline
	resolver := recon.NewResolver()
	enumerator := recon.NewEnumerator(resolver)
	exposure := recon.NewShodanClient(cfg.ShodanAPIKey)
	riskEngine := risk.NewEngine()
	orchestrator := recon.NewOrchestrator(enumerator, resolver, exposure, riskEngine)

	// Analysis services
	aiClient := ai.NewClient(cfg.GroqAPIKey, cfg.GeminiAPIKey)
	postureEngine := posture.NewEngine(aiClient)
	graphBuilder := attackgraph.NewBuilder()

	deps := api.Dependencies{
		Store:     scanStore,
		Recon:     orchestrator,
		Summaries: aiClient,
		Posture:   postureEngine,
		Graphs:    graphBuilder,
	}

	// Optional event publishing
	if len(cfg.Kafka.Brokers) > 0 {
		producer, err := kafka.NewProducer(cfg.Kafka.Brokers)
		if err != nil {
			log.Fatalf("Failed to initialize kafka producer: %v", err)
		}
		defer producer.Close()
		deps.Publisher = producer
	} else {
		log.Printf("Kafka brokers not configured: event publishing disabled")
	}

	// Optional graph export
	if cfg.Neo4j.URI != "" {
		graphStore, err := graph.NewStore(cfg.Neo4j)
		if err != nil {
			log.Fatalf("Failed to initialize graph store: %v", err)
		}
		defer func() {
			closeCtx, closeCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer closeCancel()
			if err := graphStore.Close(closeCtx); err != nil {
				log.Printf("Failed to close graph store: %v", err)
			}
		}()
		deps.Exporter = graphStore
	} else {
		log.Printf("Neo4j not configured: graph export disabled")
	}

	gateway := api.NewGateway(cfg.Server, deps)

	errCh := make(chan error, 1)
	go func() {
		if err := gateway.Start(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	waitForShutdown(cancel, gateway, errCh)
}

func waitForShutdown(cancel context.CancelFunc, gateway *api.Gateway, errCh <-chan error) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Printf("Received signal %v, shutting down", sig)
	case err := <-errCh:
		log.Printf("Gateway failed: %v", err)
	}
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := gateway.Stop(shutdownCtx); err != nil {
		log.Printf("Graceful shutdown failed: %v", err)
	}
	log.Printf("Shutdown complete")
}

func showHelp() {
	fmt.Printf(`asintel - Attack Surface Intelligence Platform

Usage:
  asintel [flags]

Flags:
  -version
        Show version information
  -help
        Show this help message

Environment:
  CONFIG_PATH       Optional yaml config file for server/kafka/neo4j tuning
  MONGO_URI         MongoDB connection string (default mongodb://localhost:27017)
  SHODAN_API_KEY    Exposure enrichment (optional)
  GROQ_API_KEY      Summary and simulation narratives (optional)
  GEMINI_API_KEY    Posture reports (optional)
`)
}

func showVersion() {
	fmt.Printf("asintel version %s\n", version)
	fmt.Printf("Commit: %s\n", commit)
	fmt.Printf("Built: %s\n", date)
}
