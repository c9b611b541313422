// Command datalik runs the dashboard ingestion server.
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

	"go.uber.org/zap"

	"datalik/internal/auth"
	"datalik/internal/config"
	"datalik/internal/logger"
	"datalik/internal/server"
	"datalik/internal/session"
	"datalik/internal/telemetry"
	ddbackend "datalik/internal/telemetry/datadog"

	// Session cache backends register themselves on import.
	_ "datalik/internal/session/memory"
	_ "datalik/internal/session/redisstore"
)

var (
	version = "0.1.0"
	commit  = "dev"
	date    = "unknown"
)

func main() {
	var (
		configPath  = flag.String("config", "", "Path to configuration file")
		showVersion = flag.Bool("version", false, "Show version information")
		healthCheck = flag.Bool("health-check", false, "Perform health check and exit")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("datalik %s (commit: %s, built: %s)\n", version, commit, date)
		os.Exit(0)
	}

	if *healthCheck {
		performHealthCheck()
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("starting datalik",
		zap.String("version", version),
		zap.String("commit", commit),
		zap.Int("port", cfg.Server.Port),
	)

	if cfg.Auth.CredentialsFile == "" {
		log.Fatal("auth.credentials_file is required")
	}
	store, err := auth.NewYAMLStore(cfg.Auth.CredentialsFile)
	if err != nil {
		log.Fatal("load credentials", zap.Error(err))
	}
	authn := auth.NewAuthenticator(store)

	ctx := context.Background()
	cache, err := session.New(ctx, session.Config{
		Kind:     cfg.Session.Backend,
		Addr:     cfg.Session.Addr,
		Password: cfg.Session.Password,
		DB:       cfg.Session.DB,
	})
	if err != nil {
		log.Fatal("create session cache", zap.Error(err))
	}
	defer cache.Close()

	var metrics telemetry.Backend = telemetry.Nop{}
	if cfg.Telemetry.Enabled {
		backend, err := ddbackend.NewBackend(ctx, ddbackend.Options{
			ServiceName: cfg.Telemetry.Service,
			Tags:        ddbackend.ParseTagsCSV(cfg.Telemetry.Tags),
			FlushEvery:  cfg.Telemetry.FlushEvery,
		})
		if err != nil {
			log.Fatal("create telemetry backend", zap.Error(err))
		}
		defer backend.Close()
		metrics = backend
	}

	srv := server.New(cfg, log, authn, cache, metrics)

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- srv.Start()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		log.Error("server error", zap.Error(err))
	case sig := <-shutdown:
		log.Info("shutdown signal received", zap.String("signal", sig.String()))

		// Give outstanding requests 30 seconds to complete
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Stop(ctx); err != nil {
			log.Error("failed to shut down gracefully", zap.Error(err))
			os.Exit(1)
		}
		log.Info("server shutdown complete")
	}
}

// performHealthCheck probes the local server's health endpoint so the
// binary doubles as a container healthcheck command.
func performHealthCheck() {
	port := os.Getenv("DATALIK_SERVER_PORT")
	if port == "" {
		port = "8080"
	}

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get("http://localhost:" + port + "/health")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Health check failed: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		fmt.Fprintf(os.Stderr, "Health check failed: status %d\n", resp.StatusCode)
		os.Exit(1)
	}
	fmt.Println("OK")
}
