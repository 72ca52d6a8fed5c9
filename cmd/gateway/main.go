package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ctp_gateway/internal/alert"
	"ctp_gateway/internal/config"
	"ctp_gateway/internal/core"
	"ctp_gateway/internal/ctp"
	"ctp_gateway/internal/infrastructure/health"
	"ctp_gateway/internal/supervisor"
	"ctp_gateway/pkg/liveserver"
	"ctp_gateway/pkg/logging"
	"ctp_gateway/pkg/telemetry"
)

var (
	// Version information (set via build flags)
	version   = "dev"
	buildTime = "unknown"
)

func main() {
	// Parse command-line flags
	configPath := flag.String("config", "configs/gateway.yaml", "Path to configuration file")
	listenAddr := flag.String("listen", "", "Listen address (overrides config)")
	showVersion := flag.Bool("version", false, "Show version and exit")
	flag.Parse()

	// Show version if requested
	if *showVersion {
		fmt.Printf("gateway version %s (built %s)\n", version, buildTime)
		os.Exit(0)
	}

	// Load configuration
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Override listen address if specified
	if *listenAddr != "" {
		cfg.Server.ListenAddr = *listenAddr
	}

	// Initialize logger
	logger, err := logging.NewZapLogger(cfg.System.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	logging.SetGlobalLogger(logger)

	logger.Info("Starting gateway",
		"version", version,
		"listen_addr", cfg.Server.ListenAddr,
		"instruments", len(cfg.Instruments),
	)

	// Initialize telemetry. Full setup covers metrics as well, so the
	// metrics-only path is the fallback.
	if cfg.Telemetry.EnableTracing {
		tel, err := telemetry.Setup("ctp_gateway", version)
		if err != nil {
			logger.Warn("Failed to initialize telemetry", "error", err)
		} else {
			logger.Info("Telemetry initialized")
			defer func() {
				shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer shutdownCancel()
				if err := tel.Shutdown(shutdownCtx); err != nil {
					logger.Warn("Telemetry shutdown failed", "error", err)
				}
			}()
		}
	} else if cfg.Telemetry.EnableMetrics {
		if err := telemetry.InitMetrics(); err != nil {
			logger.Warn("Failed to initialize metrics exporter", "error", err)
		} else {
			logger.Info("Metrics exporter initialized")
		}
	}

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Create WebSocket hub and start it in background
	hub := liveserver.NewHub(logger)
	go hub.Run(ctx)
	logger.Info("WebSocket hub started")

	// Create session collaborators and the supervisor
	hm := health.NewHealthManager(logger)
	mdAPI, tdAPI := createSessionAPIs(logger)
	sup := supervisor.New(cfg, mdAPI, tdAPI, hub, hm, logger)

	// Alert channels for session failures
	alerts := alert.NewAlertManager(logger)
	if cfg.Alerting.SlackWebhookURL != "" {
		alerts.AddChannel(alert.NewSlackChannel(string(cfg.Alerting.SlackWebhookURL)))
	}
	if cfg.Alerting.TelegramBotToken != "" {
		alerts.AddChannel(alert.NewTelegramChannel(string(cfg.Alerting.TelegramBotToken), cfg.Alerting.TelegramChatID))
	}
	sup.SetAlertManager(alerts)

	supDone := make(chan error, 1)
	go func() { supDone <- sup.Run(ctx) }()
	logger.Info("Session supervisor started",
		"md_front", cfg.Sessions.MarketData.FrontAddress,
		"td_front", cfg.Sessions.Trade.FrontAddress,
	)

	// Create and configure the HTTP/WebSocket server
	server := liveserver.NewServer(hub, logger, cfg.Server.AllowedOrigins)
	server.SetHealthReporter(hm)
	server.SetMaxConnections(cfg.Server.MaxConnections)
	server.SetRateLimit(cfg.Server.RateLimit, cfg.Server.RateBurst)
	if cfg.Server.StaticDir != "" {
		server.SetStaticDir(cfg.Server.StaticDir)
	}

	// Start server in background
	go func() {
		if err := server.Start(ctx, cfg.Server.ListenAddr); err != nil {
			logger.Error("Server error", "error", err)
			cancel()
		}
	}()

	// Log startup complete
	logger.Info("gateway is running",
		"websocket_url", fmt.Sprintf("ws://localhost%s/ws/{client_id}", cfg.Server.ListenAddr),
		"health_url", fmt.Sprintf("http://localhost%s/health", cfg.Server.ListenAddr),
		"metrics_url", fmt.Sprintf("http://localhost%s/metrics", cfg.Server.ListenAddr),
	)

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)

	select {
	case <-sigChan:
		logger.Info("Received shutdown signal, gracefully shutting down...")
	case <-ctx.Done():
	}

	// Cancel context to trigger graceful shutdown
	cancel()

	// Stop server
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Stop(shutdownCtx); err != nil {
		logger.Error("Error during server shutdown", "error", err)
	}

	// Wait for the session pipelines to release their fronts
	select {
	case <-supDone:
	case <-shutdownCtx.Done():
		logger.Warn("Session supervisor shutdown timed out")
	}

	logger.Info("gateway stopped")
}

// createSessionAPIs builds the session collaborators. The simulated
// fronts stand in for the native binding; the supervisor only sees the
// core interfaces either way.
func createSessionAPIs(logger core.ILogger) (core.MarketDataAPI, core.TraderAPI) {
	logger.Info("Using simulated session fronts")
	return ctp.NewSimMarketData(), ctp.NewSimTrader()
}
