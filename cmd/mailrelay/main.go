// Command mailrelay accepts mail over SMTP and forwards every message
// through the configured delivery adapter.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/shineum/mailkit/internal/backend"
	"github.com/shineum/mailkit/internal/config"
	"github.com/shineum/mailkit/internal/logging"
	"github.com/shineum/mailkit/internal/relay"
	smtptls "github.com/shineum/mailkit/internal/tls"
	"github.com/shineum/mailkit/mailer"
)

func main() {
	configPath := flag.String("config", "", "path to YAML configuration file (optional)")
	envFile := flag.String("env-file", ".env", "path to a .env file (optional)")
	flag.Parse()

	if err := config.LoadEnvFile(*envFile); err != nil {
		slog.Error("failed to load env file", "error", err)
		os.Exit(1)
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := logging.Setup(os.Stdout, cfg.Logging.Level)

	tlsConfig, err := smtptls.LoadOrGenerate(cfg.TLS.CertFile, cfg.TLS.KeyFile, cfg.Relay.Hostname, "127.0.0.1")
	if err != nil {
		logger.Error("failed to setup TLS", "error", err)
		os.Exit(1)
	}
	tlsMode := "self-signed"
	if cfg.TLS.CertFile != "" && cfg.TLS.KeyFile != "" {
		tlsMode = "file"
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	a, err := backend.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to create adapter", "error", err)
		os.Exit(1)
	}

	server := relay.New(relay.Config{
		ListenAddr:     cfg.Relay.Listen,
		Hostname:       cfg.Relay.Hostname,
		Mailer:         mailer.New(a),
		TLSConfig:      tlsConfig,
		AuthUsername:   cfg.Relay.Username,
		AuthPassword:   cfg.Relay.Password,
		MaxMessageSize: cfg.Relay.MaxMessageSize,
		MaxRecipients:  cfg.Relay.MaxRecipients,
		Logger:         logger,
	})

	logger.Info("starting mailrelay",
		"listen", cfg.Relay.Listen,
		"adapter", a.Name(),
		"auth_enabled", cfg.AuthEnabled(),
		"tls_mode", tlsMode,
	)

	// Blocks until a signal cancels ctx.
	if err := server.ListenAndServe(ctx); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}

	logger.Info("mailrelay stopped")
}

// loadConfig loads configuration from the specified path (YAML + env override)
// or from environment variables only if no path is given.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFromFile(path)
	}
	return config.Load()
}
