package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"prizechain/cmd/internal/passphrase"
	"prizechain/config"
	"prizechain/observability/logging"
	"prizechain/observability/otel"
)

const keystorePassEnv = "PRIZE_KEYSTORE_PASSPHRASE"

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	rpcAddr := flag.String("rpc-addr", "", "Override the JSON-RPC listen address")
	dataDir := flag.String("data-dir", "", "Override the data directory")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *rpcAddr != "" {
		cfg.RPCAddress = *rpcAddr
	}
	if *dataDir != "" {
		cfg.DataDir = *dataDir
	}

	env := cfg.Environment
	if fromEnv := strings.TrimSpace(os.Getenv("PRIZE_ENV")); fromEnv != "" {
		env = fromEnv
	}
	logger, logCloser := logging.SetupWithOptions(logging.Options{
		Service:    "prized",
		Env:        env,
		Level:      cfg.Log.Level,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	})
	defer logCloser.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := otel.Init(ctx, otel.Config{
		ServiceName: cfg.Telemetry.ServiceName,
		Environment: env,
		Network:     cfg.NetworkName,
		Endpoint:    cfg.Telemetry.Endpoint,
		Insecure:    cfg.Telemetry.Insecure,
		Headers:     cfg.Telemetry.Headers,
		Metrics:     cfg.Telemetry.Enabled && cfg.Telemetry.Metrics,
		Traces:      cfg.Telemetry.Enabled && cfg.Telemetry.Traces,
	})
	if err != nil {
		logger.Error("Failed to initialise telemetry", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := shutdownTelemetry(context.Background()); err != nil {
			logger.Warn("Telemetry shutdown failed", slog.Any("error", err))
		}
	}()

	n, err := openNode(cfg, filepath.Dir(*configFile), passphrase.NewSource(keystorePassEnv, "Enter operator keystore passphrase"), logger)
	if err != nil {
		logger.Error("Failed to start node", slog.Any("error", err))
		os.Exit(1)
	}
	defer n.Close()

	if err := n.Run(ctx); err != nil {
		logger.Error("Node stopped with error", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("Node stopped")
}
