package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/garyjia/claim-intake/internal/config"
	"github.com/garyjia/claim-intake/internal/container"
	httpapi "github.com/garyjia/claim-intake/internal/interfaces/http"
	"github.com/garyjia/claim-intake/pkg/utils"
)

const defaultConfigPath = "configs/config.yaml"

func main() {
	configPath := os.Getenv("CLAIM_INTAKE_CONFIG")
	if configPath == "" {
		configPath = defaultConfigPath
	}
	if _, err := os.Stat(configPath); err != nil {
		// Defaults plus environment only
		configPath = ""
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := utils.NewLogger(utils.LoggerConfig{
		Level:      cfg.Logger.Level,
		OutputPath: cfg.Logger.OutputPath,
		Format:     cfg.Logger.Format,
		Service:    "claim-intake",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("Server exited with error", zap.Error(err))
	}
	logger.Info("Server exited successfully")
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	c, err := container.New(cfg, logger)
	if err != nil {
		return err
	}
	if err := c.Start(ctx); err != nil {
		return err
	}
	defer func() {
		if err := c.Close(); err != nil {
			logger.Error("Failed to close container", zap.Error(err))
		}
	}()

	health := func(ctx context.Context) (bool, interface{}) {
		status := c.Health(ctx)
		return status.Overall, status.Components
	}

	server := httpapi.NewServer(httpapi.ServerConfig{
		Host:          cfg.Server.Host,
		Port:          cfg.Server.Port,
		ReadTimeout:   cfg.Server.ReadTimeout,
		WriteTimeout:  cfg.Server.WriteTimeout,
		MaxUploadSize: cfg.Server.MaxUploadSize,
	}, c.Claims(), health, logger.Named("http"))

	logger.Info("Claim intake service ready",
		zap.String("address", server.Address()),
		zap.String("ocr_engine", cfg.OCR.Engine),
		zap.Float64("fraud_threshold", cfg.Pipeline.FraudThreshold),
		zap.Float64("auto_approve_threshold", cfg.Pipeline.AutoApproveThreshold))

	return server.Start(ctx)
}
