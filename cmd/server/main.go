package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"go.uber.org/zap"

	"github.com/nayasahai/recovery/internal/config"
	"github.com/nayasahai/recovery/internal/server"
)

// Version information
var (
	Version   = "1.0.0"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

func main() {
	var configPath string
	var showVersion bool

	flag.StringVar(&configPath, "config", "config/config.yaml", "Path to configuration file")
	flag.BoolVar(&showVersion, "version", false, "Show version information")
	flag.Parse()

	// Initialize logger
	logger := initLogger()
	defer logger.Sync()

	if showVersion {
		logger.Info("Naya Sahai Recovery Service",
			zap.String("version", Version),
			zap.String("git_commit", GitCommit),
			zap.String("build_time", BuildTime))
		return
	}

	logger.Info("Starting Naya Sahai Recovery Service",
		zap.String("config_path", configPath),
		zap.String("version", Version))

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Fatal("Failed to load configuration", zap.Error(err))
	}

	configured, err := cfg.Logging.BuildLogger()
	if err != nil {
		logger.Fatal("Failed to build configured logger", zap.Error(err))
	}
	logger.Sync()
	logger = configured
	defer logger.Sync()

	logger.Info("Configuration loaded successfully",
		zap.String("environment", cfg.Environment),
		zap.String("log_level", cfg.Logging.Level))

	if err := validateEnvironment(cfg, logger); err != nil {
		logger.Fatal("Environment validation failed", zap.Error(err))
	}

	srv, err := server.NewServer(cfg, logger, Version)
	if err != nil {
		logger.Fatal("Failed to create server", zap.Error(err))
	}

	logger.Info("Starting recovery server",
		zap.Int("http_port", cfg.Server.HTTP.Port),
		zap.Int("grpc_port", cfg.Server.GRPC.Port))

	if err := srv.Start(); err != nil {
		logger.Fatal("Server failed to start", zap.Error(err))
	}
}

// initLogger initializes the application logger
func initLogger() *zap.Logger {
	env := os.Getenv("ENVIRONMENT")
	if env == "" {
		env = "development"
	}

	var logger *zap.Logger
	var err error

	if env == "production" {
		config := zap.NewProductionConfig()
		config.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
		logger, err = config.Build()
	} else {
		config := zap.NewDevelopmentConfig()
		config.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
		logger, err = config.Build()
	}

	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	return logger
}

// validateEnvironment warns about settings that run but degrade the service
func validateEnvironment(cfg *config.Config, logger *zap.Logger) error {
	logger.Info("Validating environment configuration")

	if cfg.IsProduction() {
		if !cfg.Database.Enabled {
			return fmt.Errorf("database must be enabled in production")
		}
		if !cfg.Security.APIAuth.Enabled {
			return fmt.Errorf("API authentication must be enabled in production")
		}
	}

	if cfg.Advisory.Enabled && cfg.Advisory.APIKey == "" {
		logger.Warn("GEMINI_API_KEY not set, advisory requests will use fallback guidance")
	}

	logger.Info("Environment validation completed")
	return nil
}
