package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/nayasahai/recovery/internal/advisory"
	"github.com/nayasahai/recovery/internal/api"
	"github.com/nayasahai/recovery/internal/auth"
	"github.com/nayasahai/recovery/internal/cases"
	"github.com/nayasahai/recovery/internal/config"
	"github.com/nayasahai/recovery/internal/incident"
	"github.com/nayasahai/recovery/internal/metrics"
	"github.com/nayasahai/recovery/internal/realtime"
)

const (
	serviceName     = "nayasahai.recovery"
	shutdownTimeout = 30 * time.Second
)

// Server represents the recovery service
type Server struct {
	config       *config.Config
	logger       *zap.Logger
	version      string
	httpServer   *http.Server
	grpcServer   *grpc.Server
	healthServer *health.Server
	registry     *prometheus.Registry
	collector    *metrics.Collector
	catalog      *incident.Catalog
	repository   *cases.Repository
	redis        *redis.Client
	hub          *realtime.Hub
	manager      *cases.Manager
	advisor      *advisory.Advisor
	cancel       context.CancelFunc
	shutdownChan chan os.Signal
}

// NewServer creates the service and its backing connections
func NewServer(cfg *config.Config, logger *zap.Logger, version string) (*Server, error) {
	catalog, err := incident.Default()
	if err != nil {
		return nil, fmt.Errorf("failed to load incident catalog: %w", err)
	}
	logger.Info("Incident catalog loaded",
		zap.String("version", catalog.Version()),
		zap.Int("incidents", catalog.Len()))

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	s := &Server{
		config:       cfg,
		logger:       logger,
		version:      version,
		registry:     registry,
		collector:    metrics.NewCollector(registry),
		catalog:      catalog,
		shutdownChan: make(chan os.Signal, 1),
	}

	store, err := s.setupStore()
	if err != nil {
		return nil, err
	}

	oracle, err := s.setupOracle()
	if err != nil {
		return nil, err
	}

	s.advisor = advisory.NewAdvisor(oracle, time.Duration(cfg.Advisory.Timeout)*time.Second, logger, s.collector)
	s.manager = cases.NewManager(store, catalog, logger, s.collector)

	if cfg.Server.WebSocket.Enabled {
		s.hub = realtime.NewHub(cfg.Server.WebSocket, s.redis, logger, s.collector)
		s.manager.SetNotifier(s.hub)
	}

	s.setupHTTPServer()
	s.setupGRPCServer()

	return s, nil
}

// setupStore picks PostgreSQL or the in-memory store and fronts it with
// the Redis cache when configured
func (s *Server) setupStore() (cases.Store, error) {
	var store cases.Store

	if s.config.Database.Enabled {
		db, err := cases.OpenDatabase(cases.DatabaseOptions{
			Host:            s.config.Database.Host,
			Port:            s.config.Database.Port,
			Name:            s.config.Database.Name,
			Username:        s.config.Database.Username,
			Password:        s.config.Database.Password,
			SSLMode:         s.config.Database.SSLMode,
			MaxOpenConns:    s.config.Database.MaxOpenConnections,
			MaxIdleConns:    s.config.Database.MaxIdleConnections,
			ConnMaxLifetime: time.Duration(s.config.Database.ConnMaxLifetime) * time.Second,
			Debug:           !s.config.IsProduction(),
		})
		if err != nil {
			return nil, err
		}

		s.repository = cases.NewRepository(db)
		if s.config.Database.AutoMigrate {
			if err := s.repository.AutoMigrate(); err != nil {
				return nil, fmt.Errorf("failed to run migrations: %w", err)
			}
		}
		store = s.repository
		s.logger.Info("Using PostgreSQL case store", zap.String("host", s.config.Database.Host))
	} else {
		store = cases.NewMemoryStore()
		s.logger.Warn("Database disabled, cases are kept in memory only")
	}

	if !s.config.Redis.Enabled {
		return store, nil
	}

	s.redis = redis.NewClient(&redis.Options{
		Addr:         s.config.Redis.Addr(),
		Password:     s.config.Redis.Password,
		DB:           s.config.Redis.Database,
		MaxRetries:   s.config.Redis.MaxRetries,
		DialTimeout:  time.Duration(s.config.Redis.DialTimeout) * time.Second,
		ReadTimeout:  time.Duration(s.config.Redis.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(s.config.Redis.WriteTimeout) * time.Second,
		PoolSize:     s.config.Redis.PoolSize,
	})
	s.logger.Info("Using Redis case cache", zap.String("addr", s.config.Redis.Addr()))

	ttl := time.Duration(s.config.Redis.CacheTTL) * time.Second
	return cases.NewCachedStore(store, s.redis, ttl, s.logger, s.collector), nil
}

// setupOracle connects to Gemini. Without an API key every advisory
// request is answered with the fallback.
func (s *Server) setupOracle() (advisory.Oracle, error) {
	if !s.config.Advisory.Enabled {
		s.logger.Info("Advisory oracle disabled")
		return nil, nil
	}
	if s.config.Advisory.APIKey == "" {
		s.logger.Warn("No advisory API key configured, serving fallback guidance only")
		return nil, nil
	}

	oracle, err := advisory.NewGeminiOracle(context.Background(), s.config.Advisory.APIKey, s.config.Advisory.Model)
	if err != nil {
		return nil, fmt.Errorf("failed to create advisory oracle: %w", err)
	}
	return oracle, nil
}

// setupHTTPServer initializes the HTTP/REST API server
func (s *Server) setupHTTPServer() {
	router := api.SetupRouter(s.config, s.logger, api.Dependencies{
		Catalog:  s.catalog,
		Cases:    s.manager,
		Advisor:  s.advisor,
		Auth:     auth.NewService(s.config.Security.APIAuth),
		Hub:      s.hub,
		Metrics:  s.collector,
		Gatherer: s.registry,
		Checks:   s.healthChecks(),
		Version:  s.version,
	})

	s.httpServer = &http.Server{
		Addr:           fmt.Sprintf(":%d", s.config.Server.HTTP.Port),
		Handler:        router,
		ReadTimeout:    time.Duration(s.config.Server.HTTP.ReadTimeout) * time.Second,
		WriteTimeout:   time.Duration(s.config.Server.HTTP.WriteTimeout) * time.Second,
		IdleTimeout:    time.Duration(s.config.Server.HTTP.IdleTimeout) * time.Second,
		MaxHeaderBytes: s.config.Server.HTTP.MaxHeaderBytes,
	}
}

// setupGRPCServer initializes the gRPC health endpoint
func (s *Server) setupGRPCServer() {
	s.healthServer = health.NewServer()
	s.grpcServer = grpc.NewServer()
	grpc_health_v1.RegisterHealthServer(s.grpcServer, s.healthServer)

	if !s.config.IsProduction() {
		reflection.Register(s.grpcServer)
	}
}

func (s *Server) healthChecks() map[string]api.HealthCheck {
	checks := make(map[string]api.HealthCheck)
	if s.repository != nil {
		checks["database"] = s.repository.Ping
	}
	if s.redis != nil {
		checks["redis"] = func(ctx context.Context) error {
			return s.redis.Ping(ctx).Err()
		}
	}
	return checks
}

// Handler returns the HTTP handler
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start serves HTTP and gRPC until an interrupt or SIGTERM arrives
func (s *Server) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	if s.hub != nil {
		go s.hub.Run(ctx)
		go s.hub.SubscribeToRedis(ctx)
	}

	go func() {
		s.logger.Info("Starting HTTP server", zap.Int("port", s.config.Server.HTTP.Port))
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("HTTP server failed", zap.Error(err))
		}
	}()

	if s.config.Server.GRPC.Enabled {
		listener, err := net.Listen("tcp", fmt.Sprintf(":%d", s.config.Server.GRPC.Port))
		if err != nil {
			cancel()
			return fmt.Errorf("failed to listen for gRPC: %w", err)
		}

		go func() {
			s.logger.Info("Starting gRPC server", zap.Int("port", s.config.Server.GRPC.Port))
			if err := s.grpcServer.Serve(listener); err != nil {
				s.logger.Error("gRPC server failed", zap.Error(err))
			}
		}()
	}

	s.setServingStatus(grpc_health_v1.HealthCheckResponse_SERVING)

	signal.Notify(s.shutdownChan, os.Interrupt, syscall.SIGTERM)

	<-s.shutdownChan
	s.logger.Info("Shutdown signal received")

	return s.Shutdown()
}

func (s *Server) setServingStatus(status grpc_health_v1.HealthCheckResponse_ServingStatus) {
	s.healthServer.SetServingStatus("", status)
	s.healthServer.SetServingStatus(serviceName, status)
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown() error {
	s.logger.Info("Starting graceful shutdown")
	s.setServingStatus(grpc_health_v1.HealthCheckResponse_NOT_SERVING)

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Error("HTTP server shutdown failed", zap.Error(err))
	} else {
		s.logger.Info("HTTP server shutdown completed")
	}

	s.grpcServer.GracefulStop()
	s.logger.Info("gRPC server shutdown completed")

	if s.cancel != nil {
		s.cancel()
	}

	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			s.logger.Error("Redis shutdown failed", zap.Error(err))
		}
	}

	if s.repository != nil {
		if err := s.repository.Close(); err != nil {
			s.logger.Error("Database shutdown failed", zap.Error(err))
		} else {
			s.logger.Info("Database connections closed")
		}
	}

	s.logger.Info("Graceful shutdown completed")
	return nil
}
