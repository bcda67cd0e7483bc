/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the payroll engine server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration (.env + environment, flags override)
  2. Initialize logger
  3. Initialize store (sqlite, mongo or memory)
  4. Initialize employee locker (redis or in-process)
  5. Create payroll service and API handler
  6. Optionally seed a demo scenario
  7. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -addr    HTTP listen address (default: APP_ADDR or :8080)
  -store   sqlite | mongo | memory (default: STORE or sqlite)
  -db      SQLite database path (default: SQLITE_PATH or payroll.db)
           Use ":memory:" for in-memory database

ENVIRONMENT:
  APP_ADDR, STORE, SQLITE_PATH, MONGO_URI, MONGO_DB, REDIS_ADDR, LOCK_TTL,
  MAX_ATTEMPTS, LOG_LEVEL, CORS_ORIGINS, SEED_SCENARIO
  See config/config.go for defaults.

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Close store and redis connections
  4. Exit

EXAMPLES:
  # Run with file database
  ./server -db="./data/payroll.db"

  # Run with in-memory store and demo data
  SEED_SCENARIO=mixed-month ./server -store=memory

  # Run against MongoDB with distributed locking
  STORE=mongo MONGO_URI=mongodb://localhost:27017 REDIS_ADDR=localhost:6379 ./server

SEE ALSO:
  - api/server.go: Router configuration
  - api/handlers.go: HTTP handlers
  - store/sqlite/sqlite.go, store/mongo/mongo.go: Persistence
*/
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/warp/payroll-engine/api"
	"github.com/warp/payroll-engine/config"
	"github.com/warp/payroll-engine/payroll"
	"github.com/warp/payroll-engine/payroll/lock"
	"github.com/warp/payroll-engine/payroll/store"
	"github.com/warp/payroll-engine/store/mongo"
	"github.com/warp/payroll-engine/store/sqlite"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("Failed to load configuration: %v", err)
	}

	// Flags
	flag.StringVar(&cfg.Addr, "addr", cfg.Addr, "HTTP listen address")
	flag.StringVar(&cfg.Store, "store", cfg.Store, "Store backend: sqlite, mongo or memory")
	flag.StringVar(&cfg.SQLitePath, "db", cfg.SQLitePath, "SQLite database path")
	flag.Parse()

	if err := cfg.Validate(); err != nil {
		logrus.Fatalf("Invalid configuration: %v", err)
	}

	logger, err := config.NewLogger(cfg.LogLevel, os.Stdout)
	if err != nil {
		logrus.Fatalf("Failed to initialize logger: %v", err)
	}

	ctx := context.Background()

	// Initialize store
	employees, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		logger.WithError(err).WithField("store", cfg.Store).Fatal("Failed to initialize store")
	}
	defer closeStore()

	svc := payroll.NewService(employees, logger)
	svc.MaxAttempts = cfg.MaxAttempts

	// Initialize locker
	if cfg.RedisAddr != "" {
		rdb, err := lock.Dial(ctx, cfg.RedisAddr)
		if err != nil {
			logger.WithError(err).WithField("redis", cfg.RedisAddr).Fatal("Failed to connect to redis")
		}
		defer rdb.Close()
		svc.Locker = lock.NewRedis(rdb, cfg.LockTTL, logger)
		logger.WithField("redis", cfg.RedisAddr).Info("using redis employee locks")
	} else {
		svc.Locker = lock.NewLocal()
	}

	// Initialize handler
	handler := api.NewHandler(svc, logger)

	if cfg.SeedScenario != "" {
		if err := handler.LoadScenarioByID(ctx, cfg.SeedScenario); err != nil {
			logger.WithError(err).WithField("scenario", cfg.SeedScenario).Warn("Failed to seed scenario")
		}
	}

	// Create router
	router := api.NewRouter(handler, cfg.CORSOrigins)

	// Create server
	server := &http.Server{
		Addr:         cfg.Addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.WithFields(logrus.Fields{"addr": cfg.Addr, "store": cfg.Store}).Info("Server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Fatal("Server failed")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Server forced to shutdown")
		return
	}

	logger.Info("Server stopped")
}

// openStore builds the configured EmployeeStore and its cleanup func.
func openStore(ctx context.Context, cfg config.Config) (payroll.EmployeeStore, func(), error) {
	switch cfg.Store {
	case config.StoreMongo:
		s, err := mongo.Connect(ctx, cfg.MongoURI, cfg.MongoDB)
		if err != nil {
			return nil, nil, err
		}
		return s, func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			s.Close(ctx)
		}, nil
	case config.StoreMemory:
		return store.NewMemory(), func() {}, nil
	default:
		s, err := sqlite.New(cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return s, func() { s.Close() }, nil
	}
}
