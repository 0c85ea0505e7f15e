// cmd/server/main.go
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"lora-config-service/internal/config"
	"lora-config-service/internal/database"
	"lora-config-service/internal/driver"
	"lora-config-service/internal/driver/e90dtu"
	"lora-config-service/internal/driver/ebyte"
	"lora-config-service/internal/event"
	"lora-config-service/internal/repository"
	"lora-config-service/internal/routes"
	"lora-config-service/internal/service"
	"lora-config-service/internal/utils"
	"lora-config-service/pkg/lora/register"
)

// Application represents the main application
type Application struct {
	config   *config.Config
	logger   *zap.Logger
	server   *http.Server
	database *database.DB
	bus      *event.Bus

	moduleService    *service.ModuleService
	discoveryService *service.DiscoveryService

	moduleRepo    repository.ModuleRepository
	operationRepo repository.OperationRepository

	driverRegistry *driver.Registry
}

// @title LoRa Configuration Service API
// @version 1.0.0
// @description Configuration service for E22-family LoRa transceiver modules and E90 DTU gateways
// @license.name MIT
// @license.url https://opensource.org/licenses/MIT
// @host localhost:8086
// @BasePath /api/v1
func main() {
	app, err := NewApplication()
	if err != nil {
		fmt.Printf("Failed to initialize application: %v\n", err)
		os.Exit(1)
	}

	if err := app.Start(); err != nil {
		app.logger.Fatal("Failed to start application", zap.Error(err))
	}
}

// NewApplication creates a new application instance
func NewApplication() (*Application, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := utils.NewLogger(&cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	logger.Info("Starting service",
		zap.String("name", cfg.App.Name),
		zap.String("version", cfg.App.Version),
		zap.String("environment", cfg.App.Environment),
	)

	app := &Application{
		config: cfg,
		logger: logger,
	}

	if err := app.initializeDatabase(); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	app.initializeRepositories()
	app.initializeDriverRegistry()
	app.initializeServices()
	app.initializeServer()

	return app, nil
}

// initializeDatabase sets up database connection and runs migrations
func (app *Application) initializeDatabase() error {
	db, err := database.New(&app.config.Database, app.logger)
	if err != nil {
		return fmt.Errorf("failed to create database connection: %w", err)
	}
	app.database = db

	migrator := database.NewMigrator(db, app.logger)
	if err := migrator.Up(); err != nil {
		return fmt.Errorf("failed to run database migrations: %w", err)
	}

	app.logger.Info("Database initialized successfully")
	return nil
}

// initializeRepositories creates repository instances
func (app *Application) initializeRepositories() {
	app.moduleRepo = repository.NewModuleRepository(app.database, app.logger)
	app.operationRepo = repository.NewOperationRepository(app.database, app.logger)

	app.logger.Info("Repositories initialized successfully")
}

// initializeDriverRegistry registers a driver for every known variant
// profile. AT-speaking DTU gateways get the AT driver, everything else the
// binary register driver.
func (app *Application) initializeDriverRegistry() {
	app.driverRegistry = driver.NewRegistry(app.logger)

	for _, variant := range register.Variants() {
		if variant.UsesAT() {
			app.driverRegistry.Register(variant.Name, e90dtu.New)
		} else {
			app.driverRegistry.Register(variant.Name, ebyte.New)
		}
	}

	app.logger.Info("Driver registry initialized successfully",
		zap.Int("registered_drivers", len(app.driverRegistry.ListVariants())),
	)
}

// initializeServices creates service instances
func (app *Application) initializeServices() {
	app.bus = event.NewBus(app.logger)

	app.moduleService = service.NewModuleService(
		app.moduleRepo,
		app.operationRepo,
		app.driverRegistry,
		app.bus,
		app.config,
		app.logger,
	)

	app.discoveryService = service.NewDiscoveryService(app.config, app.bus, app.logger)

	app.logger.Info("Services initialized successfully")
}

// initializeServer sets up HTTP server and routes
func (app *Application) initializeServer() {
	routerManager := routes.NewRouter(
		app.config,
		app.logger,
		app.database,
		app.moduleService,
		app.discoveryService,
		app.bus,
	)

	app.server = &http.Server{
		Addr:         app.config.Server.Host + ":" + app.config.Server.Port,
		Handler:      routerManager.SetupRouter(),
		ReadTimeout:  app.config.Server.ReadTimeout,
		WriteTimeout: app.config.Server.WriteTimeout,
		IdleTimeout:  app.config.Server.IdleTimeout,
	}

	app.logger.Info("HTTP server initialized", zap.String("address", app.server.Addr))
}

// Start runs the application until a shutdown signal arrives
func (app *Application) Start() error {
	go app.bus.Start()
	app.startBackgroundServices()

	go func() {
		app.logger.Info("HTTP server listening", zap.String("address", app.server.Addr))
		if err := app.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			app.logger.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	return app.Shutdown()
}

// startBackgroundServices starts the ping loop and operation cleanup
func (app *Application) startBackgroundServices() {
	go app.startPingLoop()
	go app.startCleanupLoop()

	app.logger.Info("Background services started")
}

// startPingLoop periodically verifies connected modules still answer
func (app *Application) startPingLoop() {
	ticker := time.NewTicker(app.config.Radio.PingInterval)
	defer ticker.Stop()

	app.logger.Info("Module ping loop started",
		zap.Duration("interval", app.config.Radio.PingInterval),
	)

	for range ticker.C {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		app.moduleService.PingAll(ctx)
		cancel()
	}
}

// startCleanupLoop periodically removes old operation records
func (app *Application) startCleanupLoop() {
	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()

	for range ticker.C {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		deleted, err := app.operationRepo.DeleteOldOperations(ctx, time.Now().AddDate(0, 0, -90))
		if err != nil {
			app.logger.Error("Operation cleanup failed", zap.Error(err))
		} else if deleted > 0 {
			app.logger.Info("Old operations cleaned up", zap.Int64("deleted", deleted))
		}
		cancel()
	}
}

// Shutdown gracefully stops the application
func (app *Application) Shutdown() error {
	app.logger.Info("Shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("HTTP server shutdown failed", zap.Error(err))
	}

	app.moduleService.Shutdown(ctx)
	app.bus.Close()

	if err := app.database.Close(); err != nil {
		app.logger.Error("Database close failed", zap.Error(err))
	}

	app.logger.Info("Shutdown complete")
	utils.CloseLogger(app.logger)
	return nil
}
