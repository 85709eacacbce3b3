// Package main provides the server entry point.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/joho/godotenv"
	zlog "github.com/rs/zerolog/log"

	"github.com/noFlowWater/yukebox-sub000/internal/api/rest"
	"github.com/noFlowWater/yukebox-sub000/internal/app/engine"
	"github.com/noFlowWater/yukebox-sub000/internal/app/player"
	"github.com/noFlowWater/yukebox-sub000/internal/app/registry"
	"github.com/noFlowWater/yukebox-sub000/internal/app/resolver"
	"github.com/noFlowWater/yukebox-sub000/internal/domain/room"
	"github.com/noFlowWater/yukebox-sub000/internal/infra/config"
	"github.com/noFlowWater/yukebox-sub000/internal/infra/logger"
	"github.com/noFlowWater/yukebox-sub000/internal/infra/store"
)

var (
	app        = kingpin.New("yukebox-server", "yukebox multi-room playback server")
	configPath = app.Flag("config", "Path to config file").Default("config/server.yaml").String()
	verbose    = app.Flag("verbose", "Enable verbose (DEBUG) logging").Short('v').Bool()
	logfile    = app.Flag("logfile", "Path to log file (default: stdout)").String()
)

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	kingpin.MustParse(app.Parse(os.Args[1:]))

	loggerConfig := logger.Config{Output: "stdout", Level: "info"}
	if *verbose {
		loggerConfig.Level = "debug"
	}
	if *logfile != "" {
		loggerConfig.Output = *logfile
	}
	if err := logger.Init(loggerConfig); err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}

	zlog.Info().Msgf("Loading config from %s", *configPath)
	cfg, err := config.Load(*configPath)
	if err != nil {
		zlog.Fatal().Msgf("Failed to load config: %v", err)
	}

	if err := run(cfg); err != nil {
		zlog.Error().Msgf("Server error: %v", err)
		os.Exit(1)
	}
}

// run executes the main server logic. Using a separate function ensures
// defer statements are executed even when returning with an error.
func run(cfg *config.Config) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := store.Open(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer func() {
		if err := store.Close(db); err != nil {
			zlog.Warn().Msgf("Failed to close store: %v", err)
		}
	}()

	resolverChain, err := resolver.NewChainFromConfig(cfg)
	if err != nil {
		return fmt.Errorf("failed to create resolver chain: %w", err)
	}

	playerConfig := player.Config{
		Binary:          cfg.Player.Binary,
		SocketDir:       cfg.Player.SocketDir,
		ConnectRetries:  cfg.Player.ConnectRetries,
		ConnectInterval: time.Duration(cfg.Player.ConnectRetryMs) * time.Millisecond,
		RequestTimeout:  time.Duration(cfg.Player.RequestTimeoutMs) * time.Millisecond,
		HealthInterval:  time.Duration(cfg.Player.HealthIntervalSec) * time.Second,
		HealthTimeout:   time.Duration(cfg.Player.HealthTimeoutMs) * time.Millisecond,
	}
	playerFactory := func(rm room.Room) engine.PlayerClient {
		return player.NewClient(rm.ID, rm.AudioDevice, playerConfig, logger.ForRoom(rm.ID))
	}

	roomRepo := store.NewRoomRepository(db)
	queueRepo := store.NewQueueRepository(db)
	scheduleRepo := store.NewScheduleRepository(db)

	reg := registry.New(roomRepo, queueRepo, scheduleRepo, resolverChain, playerFactory,
		engine.NewNotifier(), registry.Config{
			PollInterval: time.Duration(cfg.Scheduler.PollIntervalSec) * time.Second,
			GraceWindow:  time.Duration(cfg.Scheduler.GraceWindowSec) * time.Second,
		})

	if err := reg.Startup(ctx); err != nil {
		return fmt.Errorf("startup recovery failed: %w", err)
	}
	go reg.Run(ctx)

	handler := rest.NewHandler(reg, roomRepo, scheduleRepo, resolverChain)
	server := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: handler.Router(),
	}

	serverErrCh := make(chan error, 1)
	go func() {
		zlog.Info().Msgf("Starting server: addr=%s", cfg.Server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigCh:
		zlog.Info().Msg("Received shutdown signal...")
	case err := <-serverErrCh:
		return fmt.Errorf("server error: %w", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	cancel()
	for roomID := range reg.Engines() {
		reg.Remove(roomID)
	}

	if err := server.Shutdown(shutdownCtx); err != nil {
		zlog.Error().Msgf("Failed to shutdown server: %v", err)
	}

	zlog.Info().Msg("Server stopped")
	return nil
}
