package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Code4neverCompany/Code4never-AutoLauncher-AlphaVersion/internal/api"
	"github.com/Code4neverCompany/Code4never-AutoLauncher-AlphaVersion/internal/config"
	"github.com/Code4neverCompany/Code4never-AutoLauncher-AlphaVersion/internal/core"
	"github.com/Code4neverCompany/Code4never-AutoLauncher-AlphaVersion/internal/logging"
	launchermcp "github.com/Code4neverCompany/Code4never-AutoLauncher-AlphaVersion/internal/mcp"
	"github.com/Code4neverCompany/Code4never-AutoLauncher-AlphaVersion/internal/notify"
	"github.com/Code4neverCompany/Code4never-AutoLauncher-AlphaVersion/internal/power"
	"github.com/Code4neverCompany/Code4never-AutoLauncher-AlphaVersion/internal/proc"
	"github.com/Code4neverCompany/Code4never-AutoLauncher-AlphaVersion/internal/store"
)

func main() {
	cfg, err := config.Parse()
	if err != nil {
		log.Fatalf("failed to parse config: %v", err)
	}

	logger := logging.New(cfg.Log.Level)

	baseCtx := context.Background()
	storeInst, err := store.Open(baseCtx, cfg.StateDir, cfg.Log.Retention)
	if err != nil {
		logger.Error("open store", "err", err)
		os.Exit(1)
	}
	defer storeInst.DB.Close()

	location := cfg.Location()

	tracker := core.NewTracker(proc.System(), logger,
		core.WithIconRecorder(storeInst),
		core.WithResolvePolling(cfg.Scheduler.ResolveTimeout, 500*time.Millisecond),
	)
	powerCtl := power.New(logger)

	hub := notify.NewHub()
	publishers := notify.Fanout{hub}
	if cfg.Notification.Bark.Enabled && cfg.Notification.Bark.URL != "" {
		bark, err := notify.NewBarkNotifier(cfg.Notification.Bark.URL)
		if err != nil {
			logger.Error("configure bark", "err", err)
			os.Exit(1)
		}
		publishers = append(publishers, notify.NewPushBridge(bark, logger))
	}

	policy := core.Policy{
		ScanInterval:  cfg.Scheduler.ScanInterval,
		GraceWindow:   cfg.Scheduler.GraceWindow,
		IdleThreshold: cfg.Scheduler.IdleThreshold,
	}
	// Trigger evaluation follows the configured zone: cron slots fire at
	// the wall-clock time of the instant the engine's clock produces.
	engine := core.NewEngine(storeInst, tracker, powerCtl, logger, policy,
		core.WithPublisher(publishers),
		core.WithClock(func() time.Time { return time.Now().In(location) }),
	)

	ctx, cancel := context.WithCancel(baseCtx)
	defer cancel()

	if err := engine.Start(ctx); err != nil {
		logger.Error("start engine", "err", err)
		os.Exit(1)
	}

	mcpServer := launchermcp.NewMCPServer(storeInst, engine, logger, location)

	switch cfg.Mode {
	case "http", "":
		runHTTPMode(cfg, storeInst, engine, hub, mcpServer, logger, location)
	case "mcp":
		runMCPMode(mcpServer, engine, logger, cancel)
	case "both":
		runBothMode(cfg, storeInst, engine, hub, mcpServer, logger, location)
	default:
		logger.Error("invalid mode", "mode", cfg.Mode, "valid", []string{"http", "mcp", "both"})
		os.Exit(1)
	}
}

// runHTTPMode starts only the HTTP server. The MCP endpoint stays mounted
// under /mcp.
func runHTTPMode(cfg *config.Config, storeInst *store.Store, engine *core.Engine, hub *notify.Hub, mcpServer *launchermcp.MCPServer, logger *slog.Logger, location *time.Location) {
	server, err := api.NewServer(cfg.Server.Addr, cfg.Server.AuthToken, storeInst, engine, hub, mcpServer, logger, location)
	if err != nil {
		logger.Error("create server", "err", err)
		os.Exit(1)
	}

	serverErr := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigs:
		logger.Info("received signal", "signal", sig.String())
	case err := <-serverErr:
		logger.Error("server error", "err", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownGrace)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", "err", err)
	}

	engine.Stop()
	logger.Info("shutdown complete")
}

// runMCPMode serves MCP over stdio only.
func runMCPMode(mcpServer *launchermcp.MCPServer, engine *core.Engine, logger *slog.Logger, cancel context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigs
		logger.Info("received signal, shutting down...")
		cancel()
		engine.Stop()
	}()

	if err := mcpServer.Run(); err != nil {
		logger.Error("mcp server error", "err", err)
		os.Exit(1)
	}
}

// runBothMode serves HTTP and MCP stdio at the same time.
func runBothMode(cfg *config.Config, storeInst *store.Store, engine *core.Engine, hub *notify.Hub, mcpServer *launchermcp.MCPServer, logger *slog.Logger, location *time.Location) {
	mcpErr := make(chan error, 1)
	go func() {
		if err := mcpServer.Run(); err != nil {
			mcpErr <- err
		}
	}()

	server, err := api.NewServer(cfg.Server.Addr, cfg.Server.AuthToken, storeInst, engine, hub, mcpServer, logger, location)
	if err != nil {
		logger.Error("create server", "err", err)
		os.Exit(1)
	}

	serverErr := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigs:
		logger.Info("received signal", "signal", sig.String())
	case err := <-serverErr:
		logger.Error("server error", "err", err)
	case err := <-mcpErr:
		logger.Error("mcp server error", "err", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownGrace)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", "err", err)
	}

	engine.Stop()
	logger.Info("shutdown complete")
}
