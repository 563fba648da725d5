package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/radiant-ai/radiant/internal/auth"
	"github.com/radiant-ai/radiant/internal/bootstrap"
	"github.com/radiant-ai/radiant/internal/config"
	"github.com/radiant-ai/radiant/internal/mcp"
	"github.com/radiant-ai/radiant/internal/server"
	"github.com/radiant-ai/radiant/internal/telemetry"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	os.Exit(run0())
}

func run0() int {
	// Load .env file if present (non-fatal; production won't have one).
	_ = godotenv.Load()

	level := slog.LevelInfo
	if os.Getenv("RADIANT_LOG_LEVEL") == "debug" {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, logger); err != nil {
		slog.Error("fatal error", "error", err)
		return 1
	}
	return 0
}

func run(ctx context.Context, logger *slog.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	slog.Info("radiant starting", "version", version, "port", cfg.Port)

	otelShutdown, err := telemetry.Init(ctx, cfg.OTELEndpoint, cfg.ServiceName, version, cfg.OTELInsecure)
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer func() { _ = otelShutdown(context.Background()) }()

	app, err := bootstrap.Open(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = app.Close(context.Background()) }()

	jwtMgr, err := auth.NewJWTManager(cfg.JWTPrivateKeyPath, cfg.JWTPublicKeyPath, cfg.JWTIssuer, cfg.JWTExpiration)
	if err != nil {
		return fmt.Errorf("auth: %w", err)
	}

	app.Scheduler.Start()

	// The SSE broker needs the dedicated LISTEN connection.
	var broker *server.Broker
	if app.DB.HasNotifyConn() {
		broker = server.NewBroker(app.DB, logger)
		go broker.Start(ctx)
	} else {
		logger.Info("SSE broker: disabled (no notify connection)")
	}

	limiter := app.Limiter(cfg)
	defer func() { _ = limiter.Close() }()

	// A nil *Qdrant must not become a non-nil interface.
	var vectors server.HealthChecker
	if app.Vectors != nil {
		vectors = app.Vectors
	}

	srvCfg := server.ServerConfig{
		HandlersDeps: server.HandlersDeps{
			DB:                  app.DB,
			Cache:               app.Hot,
			Vectors:             vectors,
			Tiering:             app.Tiering,
			Checkpoints:         app.Checkpoints,
			Governance:          app.Governance,
			Oversight:           app.Oversight,
			Broker:              broker,
			Logger:              logger,
			Version:             version,
			MaxRequestBodyBytes: cfg.MaxRequestBodyBytes,
		},
		JWTMgr:       jwtMgr,
		Limiter:      limiter,
		Port:         cfg.Port,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	if cfg.MCPEnabled {
		srvCfg.MCPServer = mcp.New(app.Checkpoints, app.Oversight, app.Governance, logger, version).MCPServer()
	}
	srv := server.New(srvCfg)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return err
	}

	// Each phase gets its own timeout so early completion doesn't steal
	// budget from later phases. HTTP drains first so in-flight reviewer
	// decisions land before the sweeps stop.
	slog.Info("radiant shutting down")

	httpCtx, httpCancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := srv.Shutdown(httpCtx); err != nil {
		slog.Error("http shutdown error", "error", err)
	}
	httpCancel()

	schedCtx, schedCancel := context.WithTimeout(context.Background(), 20*time.Second)
	if err := app.Scheduler.Stop(schedCtx); err != nil {
		slog.Error("scheduler shutdown error", "error", err)
	}
	schedCancel()

	slog.Info("radiant stopped")
	return nil
}
