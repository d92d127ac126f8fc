package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/iliyamo/scene-continuity/internal/cache"
	"github.com/iliyamo/scene-continuity/internal/config"
	"github.com/iliyamo/scene-continuity/internal/continuity"
	"github.com/iliyamo/scene-continuity/internal/handler"
	"github.com/iliyamo/scene-continuity/internal/middleware"
	"github.com/iliyamo/scene-continuity/internal/risk"
	"github.com/iliyamo/scene-continuity/internal/router"
	"github.com/iliyamo/scene-continuity/internal/service"
	"github.com/iliyamo/scene-continuity/internal/stagelock"
)

type serveFlags struct {
	migrate bool
}

func newServeCommand(ctx *commandContext) *cobra.Command {
	var flags serveFlags
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), ctx, flags)
		},
	}
	cmd.Flags().BoolVar(&flags.migrate, "migrate", true, "Apply pending migrations before serving")
	return cmd
}

func runServe(cmdCtx context.Context, ctx *commandContext, flags serveFlags) error {
	if cmdCtx == nil {
		cmdCtx = context.Background()
	}
	sigCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := ctx.ensureConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger, err := ctx.ensureLogger()
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Sync() //nolint:errcheck

	be, err := openBackend(sigCtx, cfg.DB, flags.migrate, logger)
	if err != nil {
		return err
	}
	defer be.close() //nolint:errcheck

	// Redis is optional: without it the state cache and rate limiter are off.
	rdb := config.NewRedisClient(sigCtx, config.LoadRedisConfig())
	optional := map[string]handler.Pinger{}
	if rdb == nil {
		logger.Warn("redis unavailable; state cache and rate limiting disabled")
	} else {
		defer rdb.Close()
		optional["redis"] = handler.PingFunc(func(ctx context.Context) error { return rdb.Ping(ctx).Err() })
	}

	var pub service.Publisher = service.NoopPublisher{}
	if cfg.AMQPURL != "" {
		pub = service.NewAMQPPublisher(cfg.AMQPURL, cfg.AuditQueue)
	} else {
		logger.Info("no broker configured; audit events are dropped")
	}
	events := service.NewDispatcher(pub, cfg.EventTimeout, logger)

	engine := continuity.New(be.store, continuity.Options{
		Cache:  cache.NewStateCache(rdb, config.LoadStateCacheConfig(), logger),
		Logger: logger,
	})
	locks := stagelock.New(be.store, stagelock.Options{Logger: logger})
	h := handler.New(engine, locks, risk.NewAnalyzer(be.store), events, logger)

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(echomw.Recover())
	e.Use(middleware.RequestLogger(logger))
	router.RegisterRoutes(e, handler.Health(map[string]handler.Pinger{"store": be.ping}, optional))
	router.RegisterAPI(e, h, router.APIOptions{
		JWTSecret:    cfg.JWTSecret,
		AuthDisabled: cfg.AuthDisabled,
		RateLimit:    config.LoadRateLimitConfig(),
		Redis:        rdb,
		Logger:       logger,
	})
	if cfg.AuthDisabled {
		logger.Warn("authentication disabled; every request acts as a local owner")
	}

	addr := ":" + cfg.Port
	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("addr", addr), zap.String("driver", cfg.DB.Driver))
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	case <-sigCtx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
	defer stop()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	if err := events.Wait(shutdownCtx); err != nil {
		logger.Warn("pending audit events dropped", zap.Error(err))
	}
	return nil
}
