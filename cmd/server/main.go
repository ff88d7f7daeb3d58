// Makazi - residence registration service
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/aethra/makazi/internal/api"
	"github.com/aethra/makazi/internal/auth"
	"github.com/aethra/makazi/internal/config"
	"github.com/aethra/makazi/internal/database"
	"github.com/aethra/makazi/internal/platform/logger"
	"github.com/aethra/makazi/internal/platform/metrics"
)

var Version = "1.0.0"

func main() {
	args := os.Args
	if len(args) == 1 {
		args = append(args, "serve")
	}

	root := &cli.Command{
		Name:    "makazi",
		Usage:   "Residence registration service",
		Version: Version,
		Commands: []*cli.Command{
			serveCommand(),
			migrateCommand(),
			seedCommand(),
			userCommand(),
			wardCommand(),
			villageCommand(),
		},
	}

	if err := root.Run(context.Background(), args); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// app is what every command needs
type app struct {
	cfg    *config.Config
	logger *zap.Logger
	db     *gorm.DB
}

// bootstrap loads config, builds the logger and opens the migrated database
func bootstrap(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	log, err := logger.New(cfg.Log.Level, cfg.Log.Format, "makazi")
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}

	db, err := database.Open(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	if err := database.RunMigrations(ctx, db, cfg.Database.Driver, log); err != nil {
		return nil, err
	}
	return &app{cfg: cfg, logger: log, db: db}, nil
}

func (a *app) close() {
	if sqlDB, err := a.db.DB(); err == nil {
		_ = sqlDB.Close()
	}
	_ = a.logger.Sync()
}

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the HTTP server",
		Action: func(ctx context.Context, _ *cli.Command) error {
			a, err := bootstrap(ctx)
			if err != nil {
				return err
			}
			defer a.close()
			return runServer(ctx, a)
		},
	}
}

func runServer(ctx context.Context, a *app) error {
	cfg := a.cfg
	if err := auth.SeedCatalog(ctx, a.db); err != nil {
		return fmt.Errorf("seed permission catalog: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	sessions, err := auth.NewSessionManager(cfg.Session, a.logger)
	if err != nil {
		return err
	}
	deps := api.Deps{
		DB:       a.db,
		Logger:   a.logger,
		Metrics:  m,
		JWT:      auth.NewJWTService(cfg.Auth, a.logger),
		Sessions: sessions,
	}

	if cfg.Redis.URL != "" {
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			return fmt.Errorf("parse REDIS_URL: %w", err)
		}
		client := redis.NewClient(opts)
		defer client.Close()
		if err := client.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		deps.TRL = auth.NewRedisTRL(client)
		deps.Limiter = auth.NewRedisLoginLimiter(client, 5, 15*time.Minute)
		a.logger.Info("redis connected", zap.String("addr", opts.Addr))
	} else {
		a.logger.Warn("REDIS_URL not set; token revocation and login throttling are per-process")
	}

	gin.SetMode(cfg.Server.Mode)
	router := api.SetupRouter(api.NewHandler(deps), cfg.CORS, reg)

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           router,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("server listening", zap.String("addr", srv.Addr), zap.String("version", Version))
		errCh <- srv.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		a.logger.Info("shutting down", zap.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func migrateCommand() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "Apply pending migrations",
		Action: func(ctx context.Context, _ *cli.Command) error {
			a, err := bootstrap(ctx)
			if err != nil {
				return err
			}
			defer a.close()
			fmt.Println("Migrations complete")
			return nil
		},
	}
}
