// Package main is the CLI entrypoint for Pulsechat. It provides subcommands
// for running the REST API (api), the WebSocket gateway (gateway), both
// together in one process for local development (serve), and database
// migrations (migrate).
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/pulsechat/pulsechat/internal/api"
	"github.com/pulsechat/pulsechat/internal/auth"
	"github.com/pulsechat/pulsechat/internal/config"
	"github.com/pulsechat/pulsechat/internal/database"
	"github.com/pulsechat/pulsechat/internal/dispatcher"
	"github.com/pulsechat/pulsechat/internal/events"
	"github.com/pulsechat/pulsechat/internal/gateway"
	"github.com/pulsechat/pulsechat/internal/presence"
	"github.com/pulsechat/pulsechat/internal/registry"
	"github.com/pulsechat/pulsechat/internal/repository"
	"github.com/pulsechat/pulsechat/internal/repository/postgres"
	"github.com/pulsechat/pulsechat/internal/service"
	"github.com/pulsechat/pulsechat/internal/session"
	"github.com/pulsechat/pulsechat/internal/snowflake"
	"github.com/pulsechat/pulsechat/internal/workers"
)

// Build-time variables set via ldflags.
var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "api":
		err = runAPI()
	case "gateway":
		err = runGateway()
	case "serve":
		err = runServe()
	case "migrate":
		err = runMigrate()
	case "version":
		runVersion()
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Pulsechat — real-time chat backend")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  pulsechat <command> [options]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  api       Run the REST API server")
	fmt.Println("  gateway   Run the WebSocket gateway server")
	fmt.Println("  serve     Run the REST API and gateway in one process")
	fmt.Println("  migrate   Run database migrations (up|down|status)")
	fmt.Println("  version   Print version information")
	fmt.Println("  help      Show this help message")
	fmt.Println()
	fmt.Println("Configuration:")
	fmt.Println("  Env vars:    see internal/config for the required set")
	fmt.Println("  Config file: pulsechat.toml (or set PULSECHAT_CONFIG_PATH)")
}

// deps bundles everything wired from configuration that every long-running
// subcommand needs: the database pool, the event bus and its subscriber
// actor, the Redis-backed session/refresh-token stores, the connection
// registry, the auth and domain service layers, and the id generator.
type deps struct {
	cfg      *config.Config
	db       *database.DB
	bus      *events.Bus
	sub      *events.Subscriber
	rdb      *redis.Client
	sessions *session.Store
	pres     *presence.Store
	reg      *registry.Registry
	repos    *repository.Repositories
	authSvc  *auth.Service
	svc      *service.Service
	gen      *snowflake.Generator
	logger   *slog.Logger
}

func wire(ctx context.Context, logger *slog.Logger) (*deps, error) {
	cfg, err := config.Load(configPath())
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	logger = setupLogger(cfg.Logging.Level, cfg.Logging.Format)

	db, err := database.New(ctx, cfg.DatabaseURL, 20, logger)
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	bus, err := events.New(cfg.NATSURL, logger)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("connecting to NATS: %w", err)
	}
	sub := events.NewSubscriber(cfg.NATSURL, logger)

	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		db.Close()
		bus.Close()
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		db.Close()
		bus.Close()
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}

	sessions := session.New(rdb, logger)
	refreshTokens := session.NewRefreshTokenStore(rdb, logger)
	pres := presence.New(rdb, logger)
	reg := registry.New()

	gen, err := snowflake.New(cfg.WorkerID)
	if err != nil {
		return nil, fmt.Errorf("constructing id generator: %w", err)
	}

	authSvc := auth.NewService(auth.Config{
		Secret:             cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.AccessTokenExpiry,
		RefreshTokenExpiry: cfg.JWT.RefreshTokenExpiry,
		RefreshTokens:      refreshTokens,
		Logger:             logger,
	})

	repos := postgres.New(db.Pool, logger)
	svc := service.New(repos, gen, bus, authSvc, pres, logger)

	return &deps{
		cfg: cfg, db: db, bus: bus, sub: sub, rdb: rdb, sessions: sessions, pres: pres,
		reg: reg, repos: repos, authSvc: authSvc, svc: svc, gen: gen, logger: logger,
	}, nil
}

func (d *deps) close() {
	d.bus.Close()
	d.db.Close()
	if err := d.rdb.Close(); err != nil {
		d.logger.Warn("closing redis client failed", slog.String("error", err.Error()))
	}
}

// runAPI runs only the REST API server.
func runAPI() error {
	logger := setupLogger("info", "json")
	ctx := context.Background()

	d, err := wire(ctx, logger)
	if err != nil {
		return err
	}
	defer d.close()

	srv := api.NewServer(d.svc, d.authSvc, api.Config{
		CORSOrigins:    d.cfg.CORS.AllowedOrigins,
		RateLimitRPS:   d.cfg.RateLimit.RequestsPerSecond,
		RateLimitBurst: d.cfg.RateLimit.Burst,
	}, d.logger)

	return runUntilSignal(d.logger, func(errCh chan<- error) {
		addr := fmt.Sprintf(":%d", d.cfg.APIPort)
		if err := srv.Start(addr); err != nil {
			errCh <- fmt.Errorf("API server: %w", err)
		}
	}, func(shutdownCtx context.Context) {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			d.logger.Error("API server shutdown error", slog.String("error", err.Error()))
		}
	})
}

// runGateway runs only the WebSocket gateway and its dispatcher.
func runGateway() error {
	logger := setupLogger("info", "json")
	ctx := context.Background()

	d, err := wire(ctx, logger)
	if err != nil {
		return err
	}
	defer d.close()

	subCtx, subCancel := context.WithCancel(context.Background())
	defer subCancel()
	go d.sub.Run(subCtx)

	disp := dispatcher.New(d.reg, d.sessions, d.sub, d.logger)
	go disp.Run(subCtx)

	workerMgr := workers.New(workers.Config{
		Sessions: d.sessions,
		Invites:  d.repos.Invites,
		Bus:      d.bus,
		Logger:   d.logger,
	})
	workerMgr.Start(subCtx)

	gw := gateway.NewServer(gateway.ServerConfig{
		Auth:       d.authSvc,
		Repos:      d.repos,
		Sessions:   d.sessions,
		Registry:   d.reg,
		Presence:   d.pres,
		Bus:        d.bus,
		Subscriber: d.sub,
		ListenAddr: fmt.Sprintf(":%d", d.cfg.GatewayPort),
		Logger:     d.logger,
	})

	return runUntilSignal(d.logger, func(errCh chan<- error) {
		if err := gw.Start(); err != nil {
			errCh <- fmt.Errorf("gateway server: %w", err)
		}
	}, func(shutdownCtx context.Context) {
		workerMgr.Stop()
		if err := gw.Shutdown(shutdownCtx); err != nil {
			d.logger.Error("gateway shutdown error", slog.String("error", err.Error()))
		}
	})
}

// runServe runs the REST API and the WebSocket gateway in one process, for
// local development.
func runServe() error {
	logger := setupLogger("info", "json")
	ctx := context.Background()

	d, err := wire(ctx, logger)
	if err != nil {
		return err
	}
	defer d.close()

	subCtx, subCancel := context.WithCancel(context.Background())
	defer subCancel()
	go d.sub.Run(subCtx)

	disp := dispatcher.New(d.reg, d.sessions, d.sub, d.logger)
	go disp.Run(subCtx)

	workerMgr := workers.New(workers.Config{
		Sessions: d.sessions,
		Invites:  d.repos.Invites,
		Bus:      d.bus,
		Logger:   d.logger,
	})
	workerMgr.Start(subCtx)

	srv := api.NewServer(d.svc, d.authSvc, api.Config{
		CORSOrigins:    d.cfg.CORS.AllowedOrigins,
		RateLimitRPS:   d.cfg.RateLimit.RequestsPerSecond,
		RateLimitBurst: d.cfg.RateLimit.Burst,
	}, d.logger)

	gw := gateway.NewServer(gateway.ServerConfig{
		Auth:       d.authSvc,
		Repos:      d.repos,
		Sessions:   d.sessions,
		Registry:   d.reg,
		Presence:   d.pres,
		Bus:        d.bus,
		Subscriber: d.sub,
		ListenAddr: fmt.Sprintf(":%d", d.cfg.GatewayPort),
		Logger:     d.logger,
	})

	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 2)
	go func() {
		addr := fmt.Sprintf(":%d", d.cfg.APIPort)
		if err := srv.Start(addr); err != nil {
			errCh <- fmt.Errorf("API server: %w", err)
		}
	}()
	go func() {
		if err := gw.Start(); err != nil {
			errCh <- fmt.Errorf("gateway server: %w", err)
		}
	}()

	select {
	case err := <-errCh:
		return err
	case sig := <-shutdownCh:
		d.logger.Info("shutdown signal received", slog.String("signal", sig.String()))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	workerMgr.Stop()
	if err := gw.Shutdown(shutdownCtx); err != nil {
		d.logger.Error("gateway shutdown error", slog.String("error", err.Error()))
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		d.logger.Error("API server shutdown error", slog.String("error", err.Error()))
	}

	d.logger.Info("pulsechat stopped")
	return nil
}

// runUntilSignal starts a long-running server via start, blocks on a
// shutdown signal or a server error, then calls shutdown with a bounded
// context.
func runUntilSignal(logger *slog.Logger, start func(errCh chan<- error), shutdown func(ctx context.Context)) error {
	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go start(errCh)

	select {
	case err := <-errCh:
		return err
	case sig := <-shutdownCh:
		logger.Info("shutdown signal received", slog.String("signal", sig.String()))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	shutdown(shutdownCtx)

	logger.Info("pulsechat stopped")
	return nil
}

// runMigrate handles the migrate subcommand with up/down/status operations.
func runMigrate() error {
	logger := setupLogger("info", "text")

	cfg, err := config.Load(configPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	action := "up"
	if len(os.Args) >= 3 {
		action = os.Args[2]
	}

	switch action {
	case "up":
		return database.MigrateUp(cfg.DatabaseURL, logger)
	case "down":
		return database.MigrateDown(cfg.DatabaseURL, logger)
	case "status":
		v, dirty, err := database.MigrateStatus(cfg.DatabaseURL)
		if err != nil {
			return err
		}
		fmt.Printf("Migration version: %d\n", v)
		fmt.Printf("Dirty: %v\n", dirty)
		return nil
	default:
		return fmt.Errorf("unknown migrate action: %s (use: up, down, status)", action)
	}
}

func runVersion() {
	fmt.Printf("Pulsechat %s\n", version)
	fmt.Printf("  commit: %s\n", commit)
}

// configPath returns the config file path from PULSECHAT_CONFIG_PATH env var
// or the default "pulsechat.toml".
func configPath() string {
	if p := os.Getenv("PULSECHAT_CONFIG_PATH"); p != "" {
		return p
	}
	return "pulsechat.toml"
}

// setupLogger creates a slog.Logger with the given level and format.
func setupLogger(level, format string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: lvl}

	var handler slog.Handler
	switch strings.ToLower(format) {
	case "text":
		handler = slog.NewTextHandler(os.Stdout, opts)
	default:
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
