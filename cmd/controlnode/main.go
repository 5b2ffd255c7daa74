package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/me/controlnode/internal/config"
	"github.com/me/controlnode/internal/logging"
	"github.com/me/controlnode/internal/scheduler"
	"github.com/me/controlnode/internal/server"
	"github.com/me/controlnode/internal/store"
	"github.com/me/controlnode/internal/telemetry"
)

func main() {
	configFile := flag.String("config", "", "Path to YAML config file")
	envFile := flag.String("env-file", ".env", "Path to a KEY=VALUE file loaded into the environment")
	addr := flag.String("addr", "", "Listen address (overrides config)")
	dbPath := flag.String("db", "", "SQLite path or postgres:// DSN (default ~/.controlnode/controlnode.db)")
	databases := flag.String("databases", "", "Comma-separated host:port list advertised to workers")
	logLevel := flag.String("log-level", "", "Log level (debug, info, warn, error)")
	logFormat := flag.String("log-format", "", "Log format (text, json)")
	debug := flag.Bool("debug", false, "Shorthand for --log-level=debug")
	noMetrics := flag.Bool("no-metrics", false, "Disable the /metrics endpoint")
	flag.Parse()

	if err := config.LoadDotEnv(*envFile); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	cfg, err := config.LoadServerConfig(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	if *addr != "" {
		cfg.Addr = *addr
	}
	if *dbPath != "" {
		cfg.DB = *dbPath
	}
	if *databases != "" {
		locs, err := config.ParseDatabases(*databases)
		if err != nil {
			fmt.Fprintf(os.Stderr, "parse -databases: %v\n", err)
			os.Exit(1)
		}
		cfg.Databases = locs
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}
	if *logFormat != "" {
		cfg.Log.Format = *logFormat
	}
	if *debug {
		cfg.Log.Level = "debug"
	}

	logger := logging.New(cfg.Log.Options())

	shutdownTracing, err := telemetry.InitTracing("controlnode", cfg.Tracing, os.Stdout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init tracing: %v\n", err)
		os.Exit(1)
	}

	// Resolve database path.
	if cfg.DB == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "cannot determine home directory: %v\n", err)
			os.Exit(1)
		}
		dir := filepath.Join(home, ".controlnode")
		if err := os.MkdirAll(dir, 0o755); err != nil {
			fmt.Fprintf(os.Stderr, "cannot create %s: %v\n", dir, err)
			os.Exit(1)
		}
		cfg.DB = filepath.Join(dir, "controlnode.db")
	}

	// Open store and run migrations.
	st, err := store.Open(cfg.DB, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open database: %v\n", err)
		os.Exit(1)
	}
	defer st.Close()

	if err := st.Migrate(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "migrate database: %v\n", err)
		os.Exit(1)
	}
	logger.Info("database ready", "db", redactDSN(cfg.DB))

	schedCfg := scheduler.DefaultConfig()
	schedCfg.Databases = cfg.Databases
	if cfg.NotificationInterval > 0 {
		schedCfg.NotificationInterval = cfg.NotificationInterval
	}

	var serverOpts []server.Option
	var schedOpts []scheduler.Option
	if !*noMetrics {
		m := telemetry.NewMetrics()
		serverOpts = append(serverOpts, server.WithMetrics(m))
		schedOpts = append(schedOpts, scheduler.WithRecorder(m))
	}

	sched := scheduler.New(st, schedCfg, logger, schedOpts...)
	srv := server.New(cfg, st, sched, logger, serverOpts...)

	httpServer := &http.Server{
		Addr:    cfg.Addr,
		Handler: srv.Handler(),
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("control node starting", "addr", cfg.Addr, "rpc_path", cfg.RPCPath,
			"databases", len(cfg.Databases), "notification_interval", schedCfg.NotificationInterval)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}

	// Let pending follow-up resolutions land before the store closes.
	sched.Wait()

	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Error("tracing shutdown", "error", err)
	}
	logger.Info("control node stopped")
}

// redactDSN hides the password of a postgres URL.
func redactDSN(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil || u.User == nil {
		return dsn
	}
	return u.Redacted()
}
