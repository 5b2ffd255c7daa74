package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/me/controlnode/internal/config"
	"github.com/me/controlnode/internal/logging"
	"github.com/me/controlnode/internal/rpcclient"
	"github.com/me/controlnode/internal/supervisor"
)

func main() {
	configFile := flag.String("config", "", "Path to YAML config file")
	envFile := flag.String("env-file", ".env", "Path to a KEY=VALUE file loaded into the environment")
	serverURL := flag.String("server", "", "Control node JSON-RPC URL (overrides config)")
	interval := flag.Duration("interval", 0, "How often to check leases (overrides config)")
	restartAfter := flag.Duration("restart-after", 0, "Restart leases not renewed within this duration (overrides config)")
	once := flag.Bool("once", false, "Run a single check and exit")
	logLevel := flag.String("log-level", "", "Log level (debug, info, warn, error)")
	logFormat := flag.String("log-format", "", "Log format (text, json)")
	debug := flag.Bool("debug", false, "Shorthand for --log-level=debug")
	flag.Parse()

	if err := config.LoadDotEnv(*envFile); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	cfg, err := config.LoadSupervisorConfig(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	if *serverURL != "" {
		cfg.ServerURL = *serverURL
	}
	if *interval > 0 {
		cfg.CheckInterval = *interval
	}
	if *restartAfter > 0 {
		cfg.RestartAfter = *restartAfter
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
	sup := supervisor.New(rpcclient.New(cfg.ServerURL, logger), cfg, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *once {
		n, err := sup.Check(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "check leases: %v\n", err)
			os.Exit(1)
		}
		logger.Info("check complete", "restarted", n)
		return
	}

	logger.Info("supervisor starting", "server", cfg.ServerURL,
		"interval", cfg.CheckInterval, "restart_after", cfg.RestartAfter)
	if err := sup.Run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "supervisor error: %v\n", err)
		os.Exit(1)
	}
}
