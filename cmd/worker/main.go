package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/me/controlnode/internal/config"
	"github.com/me/controlnode/internal/logging"
	"github.com/me/controlnode/internal/rpcclient"
	"github.com/me/controlnode/internal/worker"
)

func main() {
	configFile := flag.String("config", "", "Path to YAML config file")
	envFile := flag.String("env-file", ".env", "Path to a KEY=VALUE file loaded into the environment")
	serverURL := flag.String("server", "", "Control node JSON-RPC URL (overrides config)")
	workerID := flag.String("id", "", "Worker id (default: generated)")
	types := flag.String("types", "", "Comma-separated task types to request (overrides config)")
	workDir := flag.String("workdir", "", "Working directory for task commands")
	poll := flag.Duration("poll", 0, "Poll interval when the queue is empty (overrides config)")
	commands := map[string]string{}
	flag.Func("command", "Task command as type=command line (repeatable)", func(s string) error {
		name, line, ok := strings.Cut(s, "=")
		if !ok || name == "" || line == "" {
			return fmt.Errorf("want type=command, got %q", s)
		}
		commands[name] = line
		return nil
	})
	logLevel := flag.String("log-level", "", "Log level (debug, info, warn, error)")
	logFormat := flag.String("log-format", "", "Log format (text, json)")
	debug := flag.Bool("debug", false, "Shorthand for --log-level=debug")
	flag.Parse()

	if err := config.LoadDotEnv(*envFile); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	cfg, err := config.LoadWorkerConfig(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	if *serverURL != "" {
		cfg.ServerURL = *serverURL
	}
	if *workerID != "" {
		cfg.WorkerID = *workerID
	}
	if *types != "" {
		cfg.TaskTypes = strings.Split(*types, ",")
	}
	if *workDir != "" {
		cfg.WorkDir = *workDir
	}
	if *poll > 0 {
		cfg.PollInterval = *poll
	}
	if len(commands) > 0 {
		if cfg.Commands == nil {
			cfg.Commands = map[string]string{}
		}
		for name, line := range commands {
			cfg.Commands[name] = line
		}
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

	runner, err := worker.NewShellRunner(cfg.Commands, cfg.WorkDir, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "create runner: %v\n", err)
		os.Exit(1)
	}

	client := rpcclient.New(cfg.ServerURL, logger)
	w, err := worker.New(client, runner, cfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "create worker: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("worker starting", "id", w.ID(), "server", cfg.ServerURL, "types", cfg.TaskTypes, "commands", runner.Types())
	if err := w.Run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "worker error: %v\n", err)
		os.Exit(1)
	}
}
