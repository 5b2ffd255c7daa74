// Package cli implements ktsctl, the operator command line for a control node.
package cli

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/me/controlnode/internal/config"
	"github.com/me/controlnode/internal/logging"
	"github.com/me/controlnode/internal/rpcclient"
)

var (
	flagServer    string
	flagDebug     bool
	flagLogLevel  string
	flagLogFormat string

	logger *slog.Logger
	client *rpcclient.Client
)

// defaultServer returns the default JSON-RPC URL, checking CONTROLNODE_URL first.
func defaultServer() string {
	if s := os.Getenv(config.EnvPrefix + "URL"); s != "" {
		return s
	}
	return config.DefaultWorkerConfig().ServerURL
}

// NewRootCmd creates the root cobra command for ktsctl.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "ktsctl",
		Short: "ktsctl controls a simulation task scheduler",
		Long:  "ktsctl queues and aborts jobs, inspects outstanding leases and manages job progress on a control node.",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if flagDebug {
				flagLogLevel = "debug"
			}
			logger = logging.NewWithWriter(logging.Options{Level: flagLogLevel, Format: flagLogFormat}, cmd.ErrOrStderr())
			client = rpcclient.New(flagServer, logger)
		},
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&flagServer, "server", defaultServer(), "control node JSON-RPC URL (or CONTROLNODE_URL env)")
	root.PersistentFlags().BoolVar(&flagDebug, "debug", false, "Enable debug logging")
	root.PersistentFlags().StringVar(&flagLogLevel, "log-level", "warn", "Log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&flagLogFormat, "log-format", "text", "Log format (text, json)")

	root.AddCommand(
		newHelloCmd(),
		newAddTaskCmd(),
		newAbortCmd(),
		newTasksCmd(),
		newRestartCmd(),
		newJobCmd(),
	)

	return root
}
