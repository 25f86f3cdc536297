package cli

import (
	"log/slog"
	"os"

	"github.com/me/govm/internal/config"
	"github.com/me/govm/internal/logging"
	"github.com/spf13/cobra"
)

var (
	flagServer    string
	flagDebug     bool
	flagLogLevel  string
	flagLogFormat string

	logger *slog.Logger
	client *Client
)

// defaultServer returns the default server URL, checking GOVM_SERVER env var first.
func defaultServer() string {
	if s := os.Getenv("GOVM_SERVER"); s != "" {
		return s
	}
	return "http://localhost:8090"
}

// NewRootCmd creates the root cobra command for the govm CLI.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "govm",
		Short: "govm: instruction scheduler for a dataflow VM",
		Long:  "govm replays instruction scripts locally and submits to or inspects a running govm server.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if flagDebug {
				flagLogLevel = "debug"
			}
			var err error
			logger, err = logging.NewLoggerWithWriter(config.LogConfig{Level: flagLogLevel, Format: flagLogFormat}, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			client = NewClient(flagServer, logger)
			return nil
		},
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&flagServer, "server", defaultServer(), "govm server URL (or GOVM_SERVER env)")
	root.PersistentFlags().BoolVar(&flagDebug, "debug", false, "Enable debug logging")
	root.PersistentFlags().StringVar(&flagLogLevel, "log-level", "warn", "Log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&flagLogFormat, "log-format", "text", "Log format (text, json)")

	root.AddCommand(
		newReplayCmd(),
		newSubmitCmd(),
		newStatsCmd(),
		newObjectsCmd(),
		newPackagesCmd(),
		newTopologyCmd(),
	)

	return root
}
