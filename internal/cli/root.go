package cli

import (
	"log/slog"
	"os"

	"github.com/me/gocoro/internal/config"
	"github.com/me/gocoro/internal/logging"
	"github.com/spf13/cobra"
)

var (
	flagServer    string
	flagConfig    string
	flagDebug     bool
	flagLogLevel  string
	flagLogFormat string

	cfg    config.Config
	logger *slog.Logger
	client *Client
)

// defaultServer returns the default server URL, checking GOCORO_SERVER env var first.
func defaultServer() string {
	if s := os.Getenv("GOCORO_SERVER"); s != "" {
		return s
	}
	return "http://localhost:8080"
}

// NewRootCmd creates the root cobra command for the gocoro CLI.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "gocoro",
		Short: "gocoro runs task plans on a fixed-tick cooperative scheduler",
		Long: `gocoro runs YAML task plans on a fixed-tick cooperative scheduler and
can serve a control API for inspecting and steering the live tasks.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			cfg, err = config.Load(flagConfig)
			if err != nil {
				return err
			}
			flags := cmd.Flags()
			if flags.Changed("log-level") {
				cfg.LogLevel = flagLogLevel
			}
			if flags.Changed("log-format") {
				cfg.LogFormat = flagLogFormat
			}
			if flagDebug {
				cfg.LogLevel = "debug"
			}
			logger = logging.NewLogger(logging.ParseLevel(cfg.LogLevel), cfg.LogFormat)
			client = NewClient(flagServer, logger)
			return nil
		},
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&flagServer, "server", defaultServer(), "gocoro server URL (or GOCORO_SERVER env)")
	root.PersistentFlags().StringVar(&flagConfig, "config", os.Getenv("GOCORO_CONFIG"), "Path to YAML config file (or GOCORO_CONFIG env)")
	root.PersistentFlags().BoolVar(&flagDebug, "debug", false, "Enable debug logging")
	root.PersistentFlags().StringVar(&flagLogLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&flagLogFormat, "log-format", "text", "Log format (text, json)")

	root.AddCommand(
		newRunCmd(),
		newServeCmd(),
		newValidateCmd(),
		newTasksCmd(),
		newKillCmd(),
		newPauseCmd(),
		newResumeCmd(),
		newVarsCmd(),
	)

	return root
}
