package main

import (
	"github.com/spf13/cobra"

	"github.com/copyleftdev/descent/internal/config"
	"github.com/copyleftdev/descent/internal/logging"
)

var (
	logLevel  string
	logFormat string

	cfg    *config.Config
	logger *logging.Logger
)

var rootCmd = &cobra.Command{
	Use:   "descent",
	Short: "Line-search solvers for smooth box-constrained minimization",
	Long: `descent minimizes smooth objectives with gradient, Newton and
quasi-Newton methods under optional box constraints. It runs one-off
solves from the command line or serves solve jobs over HTTP and JSON-RPC.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		if cfg, err = config.Load(); err != nil {
			return err
		}

		logCfg := cfg.LoggingConfig()
		if cmd.Flags().Changed("log-level") {
			logCfg.Level = logLevel
		}
		if cmd.Flags().Changed("log-format") {
			logCfg.Format = logFormat
		}
		logger, err = logging.NewLogger(logCfg)
		return err
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "json", "Log format (json, console)")
}
