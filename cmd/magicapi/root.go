package main

import (
	"fmt"

	"github.com/edgeflare/magicapi/pkg/config"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	cfgFile  string
	logLevel string
	cfg      *config.Config
	logger   = zap.NewNop()
)

var rootCmd = &cobra.Command{
	Use:   "magicapi",
	Short: "magicapi serves data packages as a read-only REST API",
	Long: `magicapi loads a Frictionless data package, stores every resource in a backend
and exposes list and single-item endpoints for each of them.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(cfgFile, cmd.Flags())
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("log-level") {
			cfg.Log.Level = logLevel
		}

		logger, err = newLogger(cfg.Log)
		if err != nil {
			return err
		}
		zap.ReplaceGlobals(logger)
		if cfg.File != "" {
			logger.Debug("using config file", zap.String("file", cfg.File))
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logger.Sync()
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		versionFlag, _ := cmd.Flags().GetBool("version")
		if versionFlag {
			fmt.Fprintln(cmd.OutOrStdout(), config.Version)
			return nil
		}
		return cmd.Help()
	},
}

func init() {
	f := rootCmd.PersistentFlags()
	f.StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/magicapi.yaml)")
	f.StringVarP(&logLevel, "log-level", "L", "info", "log at this level (debug, info, warn, error, none)")
	f.StringP("datapackage", "d", "", "path or URL of the data package")
	f.StringP("backend.name", "b", "", "storage backend (sql, clickhouse, mongo, tabular)")
	f.String("prefix", "", "table prefix (default is the package name)")
	rootCmd.Flags().BoolP("version", "v", false, "Print the version number")

	rootCmd.AddCommand(serveCmd, initdbCmd, importCmd, routesCmd)
}

// newLogger builds the process logger. The level "none" disables logging.
func newLogger(c config.LogConfig) (*zap.Logger, error) {
	if c.Level == "none" {
		return zap.NewNop(), nil
	}
	level, err := zapcore.ParseLevel(c.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}

	zc := zap.NewProductionConfig()
	if c.Development {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}
