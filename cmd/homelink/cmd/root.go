package cmd

import (
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// Version is reported to telemetry; set at build time with -ldflags.
var Version = "dev"

var (
	verbose         bool
	debug           bool
	logLevel        string
	configPaths     []string
	pageURL         string
	credentialsPath string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "homelink",
	Short: "Client for the my home device backend",
	Long: `homelink talks to a my home backend over its HTTP API and its
event channel. It keeps a bearer token in a local credential store,
retries transient failures and reconnects the channel when it drops.

Settings are read from HCL files given with --config; flags override them.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().BoolVarP(&debug, "debug", "d", false, "debug output")
	rootCmd.PersistentFlags().StringVarP(&logLevel, "log-level", "l", "", "log level (debug, info, warn, error); overrides the config file")
	rootCmd.PersistentFlags().StringSliceVarP(&configPaths, "config", "c", nil, "configuration files or directories")
	rootCmd.PersistentFlags().StringVar(&pageURL, "page-url", "", "URL of the page the backend is served from; overrides the config file")
	rootCmd.PersistentFlags().StringVar(&credentialsPath, "credentials", "", "credential database path; overrides the config file")
}

func setupLogger(level string) (*zap.Logger, error) {
	if debug {
		level = "debug"
	} else if verbose && level == "info" {
		level = "debug"
	}

	var zapLevel zap.AtomicLevel
	switch strings.ToLower(level) {
	case "debug":
		zapLevel = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "warn", "warning":
		zapLevel = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		zapLevel = zap.NewAtomicLevelAt(zap.ErrorLevel)
	default:
		zapLevel = zap.NewAtomicLevelAt(zap.InfoLevel)
	}

	config := zap.NewProductionConfig()
	config.Level = zapLevel
	config.Development = debug

	return config.Build()
}
