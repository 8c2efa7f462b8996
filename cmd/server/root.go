package main

import (
	"fmt"
	"os"

	"github.com/datalog-plotter/backend/internal/config"
	"github.com/datalog-plotter/backend/internal/logger"
	"github.com/spf13/cobra"
)

// Version info (set during build)
var (
	Version   = "dev"
	BuildTime = "unknown"
)

var (
	configPath       string
	loadedConfigPath string
	appConfig        *config.AppConfig
)

var RootCmd = &cobra.Command{
	Use:   "server",
	Short: "Datalog pull plotter backend",
	Long: `Loads engine datalogs exported as CSV, splits them into wide-open
throttle pulls and serves the pulls to plotting clients over HTTP.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := resolveConfig(cmd)
		if err != nil {
			return err
		}
		appConfig = cfg

		logger.Init(cfg.Logging)
		cmd.SetContext(logger.WithContext(cmd.Context(), logger.Get(nil)))
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logger.Sync()
	},
}

func init() {
	RootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "",
		fmt.Sprintf("Path to configuration file (default: %s)", config.DefaultConfigPath))

	RootCmd.AddCommand(serveCmd)
	RootCmd.AddCommand(pullsCmd)
	RootCmd.AddCommand(versionCmd)
}

// resolveConfig loads the config file. Only serve creates a missing
// default file; one-shot commands fall back to built-in defaults.
func resolveConfig(cmd *cobra.Command) (*config.AppConfig, error) {
	path := configPath
	if path == "" {
		path = config.DefaultConfigPath
	}

	if _, err := os.Stat(path); err != nil && cmd.Name() != "serve" {
		if configPath != "" {
			return nil, fmt.Errorf("config file %s: %w", path, err)
		}
		loadedConfigPath = ""
		cfg := config.DefaultConfig()
		cfg.ApplyEnvironmentOverrides()
		return cfg, nil
	}

	cfg, err := config.LoadConfig(path)
	if err != nil {
		return nil, err
	}
	loadedConfigPath = path
	return cfg, nil
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "datalog-plotter %s (built %s)\n", Version, BuildTime)
	},
}
