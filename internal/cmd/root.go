package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/runger/singleselect/internal/config"
	"github.com/runger/singleselect/internal/logging"
)

const (
	groupCore  = "core"
	groupSetup = "setup"
)

var (
	configPath string
	logLevel   string

	// Populated by the root PersistentPreRunE.
	appConfig *config.Config
	logger    *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "singleselect",
	Short: "single-select option synchronization from the terminal",
	Long: `singleselect - keep a dropdown's options, selection and bound value in sync
  - resolve a bound value against a static list or a lookup service
  - pick interactively in the terminal
  - serve a SQLite-backed lookup catalog over HTTP and gRPC`,
	SilenceUsage:      true,
	PersistentPreRunE: loadRuntime,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.AddGroup(
		&cobra.Group{ID: groupCore, Title: "Commands:"},
		&cobra.Group{ID: groupSetup, Title: "Setup:"},
	)
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ~/.config/singleselect/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error")

	rootCmd.AddCommand(resolveCmd)
	rootCmd.AddCommand(pickCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(catalogCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}

func loadRuntime(cmd *cobra.Command, _ []string) error {
	path := configPath
	if path == "" {
		path = config.DefaultPaths().ConfigFile()
	}
	cfg, err := config.LoadFromFile(path)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if logLevel != "" {
		if err := cfg.Set("log.level", logLevel); err != nil {
			return err
		}
	}

	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		return err
	}
	appConfig = cfg
	logger = logging.New(&logging.Config{
		Output: cmd.ErrOrStderr(),
		Level:  level,
		Text:   cfg.Log.Format == "text",
	})
	return nil
}

// resolvedConfigPath returns the config file in use.
func resolvedConfigPath() string {
	if configPath != "" {
		return configPath
	}
	return config.DefaultPaths().ConfigFile()
}
