package main

import (
	"fmt"
	"os"

	// Import example handlers to register their callbacks
	_ "github.com/goran-ethernal/ChainSyncer/examples/handlers/tokens"
	internalconfig "github.com/goran-ethernal/ChainSyncer/internal/config"
	"github.com/goran-ethernal/ChainSyncer/internal/logger"
	"github.com/goran-ethernal/ChainSyncer/pkg/config"
	"github.com/spf13/cobra"
)

const (
	version = "0.1.0"
	banner  = `
╔═══════════════════════════════════════════╗
║           ChainSyncer v%s              ║
║     Indexer API Synchronization Engine    ║
╚═══════════════════════════════════════════╝
`
)

var (
	configPath string
	envFile    string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "chainsyncer",
	Short: "ChainSyncer - indexer API synchronization engine",
	Long: `ChainSyncer keeps user defined indexes in sync with one or more indexer APIs.
Indexes synchronize over REST, switch to realtime subscriptions once caught up and
revert their persisted effects on chain reorganizations.`,
	Version:       version,
	SilenceUsage:  true,
	RunE:          runSyncer,
	SilenceErrors: false,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "path to configuration file")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", "", "optional .env file loaded before the configuration")

	rootCmd.AddCommand(listCmd, schemaCmd, rollbackCmd, versionCmd)
}

func loadConfig() (*config.Config, error) {
	if envFile != "" {
		if err := internalconfig.LoadEnvFile(envFile); err != nil {
			return nil, err
		}
	}

	cfg, err := internalconfig.LoadFromFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return cfg, nil
}

// componentLogger creates a component logger, tolerating a missing logging section.
func componentLogger(cfg *config.Config, component string) *logger.Logger {
	if cfg.Logging == nil {
		return logger.NewComponentLoggerFromConfig(component, nil)
	}

	return logger.NewComponentLoggerFromConfig(component, cfg.Logging)
}
