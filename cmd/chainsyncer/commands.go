package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/goran-ethernal/ChainSyncer/internal/common"
	"github.com/goran-ethernal/ChainSyncer/internal/db"
	"github.com/goran-ethernal/ChainSyncer/internal/state"
	"github.com/goran-ethernal/ChainSyncer/pkg/config"
	"github.com/goran-ethernal/ChainSyncer/pkg/handler"
	"github.com/invopop/jsonschema"
	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered handler callbacks",
	Long:  `List all registered callbacks that can be referenced by index handlers in the configuration file.`,
	Run: func(cmd *cobra.Command, _ []string) {
		out := cmd.OutOrStdout()

		fmt.Fprintln(out, "Available callbacks:")
		callbacks := handler.ListRegistered()
		if len(callbacks) == 0 {
			fmt.Fprintln(out, "  (no callbacks registered)")
			return
		}
		for _, name := range callbacks {
			fmt.Fprintf(out, "  - %s\n", name)
		}
	},
}

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Print the JSON schema of the configuration file",
	RunE: func(cmd *cobra.Command, _ []string) error {
		reflector := &jsonschema.Reflector{RequiredFromJSONSchemaTags: true}

		out, err := json.MarshalIndent(reflector.Reflect(&config.Config{}), "", "  ")
		if err != nil {
			return fmt.Errorf("failed to encode schema: %w", err)
		}

		fmt.Fprintln(cmd.OutOrStdout(), string(out))
		return nil
	},
}

var (
	rollbackIndex string
	rollbackLevel uint64
)

var rollbackCmd = &cobra.Command{
	Use:   "rollback",
	Short: "Revert an index to a lower level while the syncer is stopped",
	Long: `Revert every model write of an index above the target level and move the index there.
Only levels still covered by the rollback depth can be reverted.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		reverted, err := rollback(cmd.Context(), cfg, rollbackIndex, rollbackLevel)
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Index %s rolled back to level %d, %d write(s) reverted\n",
			rollbackIndex, rollbackLevel, reverted)
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, _ []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "chainsyncer %s\n", version)
	},
}

func init() {
	rollbackCmd.Flags().StringVarP(&rollbackIndex, "index", "i", "", "name of the index to roll back")
	rollbackCmd.Flags().Uint64VarP(&rollbackLevel, "to-level", "l", 0, "level to revert the index to")
	_ = rollbackCmd.MarkFlagRequired("index")
	_ = rollbackCmd.MarkFlagRequired("to-level")
}

func rollback(ctx context.Context, cfg *config.Config, name string, toLevel uint64) (int, error) {
	if _, ok := cfg.Indexes[name]; !ok {
		return 0, fmt.Errorf("index '%s' is not configured", name)
	}

	database, err := db.Open(cfg.Database)
	if err != nil {
		return 0, fmt.Errorf("failed to open database: %w", err)
	}
	defer database.Close()

	store, err := state.NewStore(
		database,
		nil,
		cfg.Advanced.RollbackDepth,
		componentLogger(cfg, common.ComponentStateStore),
		handler.Migrations()...,
	)
	if err != nil {
		return 0, err
	}

	st, err := store.GetIndex(ctx, name)
	if err != nil {
		return 0, err
	}
	if st == nil {
		return 0, errors.New("index has no persisted state")
	}
	if toLevel >= st.Level {
		return 0, fmt.Errorf("index is at level %d, nothing to revert above %d", st.Level, toLevel)
	}

	return store.Rollback(ctx, name, st.Level, toLevel)
}
