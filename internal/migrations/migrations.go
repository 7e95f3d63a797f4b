// Package migrations holds the schema of the engine's own state tables.
package migrations

import (
	"embed"
	"fmt"

	"github.com/goran-ethernal/ChainSyncer/internal/db"
)

//go:embed sqlite/*.sql postgres/*.sql
var files embed.FS

var ids = []string{
	"001_indexes.sql",
	"002_model_updates.sql",
}

// State returns the migrations creating the index state and undo log tables.
func State() ([]db.Migration, error) {
	migrations := make([]db.Migration, 0, len(ids))
	for _, id := range ids {
		sqlite, err := files.ReadFile("sqlite/" + id)
		if err != nil {
			return nil, fmt.Errorf("failed to read migration %s: %w", id, err)
		}
		postgres, err := files.ReadFile("postgres/" + id)
		if err != nil {
			return nil, fmt.Errorf("failed to read migration %s: %w", id, err)
		}

		migrations = append(migrations, db.Migration{
			ID:          id,
			SQL:         string(sqlite),
			PostgresSQL: string(postgres),
			Prefix:      "chainsyncer_",
		})
	}

	return migrations, nil
}
