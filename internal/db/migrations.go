package db

import (
	"fmt"
	"strings"

	"github.com/goran-ethernal/ChainSyncer/internal/logger"
	"github.com/jmoiron/sqlx"
	migrate "github.com/rubenv/sql-migrate"
)

const (
	UpDownSeparator     = "-- +migrate Up"
	downMarker          = "-- +migrate Down"
	dbPrefixReplacer    = "/*dbprefix*/"
	NoLimitMigrations   = 0 // indicate that there is no limit on the number of migrations to run
	migrationDirections = 2
)

// Migration is a single migration script. SQLite and PostgreSQL variants may differ;
// PostgresSQL falls back to SQL when empty.
type Migration struct {
	ID          string
	SQL         string
	PostgresSQL string
	Prefix      string
}

// Dialect returns the sql-migrate dialect of a database handle.
func Dialect(db *sqlx.DB) string {
	if db.DriverName() == DriverPostgres {
		return "postgres"
	}

	return "sqlite3"
}

// RunMigrations will execute pending migrations if needed to keep
// the database updated with the latest changes.
func RunMigrations(log *logger.Logger, db *sqlx.DB, migrations []Migration) error {
	return RunMigrationsExtended(log, db, migrations, migrate.Up, NoLimitMigrations)
}

// RunMigrationsExtended is an extended version of RunMigrations that allows
// dir: can be migrate.Up or migrate.Down
// maxMigrations: Will apply at most `max` migrations. Pass 0 for no limit (or use Exec)
func RunMigrationsExtended(log *logger.Logger,
	db *sqlx.DB,
	migrations []Migration,
	dir migrate.MigrationDirection,
	maxMigrations int) error {
	dialect := Dialect(db)
	source := &migrate.MemoryMigrationSource{Migrations: []*migrate.Migration{}}

	// In case of partial execution we ignore the base migrations
	if maxMigrations != NoLimitMigrations {
		migrate.SetIgnoreUnknown(true)
	}

	for _, m := range migrations {
		script := m.SQL
		if dialect == "postgres" && m.PostgresSQL != "" {
			script = m.PostgresSQL
		}

		up, down, err := splitMigration(strings.ReplaceAll(script, dbPrefixReplacer, m.Prefix))
		if err != nil {
			return fmt.Errorf("migration %s: %w", m.ID, err)
		}

		source.Migrations = append(source.Migrations, &migrate.Migration{
			Id:   m.Prefix + m.ID,
			Up:   []string{up},
			Down: []string{down},
		})
	}

	ids := make([]string, 0, len(source.Migrations))
	for _, m := range source.Migrations {
		ids = append(ids, m.Id)
	}
	list := strings.Join(ids, ", ")

	log.Debugf("running %s migrations: (max %d/%d) migrations: %s", dialect, maxMigrations, len(ids), list)

	n, err := migrate.ExecMax(db.DB, dialect, source, dir, maxMigrations)
	if err != nil {
		return fmt.Errorf("error executing migration (max %d/%d) migrations: %s . Err: %w",
			maxMigrations, len(ids), list, err)
	}

	log.Infof("successfully ran %d migrations from migrations: %s", n, list)
	return nil
}

// splitMigration separates a script into its Up and Down sections.
// The Down section comes first, optionally introduced by its marker.
func splitMigration(script string) (up, down string, err error) {
	parts := strings.Split(script, UpDownSeparator)
	if len(parts) < migrationDirections {
		return "", "", fmt.Errorf("missing '%s' separator", UpDownSeparator)
	}

	down = parts[0]
	if idx := strings.Index(down, downMarker); idx != -1 {
		down = down[idx+len(downMarker):]
	}

	return strings.TrimSpace(parts[1]), strings.TrimSpace(down), nil
}
