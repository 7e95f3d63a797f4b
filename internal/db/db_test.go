package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/goran-ethernal/ChainSyncer/internal/logger"
	"github.com/goran-ethernal/ChainSyncer/pkg/config"
	"github.com/jmoiron/sqlx"
	migrate "github.com/rubenv/sql-migrate"
	"github.com/russross/meddler"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T, journal string, rows int) (*sql.DB, string) {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")

	dbConfig := config.DatabaseConfig{Path: dbPath, JournalMode: journal}
	dbConfig.ApplyDefaults()

	sqlDB, err := NewSQLiteDBFromConfig(dbConfig)
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	_, err = sqlDB.Exec(`CREATE TABLE IF NOT EXISTS test_table (id INTEGER PRIMARY KEY, value TEXT);`)
	require.NoError(t, err)

	for i := range rows {
		_, err = sqlDB.Exec(`INSERT INTO test_table (value) VALUES (?);`, fmt.Sprintf("value_%d", i))
		require.NoError(t, err)
	}

	return sqlDB, dbPath
}

func TestOpen(t *testing.T) {
	t.Run("sqlite", func(t *testing.T) {
		cfg := config.DatabaseConfig{Path: filepath.Join(t.TempDir(), "state.db")}
		cfg.ApplyDefaults()

		db, err := Open(cfg)
		require.NoError(t, err)
		defer db.Close()

		require.Equal(t, DriverSQLite, db.DriverName())
		require.Equal(t, "sqlite3", Dialect(db))
		require.Equal(t, "SELECT * FROM t WHERE a = ?", db.Rebind("SELECT * FROM t WHERE a = ?"))
		require.NoError(t, db.Ping())
	})

	t.Run("postgres dialect", func(t *testing.T) {
		db := sqlx.NewDb(&sql.DB{}, DriverPostgres)
		require.Equal(t, "postgres", Dialect(db))
		require.Equal(t, "SELECT * FROM t WHERE a = $1 AND b = $2", db.Rebind("SELECT * FROM t WHERE a = ? AND b = ?"))
	})

	t.Run("unsupported driver", func(t *testing.T) {
		_, err := Open(config.DatabaseConfig{Driver: "mysql"})
		require.ErrorContains(t, err, "unsupported database driver 'mysql'")
	})
}

func TestRunMigrations(t *testing.T) {
	cfg := config.DatabaseConfig{Path: filepath.Join(t.TempDir(), "state.db")}
	cfg.ApplyDefaults()

	db, err := Open(cfg)
	require.NoError(t, err)
	defer db.Close()

	migrations := []Migration{
		{
			ID: "001_items.sql",
			SQL: `-- +migrate Down
DROP TABLE IF EXISTS /*dbprefix*/items;

-- +migrate Up
CREATE TABLE /*dbprefix*/items (id INTEGER PRIMARY KEY AUTOINCREMENT, name TEXT NOT NULL);`,
			PostgresSQL: `-- +migrate Down
DROP TABLE IF EXISTS /*dbprefix*/items;

-- +migrate Up
CREATE TABLE /*dbprefix*/items (id BIGSERIAL PRIMARY KEY, name TEXT NOT NULL);`,
			Prefix: "test_",
		},
	}

	log := logger.NewNopLogger()
	require.NoError(t, RunMigrations(log, db, migrations))
	// idempotent
	require.NoError(t, RunMigrations(log, db, migrations))

	_, err = db.Exec(`INSERT INTO test_items (name) VALUES (?)`, "a")
	require.NoError(t, err)

	require.NoError(t, RunMigrationsExtended(log, db, migrations, migrate.Down, NoLimitMigrations))
	_, err = db.Exec(`INSERT INTO test_items (name) VALUES (?)`, "a")
	require.Error(t, err)

	err = RunMigrations(log, db, []Migration{{ID: "broken.sql", SQL: "CREATE TABLE x (id INTEGER);"}})
	require.ErrorContains(t, err, "missing '-- +migrate Up' separator")
}

func TestSplitMigration(t *testing.T) {
	up, down, err := splitMigration("-- +migrate Down\nDROP TABLE a;\n-- +migrate Up\nCREATE TABLE a (id INTEGER);\n")
	require.NoError(t, err)
	require.Equal(t, "CREATE TABLE a (id INTEGER);", up)
	require.Equal(t, "DROP TABLE a;", down)

	up, down, err = splitMigration("DROP TABLE a;\n-- +migrate Up\nCREATE TABLE a (id INTEGER);")
	require.NoError(t, err)
	require.Equal(t, "CREATE TABLE a (id INTEGER);", up)
	require.Equal(t, "DROP TABLE a;", down)
}

func TestVacuum_Modes(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name        string
		journalMode string
	}{
		{name: "WAL", journalMode: "WAL"},
		{name: "NonWAL", journalMode: "TRUNCATE"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			db, dbPath := setupTestDB(t, tc.journalMode, 2000)

			_, err := db.Exec(`DELETE FROM test_table WHERE id % 2 = 0`)
			require.NoError(t, err)

			initialSize, err := DBTotalSize(dbPath)
			require.NoError(t, err)

			require.NoError(t, Vacuum(db))

			finalSize, err := DBTotalSize(dbPath)
			require.NoError(t, err)

			require.LessOrEqual(t, finalSize, initialSize)
		})
	}
}

func TestDBTotalSize(t *testing.T) {
	testCases := []struct {
		name       string
		files      map[string]string // suffix -> content
		expectSize int64
	}{
		{
			name:       "MainOnly",
			files:      map[string]string{"": "main-db-content"},
			expectSize: int64(len("main-db-content")),
		},
		{
			name:       "WithWALAndSHM",
			files:      map[string]string{"": "main-db", "-wal": "wal-content", "-shm": "shm-content"},
			expectSize: int64(len("main-db") + len("wal-content") + len("shm-content")),
		},
		{
			name:       "MissingFiles",
			files:      nil,
			expectSize: 0,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			mainPath := filepath.Join(t.TempDir(), "main.db")
			for suffix, content := range tc.files {
				require.NoError(t, os.WriteFile(mainPath+suffix, []byte(content), 0o600))
			}

			size, err := DBTotalSize(mainPath)
			require.NoError(t, err)
			require.Equal(t, tc.expectSize, size)
		})
	}
}

type balanceRow struct {
	ID      int64            `meddler:"id,pk"`
	Amount  decimal.Decimal  `meddler:"amount,decimal"`
	Pending *decimal.Decimal `meddler:"pending,decimal"`
}

func TestDecimalMeddler(t *testing.T) {
	db, _ := setupTestDB(t, "WAL", 0)

	_, err := db.Exec(`CREATE TABLE balances (id INTEGER PRIMARY KEY, amount TEXT, pending TEXT)`)
	require.NoError(t, err)

	huge, err := decimal.NewFromString("123456789012345678901234567890.000000000000000001")
	require.NoError(t, err)

	row := &balanceRow{Amount: huge}
	require.NoError(t, meddler.Insert(db, "balances", row))

	var loaded balanceRow
	require.NoError(t, meddler.Load(db, "balances", &loaded, row.ID))
	require.True(t, huge.Equal(loaded.Amount))
	require.Nil(t, loaded.Pending)

	pending := decimal.NewFromInt(-5)
	loaded.Pending = &pending
	require.NoError(t, meddler.Update(db, "balances", &loaded))

	var reloaded balanceRow
	require.NoError(t, meddler.Load(db, "balances", &reloaded, row.ID))
	require.NotNil(t, reloaded.Pending)
	require.Equal(t, "-5", reloaded.Pending.String())

	_, err = DecimalMeddler{}.PreWrite("nope")
	require.Error(t, err)
}

func TestMeddlerDialect(t *testing.T) {
	require.Same(t, meddler.PostgreSQL, Meddler(sqlx.NewDb(&sql.DB{}, DriverPostgres)))
	require.Same(t, meddler.SQLite, Meddler(sqlx.NewDb(&sql.DB{}, DriverSQLite)))
}
