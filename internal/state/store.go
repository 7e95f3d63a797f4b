// Package state persists index states and the undo log used to revert handler writes on rollbacks.
package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/goran-ethernal/ChainSyncer/internal/db"
	"github.com/goran-ethernal/ChainSyncer/internal/logger"
	"github.com/goran-ethernal/ChainSyncer/internal/migrations"
	"github.com/goran-ethernal/ChainSyncer/pkg/models"
	"github.com/jmoiron/sqlx"
	"github.com/russross/meddler"
)

const indexColumns = "name, kind, status, level, config_hash, template, template_values, updated_at"

// Store is the transactional state database shared by all indexes.
type Store struct {
	db            *sqlx.DB
	meddler       *meddler.Database
	maintenance   db.Maintenance
	rollbackDepth uint64
	log           *logger.Logger
}

// NewStore runs the state migrations followed by any extra migrations (handler models)
// and returns a store keeping undo records for the last rollbackDepth levels.
func NewStore(
	database *sqlx.DB,
	maintenance db.Maintenance,
	rollbackDepth uint64,
	log *logger.Logger,
	extra ...db.Migration,
) (*Store, error) {
	if maintenance == nil {
		maintenance = &db.NoOpMaintenance{}
	}

	stateMigrations, err := migrations.State()
	if err != nil {
		return nil, err
	}
	if err := db.RunMigrations(log, database, append(stateMigrations, extra...)); err != nil {
		return nil, fmt.Errorf("failed to migrate state database: %w", err)
	}

	return &Store{
		db:            database,
		meddler:       db.Meddler(database),
		maintenance:   maintenance,
		rollbackDepth: rollbackDepth,
		log:           log,
	}, nil
}

// RollbackDepth returns the number of levels covered by the undo log.
func (s *Store) RollbackDepth() uint64 {
	return s.rollbackDepth
}

// GetIndex returns the persisted state of an index, or nil if it was never saved.
func (s *Store) GetIndex(ctx context.Context, name string) (*models.IndexState, error) {
	var state models.IndexState
	err := s.meddler.QueryRow(s.db, &state, s.db.Rebind("SELECT "+indexColumns+" FROM indexes WHERE name = ?"), name)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load index %s: %w", name, err)
	}

	return &state, nil
}

// ListIndexes returns every persisted index state ordered by name.
func (s *Store) ListIndexes(ctx context.Context) ([]*models.IndexState, error) {
	var states []*models.IndexState
	if err := s.meddler.QueryAll(s.db, &states, "SELECT "+indexColumns+" FROM indexes ORDER BY name"); err != nil {
		return nil, fmt.Errorf("failed to list indexes: %w", err)
	}

	return states, nil
}

// SaveIndex creates or replaces the persisted state of an index.
func (s *Store) SaveIndex(ctx context.Context, state *models.IndexState) error {
	unlock := s.maintenance.AcquireOperationLock()
	defer unlock()

	state.UpdatedAt = time.Now().UTC().Unix()

	query := s.db.Rebind(`INSERT INTO indexes (` + indexColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (name) DO UPDATE SET
			kind = excluded.kind,
			status = excluded.status,
			level = excluded.level,
			config_hash = excluded.config_hash,
			template = excluded.template,
			template_values = excluded.template_values,
			updated_at = excluded.updated_at`)

	_, err := s.db.ExecContext(ctx, query,
		state.Name, state.Kind, state.Status, state.Level,
		state.ConfigHash, state.Template, state.TemplateValues, state.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save index %s: %w", state.Name, err)
	}

	return nil
}

// SetLevel moves the persisted level of an index without running a handler transaction.
func (s *Store) SetLevel(ctx context.Context, name string, level uint64) error {
	unlock := s.maintenance.AcquireOperationLock()
	defer unlock()

	return s.setLevel(ctx, s.db, name, level)
}

// SetStatus changes the persisted status of an index.
func (s *Store) SetStatus(ctx context.Context, name string, status models.IndexStatus) error {
	unlock := s.maintenance.AcquireOperationLock()
	defer unlock()

	_, err := s.db.ExecContext(ctx, s.db.Rebind("UPDATE indexes SET status = ?, updated_at = ? WHERE name = ?"),
		status, time.Now().UTC().Unix(), name)
	if err != nil {
		return fmt.Errorf("failed to set status of index %s: %w", name, err)
	}

	return nil
}

// DeleteIndex removes the state and undo log of an index. Handler models are left untouched.
func (s *Store) DeleteIndex(ctx context.Context, name string) error {
	unlock := s.maintenance.AcquireOperationLock()
	defer unlock()

	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, tx.Rebind("DELETE FROM model_updates WHERE index_name = ?"), name); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, tx.Rebind("DELETE FROM indexes WHERE name = ?"), name)
		return err
	})
}

// InTransaction runs fn in a database transaction and moves the index to level when it succeeds.
// Writes are recorded in the undo log when level is within rollbackDepth of syncLevel.
func (s *Store) InTransaction(ctx context.Context, index string, level, syncLevel uint64, fn func(tx *Tx) error) error {
	unlock := s.maintenance.AcquireOperationLock()
	defer unlock()

	start := time.Now()
	t := &Tx{
		meddler: s.meddler,
		index:   index,
		level:   level,
		record:  level+s.rollbackDepth > syncLevel,
	}

	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		t.tx = tx
		if err := fn(t); err != nil {
			return err
		}
		return s.setLevel(ctx, tx, index, level)
	})

	TransactionInc(index, err)
	TransactionDurationLog(index, time.Since(start))
	if err != nil {
		return fmt.Errorf("index %s: transaction at level %d failed: %w", index, level, err)
	}

	if t.updates > 0 {
		ModelUpdatesAdd(index, t.updates)
	}

	return nil
}

// Rollback reverts every recorded write of an index above toLevel, newest first,
// and moves the index to toLevel. It returns the number of reverted writes.
func (s *Store) Rollback(ctx context.Context, index string, fromLevel, toLevel uint64) (int, error) {
	if toLevel >= fromLevel {
		return 0, nil
	}
	if fromLevel-toLevel > s.rollbackDepth {
		return 0, fmt.Errorf("%w: index %s from %d to %d, depth %d",
			ErrRollbackDepthExceeded, index, fromLevel, toLevel, s.rollbackDepth)
	}

	unlock := s.maintenance.AcquireOperationLock()
	defer unlock()

	var reverted int
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		var updates []*modelUpdate
		err := s.meddler.QueryAll(tx, &updates,
			tx.Rebind("SELECT * FROM model_updates WHERE index_name = ? AND level > ? ORDER BY id DESC"), index, toLevel)
		if err != nil {
			return fmt.Errorf("failed to load model updates: %w", err)
		}

		for _, u := range updates {
			if err := revert(ctx, tx, u); err != nil {
				return fmt.Errorf("failed to revert %s of %s at level %d: %w", u.Action, u.Table, u.Level, err)
			}
		}

		_, err = tx.ExecContext(ctx, tx.Rebind("DELETE FROM model_updates WHERE index_name = ? AND level > ?"), index, toLevel)
		if err != nil {
			return fmt.Errorf("failed to delete model updates: %w", err)
		}

		reverted = len(updates)
		return s.setLevel(ctx, tx, index, toLevel)
	})
	if err != nil {
		return 0, fmt.Errorf("index %s: rollback from %d to %d failed: %w", index, fromLevel, toLevel, err)
	}

	RevertedUpdatesAdd(index, reverted)
	s.log.Infow("index rolled back", "index", index, "from", fromLevel, "to", toLevel, "reverted", reverted)

	return reverted, nil
}

// PruneUpdates drops undo records of an index below the given level.
func (s *Store) PruneUpdates(ctx context.Context, index string, belowLevel uint64) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		s.db.Rebind("DELETE FROM model_updates WHERE index_name = ? AND level < ?"), index, belowLevel)
	if err != nil {
		return 0, fmt.Errorf("failed to prune model updates of %s: %w", index, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if n > 0 {
		PrunedUpdatesAdd(index, n)
		s.log.Debugf("pruned %d model updates of %s below level %d", n, index, belowLevel)
	}

	return n, nil
}

func (s *Store) setLevel(ctx context.Context, exec sqlx.ExecerContext, name string, level uint64) error {
	_, err := exec.ExecContext(ctx, s.db.Rebind("UPDATE indexes SET level = ?, updated_at = ? WHERE name = ?"),
		level, time.Now().UTC().Unix(), name)
	if err != nil {
		return fmt.Errorf("failed to set level of index %s: %w", name, err)
	}

	return nil
}

func (s *Store) withTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			s.log.Errorf("failed to roll back transaction: %v", rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}
