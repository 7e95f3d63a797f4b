// Package index implements the per-index synchronization state machine: historical backfill
// through paginated fetch channels, realtime processing of pushed levels and rollbacks.
package index

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goran-ethernal/ChainSyncer/internal/common"
	"github.com/goran-ethernal/ChainSyncer/internal/fetcher"
	"github.com/goran-ethernal/ChainSyncer/internal/logger"
	"github.com/goran-ethernal/ChainSyncer/internal/matcher"
	"github.com/goran-ethernal/ChainSyncer/internal/reorg"
	"github.com/goran-ethernal/ChainSyncer/internal/state"
	pkgds "github.com/goran-ethernal/ChainSyncer/pkg/datasource"
	"github.com/goran-ethernal/ChainSyncer/pkg/handler"
	"github.com/goran-ethernal/ChainSyncer/pkg/models"
	pkgreorg "github.com/goran-ethernal/ChainSyncer/pkg/reorg"
)

// ErrAlreadyInitialized is returned when InitializeState is called twice.
var ErrAlreadyInitialized = errors.New("index state is already initialized")

// Store persists index states and runs level transactions.
type Store interface {
	GetIndex(ctx context.Context, name string) (*models.IndexState, error)
	SaveIndex(ctx context.Context, state *models.IndexState) error
	SetLevel(ctx context.Context, name string, level uint64) error
	InTransaction(ctx context.Context, index string, level, syncLevel uint64, fn func(tx *state.Tx) error) error
}

// Runner is the kind independent surface of an index used by the dispatcher.
type Runner interface {
	Name() string
	Kind() models.IndexKind
	Bounded() bool
	Datasources() []pkgds.Datasource
	Subscriptions() []models.Subscription
	InitializeState(ctx context.Context, persisted *models.IndexState) error
	Subscribe()
	Ready() bool
	SyncLevel() (uint64, error)
	Process(ctx context.Context) (bool, error)
	PushRollback(msg models.RollbackMessage)
	MarkRolledBack()
	State() models.IndexState
}

// Config holds everything an index needs besides its kind specific parts.
type Config struct {
	Name           string
	Kind           models.IndexKind
	ConfigHash     string
	Template       string
	TemplateValues string

	// FirstLevel is the first level processed; LastLevel bounds the index when non-zero
	FirstLevel uint64
	LastLevel  uint64

	Datasources         []pkgds.Datasource
	LastMileDatasources []pkgds.Datasource

	ReadaheadLimit    int
	LastMileTrigger   uint64
	LevelsLeftTrigger uint64
}

// Index synchronizes one configured index: new -> syncing -> realtime, or disabled for bounded indexes.
// Process is driven by a single goroutine; realtime pushes and State may be called from any goroutine.
type Index[T models.Item] struct {
	cfg       Config
	source    Source[T]
	matcher   matcher.Matcher[T]
	callbacks []handler.Callback
	store     Store
	hook      pkgreorg.Hook
	log       *logger.Logger

	subscriptions []models.Subscription

	mu    sync.RWMutex
	state *models.IndexState

	queue      queue[T]
	rolledBack atomic.Bool
}

var _ Runner = (*Index[models.HeadBlockData])(nil)

// New creates an index. callbacks are indexed by handler position, the same positions the matcher reports.
func New[T models.Item](
	cfg Config,
	source Source[T],
	m matcher.Matcher[T],
	callbacks []handler.Callback,
	store Store,
	hook pkgreorg.Hook,
	log *logger.Logger,
) *Index[T] {
	return &Index[T]{
		cfg:           cfg,
		source:        source,
		matcher:       m,
		callbacks:     callbacks,
		store:         store,
		hook:          hook,
		log:           log.WithFields("index", cfg.Name),
		subscriptions: source.Subscriptions(),
	}
}

func (i *Index[T]) Name() string                    { return i.cfg.Name }
func (i *Index[T]) Kind() models.IndexKind          { return i.cfg.Kind }
func (i *Index[T]) Datasources() []pkgds.Datasource { return i.cfg.Datasources }

// Bounded reports whether the index stops at a fixed last level.
func (i *Index[T]) Bounded() bool { return i.cfg.LastLevel != 0 }

// Subscriptions returns the realtime topics the index depends on. Bounded indexes need none.
func (i *Index[T]) Subscriptions() []models.Subscription {
	if i.Bounded() {
		return nil
	}
	return i.subscriptions
}

// State returns a copy of the current index state.
func (i *Index[T]) State() models.IndexState {
	i.mu.RLock()
	defer i.mu.RUnlock()

	if i.state == nil {
		return models.IndexState{Name: i.cfg.Name, Kind: i.cfg.Kind, Status: models.IndexStatusNew}
	}
	return *i.state
}

// InitializeState adopts a persisted state, or creates a new one when persisted is nil.
// A persisted state created from a different configuration is rejected.
func (i *Index[T]) InitializeState(ctx context.Context, persisted *models.IndexState) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.state != nil {
		return fmt.Errorf("index %s: %w", i.cfg.Name, ErrAlreadyInitialized)
	}

	if persisted == nil {
		level := i.cfg.FirstLevel
		if level > 0 {
			level--
		}

		st := &models.IndexState{
			Name:           i.cfg.Name,
			Kind:           i.cfg.Kind,
			Status:         models.IndexStatusNew,
			Level:          level,
			ConfigHash:     i.cfg.ConfigHash,
			Template:       i.cfg.Template,
			TemplateValues: i.cfg.TemplateValues,
		}
		if err := i.store.SaveIndex(ctx, st); err != nil {
			return fmt.Errorf("index %s: failed to create state: %w", i.cfg.Name, err)
		}

		i.state = st
		indexLevel.WithLabelValues(i.cfg.Name).Set(float64(level))
		i.log.Infow("index state created", "level", level)
		return nil
	}

	if persisted.Kind != i.cfg.Kind {
		return fmt.Errorf("index %s: stored kind '%s' differs from configured kind '%s'", i.cfg.Name, persisted.Kind, i.cfg.Kind)
	}
	if persisted.ConfigHash != i.cfg.ConfigHash {
		return fmt.Errorf("index %s: %w", i.cfg.Name, state.ErrConfigHashMismatch)
	}

	st := *persisted
	i.state = &st
	indexLevel.WithLabelValues(i.cfg.Name).Set(float64(st.Level))
	i.log.Infow("index state loaded", "status", st.Status, "level", st.Level)

	return nil
}

// Subscribe registers the index subscriptions and realtime receivers on its datasources.
// Bounded indexes never process realtime data and subscribe to nothing.
func (i *Index[T]) Subscribe() {
	if i.Bounded() {
		return
	}

	for _, ds := range i.cfg.Datasources {
		ds.AddSubscriptions(i.subscriptions...)
		i.source.Listen(ds, i.PushRealtimeMessage)
		ds.CallOnRollback(func(_ context.Context, _ pkgds.Datasource, typ models.MessageType, fromLevel, toLevel uint64) error {
			if typ == i.cfg.Kind.MessageType() {
				i.PushRollback(models.RollbackMessage{Type: typ, FromLevel: fromLevel, ToLevel: toLevel})
			}
			return nil
		})
	}
}

// PushRealtimeMessage enqueues realtime items, one queue entry per level. It never blocks on processing.
func (i *Index[T]) PushRealtimeMessage(items []T) {
	if i.Bounded() || len(items) == 0 {
		return
	}

	start := 0
	for n := 1; n <= len(items); n++ {
		if n < len(items) && items[n].GetLevel() == items[start].GetLevel() {
			continue
		}

		batch := models.LevelBatch[T]{Level: items[start].GetLevel(), Items: items[start:n]}
		size := i.queue.push(queueItem[T]{batch: &batch})
		queueLength.WithLabelValues(i.cfg.Name).Set(float64(size))
		start = n
	}
}

// PushRollback enqueues a rollback request behind every realtime message received before it.
func (i *Index[T]) PushRollback(msg models.RollbackMessage) {
	size := i.queue.push(queueItem[T]{rollback: &msg})
	queueLength.WithLabelValues(i.cfg.Name).Set(float64(size))
}

// MarkRolledBack tells the index its persisted level was changed behind its back.
// The level is reloaded from storage on the next Process call.
func (i *Index[T]) MarkRolledBack() {
	i.rolledBack.Store(true)
}

// Ready reports whether the sync level of every subscription is known.
func (i *Index[T]) Ready() bool {
	if i.Bounded() {
		return true
	}
	_, err := i.SyncLevel()
	return err == nil
}

// SyncLevel returns the highest sync level over the index subscriptions.
// A subscription without a known sync level is a framework error.
func (i *Index[T]) SyncLevel() (uint64, error) {
	if len(i.subscriptions) == 0 {
		return 0, common.NewFrameworkError(i.cfg.Name, "index has no subscriptions")
	}

	var level uint64
	for _, sub := range i.subscriptions {
		known := false
		for _, ds := range i.cfg.Datasources {
			if l, ok := ds.GetSyncLevel(sub); ok {
				known = true
				level = max(level, l)
			}
		}
		if !known {
			return 0, common.NewFrameworkError(i.cfg.Name, "sync level of subscription '%s' is unknown", sub)
		}
	}

	return level, nil
}

// Process does one unit of work and reports whether anything was done.
// Framework errors move an active index to the failed status.
func (i *Index[T]) Process(ctx context.Context) (bool, error) {
	worked, err := i.process(ctx)
	if err != nil && common.IsFrameworkError(err) && i.initialized() && i.State().Status != models.IndexStatusDisabled {
		if statusErr := i.saveStatus(ctx, models.IndexStatusFailed, i.level()); statusErr != nil {
			i.log.Errorw("failed to persist failed status", "error", statusErr)
		}
	}
	return worked, err
}

func (i *Index[T]) process(ctx context.Context) (bool, error) {
	if !i.initialized() {
		return false, common.NewFrameworkError(i.cfg.Name, "processing an index without state")
	}

	st := i.State()
	if st.Status == models.IndexStatusDisabled {
		return false, common.NewFrameworkError(i.cfg.Name, "processing a disabled index")
	}

	if i.rolledBack.CompareAndSwap(true, false) {
		if err := i.refreshLevel(ctx); err != nil {
			i.rolledBack.Store(true)
			return false, err
		}
	}

	if i.Bounded() {
		if err := i.synchronize(ctx, i.cfg.LastLevel); err != nil {
			return true, err
		}
		if err := i.saveStatus(ctx, models.IndexStatusDisabled, i.cfg.LastLevel); err != nil {
			return true, err
		}
		i.log.Infow("index reached its last level", "level", i.cfg.LastLevel)
		return true, nil
	}

	syncLevel, err := i.SyncLevel()
	if err != nil {
		if i.negotiating() {
			i.log.Debugw("waiting for sync levels of a reconnecting datasource", "error", err)
			return false, nil
		}
		return false, err
	}

	if i.level() < syncLevel {
		if dropped := i.queue.clear(); dropped > 0 {
			i.log.Debugw("realtime queue superseded by backfill", "dropped", dropped)
		}
		queueLength.WithLabelValues(i.cfg.Name).Set(0)
		return true, i.synchronize(ctx, syncLevel)
	}

	if i.queue.len() > 0 {
		return true, i.processQueue(ctx, syncLevel)
	}

	return false, nil
}

// synchronize backfills the index up to syncLevel and moves it to realtime.
func (i *Index[T]) synchronize(ctx context.Context, syncLevel uint64) error {
	level := i.level()

	switch {
	case level == syncLevel:
		if st := i.State(); st.Status != models.IndexStatusRealtime {
			return i.saveStatus(ctx, models.IndexStatusRealtime, level)
		}
		return nil
	case level > syncLevel:
		return common.NewFrameworkError(i.cfg.Name, "index level %d is above sync level %d", level, syncLevel)
	}

	if err := i.saveStatus(ctx, models.IndexStatusSyncing, level); err != nil {
		return err
	}
	syncLevelGauge.WithLabelValues(i.cfg.Name).Set(float64(syncLevel))

	start := time.Now()
	i.log.Infow("synchronizing", "from", level+1, "to", syncLevel)

	for _, r := range i.plan(level, syncLevel) {
		if err := i.fetchRange(ctx, r, syncLevel); err != nil {
			return err
		}
	}

	if err := i.saveStatus(ctx, models.IndexStatusRealtime, syncLevel); err != nil {
		return err
	}
	i.log.Infow("index synchronized", "level", syncLevel, "duration", time.Since(start))

	return nil
}

// fetchRange is a level range served by one group of datasources.
type fetchRange struct {
	datasources []pkgds.Datasource
	first       uint64
	last        uint64
	lastMile    bool
}

// plan splits (level, syncLevel] between primary and last mile datasources. The primary datasources stop
// LevelsLeftTrigger levels before syncLevel; a gap of at most LastMileTrigger levels is served by the last
// mile datasources alone.
func (i *Index[T]) plan(level, syncLevel uint64) []fetchRange {
	primary := fetchRange{datasources: i.cfg.Datasources, first: level + 1, last: syncLevel}
	if len(i.cfg.LastMileDatasources) == 0 {
		return []fetchRange{primary}
	}

	lastMile := fetchRange{datasources: i.cfg.LastMileDatasources, first: level + 1, last: syncLevel, lastMile: true}
	if syncLevel-level <= i.cfg.LastMileTrigger || syncLevel-level <= i.cfg.LevelsLeftTrigger {
		return []fetchRange{lastMile}
	}

	primary.last = syncLevel - i.cfg.LevelsLeftTrigger
	lastMile.first = primary.last + 1

	return []fetchRange{primary, lastMile}
}

func (i *Index[T]) fetchRange(ctx context.Context, r fetchRange, syncLevel uint64) error {
	log := i.log.WithFields("first_level", r.first, "last_level", r.last, "last_mile", r.lastMile)

	buffer := fetcher.NewLevelBuffer[T]()
	channels, err := i.source.Channels(ctx, buffer, r.datasources, r.first, r.last, log)
	if err != nil {
		return fmt.Errorf("index %s: failed to create fetch channels: %w", i.cfg.Name, err)
	}

	f := fetcher.NewDataFetcher(i.cfg.Name, buffer, channels, log)
	return f.FetchByLevelWithReadahead(ctx, i.cfg.ReadaheadLimit, func(batch models.LevelBatch[T]) error {
		return i.processLevelData(ctx, batch, syncLevel, modeSync)
	})
}

// processLevelData runs the matched callbacks of a level in one transaction and moves the index to it.
func (i *Index[T]) processLevelData(ctx context.Context, batch models.LevelBatch[T], syncLevel uint64, mode string) error {
	if level := i.level(); batch.Level <= level {
		return common.NewFrameworkError(i.cfg.Name, "batch level %d is not above index level %d", batch.Level, level)
	}

	matches := i.matcher.Match(batch.Items)
	if len(matches) == 0 {
		if err := i.store.SetLevel(ctx, i.cfg.Name, batch.Level); err != nil {
			return fmt.Errorf("index %s: failed to set level %d: %w", i.cfg.Name, batch.Level, err)
		}
		i.updateLevel(batch.Level)
		levelProcessed(i.cfg.Name, mode, batch.Level, nil)
		return nil
	}

	calls := make([]string, 0, len(matches))
	err := i.store.InTransaction(ctx, i.cfg.Name, batch.Level, syncLevel, func(tx *state.Tx) error {
		hctx := &handler.Context{
			Index:  i.cfg.Name,
			Level:  batch.Level,
			Logger: i.log,
			Tx:     tx,
		}

		for _, m := range matches {
			if m.Handler < 0 || m.Handler >= len(i.callbacks) || i.callbacks[m.Handler] == nil {
				return common.NewFrameworkError(i.cfg.Name, "no callback for handler %d", m.Handler)
			}
			if err := i.callbacks[m.Handler](ctx, hctx, m.Args); err != nil {
				return fmt.Errorf("callback %s: %w", m.Callback, err)
			}
			calls = append(calls, m.Callback)
		}
		return nil
	})
	if err != nil {
		return err
	}

	i.updateLevel(batch.Level)
	levelProcessed(i.cfg.Name, mode, batch.Level, calls)
	i.log.Debugf("level %d processed with %d callbacks", batch.Level, len(calls))

	return nil
}

// processQueue drains realtime messages in arrival order.
func (i *Index[T]) processQueue(ctx context.Context, syncLevel uint64) error {
	defer func() { queueLength.WithLabelValues(i.cfg.Name).Set(float64(i.queue.len())) }()

	for {
		item, ok := i.queue.pop()
		if !ok {
			return nil
		}

		switch {
		case item.rollback != nil:
			if err := i.rollback(ctx, *item.rollback); err != nil {
				return err
			}
		case item.batch == nil || len(item.batch.Items) == 0:
			return common.NewFrameworkError(i.cfg.Name, "empty message in realtime queue")
		case item.batch.Level <= i.level():
			staleMessages.WithLabelValues(i.cfg.Name).Inc()
			i.log.Debugw("dropping stale realtime message", "level", item.batch.Level, "index_level", i.level())
		default:
			if err := i.processLevelData(ctx, *item.batch, max(syncLevel, item.batch.Level), modeRealtime); err != nil {
				return err
			}
		}
	}
}

// rollback lets the hook revert persisted effects above msg.ToLevel and moves the index there.
func (i *Index[T]) rollback(ctx context.Context, msg models.RollbackMessage) error {
	i.log.Warnw("rolling back index", "from", msg.FromLevel, "to", msg.ToLevel, "index_level", i.level())

	if i.hook != nil {
		if err := i.hook(ctx, i.cfg.Name, msg.Type, msg.FromLevel, msg.ToLevel); err != nil {
			return reorg.NewRollbackError(i.cfg.Name, msg.FromLevel, msg.ToLevel, err.Error())
		}
	}

	if err := i.store.SetLevel(ctx, i.cfg.Name, msg.ToLevel); err != nil {
		return fmt.Errorf("index %s: failed to set level after rollback: %w", i.cfg.Name, err)
	}
	i.updateLevel(msg.ToLevel)
	rollbacks.WithLabelValues(i.cfg.Name).Inc()

	return nil
}

func (i *Index[T]) refreshLevel(ctx context.Context) error {
	persisted, err := i.store.GetIndex(ctx, i.cfg.Name)
	if err != nil {
		return fmt.Errorf("index %s: failed to reload state: %w", i.cfg.Name, err)
	}
	if persisted == nil {
		return common.NewFrameworkError(i.cfg.Name, "state disappeared from storage")
	}

	i.log.Infow("index level reloaded after rollback", "level", persisted.Level)
	i.updateLevel(persisted.Level)

	return nil
}

// negotiating reports whether a datasource of the index lost its session and has not negotiated
// sync levels again. An unknown sync level is expected in that window.
func (i *Index[T]) negotiating() bool {
	for _, ds := range i.cfg.Datasources {
		if ds.Negotiating() {
			return true
		}
	}
	return false
}

func (i *Index[T]) initialized() bool {
	i.mu.RLock()
	defer i.mu.RUnlock()

	return i.state != nil
}

func (i *Index[T]) level() uint64 {
	i.mu.RLock()
	defer i.mu.RUnlock()

	if i.state == nil {
		return 0
	}
	return i.state.Level
}

func (i *Index[T]) updateLevel(level uint64) {
	i.mu.Lock()
	if i.state != nil {
		i.state.Level = level
	}
	i.mu.Unlock()

	indexLevel.WithLabelValues(i.cfg.Name).Set(float64(level))
}

// saveStatus persists the status together with level.
func (i *Index[T]) saveStatus(ctx context.Context, status models.IndexStatus, level uint64) error {
	st := i.State()
	st.Status = status
	st.Level = level

	if err := i.store.SaveIndex(ctx, &st); err != nil {
		return fmt.Errorf("index %s: failed to save status %s: %w", i.cfg.Name, status, err)
	}

	i.mu.Lock()
	i.state = &st
	i.mu.Unlock()

	indexLevel.WithLabelValues(i.cfg.Name).Set(float64(level))
	if status != models.IndexStatusSyncing {
		i.log.Infow("index status changed", "status", status, "level", level)
	}

	return nil
}
