package dispatcher

import (
	"context"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goran-ethernal/ChainSyncer/internal/common"
	"github.com/goran-ethernal/ChainSyncer/internal/db"
	"github.com/goran-ethernal/ChainSyncer/internal/logger"
	"github.com/goran-ethernal/ChainSyncer/internal/notify"
	"github.com/goran-ethernal/ChainSyncer/internal/reorg"
	"github.com/goran-ethernal/ChainSyncer/internal/state"
	"github.com/goran-ethernal/ChainSyncer/pkg/config"
	pkgds "github.com/goran-ethernal/ChainSyncer/pkg/datasource"
	"github.com/goran-ethernal/ChainSyncer/pkg/handler"
	"github.com/goran-ethernal/ChainSyncer/pkg/models"
	"github.com/stretchr/testify/require"
)

const headCallback = "dispatcher_test_on_head"

var headCalls atomic.Int64

func init() {
	handler.Register(headCallback, func(context.Context, *handler.Context, any) error {
		headCalls.Add(1)
		return nil
	})
}

// chain is a datasource serving blocks up to head and delivering realtime messages on demand.
type chain struct {
	pkgds.Datasource

	head uint64

	mu         sync.Mutex
	subs       []models.Subscription
	levels     map[models.Subscription]uint64
	onHead     []pkgds.HeadCallback
	onRollback []pkgds.RollbackCallback
	running    chan struct{}
}

func newChain(head uint64) *chain {
	return &chain{head: head, levels: make(map[models.Subscription]uint64), running: make(chan struct{})}
}

func (c *chain) Name() string      { return "tzkt" }
func (c *chain) RequestLimit() int { return 10 }
func (c *chain) Negotiating() bool { return false }

func (c *chain) GetSyncLevel(sub models.Subscription) (uint64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	level, ok := c.levels[sub]
	return level, ok
}

func (c *chain) AddSubscriptions(subs ...models.Subscription) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.subs = append(c.subs, subs...)
}

func (c *chain) CallOnHead(fn pkgds.HeadCallback) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.onHead = append(c.onHead, fn)
}

func (c *chain) CallOnRollback(fn pkgds.RollbackCallback) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.onRollback = append(c.onRollback, fn)
}

func (c *chain) Initialize(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, sub := range c.subs {
		c.levels[sub] = c.head
	}
	return nil
}

func (c *chain) Run(ctx context.Context) error {
	close(c.running)
	<-ctx.Done()
	return nil
}

func (c *chain) GetBlocks(_ context.Context, page pkgds.Page) ([]models.HeadBlockData, error) {
	var blocks []models.HeadBlockData
	for level := max(page.FirstLevel, page.Offset+1); level <= page.LastLevel && len(blocks) < page.Limit; level++ {
		blocks = append(blocks, models.HeadBlockData{Level: level, Hash: "B"})
	}
	return blocks, nil
}

func (c *chain) emitHead(t *testing.T, level uint64) {
	t.Helper()

	c.mu.Lock()
	callbacks := c.onHead
	c.mu.Unlock()

	for _, fn := range callbacks {
		require.NoError(t, fn(context.Background(), c, models.HeadBlockData{Level: level, Hash: "B"}))
	}
}

func (c *chain) emitRollback(t *testing.T, typ models.MessageType, fromLevel, toLevel uint64) {
	t.Helper()

	c.mu.Lock()
	callbacks := c.onRollback
	c.mu.Unlock()

	for _, fn := range callbacks {
		require.NoError(t, fn(context.Background(), c, typ, fromLevel, toLevel))
	}
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []notify.Event
}

func (n *recordingNotifier) Publish(_ context.Context, event notify.Event) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.events = append(n.events, event)
	return nil
}

func (n *recordingNotifier) Close() {}

func (n *recordingNotifier) ofType(typ notify.EventType) []notify.Event {
	n.mu.Lock()
	defer n.mu.Unlock()

	var out []notify.Event
	for _, e := range n.events {
		if e.Type == typ {
			out = append(out, e)
		}
	}
	return out
}

// spyStore records prune requests.
type spyStore struct {
	*state.Store

	mu     sync.Mutex
	pruned map[string]uint64
}

func (s *spyStore) PruneUpdates(ctx context.Context, index string, belowLevel uint64) (int64, error) {
	s.mu.Lock()
	s.pruned[index] = belowLevel
	s.mu.Unlock()

	return s.Store.PruneUpdates(ctx, index, belowLevel)
}

type testEnv struct {
	cfg      *config.Config
	store    *spyStore
	chain    *chain
	notifier *recordingNotifier
}

func newTestEnv(t *testing.T, head uint64, indexes map[string]*config.IndexConfig) *testEnv {
	t.Helper()

	dbCfg := config.DatabaseConfig{Path: filepath.Join(t.TempDir(), "state.db")}
	dbCfg.ApplyDefaults()

	database, err := db.Open(dbCfg)
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	store, err := state.NewStore(database, nil, 60, logger.NewNopLogger())
	require.NoError(t, err)

	cfg := &config.Config{
		Datasources: map[string]*config.DatasourceConfig{"tzkt": {URL: "http://localhost"}},
		Indexes:     indexes,
		Advanced: config.AdvancedConfig{
			IdleInterval:  common.NewDuration(5 * time.Millisecond),
			PruneInterval: common.NewDuration(time.Hour),
		},
	}
	cfg.ApplyDefaults()

	return &testEnv{
		cfg:      cfg,
		store:    &spyStore{Store: store, pruned: make(map[string]uint64)},
		chain:    newChain(head),
		notifier: &recordingNotifier{},
	}
}

func (e *testEnv) dispatcher(t *testing.T) *Dispatcher {
	t.Helper()

	d, err := New(e.cfg, e.store, map[string]pkgds.Datasource{"tzkt": e.chain}, e.notifier, logger.NewNopLogger())
	require.NoError(t, err)
	return d
}

func headIndex(firstLevel, lastLevel uint64) *config.IndexConfig {
	return &config.IndexConfig{
		Kind:        models.IndexKindHead,
		Datasources: []string{"tzkt"},
		FirstLevel:  firstLevel,
		LastLevel:   lastLevel,
		Handlers:    []config.HandlerConfig{{Callback: headCallback}},
	}
}

func TestDispatcher_BoundedIndexesStopTheLoop(t *testing.T) {
	env := newTestEnv(t, 100, map[string]*config.IndexConfig{
		"first":  headIndex(1, 25),
		"second": headIndex(11, 30),
	})
	d := env.dispatcher(t)

	before := headCalls.Load()
	require.NoError(t, d.Run(context.Background()))
	require.Equal(t, int64(25+20), headCalls.Load()-before)

	states := d.Indexes()
	require.Len(t, states, 2)
	require.Equal(t, "first", states[0].Name)
	require.Equal(t, models.IndexStatusDisabled, states[0].Status)
	require.Equal(t, uint64(25), states[0].Level)
	require.Equal(t, uint64(30), states[1].Level)

	persisted, err := env.store.GetIndex(context.Background(), "second")
	require.NoError(t, err)
	require.Equal(t, models.IndexStatusDisabled, persisted.Status)

	status := env.notifier.ofType(notify.EventStatus)
	require.Len(t, status, 2)
	for _, e := range status {
		require.Equal(t, models.IndexStatusDisabled, e.Status)
	}

	require.Empty(t, env.chain.subs)
}

func TestDispatcher_Realtime(t *testing.T) {
	env := newTestEnv(t, 10, map[string]*config.IndexConfig{"heads": headIndex(5, 0)})
	d := env.dispatcher(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	levelIs := func(status models.IndexStatus, level uint64) func() bool {
		return func() bool {
			st, ok := d.Index("heads")
			return ok && st.Status == status && st.Level == level
		}
	}

	require.Eventually(t, levelIs(models.IndexStatusRealtime, 10), time.Second, 5*time.Millisecond)
	<-env.chain.running

	env.chain.emitHead(t, 11)
	env.chain.emitHead(t, 12)
	require.Eventually(t, levelIs(models.IndexStatusRealtime, 12), time.Second, 5*time.Millisecond)

	// rollbacks of other message types are ignored
	env.chain.emitRollback(t, models.MessageTypeOperation, 12, 5)
	env.chain.emitRollback(t, models.MessageTypeHead, 12, 11)
	require.Eventually(t, levelIs(models.IndexStatusRealtime, 11), time.Second, 5*time.Millisecond)

	rollbacks := env.notifier.ofType(notify.EventRollback)
	require.Len(t, rollbacks, 1)
	require.Equal(t, uint64(12), rollbacks[0].FromLevel)
	require.Equal(t, uint64(11), rollbacks[0].ToLevel)

	persisted, err := env.store.GetIndex(context.Background(), "heads")
	require.NoError(t, err)
	require.Equal(t, uint64(11), persisted.Level)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("dispatcher did not stop")
	}
}

func TestDispatcher_FailedRollbackIsFatal(t *testing.T) {
	env := newTestEnv(t, 100, map[string]*config.IndexConfig{"heads": headIndex(90, 0)})
	d := env.dispatcher(t)

	done := make(chan error, 1)
	go func() { done <- d.Run(context.Background()) }()

	require.Eventually(t, func() bool {
		st, _ := d.Index("heads")
		return st.Level == 100
	}, time.Second, 5*time.Millisecond)
	<-env.chain.running

	env.chain.emitRollback(t, models.MessageTypeHead, 100, 10)

	select {
	case err := <-done:
		var rollbackErr *reorg.RollbackError
		require.ErrorAs(t, err, &rollbackErr)
		require.Equal(t, "heads", rollbackErr.Index)
		require.Contains(t, err.Error(), state.ErrRollbackDepthExceeded.Error())
	case <-time.After(time.Second):
		t.Fatal("dispatcher did not stop")
	}
}

func TestDispatcher_ConfigChange(t *testing.T) {
	ctx := context.Background()

	stale := func(t *testing.T, env *testEnv) {
		t.Helper()
		require.NoError(t, env.store.SaveIndex(ctx, &models.IndexState{
			Name:       "heads",
			Kind:       models.IndexKindHead,
			Status:     models.IndexStatusRealtime,
			Level:      42,
			ConfigHash: "outdated",
		}))
	}

	t.Run("fails without reindexing", func(t *testing.T) {
		env := newTestEnv(t, 100, map[string]*config.IndexConfig{"heads": headIndex(1, 0)})
		stale(t, env)

		err := env.dispatcher(t).initialize(ctx)
		require.ErrorIs(t, err, state.ErrConfigHashMismatch)
	})

	t.Run("reindexes when enabled", func(t *testing.T) {
		env := newTestEnv(t, 100, map[string]*config.IndexConfig{"heads": headIndex(1, 0)})
		env.cfg.Advanced.ReindexOnConfigChange = true
		stale(t, env)

		d := env.dispatcher(t)
		require.NoError(t, d.initialize(ctx))

		st, ok := d.Index("heads")
		require.True(t, ok)
		require.Equal(t, models.IndexStatusNew, st.Status)
		require.Equal(t, uint64(0), st.Level)

		reindex := env.notifier.ofType(notify.EventReindex)
		require.Len(t, reindex, 1)
		require.Equal(t, uint64(42), reindex[0].Level)

		require.Equal(t, []models.Subscription{{Type: models.MessageTypeHead}}, env.chain.subs)
	})
}

func TestDispatcher_RollbackIndexErrors(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, 100, map[string]*config.IndexConfig{"heads": headIndex(1, 0)})
	d := env.dispatcher(t)
	require.NoError(t, d.initialize(ctx))

	_, err := d.RollbackIndex(ctx, "missing", 1)
	require.ErrorIs(t, err, ErrUnknownIndex)

	_, err = d.RollbackIndex(ctx, "heads", 0)
	require.ErrorIs(t, err, ErrNothingToRollback)
}

func TestDispatcher_RollbackIndexRevertsLevel(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, 100, map[string]*config.IndexConfig{"heads": headIndex(1, 0)})
	d := env.dispatcher(t)
	require.NoError(t, d.initialize(ctx))
	require.NoError(t, env.chain.Initialize(ctx))

	_, err := d.byName["heads"].runner.Process(ctx)
	require.NoError(t, err)

	st, _ := d.Index("heads")
	require.Equal(t, uint64(100), st.Level)

	reverted, err := d.RollbackIndex(ctx, "heads", 80)
	require.NoError(t, err)
	require.Zero(t, reverted)

	persisted, err := env.store.GetIndex(ctx, "heads")
	require.NoError(t, err)
	require.Equal(t, uint64(80), persisted.Level)

	// the index resynchronizes from the reverted level
	_, err = d.byName["heads"].runner.Process(ctx)
	require.NoError(t, err)
	st, _ = d.Index("heads")
	require.Equal(t, uint64(100), st.Level)

	events := env.notifier.ofType(notify.EventRollback)
	require.Len(t, events, 1)
	require.Equal(t, uint64(100), events[0].FromLevel)
	require.Equal(t, uint64(80), events[0].ToLevel)
}

func TestDispatcher_Prune(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, 100, map[string]*config.IndexConfig{
		"early": headIndex(1, 30),
		"late":  headIndex(1, 90),
	})
	d := env.dispatcher(t)
	require.NoError(t, d.Run(ctx))

	task := d.PruneTask()
	require.Equal(t, "prune-model-updates", task.Name)
	require.NoError(t, task.Run(ctx))

	require.Equal(t, map[string]uint64{"late": 30}, env.store.pruned)
}

func TestNew_Errors(t *testing.T) {
	t.Run("unknown callback", func(t *testing.T) {
		idx := headIndex(1, 0)
		idx.Handlers[0].Callback = "not_registered"
		env := newTestEnv(t, 10, map[string]*config.IndexConfig{"heads": idx})

		_, err := New(env.cfg, env.store, map[string]pkgds.Datasource{"tzkt": env.chain}, nil, logger.NewNopLogger())
		require.ErrorContains(t, err, "index heads: handler[0]: unknown callback")
	})

	t.Run("unknown datasource", func(t *testing.T) {
		env := newTestEnv(t, 10, map[string]*config.IndexConfig{"heads": headIndex(1, 0)})

		_, err := New(env.cfg, env.store, map[string]pkgds.Datasource{}, nil, logger.NewNopLogger())
		require.ErrorContains(t, err, "unknown datasource 'tzkt'")
	})

	t.Run("invalid matcher configuration", func(t *testing.T) {
		env := newTestEnv(t, 10, map[string]*config.IndexConfig{"maps": {
			Kind:        models.IndexKindBigMap,
			Datasources: []string{"tzkt"},
			Handlers:    []config.HandlerConfig{{Callback: headCallback, Path: "ledger"}},
		}})

		_, err := New(env.cfg, env.store, map[string]pkgds.Datasource{"tzkt": env.chain}, nil, logger.NewNopLogger())
		require.ErrorContains(t, err, "index maps: handler[0]: big map handlers require a contract address")
	})
}
