package datasource

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/goran-ethernal/ChainSyncer/internal/common"
	"github.com/goran-ethernal/ChainSyncer/internal/logger"
	"github.com/goran-ethernal/ChainSyncer/internal/reorg"
	"github.com/goran-ethernal/ChainSyncer/pkg/config"
	pkgds "github.com/goran-ethernal/ChainSyncer/pkg/datasource"
	"github.com/goran-ethernal/ChainSyncer/pkg/models"
	pkgrpc "github.com/goran-ethernal/ChainSyncer/pkg/rpc"
)

// ErrDatasourceFailed is returned by Run once the realtime reconnect budget is exhausted.
var ErrDatasourceFailed = errors.New("datasource failed")

// Compile-time check to ensure Datasource implements pkgds.Datasource interface.
var _ pkgds.Datasource = (*Datasource)(nil)

// Datasource is an indexer API datasource. REST requests go through the rpc client,
// realtime messages arrive over a websocket transport and pass through a MessageBuffer
// before reaching subscribers.
type Datasource struct {
	name          string
	cfg           *config.DatasourceConfig
	rollbackDepth uint64
	client        pkgrpc.Client
	dial          Dialer
	buffer        *reorg.MessageBuffer
	log           *logger.Logger

	// last head seen over REST, used to decide which responses are final enough to cache
	head atomic.Uint64

	// set from a lost session until every subscription has a sync level again
	negotiating atomic.Bool

	mu            sync.RWMutex
	subscriptions []models.Subscription
	subscribed    map[models.Subscription]struct{}
	syncLevels    map[models.Subscription]uint64
	channelLevels map[models.MessageType]uint64

	// highest level delivered to subscribers per channel, owned by the realtime loop
	emitted map[models.MessageType]uint64

	cacheMu             sync.Mutex
	addressesByCodeHash map[int64][]string
	codeHashByAddress   map[string]int64

	callbacksMu      sync.RWMutex
	onOperations     []pkgds.OperationsCallback
	onBigMaps        []pkgds.BigMapsCallback
	onEvents         []pkgds.EventsCallback
	onTokenTransfers []pkgds.TokenTransfersCallback
	onHead           []pkgds.HeadCallback
	onRollback       []pkgds.RollbackCallback
	onConnected      []pkgds.ConnectionCallback
	onDisconnected   []pkgds.ConnectionCallback
}

// New creates a datasource. A nil dialer uses the websocket JSON-RPC transport.
func New(
	name string,
	cfg *config.DatasourceConfig,
	client pkgrpc.Client,
	dialer Dialer,
	rollbackDepth uint64,
	log *logger.Logger,
) (*Datasource, error) {
	if cfg == nil {
		return nil, errors.New("datasource config is required")
	}
	if client == nil {
		return nil, errors.New("REST client is required")
	}
	if log == nil {
		return nil, errors.New("Logger is required")
	}
	if dialer == nil {
		dialer = DialWebsocket
	}

	dsLog := log.WithFields("datasource", name)

	return &Datasource{
		name:                name,
		cfg:                 cfg,
		rollbackDepth:       rollbackDepth,
		client:              client,
		dial:                dialer,
		buffer:              reorg.NewMessageBuffer(name, cfg.GetBufferSize(), dsLog.WithComponent(common.ComponentMessageBuffer)),
		log:                 dsLog,
		subscribed:          make(map[models.Subscription]struct{}),
		syncLevels:          make(map[models.Subscription]uint64),
		channelLevels:       make(map[models.MessageType]uint64),
		emitted:             make(map[models.MessageType]uint64),
		addressesByCodeHash: make(map[int64][]string),
		codeHashByAddress:   make(map[string]int64),
	}, nil
}

func (d *Datasource) Name() string { return d.name }

func (d *Datasource) RequestLimit() int { return d.cfg.HTTP.RequestLimit }

// Realtime reports whether the datasource receives pushed messages instead of polling the head.
func (d *Datasource) Realtime() bool { return d.cfg.WSURL != "" }

func (d *Datasource) GetSyncLevel(sub models.Subscription) (uint64, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	level, ok := d.syncLevels[sub]
	return level, ok
}

func (d *Datasource) SetSyncLevel(sub models.Subscription, level uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if current, ok := d.syncLevels[sub]; ok && current > level {
		d.log.Warnw("sync level moved backwards", "subscription", sub.String(), "from", current, "to", level)
	}
	d.syncLevels[sub] = level
	syncLevelGauge.WithLabelValues(d.name, string(sub.Type)).Set(float64(level))

	if d.negotiating.Load() && d.allSyncedLocked() {
		d.negotiating.Store(false)
		d.log.Infow("sync levels negotiated again", "subscriptions", len(d.subscriptions))
	}
}

func (d *Datasource) Negotiating() bool { return d.negotiating.Load() }

func (d *Datasource) allSyncedLocked() bool {
	for _, sub := range d.subscriptions {
		if _, ok := d.syncLevels[sub]; !ok {
			return false
		}
	}
	return true
}

func (d *Datasource) GetChannelLevel(typ models.MessageType) (uint64, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if level, ok := d.channelLevels[typ]; ok {
		return level, nil
	}

	var (
		level uint64
		found bool
	)
	for sub, l := range d.syncLevels {
		if sub.Type == typ {
			level = max(level, l)
			found = true
		}
	}
	if !found {
		return 0, common.NewFrameworkError("", "datasource %s: level of channel %s is not known yet", d.name, typ)
	}

	return level, nil
}

func (d *Datasource) setChannelLevel(typ models.MessageType, level uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.channelLevels[typ] = level
}

func (d *Datasource) AddSubscriptions(subs ...models.Subscription) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, sub := range subs {
		if _, ok := d.subscribed[sub]; ok {
			continue
		}
		d.subscribed[sub] = struct{}{}
		d.subscriptions = append(d.subscriptions, sub)
	}
}

// Subscriptions returns the registered subscriptions in registration order.
func (d *Datasource) Subscriptions() []models.Subscription {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make([]models.Subscription, len(d.subscriptions))
	copy(out, d.subscriptions)

	return out
}

// setSyncLevels sets the sync level of every subscription, used in polling mode.
func (d *Datasource) setSyncLevels(level uint64) {
	for _, sub := range d.Subscriptions() {
		d.SetSyncLevel(sub, level)
	}
}

// Initialize reads the head over REST.
func (d *Datasource) Initialize(ctx context.Context) error {
	head, err := d.GetHead(ctx)
	if err != nil {
		return fmt.Errorf("datasource %s: failed to fetch head: %w", d.name, err)
	}

	d.log.Infow("datasource initialized",
		"head", head.Level,
		"realtime", d.Realtime(),
		"subscriptions", len(d.Subscriptions()),
	)

	if !d.Realtime() {
		d.setSyncLevels(head.Level)
	}

	return nil
}

// reset forgets everything negotiated over the lost connection.
// Negotiating reports true before any sync level disappears.
func (d *Datasource) reset() {
	d.negotiating.Store(true)

	d.mu.Lock()
	clear(d.syncLevels)
	clear(d.channelLevels)
	d.mu.Unlock()

	clear(d.emitted)

	d.cacheMu.Lock()
	clear(d.addressesByCodeHash)
	clear(d.codeHashByAddress)
	d.cacheMu.Unlock()

	d.buffer.Clear()
}

func (d *Datasource) Close() error {
	d.client.Close()
	return nil
}
