// Package datasource defines the contract between indexes and the chain data providers feeding them.
package datasource

import (
	"context"

	"github.com/goran-ethernal/ChainSyncer/pkg/models"
)

// TransactionField selects which side of a transaction an address filter applies to.
type TransactionField string

const (
	FieldSender TransactionField = "sender"
	FieldTarget TransactionField = "target"
)

// Page bounds a paginated request: items in [FirstLevel, LastLevel] with id above Offset, at most Limit of them.
type Page struct {
	FirstLevel uint64
	LastLevel  uint64
	Offset     uint64
	Limit      int
}

// Callbacks are invoked sequentially in registration order. The first error aborts the
// remaining callbacks and is returned to the realtime loop, which stops the datasource.
type (
	OperationsCallback     func(ctx context.Context, ds Datasource, ops []models.OperationData) error
	BigMapsCallback        func(ctx context.Context, ds Datasource, diffs []models.BigMapData) error
	EventsCallback         func(ctx context.Context, ds Datasource, events []models.EventData) error
	TokenTransfersCallback func(ctx context.Context, ds Datasource, transfers []models.TokenTransferData) error
	HeadCallback           func(ctx context.Context, ds Datasource, head models.HeadBlockData) error
	RollbackCallback       func(ctx context.Context, ds Datasource, typ models.MessageType, fromLevel, toLevel uint64) error //nolint:lll
	ConnectionCallback     func(ctx context.Context, ds Datasource) error
)

// Datasource is an indexer API: a paginated REST surface plus realtime subscriptions.
type Datasource interface {
	Name() string

	// RequestLimit is the page size fetchers must respect.
	RequestLimit() int

	// GetSyncLevel returns the level negotiated for a subscription, false until it is known.
	GetSyncLevel(sub models.Subscription) (uint64, bool)
	SetSyncLevel(sub models.Subscription, level uint64)

	// Negotiating reports that a lost realtime session is being re-established: sync levels were
	// cleared and are unknown until every subscription is negotiated again.
	Negotiating() bool

	// GetChannelLevel returns the last level seen on a realtime channel, falling back to the
	// highest sync level of its subscriptions. It fails with a framework error when neither is known.
	GetChannelLevel(typ models.MessageType) (uint64, error)

	// AddSubscriptions registers realtime topics. They are subscribed on the next (re)connect.
	AddSubscriptions(subs ...models.Subscription)
	Subscriptions() []models.Subscription

	GetHead(ctx context.Context) (models.HeadBlockData, error)
	GetBlocks(ctx context.Context, page Page) ([]models.HeadBlockData, error)
	GetTransactions(ctx context.Context, field TransactionField, addresses []string, page Page) ([]models.OperationData, error) //nolint:lll
	GetOriginations(ctx context.Context, addresses []string, codeHashes []int64, page Page) ([]models.OperationData, error) //nolint:lll
	GetSmartRollupExecutes(ctx context.Context, rollups []string, page Page) ([]models.OperationData, error)
	GetSmartRollupCements(ctx context.Context, rollups []string, page Page) ([]models.OperationData, error)
	GetBigMaps(ctx context.Context, addresses, paths []string, page Page) ([]models.BigMapData, error)
	GetEvents(ctx context.Context, addresses, tags []string, page Page) ([]models.EventData, error)
	GetTokenTransfers(ctx context.Context, contracts []string, page Page) ([]models.TokenTransferData, error)
	GetContractAddresses(ctx context.Context, codeHash int64) ([]string, error)
	GetContractCodeHash(ctx context.Context, address string) (int64, error)

	CallOnOperations(fn OperationsCallback)
	CallOnBigMaps(fn BigMapsCallback)
	CallOnEvents(fn EventsCallback)
	CallOnTokenTransfers(fn TokenTransfersCallback)
	CallOnHead(fn HeadCallback)
	CallOnRollback(fn RollbackCallback)
	CallOnConnected(fn ConnectionCallback)
	CallOnDisconnected(fn ConnectionCallback)

	// Initialize verifies the API is reachable. Without a realtime endpoint it also sets the sync
	// level of every subscription to the current head.
	Initialize(ctx context.Context) error

	// Run drives realtime delivery (or head polling) until ctx is done or the datasource fails.
	Run(ctx context.Context) error

	Close() error
}
