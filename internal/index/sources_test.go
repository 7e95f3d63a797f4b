package index

import (
	"context"
	"fmt"
	"testing"

	"github.com/goran-ethernal/ChainSyncer/internal/fetcher"
	"github.com/goran-ethernal/ChainSyncer/internal/logger"
	"github.com/goran-ethernal/ChainSyncer/pkg/config"
	pkgds "github.com/goran-ethernal/ChainSyncer/pkg/datasource"
	"github.com/goran-ethernal/ChainSyncer/pkg/models"
	"github.com/stretchr/testify/require"
)

// apiDatasource records the REST requests made by fetch channels.
type apiDatasource struct {
	*fakeDatasource

	codeHashes    map[int64][]string
	subscriptions []models.Subscription
	requests      []string
}

func newAPIDatasource() *apiDatasource {
	return &apiDatasource{
		fakeDatasource: newFakeDatasource("api"),
		codeHashes:     map[int64][]string{42: {"KT1Clone1", "KT1Clone2"}},
	}
}

func (d *apiDatasource) RequestLimit() int { return 100 }

func (d *apiDatasource) AddSubscriptions(subs ...models.Subscription) {
	d.subscriptions = append(d.subscriptions, subs...)
}

func (d *apiDatasource) CallOnOperations(pkgds.OperationsCallback) {}

func (d *apiDatasource) CallOnRollback(pkgds.RollbackCallback) {}

func (d *apiDatasource) GetContractAddresses(_ context.Context, codeHash int64) ([]string, error) {
	return d.codeHashes[codeHash], nil
}

func (d *apiDatasource) record(format string, args ...any) {
	d.requests = append(d.requests, fmt.Sprintf(format, args...))
}

func (d *apiDatasource) GetTransactions(
	_ context.Context, field pkgds.TransactionField, addresses []string, page pkgds.Page,
) ([]models.OperationData, error) {
	d.record("transactions %s %v %d-%d", field, addresses, page.FirstLevel, page.LastLevel)
	return nil, nil
}

func (d *apiDatasource) GetOriginations(
	_ context.Context, addresses []string, codeHashes []int64, _ pkgds.Page,
) ([]models.OperationData, error) {
	d.record("originations %v %v", addresses, codeHashes)
	return nil, nil
}

func (d *apiDatasource) GetSmartRollupExecutes(_ context.Context, rollups []string, _ pkgds.Page) ([]models.OperationData, error) {
	d.record("sr_execute %v", rollups)
	return nil, nil
}

func (d *apiDatasource) GetSmartRollupCements(_ context.Context, rollups []string, _ pkgds.Page) ([]models.OperationData, error) {
	d.record("sr_cement %v", rollups)
	return nil, nil
}

func (d *apiDatasource) GetBigMaps(_ context.Context, addresses, paths []string, _ pkgds.Page) ([]models.BigMapData, error) {
	d.record("big_maps %v %v", addresses, paths)
	return nil, nil
}

func (d *apiDatasource) GetEvents(_ context.Context, addresses, tags []string, _ pkgds.Page) ([]models.EventData, error) {
	d.record("events %v %v", addresses, tags)
	return nil, nil
}

func (d *apiDatasource) GetTokenTransfers(_ context.Context, contracts []string, _ pkgds.Page) ([]models.TokenTransferData, error) {
	d.record("token_transfers %v", contracts)
	return nil, nil
}

func (d *apiDatasource) GetBlocks(_ context.Context, page pkgds.Page) ([]models.HeadBlockData, error) {
	d.record("blocks %d-%d", page.FirstLevel, page.LastLevel)
	return nil, nil
}

var testContracts = map[string]*config.ContractConfig{
	"token":    {Address: "KT1Token"},
	"clones":   {CodeHash: 42},
	"factory":  {Address: "KT1Factory"},
	"rollup":   {Address: "sr1Rollup"},
	"registry": {Address: "KT1Registry"},
}

// fetchAll runs every channel to exhaustion and returns their names.
func fetchAll[T models.Item](t *testing.T, channels []*fetcher.Channel[T]) []string {
	t.Helper()

	names := make([]string, 0, len(channels))
	for _, ch := range channels {
		for !ch.Fetched() {
			require.NoError(t, ch.Fetch(context.Background()))
		}
		names = append(names, ch.Name())
	}
	return names
}

func TestOperationSource(t *testing.T) {
	idx := &config.IndexConfig{
		Kind:      models.IndexKindOperation,
		Types:     []models.OperationType{models.OperationTypeTransaction},
		Contracts: []string{"registry"},
		Handlers: []config.HandlerConfig{
			{Callback: "on_transfer", Pattern: []config.PatternConfig{
				{Type: models.OperationTypeTransaction, Source: "clones", Destination: "token", Entrypoint: "transfer"},
			}},
			{Callback: "on_deploy", Pattern: []config.PatternConfig{
				{Type: models.OperationTypeOrigination, OriginatedContract: "clones"},
			}},
			{Callback: "on_execute", Pattern: []config.PatternConfig{
				{Type: models.OperationTypeSmartRollupExecute, Destination: "rollup"},
			}},
		},
	}

	source, err := NewOperationSource(idx, testContracts, false)
	require.NoError(t, err)

	require.ElementsMatch(t, []models.Subscription{
		{Type: models.MessageTypeOperation, CodeHash: 42},
		{Type: models.MessageTypeOperation, Address: "KT1Registry"},
		{Type: models.MessageTypeOperation, Address: "KT1Token"},
		{Type: models.MessageTypeOperation, Address: "sr1Rollup"},
	}, source.Subscriptions())

	ds := newAPIDatasource()
	channels, err := source.Channels(context.Background(), fetcher.NewLevelBuffer[models.OperationData](),
		[]pkgds.Datasource{ds}, 10, 20, logger.NewNopLogger())
	require.NoError(t, err)

	require.Equal(t, []string{
		"transaction_sender", "transaction_target", "origination_address", "origination_code_hash", "sr_execute",
	}, fetchAll(t, channels))

	require.Equal(t, []string{
		"transactions sender [KT1Clone1 KT1Clone2] 10-20",
		"transactions target [KT1Registry KT1Token] 10-20",
		"originations [] [42]",
		"sr_execute [sr1Rollup]",
	}, ds.requests)
}

func TestOperationSource_Unfiltered(t *testing.T) {
	idx := &config.IndexConfig{
		Kind:  models.IndexKindOperation,
		Types: []models.OperationType{models.OperationTypeTransaction, models.OperationTypeOrigination},
		Handlers: []config.HandlerConfig{
			{Callback: "on_any", Pattern: []config.PatternConfig{{Type: models.OperationTypeTransaction}}},
		},
	}

	t.Run("disabled fetches nothing", func(t *testing.T) {
		source, err := NewOperationSource(idx, testContracts, false)
		require.NoError(t, err)
		require.Equal(t, []models.Subscription{{Type: models.MessageTypeOperation}}, source.Subscriptions())

		ds := newAPIDatasource()
		channels, err := source.Channels(context.Background(), fetcher.NewLevelBuffer[models.OperationData](),
			[]pkgds.Datasource{ds}, 1, 5, logger.NewNopLogger())
		require.NoError(t, err)
		require.Equal(t, []string{"transaction", "origination"}, fetchAll(t, channels))
		require.Empty(t, ds.requests)
	})

	t.Run("enabled fetches every operation", func(t *testing.T) {
		source, err := NewOperationSource(idx, testContracts, true)
		require.NoError(t, err)

		ds := newAPIDatasource()
		channels, err := source.Channels(context.Background(), fetcher.NewLevelBuffer[models.OperationData](),
			[]pkgds.Datasource{ds}, 1, 5, logger.NewNopLogger())
		require.NoError(t, err)
		fetchAll(t, channels)
		require.Equal(t, []string{"transactions target [] 1-5", "originations [] []"}, ds.requests)
	})
}

func TestOperationSource_Errors(t *testing.T) {
	_, err := NewOperationSource(&config.IndexConfig{
		Handlers: []config.HandlerConfig{
			{Callback: "cb", Pattern: []config.PatternConfig{{Type: models.OperationTypeTransaction, Destination: "missing"}}},
		},
	}, testContracts, false)
	require.ErrorContains(t, err, "unknown contract 'missing'")

	_, err = NewOperationSource(&config.IndexConfig{
		Handlers: []config.HandlerConfig{
			{Callback: "cb", Pattern: []config.PatternConfig{{Type: "delegation"}}},
		},
	}, testContracts, false)
	require.ErrorContains(t, err, "unknown operation type 'delegation'")

	source, err := NewOperationSource(&config.IndexConfig{Types: []models.OperationType{models.OperationTypeTransaction}}, nil, false)
	require.NoError(t, err)
	_, err = source.Channels(context.Background(), fetcher.NewLevelBuffer[models.OperationData](), nil, 1, 2,
		logger.NewNopLogger())
	require.ErrorContains(t, err, "no datasources")
}

func TestBigMapSource(t *testing.T) {
	source, err := NewBigMapSource(&config.IndexConfig{
		Handlers: []config.HandlerConfig{
			{Callback: "on_ledger", Contract: "token", Path: "ledger"},
			{Callback: "on_meta", Contract: "token", Path: "token_metadata"},
		},
	}, testContracts)
	require.NoError(t, err)

	require.Equal(t, []models.Subscription{
		{Type: models.MessageTypeBigMap, Address: "KT1Token", Path: "ledger"},
		{Type: models.MessageTypeBigMap, Address: "KT1Token", Path: "token_metadata"},
	}, source.Subscriptions())

	ds := newAPIDatasource()
	channels, err := source.Channels(context.Background(), fetcher.NewLevelBuffer[models.BigMapData](),
		[]pkgds.Datasource{ds}, 1, 2, logger.NewNopLogger())
	require.NoError(t, err)
	fetchAll(t, channels)
	require.Equal(t, []string{"big_maps [KT1Token] [ledger token_metadata]"}, ds.requests)

	_, err = NewBigMapSource(&config.IndexConfig{
		Handlers: []config.HandlerConfig{{Callback: "cb", Contract: "clones", Path: "ledger"}},
	}, testContracts)
	require.ErrorContains(t, err, "require a contract address")
}

func TestEventSource(t *testing.T) {
	t.Run("tags", func(t *testing.T) {
		source, err := NewEventSource(&config.IndexConfig{
			Handlers: []config.HandlerConfig{
				{Callback: "on_mint", Contract: "token", Tag: "mint"},
				{Callback: "on_burn", Contract: "clones", Tag: "burn"},
			},
		}, testContracts)
		require.NoError(t, err)

		require.Equal(t, []models.Subscription{
			{Type: models.MessageTypeEvent, Address: "KT1Token"},
			{Type: models.MessageTypeEvent, CodeHash: 42},
		}, source.Subscriptions())

		ds := newAPIDatasource()
		channels, err := source.Channels(context.Background(), fetcher.NewLevelBuffer[models.EventData](),
			[]pkgds.Datasource{ds}, 1, 2, logger.NewNopLogger())
		require.NoError(t, err)
		fetchAll(t, channels)
		require.Equal(t, []string{"events [KT1Token KT1Clone1 KT1Clone2] [mint burn]"}, ds.requests)
	})

	t.Run("handler without tag fetches every tag", func(t *testing.T) {
		source, err := NewEventSource(&config.IndexConfig{
			Handlers: []config.HandlerConfig{
				{Callback: "on_mint", Contract: "token", Tag: "mint"},
				{Callback: "on_any", Contract: "token"},
			},
		}, testContracts)
		require.NoError(t, err)

		ds := newAPIDatasource()
		channels, err := source.Channels(context.Background(), fetcher.NewLevelBuffer[models.EventData](),
			[]pkgds.Datasource{ds}, 1, 2, logger.NewNopLogger())
		require.NoError(t, err)
		fetchAll(t, channels)
		require.Equal(t, []string{"events [KT1Token] []"}, ds.requests)
	})

	t.Run("contract is required", func(t *testing.T) {
		_, err := NewEventSource(&config.IndexConfig{
			Handlers: []config.HandlerConfig{{Callback: "on_any"}},
		}, testContracts)
		require.ErrorContains(t, err, "contract is required")
	})
}

func TestTokenTransferSource(t *testing.T) {
	filtered, err := NewTokenTransferSource(&config.IndexConfig{
		Handlers: []config.HandlerConfig{{Callback: "on_transfer", Contract: "token"}},
	}, testContracts)
	require.NoError(t, err)
	require.Equal(t, []models.Subscription{{Type: models.MessageTypeTokenTransfer, Address: "KT1Token"}},
		filtered.Subscriptions())

	unfiltered, err := NewTokenTransferSource(&config.IndexConfig{
		Handlers: []config.HandlerConfig{
			{Callback: "on_transfer", Contract: "token"},
			{Callback: "on_any_transfer"},
		},
	}, testContracts)
	require.NoError(t, err)
	require.Equal(t, []models.Subscription{{Type: models.MessageTypeTokenTransfer}}, unfiltered.Subscriptions())

	ds := newAPIDatasource()
	for _, source := range []*TokenTransferSource{filtered, unfiltered} {
		channels, err := source.Channels(context.Background(), fetcher.NewLevelBuffer[models.TokenTransferData](),
			[]pkgds.Datasource{ds}, 1, 2, logger.NewNopLogger())
		require.NoError(t, err)
		fetchAll(t, channels)
	}
	require.Equal(t, []string{"token_transfers [KT1Token]", "token_transfers []"}, ds.requests)
}

func TestHeadSource(t *testing.T) {
	var source HeadSource
	require.Equal(t, []models.Subscription{{Type: models.MessageTypeHead}}, source.Subscriptions())

	ds := newAPIDatasource()
	channels, err := source.Channels(context.Background(), fetcher.NewLevelBuffer[models.HeadBlockData](),
		[]pkgds.Datasource{ds}, 7, 9, logger.NewNopLogger())
	require.NoError(t, err)
	require.Equal(t, []string{"blocks"}, fetchAll(t, channels))
	require.Equal(t, []string{"blocks 7-9"}, ds.requests)
}

func TestIndex_Subscribe(t *testing.T) {
	source, err := NewOperationSource(&config.IndexConfig{Contracts: []string{"token"},
		Types: []models.OperationType{models.OperationTypeTransaction}}, testContracts, false)
	require.NoError(t, err)

	ds := newAPIDatasource()
	idx := New[models.OperationData](Config{Name: "ops", Kind: models.IndexKindOperation,
		Datasources: []pkgds.Datasource{ds}}, source, matchAll{}, nil, nil, nil, logger.NewNopLogger())
	idx.Subscribe()
	require.Equal(t, []models.Subscription{{Type: models.MessageTypeOperation, Address: "KT1Token"}}, ds.subscriptions)

	bounded := New[models.OperationData](Config{Name: "oneshot", Kind: models.IndexKindOperation, LastLevel: 10,
		Datasources: []pkgds.Datasource{ds}}, source, matchAll{}, nil, nil, nil, logger.NewNopLogger())
	bounded.Subscribe()
	require.Len(t, ds.subscriptions, 1)
}
