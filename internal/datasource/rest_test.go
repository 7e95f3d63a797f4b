package datasource

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	pkgds "github.com/goran-ethernal/ChainSyncer/pkg/datasource"
	"github.com/goran-ethernal/ChainSyncer/pkg/models"
	"github.com/stretchr/testify/require"
)

func TestGetTransactions(t *testing.T) {
	api, srv := newAPIServer(t, map[string]any{
		"/v1/operations/transactions": []map[string]any{
			{"id": 5, "level": 100, "hash": "oo1", "senderAddress": "tz1A", "targetAddress": "KT1A"},
		},
	})
	ds := newTestDatasource(t, srv.URL, testConfig(""))
	page := pkgds.Page{FirstLevel: 100, LastLevel: 200, Offset: 4, Limit: 50}

	ops, err := ds.GetTransactions(context.Background(), pkgds.FieldTarget, []string{"KT1A", "KT1B"}, page)
	require.NoError(t, err)
	require.Len(t, ops, 1)
	require.Equal(t, models.OperationTypeTransaction, ops[0].Type)
	require.Equal(t, "KT1A", ops[0].TargetAddress)

	calls := api.calls("/v1/operations/transactions")
	require.Len(t, calls, 1)
	q := calls[0]
	require.Equal(t, "KT1A,KT1B", q.Get("target.in"))
	require.Empty(t, q.Get("sender.in"))
	require.Equal(t, "100", q.Get("level.ge"))
	require.Equal(t, "200", q.Get("level.le"))
	require.Equal(t, "4", q.Get("id.gt"))
	require.Equal(t, "50", q.Get("limit"))
	require.Equal(t, "id", q.Get("sort.asc"))

	_, err = ds.GetTransactions(context.Background(), "initiator", nil, page)
	require.ErrorContains(t, err, "unknown transaction field")
}

func TestGetTransactions_Unfiltered(t *testing.T) {
	api, srv := newAPIServer(t, map[string]any{
		"/v1/operations/transactions": []map[string]any{},
	})
	ds := newTestDatasource(t, srv.URL, testConfig(""))

	_, err := ds.GetTransactions(context.Background(), pkgds.FieldSender, nil, pkgds.Page{LastLevel: 10, Limit: 10})
	require.NoError(t, err)

	q := api.calls("/v1/operations/transactions")[0]
	require.False(t, q.Has("sender.in"))
	require.False(t, q.Has("id.gt"))
}

func TestGetOriginations(t *testing.T) {
	api, srv := newAPIServer(t, map[string]any{
		"/v1/operations/originations": []map[string]any{
			{"id": 1, "level": 3, "originatedContractAddress": "KT1New", "originatedContractCodeHash": 9},
		},
	})
	ds := newTestDatasource(t, srv.URL, testConfig(""))
	page := pkgds.Page{FirstLevel: 1, LastLevel: 10, Limit: 10}

	_, err := ds.GetOriginations(context.Background(), []string{"KT1A"}, []int64{9}, page)
	require.ErrorIs(t, err, models.ErrInvalidFilter)
	require.Empty(t, api.calls("/v1/operations/originations"))

	ops, err := ds.GetOriginations(context.Background(), nil, []int64{9, -3}, page)
	require.NoError(t, err)
	require.Len(t, ops, 1)
	require.Equal(t, models.OperationTypeOrigination, ops[0].Type)
	require.Equal(t, int64(9), *ops[0].OriginatedContractCodeHash)
	require.Equal(t, "9,-3", api.calls("/v1/operations/originations")[0].Get("codeHash.in"))
}

func TestGetSmartRollupOperations(t *testing.T) {
	api, srv := newAPIServer(t, map[string]any{
		"/v1/operations/sr_execute": []map[string]any{{"id": 1, "level": 3, "rollupAddress": "sr1A"}},
		"/v1/operations/sr_cement":  []map[string]any{{"id": 2, "level": 4, "rollupAddress": "sr1A"}},
	})
	ds := newTestDatasource(t, srv.URL, testConfig(""))
	page := pkgds.Page{FirstLevel: 1, LastLevel: 10, Limit: 10}

	executes, err := ds.GetSmartRollupExecutes(context.Background(), []string{"sr1A"}, page)
	require.NoError(t, err)
	require.Equal(t, models.OperationTypeSmartRollupExecute, executes[0].Type)

	cements, err := ds.GetSmartRollupCements(context.Background(), []string{"sr1A"}, page)
	require.NoError(t, err)
	require.Equal(t, models.OperationTypeSmartRollupCement, cements[0].Type)

	require.Equal(t, "sr1A", api.calls("/v1/operations/sr_cement")[0].Get("rollup.in"))
}

func TestGetBigMapsEventsAndTransfers(t *testing.T) {
	api, srv := newAPIServer(t, map[string]any{
		"/v1/bigmaps/updates": []map[string]any{{"id": 1, "level": 2, "contractAddress": "KT1A", "path": "ledger"}},
		"/v1/contracts/events": []map[string]any{{"id": 3, "level": 4, "contractAddress": "KT1A", "tag": "mint"}},
		"/v1/tokens/transfers": []map[string]any{{"id": 5, "level": 6, "contractAddress": "KT1A", "amount": "1000000000000000000000"}},
	})
	ds := newTestDatasource(t, srv.URL, testConfig(""))
	page := pkgds.Page{FirstLevel: 1, LastLevel: 10, Limit: 10}

	diffs, err := ds.GetBigMaps(context.Background(), []string{"KT1A"}, []string{"ledger"}, page)
	require.NoError(t, err)
	require.Equal(t, "ledger", diffs[0].Path)
	require.Equal(t, "ledger", api.calls("/v1/bigmaps/updates")[0].Get("path.in"))

	events, err := ds.GetEvents(context.Background(), []string{"KT1A"}, []string{"mint"}, page)
	require.NoError(t, err)
	require.Equal(t, "mint", events[0].Tag)
	require.Equal(t, "mint", api.calls("/v1/contracts/events")[0].Get("tag.in"))

	transfers, err := ds.GetTokenTransfers(context.Background(), []string{"KT1A"}, page)
	require.NoError(t, err)
	require.Equal(t, "1000000000000000000000", transfers[0].Amount.String())
	require.Equal(t, "KT1A", api.calls("/v1/tokens/transfers")[0].Get("token.contract.in"))
}

func TestGetBlocks(t *testing.T) {
	api, srv := newAPIServer(t, map[string]any{
		"/v1/blocks": []map[string]any{{"level": 11, "hash": "BL11"}, {"level": 12, "hash": "BL12"}},
	})
	ds := newTestDatasource(t, srv.URL, testConfig(""))

	blocks, err := ds.GetBlocks(context.Background(), pkgds.Page{FirstLevel: 10, LastLevel: 20, Offset: 10, Limit: 2})
	require.NoError(t, err)
	require.Len(t, blocks, 2)
	require.Equal(t, uint64(12), blocks[1].GetID())

	q := api.calls("/v1/blocks")[0]
	require.Equal(t, "10", q.Get("level.gt"))
	require.Equal(t, "level", q.Get("sort.asc"))
}

func TestGetContractAddresses_PaginatesAndCaches(t *testing.T) {
	pages := map[string][]string{
		"0": {"KT1A", "KT1B"},
		"2": {"KT1C"},
	}
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.URL.Path != "/v1/contracts" || r.URL.Query().Get("codeHash") != "42" {
			http.NotFound(w, r)
			return
		}
		_ = json.NewEncoder(w).Encode(pages[r.URL.Query().Get("offset")])
	}))
	defer srv.Close()

	// request limit is 2, so the full first page is followed by a second request
	ds := newTestDatasource(t, srv.URL, testConfig(""))

	addresses, err := ds.GetContractAddresses(context.Background(), 42)
	require.NoError(t, err)
	require.Equal(t, []string{"KT1A", "KT1B", "KT1C"}, addresses)
	require.Equal(t, int32(2), calls.Load())

	again, err := ds.GetContractAddresses(context.Background(), 42)
	require.NoError(t, err)
	require.Equal(t, addresses, again)
	require.Equal(t, int32(2), calls.Load())

	ds.reset()
	_, err = ds.GetContractAddresses(context.Background(), 42)
	require.NoError(t, err)
	require.Equal(t, int32(4), calls.Load(), "reset drops cached addresses")
}

func TestFinal(t *testing.T) {
	ds := newTestDatasource(t, "http://localhost", testConfig(""))
	page := pkgds.Page{LastLevel: 90}

	require.False(t, ds.final(page), "unknown head")

	ds.head.Store(100)
	require.True(t, ds.final(page))

	ds.head.Store(99)
	require.False(t, ds.final(page))
}
