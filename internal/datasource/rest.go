package datasource

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	pkgds "github.com/goran-ethernal/ChainSyncer/pkg/datasource"
	"github.com/goran-ethernal/ChainSyncer/pkg/models"
	pkgrpc "github.com/goran-ethernal/ChainSyncer/pkg/rpc"
)

const (
	pathHead           = "v1/head"
	pathBlocks         = "v1/blocks"
	pathTransactions   = "v1/operations/transactions"
	pathOriginations   = "v1/operations/originations"
	pathRollupExecutes = "v1/operations/sr_execute"
	pathRollupCements  = "v1/operations/sr_cement"
	pathBigMapUpdates  = "v1/bigmaps/updates"
	pathEvents         = "v1/contracts/events"
	pathTokenTransfers = "v1/tokens/transfers"
	pathContracts      = "v1/contracts"
)

// GetHead returns the current head block.
func (d *Datasource) GetHead(ctx context.Context) (models.HeadBlockData, error) {
	var head models.HeadBlockData
	if err := d.client.Get(ctx, pkgrpc.Request{Name: "head", Path: pathHead}, &head); err != nil {
		return head, err
	}

	if head.Level > d.head.Load() {
		d.head.Store(head.Level)
	}

	return head, nil
}

// GetBlocks returns blocks in the page range. Blocks are identified by level, so the offset is a level.
func (d *Datasource) GetBlocks(ctx context.Context, page pkgds.Page) ([]models.HeadBlockData, error) {
	query := url.Values{}
	query.Set("level.ge", strconv.FormatUint(page.FirstLevel, 10))
	query.Set("level.le", strconv.FormatUint(page.LastLevel, 10))
	if page.Offset > 0 {
		query.Set("level.gt", strconv.FormatUint(page.Offset, 10))
	}
	query.Set("limit", strconv.Itoa(page.Limit))
	query.Set("sort.asc", "level")

	var blocks []models.HeadBlockData
	err := d.client.Get(ctx, pkgrpc.Request{
		Name:      "blocks",
		Path:      pathBlocks,
		Query:     query,
		Cacheable: d.final(page),
	}, &blocks)

	return blocks, err
}

// GetTransactions returns transactions filtered by sender or target. No addresses means no filter.
func (d *Datasource) GetTransactions(
	ctx context.Context,
	field pkgds.TransactionField,
	addresses []string,
	page pkgds.Page,
) ([]models.OperationData, error) {
	if field != pkgds.FieldSender && field != pkgds.FieldTarget {
		return nil, fmt.Errorf("unknown transaction field '%s'", field)
	}

	query := pageQuery(page)
	if len(addresses) > 0 {
		query.Set(string(field)+".in", strings.Join(addresses, ","))
	}

	return d.getOperations(ctx, "operations/transactions", pathTransactions, models.OperationTypeTransaction, query, page)
}

// GetOriginations returns originations of the given contracts or of contracts with the given code hashes.
// The two filters are mutually exclusive.
func (d *Datasource) GetOriginations(
	ctx context.Context,
	addresses []string,
	codeHashes []int64,
	page pkgds.Page,
) ([]models.OperationData, error) {
	if len(addresses) > 0 && len(codeHashes) > 0 {
		return nil, fmt.Errorf("%w: originations filter accepts either addresses or code hashes", models.ErrInvalidFilter)
	}

	query := pageQuery(page)
	if len(addresses) > 0 {
		query.Set("originatedContract.in", strings.Join(addresses, ","))
	}
	if len(codeHashes) > 0 {
		hashes := make([]string, 0, len(codeHashes))
		for _, h := range codeHashes {
			hashes = append(hashes, strconv.FormatInt(h, 10))
		}
		query.Set("codeHash.in", strings.Join(hashes, ","))
	}

	return d.getOperations(ctx, "operations/originations", pathOriginations, models.OperationTypeOrigination, query, page)
}

func (d *Datasource) GetSmartRollupExecutes(
	ctx context.Context,
	rollups []string,
	page pkgds.Page,
) ([]models.OperationData, error) {
	query := pageQuery(page)
	if len(rollups) > 0 {
		query.Set("rollup.in", strings.Join(rollups, ","))
	}

	return d.getOperations(ctx, "operations/sr_execute", pathRollupExecutes,
		models.OperationTypeSmartRollupExecute, query, page)
}

func (d *Datasource) GetSmartRollupCements(
	ctx context.Context,
	rollups []string,
	page pkgds.Page,
) ([]models.OperationData, error) {
	query := pageQuery(page)
	if len(rollups) > 0 {
		query.Set("rollup.in", strings.Join(rollups, ","))
	}

	return d.getOperations(ctx, "operations/sr_cement", pathRollupCements,
		models.OperationTypeSmartRollupCement, query, page)
}

func (d *Datasource) getOperations(
	ctx context.Context,
	name, path string,
	typ models.OperationType,
	query url.Values,
	page pkgds.Page,
) ([]models.OperationData, error) {
	var ops []models.OperationData
	err := d.client.Get(ctx, pkgrpc.Request{Name: name, Path: path, Query: query, Cacheable: d.final(page)}, &ops)
	if err != nil {
		return nil, err
	}

	for i := range ops {
		ops[i].Type = typ
	}

	return ops, nil
}

// GetBigMaps returns big map updates of the given contracts, optionally restricted to paths.
func (d *Datasource) GetBigMaps(
	ctx context.Context,
	addresses, paths []string,
	page pkgds.Page,
) ([]models.BigMapData, error) {
	query := pageQuery(page)
	if len(addresses) > 0 {
		query.Set("contract.in", strings.Join(addresses, ","))
	}
	if len(paths) > 0 {
		query.Set("path.in", strings.Join(paths, ","))
	}

	var diffs []models.BigMapData
	err := d.client.Get(ctx, pkgrpc.Request{
		Name:      "bigmaps/updates",
		Path:      pathBigMapUpdates,
		Query:     query,
		Cacheable: d.final(page),
	}, &diffs)

	return diffs, err
}

// GetEvents returns contract events of the given contracts, optionally restricted to tags.
func (d *Datasource) GetEvents(
	ctx context.Context,
	addresses, tags []string,
	page pkgds.Page,
) ([]models.EventData, error) {
	query := pageQuery(page)
	if len(addresses) > 0 {
		query.Set("contract.in", strings.Join(addresses, ","))
	}
	if len(tags) > 0 {
		query.Set("tag.in", strings.Join(tags, ","))
	}

	var events []models.EventData
	err := d.client.Get(ctx, pkgrpc.Request{
		Name:      "contracts/events",
		Path:      pathEvents,
		Query:     query,
		Cacheable: d.final(page),
	}, &events)

	return events, err
}

// GetTokenTransfers returns token transfers of the given token contracts.
func (d *Datasource) GetTokenTransfers(
	ctx context.Context,
	contracts []string,
	page pkgds.Page,
) ([]models.TokenTransferData, error) {
	query := pageQuery(page)
	if len(contracts) > 0 {
		query.Set("token.contract.in", strings.Join(contracts, ","))
	}

	var transfers []models.TokenTransferData
	err := d.client.Get(ctx, pkgrpc.Request{
		Name:      "tokens/transfers",
		Path:      pathTokenTransfers,
		Query:     query,
		Cacheable: d.final(page),
	}, &transfers)

	return transfers, err
}

// GetContractAddresses returns addresses of every contract deployed with the given code hash.
// Results are kept until the next reconnect.
func (d *Datasource) GetContractAddresses(ctx context.Context, codeHash int64) ([]string, error) {
	d.cacheMu.Lock()
	cached, ok := d.addressesByCodeHash[codeHash]
	d.cacheMu.Unlock()
	if ok {
		return cached, nil
	}

	var addresses []string
	for offset := 0; ; offset += d.RequestLimit() {
		query := url.Values{}
		query.Set("codeHash", strconv.FormatInt(codeHash, 10))
		query.Set("select", "address")
		query.Set("sort.asc", "id")
		query.Set("offset", strconv.Itoa(offset))
		query.Set("limit", strconv.Itoa(d.RequestLimit()))

		var page []string
		if err := d.client.Get(ctx, pkgrpc.Request{Name: "contracts", Path: pathContracts, Query: query}, &page); err != nil {
			return nil, err
		}
		addresses = append(addresses, page...)

		if len(page) < d.RequestLimit() {
			break
		}
	}

	d.cacheMu.Lock()
	d.addressesByCodeHash[codeHash] = addresses
	d.cacheMu.Unlock()

	return addresses, nil
}

// GetContractCodeHash returns the code hash of a contract. Code never changes, so responses are cacheable.
func (d *Datasource) GetContractCodeHash(ctx context.Context, address string) (int64, error) {
	d.cacheMu.Lock()
	cached, ok := d.codeHashByAddress[address]
	d.cacheMu.Unlock()
	if ok {
		return cached, nil
	}

	var contract struct {
		CodeHash int64 `json:"codeHash"`
	}
	err := d.client.Get(ctx, pkgrpc.Request{
		Name:      "contracts/address",
		Path:      pathContracts + "/" + url.PathEscape(address),
		Cacheable: true,
	}, &contract)
	if err != nil {
		return 0, err
	}

	d.cacheMu.Lock()
	d.codeHashByAddress[address] = contract.CodeHash
	d.cacheMu.Unlock()

	return contract.CodeHash, nil
}

// final reports whether the page lies deep enough below the head to be unaffected by rollbacks.
func (d *Datasource) final(page pkgds.Page) bool {
	head := d.head.Load()
	return head > 0 && page.LastLevel+d.rollbackDepth <= head
}

func pageQuery(page pkgds.Page) url.Values {
	query := url.Values{}
	query.Set("level.ge", strconv.FormatUint(page.FirstLevel, 10))
	query.Set("level.le", strconv.FormatUint(page.LastLevel, 10))
	if page.Offset > 0 {
		query.Set("id.gt", strconv.FormatUint(page.Offset, 10))
	}
	query.Set("limit", strconv.Itoa(page.Limit))
	query.Set("sort.asc", "id")

	return query
}
