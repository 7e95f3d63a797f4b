package index

import (
	"context"
	"fmt"
	"slices"

	"github.com/goran-ethernal/ChainSyncer/internal/fetcher"
	"github.com/goran-ethernal/ChainSyncer/internal/logger"
	"github.com/goran-ethernal/ChainSyncer/internal/matcher"
	"github.com/goran-ethernal/ChainSyncer/pkg/config"
	pkgds "github.com/goran-ethernal/ChainSyncer/pkg/datasource"
	"github.com/goran-ethernal/ChainSyncer/pkg/models"
)

// OperationSource serves operation indexes. Filters are derived once from handler patterns
// and the index contracts.
type OperationSource struct {
	types      []models.OperationType
	senders    filterSet
	targets    filterSet
	originated filterSet
	rollups    filterSet
	unfiltered bool
}

// NewOperationSource derives operation filters from an index configuration.
// With unfiltered set, an operation type without any filter is fetched in full.
func NewOperationSource(
	idx *config.IndexConfig,
	contracts map[string]*config.ContractConfig,
	unfiltered bool,
) (*OperationSource, error) {
	s := &OperationSource{
		types:      slices.Clone(idx.Types),
		unfiltered: unfiltered,
	}

	for _, alias := range idx.Contracts {
		ref, err := matcher.ResolveContract(contracts, alias)
		if err != nil {
			return nil, err
		}
		if ref != nil {
			s.targets.add(ref.Address, ref.CodeHash)
		}
	}

	for i, h := range idx.Handlers {
		for j, p := range h.Pattern {
			if !slices.Contains(s.types, p.Type) {
				s.types = append(s.types, p.Type)
			}
			if err := s.addPattern(p, contracts); err != nil {
				return nil, fmt.Errorf("handler[%d].pattern[%d]: %w", i, j, err)
			}
		}
	}

	return s, nil
}

func (s *OperationSource) addPattern(p config.PatternConfig, contracts map[string]*config.ContractConfig) error {
	source, err := matcher.ResolveContract(contracts, p.Source)
	if err != nil {
		return err
	}
	destination, err := matcher.ResolveContract(contracts, p.Destination)
	if err != nil {
		return err
	}
	originated, err := matcher.ResolveContract(contracts, p.OriginatedContract)
	if err != nil {
		return err
	}

	switch p.Type {
	case models.OperationTypeTransaction:
		if source != nil {
			s.senders.add(source.Address, source.CodeHash)
		}
		if destination != nil {
			s.targets.add(destination.Address, destination.CodeHash)
		}
	case models.OperationTypeOrigination:
		if originated != nil {
			s.originated.add(originated.Address, originated.CodeHash)
		}
	case models.OperationTypeSmartRollupExecute, models.OperationTypeSmartRollupCement:
		if destination != nil {
			s.rollups.add(destination.Address, destination.CodeHash)
		}
	default:
		return fmt.Errorf("unknown operation type '%s'", p.Type)
	}

	return nil
}

// Subscriptions returns one subscription per filtered contract, or a single unfiltered one.
func (s *OperationSource) Subscriptions() []models.Subscription {
	var subs []models.Subscription
	for _, set := range []*filterSet{&s.senders, &s.targets, &s.originated, &s.rollups} {
		for _, sub := range set.subscriptions(models.MessageTypeOperation) {
			if !slices.Contains(subs, sub) {
				subs = append(subs, sub)
			}
		}
	}

	if len(subs) == 0 {
		subs = append(subs, models.Subscription{Type: models.MessageTypeOperation})
	}

	return subs
}

// Channels creates one channel per operation type and filter dimension.
func (s *OperationSource) Channels(
	ctx context.Context,
	buffer *fetcher.LevelBuffer[models.OperationData],
	datasources []pkgds.Datasource,
	firstLevel, lastLevel uint64,
	log *logger.Logger,
) ([]*fetcher.Channel[models.OperationData], error) {
	b, err := newChannelBuilder(buffer, datasources, firstLevel, lastLevel, log)
	if err != nil {
		return nil, err
	}
	ds := datasources[0]

	for _, typ := range s.types {
		switch typ {
		case models.OperationTypeTransaction:
			if err := s.transactionChannels(ctx, b, ds); err != nil {
				return nil, err
			}
		case models.OperationTypeOrigination:
			s.originationChannels(b)
		case models.OperationTypeSmartRollupExecute:
			rollups, err := s.rollups.resolve(ctx, ds)
			if err != nil {
				return nil, err
			}
			b.add("sr_execute", rollups, s.unfiltered, fetchRollupExecutes(rollups))
		case models.OperationTypeSmartRollupCement:
			rollups, err := s.rollups.resolve(ctx, ds)
			if err != nil {
				return nil, err
			}
			b.add("sr_cement", rollups, s.unfiltered, fetchRollupCements(rollups))
		default:
			return nil, fmt.Errorf("unknown operation type '%s'", typ)
		}
	}

	return b.channels, nil
}

func (s *OperationSource) transactionChannels(ctx context.Context, b *channelBuilder[models.OperationData], ds pkgds.Datasource) error {
	senders, err := s.senders.resolve(ctx, ds)
	if err != nil {
		return err
	}
	targets, err := s.targets.resolve(ctx, ds)
	if err != nil {
		return err
	}

	if len(senders) == 0 && len(targets) == 0 {
		b.add("transaction", nil, s.unfiltered, fetchTransactions(pkgds.FieldTarget, nil))
		return nil
	}

	b.add("transaction_sender", senders, false, fetchTransactions(pkgds.FieldSender, senders))
	b.add("transaction_target", targets, false, fetchTransactions(pkgds.FieldTarget, targets))

	return nil
}

func (s *OperationSource) originationChannels(b *channelBuilder[models.OperationData]) {
	if s.originated.empty() {
		b.add("origination", nil, s.unfiltered, fetchOriginations(nil, nil))
		return
	}

	addresses, codeHashes := s.originated.addresses, s.originated.codeHashes
	b.add("origination_address", addresses, false, fetchOriginations(addresses, nil))
	b.add("origination_code_hash", formatCodeHashes(codeHashes), false, fetchOriginations(nil, codeHashes))
}

// Listen forwards realtime operations of ds.
func (s *OperationSource) Listen(ds pkgds.Datasource, push func(items []models.OperationData)) {
	ds.CallOnOperations(func(_ context.Context, _ pkgds.Datasource, ops []models.OperationData) error {
		push(ops)
		return nil
	})
}

type operationFetch = func(context.Context, pkgds.Datasource, pkgds.Page) ([]models.OperationData, error)

func fetchTransactions(field pkgds.TransactionField, addresses []string) operationFetch {
	return func(ctx context.Context, ds pkgds.Datasource, page pkgds.Page) ([]models.OperationData, error) {
		return ds.GetTransactions(ctx, field, addresses, page)
	}
}

func fetchOriginations(addresses []string, codeHashes []int64) operationFetch {
	return func(ctx context.Context, ds pkgds.Datasource, page pkgds.Page) ([]models.OperationData, error) {
		return ds.GetOriginations(ctx, addresses, codeHashes, page)
	}
}

func fetchRollupExecutes(rollups []string) operationFetch {
	return func(ctx context.Context, ds pkgds.Datasource, page pkgds.Page) ([]models.OperationData, error) {
		return ds.GetSmartRollupExecutes(ctx, rollups, page)
	}
}

func fetchRollupCements(rollups []string) operationFetch {
	return func(ctx context.Context, ds pkgds.Datasource, page pkgds.Page) ([]models.OperationData, error) {
		return ds.GetSmartRollupCements(ctx, rollups, page)
	}
}

// BigMapSource serves big map indexes.
type BigMapSource struct {
	addresses []string
	paths     []string
}

// NewBigMapSource collects the contracts and paths of big map handlers.
func NewBigMapSource(idx *config.IndexConfig, contracts map[string]*config.ContractConfig) (*BigMapSource, error) {
	s := &BigMapSource{}
	for i, h := range idx.Handlers {
		ref, err := matcher.ResolveContract(contracts, h.Contract)
		if err != nil {
			return nil, fmt.Errorf("handler[%d]: %w", i, err)
		}
		if ref == nil || ref.Address == "" {
			return nil, fmt.Errorf("handler[%d]: big map handlers require a contract address", i)
		}

		if !slices.Contains(s.addresses, ref.Address) {
			s.addresses = append(s.addresses, ref.Address)
		}
		if !slices.Contains(s.paths, h.Path) {
			s.paths = append(s.paths, h.Path)
		}
	}

	return s, nil
}

// Subscriptions returns one subscription per contract and path pair.
func (s *BigMapSource) Subscriptions() []models.Subscription {
	subs := make([]models.Subscription, 0, len(s.addresses)*len(s.paths))
	for _, address := range s.addresses {
		for _, path := range s.paths {
			subs = append(subs, models.Subscription{Type: models.MessageTypeBigMap, Address: address, Path: path})
		}
	}
	return subs
}

// Channels creates a single channel filtered by contract and path.
func (s *BigMapSource) Channels(
	_ context.Context,
	buffer *fetcher.LevelBuffer[models.BigMapData],
	datasources []pkgds.Datasource,
	firstLevel, lastLevel uint64,
	log *logger.Logger,
) ([]*fetcher.Channel[models.BigMapData], error) {
	b, err := newChannelBuilder(buffer, datasources, firstLevel, lastLevel, log)
	if err != nil {
		return nil, err
	}

	addresses, paths := s.addresses, s.paths
	b.add("big_maps", addresses, false,
		func(ctx context.Context, ds pkgds.Datasource, page pkgds.Page) ([]models.BigMapData, error) {
			return ds.GetBigMaps(ctx, addresses, paths, page)
		})

	return b.channels, nil
}

// Listen forwards realtime big map diffs of ds.
func (s *BigMapSource) Listen(ds pkgds.Datasource, push func(items []models.BigMapData)) {
	ds.CallOnBigMaps(func(_ context.Context, _ pkgds.Datasource, diffs []models.BigMapData) error {
		push(diffs)
		return nil
	})
}

// EventSource serves event indexes.
type EventSource struct {
	contracts filterSet
	tags      []string
	allTags   bool
}

// NewEventSource collects the contracts and tags of event handlers.
// A handler without a tag disables tag filtering for the whole index.
func NewEventSource(idx *config.IndexConfig, contracts map[string]*config.ContractConfig) (*EventSource, error) {
	s := &EventSource{}
	for i, h := range idx.Handlers {
		ref, err := matcher.ResolveContract(contracts, h.Contract)
		if err != nil {
			return nil, fmt.Errorf("handler[%d]: %w", i, err)
		}
		if ref == nil {
			return nil, fmt.Errorf("handler[%d]: contract is required", i)
		}
		s.contracts.add(ref.Address, ref.CodeHash)

		switch {
		case h.Tag == "":
			s.allTags = true
		case !slices.Contains(s.tags, h.Tag):
			s.tags = append(s.tags, h.Tag)
		}
	}

	if s.allTags {
		s.tags = nil
	}

	return s, nil
}

// Subscriptions returns one subscription per contract.
func (s *EventSource) Subscriptions() []models.Subscription {
	return s.contracts.subscriptions(models.MessageTypeEvent)
}

// Channels creates a single channel filtered by contract, with code hashes resolved to addresses.
func (s *EventSource) Channels(
	ctx context.Context,
	buffer *fetcher.LevelBuffer[models.EventData],
	datasources []pkgds.Datasource,
	firstLevel, lastLevel uint64,
	log *logger.Logger,
) ([]*fetcher.Channel[models.EventData], error) {
	b, err := newChannelBuilder(buffer, datasources, firstLevel, lastLevel, log)
	if err != nil {
		return nil, err
	}

	addresses, err := s.contracts.resolve(ctx, datasources[0])
	if err != nil {
		return nil, err
	}

	tags := s.tags
	b.add("events", addresses, false,
		func(ctx context.Context, ds pkgds.Datasource, page pkgds.Page) ([]models.EventData, error) {
			return ds.GetEvents(ctx, addresses, tags, page)
		})

	return b.channels, nil
}

// Listen forwards realtime events of ds.
func (s *EventSource) Listen(ds pkgds.Datasource, push func(items []models.EventData)) {
	ds.CallOnEvents(func(_ context.Context, _ pkgds.Datasource, events []models.EventData) error {
		push(events)
		return nil
	})
}

// TokenTransferSource serves token transfer indexes.
type TokenTransferSource struct {
	contracts  filterSet
	unfiltered bool
}

// NewTokenTransferSource collects the token contracts of handlers.
// A handler without a contract makes the index fetch every transfer.
func NewTokenTransferSource(idx *config.IndexConfig, contracts map[string]*config.ContractConfig) (*TokenTransferSource, error) {
	s := &TokenTransferSource{}
	for i, h := range idx.Handlers {
		ref, err := matcher.ResolveContract(contracts, h.Contract)
		if err != nil {
			return nil, fmt.Errorf("handler[%d]: %w", i, err)
		}
		if ref == nil {
			s.unfiltered = true
			continue
		}
		s.contracts.add(ref.Address, ref.CodeHash)
	}

	return s, nil
}

// Subscriptions returns one subscription per token contract, or a single unfiltered one.
func (s *TokenTransferSource) Subscriptions() []models.Subscription {
	if s.unfiltered {
		return []models.Subscription{{Type: models.MessageTypeTokenTransfer}}
	}
	return s.contracts.subscriptions(models.MessageTypeTokenTransfer)
}

// Channels creates a single channel filtered by token contract.
func (s *TokenTransferSource) Channels(
	ctx context.Context,
	buffer *fetcher.LevelBuffer[models.TokenTransferData],
	datasources []pkgds.Datasource,
	firstLevel, lastLevel uint64,
	log *logger.Logger,
) ([]*fetcher.Channel[models.TokenTransferData], error) {
	b, err := newChannelBuilder(buffer, datasources, firstLevel, lastLevel, log)
	if err != nil {
		return nil, err
	}

	var addresses []string
	if !s.unfiltered {
		if addresses, err = s.contracts.resolve(ctx, datasources[0]); err != nil {
			return nil, err
		}
	}

	b.add("token_transfers", addresses, s.unfiltered,
		func(ctx context.Context, ds pkgds.Datasource, page pkgds.Page) ([]models.TokenTransferData, error) {
			return ds.GetTokenTransfers(ctx, addresses, page)
		})

	return b.channels, nil
}

// Listen forwards realtime token transfers of ds.
func (s *TokenTransferSource) Listen(ds pkgds.Datasource, push func(items []models.TokenTransferData)) {
	ds.CallOnTokenTransfers(func(_ context.Context, _ pkgds.Datasource, transfers []models.TokenTransferData) error {
		push(transfers)
		return nil
	})
}

// HeadSource serves head indexes: every block is a level.
type HeadSource struct{}

// Subscriptions returns the head subscription.
func (HeadSource) Subscriptions() []models.Subscription {
	return []models.Subscription{{Type: models.MessageTypeHead}}
}

// Channels creates a single unfiltered block channel.
func (HeadSource) Channels(
	_ context.Context,
	buffer *fetcher.LevelBuffer[models.HeadBlockData],
	datasources []pkgds.Datasource,
	firstLevel, lastLevel uint64,
	log *logger.Logger,
) ([]*fetcher.Channel[models.HeadBlockData], error) {
	b, err := newChannelBuilder(buffer, datasources, firstLevel, lastLevel, log)
	if err != nil {
		return nil, err
	}

	b.add("blocks", nil, true,
		func(ctx context.Context, ds pkgds.Datasource, page pkgds.Page) ([]models.HeadBlockData, error) {
			return ds.GetBlocks(ctx, page)
		})

	return b.channels, nil
}

// Listen forwards realtime heads of ds.
func (HeadSource) Listen(ds pkgds.Datasource, push func(items []models.HeadBlockData)) {
	ds.CallOnHead(func(_ context.Context, _ pkgds.Datasource, head models.HeadBlockData) error {
		push([]models.HeadBlockData{head})
		return nil
	})
}
