package index

import (
	"context"
	"fmt"
	"slices"
	"strconv"

	"github.com/goran-ethernal/ChainSyncer/internal/fetcher"
	"github.com/goran-ethernal/ChainSyncer/internal/logger"
	pkgds "github.com/goran-ethernal/ChainSyncer/pkg/datasource"
	pkgfetcher "github.com/goran-ethernal/ChainSyncer/pkg/fetcher"
	"github.com/goran-ethernal/ChainSyncer/pkg/models"
)

// Source describes what an index of one kind needs from its datasources:
// the realtime topics it depends on and the paginated channels serving its backfill.
type Source[T models.Item] interface {
	// Subscriptions lists the realtime topics whose sync levels bound the index.
	Subscriptions() []models.Subscription

	// Channels creates the fetch channels covering [firstLevel, lastLevel].
	Channels(
		ctx context.Context,
		buffer *fetcher.LevelBuffer[T],
		datasources []pkgds.Datasource,
		firstLevel, lastLevel uint64,
		log *logger.Logger,
	) ([]*fetcher.Channel[T], error)

	// Listen registers push as the realtime receiver of items of this kind from ds.
	Listen(ds pkgds.Datasource, push func(items []T))
}

// filterSet collects contract references of a single filter dimension.
type filterSet struct {
	addresses  []string
	codeHashes []int64
}

func (f *filterSet) add(address string, codeHash int64) {
	switch {
	case address != "":
		if !slices.Contains(f.addresses, address) {
			f.addresses = append(f.addresses, address)
		}
	case codeHash != 0:
		if !slices.Contains(f.codeHashes, codeHash) {
			f.codeHashes = append(f.codeHashes, codeHash)
		}
	}
}

func (f *filterSet) empty() bool {
	return len(f.addresses) == 0 && len(f.codeHashes) == 0
}

// subscriptions returns one subscription per address and code hash.
func (f *filterSet) subscriptions(typ models.MessageType) []models.Subscription {
	subs := make([]models.Subscription, 0, len(f.addresses)+len(f.codeHashes))
	for _, address := range f.addresses {
		subs = append(subs, models.Subscription{Type: typ, Address: address})
	}
	for _, codeHash := range f.codeHashes {
		subs = append(subs, models.Subscription{Type: typ, CodeHash: codeHash})
	}
	return subs
}

// resolve returns the addresses of the set together with every contract deployed with one of its code hashes.
func (f *filterSet) resolve(ctx context.Context, ds pkgds.Datasource) ([]string, error) {
	addresses := slices.Clone(f.addresses)
	for _, codeHash := range f.codeHashes {
		resolved, err := ds.GetContractAddresses(ctx, codeHash)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve code hash %d: %w", codeHash, err)
		}
		for _, address := range resolved {
			if !slices.Contains(addresses, address) {
				addresses = append(addresses, address)
			}
		}
	}
	return addresses, nil
}

// pageFetchers adapts a datasource request to every datasource of the index.
func pageFetchers[T models.Item](
	datasources []pkgds.Datasource,
	fetch func(ctx context.Context, ds pkgds.Datasource, page pkgds.Page) ([]T, error),
) []pkgfetcher.PageFetcher[T] {
	out := make([]pkgfetcher.PageFetcher[T], 0, len(datasources))
	for _, ds := range datasources {
		out = append(out, pkgfetcher.PageFetcherFunc[T](func(ctx context.Context, req pkgfetcher.PageRequest) ([]T, error) {
			return fetch(ctx, ds, pkgds.Page{
				FirstLevel: req.FirstLevel,
				LastLevel:  req.LastLevel,
				Offset:     req.Offset,
				Limit:      req.Limit,
			})
		}))
	}
	return out
}

// channelBuilder creates channels sharing a buffer, a level range and a page size.
type channelBuilder[T models.Item] struct {
	buffer      *fetcher.LevelBuffer[T]
	datasources []pkgds.Datasource
	first       uint64
	last        uint64
	log         *logger.Logger
	channels    []*fetcher.Channel[T]
}

func newChannelBuilder[T models.Item](
	buffer *fetcher.LevelBuffer[T],
	datasources []pkgds.Datasource,
	first, last uint64,
	log *logger.Logger,
) (*channelBuilder[T], error) {
	if len(datasources) == 0 {
		return nil, fmt.Errorf("no datasources to fetch from")
	}

	return &channelBuilder[T]{
		buffer:      buffer,
		datasources: datasources,
		first:       first,
		last:        last,
		log:         log,
	}, nil
}

func (b *channelBuilder[T]) add(
	name string,
	filter []string,
	unfiltered bool,
	fetch func(ctx context.Context, ds pkgds.Datasource, page pkgds.Page) ([]T, error),
) {
	b.channels = append(b.channels, fetcher.NewChannel(fetcher.ChannelConfig{
		Name:       name,
		Filter:     filter,
		Unfiltered: unfiltered && len(filter) == 0,
		FirstLevel: b.first,
		LastLevel:  b.last,
		Limit:      b.datasources[0].RequestLimit(),
	}, b.buffer, pageFetchers(b.datasources, fetch), nil, b.log.WithFields("channel", name)))
}

func formatCodeHashes(codeHashes []int64) []string {
	out := make([]string, 0, len(codeHashes))
	for _, h := range codeHashes {
		out = append(out, strconv.FormatInt(h, 10))
	}
	return out
}
