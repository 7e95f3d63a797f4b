package fetcher

import (
	"context"

	"github.com/goran-ethernal/ChainSyncer/pkg/models"
)

// PageRequest is a single paginated request for items in [FirstLevel, LastLevel]
// with id greater than Offset, ordered by id.
type PageRequest struct {
	// Values is the filter of the channel; empty with Unfiltered set means no filter
	Values     []string
	Unfiltered bool

	FirstLevel uint64
	LastLevel  uint64

	// Offset is the id of the last item seen, 0 starts from the beginning
	Offset uint64
	Limit  int
}

// PageFetcher fetches one page of items from a datasource.
type PageFetcher[T models.Item] interface {
	FetchPage(ctx context.Context, req PageRequest) ([]T, error)
}

// PageFetcherFunc adapts a function to the PageFetcher interface.
type PageFetcherFunc[T models.Item] func(ctx context.Context, req PageRequest) ([]T, error)

// FetchPage calls f.
func (f PageFetcherFunc[T]) FetchPage(ctx context.Context, req PageRequest) ([]T, error) {
	return f(ctx, req)
}

// Selector picks the index of the datasource serving the next request out of n candidates.
type Selector func(n int) int
