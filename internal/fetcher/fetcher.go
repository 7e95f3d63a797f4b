package fetcher

import (
	"context"
	"slices"

	"github.com/goran-ethernal/ChainSyncer/internal/common"
	"github.com/goran-ethernal/ChainSyncer/internal/logger"
	"github.com/goran-ethernal/ChainSyncer/pkg/models"
	"golang.org/x/sync/errgroup"
)

// LevelBuffer collects items of all channels of a DataFetcher, keyed by level.
type LevelBuffer[T models.Item] struct {
	levels map[uint64][]T
}

// NewLevelBuffer creates an empty buffer.
func NewLevelBuffer[T models.Item]() *LevelBuffer[T] {
	return &LevelBuffer[T]{levels: make(map[uint64][]T)}
}

// Add appends an item to its level.
func (b *LevelBuffer[T]) Add(item T) {
	b.levels[item.GetLevel()] = append(b.levels[item.GetLevel()], item)
}

// Len returns the number of buffered levels.
func (b *LevelBuffer[T]) Len() int {
	return len(b.levels)
}

// popUntil removes every level up to and including head and returns them in ascending order.
// Items are deduplicated by id, the last occurrence wins, and sorted by id.
func (b *LevelBuffer[T]) popUntil(head uint64) []models.LevelBatch[T] {
	levels := make([]uint64, 0, len(b.levels))
	for level := range b.levels {
		if level <= head {
			levels = append(levels, level)
		}
	}
	slices.Sort(levels)

	batches := make([]models.LevelBatch[T], 0, len(levels))
	for _, level := range levels {
		batches = append(batches, models.LevelBatch[T]{
			Level: level,
			Items: models.DedupByID(b.levels[level]),
		})
		delete(b.levels, level)
	}

	return batches
}

// DataFetcher merges several channels into one stream of complete levels in ascending order.
type DataFetcher[T models.Item] struct {
	index    string
	buffer   *LevelBuffer[T]
	channels []*Channel[T]
	log      *logger.Logger
}

// NewDataFetcher creates a fetcher over channels sharing buffer.
func NewDataFetcher[T models.Item](index string, buffer *LevelBuffer[T], channels []*Channel[T], log *logger.Logger) *DataFetcher[T] {
	return &DataFetcher[T]{
		index:    index,
		buffer:   buffer,
		channels: channels,
		log:      log,
	}
}

// FetchByLevel calls yield once per level, in ascending level order, with every item of that level.
// The channel with the lowest head is always advanced next, and levels are only emitted once every
// channel has moved past them.
func (f *DataFetcher[T]) FetchByLevel(ctx context.Context, yield func(models.LevelBatch[T]) error) error {
	for {
		next := f.lowestChannel()
		if next == nil {
			break
		}

		if err := ctx.Err(); err != nil {
			return err
		}

		if err := next.Fetch(ctx); err != nil {
			return err
		}

		for _, batch := range f.buffer.popUntil(f.safeHead()) {
			fetchedLevels.WithLabelValues(f.index).Inc()
			if err := yield(batch); err != nil {
				return err
			}
		}
	}

	if f.buffer.Len() != 0 {
		return common.NewFrameworkError(f.index, "fetcher buffer is not empty after all channels were exhausted: %d levels left",
			f.buffer.Len())
	}

	return nil
}

// FetchByLevelWithReadahead runs FetchByLevel in a producer goroutine which may run up to limit
// levels ahead of yield. A non-positive limit disables readahead.
func (f *DataFetcher[T]) FetchByLevelWithReadahead(
	ctx context.Context,
	limit int,
	yield func(models.LevelBatch[T]) error,
) error {
	if limit <= 0 {
		return f.FetchByLevel(ctx, yield)
	}

	g, gctx := errgroup.WithContext(ctx)
	batches := make(chan models.LevelBatch[T], limit)

	g.Go(func() error {
		defer close(batches)

		return f.FetchByLevel(gctx, func(batch models.LevelBatch[T]) error {
			select {
			case batches <- batch:
				readaheadLevels.WithLabelValues(f.index).Set(float64(len(batches)))
				return nil
			case <-gctx.Done():
				return gctx.Err()
			}
		})
	})

	g.Go(func() error {
		for batch := range batches {
			if err := yield(batch); err != nil {
				return err
			}
		}
		return nil
	})

	return g.Wait()
}

func (f *DataFetcher[T]) lowestChannel() *Channel[T] {
	var lowest *Channel[T]
	for _, ch := range f.channels {
		if ch.Fetched() {
			continue
		}
		if lowest == nil || ch.Head() < lowest.Head() {
			lowest = ch
		}
	}

	return lowest
}

func (f *DataFetcher[T]) safeHead() uint64 {
	var head uint64
	for i, ch := range f.channels {
		if i == 0 || ch.Head() < head {
			head = ch.Head()
		}
	}

	return head
}
