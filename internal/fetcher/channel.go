package fetcher

import (
	"context"
	"fmt"
	"math/rand/v2"

	"github.com/goran-ethernal/ChainSyncer/internal/logger"
	"github.com/goran-ethernal/ChainSyncer/pkg/fetcher"
	"github.com/goran-ethernal/ChainSyncer/pkg/models"
)

// RandomSelector picks a datasource uniformly at random.
func RandomSelector(n int) int {
	if n <= 1 {
		return 0
	}
	return rand.IntN(n) //nolint:gosec
}

// ChannelConfig describes a single paginated stream of items.
type ChannelConfig struct {
	// Name identifies the channel in logs and metrics
	Name string

	// Filter values passed to the datasource. An empty filter fetches nothing unless Unfiltered is set.
	Filter     []string
	Unfiltered bool

	FirstLevel uint64
	LastLevel  uint64

	// Limit is the page size
	Limit int
}

// Channel walks one filter dimension page by page and appends items to a shared LevelBuffer.
// After every page it advances its head: the highest level it has completely delivered.
type Channel[T models.Item] struct {
	cfg      ChannelConfig
	buffer   *LevelBuffer[T]
	sources  []fetcher.PageFetcher[T]
	selector fetcher.Selector
	log      *logger.Logger

	head    uint64
	offset  uint64
	fetched bool
}

// NewChannel creates a channel writing into buffer and reading from one of sources per page.
func NewChannel[T models.Item](
	cfg ChannelConfig,
	buffer *LevelBuffer[T],
	sources []fetcher.PageFetcher[T],
	selector fetcher.Selector,
	log *logger.Logger,
) *Channel[T] {
	if selector == nil {
		selector = RandomSelector
	}

	return &Channel[T]{
		cfg:      cfg,
		buffer:   buffer,
		sources:  sources,
		selector: selector,
		log:      log,
	}
}

// Name returns the channel name.
func (c *Channel[T]) Name() string {
	return c.cfg.Name
}

// Head returns the highest level this channel has completely delivered.
func (c *Channel[T]) Head() uint64 {
	return c.head
}

// Fetched reports whether the channel is exhausted.
func (c *Channel[T]) Fetched() bool {
	return c.fetched
}

// Fetch requests the next page and appends it to the buffer.
func (c *Channel[T]) Fetch(ctx context.Context) error {
	if c.fetched {
		return nil
	}

	if len(c.cfg.Filter) == 0 && !c.cfg.Unfiltered {
		c.exhaust()
		return nil
	}

	if len(c.sources) == 0 {
		return fmt.Errorf("channel %s has no datasources", c.cfg.Name)
	}

	source := c.sources[c.selector(len(c.sources))]

	page, err := source.FetchPage(ctx, fetcher.PageRequest{
		Values:     c.cfg.Filter,
		Unfiltered: c.cfg.Unfiltered,
		FirstLevel: c.cfg.FirstLevel,
		LastLevel:  c.cfg.LastLevel,
		Offset:     c.offset,
		Limit:      c.cfg.Limit,
	})
	if err != nil {
		return fmt.Errorf("failed to fetch page for channel %s: %w", c.cfg.Name, err)
	}

	channelPages.WithLabelValues(c.cfg.Name).Inc()
	channelItems.WithLabelValues(c.cfg.Name).Add(float64(len(page)))

	for _, item := range page {
		c.buffer.Add(item)
	}

	if len(page) < c.cfg.Limit {
		c.exhaust()
	} else {
		c.head = max(c.head, safeHead(page))
		c.offset = page[len(page)-1].GetID()
	}

	c.log.Debugf("channel %s fetched %d items, head=%d offset=%d fetched=%t",
		c.cfg.Name, len(page), c.head, c.offset, c.fetched)

	return nil
}

func (c *Channel[T]) exhaust() {
	c.head = c.cfg.LastLevel
	c.fetched = true
}

// safeHead returns the highest level of a full page that can't receive more items,
// which is the level preceding the level of the last item.
func safeHead[T models.Item](page []T) uint64 {
	last := page[len(page)-1].GetLevel()
	for i := len(page) - 2; i >= 0; i-- {
		if level := page[i].GetLevel(); level != last {
			return level
		}
	}

	if last == 0 {
		return 0
	}
	return last - 1
}
