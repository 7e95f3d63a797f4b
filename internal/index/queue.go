package index

import (
	"sync"

	"github.com/goran-ethernal/ChainSyncer/pkg/models"
)

// queueItem is either a level of realtime data or a rollback request.
type queueItem[T models.Item] struct {
	batch    *models.LevelBatch[T]
	rollback *models.RollbackMessage
}

// queue is the FIFO between realtime callbacks and the index processing loop.
type queue[T models.Item] struct {
	mu    sync.Mutex
	items []queueItem[T]
}

func (q *queue[T]) push(item queueItem[T]) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.items = append(q.items, item)
	return len(q.items)
}

func (q *queue[T]) pop() (queueItem[T], bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return queueItem[T]{}, false
	}

	item := q.items[0]
	q.items[0] = queueItem[T]{}
	q.items = q.items[1:]

	return item, true
}

// clear drops every queued item and returns how many there were.
func (q *queue[T]) clear() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := len(q.items)
	q.items = nil
	return n
}

func (q *queue[T]) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	return len(q.items)
}
