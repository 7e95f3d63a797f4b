package reorg

import (
	"slices"

	"github.com/goran-ethernal/ChainSyncer/internal/logger"
	"github.com/goran-ethernal/ChainSyncer/pkg/models"
)

// BufferedMessage is a single realtime item held back until its level leaves the buffer window.
type BufferedMessage struct {
	Type  models.MessageType
	Level uint64
	Item  models.Item
}

// MessageBuffer holds the most recent realtime levels so that shallow rollbacks
// can be absorbed without reaching any index.
// It is owned by a single realtime loop and is not safe for concurrent use.
type MessageBuffer struct {
	name     string
	size     int
	messages map[uint64][]BufferedMessage
	log      *logger.Logger
}

// NewMessageBuffer creates a buffer keeping the last size levels.
func NewMessageBuffer(name string, size int, log *logger.Logger) *MessageBuffer {
	return &MessageBuffer{
		name:     name,
		size:     size,
		messages: make(map[uint64][]BufferedMessage),
		log:      log,
	}
}

// Add appends a message to the given level.
func (b *MessageBuffer) Add(typ models.MessageType, level uint64, item models.Item) {
	b.messages[level] = append(b.messages[level], BufferedMessage{
		Type:  typ,
		Level: level,
		Item:  item,
	})
	bufferedLevels.WithLabelValues(b.name).Set(float64(len(b.messages)))
}

// YieldFrom removes and returns the messages of every level except the most recent size levels,
// oldest level first and in insertion order within a level.
func (b *MessageBuffer) YieldFrom() []BufferedMessage {
	if len(b.messages) <= b.size {
		return nil
	}

	levels := make([]uint64, 0, len(b.messages))
	for level := range b.messages {
		levels = append(levels, level)
	}
	slices.Sort(levels)

	var out []BufferedMessage
	for _, level := range levels[:len(levels)-b.size] {
		out = append(out, b.messages[level]...)
		delete(b.messages, level)
	}

	bufferedLevels.WithLabelValues(b.name).Set(float64(len(b.messages)))

	return out
}

// Rollback drops messages of the given type for every level in (messageLevel, channelLevel],
// newest first. It returns false as soon as a level in that range is not buffered; levels already
// visited stay dropped, so the caller must escalate the rollback.
// An empty range is trivially absorbed.
func (b *MessageBuffer) Rollback(typ models.MessageType, channelLevel, messageLevel uint64) bool {
	b.log.Infow("rollback requested",
		"type", typ,
		"channel_level", channelLevel,
		"message_level", messageLevel,
	)

	for level := channelLevel; level > messageLevel; level-- {
		msgs, ok := b.messages[level]
		if !ok {
			b.log.Infow("level is not buffered, rollback can't be absorbed", "type", typ, "level", level)
			return false
		}

		b.messages[level] = slices.DeleteFunc(msgs, func(m BufferedMessage) bool {
			return m.Type == typ
		})
	}

	b.log.Infow("all rolled back levels are in buffer", "type", typ)

	return true
}

// Len returns the number of buffered levels.
func (b *MessageBuffer) Len() int {
	return len(b.messages)
}

// Clear drops every buffered message.
func (b *MessageBuffer) Clear() {
	clear(b.messages)
	bufferedLevels.WithLabelValues(b.name).Set(0)
}
