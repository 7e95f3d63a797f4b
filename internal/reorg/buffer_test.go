package reorg

import (
	"testing"

	"github.com/goran-ethernal/ChainSyncer/internal/logger"
	"github.com/goran-ethernal/ChainSyncer/pkg/models"
	"github.com/stretchr/testify/require"
)

func op(id, level uint64) models.OperationData {
	return models.OperationData{ID: id, Level: level, Type: models.OperationTypeTransaction}
}

func levelsOf(msgs []BufferedMessage) []uint64 {
	out := make([]uint64, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.Level)
	}
	return out
}

func TestMessageBuffer_YieldFrom(t *testing.T) {
	t.Run("keeps the most recent levels", func(t *testing.T) {
		b := NewMessageBuffer("test", 2, logger.NewNopLogger())
		b.Add(models.MessageTypeOperation, 10, op(1, 10))
		b.Add(models.MessageTypeOperation, 10, op(2, 10))
		b.Add(models.MessageTypeOperation, 12, op(3, 12))
		b.Add(models.MessageTypeOperation, 11, op(4, 11))
		b.Add(models.MessageTypeOperation, 13, op(5, 13))

		msgs := b.YieldFrom()
		require.Equal(t, []uint64{10, 10, 11}, levelsOf(msgs))
		require.Equal(t, uint64(1), msgs[0].Item.GetID())
		require.Equal(t, uint64(2), msgs[1].Item.GetID())
		require.Equal(t, 2, b.Len())

		require.Empty(t, b.YieldFrom())
	})

	t.Run("size larger than buffered levels yields nothing", func(t *testing.T) {
		b := NewMessageBuffer("test", 5, logger.NewNopLogger())
		b.Add(models.MessageTypeOperation, 1, op(1, 1))
		b.Add(models.MessageTypeOperation, 2, op(2, 2))

		require.Empty(t, b.YieldFrom())
		require.Equal(t, 2, b.Len())
	})

	t.Run("zero size yields everything", func(t *testing.T) {
		b := NewMessageBuffer("test", 0, logger.NewNopLogger())
		b.Add(models.MessageTypeOperation, 2, op(2, 2))
		b.Add(models.MessageTypeOperation, 1, op(1, 1))

		require.Equal(t, []uint64{1, 2}, levelsOf(b.YieldFrom()))
		require.Zero(t, b.Len())
	})
}

func TestMessageBuffer_Rollback(t *testing.T) {
	const base = uint64(100)

	tests := []struct {
		name         string
		channelLevel uint64
		messageLevel uint64
		absorbed     bool
		remaining    map[uint64]int
	}{
		{
			name:         "single level inside buffer",
			channelLevel: base + 3,
			messageLevel: base + 2,
			absorbed:     true,
			remaining:    map[uint64]int{base: 1, base + 1: 1, base + 2: 1, base + 3: 0},
		},
		{
			name:         "whole buffer",
			channelLevel: base + 3,
			messageLevel: base - 1,
			absorbed:     true,
			remaining:    map[uint64]int{base: 0, base + 1: 0, base + 2: 0, base + 3: 0},
		},
		{
			name:         "deeper than buffer",
			channelLevel: base + 3,
			messageLevel: base - 2,
			absorbed:     false,
		},
		{
			name:         "empty range",
			channelLevel: base + 2,
			messageLevel: base + 2,
			absorbed:     true,
			remaining:    map[uint64]int{base: 1, base + 1: 1, base + 2: 1, base + 3: 1},
		},
		{
			name:         "channel level above buffered levels",
			channelLevel: base + 5,
			messageLevel: base + 2,
			absorbed:     false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewMessageBuffer("test", 2, logger.NewNopLogger())
			for i := uint64(0); i < 4; i++ {
				b.Add(models.MessageTypeOperation, base+i, op(i, base+i))
			}

			require.Equal(t, tt.absorbed, b.Rollback(models.MessageTypeOperation, tt.channelLevel, tt.messageLevel))

			for level, count := range tt.remaining {
				require.Len(t, b.messages[level], count, "level %d", level)
			}
		})
	}
}

func TestMessageBuffer_RollbackKeepsOtherTypes(t *testing.T) {
	b := NewMessageBuffer("test", 2, logger.NewNopLogger())
	b.Add(models.MessageTypeOperation, 10, op(1, 10))
	b.Add(models.MessageTypeBigMap, 10, models.BigMapData{ID: 2, Level: 10})

	require.True(t, b.Rollback(models.MessageTypeOperation, 10, 9))
	require.Len(t, b.messages[10], 1)
	require.Equal(t, models.MessageTypeBigMap, b.messages[10][0].Type)

	// an emptied level is still buffered and absorbs a later rollback of another type
	require.True(t, b.Rollback(models.MessageTypeBigMap, 10, 9))
	require.Empty(t, b.messages[10])
	require.True(t, b.Rollback(models.MessageTypeEvent, 10, 9))
}

func TestMessageBuffer_Clear(t *testing.T) {
	b := NewMessageBuffer("test", 1, logger.NewNopLogger())
	b.Add(models.MessageTypeHead, 1, models.HeadBlockData{Level: 1})
	b.Add(models.MessageTypeHead, 2, models.HeadBlockData{Level: 2})

	b.Clear()
	require.Zero(t, b.Len())
	require.Empty(t, b.YieldFrom())
}
