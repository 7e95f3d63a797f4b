package reorg

import (
	"context"

	"github.com/goran-ethernal/ChainSyncer/pkg/models"
)

// Hook reverts the persisted effects of an index from fromLevel down to toLevel.
// It is invoked for rollbacks the realtime message buffer could not absorb.
type Hook func(ctx context.Context, index string, typ models.MessageType, fromLevel, toLevel uint64) error
