// Package handler is the registry of user callbacks invoked for matched chain data.
package handler

import (
	"context"

	"github.com/goran-ethernal/ChainSyncer/internal/logger"
	"github.com/goran-ethernal/ChainSyncer/internal/state"
)

// Callback handles one matched piece of level data. args is the typed payload
// produced by the index matcher, e.g. models.OperationGroup for operation indexes.
// Returning an error aborts the transaction of the whole level.
type Callback func(ctx context.Context, hctx *Context, args any) error

// Context is passed to every callback invocation.
type Context struct {
	// Index is the name of the index being processed
	Index string
	// Level is the chain level being processed
	Level uint64
	// Logger is tagged with the index name
	Logger *logger.Logger
	// Tx writes handler models within the level transaction, recording undo data for rollbacks
	Tx *state.Tx
}
