package datasource

import (
	"context"
	"fmt"

	pkgds "github.com/goran-ethernal/ChainSyncer/pkg/datasource"
	"github.com/goran-ethernal/ChainSyncer/pkg/models"
)

func (d *Datasource) CallOnOperations(fn pkgds.OperationsCallback) {
	d.callbacksMu.Lock()
	defer d.callbacksMu.Unlock()
	d.onOperations = append(d.onOperations, fn)
}

func (d *Datasource) CallOnBigMaps(fn pkgds.BigMapsCallback) {
	d.callbacksMu.Lock()
	defer d.callbacksMu.Unlock()
	d.onBigMaps = append(d.onBigMaps, fn)
}

func (d *Datasource) CallOnEvents(fn pkgds.EventsCallback) {
	d.callbacksMu.Lock()
	defer d.callbacksMu.Unlock()
	d.onEvents = append(d.onEvents, fn)
}

func (d *Datasource) CallOnTokenTransfers(fn pkgds.TokenTransfersCallback) {
	d.callbacksMu.Lock()
	defer d.callbacksMu.Unlock()
	d.onTokenTransfers = append(d.onTokenTransfers, fn)
}

func (d *Datasource) CallOnHead(fn pkgds.HeadCallback) {
	d.callbacksMu.Lock()
	defer d.callbacksMu.Unlock()
	d.onHead = append(d.onHead, fn)
}

func (d *Datasource) CallOnRollback(fn pkgds.RollbackCallback) {
	d.callbacksMu.Lock()
	defer d.callbacksMu.Unlock()
	d.onRollback = append(d.onRollback, fn)
}

func (d *Datasource) CallOnConnected(fn pkgds.ConnectionCallback) {
	d.callbacksMu.Lock()
	defer d.callbacksMu.Unlock()
	d.onConnected = append(d.onConnected, fn)
}

func (d *Datasource) CallOnDisconnected(fn pkgds.ConnectionCallback) {
	d.callbacksMu.Lock()
	defer d.callbacksMu.Unlock()
	d.onDisconnected = append(d.onDisconnected, fn)
}

// emit runs callbacks one after another, stopping at the first error.
func emit[F any](d *Datasource, callbacks *[]F, call func(F) error) error {
	d.callbacksMu.RLock()
	fns := append([]F(nil), *callbacks...)
	d.callbacksMu.RUnlock()

	for i, fn := range fns {
		if err := call(fn); err != nil {
			return fmt.Errorf("datasource %s: callback %d failed: %w", d.name, i, err)
		}
	}

	return nil
}

// emitItems delivers a single level of buffered items of one type.
func (d *Datasource) emitItems(ctx context.Context, typ models.MessageType, items []models.Item) error {
	switch typ {
	case models.MessageTypeOperation:
		ops := typedItems[models.OperationData](items)
		return emit(d, &d.onOperations, func(fn pkgds.OperationsCallback) error { return fn(ctx, d, ops) })
	case models.MessageTypeBigMap:
		diffs := typedItems[models.BigMapData](items)
		return emit(d, &d.onBigMaps, func(fn pkgds.BigMapsCallback) error { return fn(ctx, d, diffs) })
	case models.MessageTypeEvent:
		events := typedItems[models.EventData](items)
		return emit(d, &d.onEvents, func(fn pkgds.EventsCallback) error { return fn(ctx, d, events) })
	case models.MessageTypeTokenTransfer:
		transfers := typedItems[models.TokenTransferData](items)
		return emit(d, &d.onTokenTransfers, func(fn pkgds.TokenTransfersCallback) error { return fn(ctx, d, transfers) })
	case models.MessageTypeHead:
		for _, head := range typedItems[models.HeadBlockData](items) {
			if err := emit(d, &d.onHead, func(fn pkgds.HeadCallback) error { return fn(ctx, d, head) }); err != nil {
				return err
			}
		}
		return nil
	}

	return fmt.Errorf("datasource %s: unknown message type '%s'", d.name, typ)
}

func (d *Datasource) emitRollback(ctx context.Context, typ models.MessageType, fromLevel, toLevel uint64) error {
	return emit(d, &d.onRollback, func(fn pkgds.RollbackCallback) error { return fn(ctx, d, typ, fromLevel, toLevel) })
}

func (d *Datasource) emitConnected(ctx context.Context) error {
	return emit(d, &d.onConnected, func(fn pkgds.ConnectionCallback) error { return fn(ctx, d) })
}

func (d *Datasource) emitDisconnected(ctx context.Context) error {
	return emit(d, &d.onDisconnected, func(fn pkgds.ConnectionCallback) error { return fn(ctx, d) })
}

func typedItems[T models.Item](items []models.Item) []T {
	out := make([]T, 0, len(items))
	for _, item := range items {
		if typed, ok := item.(T); ok {
			out = append(out, typed)
		}
	}

	return out
}
