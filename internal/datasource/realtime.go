package datasource

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/goran-ethernal/ChainSyncer/internal/reorg"
	pkgds "github.com/goran-ethernal/ChainSyncer/pkg/datasource"
	"github.com/goran-ethernal/ChainSyncer/pkg/models"
	"github.com/sugawarayuuta/sonnet"
)

// messageKind is the kind of a realtime message.
type messageKind int

const (
	// messageState carries the level the subscription is synchronized to.
	messageState messageKind = iota
	// messageData carries new items.
	messageData
	// messageReorg reports that the chain was reorganized down to the given level.
	messageReorg
)

func (k messageKind) String() string {
	switch k {
	case messageState:
		return "state"
	case messageData:
		return "data"
	case messageReorg:
		return "reorg"
	}

	return fmt.Sprintf("unknown(%d)", int(k))
}

type realtimeMessage struct {
	Kind  messageKind     `json:"type"`
	State uint64          `json:"state"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type inboundMessage struct {
	sub models.Subscription
	raw json.RawMessage
}

// connectionLostError marks errors after which the realtime session can be re-established.
type connectionLostError struct {
	err error
}

func (e *connectionLostError) Error() string { return "realtime connection lost: " + e.err.Error() }
func (e *connectionLostError) Unwrap() error { return e.err }

var errStreamClosed = errors.New("subscription closed by server")

// Run keeps the realtime connection alive until ctx is done. Each lost connection resets the
// negotiated levels and buffered messages and is followed by a reconnect after an exponentially
// growing sleep. Run fails with ErrDatasourceFailed after retry_count consecutive failed attempts.
// Without a realtime endpoint the head is polled instead.
func (d *Datasource) Run(ctx context.Context) error {
	if !d.Realtime() {
		return d.poll(ctx)
	}

	var (
		attempts int
		sleep    = d.cfg.HTTP.RetrySleep.Duration
	)

	for {
		wasConnected, err := d.session(ctx)
		if ctx.Err() != nil {
			return nil
		}

		var lost *connectionLostError
		if !errors.As(err, &lost) {
			return err
		}

		connected.WithLabelValues(d.name).Set(0)
		d.reset()

		// a dropped session starts a fresh reconnect budget; only failed dials spend it
		if wasConnected {
			attempts = 0
			sleep = d.cfg.HTTP.RetrySleep.Duration
			if err := d.emitDisconnected(ctx); err != nil {
				return err
			}
		} else {
			attempts++
		}

		if attempts >= d.cfg.HTTP.RetryCount {
			return fmt.Errorf("%w: %s: %d reconnect attempts failed: %w", ErrDatasourceFailed, d.name, attempts, lost.err)
		}

		d.log.Warnw("realtime connection lost, reconnecting",
			"error", lost.err,
			"attempt", attempts+1,
			"sleep", sleep,
		)
		reconnects.WithLabelValues(d.name).Inc()

		select {
		case <-time.After(sleep):
		case <-ctx.Done():
			return nil
		}

		sleep = time.Duration(float64(sleep) * d.cfg.HTTP.RetryMultiplier)
		if maxSleep := d.cfg.HTTP.MaxRetrySleep.Duration; maxSleep > 0 && sleep > maxSleep {
			sleep = maxSleep
		}
	}
}

// session connects, subscribes to every registered subscription and handles messages
// until the connection is lost or a subscriber fails.
func (d *Datasource) session(ctx context.Context) (bool, error) {
	transport, err := d.dial(ctx, d.cfg.WSURL)
	if err != nil {
		return false, &connectionLostError{err: err}
	}
	defer transport.Close()

	sessionCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	subs := d.Subscriptions()
	inbound := make(chan inboundMessage)
	lost := make(chan error, len(subs))

	streams := make([]Stream, 0, len(subs))
	defer func() {
		for _, s := range streams {
			s.Unsubscribe()
		}
	}()

	for _, sub := range subs {
		ch := make(chan json.RawMessage, d.RequestLimit())
		stream, err := transport.Subscribe(sessionCtx, sub, ch)
		if err != nil {
			return false, &connectionLostError{err: err}
		}
		streams = append(streams, stream)

		go forward(sessionCtx, sub, ch, stream, inbound, lost)
	}

	d.log.Infow("realtime connection established", "endpoint", d.cfg.WSURL, "subscriptions", len(subs))
	connected.WithLabelValues(d.name).Set(1)

	if err := d.emitConnected(ctx); err != nil {
		return true, err
	}

	for {
		select {
		case <-ctx.Done():
			return true, nil
		case err := <-lost:
			return true, &connectionLostError{err: err}
		case msg := <-inbound:
			if err := d.handleMessage(ctx, msg.sub, msg.raw); err != nil {
				return true, err
			}
		}
	}
}

func forward(
	ctx context.Context,
	sub models.Subscription,
	ch <-chan json.RawMessage,
	stream Stream,
	inbound chan<- inboundMessage,
	lost chan<- error,
) {
	for {
		select {
		case raw := <-ch:
			select {
			case inbound <- inboundMessage{sub: sub, raw: raw}:
			case <-ctx.Done():
				return
			}
		case err := <-stream.Err():
			if err == nil {
				err = errStreamClosed
			}
			lost <- err
			return
		case <-ctx.Done():
			return
		}
	}
}

// handleMessage applies a single realtime message of a subscription.
func (d *Datasource) handleMessage(ctx context.Context, sub models.Subscription, raw json.RawMessage) error {
	var msg realtimeMessage
	if err := sonnet.Unmarshal(raw, &msg); err != nil {
		return fmt.Errorf("datasource %s: malformed realtime message on %s: %w", d.name, sub, err)
	}

	realtimeMessages.WithLabelValues(d.name, string(sub.Type), msg.Kind.String()).Inc()

	switch msg.Kind {
	case messageState:
		d.log.Debugw("subscription synchronized", "subscription", sub.String(), "level", msg.State)
		d.SetSyncLevel(sub, msg.State)
		return nil

	case messageData:
		return d.handleData(ctx, sub.Type, msg)

	case messageReorg:
		return d.handleReorg(ctx, sub.Type, msg.State)
	}

	return fmt.Errorf("datasource %s: unknown realtime message kind %d on %s", d.name, int(msg.Kind), sub)
}

func (d *Datasource) handleData(ctx context.Context, typ models.MessageType, msg realtimeMessage) error {
	items, err := decodeItems(typ, msg.Data)
	if err != nil {
		return fmt.Errorf("datasource %s: %w", d.name, err)
	}

	level := msg.State
	for _, item := range items {
		if emitted := d.emitted[typ]; item.GetLevel() <= emitted {
			// another stream already delivered this level; the buffer window was too short to merge them
			lateItems.WithLabelValues(d.name, string(typ)).Inc()
			d.log.Warnw("dropping realtime item of an already delivered level, consider a larger buffer_size",
				"type", typ, "level", item.GetLevel(), "id", item.GetID(), "delivered", emitted)
			continue
		}

		item, err = d.complete(ctx, item)
		if err != nil {
			return err
		}
		d.buffer.Add(typ, item.GetLevel(), item)
		level = max(level, item.GetLevel())
	}

	if level > 0 {
		d.setChannelLevel(typ, level)
	}

	return d.emitBuffered(ctx)
}

// complete fills fields the realtime payload leaves out.
func (d *Datasource) complete(ctx context.Context, item models.Item) (models.Item, error) {
	op, ok := item.(models.OperationData)
	if !ok || op.OriginatedContractAddress == "" || op.OriginatedContractCodeHash != nil {
		return item, nil
	}

	codeHash, err := d.GetContractCodeHash(ctx, op.OriginatedContractAddress)
	if err != nil {
		return nil, fmt.Errorf("datasource %s: failed to resolve code hash of %s: %w", d.name, op.OriginatedContractAddress, err)
	}
	op.OriginatedContractCodeHash = &codeHash

	return op, nil
}

// emitBuffered delivers every level that left the buffer window, one callback batch per level and type.
func (d *Datasource) emitBuffered(ctx context.Context) error {
	msgs := d.buffer.YieldFrom()

	for start := 0; start < len(msgs); {
		level := msgs[start].Level
		end := start
		for end < len(msgs) && msgs[end].Level == level {
			end++
		}

		var (
			types  []models.MessageType
			byType = make(map[models.MessageType][]models.Item)
		)
		for _, m := range msgs[start:end] {
			if _, ok := byType[m.Type]; !ok {
				types = append(types, m.Type)
			}
			byType[m.Type] = append(byType[m.Type], m.Item)
		}

		for _, typ := range types {
			// an item matching several subscriptions arrives once per stream
			items := models.DedupByID(byType[typ])
			if err := d.emitItems(ctx, typ, items); err != nil {
				return err
			}
			d.emitted[typ] = max(d.emitted[typ], level)
		}

		start = end
	}

	return nil
}

func (d *Datasource) handleReorg(ctx context.Context, typ models.MessageType, toLevel uint64) error {
	fromLevel, err := d.GetChannelLevel(typ)
	if err != nil {
		return err
	}

	absorbed := d.buffer.Rollback(typ, fromLevel, toLevel)
	reorg.RollbackLog(d.name, fromLevel, toLevel, absorbed)
	d.setChannelLevel(typ, toLevel)
	if d.emitted[typ] > toLevel {
		// levels above toLevel are sent again
		d.emitted[typ] = toLevel
	}

	if absorbed {
		d.log.Infow("rollback absorbed by message buffer", "type", typ, "from", fromLevel, "to", toLevel)
		return nil
	}

	d.log.Warnw("rollback escalated to subscribers", "type", typ, "from", fromLevel, "to", toLevel)

	return d.emitRollback(ctx, typ, fromLevel, toLevel)
}

// poll reads the head every poll interval and advances the sync level of every subscription.
func (d *Datasource) poll(ctx context.Context) error {
	ticker := time.NewTicker(d.cfg.PollInterval.Duration)
	defer ticker.Stop()

	var last uint64
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		head, err := d.GetHead(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			d.log.Warnw("failed to poll head", "error", err)
			continue
		}

		if head.Level <= last {
			continue
		}
		last = head.Level

		d.setSyncLevels(head.Level)
		if err := emit(d, &d.onHead, func(fn pkgds.HeadCallback) error { return fn(ctx, d, head) }); err != nil {
			return err
		}
	}
}

func decodeItems(typ models.MessageType, data json.RawMessage) ([]models.Item, error) {
	if len(data) == 0 {
		return nil, nil
	}

	switch typ {
	case models.MessageTypeOperation:
		return decodeSlice[models.OperationData](typ, data)
	case models.MessageTypeBigMap:
		return decodeSlice[models.BigMapData](typ, data)
	case models.MessageTypeEvent:
		return decodeSlice[models.EventData](typ, data)
	case models.MessageTypeTokenTransfer:
		return decodeSlice[models.TokenTransferData](typ, data)
	case models.MessageTypeHead:
		var head models.HeadBlockData
		if err := sonnet.Unmarshal(data, &head); err != nil {
			return nil, fmt.Errorf("malformed %s payload: %w", typ, err)
		}
		return []models.Item{head}, nil
	}

	return nil, fmt.Errorf("unknown message type '%s'", typ)
}

func decodeSlice[T models.Item](typ models.MessageType, data json.RawMessage) ([]models.Item, error) {
	var typed []T
	if err := sonnet.Unmarshal(data, &typed); err != nil {
		return nil, fmt.Errorf("malformed %s payload: %w", typ, err)
	}

	items := make([]models.Item, 0, len(typed))
	for _, item := range typed {
		items = append(items, item)
	}

	return items, nil
}
