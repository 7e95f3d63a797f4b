package datasource_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/goran-ethernal/ChainSyncer/internal/common"
	"github.com/goran-ethernal/ChainSyncer/internal/datasource"
	"github.com/goran-ethernal/ChainSyncer/internal/datasource/mocks"
	"github.com/goran-ethernal/ChainSyncer/internal/logger"
	"github.com/goran-ethernal/ChainSyncer/internal/rpc"
	"github.com/goran-ethernal/ChainSyncer/pkg/config"
	pkgds "github.com/goran-ethernal/ChainSyncer/pkg/datasource"
	"github.com/goran-ethernal/ChainSyncer/pkg/models"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const waitFor = 5 * time.Second

type fakeStream struct {
	err  chan error
	once sync.Once
}

func newFakeStream() *fakeStream { return &fakeStream{err: make(chan error, 1)} }

func (s *fakeStream) Err() <-chan error { return s.err }

func (s *fakeStream) Unsubscribe() { s.once.Do(func() { close(s.err) }) }

func realtimeConfig(bufferSize, retryCount int) *config.DatasourceConfig {
	cfg := &config.DatasourceConfig{
		URL:        "http://localhost",
		WSURL:      "ws://localhost",
		BufferSize: &bufferSize,
		HTTP: config.HTTPConfig{
			RetryCount:      retryCount,
			RetrySleep:      common.NewDuration(time.Millisecond),
			RetryMultiplier: 2,
			MaxRetrySleep:   common.NewDuration(4 * time.Millisecond),
		},
	}
	cfg.ApplyDefaults()

	return cfg
}

func newRealtimeDatasource(t *testing.T, cfg *config.DatasourceConfig, dialer datasource.Dialer) *datasource.Datasource {
	t.Helper()

	client, err := rpc.NewClient("realtime", cfg.URL, &cfg.HTTP, nil, logger.NewNopLogger())
	require.NoError(t, err)

	ds, err := datasource.New("realtime", cfg, client, dialer, 10, logger.NewNopLogger())
	require.NoError(t, err)

	return ds
}

func dataMessage(level uint64, ids ...uint64) json.RawMessage {
	ops := make([]models.OperationData, 0, len(ids))
	for _, id := range ids {
		ops = append(ops, models.OperationData{Type: models.OperationTypeTransaction, ID: id, Level: level})
	}
	data, _ := json.Marshal(ops)

	return json.RawMessage(fmt.Sprintf(`{"type":1,"state":%d,"data":%s}`, level, data))
}

func stateMessage(kind int, level uint64) json.RawMessage {
	return json.RawMessage(fmt.Sprintf(`{"type":%d,"state":%d}`, kind, level))
}

type rollback struct {
	typ      models.MessageType
	from, to uint64
}

func TestRealtime_BufferAbsorbsShallowRollbacks(t *testing.T) {
	sub := models.Subscription{Type: models.MessageTypeOperation, Address: "KT1A"}

	stream := newFakeStream()
	channels := make(chan chan<- json.RawMessage, 1)

	transport := mocks.NewTransport(t)
	transport.EXPECT().Subscribe(mock.Anything, sub, mock.Anything).
		RunAndReturn(func(_ context.Context, _ models.Subscription, ch chan<- json.RawMessage) (datasource.Stream, error) {
			channels <- ch
			return stream, nil
		}).Once()
	transport.EXPECT().Close().Return().Once()

	ds := newRealtimeDatasource(t, realtimeConfig(1, 3), func(context.Context, string) (datasource.Transport, error) {
		return transport, nil
	})
	ds.AddSubscriptions(sub)

	batches := make(chan []uint64, 10)
	ds.CallOnOperations(func(_ context.Context, _ pkgds.Datasource, ops []models.OperationData) error {
		ids := make([]uint64, 0, len(ops))
		for _, op := range ops {
			ids = append(ids, op.ID)
		}
		batches <- ids
		return nil
	})

	rollbacks := make(chan rollback, 10)
	ds.CallOnRollback(func(_ context.Context, _ pkgds.Datasource, typ models.MessageType, from, to uint64) error {
		rollbacks <- rollback{typ, from, to}
		return nil
	})

	connected := make(chan struct{}, 1)
	ds.CallOnConnected(func(context.Context, pkgds.Datasource) error {
		connected <- struct{}{}
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- ds.Run(ctx) }()

	var ch chan<- json.RawMessage
	select {
	case ch = <-channels:
	case <-time.After(waitFor):
		t.Fatal("subscription was not made")
	}
	<-connected

	ch <- stateMessage(0, 100)
	require.Eventually(t, func() bool {
		level, ok := ds.GetSyncLevel(sub)
		return ok && level == 100
	}, waitFor, time.Millisecond)

	// level 101 leaves the one-level window once 102 arrives
	ch <- dataMessage(101, 1)
	ch <- dataMessage(102, 2)
	require.Equal(t, []uint64{1}, <-batches)

	// 102 is still buffered, so the rollback is absorbed silently
	ch <- stateMessage(2, 101)
	ch <- dataMessage(102, 3)
	ch <- dataMessage(103, 4)
	require.Equal(t, []uint64{3}, <-batches, "item 2 was dropped by the absorbed rollback")

	// 102 was already delivered, so this one reaches subscribers
	ch <- stateMessage(2, 100)
	select {
	case rb := <-rollbacks:
		require.Equal(t, rollback{models.MessageTypeOperation, 103, 100}, rb)
	case <-time.After(waitFor):
		t.Fatal("rollback was not escalated")
	}

	level, err := ds.GetChannelLevel(models.MessageTypeOperation)
	require.NoError(t, err)
	require.Equal(t, uint64(100), level)

	cancel()
	require.NoError(t, <-done)
	require.Empty(t, rollbacks)
}

func TestRealtime_ReconnectBudgetExhausted(t *testing.T) {
	var dials int
	ds := newRealtimeDatasource(t, realtimeConfig(0, 3), func(context.Context, string) (datasource.Transport, error) {
		dials++
		return nil, errors.New("connection refused")
	})

	err := ds.Run(context.Background())
	require.ErrorIs(t, err, datasource.ErrDatasourceFailed)
	require.ErrorContains(t, err, "connection refused")
	require.Equal(t, 3, dials)
}

func TestRealtime_DisconnectResetsState(t *testing.T) {
	sub := models.Subscription{Type: models.MessageTypeHead}

	stream := newFakeStream()
	channels := make(chan chan<- json.RawMessage, 1)

	transport := mocks.NewTransport(t)
	transport.EXPECT().Subscribe(mock.Anything, sub, mock.Anything).
		RunAndReturn(func(_ context.Context, _ models.Subscription, ch chan<- json.RawMessage) (datasource.Stream, error) {
			channels <- ch
			return stream, nil
		}).Once()
	transport.EXPECT().Close().Return().Once()

	dials := 0
	ds := newRealtimeDatasource(t, realtimeConfig(0, 2), func(context.Context, string) (datasource.Transport, error) {
		dials++
		if dials == 1 {
			return transport, nil
		}
		return nil, errors.New("still down")
	})
	ds.AddSubscriptions(sub)

	var (
		disconnects    int
		syncLevelKnown bool
	)
	ds.CallOnDisconnected(func(_ context.Context, d pkgds.Datasource) error {
		disconnects++
		_, syncLevelKnown = d.GetSyncLevel(sub)
		return nil
	})

	done := make(chan error, 1)
	go func() { done <- ds.Run(context.Background()) }()

	ch := <-channels
	ch <- stateMessage(0, 50)
	require.Eventually(t, func() bool {
		_, ok := ds.GetSyncLevel(sub)
		return ok
	}, waitFor, time.Millisecond)

	stream.err <- errors.New("connection reset by peer")

	select {
	case err := <-done:
		require.ErrorIs(t, err, datasource.ErrDatasourceFailed)
	case <-time.After(waitFor):
		t.Fatal("datasource did not give up")
	}

	require.Equal(t, 1, disconnects)
	require.False(t, syncLevelKnown, "sync levels are cleared before subscribers are told")
	require.True(t, ds.Negotiating())
	// the dropped session itself does not spend the reconnect budget
	require.Equal(t, 3, dials)
}

func TestRealtime_SubscriberErrorStopsDatasource(t *testing.T) {
	sub := models.Subscription{Type: models.MessageTypeOperation}

	channels := make(chan chan<- json.RawMessage, 1)
	transport := mocks.NewTransport(t)
	transport.EXPECT().Subscribe(mock.Anything, sub, mock.Anything).
		RunAndReturn(func(_ context.Context, _ models.Subscription, ch chan<- json.RawMessage) (datasource.Stream, error) {
			channels <- ch
			return newFakeStream(), nil
		}).Once()
	transport.EXPECT().Close().Return().Once()

	ds := newRealtimeDatasource(t, realtimeConfig(0, 3), func(context.Context, string) (datasource.Transport, error) {
		return transport, nil
	})
	ds.AddSubscriptions(sub)

	boom := errors.New("index queue closed")
	ds.CallOnOperations(func(context.Context, pkgds.Datasource, []models.OperationData) error {
		return boom
	})

	done := make(chan error, 1)
	go func() { done <- ds.Run(context.Background()) }()

	ch := <-channels
	ch <- dataMessage(10, 1)

	select {
	case err := <-done:
		require.ErrorIs(t, err, boom)
		require.NotErrorIs(t, err, datasource.ErrDatasourceFailed)
	case <-time.After(waitFor):
		t.Fatal("subscriber error did not stop the datasource")
	}
}

func TestRealtime_OverlappingSubscriptionsDeliverOnce(t *testing.T) {
	sender := models.Subscription{Type: models.MessageTypeOperation, Address: "KT1A"}
	target := models.Subscription{Type: models.MessageTypeOperation, Address: "KT1B"}

	channels := make(map[models.Subscription]chan<- json.RawMessage)
	var channelsMu sync.Mutex
	subscribed := make(chan struct{}, 2)

	transport := mocks.NewTransport(t)
	transport.EXPECT().Subscribe(mock.Anything, mock.Anything, mock.Anything).
		RunAndReturn(func(_ context.Context, sub models.Subscription, ch chan<- json.RawMessage) (datasource.Stream, error) {
			channelsMu.Lock()
			channels[sub] = ch
			channelsMu.Unlock()
			subscribed <- struct{}{}
			return newFakeStream(), nil
		}).Twice()
	transport.EXPECT().Close().Return().Once()

	ds := newRealtimeDatasource(t, realtimeConfig(1, 3), func(context.Context, string) (datasource.Transport, error) {
		return transport, nil
	})
	ds.AddSubscriptions(sender, target)

	batches := make(chan []uint64, 10)
	ds.CallOnOperations(func(_ context.Context, _ pkgds.Datasource, ops []models.OperationData) error {
		ids := make([]uint64, 0, len(ops))
		for _, op := range ops {
			ids = append(ids, op.ID)
		}
		batches <- ids
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- ds.Run(ctx) }()

	for range 2 {
		select {
		case <-subscribed:
		case <-time.After(waitFor):
			t.Fatal("subscriptions were not made")
		}
	}
	channelsMu.Lock()
	fromSender, fromTarget := channels[sender], channels[target]
	channelsMu.Unlock()

	// operation 7 goes from KT1A to KT1B and is pushed on both streams
	fromSender <- dataMessage(101, 5, 7)
	fromTarget <- dataMessage(101, 7)
	fromSender <- dataMessage(102, 8)

	select {
	case ids := <-batches:
		require.Equal(t, []uint64{5, 7}, ids)
	case <-time.After(waitFor):
		t.Fatal("level 101 was not delivered")
	}

	// the target stream lags behind the buffer window; its copy of 101 must not be delivered again
	fromTarget <- dataMessage(101, 7)
	fromTarget <- dataMessage(103, 9)

	select {
	case ids := <-batches:
		require.Equal(t, []uint64{8}, ids)
	case <-time.After(waitFor):
		t.Fatal("level 102 was not delivered")
	}

	cancel()
	require.NoError(t, <-done)
	require.Empty(t, batches)
}
