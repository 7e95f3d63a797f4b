package datasource

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/rpc"
	"github.com/goran-ethernal/ChainSyncer/pkg/models"
)

// subscriptionNamespace is the JSON-RPC namespace of realtime subscriptions (indexer_subscribe).
const subscriptionNamespace = "indexer"

// Stream is a live realtime subscription.
// Err is closed when the subscription ends and receives an error if the connection was lost.
type Stream interface {
	Err() <-chan error
	Unsubscribe()
}

// Transport delivers realtime messages for subscriptions.
type Transport interface {
	Subscribe(ctx context.Context, sub models.Subscription, ch chan<- json.RawMessage) (Stream, error)
	Close()
}

// Dialer opens a realtime transport to the given endpoint.
type Dialer func(ctx context.Context, endpoint string) (Transport, error)

type wsTransport struct {
	client *rpc.Client
}

// DialWebsocket connects to a websocket JSON-RPC endpoint.
func DialWebsocket(ctx context.Context, endpoint string) (Transport, error) {
	client, err := rpc.DialWebsocket(ctx, endpoint, "")
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", endpoint, err)
	}

	return &wsTransport{client: client}, nil
}

func (t *wsTransport) Subscribe(ctx context.Context, sub models.Subscription, ch chan<- json.RawMessage) (Stream, error) {
	stream, err := t.client.Subscribe(ctx, subscriptionNamespace, ch, string(sub.Type), subscriptionArgs(sub))
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to %s: %w", sub, err)
	}

	return stream, nil
}

func (t *wsTransport) Close() {
	t.client.Close()
}

func subscriptionArgs(sub models.Subscription) map[string]any {
	args := make(map[string]any)
	if sub.Address != "" {
		args["address"] = sub.Address
	}
	if sub.CodeHash != 0 {
		args["codeHash"] = sub.CodeHash
	}
	if sub.Tag != "" {
		args["tag"] = sub.Tag
	}
	if sub.Path != "" {
		args["path"] = sub.Path
	}

	return args
}
