// Package notify publishes index lifecycle events to NATS so that downstream consumers
// can react to status changes, rollbacks and reindexing.
package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/goran-ethernal/ChainSyncer/internal/logger"
	"github.com/goran-ethernal/ChainSyncer/pkg/config"
	"github.com/goran-ethernal/ChainSyncer/pkg/models"
	"github.com/nats-io/nats.go"
	"github.com/sugawarayuuta/sonnet"
)

// EventType is the kind of a published event.
type EventType string

const (
	EventStatus   EventType = "status"
	EventRollback EventType = "rollback"
	EventReindex  EventType = "reindex"
)

// Event describes a change of an index.
type Event struct {
	Type      EventType          `json:"type"`
	Index     string             `json:"index"`
	Status    models.IndexStatus `json:"status,omitempty"`
	Level     uint64             `json:"level"`
	FromLevel uint64             `json:"from_level,omitempty"`
	ToLevel   uint64             `json:"to_level,omitempty"`
	Timestamp int64              `json:"timestamp"`
}

// Notifier publishes index events. Publishing never blocks index processing for long:
// failures are returned to the caller, which only logs them.
type Notifier interface {
	Publish(ctx context.Context, event Event) error
	Close()
}

// New creates a NATS notifier, or a no-op notifier when cfg is nil.
func New(cfg *config.NotifierConfig, log *logger.Logger) (Notifier, error) {
	if cfg == nil {
		return Noop{}, nil
	}

	conn, err := nats.Connect(cfg.URL,
		nats.Name("chainsyncer"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second), //nolint:mnd
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warnw("disconnected from NATS", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Infow("reconnected to NATS", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	log.Infow("notifier connected", "url", conn.ConnectedUrl(), "subject_prefix", cfg.SubjectPrefix)

	return NewNATS(conn, cfg.SubjectPrefix, log), nil
}

// Conn is the part of a NATS connection used by the notifier.
type Conn interface {
	Publish(subject string, data []byte) error
	Close()
}

// NATS publishes every event as JSON on <prefix>.<index>.<type>.
type NATS struct {
	conn   Conn
	prefix string
	log    *logger.Logger
}

// NewNATS creates a notifier on an established connection.
func NewNATS(conn Conn, prefix string, log *logger.Logger) *NATS {
	return &NATS{conn: conn, prefix: prefix, log: log}
}

// Publish sends an event. A zero timestamp is set to the current time.
func (n *NATS) Publish(_ context.Context, event Event) error {
	if event.Timestamp == 0 {
		event.Timestamp = time.Now().UTC().Unix()
	}

	data, err := sonnet.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode %s event: %w", event.Type, err)
	}

	subject := Subject(n.prefix, event)
	if err := n.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", subject, err)
	}

	n.log.Debugw("event published", "subject", subject)

	return nil
}

// Close drains nothing and closes the connection; published messages are fire-and-forget.
func (n *NATS) Close() {
	n.conn.Close()
}

// Subject returns the subject an event is published on.
func Subject(prefix string, event Event) string {
	return fmt.Sprintf("%s.%s.%s", prefix, event.Index, event.Type)
}

// Noop discards every event.
type Noop struct{}

func (Noop) Publish(context.Context, Event) error { return nil }
func (Noop) Close()                               {}
