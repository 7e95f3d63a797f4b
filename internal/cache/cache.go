package cache

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/goran-ethernal/ChainSyncer/internal/logger"
	"github.com/goran-ethernal/ChainSyncer/pkg/config"
	"golang.org/x/crypto/blake2b"
)

// ErrNotFound is returned by Get when a key is absent or expired.
var ErrNotFound = errors.New("cache: key not found")

// Cache stores raw datasource responses by key.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Close() error
}

// New builds the cache described by cfg. A nil config disables caching.
func New(cfg *config.CacheConfig, log *logger.Logger) (Cache, error) {
	if cfg == nil {
		return NewNoop(), nil
	}

	switch cfg.Backend {
	case config.CacheBackendBadger:
		return NewBadger(cfg.Path, cfg.TTL.Duration, log)
	case config.CacheBackendRedis:
		return NewRedis(cfg.URL, cfg.TTL.Duration)
	default:
		return nil, fmt.Errorf("unknown cache backend '%s'", cfg.Backend)
	}
}

// Key derives a fixed size cache key from the request parts.
func Key(parts ...string) string {
	h, _ := blake2b.New256(nil)
	for _, p := range parts {
		h.Write([]byte(p))
		h.Write([]byte{0})
	}

	return hex.EncodeToString(h.Sum(nil))
}

// Noop never stores anything.
type Noop struct{}

func NewNoop() *Noop { return &Noop{} }

func (*Noop) Get(context.Context, string) ([]byte, error) { return nil, ErrNotFound }
func (*Noop) Set(context.Context, string, []byte) error   { return nil }
func (*Noop) Close() error                                { return nil }
