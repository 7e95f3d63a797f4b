package handler

import (
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/goran-ethernal/ChainSyncer/internal/db"
	"github.com/goran-ethernal/ChainSyncer/internal/logger"
)

var (
	registry   = make(map[string]Callback)
	migrations = make(map[string][]db.Migration)
	mu         sync.RWMutex
)

// Register registers a callback under the given name.
// This is typically called in init() functions of handler packages.
// The name is case-insensitive and will be stored in lowercase.
func Register(name string, callback Callback) {
	mu.Lock()
	defer mu.Unlock()

	key := strings.ToLower(name)
	if _, exists := registry[key]; exists {
		logger.GetDefaultLogger().Infof("callback with name %s already in handler registry. "+
			"It will be overwritten.", key)
	}

	registry[key] = callback
}

// RegisterMigrations registers the schema of the models written by a handler package.
// Migrations are applied to the state database before any index starts.
func RegisterMigrations(owner string, m ...db.Migration) {
	mu.Lock()
	defer mu.Unlock()

	migrations[strings.ToLower(owner)] = m
}

// Get returns the callback registered under name, or nil. The lookup is case-insensitive.
func Get(name string) Callback {
	mu.RLock()
	defer mu.RUnlock()

	return registry[strings.ToLower(name)]
}

// Resolve returns the callback registered under name or an error listing the registered ones.
func Resolve(name string) (Callback, error) {
	if cb := Get(name); cb != nil {
		return cb, nil
	}

	return nil, fmt.Errorf("unknown callback: %s (registered callbacks: %v)", name, ListRegistered())
}

// ListRegistered returns the names of all registered callbacks in sorted order.
func ListRegistered() []string {
	mu.RLock()
	defer mu.RUnlock()

	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	slices.Sort(names)

	return names
}

// Migrations returns every registered handler migration, grouped by owner in sorted owner order.
func Migrations() []db.Migration {
	mu.RLock()
	defer mu.RUnlock()

	owners := make([]string, 0, len(migrations))
	for owner := range migrations {
		owners = append(owners, owner)
	}
	slices.Sort(owners)

	var out []db.Migration
	for _, owner := range owners {
		for _, m := range migrations[owner] {
			if m.Prefix == "" {
				m.Prefix = owner + "_"
			}
			out = append(out, m)
		}
	}

	return out
}
