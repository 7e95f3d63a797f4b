// Package matcher turns the items of a level into ordered handler invocations.
// Matchers are pure: they hold compiled handler configuration and never touch I/O.
package matcher

import (
	"fmt"

	"github.com/goran-ethernal/ChainSyncer/pkg/config"
	"github.com/goran-ethernal/ChainSyncer/pkg/models"
)

// Match is a handler selected for a piece of level data.
type Match struct {
	// Handler is the position of the handler in the index configuration
	Handler int
	// Callback is the registered callback name
	Callback string
	// Args is passed to the callback: models.OperationGroup, models.BigMapData, models.EventData,
	// models.TokenTransferData or models.HeadBlockData depending on the index kind.
	Args any
}

// Matcher selects handlers for the items of a single level, in execution order.
type Matcher[T models.Item] interface {
	Match(items []T) []Match
}

// ContractRef identifies a contract by address or by code hash.
type ContractRef struct {
	Address  string
	CodeHash int64
}

// Matches reports whether a contract with the given address and code hash is the referenced one.
// A nil reference matches anything.
func (c *ContractRef) Matches(address string, codeHash int64) bool {
	if c == nil {
		return true
	}
	if c.Address != "" {
		return c.Address == address
	}

	return codeHash != 0 && c.CodeHash == codeHash
}

// ResolveContract looks up a contract alias. An empty alias resolves to nil.
func ResolveContract(contracts map[string]*config.ContractConfig, alias string) (*ContractRef, error) {
	if alias == "" {
		return nil, nil
	}

	c, ok := contracts[alias]
	if !ok || c == nil {
		return nil, fmt.Errorf("unknown contract '%s'", alias)
	}

	return &ContractRef{Address: c.Address, CodeHash: c.CodeHash}, nil
}
