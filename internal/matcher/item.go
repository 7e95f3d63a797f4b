package matcher

import (
	"fmt"

	"github.com/goran-ethernal/ChainSyncer/pkg/config"
	"github.com/goran-ethernal/ChainSyncer/pkg/models"
)

type bigMapHandler struct {
	index    int
	callback string
	contract *ContractRef
	path     string
}

// BigMapMatcher fires every handler whose contract and path match an update, in declaration order.
type BigMapMatcher struct {
	handlers []bigMapHandler
}

var _ Matcher[models.BigMapData] = (*BigMapMatcher)(nil)

func NewBigMapMatcher(handlers []config.HandlerConfig, contracts map[string]*config.ContractConfig) (*BigMapMatcher, error) {
	m := &BigMapMatcher{}
	for i, h := range handlers {
		contract, err := ResolveContract(contracts, h.Contract)
		if err != nil {
			return nil, fmt.Errorf("handler[%d]: %w", i, err)
		}
		if contract == nil || contract.Address == "" {
			return nil, fmt.Errorf("handler[%d] %s: big map handlers require a contract address", i, h.Callback)
		}
		if h.Path == "" {
			return nil, fmt.Errorf("handler[%d] %s: path is required", i, h.Callback)
		}
		m.handlers = append(m.handlers, bigMapHandler{index: i, callback: h.Callback, contract: contract, path: h.Path})
	}

	return m, nil
}

func (m *BigMapMatcher) Match(diffs []models.BigMapData) []Match {
	var out []Match
	for _, diff := range diffs {
		for _, h := range m.handlers {
			if h.path != diff.Path || !h.contract.Matches(diff.ContractAddress, 0) {
				continue
			}
			out = append(out, Match{Handler: h.index, Callback: h.callback, Args: diff})
		}
	}

	return out
}

type eventHandler struct {
	index    int
	callback string
	contract *ContractRef
	tag      string
}

// EventMatcher selects the first handler matching an event.
// Handlers without a tag catch every event of their contract.
type EventMatcher struct {
	handlers []eventHandler
}

var _ Matcher[models.EventData] = (*EventMatcher)(nil)

func NewEventMatcher(handlers []config.HandlerConfig, contracts map[string]*config.ContractConfig) (*EventMatcher, error) {
	m := &EventMatcher{}
	for i, h := range handlers {
		contract, err := ResolveContract(contracts, h.Contract)
		if err != nil {
			return nil, fmt.Errorf("handler[%d]: %w", i, err)
		}
		if contract == nil {
			return nil, fmt.Errorf("handler[%d] %s: contract is required", i, h.Callback)
		}
		m.handlers = append(m.handlers, eventHandler{index: i, callback: h.Callback, contract: contract, tag: h.Tag})
	}

	return m, nil
}

func (m *EventMatcher) Match(events []models.EventData) []Match {
	var out []Match
	for _, event := range events {
		for _, h := range m.handlers {
			if h.tag != "" && h.tag != event.Tag {
				continue
			}
			if !h.contract.Matches(event.ContractAddress, event.ContractCodeHash) {
				continue
			}
			out = append(out, Match{Handler: h.index, Callback: h.callback, Args: event})
			break
		}
	}

	return out
}

type tokenTransferHandler struct {
	index    int
	callback string
	contract *ContractRef
	tokenID  string
	from     *ContractRef
	to       *ContractRef
}

// TokenTransferMatcher fires every handler whose filters all match a transfer, in declaration order.
// Unset filters match anything.
type TokenTransferMatcher struct {
	handlers []tokenTransferHandler
}

var _ Matcher[models.TokenTransferData] = (*TokenTransferMatcher)(nil)

func NewTokenTransferMatcher(
	handlers []config.HandlerConfig,
	contracts map[string]*config.ContractConfig,
) (*TokenTransferMatcher, error) {
	m := &TokenTransferMatcher{}
	for i, h := range handlers {
		compiled := tokenTransferHandler{index: i, callback: h.Callback, tokenID: h.TokenID}

		var err error
		if compiled.contract, err = ResolveContract(contracts, h.Contract); err != nil {
			return nil, fmt.Errorf("handler[%d] contract: %w", i, err)
		}
		if compiled.from, err = ResolveContract(contracts, h.From); err != nil {
			return nil, fmt.Errorf("handler[%d] from: %w", i, err)
		}
		if compiled.to, err = ResolveContract(contracts, h.To); err != nil {
			return nil, fmt.Errorf("handler[%d] to: %w", i, err)
		}

		m.handlers = append(m.handlers, compiled)
	}

	return m, nil
}

func (m *TokenTransferMatcher) Match(transfers []models.TokenTransferData) []Match {
	var out []Match
	for _, transfer := range transfers {
		for _, h := range m.handlers {
			if h.tokenID != "" && h.tokenID != transfer.TokenID {
				continue
			}
			if !h.contract.Matches(transfer.ContractAddress, 0) ||
				!h.from.Matches(transfer.FromAddress, 0) ||
				!h.to.Matches(transfer.ToAddress, 0) {
				continue
			}
			out = append(out, Match{Handler: h.index, Callback: h.callback, Args: transfer})
		}
	}

	return out
}

// HeadMatcher passes every head block to every handler.
type HeadMatcher struct {
	callbacks []string
}

var _ Matcher[models.HeadBlockData] = (*HeadMatcher)(nil)

func NewHeadMatcher(handlers []config.HandlerConfig) *HeadMatcher {
	m := &HeadMatcher{}
	for _, h := range handlers {
		m.callbacks = append(m.callbacks, h.Callback)
	}

	return m
}

func (m *HeadMatcher) Match(heads []models.HeadBlockData) []Match {
	var out []Match
	for _, head := range heads {
		for i, callback := range m.callbacks {
			out = append(out, Match{Handler: i, Callback: callback, Args: head})
		}
	}

	return out
}
