package matcher

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/goran-ethernal/ChainSyncer/pkg/config"
	"github.com/goran-ethernal/ChainSyncer/pkg/models"
)

type operationHandler struct {
	index    int
	callback string
	pattern  []Pattern
	required int
}

// OperationMatcher matches operation groups against handler patterns.
type OperationMatcher struct {
	handlers []operationHandler
	order    string
}

var _ Matcher[models.OperationData] = (*OperationMatcher)(nil)

// NewOperationMatcher compiles the handlers of an operation index.
// order is config.MatchOrderDeclaration or config.MatchOrderOperationID.
func NewOperationMatcher(
	handlers []config.HandlerConfig,
	contracts map[string]*config.ContractConfig,
	order string,
) (*OperationMatcher, error) {
	if order != config.MatchOrderDeclaration && order != config.MatchOrderOperationID {
		return nil, fmt.Errorf("unknown operation match order '%s'", order)
	}

	m := &OperationMatcher{order: order}
	for i, h := range handlers {
		if len(h.Pattern) == 0 {
			return nil, fmt.Errorf("handler[%d] %s: empty pattern", i, h.Callback)
		}

		compiled := operationHandler{index: i, callback: h.Callback}
		for j, p := range h.Pattern {
			pattern, err := NewPattern(p, contracts)
			if err != nil {
				return nil, fmt.Errorf("handler[%d].pattern[%d]: %w", i, j, err)
			}
			compiled.pattern = append(compiled.pattern, pattern)
			if !pattern.IsOptional() {
				compiled.required++
			}
		}
		if compiled.required == 0 {
			return nil, fmt.Errorf("handler[%d] %s: pattern has no required steps", i, h.Callback)
		}

		m.handlers = append(m.handlers, compiled)
	}

	return m, nil
}

// Match groups operations by (hash, counter) and matches every group against every handler.
// Groups are visited in the order of their first operation.
func (m *OperationMatcher) Match(ops []models.OperationData) []Match {
	var out []Match
	for _, group := range groupOperations(ops) {
		out = append(out, m.matchGroup(group)...)
	}

	return out
}

type operationGroup struct {
	hash       string
	counter    uint64
	operations []*models.OperationData
}

func groupOperations(ops []models.OperationData) []*operationGroup {
	type key struct {
		hash    string
		counter uint64
	}

	var (
		groups []*operationGroup
		byKey  = make(map[key]*operationGroup)
	)
	for i := range ops {
		op := &ops[i]
		k := key{op.Hash, op.Counter}
		g, ok := byKey[k]
		if !ok {
			g = &operationGroup{hash: op.Hash, counter: op.Counter}
			byKey[k] = g
			groups = append(groups, g)
		}
		g.operations = append(g.operations, op)
	}

	return groups
}

func (m *OperationMatcher) matchGroup(group *operationGroup) []Match {
	var matched []Match
	for _, h := range m.handlers {
		for _, ops := range matchSequence(h, group.operations) {
			matched = append(matched, Match{
				Handler:  h.index,
				Callback: h.callback,
				Args: models.OperationGroup{
					Hash:       group.hash,
					Counter:    group.counter,
					Operations: ops,
				},
			})
		}
	}

	if m.order == config.MatchOrderOperationID && len(matched) > 1 {
		slices.SortStableFunc(matched, func(a, b Match) int {
			return cmp.Compare(lastOperationID(a), lastOperationID(b))
		})
	}

	return matched
}

// matchSequence finds every occurrence of the handler pattern as a subsequence of ops.
// Optional steps that do not match the current operation are recorded as nil and skipped.
func matchSequence(h operationHandler, ops []*models.OperationData) [][]*models.OperationData {
	var (
		out     [][]*models.OperationData
		current []*models.OperationData
		step    int
		found   int
	)

	for i := 0; i < len(ops); {
		pattern := h.pattern[step]

		switch {
		case matchPattern(pattern, ops[i]):
			current = append(current, ops[i])
			found++
			step++
			i++
		case pattern.IsOptional():
			current = append(current, nil)
			step++
		default:
			i++
		}

		if step == len(h.pattern) {
			out = append(out, current)
			current, step, found = nil, 0, 0
		}
	}

	// the operations ran out while only optional steps were left
	if step > 0 && found > 0 && allOptional(h.pattern[step:]) {
		for range h.pattern[step:] {
			current = append(current, nil)
		}
		out = append(out, current)
	}

	return out
}

func allOptional(patterns []Pattern) bool {
	for _, p := range patterns {
		if !p.IsOptional() {
			return false
		}
	}

	return true
}

func lastOperationID(m Match) uint64 {
	group, ok := m.Args.(models.OperationGroup)
	if !ok {
		return 0
	}

	for _, op := range slices.Backward(group.Operations) {
		if op != nil {
			return op.ID
		}
	}

	return 0
}
