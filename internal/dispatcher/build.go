package dispatcher

import (
	"fmt"

	"github.com/goran-ethernal/ChainSyncer/internal/common"
	internalconfig "github.com/goran-ethernal/ChainSyncer/internal/config"
	"github.com/goran-ethernal/ChainSyncer/internal/index"
	"github.com/goran-ethernal/ChainSyncer/internal/matcher"
	"github.com/goran-ethernal/ChainSyncer/pkg/config"
	pkgds "github.com/goran-ethernal/ChainSyncer/pkg/datasource"
	"github.com/goran-ethernal/ChainSyncer/pkg/handler"
	"github.com/goran-ethernal/ChainSyncer/pkg/models"
	"github.com/sugawarayuuta/sonnet"
)

// build creates the index of one configuration entry with the source and matcher of its kind.
func (d *Dispatcher) build(name string, idx *config.IndexConfig) (index.Runner, error) {
	hash, err := internalconfig.ConfigHash(d.cfg, name)
	if err != nil {
		return nil, err
	}

	primary, err := d.resolveDatasources(idx.Datasources)
	if err != nil {
		return nil, err
	}
	lastMile, err := d.resolveDatasources(idx.LastMileDatasources)
	if err != nil {
		return nil, err
	}

	callbacks := make([]handler.Callback, len(idx.Handlers))
	for i, h := range idx.Handlers {
		if callbacks[i], err = handler.Resolve(h.Callback); err != nil {
			return nil, fmt.Errorf("handler[%d]: %w", i, err)
		}
	}

	var values string
	if len(idx.Values) > 0 {
		raw, err := sonnet.Marshal(idx.Values)
		if err != nil {
			return nil, fmt.Errorf("failed to encode template values: %w", err)
		}
		values = string(raw)
	}

	adv := d.cfg.Advanced
	icfg := index.Config{
		Name:                name,
		Kind:                idx.Kind,
		ConfigHash:          hash,
		Template:            idx.Template,
		TemplateValues:      values,
		FirstLevel:          idx.FirstLevel,
		LastLevel:           idx.LastLevel,
		Datasources:         primary,
		LastMileDatasources: lastMile,
		ReadaheadLimit:      adv.ReadaheadLimit,
		LastMileTrigger:     adv.LastMileTrigger,
		LevelsLeftTrigger:   adv.LevelsLeftTrigger,
	}
	log := d.log.WithComponent(common.ComponentIndex)

	switch idx.Kind {
	case models.IndexKindOperation:
		src, err := index.NewOperationSource(idx, d.cfg.Contracts, adv.UnfilteredOperations)
		if err != nil {
			return nil, err
		}
		m, err := matcher.NewOperationMatcher(idx.Handlers, d.cfg.Contracts, adv.OperationMatchOrder)
		if err != nil {
			return nil, err
		}
		return index.New[models.OperationData](icfg, src, m, callbacks, d.store, d.rollbackHook, log), nil

	case models.IndexKindBigMap:
		src, err := index.NewBigMapSource(idx, d.cfg.Contracts)
		if err != nil {
			return nil, err
		}
		m, err := matcher.NewBigMapMatcher(idx.Handlers, d.cfg.Contracts)
		if err != nil {
			return nil, err
		}
		return index.New[models.BigMapData](icfg, src, m, callbacks, d.store, d.rollbackHook, log), nil

	case models.IndexKindEvent:
		src, err := index.NewEventSource(idx, d.cfg.Contracts)
		if err != nil {
			return nil, err
		}
		m, err := matcher.NewEventMatcher(idx.Handlers, d.cfg.Contracts)
		if err != nil {
			return nil, err
		}
		return index.New[models.EventData](icfg, src, m, callbacks, d.store, d.rollbackHook, log), nil

	case models.IndexKindTokenTransfer:
		src, err := index.NewTokenTransferSource(idx, d.cfg.Contracts)
		if err != nil {
			return nil, err
		}
		m, err := matcher.NewTokenTransferMatcher(idx.Handlers, d.cfg.Contracts)
		if err != nil {
			return nil, err
		}
		return index.New[models.TokenTransferData](icfg, src, m, callbacks, d.store, d.rollbackHook, log), nil

	case models.IndexKindHead:
		m := matcher.NewHeadMatcher(idx.Handlers)
		return index.New[models.HeadBlockData](icfg, index.HeadSource{}, m, callbacks, d.store, d.rollbackHook, log), nil
	}

	return nil, fmt.Errorf("unsupported index kind '%s'", idx.Kind)
}

func (d *Dispatcher) resolveDatasources(names []string) ([]pkgds.Datasource, error) {
	resolved := make([]pkgds.Datasource, 0, len(names))
	for _, name := range names {
		ds, ok := d.datasources[name]
		if !ok {
			return nil, fmt.Errorf("unknown datasource '%s'", name)
		}
		resolved = append(resolved, ds)
	}

	return resolved, nil
}
