package matcher

import (
	"fmt"

	"github.com/goran-ethernal/ChainSyncer/pkg/config"
	"github.com/goran-ethernal/ChainSyncer/pkg/models"
)

// Pattern is a single step of an operation handler pattern.
// The set of implementations is closed: every pattern type is handled in matchPattern.
type Pattern interface {
	OperationType() models.OperationType
	IsOptional() bool

	sealed()
}

type TransactionPattern struct {
	Source      *ContractRef
	Destination *ContractRef
	Entrypoint  string
	Optional    bool
}

type OriginationPattern struct {
	Source             *ContractRef
	OriginatedContract *ContractRef
	Optional           bool
}

type SmartRollupExecutePattern struct {
	Source      *ContractRef
	Destination *ContractRef
	Optional    bool
}

type SmartRollupCementPattern struct {
	Source      *ContractRef
	Destination *ContractRef
	Optional    bool
}

func (TransactionPattern) OperationType() models.OperationType { return models.OperationTypeTransaction }
func (OriginationPattern) OperationType() models.OperationType { return models.OperationTypeOrigination }
func (SmartRollupExecutePattern) OperationType() models.OperationType {
	return models.OperationTypeSmartRollupExecute
}
func (SmartRollupCementPattern) OperationType() models.OperationType {
	return models.OperationTypeSmartRollupCement
}

func (p TransactionPattern) IsOptional() bool        { return p.Optional }
func (p OriginationPattern) IsOptional() bool        { return p.Optional }
func (p SmartRollupExecutePattern) IsOptional() bool { return p.Optional }
func (p SmartRollupCementPattern) IsOptional() bool  { return p.Optional }

func (TransactionPattern) sealed()        {}
func (OriginationPattern) sealed()        {}
func (SmartRollupExecutePattern) sealed() {}
func (SmartRollupCementPattern) sealed()  {}

// NewPattern compiles a pattern step, resolving contract aliases.
func NewPattern(cfg config.PatternConfig, contracts map[string]*config.ContractConfig) (Pattern, error) {
	source, err := ResolveContract(contracts, cfg.Source)
	if err != nil {
		return nil, fmt.Errorf("source: %w", err)
	}

	switch cfg.Type {
	case models.OperationTypeTransaction:
		destination, err := ResolveContract(contracts, cfg.Destination)
		if err != nil {
			return nil, fmt.Errorf("destination: %w", err)
		}
		return TransactionPattern{
			Source:      source,
			Destination: destination,
			Entrypoint:  cfg.Entrypoint,
			Optional:    cfg.Optional,
		}, nil

	case models.OperationTypeOrigination:
		originated, err := ResolveContract(contracts, cfg.OriginatedContract)
		if err != nil {
			return nil, fmt.Errorf("originated_contract: %w", err)
		}
		return OriginationPattern{Source: source, OriginatedContract: originated, Optional: cfg.Optional}, nil

	case models.OperationTypeSmartRollupExecute, models.OperationTypeSmartRollupCement:
		destination, err := ResolveContract(contracts, cfg.Destination)
		if err != nil {
			return nil, fmt.Errorf("destination: %w", err)
		}
		if cfg.Type == models.OperationTypeSmartRollupExecute {
			return SmartRollupExecutePattern{Source: source, Destination: destination, Optional: cfg.Optional}, nil
		}
		return SmartRollupCementPattern{Source: source, Destination: destination, Optional: cfg.Optional}, nil
	}

	return nil, fmt.Errorf("unknown operation type '%s'", cfg.Type)
}

// matchPattern reports whether an applied operation satisfies a pattern step.
func matchPattern(p Pattern, op *models.OperationData) bool {
	if op.Status != models.OperationStatusApplied || op.Type != p.OperationType() {
		return false
	}

	switch p := p.(type) {
	case TransactionPattern:
		if p.Entrypoint != "" && p.Entrypoint != op.Entrypoint {
			return false
		}
		return p.Source.Matches(op.SenderAddress, op.SenderCodeHash) &&
			p.Destination.Matches(op.TargetAddress, op.TargetCodeHash)

	case OriginationPattern:
		var codeHash int64
		if op.OriginatedContractCodeHash != nil {
			codeHash = *op.OriginatedContractCodeHash
		}
		return p.Source.Matches(op.SenderAddress, op.SenderCodeHash) &&
			p.OriginatedContract.Matches(op.OriginatedContractAddress, codeHash)

	case SmartRollupExecutePattern:
		return p.Source.Matches(op.SenderAddress, op.SenderCodeHash) &&
			p.Destination.Matches(op.RollupAddress, 0)

	case SmartRollupCementPattern:
		return p.Source.Matches(op.SenderAddress, op.SenderCodeHash) &&
			p.Destination.Matches(op.RollupAddress, 0)
	}

	panic(fmt.Sprintf("unhandled pattern type %T", p))
}
