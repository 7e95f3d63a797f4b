// Package models holds the data items, subscriptions and index state shared across the engine.
package models

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// ErrInvalidFilter is returned when a request combines mutually exclusive filters.
var ErrInvalidFilter = errors.New("invalid filter combination")

// Item is a single datum fetched from a datasource. Items are ordered by id and grouped by level.
type Item interface {
	GetLevel() uint64
	GetID() uint64
}

// MessageType is the realtime channel kind an item belongs to.
type MessageType string

const (
	MessageTypeOperation     MessageType = "operation"
	MessageTypeBigMap        MessageType = "big_map"
	MessageTypeEvent         MessageType = "event"
	MessageTypeTokenTransfer MessageType = "token_transfer"
	MessageTypeHead          MessageType = "head"
)

// OperationType is the kind of an operation item.
type OperationType string

const (
	OperationTypeTransaction        OperationType = "transaction"
	OperationTypeOrigination        OperationType = "origination"
	OperationTypeSmartRollupExecute OperationType = "sr_execute"
	OperationTypeSmartRollupCement  OperationType = "sr_cement"
)

// OperationStatusApplied is the status of operations included in a block without errors.
const OperationStatusApplied = "applied"

// OperationData is a single operation as returned by the indexer API.
type OperationData struct {
	Type      OperationType `json:"type"`
	ID        uint64        `json:"id"`
	Level     uint64        `json:"level"`
	Timestamp time.Time     `json:"timestamp"`
	Hash      string        `json:"hash"`
	Counter   uint64        `json:"counter"`
	Nonce     *uint64       `json:"nonce,omitempty"`
	Status    string        `json:"status"`

	SenderAddress    string `json:"senderAddress,omitempty"`
	SenderCodeHash   int64  `json:"senderCodeHash,omitempty"`
	TargetAddress    string `json:"targetAddress,omitempty"`
	TargetCodeHash   int64  `json:"targetCodeHash,omitempty"`
	InitiatorAddress string `json:"initiatorAddress,omitempty"`
	Amount           int64  `json:"amount"`
	HasInternals     bool   `json:"hasInternals"`

	Entrypoint string          `json:"entrypoint,omitempty"`
	Parameter  json.RawMessage `json:"parameter,omitempty"`
	Storage    json.RawMessage `json:"storage,omitempty"`

	OriginatedContractAddress  string `json:"originatedContractAddress,omitempty"`
	OriginatedContractCodeHash *int64 `json:"originatedContractCodeHash,omitempty"`

	RollupAddress string `json:"rollupAddress,omitempty"`
	Commitment    string `json:"commitment,omitempty"`
}

func (o OperationData) GetLevel() uint64 { return o.Level }
func (o OperationData) GetID() uint64    { return o.ID }

// OperationGroup is the set of operations matched by one operation handler pattern.
// Operations follows the pattern, with nil for optional steps that were not present.
type OperationGroup struct {
	Hash       string
	Counter    uint64
	Operations []*OperationData
}

// BigMapData is a single big map update.
type BigMapData struct {
	ID              uint64          `json:"id"`
	Level           uint64          `json:"level"`
	Timestamp       time.Time       `json:"timestamp"`
	OperationID     uint64          `json:"operationId"`
	BigMapID        int64           `json:"bigmap"`
	ContractAddress string          `json:"contractAddress"`
	Path            string          `json:"path"`
	Action          string          `json:"action"`
	Key             json.RawMessage `json:"key,omitempty"`
	Value           json.RawMessage `json:"value,omitempty"`
}

func (b BigMapData) GetLevel() uint64 { return b.Level }
func (b BigMapData) GetID() uint64    { return b.ID }

// EventData is a contract event emitted by an operation.
type EventData struct {
	ID               uint64          `json:"id"`
	Level            uint64          `json:"level"`
	Timestamp        time.Time       `json:"timestamp"`
	ContractAddress  string          `json:"contractAddress"`
	ContractCodeHash int64           `json:"contractCodeHash"`
	Tag              string          `json:"tag"`
	Payload          json.RawMessage `json:"payload,omitempty"`
	TransactionID    uint64          `json:"transactionId"`
}

func (e EventData) GetLevel() uint64 { return e.Level }
func (e EventData) GetID() uint64    { return e.ID }

// TokenTransferData is a single token balance movement.
type TokenTransferData struct {
	ID              uint64          `json:"id"`
	Level           uint64          `json:"level"`
	Timestamp       time.Time       `json:"timestamp"`
	ContractAddress string          `json:"contractAddress"`
	TokenID         string          `json:"tokenId"`
	Standard        string          `json:"standard"`
	FromAddress     string          `json:"fromAddress,omitempty"`
	ToAddress       string          `json:"toAddress,omitempty"`
	Amount          decimal.Decimal `json:"amount"`
	TransactionID   uint64          `json:"transactionId,omitempty"`
}

func (t TokenTransferData) GetLevel() uint64 { return t.Level }
func (t TokenTransferData) GetID() uint64    { return t.ID }

// HeadBlockData describes a block at the chain head.
type HeadBlockData struct {
	Level     uint64    `json:"level"`
	Hash      string    `json:"hash"`
	Timestamp time.Time `json:"timestamp"`
	Protocol  string    `json:"protocol,omitempty"`
}

// Head blocks are one per level, so the level doubles as the id.
func (h HeadBlockData) GetLevel() uint64 { return h.Level }
func (h HeadBlockData) GetID() uint64    { return h.Level }

var (
	_ Item = OperationData{}
	_ Item = BigMapData{}
	_ Item = EventData{}
	_ Item = TokenTransferData{}
	_ Item = HeadBlockData{}
)
