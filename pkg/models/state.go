package models

// IndexStatus is the lifecycle status of an index.
type IndexStatus string

const (
	IndexStatusNew      IndexStatus = "new"
	IndexStatusSyncing  IndexStatus = "syncing"
	IndexStatusRealtime IndexStatus = "realtime"
	IndexStatusDisabled IndexStatus = "disabled"
	IndexStatusFailed   IndexStatus = "failed"
)

// IndexKind is the kind of data an index consumes.
type IndexKind string

const (
	IndexKindOperation     IndexKind = "operation"
	IndexKindBigMap        IndexKind = "big_map"
	IndexKindEvent         IndexKind = "event"
	IndexKindTokenTransfer IndexKind = "token_transfer"
	IndexKindHead          IndexKind = "head"
)

// MessageType returns the realtime channel kind feeding indexes of this kind.
func (k IndexKind) MessageType() MessageType {
	switch k {
	case IndexKindOperation:
		return MessageTypeOperation
	case IndexKindBigMap:
		return MessageTypeBigMap
	case IndexKindEvent:
		return MessageTypeEvent
	case IndexKindTokenTransfer:
		return MessageTypeTokenTransfer
	case IndexKindHead:
		return MessageTypeHead
	}

	return ""
}

// IndexState is the persisted state of a single index.
type IndexState struct {
	Name           string      `meddler:"name" json:"name"`
	Kind           IndexKind   `meddler:"kind" json:"kind"`
	Status         IndexStatus `meddler:"status" json:"status"`
	Level          uint64      `meddler:"level" json:"level"`
	ConfigHash     string      `meddler:"config_hash" json:"config_hash"`
	Template       string      `meddler:"template" json:"template,omitempty"`
	TemplateValues string      `meddler:"template_values" json:"template_values,omitempty"`
	UpdatedAt      int64       `meddler:"updated_at" json:"updated_at"`
}
