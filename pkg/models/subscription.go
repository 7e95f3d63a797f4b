package models

import "fmt"

// Subscription identifies a realtime channel and its optional filter.
// It is a comparable value and is used as a map key.
type Subscription struct {
	Type     MessageType `json:"type"`
	Address  string      `json:"address,omitempty"`
	CodeHash int64       `json:"codeHash,omitempty"`
	Tag      string      `json:"tag,omitempty"`
	Path     string      `json:"path,omitempty"`
}

func (s Subscription) String() string {
	out := string(s.Type)
	if s.Address != "" {
		out += fmt.Sprintf(" address=%s", s.Address)
	}
	if s.CodeHash != 0 {
		out += fmt.Sprintf(" code_hash=%d", s.CodeHash)
	}
	if s.Tag != "" {
		out += fmt.Sprintf(" tag=%s", s.Tag)
	}
	if s.Path != "" {
		out += fmt.Sprintf(" path=%s", s.Path)
	}

	return out
}

// RollbackMessage asks an index to revert its state from FromLevel down to ToLevel.
type RollbackMessage struct {
	Type      MessageType
	FromLevel uint64
	ToLevel   uint64
}

// LevelBatch is all items of a single level in ascending id order.
type LevelBatch[T Item] struct {
	Level uint64
	Items []T
}
