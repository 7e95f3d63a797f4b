package api

import (
	"time"

	"github.com/goran-ethernal/ChainSyncer/pkg/models"
)

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Code    int    `json:"code"`
}

// HealthResponse represents a health check response.
type HealthResponse struct {
	Status    string        `json:"status"`
	Timestamp time.Time     `json:"timestamp"`
	Indexes   []IndexHealth `json:"indexes"`
}

// IndexHealth is the short status of a single index.
type IndexHealth struct {
	Name    string             `json:"name"`
	Kind    models.IndexKind   `json:"kind"`
	Status  models.IndexStatus `json:"status"`
	Level   uint64             `json:"level"`
	Healthy bool               `json:"healthy"`
}

// IndexInfo describes an index and the endpoints operating on it.
type IndexInfo struct {
	models.IndexState
	Endpoints []string `json:"endpoints"`
}

// RollbackRequest is the body of a manual rollback.
type RollbackRequest struct {
	ToLevel uint64 `json:"to_level"`
}

// RollbackResponse reports the outcome of a manual rollback.
type RollbackResponse struct {
	Index    string `json:"index"`
	ToLevel  uint64 `json:"to_level"`
	Reverted int    `json:"reverted"`
}
