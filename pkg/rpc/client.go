package rpc

import (
	"context"
	"net/url"
)

// Request describes a GET request against an indexer REST API.
type Request struct {
	// Name labels the request in metrics and logs, e.g. "operations/transactions".
	Name string

	// Path is appended to the client base URL.
	Path string

	// Query holds the request parameters.
	Query url.Values

	// Cacheable responses are stored in the response cache and served from it on later calls.
	Cacheable bool
}

// Client defines the REST request surface used by datasources.
// This abstraction allows for easier testing and alternative implementations.
type Client interface {
	// Get performs the request and decodes the JSON response into out.
	Get(ctx context.Context, req Request, out any) error

	// Close releases idle connections.
	Close()
}
