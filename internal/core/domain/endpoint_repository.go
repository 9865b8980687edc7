package domain

import "context"

// EndpointRepository persists the configured node endpoint list so it
// survives restarts. Endpoints are keyed by label.
type EndpointRepository interface {
	// AddEndpoint stores a new endpoint. Adding an existing label is a no-op.
	AddEndpoint(ctx context.Context, endpoint NodeEndpoint) error
	// GetEndpoint returns the endpoint with the given label.
	GetEndpoint(ctx context.Context, label string) (*NodeEndpoint, error)
	// GetAllEndpoints returns every stored endpoint sorted by the default
	// flag first, then by ascending priority.
	GetAllEndpoints(ctx context.Context) ([]NodeEndpoint, error)
}
