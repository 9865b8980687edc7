package inmemory

import (
	"context"
	"sort"
	"sync"

	"github.com/kiosknetwork/kiosk-daemon/internal/core/domain"
)

type endpointRepositoryImpl struct {
	endpoints map[string]*domain.NodeEndpoint
	lock      *sync.RWMutex
}

func newEndpointRepositoryImpl() domain.EndpointRepository {
	return &endpointRepositoryImpl{
		endpoints: map[string]*domain.NodeEndpoint{},
		lock:      &sync.RWMutex{},
	}
}

func (r *endpointRepositoryImpl) AddEndpoint(
	_ context.Context, endpoint domain.NodeEndpoint,
) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	if _, ok := r.endpoints[endpoint.Label]; ok {
		return nil
	}
	r.endpoints[endpoint.Label] = &endpoint
	return nil
}

func (r *endpointRepositoryImpl) GetEndpoint(
	_ context.Context, label string,
) (*domain.NodeEndpoint, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()

	endpoint, ok := r.endpoints[label]
	if !ok {
		return nil, domain.ErrEndpointNotFound
	}
	cp := *endpoint
	return &cp, nil
}

func (r *endpointRepositoryImpl) GetAllEndpoints(
	_ context.Context,
) ([]domain.NodeEndpoint, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()

	endpoints := make([]domain.NodeEndpoint, 0, len(r.endpoints))
	for _, endpoint := range r.endpoints {
		endpoints = append(endpoints, *endpoint)
	}
	sort.Slice(endpoints, func(i, j int) bool {
		if endpoints[i].Default != endpoints[j].Default {
			return endpoints[i].Default
		}
		return endpoints[i].Priority < endpoints[j].Priority
	})
	return endpoints, nil
}
