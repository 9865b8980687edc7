package dbbadger

import (
	"context"
	"sort"

	"github.com/timshannon/badgerhold/v4"

	"github.com/kiosknetwork/kiosk-daemon/internal/core/domain"
)

type endpointRepositoryImpl struct {
	db *DbManager
}

func newEndpointRepositoryImpl(db *DbManager) domain.EndpointRepository {
	return endpointRepositoryImpl{db: db}
}

func (r endpointRepositoryImpl) AddEndpoint(
	ctx context.Context, endpoint domain.NodeEndpoint,
) error {
	err := r.db.EndpointStore.Insert(endpoint.Label, endpoint)
	if err != nil && err != badgerhold.ErrKeyExists {
		return err
	}
	return nil
}

func (r endpointRepositoryImpl) GetEndpoint(
	ctx context.Context, label string,
) (*domain.NodeEndpoint, error) {
	var endpoint domain.NodeEndpoint
	if err := r.db.EndpointStore.Get(label, &endpoint); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, domain.ErrEndpointNotFound
		}
		return nil, err
	}
	return &endpoint, nil
}

func (r endpointRepositoryImpl) GetAllEndpoints(
	ctx context.Context,
) ([]domain.NodeEndpoint, error) {
	var endpoints []domain.NodeEndpoint
	if err := r.db.EndpointStore.Find(&endpoints, &badgerhold.Query{}); err != nil {
		return nil, err
	}

	sort.SliceStable(endpoints, func(i, j int) bool {
		if endpoints[i].Default != endpoints[j].Default {
			return endpoints[i].Default
		}
		return endpoints[i].Priority < endpoints[j].Priority
	})
	return endpoints, nil
}
