package inmemory

import (
	"github.com/kiosknetwork/kiosk-daemon/internal/core/domain"
	"github.com/kiosknetwork/kiosk-daemon/internal/core/ports"
)

// DbManager is a volatile RepoManager implementation, mainly useful for
// testing the application layer without a badger store on disk.
type DbManager struct {
	orderRepository    domain.OrderRepository
	endpointRepository domain.EndpointRepository
}

func NewDbManager() *DbManager {
	return &DbManager{
		orderRepository:    newOrderRepositoryImpl(),
		endpointRepository: newEndpointRepositoryImpl(),
	}
}

func (d *DbManager) OrderRepository() domain.OrderRepository {
	return d.orderRepository
}

func (d *DbManager) EndpointRepository() domain.EndpointRepository {
	return d.endpointRepository
}

func (d *DbManager) Close() error { return nil }

var _ ports.RepoManager = (*DbManager)(nil)
