package ports

import (
	"github.com/kiosknetwork/kiosk-daemon/internal/core/domain"
)

// RepoManager groups the repositories of all the domain entities backed by
// the same datastore.
type RepoManager interface {
	OrderRepository() domain.OrderRepository
	EndpointRepository() domain.EndpointRepository
	Close() error
}
