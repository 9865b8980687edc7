package domain

import "context"

// OrderRepository is the abstraction for any kind of database intended to
// persist Orders. All order mutations must go through UpdateOrder so that
// the read and the write happen atomically.
type OrderRepository interface {
	// AddOrder persists a newly placed order.
	AddOrder(ctx context.Context, order *Order) error
	// GetOrder returns the order with the given id, or ErrOrderNotFound.
	GetOrder(ctx context.Context, id string) (*Order, error)
	// GetAllOrders returns every stored order.
	GetAllOrders(ctx context.Context) ([]Order, error)
	// GetPendingOrders returns the orders with pending payment status.
	GetPendingOrders(ctx context.Context) ([]Order, error)
	// GetOrdersNeedingCommission returns paid orders whose commission has
	// neither been forwarded nor flagged for manual settlement.
	GetOrdersNeedingCommission(ctx context.Context) ([]Order, error)
	// UpdateOrder commits the changes made by updateFn to the stored order
	// in a transactional way. No other reader or writer can observe the
	// order between the read and the write.
	UpdateOrder(
		ctx context.Context, id string,
		updateFn func(o *Order) (*Order, error),
	) error
}
