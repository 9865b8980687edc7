package inmemory

import (
	"context"
	"sort"
	"sync"

	"github.com/kiosknetwork/kiosk-daemon/internal/core/domain"
)

type orderRepositoryImpl struct {
	orders map[string]*domain.Order
	lock   *sync.RWMutex
}

func newOrderRepositoryImpl() domain.OrderRepository {
	return &orderRepositoryImpl{
		orders: map[string]*domain.Order{},
		lock:   &sync.RWMutex{},
	}
}

func (r *orderRepositoryImpl) AddOrder(_ context.Context, order *domain.Order) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	cp := *order
	r.orders[order.Id] = &cp
	return nil
}

func (r *orderRepositoryImpl) GetOrder(_ context.Context, id string) (*domain.Order, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()

	order, ok := r.orders[id]
	if !ok {
		return nil, domain.ErrOrderNotFound
	}
	cp := *order
	return &cp, nil
}

func (r *orderRepositoryImpl) GetAllOrders(_ context.Context) ([]domain.Order, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()

	orders := make([]domain.Order, 0, len(r.orders))
	for _, order := range r.orders {
		orders = append(orders, *order)
	}
	sort.Slice(orders, func(i, j int) bool {
		return orders[i].CreatedAt.Before(orders[j].CreatedAt)
	})
	return orders, nil
}

func (r *orderRepositoryImpl) GetPendingOrders(_ context.Context) ([]domain.Order, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()

	orders := make([]domain.Order, 0)
	for _, order := range r.orders {
		if order.PaymentStatus == domain.PaymentStatusPending {
			orders = append(orders, *order)
		}
	}
	sort.Slice(orders, func(i, j int) bool {
		return orders[i].CreatedAt.Before(orders[j].CreatedAt)
	})
	return orders, nil
}

func (r *orderRepositoryImpl) GetOrdersNeedingCommission(
	_ context.Context,
) ([]domain.Order, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()

	orders := make([]domain.Order, 0)
	for _, order := range r.orders {
		if order.NeedsCommission() {
			orders = append(orders, *order)
		}
	}
	sort.Slice(orders, func(i, j int) bool {
		return orders[i].CreatedAt.Before(orders[j].CreatedAt)
	})
	return orders, nil
}

func (r *orderRepositoryImpl) UpdateOrder(
	_ context.Context, id string, updateFn func(*domain.Order) (*domain.Order, error),
) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	order, ok := r.orders[id]
	if !ok {
		return domain.ErrOrderNotFound
	}
	cp := *order
	updated, err := updateFn(&cp)
	if err != nil {
		return err
	}
	r.orders[id] = updated
	return nil
}
