package dbbadger

import (
	"context"
	"sync"

	"github.com/dgraph-io/badger/v3"
	"github.com/timshannon/badgerhold/v4"

	"github.com/kiosknetwork/kiosk-daemon/internal/core/domain"
)

type orderRepositoryImpl struct {
	db *DbManager
	// updateMtx serializes UpdateOrder calls so concurrent check-then-set
	// closures never hit a badger transaction conflict.
	updateMtx *sync.Mutex
}

func newOrderRepositoryImpl(db *DbManager) domain.OrderRepository {
	return orderRepositoryImpl{db: db, updateMtx: &sync.Mutex{}}
}

func (r orderRepositoryImpl) AddOrder(
	ctx context.Context, order *domain.Order,
) error {
	return r.db.OrderStore.Insert(order.Id, *order)
}

func (r orderRepositoryImpl) GetOrder(
	ctx context.Context, id string,
) (*domain.Order, error) {
	var order domain.Order
	if err := r.db.OrderStore.Get(id, &order); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, domain.ErrOrderNotFound
		}
		return nil, err
	}
	return &order, nil
}

func (r orderRepositoryImpl) GetAllOrders(
	ctx context.Context,
) ([]domain.Order, error) {
	return r.findOrders(&badgerhold.Query{})
}

func (r orderRepositoryImpl) GetPendingOrders(
	ctx context.Context,
) ([]domain.Order, error) {
	query := badgerhold.Where("PaymentStatus").Eq(domain.PaymentStatusPending)
	return r.findOrders(query)
}

func (r orderRepositoryImpl) GetOrdersNeedingCommission(
	ctx context.Context,
) ([]domain.Order, error) {
	query := badgerhold.Where("PaymentStatus").Eq(domain.PaymentStatusPaid).
		And("CommissionPaid").Eq(false).
		And("ManualSettlement").Eq(false)
	return r.findOrders(query)
}

// UpdateOrder performs the read, the closure and the write within a single
// badger transaction so the idempotency checks done by updateFn and the
// resulting write are effectively atomic.
func (r orderRepositoryImpl) UpdateOrder(
	ctx context.Context, id string,
	updateFn func(o *domain.Order) (*domain.Order, error),
) error {
	r.updateMtx.Lock()
	defer r.updateMtx.Unlock()

	return r.db.OrderStore.Badger().Update(func(tx *badger.Txn) error {
		var order domain.Order
		if err := r.db.OrderStore.TxGet(tx, id, &order); err != nil {
			if err == badgerhold.ErrNotFound {
				return domain.ErrOrderNotFound
			}
			return err
		}

		updatedOrder, err := updateFn(&order)
		if err != nil {
			return err
		}

		return r.db.OrderStore.TxUpdate(tx, id, *updatedOrder)
	})
}

func (r orderRepositoryImpl) findOrders(
	query *badgerhold.Query,
) ([]domain.Order, error) {
	var orders []domain.Order
	if err := r.db.OrderStore.Find(&orders, query); err != nil {
		return nil, err
	}
	return orders, nil
}
