package application

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/kiosknetwork/kiosk-daemon/internal/core/domain"
	"github.com/kiosknetwork/kiosk-daemon/internal/core/ports"
)

// OrderService exposes the order lifecycle to the boundary surfaces. Payment
// and commission transitions belong to the poller and the forwarder, this
// service only creates orders and advances fulfillment.
type OrderService struct {
	orderRepository domain.OrderRepository
	walletSvc       ports.WalletService
	forwarder       *CommissionForwarder
	commissionRate  decimal.Decimal
	orderTTL        time.Duration
}

func NewOrderService(
	repoManager ports.RepoManager,
	walletSvc ports.WalletService,
	forwarder *CommissionForwarder,
	commissionRate decimal.Decimal,
	orderTTL time.Duration,
) *OrderService {
	return &OrderService{
		orderRepository: repoManager.OrderRepository(),
		walletSvc:       walletSvc,
		forwarder:       forwarder,
		commissionRate:  commissionRate,
		orderTTL:        orderTTL,
	}
}

// CreateOrder derives a fresh receiving address dedicated to the order and
// persists it in the pending status.
func (s *OrderService) CreateOrder(
	ctx context.Context, total decimal.Decimal, fiatCurrency string,
) (*domain.Order, error) {
	address, err := s.walletSvc.NewReceivingAddress(ctx, fiatCurrency)
	if err != nil {
		return nil, fmt.Errorf("failed to derive receiving address: %w", err)
	}

	order, err := domain.NewOrder(
		address, total, fiatCurrency, s.commissionRate, s.orderTTL,
	)
	if err != nil {
		return nil, err
	}
	if err := s.orderRepository.AddOrder(ctx, order); err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{
		"order":   order.Id,
		"address": order.Address,
		"amount":  order.TotalAmount.String(),
	}).Info("order created")
	return order, nil
}

func (s *OrderService) GetOrder(
	ctx context.Context, id string,
) (*domain.Order, error) {
	return s.orderRepository.GetOrder(ctx, id)
}

func (s *OrderService) ListOrders(ctx context.Context) ([]domain.Order, error) {
	return s.orderRepository.GetAllOrders(ctx)
}

func (s *OrderService) ShipOrder(ctx context.Context, id string) error {
	return s.orderRepository.UpdateOrder(
		ctx, id, func(o *domain.Order) (*domain.Order, error) {
			o.Ship()
			return o, nil
		},
	)
}

func (s *OrderService) DeliverOrder(ctx context.Context, id string) error {
	return s.orderRepository.UpdateOrder(
		ctx, id, func(o *domain.Order) (*domain.Order, error) {
			o.Deliver()
			return o, nil
		},
	)
}

// RetryCommission triggers an immediate forward attempt for one order,
// bypassing the hourly sweep.
func (s *OrderService) RetryCommission(ctx context.Context, id string) error {
	order, err := s.orderRepository.GetOrder(ctx, id)
	if err != nil {
		return err
	}
	if !order.NeedsCommission() {
		return ErrCommissionNotDue
	}
	if err := s.forwarder.Forward(ctx, id); err != nil {
		return err
	}

	// a view-only wallet routes the commission to manual settlement, which
	// must be surfaced to the operator who asked for the forward
	order, err = s.orderRepository.GetOrder(ctx, id)
	if err != nil {
		return err
	}
	if order.ManualSettlement {
		return ErrWalletNotSpendCapable
	}
	return nil
}
