package application

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/kiosknetwork/kiosk-daemon/internal/core/domain"
	"github.com/kiosknetwork/kiosk-daemon/internal/core/ports"
	walletrpc "github.com/kiosknetwork/kiosk-daemon/internal/infrastructure/wallet-rpc"
	"github.com/kiosknetwork/kiosk-daemon/pkg/retry"
)

// PaymentPoller periodically reads the wallet daemon for transfers towards
// every pending order address and drives the pending->paid / pending->expired
// transitions. Confirmation counts are always re-read from the daemon, never
// derived from the previously stored counter.
type PaymentPoller struct {
	orderRepository       domain.OrderRepository
	walletSvc             ports.WalletService
	pubsubSvc             ports.PubSubService
	forwarder             *CommissionForwarder
	confirmationThreshold uint64
	interval              time.Duration
	limiter               *rate.Limiter

	quitChan chan struct{}
	wg       *sync.WaitGroup
}

func NewPaymentPoller(
	repoManager ports.RepoManager,
	walletSvc ports.WalletService,
	pubsubSvc ports.PubSubService,
	forwarder *CommissionForwarder,
	confirmationThreshold uint64,
	interval time.Duration,
) *PaymentPoller {
	return &PaymentPoller{
		orderRepository:       repoManager.OrderRepository(),
		walletSvc:             walletSvc,
		pubsubSvc:             pubsubSvc,
		forwarder:             forwarder,
		confirmationThreshold: confirmationThreshold,
		interval:              interval,
		// cap RPC pressure on the wallet daemon regardless of how many
		// orders are outstanding
		limiter:  rate.NewLimiter(rate.Limit(10), 1),
		quitChan: make(chan struct{}),
		wg:       &sync.WaitGroup{},
	}
}

func (p *PaymentPoller) Start(ctx context.Context) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()
		for {
			select {
			case <-p.quitChan:
				return
			case <-ticker.C:
				p.Tick(ctx)
			}
		}
	}()
}

func (p *PaymentPoller) Stop() {
	close(p.quitChan)
	p.wg.Wait()
}

// Tick runs one poll pass over all pending orders. An error on one order
// never prevents the remaining ones from being observed.
func (p *PaymentPoller) Tick(ctx context.Context) {
	pollTicksTotal.Inc()

	orders, err := p.orderRepository.GetPendingOrders(ctx)
	if err != nil {
		log.WithError(err).Error("failed to list pending orders")
		return
	}
	pendingOrdersGauge.Set(float64(len(orders)))

	for i := range orders {
		if err := p.limiter.Wait(ctx); err != nil {
			return
		}
		if err := p.observe(ctx, &orders[i]); err != nil {
			log.WithError(err).WithField("order", orders[i].Id).Warn(
				"failed to observe order payment",
			)
		}
	}
}

// observe reads the order's address fresh from the daemon and applies at most
// one transition. A payment crossing the threshold wins over an elapsed
// deadline observed in the same pass.
func (p *PaymentPoller) observe(ctx context.Context, order *domain.Order) error {
	var transfers []ports.Transfer
	if err := retry.Do(ctx, retry.Options{
		IsRetryable: walletrpc.IsTransient,
	}, func() error {
		var err error
		transfers, err = p.walletSvc.GetIncomingTransfers(ctx, order.Address)
		return err
	}); err != nil {
		return err
	}

	received, confirmations := summarizeTransfers(transfers)

	if received.GreaterThanOrEqual(order.TotalAmount) {
		if received.GreaterThan(order.TotalAmount) {
			log.WithFields(log.Fields{
				"order":    order.Id,
				"expected": order.TotalAmount.String(),
				"received": received.String(),
			}).Info("order overpaid, accepting full amount")
		}
		if confirmations >= p.confirmationThreshold {
			return p.confirm(ctx, order, confirmations)
		}
		return p.recordConfirmations(ctx, order, confirmations)
	}

	if order.IsPastDeadline(time.Now()) {
		return p.expire(ctx, order)
	}

	if received.GreaterThan(decimal.Zero) {
		log.WithFields(log.Fields{
			"order":    order.Id,
			"expected": order.TotalAmount.String(),
			"received": received.String(),
		}).Debug("partial payment observed")
	}
	return p.recordConfirmations(ctx, order, confirmations)
}

func (p *PaymentPoller) confirm(
	ctx context.Context, order *domain.Order, confirmations uint64,
) error {
	if err := p.orderRepository.UpdateOrder(
		ctx, order.Id, func(o *domain.Order) (*domain.Order, error) {
			o.ObserveConfirmations(confirmations)
			if _, err := o.ConfirmPayment(); err != nil {
				return nil, err
			}
			return o, nil
		},
	); err != nil {
		return err
	}

	paymentsConfirmedTotal.Inc()
	log.WithFields(log.Fields{
		"order":         order.Id,
		"confirmations": confirmations,
	}).Info("payment confirmed")

	p.pubsubSvc.Publish(ports.Event{
		Type:       ports.EventPaymentConfirmed,
		OrderId:    order.Id,
		Address:    order.Address,
		Amount:     order.TotalAmount,
		OccurredAt: time.Now(),
	})

	// forward synchronously so the commission attempt happens in the same
	// pass as the transition; failures are retried by the hourly sweep
	if err := p.forwarder.Forward(ctx, order.Id); err != nil {
		log.WithError(err).WithField("order", order.Id).Warn(
			"commission forward failed after payment confirmation",
		)
	}
	return nil
}

func (p *PaymentPoller) expire(ctx context.Context, order *domain.Order) error {
	if err := p.orderRepository.UpdateOrder(
		ctx, order.Id, func(o *domain.Order) (*domain.Order, error) {
			if _, err := o.Expire(); err != nil {
				return nil, err
			}
			return o, nil
		},
	); err != nil {
		return err
	}

	ordersExpiredTotal.Inc()
	log.WithField("order", order.Id).Info("order expired unpaid")

	p.pubsubSvc.Publish(ports.Event{
		Type:       ports.EventOrderExpired,
		OrderId:    order.Id,
		Address:    order.Address,
		Amount:     order.TotalAmount,
		OccurredAt: time.Now(),
	})
	return nil
}

func (p *PaymentPoller) recordConfirmations(
	ctx context.Context, order *domain.Order, confirmations uint64,
) error {
	if confirmations <= order.ConfirmationsObserved {
		return nil
	}
	return p.orderRepository.UpdateOrder(
		ctx, order.Id, func(o *domain.Order) (*domain.Order, error) {
			o.ObserveConfirmations(confirmations)
			return o, nil
		},
	)
}

// summarizeTransfers returns the total received amount and the confirmation
// count of the least confirmed contributing transfer. A mempool transfer
// counts towards the amount with zero confirmations, so partially confirmed
// payments never cross the threshold early.
func summarizeTransfers(
	transfers []ports.Transfer,
) (decimal.Decimal, uint64) {
	received := decimal.Zero
	confirmations := uint64(0)
	for i, t := range transfers {
		received = received.Add(t.Amount)
		c := t.Confirmations
		if t.Pending {
			c = 0
		}
		if i == 0 || c < confirmations {
			confirmations = c
		}
	}
	return received, confirmations
}
