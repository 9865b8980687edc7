package application

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/kiosknetwork/kiosk-daemon/internal/core/domain"
	"github.com/kiosknetwork/kiosk-daemon/internal/core/ports"
	walletrpc "github.com/kiosknetwork/kiosk-daemon/internal/infrastructure/wallet-rpc"
	"github.com/kiosknetwork/kiosk-daemon/pkg/retry"
)

// CommissionForwarder moves the platform commission of a paid order to the
// configured commission address, exactly once per order. The persisted
// CommissionPaid flag is the single source of truth: every attempt re-checks
// it inside the atomic order update before anything irreversible happens.
type CommissionForwarder struct {
	orderRepository   domain.OrderRepository
	walletSvc         ports.WalletService
	pubsubSvc         ports.PubSubService
	commissionAddress string
	dustThreshold     decimal.Decimal
	retryInterval     time.Duration

	inflight     map[string]struct{}
	inflightLock *sync.Mutex

	// capability is probed once per daemon session and invalidated on every
	// daemon restart, since a restart may load a different wallet file.
	capability     *ports.SpendCapability
	capabilityLock *sync.Mutex

	quitChan chan struct{}
	wg       *sync.WaitGroup
}

func NewCommissionForwarder(
	repoManager ports.RepoManager,
	walletSvc ports.WalletService,
	pubsubSvc ports.PubSubService,
	commissionAddress string,
	dustThreshold decimal.Decimal,
	retryInterval time.Duration,
) *CommissionForwarder {
	return &CommissionForwarder{
		orderRepository:   repoManager.OrderRepository(),
		walletSvc:         walletSvc,
		pubsubSvc:         pubsubSvc,
		commissionAddress: commissionAddress,
		dustThreshold:     dustThreshold,
		retryInterval:     retryInterval,
		inflight:          map[string]struct{}{},
		inflightLock:      &sync.Mutex{},
		capabilityLock:    &sync.Mutex{},
		quitChan:          make(chan struct{}),
		wg:                &sync.WaitGroup{},
	}
}

// Start runs the hourly retry sweep picking up orders whose forward attempt
// previously failed. Forward is also invoked synchronously by the payment
// poller on every pending->paid transition.
func (f *CommissionForwarder) Start(ctx context.Context) {
	f.wg.Add(1)
	go func() {
		defer f.wg.Done()
		ticker := time.NewTicker(f.retryInterval)
		defer ticker.Stop()
		for {
			select {
			case <-f.quitChan:
				return
			case <-ticker.C:
				f.retrySweep(ctx)
			}
		}
	}()
}

func (f *CommissionForwarder) Stop() {
	close(f.quitChan)
	f.wg.Wait()
}

// ResetCapability drops the cached spend-capability probe result. The health
// monitor calls it after every wallet daemon restart.
func (f *CommissionForwarder) ResetCapability() {
	f.capabilityLock.Lock()
	defer f.capabilityLock.Unlock()
	f.capability = nil
}

// Forward attempts to settle the commission of the given order. It returns
// nil when nothing is owed, when the order is already settled or routed to
// manual settlement, or when another forward for the same order is running.
func (f *CommissionForwarder) Forward(ctx context.Context, orderId string) error {
	if !f.acquire(orderId) {
		return nil
	}
	defer f.release(orderId)

	order, err := f.orderRepository.GetOrder(ctx, orderId)
	if err != nil {
		return err
	}
	if !order.NeedsCommission() {
		return nil
	}

	if order.CommissionAmount.LessThan(f.dustThreshold) {
		return f.skipDust(ctx, order)
	}

	capability, err := f.spendCapability(ctx)
	if err != nil {
		return fmt.Errorf("failed to probe spend capability: %w", err)
	}
	if !capability.SpendCapable {
		return f.routeToManual(ctx, order, capability.Reason)
	}

	// A previously submitted transfer whose txid was never persisted must be
	// found before issuing another one, or the commission gets paid twice.
	if order.CommissionAttemptedAt != nil {
		if txid, found := f.findSettledTransfer(ctx, order); found {
			log.WithFields(log.Fields{
				"order": order.Id,
				"txid":  txid,
			}).Info("commission transfer recovered from wallet history")
			return f.record(ctx, order.Id, txid)
		}
	}

	attemptedAt := time.Now()
	if err := f.orderRepository.UpdateOrder(
		ctx, order.Id, func(o *domain.Order) (*domain.Order, error) {
			o.MarkCommissionAttempt(attemptedAt)
			return o, nil
		},
	); err != nil {
		return err
	}
	order.CommissionAttemptedAt = &attemptedAt

	txid, err := f.submitTransfer(ctx, order)
	if err != nil {
		commissionFailuresTotal.Inc()
		log.WithError(err).WithField("order", order.Id).Warn(
			"commission transfer submission failed, will retry",
		)
		return err
	}

	return f.record(ctx, order.Id, txid)
}

// submitTransfer issues the commission transfer with bounded retries on
// transient daemon failures. A retried attempt consults the wallet history
// first: a transient failure such as a timeout is ambiguous, the previous
// submission may have gone through.
func (f *CommissionForwarder) submitTransfer(
	ctx context.Context, order *domain.Order,
) (string, error) {
	var txid string
	attempts := 0
	err := retry.Do(ctx, retry.Options{
		IsRetryable: walletrpc.IsTransient,
	}, func() error {
		attempts++
		if attempts > 1 {
			if recovered, found := f.findSettledTransfer(ctx, order); found {
				txid = recovered
				return nil
			}
		}
		var err error
		txid, err = f.walletSvc.Transfer(
			ctx, f.commissionAddress, order.CommissionAmount,
		)
		return err
	})
	return txid, err
}

// RetryNow triggers an immediate sweep, used by the operator interface.
func (f *CommissionForwarder) RetryNow(ctx context.Context) {
	f.retrySweep(ctx)
}

func (f *CommissionForwarder) retrySweep(ctx context.Context) {
	orders, err := f.orderRepository.GetOrdersNeedingCommission(ctx)
	if err != nil {
		log.WithError(err).Error("failed to list orders needing commission")
		return
	}
	for i := range orders {
		if err := f.Forward(ctx, orders[i].Id); err != nil {
			log.WithError(err).WithField("order", orders[i].Id).Warn(
				"commission retry failed",
			)
		}
	}
}

func (f *CommissionForwarder) record(
	ctx context.Context, orderId, txid string,
) error {
	var alreadyDone bool
	var order *domain.Order
	if err := f.orderRepository.UpdateOrder(
		ctx, orderId, func(o *domain.Order) (*domain.Order, error) {
			done, err := o.RecordCommission(txid, time.Now())
			if err != nil {
				return nil, err
			}
			alreadyDone = done
			order = o
			return o, nil
		},
	); err != nil {
		return err
	}
	if alreadyDone {
		return nil
	}

	commissionsForwardedTotal.Inc()
	log.WithFields(log.Fields{
		"order":  orderId,
		"txid":   txid,
		"amount": order.CommissionAmount.String(),
	}).Info("commission forwarded")

	f.pubsubSvc.Publish(ports.Event{
		Type:       ports.EventCommissionForwarded,
		OrderId:    orderId,
		Address:    f.commissionAddress,
		Amount:     order.CommissionAmount,
		Txid:       txid,
		OccurredAt: time.Now(),
	})
	return nil
}

func (f *CommissionForwarder) skipDust(
	ctx context.Context, order *domain.Order,
) error {
	if err := f.orderRepository.UpdateOrder(
		ctx, order.Id, func(o *domain.Order) (*domain.Order, error) {
			if err := o.SkipCommission(time.Now()); err != nil {
				return nil, err
			}
			return o, nil
		},
	); err != nil {
		return err
	}
	log.WithFields(log.Fields{
		"order":  order.Id,
		"amount": order.CommissionAmount.String(),
	}).Info("commission below dust threshold, settled without transfer")
	return nil
}

func (f *CommissionForwarder) routeToManual(
	ctx context.Context, order *domain.Order, reason string,
) error {
	if err := f.orderRepository.UpdateOrder(
		ctx, order.Id, func(o *domain.Order) (*domain.Order, error) {
			if err := o.FlagManualSettlement(); err != nil {
				return nil, err
			}
			return o, nil
		},
	); err != nil {
		return err
	}
	log.WithFields(log.Fields{
		"order":  order.Id,
		"amount": order.CommissionAmount.String(),
		"reason": reason,
	}).Warn("wallet cannot spend, commission routed to manual settlement")

	f.pubsubSvc.Publish(ports.Event{
		Type:       ports.EventCommissionManual,
		OrderId:    order.Id,
		Address:    f.commissionAddress,
		Amount:     order.CommissionAmount,
		OccurredAt: time.Now(),
	})
	return nil
}

func (f *CommissionForwarder) spendCapability(
	ctx context.Context,
) (*ports.SpendCapability, error) {
	f.capabilityLock.Lock()
	defer f.capabilityLock.Unlock()

	if f.capability != nil {
		return f.capability, nil
	}
	capability, err := f.walletSvc.SpendCapability(ctx)
	if err != nil {
		return nil, err
	}
	f.capability = capability
	return capability, nil
}

// findSettledTransfer scans the wallet's outgoing transfer history for a
// transfer matching the order's commission destination and amount, issued at
// or after the recorded attempt instant.
func (f *CommissionForwarder) findSettledTransfer(
	ctx context.Context, order *domain.Order,
) (string, bool) {
	transfers, err := f.walletSvc.GetOutgoingTransfers(ctx)
	if err != nil {
		log.WithError(err).Warn("failed to read outgoing transfer history")
		return "", false
	}

	// transfer timestamps are block-grained, tolerate a small skew behind
	// the persisted attempt instant
	notBefore := order.CommissionAttemptedAt.Add(-5 * time.Minute)
	for i := range transfers {
		t := transfers[i]
		if t.Destination != f.commissionAddress {
			continue
		}
		if !t.Amount.Equal(order.CommissionAmount) {
			continue
		}
		if t.Timestamp.Before(notBefore) {
			continue
		}
		return t.Txid, true
	}
	return "", false
}

func (f *CommissionForwarder) acquire(orderId string) bool {
	f.inflightLock.Lock()
	defer f.inflightLock.Unlock()
	if _, busy := f.inflight[orderId]; busy {
		return false
	}
	f.inflight[orderId] = struct{}{}
	return true
}

func (f *CommissionForwarder) release(orderId string) {
	f.inflightLock.Lock()
	defer f.inflightLock.Unlock()
	delete(f.inflight, orderId)
}
