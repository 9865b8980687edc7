package application_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/kiosknetwork/kiosk-daemon/internal/core/application"
	"github.com/kiosknetwork/kiosk-daemon/internal/core/domain"
	"github.com/kiosknetwork/kiosk-daemon/internal/core/ports"
	"github.com/kiosknetwork/kiosk-daemon/internal/infrastructure/storage/db/inmemory"
)

func newOrderServiceFixture(t *testing.T) (
	*application.OrderService, *inmemory.DbManager, *walletServiceMock,
) {
	t.Helper()
	repoManager := inmemory.NewDbManager()
	walletSvc := newWalletServiceMock()
	pubsubSvc := &pubsubMock{}
	forwarder := application.NewCommissionForwarder(
		repoManager, walletSvc, pubsubSvc,
		commissionAddress, dustThreshold, time.Hour,
	)
	svc := application.NewOrderService(
		repoManager, walletSvc, forwarder, commissionRate, 24*time.Hour,
	)
	return svc, repoManager, walletSvc
}

func TestCreateOrder(t *testing.T) {
	svc, repoManager, _ := newOrderServiceFixture(t)

	order, err := svc.CreateOrder(
		context.Background(), decimal.RequireFromString("0.5"), "EUR",
	)
	require.NoError(t, err)
	require.NotEmpty(t, order.Id)
	require.NotEmpty(t, order.Address)
	require.Equal(t, domain.PaymentStatusPending, order.PaymentStatus)
	require.True(t, order.CommissionAmount.Equal(
		decimal.RequireFromString("0.035"),
	))
	require.True(t, order.SellerAmount.Equal(
		decimal.RequireFromString("0.465"),
	))

	stored, err := repoManager.OrderRepository().GetOrder(
		context.Background(), order.Id,
	)
	require.NoError(t, err)
	require.Equal(t, order.Address, stored.Address)
}

func TestCreateOrderInvalidAmount(t *testing.T) {
	svc, _, _ := newOrderServiceFixture(t)

	_, err := svc.CreateOrder(context.Background(), decimal.Zero, "EUR")
	require.ErrorIs(t, err, domain.ErrOrderInvalidAmount)
}

func TestFulfillmentTransitions(t *testing.T) {
	svc, _, _ := newOrderServiceFixture(t)

	order, err := svc.CreateOrder(
		context.Background(), decimal.RequireFromString("1"), "EUR",
	)
	require.NoError(t, err)

	require.NoError(t, svc.ShipOrder(context.Background(), order.Id))
	stored, err := svc.GetOrder(context.Background(), order.Id)
	require.NoError(t, err)
	require.Equal(t, domain.FulfillmentStatusShipped, stored.FulfillmentStatus)

	require.NoError(t, svc.DeliverOrder(context.Background(), order.Id))
	stored, err = svc.GetOrder(context.Background(), order.Id)
	require.NoError(t, err)
	require.Equal(t, domain.FulfillmentStatusDelivered, stored.FulfillmentStatus)
}

func TestRetryCommissionNotDue(t *testing.T) {
	svc, _, _ := newOrderServiceFixture(t)

	order, err := svc.CreateOrder(
		context.Background(), decimal.RequireFromString("1"), "EUR",
	)
	require.NoError(t, err)

	// still pending, nothing is owed yet
	err = svc.RetryCommission(context.Background(), order.Id)
	require.ErrorIs(t, err, application.ErrCommissionNotDue)
}

func TestRetryCommissionForwards(t *testing.T) {
	svc, repoManager, walletSvc := newOrderServiceFixture(t)
	order := addPaidOrder(t, repoManager, "0.5")

	require.NoError(t, svc.RetryCommission(context.Background(), order.Id))
	require.Equal(t, 1, walletSvc.numTransferCalls())
}

func TestRetryCommissionViewOnlyWallet(t *testing.T) {
	svc, repoManager, walletSvc := newOrderServiceFixture(t)
	walletSvc.capability = &ports.SpendCapability{
		SpendCapable: false, Reason: "the wallet is watch-only",
	}
	order := addPaidOrder(t, repoManager, "0.5")

	err := svc.RetryCommission(context.Background(), order.Id)
	require.ErrorIs(t, err, application.ErrWalletNotSpendCapable)
	require.Equal(t, 0, walletSvc.numTransferCalls())

	stored, err := svc.GetOrder(context.Background(), order.Id)
	require.NoError(t, err)
	require.True(t, stored.ManualSettlement)

	// once routed to manual settlement nothing is owed anymore
	err = svc.RetryCommission(context.Background(), order.Id)
	require.ErrorIs(t, err, application.ErrCommissionNotDue)
}
