package application_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/thanhpk/randstr"

	"github.com/kiosknetwork/kiosk-daemon/internal/core/application"
	"github.com/kiosknetwork/kiosk-daemon/internal/core/domain"
	"github.com/kiosknetwork/kiosk-daemon/internal/core/ports"
	"github.com/kiosknetwork/kiosk-daemon/internal/infrastructure/storage/db/inmemory"
	walletrpc "github.com/kiosknetwork/kiosk-daemon/internal/infrastructure/wallet-rpc"
)

const confirmationThreshold = 10

func newPollerFixture(t *testing.T) (
	*application.PaymentPoller, *inmemory.DbManager,
	*walletServiceMock, *pubsubMock,
) {
	t.Helper()
	repoManager := inmemory.NewDbManager()
	walletSvc := newWalletServiceMock()
	pubsubSvc := &pubsubMock{}
	forwarder := application.NewCommissionForwarder(
		repoManager, walletSvc, pubsubSvc,
		commissionAddress, dustThreshold, time.Hour,
	)
	poller := application.NewPaymentPoller(
		repoManager, walletSvc, pubsubSvc, forwarder,
		confirmationThreshold, time.Second,
	)
	return poller, repoManager, walletSvc, pubsubSvc
}

func addPendingOrder(
	t *testing.T, repoManager *inmemory.DbManager, total string, ttl time.Duration,
) *domain.Order {
	t.Helper()
	order, err := domain.NewOrder(
		randstr.Hex(32), decimal.RequireFromString(total), "EUR",
		commissionRate, ttl,
	)
	require.NoError(t, err)
	require.NoError(t, repoManager.OrderRepository().AddOrder(
		context.Background(), order,
	))
	return order
}

func incomingTransfer(amount string, confirmations uint64) ports.Transfer {
	return ports.Transfer{
		Txid:          randstr.Hex(32),
		Amount:        decimal.RequireFromString(amount),
		Confirmations: confirmations,
		Timestamp:     time.Now(),
	}
}

func TestPollerConfirmsPaymentAtThreshold(t *testing.T) {
	poller, repoManager, walletSvc, pubsubSvc := newPollerFixture(t)
	order := addPendingOrder(t, repoManager, "0.5", 24*time.Hour)
	walletSvc.setIncoming(order.Address, incomingTransfer("0.5", 12))

	poller.Tick(context.Background())

	stored, err := repoManager.OrderRepository().GetOrder(
		context.Background(), order.Id,
	)
	require.NoError(t, err)
	require.Equal(t, domain.PaymentStatusPaid, stored.PaymentStatus)
	require.Len(t, pubsubSvc.eventsOfType(ports.EventPaymentConfirmed), 1)

	// the commission forward runs in the same pass
	require.Equal(t, 1, walletSvc.numTransferCalls())
	require.True(t, stored.CommissionPaid)
}

func TestPollerNeverConfirmsBelowThreshold(t *testing.T) {
	poller, repoManager, walletSvc, pubsubSvc := newPollerFixture(t)
	order := addPendingOrder(t, repoManager, "0.5", 24*time.Hour)
	walletSvc.setIncoming(order.Address, incomingTransfer("0.5", 9))

	poller.Tick(context.Background())

	stored, err := repoManager.OrderRepository().GetOrder(
		context.Background(), order.Id,
	)
	require.NoError(t, err)
	require.Equal(t, domain.PaymentStatusPending, stored.PaymentStatus)
	require.Equal(t, uint64(9), stored.ConfirmationsObserved)
	require.Empty(t, pubsubSvc.eventsOfType(ports.EventPaymentConfirmed))
}

func TestPollerPartialPaymentNeverTransitions(t *testing.T) {
	poller, repoManager, walletSvc, _ := newPollerFixture(t)
	order := addPendingOrder(t, repoManager, "0.5", 24*time.Hour)
	walletSvc.setIncoming(order.Address, incomingTransfer("0.3", 20))

	poller.Tick(context.Background())

	stored, err := repoManager.OrderRepository().GetOrder(
		context.Background(), order.Id,
	)
	require.NoError(t, err)
	require.Equal(t, domain.PaymentStatusPending, stored.PaymentStatus)
}

func TestPollerLeastConfirmedTransferGates(t *testing.T) {
	poller, repoManager, walletSvc, _ := newPollerFixture(t)
	order := addPendingOrder(t, repoManager, "0.5", 24*time.Hour)
	// the full amount is present but the covering transfer set includes a
	// mempool transfer, so the observed confirmation count is zero
	pending := incomingTransfer("0.2", 0)
	pending.Pending = true
	walletSvc.setIncoming(order.Address, incomingTransfer("0.3", 15), pending)

	poller.Tick(context.Background())

	stored, err := repoManager.OrderRepository().GetOrder(
		context.Background(), order.Id,
	)
	require.NoError(t, err)
	require.Equal(t, domain.PaymentStatusPending, stored.PaymentStatus)
	require.Equal(t, uint64(0), stored.ConfirmationsObserved)
}

func TestPollerAcceptsOverpayment(t *testing.T) {
	poller, repoManager, walletSvc, _ := newPollerFixture(t)
	order := addPendingOrder(t, repoManager, "0.5", 24*time.Hour)
	walletSvc.setIncoming(order.Address, incomingTransfer("0.8", 12))

	poller.Tick(context.Background())

	stored, err := repoManager.OrderRepository().GetOrder(
		context.Background(), order.Id,
	)
	require.NoError(t, err)
	require.Equal(t, domain.PaymentStatusPaid, stored.PaymentStatus)
	// the split stays the one computed at order creation
	require.True(t, stored.CommissionAmount.Equal(
		decimal.RequireFromString("0.035"),
	))
}

func TestPollerExpiresUnpaidOrder(t *testing.T) {
	poller, repoManager, _, pubsubSvc := newPollerFixture(t)
	order := addPendingOrder(t, repoManager, "0.5", -time.Minute)

	poller.Tick(context.Background())

	stored, err := repoManager.OrderRepository().GetOrder(
		context.Background(), order.Id,
	)
	require.NoError(t, err)
	require.Equal(t, domain.PaymentStatusExpired, stored.PaymentStatus)
	require.Len(t, pubsubSvc.eventsOfType(ports.EventOrderExpired), 1)
}

func TestPollerPaymentBeatsExpiryInSamePass(t *testing.T) {
	poller, repoManager, walletSvc, pubsubSvc := newPollerFixture(t)
	order := addPendingOrder(t, repoManager, "0.5", -time.Minute)
	walletSvc.setIncoming(order.Address, incomingTransfer("0.5", 12))

	poller.Tick(context.Background())

	stored, err := repoManager.OrderRepository().GetOrder(
		context.Background(), order.Id,
	)
	require.NoError(t, err)
	require.Equal(t, domain.PaymentStatusPaid, stored.PaymentStatus)
	require.Empty(t, pubsubSvc.eventsOfType(ports.EventOrderExpired))
}

func TestPollerConfirmationsSurviveDaemonRewind(t *testing.T) {
	poller, repoManager, walletSvc, _ := newPollerFixture(t)
	order := addPendingOrder(t, repoManager, "0.5", 24*time.Hour)

	walletSvc.setIncoming(order.Address, incomingTransfer("0.5", 7))
	poller.Tick(context.Background())

	// a restarted daemon still syncing reports fewer confirmations
	walletSvc.setIncoming(order.Address, incomingTransfer("0.5", 3))
	poller.Tick(context.Background())

	stored, err := repoManager.OrderRepository().GetOrder(
		context.Background(), order.Id,
	)
	require.NoError(t, err)
	require.Equal(t, domain.PaymentStatusPending, stored.PaymentStatus)
	require.Equal(t, uint64(7), stored.ConfirmationsObserved)
}

func TestPollerRetriesTransientReadInSamePass(t *testing.T) {
	poller, repoManager, walletSvc, _ := newPollerFixture(t)
	order := addPendingOrder(t, repoManager, "0.5", 24*time.Hour)
	walletSvc.setIncoming(order.Address, incomingTransfer("0.5", 12))
	// a single dropped connection is retried within the same pass
	walletSvc.failIncomingOnce(order.Address, walletrpc.ErrDaemonUnreachable)

	poller.Tick(context.Background())

	stored, err := repoManager.OrderRepository().GetOrder(
		context.Background(), order.Id,
	)
	require.NoError(t, err)
	require.Equal(t, domain.PaymentStatusPaid, stored.PaymentStatus)
}

func TestPollerIsolatesPerOrderFailures(t *testing.T) {
	poller, repoManager, walletSvc, _ := newPollerFixture(t)
	// the first order's RPC read fails, the second one is still observed
	// in the same pass
	broken := addPendingOrder(t, repoManager, "1.2", 24*time.Hour)
	walletSvc.incomingErr[broken.Address] = &walletrpc.RPCError{
		Code: -9, Message: "daemon is busy",
	}
	paid := addPendingOrder(t, repoManager, "0.5", 24*time.Hour)
	walletSvc.setIncoming(paid.Address, incomingTransfer("0.5", 12))

	poller.Tick(context.Background())

	stored, err := repoManager.OrderRepository().GetOrder(
		context.Background(), paid.Id,
	)
	require.NoError(t, err)
	require.Equal(t, domain.PaymentStatusPaid, stored.PaymentStatus)
}
