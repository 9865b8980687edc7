package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/kiosknetwork/kiosk-daemon/internal/config"
	"github.com/kiosknetwork/kiosk-daemon/internal/core/application"
	"github.com/kiosknetwork/kiosk-daemon/internal/infrastructure/pubsub"
	dbbadger "github.com/kiosknetwork/kiosk-daemon/internal/infrastructure/storage/db/badger"
	walletprocess "github.com/kiosknetwork/kiosk-daemon/internal/infrastructure/wallet-process"
	walletrpc "github.com/kiosknetwork/kiosk-daemon/internal/infrastructure/wallet-rpc"
	httpinterface "github.com/kiosknetwork/kiosk-daemon/internal/interfaces/http"
	"github.com/kiosknetwork/kiosk-daemon/pkg/nodeprobe"
	"github.com/kiosknetwork/kiosk-daemon/pkg/retry"
)

func main() {
	if err := config.InitConfig(); err != nil {
		log.WithError(err).Fatal("invalid configuration")
	}
	log.SetLevel(log.Level(config.GetInt(config.LogLevelKey)))

	datadir := config.GetDatadir()
	probeTimeout := config.GetDuration(config.ProbeTimeoutKey)

	repoManager, err := dbbadger.NewDbManager(
		filepath.Join(datadir, config.DbLocation), nil,
	)
	if err != nil {
		log.WithError(err).Fatal("failed to open datadir stores")
	}
	defer repoManager.Close()

	ctx := context.Background()
	endpoints, err := config.GetNodeEndpoints()
	if err != nil {
		log.WithError(err).Fatal("invalid node endpoints")
	}
	for _, endpoint := range endpoints {
		if err := repoManager.EndpointRepository().AddEndpoint(
			ctx, endpoint,
		); err != nil {
			log.WithError(err).Fatal("failed to store node endpoint")
		}
	}

	walletSvc := walletrpc.NewService(
		config.GetInt(config.WalletRPCPortKey),
		config.GetDuration(config.RPCTimeoutKey),
	)

	supervisor := walletprocess.NewSupervisor(
		walletprocess.Options{
			DaemonBinary:          config.GetString(config.WalletDaemonBinaryKey),
			WalletCLIBinary:       config.GetString(config.WalletCLIBinaryKey),
			WalletFile:            config.GetWalletFile(),
			RPCPort:               config.GetInt(config.WalletRPCPortKey),
			LogDir:                filepath.Join(datadir, config.LogLocation),
			ReadinessTimeout:      config.GetDuration(config.ReadinessTimeoutKey),
			FreshReadinessTimeout: config.GetDuration(config.FreshReadinessTimeoutKey),
			StopGracePeriod:       config.GetDuration(config.StopGracePeriodKey),
		},
		walletSvc.Ping,
		func(ctx context.Context, nodeAddr string) bool {
			return nodeprobe.Probe(ctx, nodeprobe.Target{
				URL: fmt.Sprintf("http://%s", nodeAddr),
			}, probeTimeout).Reachable
		},
	)

	if removed, err := supervisor.CleanupOrphans(); err != nil {
		log.WithError(err).Warn("orphan wallet daemon cleanup failed")
	} else if removed > 0 {
		log.Infof("terminated %d orphan wallet daemon process(es)", removed)
	}

	identity, err := supervisor.EnsureWalletExists(ctx)
	if err != nil {
		log.WithError(err).Fatal("failed to prepare wallet file")
	}
	if identity.Fresh {
		// shown exactly once, the daemon never persists it
		log.Warnf("new wallet created, write down its seed now:\n%s", identity.Seed)
	}

	pubsubSvc := pubsub.NewBroker()
	defer pubsubSvc.Close()
	if hooks := config.GetStringSlice(config.WebhookEndpointsKey); len(hooks) > 0 {
		notifier := pubsub.NewWebhookNotifier(hooks)
		notifier.Start(pubsubSvc.Subscribe())
		defer notifier.Stop()
	}

	forwarder := application.NewCommissionForwarder(
		repoManager, walletSvc, pubsubSvc,
		config.GetString(config.CommissionAddressKey),
		config.GetDecimal(config.DustThresholdKey),
		config.GetDuration(config.CommissionRetryIntervalKey),
	)
	monitor := application.NewNodeHealthMonitor(
		repoManager, supervisor, walletSvc, forwarder,
		probeTimeout, config.GetDuration(config.HealthIntervalKey),
	)
	poller := application.NewPaymentPoller(
		repoManager, walletSvc, pubsubSvc, forwarder,
		uint64(config.GetInt(config.ConfirmationThresholdKey)),
		config.GetDuration(config.PollIntervalKey),
	)
	orderSvc := application.NewOrderService(
		repoManager, walletSvc, forwarder,
		config.GetDecimal(config.CommissionRateKey),
		config.GetDuration(config.OrderTTLKey),
	)

	endpoint, err := monitor.SelectStartupEndpoint(ctx)
	if err != nil {
		log.WithError(err).Fatal("failed to select a node endpoint")
	}
	// a node briefly unreachable at boot is worth a few more attempts;
	// misconfiguration (missing binary, bound port, corrupt wallet) is not
	if err := retry.Do(ctx, retry.Options{
		MaxAttempts:     5,
		InitialInterval: 5 * time.Second,
		IsRetryable: func(err error) bool {
			return errors.Is(err, walletprocess.ErrNodeUnreachable)
		},
	}, func() error {
		return supervisor.Start(ctx, endpoint.Addr())
	}); err != nil {
		log.WithError(err).Fatal("failed to start wallet daemon")
	}
	log.Info("wallet daemon is ready")

	forwarder.Start(ctx)
	poller.Start(ctx)
	monitor.Start(ctx)

	adminSvc := httpinterface.NewService(
		config.GetInt(config.AdminListeningPortKey),
		orderSvc, monitor, supervisor,
	)
	go func() {
		if err := adminSvc.Start(); err != nil {
			log.WithError(err).Fatal("admin interface crashed")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)
	<-sigChan

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := adminSvc.Stop(shutdownCtx); err != nil {
		log.WithError(err).Warn("admin interface did not stop cleanly")
	}
	monitor.Stop()
	poller.Stop()
	forwarder.Stop()
	if err := supervisor.Stop(shutdownCtx); err != nil {
		log.WithError(err).Warn("wallet daemon did not stop cleanly")
	}
	log.Info("bye")
}
