package application

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/kiosknetwork/kiosk-daemon/internal/core/domain"
	"github.com/kiosknetwork/kiosk-daemon/internal/core/ports"
	"github.com/kiosknetwork/kiosk-daemon/pkg/nodeprobe"
)

// NodeHealthMonitor owns the "current node" pointer. It periodically probes
// the node the wallet daemon is wired to, fails over to a backup endpoint
// when it goes dark, and restarts the daemon when the node is fine but the
// daemon itself stops answering.
type NodeHealthMonitor struct {
	endpointRepository domain.EndpointRepository
	supervisor         ports.WalletSupervisor
	walletSvc          ports.WalletService
	forwarder          *CommissionForwarder
	probeTimeout       time.Duration
	interval           time.Duration

	current     *domain.NodeEndpoint
	currentLock *sync.RWMutex

	quitChan chan struct{}
	wg       *sync.WaitGroup
}

func NewNodeHealthMonitor(
	repoManager ports.RepoManager,
	supervisor ports.WalletSupervisor,
	walletSvc ports.WalletService,
	forwarder *CommissionForwarder,
	probeTimeout, interval time.Duration,
) *NodeHealthMonitor {
	return &NodeHealthMonitor{
		endpointRepository: repoManager.EndpointRepository(),
		supervisor:         supervisor,
		walletSvc:          walletSvc,
		forwarder:          forwarder,
		probeTimeout:       probeTimeout,
		interval:           interval,
		currentLock:        &sync.RWMutex{},
		quitChan:           make(chan struct{}),
		wg:                 &sync.WaitGroup{},
	}
}

// SelectStartupEndpoint probes every configured endpoint concurrently and
// returns the reachable one with the lowest latency. With none reachable it
// falls back to the first configured endpoint so the daemon can still be
// started and recover once connectivity returns.
func (m *NodeHealthMonitor) SelectStartupEndpoint(
	ctx context.Context,
) (*domain.NodeEndpoint, error) {
	endpoints, err := m.endpointRepository.GetAllEndpoints(ctx)
	if err != nil {
		return nil, err
	}
	if len(endpoints) <= 0 {
		return nil, domain.ErrNoEndpoints
	}

	targets := make([]nodeprobe.Target, len(endpoints))
	for i, e := range endpoints {
		targets[i] = nodeprobe.Target{Label: e.Label, URL: e.URL()}
	}

	best, _ := nodeprobe.Rank(ctx, targets, m.probeTimeout)
	if best < 0 {
		log.Warn("no node endpoint reachable at startup, using first configured")
		best = 0
	}

	selected := endpoints[best]
	m.setCurrent(&selected)
	log.WithField("node", selected.String()).Info("node endpoint selected")
	return &selected, nil
}

// CurrentEndpoint returns a snapshot of the endpoint currently in use.
func (m *NodeHealthMonitor) CurrentEndpoint() *domain.NodeEndpoint {
	m.currentLock.RLock()
	defer m.currentLock.RUnlock()
	if m.current == nil {
		return nil
	}
	cp := *m.current
	return &cp
}

func (m *NodeHealthMonitor) Start(ctx context.Context) {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()
		for {
			select {
			case <-m.quitChan:
				return
			case <-ticker.C:
				m.Tick(ctx)
			}
		}
	}()
}

func (m *NodeHealthMonitor) Stop() {
	close(m.quitChan)
	m.wg.Wait()
}

// Tick runs one health pass: node connectivity first, daemon responsiveness
// second. When every endpoint is dark the current one is kept and re-probed
// on the next pass; the daemon is never torn down for lack of connectivity.
func (m *NodeHealthMonitor) Tick(ctx context.Context) {
	current := m.CurrentEndpoint()
	if current == nil {
		if _, err := m.SelectStartupEndpoint(ctx); err != nil {
			log.WithError(err).Error("failed to select node endpoint")
		}
		return
	}

	result := nodeprobe.Probe(ctx, nodeprobe.Target{
		Label: current.Label, URL: current.URL(),
	}, m.probeTimeout)
	if !result.Reachable {
		log.WithError(result.Err).WithField("node", current.String()).Warn(
			"current node unreachable, looking for a backup",
		)
		if err := m.failover(ctx, current); err != nil {
			log.WithError(err).Warn(
				"no backup node available, keeping current endpoint",
			)
		}
		return
	}

	if err := m.walletSvc.Ping(ctx); err != nil {
		m.supervisor.MarkUnresponsive()
		log.WithError(err).Warn("wallet daemon unresponsive, restarting it")
		if err := m.restartDaemon(ctx, current); err != nil {
			log.WithError(err).Error("failed to restart wallet daemon")
		}
	}
}

func (m *NodeHealthMonitor) failover(
	ctx context.Context, current *domain.NodeEndpoint,
) error {
	endpoints, err := m.endpointRepository.GetAllEndpoints(ctx)
	if err != nil {
		return err
	}

	for i := range endpoints {
		candidate := endpoints[i]
		if candidate.Label == current.Label {
			continue
		}
		result := nodeprobe.Probe(ctx, nodeprobe.Target{
			Label: candidate.Label, URL: candidate.URL(),
		}, m.probeTimeout)
		if !result.Reachable {
			continue
		}

		log.WithFields(log.Fields{
			"from": current.String(),
			"to":   candidate.String(),
		}).Info("failing over to backup node")

		if err := m.restartDaemon(ctx, &candidate); err != nil {
			return err
		}
		m.setCurrent(&candidate)
		nodeFailoversTotal.Inc()
		return nil
	}
	return ErrAllNodesUnreachable
}

// restartDaemon bounces the wallet daemon against the given endpoint. The
// cached spend capability is dropped since a fresh daemon session may load a
// different wallet.
func (m *NodeHealthMonitor) restartDaemon(
	ctx context.Context, endpoint *domain.NodeEndpoint,
) error {
	if err := m.supervisor.Stop(ctx); err != nil {
		log.WithError(err).Warn("wallet daemon did not stop cleanly")
	}
	if err := m.supervisor.Start(ctx, endpoint.Addr()); err != nil {
		return err
	}
	m.forwarder.ResetCapability()
	return nil
}

func (m *NodeHealthMonitor) setCurrent(endpoint *domain.NodeEndpoint) {
	m.currentLock.Lock()
	defer m.currentLock.Unlock()
	m.current = endpoint
}
