package walletprocess

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/kiosknetwork/kiosk-daemon/internal/core/ports"
	"github.com/kiosknetwork/kiosk-daemon/pkg/retry"
)

const (
	StateAbsent       = "absent"
	StateStarting     = "starting"
	StateReady        = "ready"
	StateUnresponsive = "unresponsive"
	StateStopped      = "stopped"

	readinessPollInterval = time.Second
	portReleaseTimeout    = 5 * time.Second
)

// Options configures the supervisor. Every field is explicit, nothing is
// ever taken from an interactive prompt.
type Options struct {
	// DaemonBinary is the wallet daemon executable name or path.
	DaemonBinary string
	// WalletCLIBinary is the wallet-creation tool executable name or path.
	WalletCLIBinary string
	// WalletFile is the full path of the wallet file. The companion keys
	// file lives at WalletFile + ".keys".
	WalletFile string
	// RPCPort is the local port the daemon binds its RPC interface to.
	RPCPort int
	// LogDir is where the daemon writes its own log file.
	LogDir string
	// ReadinessTimeout bounds the startup window for an existing,
	// previously synced wallet.
	ReadinessTimeout time.Duration
	// FreshReadinessTimeout bounds the startup window for a wallet created
	// in this session, whose initial chain sync can legitimately take
	// longer.
	FreshReadinessTimeout time.Duration
	// StopGracePeriod bounds how long a graceful termination may take
	// before escalating to a forced one.
	StopGracePeriod time.Duration
}

// Supervisor guarantees at most one live wallet daemon process bound to the
// configured port, backed by a specific wallet file and node endpoint. It is
// the exclusive owner of the process: no other component may signal it.
type Supervisor struct {
	opts Options
	// ping is the lightweight RPC call used as readiness probe.
	ping func(ctx context.Context) error
	// probeNode reports whether the given node address is reachable, used
	// to classify startup failures.
	probeNode func(ctx context.Context, nodeAddr string) bool

	mtx      sync.Mutex
	cmd      *exec.Cmd
	state    string
	nodeAddr string
	fresh    bool
	output   *prefixBuffer
	waitDone chan struct{}
}

// NewSupervisor returns a stopped supervisor. The ping function must hit the
// daemon RPC on Options.RPCPort, the probeNode one the given node address.
func NewSupervisor(
	opts Options,
	ping func(ctx context.Context) error,
	probeNode func(ctx context.Context, nodeAddr string) bool,
) *Supervisor {
	return &Supervisor{
		opts:      opts,
		ping:      ping,
		probeNode: probeNode,
		state:     StateAbsent,
	}
}

// Start spawns the wallet daemon bound to the configured port and the given
// node address. It returns only once a readiness probe succeeds, or a
// classified error after the startup window elapses. The caller retries
// start failures on its own schedule.
func (s *Supervisor) Start(ctx context.Context, nodeAddr string) error {
	// the starting state is reserved before the mutex is released so a
	// concurrent Start cannot spawn a second process
	s.mtx.Lock()
	if s.state == StateStarting || s.state == StateReady {
		s.mtx.Unlock()
		return ErrAlreadyStarted
	}
	prevState := s.state
	s.state = StateStarting
	s.mtx.Unlock()

	if _, err := exec.LookPath(s.opts.DaemonBinary); err != nil {
		s.setState(prevState)
		return fmt.Errorf("%w: %s", ErrBinaryMissing, s.opts.DaemonBinary)
	}
	if !portFree(s.opts.RPCPort) {
		s.setState(prevState)
		return fmt.Errorf("%w: %d", ErrPortInUse, s.opts.RPCPort)
	}

	output := &prefixBuffer{}
	cmd := exec.Command(s.opts.DaemonBinary, s.daemonArgs(nodeAddr)...)
	cmd.Stdout = output
	cmd.Stderr = output
	cmd.Stdin = strings.NewReader("")

	if err := cmd.Start(); err != nil {
		s.setState(prevState)
		return fmt.Errorf("spawning wallet daemon: %w", err)
	}

	waitDone := make(chan struct{})
	s.mtx.Lock()
	s.cmd = cmd
	s.nodeAddr = nodeAddr
	s.output = output
	s.waitDone = waitDone
	s.mtx.Unlock()

	go func() {
		if err := cmd.Wait(); err != nil {
			log.WithError(err).Debug("wallet daemon process exited")
		}
		close(waitDone)
	}()

	log.Infof(
		"wallet daemon started with pid %d on port %d against node %s",
		cmd.Process.Pid, s.opts.RPCPort, nodeAddr,
	)

	if err := s.awaitReadiness(ctx, waitDone); err != nil {
		s.terminate(cmd, waitDone)
		s.setState(StateStopped)
		return s.classifyStartFailure(ctx, err, nodeAddr)
	}

	s.setState(StateReady)
	log.Info("wallet daemon is ready")
	return nil
}

// Stop requests graceful termination of the supervised process, escalating
// to a forced one after the grace period. The RPC port is guaranteed to be
// released before it returns.
func (s *Supervisor) Stop(ctx context.Context) error {
	s.mtx.Lock()
	cmd, waitDone := s.cmd, s.waitDone
	s.mtx.Unlock()

	if cmd == nil {
		return ErrNotStarted
	}

	select {
	case <-waitDone:
	default:
		log.Infof("stopping wallet daemon with pid %d", cmd.Process.Pid)
		if err := cmd.Process.Signal(syscall.SIGTERM); err != nil {
			log.WithError(err).Warn("failed to signal wallet daemon, killing it")
			cmd.Process.Kill()
		}
		select {
		case <-waitDone:
		case <-time.After(s.opts.StopGracePeriod):
			log.Warn("wallet daemon did not stop gracefully, killing it")
			cmd.Process.Kill()
			<-waitDone
		case <-ctx.Done():
			cmd.Process.Kill()
			<-waitDone
		}
	}

	s.awaitPortRelease()

	s.mtx.Lock()
	s.cmd = nil
	s.state = StateStopped
	s.mtx.Unlock()
	return nil
}

// Status returns a snapshot of the supervised process handle.
func (s *Supervisor) Status() ports.WalletStatus {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	status := ports.WalletStatus{
		RPCPort:  s.opts.RPCPort,
		NodeAddr: s.nodeAddr,
		State:    s.state,
	}
	if s.cmd != nil && s.cmd.Process != nil {
		status.PID = s.cmd.Process.Pid
	}
	if s.processExited() && (s.state == StateStarting || s.state == StateReady) {
		status.State = StateUnresponsive
	}
	return status
}

// Healthy reports whether the supervised process is alive and ready.
func (s *Supervisor) Healthy() bool {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	return s.state == StateReady && !s.processExited()
}

// MarkUnresponsive flags the handle after a failed liveness probe. The node
// health monitor reacts by restarting the process.
func (s *Supervisor) MarkUnresponsive() {
	s.setState(StateUnresponsive)
}

func (s *Supervisor) daemonArgs(nodeAddr string) []string {
	return []string{
		"--wallet-file", s.opts.WalletFile,
		"--password", "",
		"--rpc-bind-ip", "127.0.0.1",
		"--rpc-bind-port", strconv.Itoa(s.opts.RPCPort),
		"--daemon-address", nodeAddr,
		"--disable-rpc-login",
		"--log-file", filepath.Join(s.opts.LogDir, "wallet-daemon.log"),
	}
}

func (s *Supervisor) awaitReadiness(ctx context.Context, waitDone chan struct{}) error {
	window := s.opts.ReadinessTimeout
	if s.isFresh() {
		window = s.opts.FreshReadinessTimeout
		log.Infof(
			"freshly created wallet, extending readiness window to %s", window,
		)
	}

	attempts := int(window / readinessPollInterval)
	if attempts < 1 {
		attempts = 1
	}
	return retry.Do(ctx, retry.Options{
		MaxAttempts:     attempts,
		InitialInterval: readinessPollInterval,
		MaxInterval:     readinessPollInterval,
		Multiplier:      1,
		IsRetryable: func(err error) bool {
			// a dead process never becomes ready, stop polling right away
			return !errors.Is(err, errProcessExited)
		},
	}, func() error {
		select {
		case <-waitDone:
			return errProcessExited
		default:
		}
		pingCtx, cancel := context.WithTimeout(ctx, readinessPollInterval)
		defer cancel()
		return s.ping(pingCtx)
	})
}

func (s *Supervisor) classifyStartFailure(
	ctx context.Context, err error, nodeAddr string,
) error {
	output := strings.ToLower(s.outputString())
	for _, marker := range []string{
		"corrupt", "invalid password", "failed to load wallet", "wrong password",
	} {
		if strings.Contains(output, marker) {
			return fmt.Errorf("%w: %s", ErrWalletCorrupt, s.opts.WalletFile)
		}
	}

	if s.probeNode != nil && !s.probeNode(ctx, nodeAddr) {
		return fmt.Errorf("%w: %s", ErrNodeUnreachable, nodeAddr)
	}

	return fmt.Errorf("wallet daemon not ready: %w", err)
}

func (s *Supervisor) terminate(cmd *exec.Cmd, waitDone chan struct{}) {
	select {
	case <-waitDone:
		return
	default:
	}
	cmd.Process.Signal(syscall.SIGTERM)
	select {
	case <-waitDone:
	case <-time.After(s.opts.StopGracePeriod):
		cmd.Process.Kill()
		<-waitDone
	}
	s.awaitPortRelease()
}

func (s *Supervisor) awaitPortRelease() {
	deadline := time.Now().Add(portReleaseTimeout)
	for time.Now().Before(deadline) {
		if portFree(s.opts.RPCPort) {
			return
		}
		time.Sleep(100 * time.Millisecond)
	}
	log.Warnf("port %d still bound after stopping wallet daemon", s.opts.RPCPort)
}

func (s *Supervisor) processExited() bool {
	if s.waitDone == nil {
		return true
	}
	select {
	case <-s.waitDone:
		return true
	default:
		return false
	}
}

func (s *Supervisor) setState(state string) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	s.state = state
}

func (s *Supervisor) isFresh() bool {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	return s.fresh
}

func (s *Supervisor) outputString() string {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	if s.output == nil {
		return ""
	}
	return s.output.String()
}

var _ ports.WalletSupervisor = (*Supervisor)(nil)

func portFree(port int) bool {
	ln, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
	if err != nil {
		return false
	}
	ln.Close()
	return true
}

// prefixBuffer retains the head of the process output, enough to classify a
// startup failure without growing unbounded on a chatty daemon.
type prefixBuffer struct {
	mtx sync.Mutex
	buf bytes.Buffer
}

const prefixBufferCap = 64 * 1024

func (b *prefixBuffer) Write(p []byte) (int, error) {
	b.mtx.Lock()
	defer b.mtx.Unlock()
	if remaining := prefixBufferCap - b.buf.Len(); remaining > 0 {
		if len(p) > remaining {
			b.buf.Write(p[:remaining])
		} else {
			b.buf.Write(p)
		}
	}
	return len(p), nil
}

func (b *prefixBuffer) String() string {
	b.mtx.Lock()
	defer b.mtx.Unlock()
	return b.buf.String()
}
