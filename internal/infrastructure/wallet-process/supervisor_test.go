package walletprocess_test

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	walletprocess "github.com/kiosknetwork/kiosk-daemon/internal/infrastructure/wallet-process"
)

func TestStartBinaryMissing(t *testing.T) {
	opts := testOptions(t, 38081)
	opts.DaemonBinary = "definitely-not-installed-anywhere"
	supervisor := walletprocess.NewSupervisor(opts, pingOk, nodeReachable)

	err := supervisor.Start(context.Background(), "node1:18081")
	require.ErrorIs(t, err, walletprocess.ErrBinaryMissing)
	// a failed start must not leave the supervisor stuck in starting
	require.Equal(t, "absent", supervisor.Status().State)
}

func TestStartRejectsConcurrentStart(t *testing.T) {
	supervisor := walletprocess.NewSupervisor(
		testOptions(t, 38090), pingOk, nodeReachable,
	)

	errs := make(chan error, 2)
	for i := 0; i < 2; i++ {
		go func() {
			errs <- supervisor.Start(context.Background(), "node1:18081")
		}()
	}

	started := 0
	for i := 0; i < 2; i++ {
		if err := <-errs; err == nil {
			started++
		} else {
			require.ErrorIs(t, err, walletprocess.ErrAlreadyStarted)
		}
	}
	require.Equal(t, 1, started)
	require.NoError(t, supervisor.Stop(context.Background()))
}

func TestStartPortInUse(t *testing.T) {
	port := 38082
	ln, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
	require.NoError(t, err)
	defer ln.Close()

	supervisor := walletprocess.NewSupervisor(testOptions(t, port), pingOk, nodeReachable)

	err = supervisor.Start(context.Background(), "node1:18081")
	require.ErrorIs(t, err, walletprocess.ErrPortInUse)
}

func TestStartBecomesReady(t *testing.T) {
	supervisor := walletprocess.NewSupervisor(testOptions(t, 38083), pingOk, nodeReachable)

	err := supervisor.Start(context.Background(), "node1:18081")
	require.NoError(t, err)
	require.True(t, supervisor.Healthy())

	status := supervisor.Status()
	require.Equal(t, "ready", status.State)
	require.Greater(t, status.PID, 0)
	require.Equal(t, "node1:18081", status.NodeAddr)

	err = supervisor.Start(context.Background(), "node1:18081")
	require.ErrorIs(t, err, walletprocess.ErrAlreadyStarted)

	err = supervisor.Stop(context.Background())
	require.NoError(t, err)
	require.False(t, supervisor.Healthy())
	require.Equal(t, "stopped", supervisor.Status().State)

	err = supervisor.Stop(context.Background())
	require.ErrorIs(t, err, walletprocess.ErrNotStarted)
}

func TestStartClassifiesNodeUnreachable(t *testing.T) {
	supervisor := walletprocess.NewSupervisor(testOptions(t, 38084), pingFail, nodeUnreachable)

	err := supervisor.Start(context.Background(), "node1:18081")
	require.ErrorIs(t, err, walletprocess.ErrNodeUnreachable)
	require.False(t, supervisor.Healthy())
}

func TestStartClassifiesWalletCorrupt(t *testing.T) {
	opts := testOptions(t, 38085)
	opts.DaemonBinary = writeScript(
		t, "crashing-daemon", "#!/bin/sh\necho 'failed to load wallet' >&2\nexit 1\n",
	)
	supervisor := walletprocess.NewSupervisor(opts, pingFail, nodeReachable)

	err := supervisor.Start(context.Background(), "node1:18081")
	require.ErrorIs(t, err, walletprocess.ErrWalletCorrupt)
}

func TestEnsureWalletExistsCreatesNewWallet(t *testing.T) {
	opts := testOptions(t, 38086)
	supervisor := walletprocess.NewSupervisor(opts, pingOk, nodeReachable)

	identity, err := supervisor.EnsureWalletExists(context.Background())
	require.NoError(t, err)
	require.True(t, identity.Fresh)
	require.Len(t, strings.Fields(identity.Seed), 25)
}

func TestEnsureWalletExistsReusesHealthyWallet(t *testing.T) {
	opts := testOptions(t, 38087)
	require.NoError(t, os.WriteFile(opts.WalletFile+".keys", []byte("keydata"), 0600))
	require.NoError(t, os.WriteFile(opts.WalletFile, []byte("cachedata"), 0600))

	supervisor := walletprocess.NewSupervisor(opts, pingOk, nodeReachable)

	identity, err := supervisor.EnsureWalletExists(context.Background())
	require.NoError(t, err)
	require.False(t, identity.Fresh)
	require.Empty(t, identity.Seed)
}

func TestEnsureWalletExistsRecreatesUnhealthyWallet(t *testing.T) {
	opts := testOptions(t, 38088)
	// an empty keys file is a structural corruption marker
	require.NoError(t, os.WriteFile(opts.WalletFile+".keys", nil, 0600))

	supervisor := walletprocess.NewSupervisor(opts, pingOk, nodeReachable)

	identity, err := supervisor.EnsureWalletExists(context.Background())
	require.NoError(t, err)
	require.True(t, identity.Fresh)

	backups, err := filepath.Glob(opts.WalletFile + ".keys.corrupt-*")
	require.NoError(t, err)
	require.Len(t, backups, 1)
}

func TestCleanupOrphans(t *testing.T) {
	opts := testOptions(t, 38089)
	supervisor := walletprocess.NewSupervisor(opts, pingOk, nodeReachable)

	orphan := exec.Command(
		opts.DaemonBinary, "--rpc-bind-port", "38089", "--wallet-file", opts.WalletFile,
	)
	require.NoError(t, orphan.Start())
	orphanExited := make(chan struct{})
	go func() {
		orphan.Wait()
		close(orphanExited)
	}()

	count, err := supervisor.CleanupOrphans()
	require.NoError(t, err)
	require.Equal(t, 1, count)

	select {
	case <-orphanExited:
	case <-time.After(10 * time.Second):
		t.Fatal("orphan process was not terminated")
	}
}

func testOptions(t *testing.T, port int) walletprocess.Options {
	t.Helper()
	dir := t.TempDir()
	return walletprocess.Options{
		// no exec, the orphan scan matches the daemon name in /proc cmdlines
		DaemonBinary:          writeScript(t, "fake-daemon", "#!/bin/sh\nsleep 60\n"),
		WalletCLIBinary:       writeScript(t, "fake-wallet-cli", fakeWalletCLIScript),
		WalletFile:            filepath.Join(dir, "storefront.wallet"),
		RPCPort:               port,
		LogDir:                dir,
		ReadinessTimeout:      3 * time.Second,
		FreshReadinessTimeout: 5 * time.Second,
		StopGracePeriod:       2 * time.Second,
	}
}

const fakeWalletCLIScript = `#!/bin/sh
echo "Generated new wallet"
echo "PLEASE NOTE: the following 25 words can be used to recover access"
echo "abbey abbey abbey abbey abbey"
echo "abbey abbey abbey abbey abbey"
echo "abbey abbey abbey abbey abbey"
echo "abbey abbey abbey abbey abbey"
echo "abbey abbey abbey abbey abbey"
touch "$2.keys" 2>/dev/null
`

func writeScript(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0755))
	return path
}

func pingOk(_ context.Context) error { return nil }

func pingFail(_ context.Context) error { return errors.New("connection refused") }

func nodeReachable(_ context.Context, _ string) bool { return true }

func nodeUnreachable(_ context.Context, _ string) bool { return false }

