package walletprocess

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/kiosknetwork/kiosk-daemon/pkg/retry"
)

const orphanStopTimeout = 5 * time.Second

// CleanupOrphans scans the process table for wallet daemon processes bound
// to our port that are not tracked by the current handle, ie. zombies left
// over by a crashed prior run, and terminates them so the new process does
// not hit a port or file-lock conflict. It returns the number of processes
// terminated.
func (s *Supervisor) CleanupOrphans() (int, error) {
	trackedPid := 0
	s.mtx.Lock()
	if s.cmd != nil && s.cmd.Process != nil {
		trackedPid = s.cmd.Process.Pid
	}
	s.mtx.Unlock()

	pids, err := findDaemonProcesses(
		filepath.Base(s.opts.DaemonBinary), s.opts.RPCPort,
	)
	if err != nil {
		return 0, fmt.Errorf("scanning process table: %w", err)
	}

	count := 0
	for _, pid := range pids {
		if pid == trackedPid || pid == os.Getpid() {
			continue
		}
		log.Warnf("terminating orphan wallet daemon process with pid %d", pid)
		if err := terminateProcess(pid); err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}

// findDaemonProcesses walks /proc looking for live processes whose command
// line matches the daemon binary bound to the given RPC port.
func findDaemonProcesses(binaryName string, rpcPort int) ([]int, error) {
	entries, err := os.ReadDir("/proc")
	if err != nil {
		return nil, err
	}

	pids := make([]int, 0)
	for _, entry := range entries {
		pid, err := strconv.Atoi(entry.Name())
		if err != nil {
			continue
		}
		raw, err := os.ReadFile(filepath.Join("/proc", entry.Name(), "cmdline"))
		if err != nil {
			continue
		}
		args := strings.Split(strings.TrimRight(string(raw), "\x00"), "\x00")
		if matchesDaemonCmdline(args, binaryName, rpcPort) {
			pids = append(pids, pid)
		}
	}
	return pids, nil
}

// matchesDaemonCmdline reports whether the command line belongs to a wallet
// daemon instance bound to the given port, accepting both the space and the
// equals-sign flag form. The binary may appear as argv[0] or, when launched
// through an interpreter or wrapper, as argv[1].
func matchesDaemonCmdline(args []string, binaryName string, rpcPort int) bool {
	if len(args) == 0 {
		return false
	}
	matchesBinary := filepath.Base(args[0]) == binaryName ||
		(len(args) > 1 && filepath.Base(args[1]) == binaryName)
	if !matchesBinary {
		return false
	}

	port := strconv.Itoa(rpcPort)
	for i, arg := range args {
		if arg == "--rpc-bind-port" && i+1 < len(args) && args[i+1] == port {
			return true
		}
		if arg == "--rpc-bind-port="+port {
			return true
		}
	}
	return false
}

func terminateProcess(pid int) error {
	if err := syscall.Kill(pid, syscall.SIGTERM); err != nil {
		if err == syscall.ESRCH {
			return nil
		}
		return fmt.Errorf("signaling process %d: %w", pid, err)
	}

	err := retry.Until(
		context.Background(), orphanStopTimeout, 100*time.Millisecond,
		func() error {
			if processAlive(pid) {
				return fmt.Errorf("process %d still alive", pid)
			}
			return nil
		},
	)
	if err != nil {
		log.Warnf("process %d ignored the termination request, killing it", pid)
		if err := syscall.Kill(pid, syscall.SIGKILL); err != nil && err != syscall.ESRCH {
			return fmt.Errorf("killing process %d: %w", pid, err)
		}
	}
	return nil
}

func processAlive(pid int) bool {
	// signal 0 performs the permission checks without delivering anything
	err := syscall.Kill(pid, 0)
	return err == nil || err == syscall.EPERM
}
