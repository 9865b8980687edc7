package walletprocess

import "errors"

// Start failures are classified so that the caller can surface the specific
// corrective action instead of a generic message.
var (
	// ErrBinaryMissing is returned when the daemon or wallet-creation binary
	// cannot be found in PATH.
	ErrBinaryMissing = errors.New("wallet binary not found")
	// ErrPortInUse is returned when the RPC bind port is already taken.
	ErrPortInUse = errors.New("wallet rpc port already in use")
	// ErrNodeUnreachable is returned when the daemon cannot reach the target
	// node during startup.
	ErrNodeUnreachable = errors.New("target node unreachable")
	// ErrWalletCorrupt is returned when the wallet file cannot be loaded.
	ErrWalletCorrupt = errors.New("wallet file corrupt")
	// ErrAlreadyStarted is returned when starting a supervisor that already
	// owns a live process.
	ErrAlreadyStarted = errors.New("wallet daemon already started")
	// ErrNotStarted is returned when stopping a supervisor with no live
	// process.
	ErrNotStarted = errors.New("wallet daemon not started")
)

var errProcessExited = errors.New("wallet daemon process exited during startup")
