package ports

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Transfer is a single incoming or outgoing ledger transfer as reported by
// the wallet daemon.
type Transfer struct {
	Txid          string
	Address       string
	Destination   string
	Amount        decimal.Decimal
	Confirmations uint64
	Height        uint64
	Timestamp     time.Time
	Pending       bool
}

// SpendCapability is the typed result of probing whether the daemon can sign
// outbound transfers. A view-only wallet is not spend capable.
type SpendCapability struct {
	SpendCapable bool
	Reason       string
}

// WalletService is the interface for connecting with the local wallet daemon
// RPC and making it manage funds. Every call blocks on network I/O with a
// bounded timeout.
type WalletService interface {
	// Ping is a lightweight liveness call used purely for readiness polling.
	Ping(ctx context.Context) error
	// GetAddress returns the wallet primary receiving address.
	GetAddress(ctx context.Context) (string, error)
	// NewReceivingAddress derives a fresh address dedicated to one order.
	NewReceivingAddress(ctx context.Context, label string) (string, error)
	// GetHeight returns the wallet's current sync height.
	GetHeight(ctx context.Context) (uint64, error)
	// GetIncomingTransfers returns confirmed and mempool transfers towards
	// the given receiving address.
	GetIncomingTransfers(ctx context.Context, address string) ([]Transfer, error)
	// GetOutgoingTransfers returns transfers issued by the wallet, used to
	// detect a submitted transfer whose outcome was never persisted.
	GetOutgoingTransfers(ctx context.Context) ([]Transfer, error)
	// Transfer submits a single outbound transfer and returns its txid.
	Transfer(ctx context.Context, address string, amount decimal.Decimal) (string, error)
	// SpendCapability probes whether the daemon holds the spend key.
	SpendCapability(ctx context.Context) (*SpendCapability, error)
}

// WalletStatus is a point-in-time snapshot of the supervised daemon process.
type WalletStatus struct {
	PID      int
	RPCPort  int
	NodeAddr string
	State    string
}

// WalletSupervisor is the single owner of the external wallet daemon
// process. No other component may signal the underlying process.
type WalletSupervisor interface {
	// Start spawns the daemon against the given node address and returns
	// only once a readiness probe succeeds or the startup window elapses.
	Start(ctx context.Context, nodeAddr string) error
	// Stop requests graceful termination, escalating to a forced one after
	// a bounded grace period.
	Stop(ctx context.Context) error
	// Status returns a snapshot of the current handle.
	Status() WalletStatus
	// Healthy reports whether the supervised process is alive and ready.
	Healthy() bool
	// MarkUnresponsive flags the handle after a failed liveness probe.
	MarkUnresponsive()
}
