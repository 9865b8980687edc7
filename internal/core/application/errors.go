package application

import "errors"

var (
	// ErrAllNodesUnreachable is returned when no configured node endpoint
	// answers a connectivity probe.
	ErrAllNodesUnreachable = errors.New("all configured node endpoints are unreachable")
	// ErrWalletNotSpendCapable is returned when an outbound transfer is
	// requested against a view-only wallet.
	ErrWalletNotSpendCapable = errors.New("wallet daemon cannot sign outbound transfers")
	// ErrCommissionNotDue is returned when a manual retry targets an order
	// with no commission owed.
	ErrCommissionNotDue = errors.New("order has no commission due")
)
