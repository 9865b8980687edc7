package domain

import "errors"

var (
	// ErrOrderNotFound is returned when looking up an order by an unknown id.
	ErrOrderNotFound = errors.New("order not found")
	// ErrOrderMissingAddress ...
	ErrOrderMissingAddress = errors.New("order must have a receiving address")
	// ErrOrderInvalidAmount ...
	ErrOrderInvalidAmount = errors.New("order total amount must be positive")
	// ErrOrderExpired is thrown when trying to confirm payment of an expired order.
	ErrOrderExpired = errors.New("order is expired")
	// ErrOrderAlreadyPaid is thrown when trying to expire a paid order.
	ErrOrderAlreadyPaid = errors.New("order is already paid")
	// ErrOrderNotPaid is thrown when mutating commission state of an unpaid order.
	ErrOrderNotPaid = errors.New("order is not paid")
	// ErrEndpointNotFound ...
	ErrEndpointNotFound = errors.New("node endpoint not found")
	// ErrNoEndpoints is returned when the configured endpoint list is empty.
	ErrNoEndpoints = errors.New("no node endpoints configured")
)
