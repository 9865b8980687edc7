package walletrpc

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

// atomicUnitExponent is the number of decimal places of one ledger unit in
// the daemon's integer representation.
const atomicUnitExponent = 12

var (
	// ErrDaemonUnreachable wraps any transport-level failure talking to the
	// wallet daemon. It is always transient.
	ErrDaemonUnreachable = errors.New("wallet daemon unreachable")
	// ErrMalformedResponse is returned for any response shape other than
	// the expected result/error envelope. Treated as transient.
	ErrMalformedResponse = errors.New("malformed wallet daemon response")
)

// RPCError is an error object reported by the daemon itself.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("wallet rpc error %d: %s", e.Code, e.Message)
}

// IsTransient reports whether the given error is a network-level failure
// eligible for retry on the caller's own schedule. Errors reported by the
// daemon itself are not transient.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var rpcErr *RPCError
	if errors.As(err, &rpcErr) {
		return false
	}
	return true
}

type request struct {
	JSONRPC string      `json:"jsonrpc"`
	Id      uint64      `json:"id"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params,omitempty"`
}

type response struct {
	JSONRPC string          `json:"jsonrpc"`
	Id      json.RawMessage `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *RPCError       `json:"error"`
}

type transferEntry struct {
	Txid          string `json:"txid"`
	Address       string `json:"address"`
	Amount        uint64 `json:"amount"`
	Confirmations uint64 `json:"confirmations"`
	Height        uint64 `json:"height"`
	Timestamp     int64  `json:"timestamp"`
	Destinations  []struct {
		Amount  uint64 `json:"amount"`
		Address string `json:"address"`
	} `json:"destinations"`
}

type getTransfersResult struct {
	In      []transferEntry `json:"in"`
	Out     []transferEntry `json:"out"`
	Pending []transferEntry `json:"pending"`
	Pool    []transferEntry `json:"pool"`
}

// fromAtomicUnits converts the daemon's integer amount representation to a
// decimal amount in ledger-native units.
func fromAtomicUnits(amount uint64) decimal.Decimal {
	return decimal.NewFromBigInt(
		new(big.Int).SetUint64(amount), -atomicUnitExponent,
	)
}

// toAtomicUnits converts a decimal amount in ledger-native units to the
// daemon's integer representation.
func toAtomicUnits(amount decimal.Decimal) uint64 {
	return amount.Shift(atomicUnitExponent).BigInt().Uint64()
}
