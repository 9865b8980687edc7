package walletrpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker"

	"github.com/kiosknetwork/kiosk-daemon/internal/core/ports"
	"github.com/kiosknetwork/kiosk-daemon/pkg/circuitbreaker"
)

// viewOnlyErrorCode is the error code the daemon reports for spend-key
// dependent calls on a view-only wallet.
const viewOnlyErrorCode = -29

type service struct {
	endpoint string
	http     *http.Client
	cb       *gobreaker.CircuitBreaker
	nextId   atomic.Uint64
}

// NewService returns a WalletService backed by the wallet daemon JSON-RPC
// interface listening on the given local port.
func NewService(port int, timeout time.Duration) ports.WalletService {
	return &service{
		endpoint: fmt.Sprintf("http://127.0.0.1:%d/json_rpc", port),
		http:     &http.Client{Timeout: timeout},
		cb:       circuitbreaker.NewCircuitBreaker("walletrpc"),
	}
}

func (s *service) Ping(ctx context.Context) error {
	return s.call(ctx, "get_version", nil, nil)
}

func (s *service) GetAddress(ctx context.Context) (string, error) {
	var result struct {
		Address string `json:"address"`
	}
	params := map[string]interface{}{"account_index": 0}
	if err := s.call(ctx, "get_address", params, &result); err != nil {
		return "", err
	}
	return result.Address, nil
}

func (s *service) NewReceivingAddress(
	ctx context.Context, label string,
) (string, error) {
	var result struct {
		Address string `json:"address"`
	}
	params := map[string]interface{}{"account_index": 0, "label": label}
	if err := s.call(ctx, "create_address", params, &result); err != nil {
		return "", err
	}
	return result.Address, nil
}

func (s *service) GetHeight(ctx context.Context) (uint64, error) {
	var result struct {
		Height uint64 `json:"height"`
	}
	if err := s.call(ctx, "get_height", nil, &result); err != nil {
		return 0, err
	}
	return result.Height, nil
}

func (s *service) GetIncomingTransfers(
	ctx context.Context, address string,
) ([]ports.Transfer, error) {
	var result getTransfersResult
	params := map[string]interface{}{"in": true, "pool": true}
	if err := s.call(ctx, "get_transfers", params, &result); err != nil {
		return nil, err
	}

	transfers := make([]ports.Transfer, 0, len(result.In)+len(result.Pool))
	for _, entry := range result.In {
		if entry.Address != address {
			continue
		}
		transfers = append(transfers, toTransfer(entry, false))
	}
	for _, entry := range result.Pool {
		if entry.Address != address {
			continue
		}
		transfers = append(transfers, toTransfer(entry, true))
	}
	return transfers, nil
}

func (s *service) GetOutgoingTransfers(ctx context.Context) ([]ports.Transfer, error) {
	var result getTransfersResult
	params := map[string]interface{}{"out": true, "pending": true}
	if err := s.call(ctx, "get_transfers", params, &result); err != nil {
		return nil, err
	}

	transfers := make([]ports.Transfer, 0, len(result.Out)+len(result.Pending))
	for _, entry := range result.Out {
		transfers = append(transfers, toOutgoingTransfer(entry, false))
	}
	for _, entry := range result.Pending {
		transfers = append(transfers, toOutgoingTransfer(entry, true))
	}
	return transfers, nil
}

func (s *service) Transfer(
	ctx context.Context, address string, amount decimal.Decimal,
) (string, error) {
	var result struct {
		TxHash string `json:"tx_hash"`
	}
	params := map[string]interface{}{
		"destinations": []map[string]interface{}{
			{"amount": toAtomicUnits(amount), "address": address},
		},
		"priority":   0,
		"get_tx_key": true,
	}
	if err := s.call(ctx, "transfer", params, &result); err != nil {
		return "", err
	}
	return result.TxHash, nil
}

func (s *service) SpendCapability(ctx context.Context) (*ports.SpendCapability, error) {
	params := map[string]interface{}{"key_type": "spend_key"}
	err := s.call(ctx, "query_key", params, nil)
	if err == nil {
		return &ports.SpendCapability{SpendCapable: true}, nil
	}

	var rpcErr *RPCError
	if errors.As(err, &rpcErr) {
		if rpcErr.Code == viewOnlyErrorCode ||
			strings.Contains(strings.ToLower(rpcErr.Message), "view") {
			return &ports.SpendCapability{
				SpendCapable: false,
				Reason:       rpcErr.Message,
			}, nil
		}
	}
	return nil, err
}

func (s *service) call(
	ctx context.Context, method string, params, out interface{},
) error {
	body, err := json.Marshal(request{
		JSONRPC: "2.0",
		Id:      s.nextId.Add(1),
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return err
	}

	iResult, err := s.cb.Execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(
			ctx, http.MethodPost, s.endpoint, bytes.NewReader(body),
		)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := s.http.Do(req)
		if err != nil {
			return nil, fmt.Errorf("%w: %s", ErrDaemonUnreachable, err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf(
				"%w: %s returned status %d", ErrMalformedResponse, method, resp.StatusCode,
			)
		}

		var rpcResp response
		if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
			return nil, fmt.Errorf("%w: %s", ErrMalformedResponse, err)
		}
		return &rpcResp, nil
	})
	if err != nil {
		return err
	}

	rpcResp := iResult.(*response)
	if rpcResp.Error != nil {
		return rpcResp.Error
	}
	if out == nil {
		return nil
	}
	if len(rpcResp.Result) == 0 {
		return fmt.Errorf("%w: %s returned empty result", ErrMalformedResponse, method)
	}
	return json.Unmarshal(rpcResp.Result, out)
}

func toTransfer(entry transferEntry, pending bool) ports.Transfer {
	return ports.Transfer{
		Txid:          entry.Txid,
		Address:       entry.Address,
		Amount:        fromAtomicUnits(entry.Amount),
		Confirmations: entry.Confirmations,
		Height:        entry.Height,
		Timestamp:     time.Unix(entry.Timestamp, 0),
		Pending:       pending,
	}
}

func toOutgoingTransfer(entry transferEntry, pending bool) ports.Transfer {
	transfer := toTransfer(entry, pending)
	if len(entry.Destinations) > 0 {
		transfer.Destination = entry.Destinations[0].Address
		transfer.Amount = fromAtomicUnits(entry.Destinations[0].Amount)
	}
	return transfer
}
