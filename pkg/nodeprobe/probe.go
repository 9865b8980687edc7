package nodeprobe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Target identifies a candidate remote ledger node to probe.
type Target struct {
	Label string
	URL   string
}

// Result is the structured outcome of a single probe. Network-level
// failures never surface as errors from Probe itself, they are reported
// through the Reachable flag and Err field.
type Result struct {
	Reachable   bool
	ChainHeight uint64
	Latency     time.Duration
	Err         error
}

type infoResponse struct {
	Result struct {
		Height uint64 `json:"height"`
		Status string `json:"status"`
	} `json:"result"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Probe tests reachability, latency and chain height of the target node via
// its JSON-RPC interface within the given timeout.
func Probe(ctx context.Context, target Target, timeout time.Duration) Result {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	body := []byte(`{"jsonrpc":"2.0","id":"0","method":"get_info"}`)
	req, err := http.NewRequestWithContext(
		ctx, http.MethodPost, target.URL+"/json_rpc", bytes.NewReader(body),
	)
	if err != nil {
		return Result{Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	client := &http.Client{Timeout: timeout}
	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		return Result{Err: err}
	}
	defer resp.Body.Close()
	latency := time.Since(start)

	if resp.StatusCode != http.StatusOK {
		return Result{
			Err: fmt.Errorf("node returned status %d", resp.StatusCode),
		}
	}

	var info infoResponse
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return Result{Err: fmt.Errorf("malformed node response: %w", err)}
	}
	if info.Error != nil {
		return Result{
			Err: fmt.Errorf("node rpc error %d: %s", info.Error.Code, info.Error.Message),
		}
	}

	return Result{
		Reachable:   true,
		ChainHeight: info.Result.Height,
		Latency:     latency,
	}
}

// Rank probes all targets concurrently and returns the index of the best
// one, ie. reachable with the lowest latency, along with every result. It
// returns -1 when no target is reachable.
func Rank(ctx context.Context, targets []Target, timeout time.Duration) (int, []Result) {
	results := make([]Result, len(targets))

	g, gctx := errgroup.WithContext(ctx)
	var mtx sync.Mutex
	for i := range targets {
		i := i
		g.Go(func() error {
			res := Probe(gctx, targets[i], timeout)
			mtx.Lock()
			results[i] = res
			mtx.Unlock()
			return nil
		})
	}
	g.Wait()

	best := -1
	for i, res := range results {
		if !res.Reachable {
			continue
		}
		if best < 0 || res.Latency < results[best].Latency {
			best = i
		}
	}
	return best, results
}
