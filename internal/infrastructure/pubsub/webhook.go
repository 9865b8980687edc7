package pubsub

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
	"golang.org/x/sync/errgroup"

	"github.com/kiosknetwork/kiosk-daemon/internal/core/ports"
	"github.com/kiosknetwork/kiosk-daemon/pkg/circuitbreaker"
)

const webhookRequestTimeout = 15 * time.Second

// WebhookNotifier consumes broker events and POSTs them as JSON to every
// configured endpoint. Delivery is best-effort, a failing endpoint never
// affects order processing.
type WebhookNotifier struct {
	endpoints  []string
	httpClient *http.Client
	cb         *gobreaker.CircuitBreaker
	done       chan struct{}
	wg         *sync.WaitGroup
}

func NewWebhookNotifier(endpoints []string) *WebhookNotifier {
	return &WebhookNotifier{
		endpoints:  endpoints,
		httpClient: &http.Client{Timeout: webhookRequestTimeout},
		cb:         circuitbreaker.NewCircuitBreaker("webhook"),
		done:       make(chan struct{}),
		wg:         &sync.WaitGroup{},
	}
}

// Start drains the given subscription until it is closed or Stop is called.
func (w *WebhookNotifier) Start(events <-chan ports.Event) {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		for {
			select {
			case <-w.done:
				return
			case event, ok := <-events:
				if !ok {
					return
				}
				w.dispatch(event)
			}
		}
	}()
}

func (w *WebhookNotifier) Stop() {
	close(w.done)
	w.wg.Wait()
}

func (w *WebhookNotifier) dispatch(event ports.Event) {
	payload, err := json.Marshal(event)
	if err != nil {
		log.WithError(err).Error("webhook: failed to serialize event")
		return
	}

	eg := &errgroup.Group{}
	for i := range w.endpoints {
		endpoint := w.endpoints[i]
		eg.Go(func() error { return w.doRequest(endpoint, string(payload)) })
	}
	if err := eg.Wait(); err != nil {
		log.WithError(err).WithField("type", event.Type).Warn(
			"webhook: event delivery failed",
		)
	}
}

func (w *WebhookNotifier) doRequest(endpoint, payload string) error {
	_, err := w.cb.Execute(func() (interface{}, error) {
		req, err := http.NewRequest("POST", endpoint, strings.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")

		rs, err := w.httpClient.Do(req)
		if err != nil {
			return nil, err
		}
		defer rs.Body.Close()

		if rs.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(rs.Body)
			return nil, fmt.Errorf(
				"webhook endpoint returned %d: %s", rs.StatusCode, string(body),
			)
		}
		return nil, nil
	})
	return err
}
