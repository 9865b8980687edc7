package httpinterface

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/kiosknetwork/kiosk-daemon/internal/core/application"
	"github.com/kiosknetwork/kiosk-daemon/internal/core/domain"
	"github.com/kiosknetwork/kiosk-daemon/internal/core/ports"
)

// Service is the local HTTP admin interface consumed by the kiosk CLI. It is
// bound to localhost, business rules live in the application layer.
type Service struct {
	orderSvc   *application.OrderService
	monitor    *application.NodeHealthMonitor
	supervisor ports.WalletSupervisor
	server     *http.Server
}

func NewService(
	port int,
	orderSvc *application.OrderService,
	monitor *application.NodeHealthMonitor,
	supervisor ports.WalletSupervisor,
) *Service {
	s := &Service{
		orderSvc:   orderSvc,
		monitor:    monitor,
		supervisor: supervisor,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/status", s.handleStatus)
	mux.HandleFunc("/v1/orders", s.handleOrders)
	mux.HandleFunc("/v1/orders/", s.handleOrder)
	mux.Handle("/metrics", promhttp.Handler())

	s.server = &http.Server{
		Addr:              fmt.Sprintf("127.0.0.1:%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

func (s *Service) Start() error {
	log.Infof("admin interface listening on %s", s.server.Addr)
	if err := s.server.ListenAndServe(); err != nil &&
		!errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Service) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

type statusResponse struct {
	Wallet ports.WalletStatus `json:"wallet"`
	Node   *nodeStatus        `json:"node,omitempty"`
}

type nodeStatus struct {
	Label string `json:"label"`
	Addr  string `json:"addr"`
}

func (s *Service) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	resp := statusResponse{Wallet: s.supervisor.Status()}
	if endpoint := s.monitor.CurrentEndpoint(); endpoint != nil {
		resp.Node = &nodeStatus{Label: endpoint.Label, Addr: endpoint.Addr()}
	}
	writeJSON(w, http.StatusOK, resp)
}

type createOrderRequest struct {
	TotalAmount  string `json:"total_amount"`
	FiatCurrency string `json:"fiat_currency"`
}

func (s *Service) handleOrders(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		orders, err := s.orderSvc.ListOrders(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, orders)
	case http.MethodPost:
		var req createOrderRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "malformed request body")
			return
		}
		total, err := decimal.NewFromString(req.TotalAmount)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid total amount")
			return
		}
		order, err := s.orderSvc.CreateOrder(r.Context(), total, req.FiatCurrency)
		if err != nil {
			writeError(w, orderErrorStatus(err), err.Error())
			return
		}
		writeJSON(w, http.StatusCreated, order)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// handleOrder routes /v1/orders/{id} and /v1/orders/{id}/{action}.
func (s *Service) handleOrder(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/orders/")
	id, action, _ := strings.Cut(rest, "/")
	if len(id) <= 0 {
		writeError(w, http.StatusNotFound, "order id missing")
		return
	}

	var err error
	switch {
	case len(action) == 0 && r.Method == http.MethodGet:
		var order *domain.Order
		order, err = s.orderSvc.GetOrder(r.Context(), id)
		if err == nil {
			writeJSON(w, http.StatusOK, order)
			return
		}
	case action == "ship" && r.Method == http.MethodPost:
		err = s.orderSvc.ShipOrder(r.Context(), id)
	case action == "deliver" && r.Method == http.MethodPost:
		err = s.orderSvc.DeliverOrder(r.Context(), id)
	case action == "commission/retry" && r.Method == http.MethodPost:
		err = s.orderSvc.RetryCommission(r.Context(), id)
	default:
		writeError(w, http.StatusNotFound, "unknown resource")
		return
	}

	if err != nil {
		writeError(w, orderErrorStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"result": "ok"})
}

func orderErrorStatus(err error) int {
	switch {
	case errors.Is(err, domain.ErrOrderNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrOrderInvalidAmount),
		errors.Is(err, application.ErrCommissionNotDue):
		return http.StatusBadRequest
	case errors.Is(err, application.ErrWalletNotSpendCapable):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.WithError(err).Warn("failed to write admin response")
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
