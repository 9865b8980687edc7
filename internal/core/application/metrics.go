package application

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	pollTicksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "kioskd",
		Name:      "poll_ticks_total",
		Help:      "Number of payment poll passes executed.",
	})
	paymentsConfirmedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "kioskd",
		Name:      "payments_confirmed_total",
		Help:      "Number of orders transitioned to paid.",
	})
	ordersExpiredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "kioskd",
		Name:      "orders_expired_total",
		Help:      "Number of orders transitioned to expired.",
	})
	commissionsForwardedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "kioskd",
		Name:      "commissions_forwarded_total",
		Help:      "Number of commission transfers recorded as settled.",
	})
	commissionFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "kioskd",
		Name:      "commission_failures_total",
		Help:      "Number of failed commission transfer submissions.",
	})
	nodeFailoversTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "kioskd",
		Name:      "node_failovers_total",
		Help:      "Number of switches to a backup node endpoint.",
	})
	pendingOrdersGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "kioskd",
		Name:      "pending_orders",
		Help:      "Number of orders currently awaiting payment.",
	})
)
