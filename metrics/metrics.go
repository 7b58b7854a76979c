package metrics

import (
	"fmt"
	"net"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	OrdersSubmitted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stratcore_orders_submitted_total",
			Help: "Total number of orders submitted (by strategy).",
		},
		[]string{"strategy"},
	)

	OrdersRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stratcore_orders_rejected_total",
			Help: "Orders the dispatcher refused (by strategy).",
		},
		[]string{"strategy"},
	)

	ProtectiveExits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stratcore_protective_exits_total",
			Help: "Forced closes issued by the protective exit manager.",
		},
		[]string{"strategy", "reason"},
	)

	Rebalances = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stratcore_rebalances_total",
			Help: "Rebalance cycles by outcome.",
		},
		[]string{"result"},
	)

	RebalanceLegsSkipped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stratcore_rebalance_legs_skipped_total",
			Help: "Rebalance legs dropped (missing price, below minimum notional, rejected).",
		},
		[]string{"reason"},
	)

	PositionsOpen = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "stratcore_positions_open",
			Help: "Current number of open positions per strategy.",
		},
		[]string{"strategy"},
	)

	EquityGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "stratcore_equity",
			Help: "Current equity of the executor (paper or live).",
		},
	)
)

func init() {
	prometheus.MustRegister(OrdersSubmitted, OrdersRejected, ProtectiveExits,
		Rebalances, RebalanceLegsSkipped, PositionsOpen, EquityGauge)
}

// Serve binds addr and exposes the default registry on /metrics in the
// background. Bind failures, such as a busy port, are returned.
func Serve(addr string) (*http.Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("metrics listen %s: %w", addr, err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: ln.Addr().String(), Handler: mux}
	go func() { _ = srv.Serve(ln) }()
	return srv, nil
}
