package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	OrdersCreatedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "marketplace_orders_created_total",
		Help: "Total number of orders created",
	}, []string{"category"})

	OrderTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "marketplace_order_transitions_total",
		Help: "Total number of applied order status transitions",
	}, []string{"to"})

	LedgerEntriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "marketplace_ledger_entries_total",
		Help: "Total number of ledger entries written",
	}, []string{"type"})

	RefundsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "marketplace_refunds_total",
		Help: "Total number of refund credits applied",
	})

	CompensationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "marketplace_saga_compensations_total",
		Help: "Total number of saga compensations, by outcome",
	}, []string{"outcome"})

	CarrierSyncTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "marketplace_carrier_sync_total",
		Help: "Total number of carrier reconciliation attempts, by result",
	}, []string{"result"})

	CarrierRequestLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "marketplace_carrier_request_latency_seconds",
		Help:    "Latency of shipping carrier API calls",
		Buckets: prometheus.DefBuckets,
	})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "marketplace_http_request_duration_seconds",
		Help:    "HTTP request latency by method, path and status",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})
)
