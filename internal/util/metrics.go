package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SalesCompletedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pos_sales_completed_total",
		Help: "Total number of completed register sales",
	})

	SalesQueuedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pos_sales_queued_total",
		Help: "Total number of sales completed offline and queued for sync",
	})

	SalesFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pos_sales_failed_total",
		Help: "Total number of failed checkout attempts",
	}, []string{"reason"})

	CartOpsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pos_cart_operations_total",
		Help: "Total number of cart mutations",
	}, []string{"op"})

	CartSessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pos_cart_sessions_active",
		Help: "Number of live terminal cart sessions",
	})

	PaymentAttemptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pos_payment_attempts_total",
		Help: "Total number of payment attempts by method",
	}, []string{"method"})

	PaymentSuccessTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pos_payment_success_total",
		Help: "Total number of successful payments",
	})

	PaymentFailedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pos_payment_failed_total",
		Help: "Total number of declined payments",
	})

	PaymentProcessingLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "pos_payment_processing_latency_seconds",
		Help:    "Latency of payment gateway calls",
		Buckets: prometheus.DefBuckets,
	})

	StockCommitsFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pos_stock_commits_failed_total",
		Help: "Total number of failed stock commits",
	}, []string{"reason"})

	TerminalOnline = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pos_terminal_online",
		Help: "1 when the terminal can reach the back office, 0 when offline",
	})

	SyncQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pos_sync_queue_depth",
		Help: "Number of records pending in the offline sync queue",
	})

	SyncRecordsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pos_sync_records_total",
		Help: "Total number of sync records by final outcome",
	}, []string{"outcome"})

	SyncFlushLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "pos_sync_flush_latency_seconds",
		Help:    "Latency of offline queue flushes",
		Buckets: prometheus.DefBuckets,
	})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
)
