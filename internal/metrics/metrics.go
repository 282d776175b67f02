package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	globalMetrics *Metrics
	globalMu      sync.RWMutex
)

// Metrics holds all Prometheus metrics for Fundry
type Metrics struct {
	// Ledger counters
	CampaignsCreatedTotal   prometheus.Counter
	DonationsTotal          prometheus.Counter
	DonatedAmountTotal      prometheus.Counter
	SettlementsTotal        prometheus.Counter
	SettlementFailuresTotal prometheus.Counter
	DepositsTotal           prometheus.Counter
	WithdrawalsTotal        prometheus.Counter

	// Pool gauges
	PoolBalance   prometheus.Gauge
	PoolCommitted prometheus.Gauge
	PoolFree      prometheus.Gauge
	CampaignsOpen prometheus.Gauge

	// API metrics
	APIRequestsTotal          *prometheus.CounterVec
	APIRequestDurationSeconds *prometheus.HistogramVec
	APIErrorsTotal            *prometheus.CounterVec

	// System metrics
	UptimeSeconds    prometheus.Gauge
	Goroutines       prometheus.Gauge
	StorageUsedBytes prometheus.Gauge

	registry *prometheus.Registry
}

// New creates a new Metrics instance with all metrics registered
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		CampaignsCreatedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "fundry_campaigns_created_total",
				Help: "Total number of campaigns created",
			},
		),
		DonationsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "fundry_donations_total",
				Help: "Total number of accepted donations",
			},
		),
		DonatedAmountTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "fundry_donated_amount_total",
				Help: "Total donated value in the smallest currency unit",
			},
		),
		SettlementsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "fundry_settlements_total",
				Help: "Total number of successfully settled campaigns",
			},
		),
		SettlementFailuresTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "fundry_settlement_failures_total",
				Help: "Total number of settlement attempts rolled back due to payout failure",
			},
		),
		DepositsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "fundry_deposits_total",
				Help: "Total number of unsolicited pool deposits",
			},
		),
		WithdrawalsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "fundry_withdrawals_total",
				Help: "Total number of residual withdrawals by the authority",
			},
		),

		PoolBalance: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "fundry_pool_balance",
				Help: "Current total pool balance",
			},
		),
		PoolCommitted: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "fundry_pool_committed",
				Help: "Pool balance committed to unsettled campaigns",
			},
		),
		PoolFree: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "fundry_pool_free",
				Help: "Pool balance available for residual withdrawal",
			},
		),
		CampaignsOpen: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "fundry_campaigns_open",
				Help: "Number of campaigns that have not settled yet",
			},
		),

		APIRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fundry_api_requests_total",
				Help: "Total number of API requests",
			},
			[]string{"method", "path", "status"},
		),
		APIRequestDurationSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "fundry_api_request_duration_seconds",
				Help:    "API request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		APIErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fundry_api_errors_total",
				Help: "Total number of API errors by type",
			},
			[]string{"error_type"},
		),

		UptimeSeconds: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "fundry_uptime_seconds",
				Help: "Time since the server started",
			},
		),
		Goroutines: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "fundry_goroutines",
				Help: "Number of goroutines",
			},
		),
		StorageUsedBytes: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "fundry_storage_used_bytes",
				Help: "Size of the ledger database file",
			},
		),

		registry: reg,
	}

	reg.MustRegister(
		m.CampaignsCreatedTotal,
		m.DonationsTotal,
		m.DonatedAmountTotal,
		m.SettlementsTotal,
		m.SettlementFailuresTotal,
		m.DepositsTotal,
		m.WithdrawalsTotal,
		m.PoolBalance,
		m.PoolCommitted,
		m.PoolFree,
		m.CampaignsOpen,
		m.APIRequestsTotal,
		m.APIRequestDurationSeconds,
		m.APIErrorsTotal,
		m.UptimeSeconds,
		m.Goroutines,
		m.StorageUsedBytes,
	)

	return m
}

// Registry returns the underlying Prometheus registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// SetGlobal installs the global metrics instance
func SetGlobal(m *Metrics) {
	globalMu.Lock()
	globalMetrics = m
	globalMu.Unlock()
}

// Global returns the global metrics instance, or nil if none is set
func Global() *Metrics {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return globalMetrics
}
