package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "amc_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "amc_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	// Simulation metrics
	SimulationStateGauge = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "amc_simulation_state",
			Help: "Simulation state (0=stopped, 1=running, 2=paused)",
		},
	)

	SimulationTicksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "amc_simulation_ticks_total",
			Help: "Total number of recurring task firings",
		},
		[]string{"task", "result"}, // ok, error, skipped
	)

	SimulationTickDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "amc_simulation_tick_duration_seconds",
			Help:    "Duration of a single recurring task body",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60},
		},
		[]string{"task"},
	)

	EntitiesCreatedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "amc_entities_created_total",
			Help: "Entities created by the simulator",
		},
		[]string{"entity"}, // customer, folio, transaction, sip
	)

	SettlementOutcomesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "amc_settlement_outcomes_total",
			Help: "Registrar settlement outcomes",
		},
		[]string{"outcome"}, // success, rejected, technical_failure, retries_exhausted
	)

	TransactionAmount = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "amc_transaction_amount_inr",
			Help:    "Submitted transaction amounts in INR",
			Buckets: []float64{500, 1000, 5000, 10000, 25000, 50000, 100000, 500000},
		},
		[]string{"mode"},
	)

	SIPExecutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "amc_sip_executions_total",
			Help: "SIP instalments executed",
		},
		[]string{"result"}, // executed, completed, failed
	)

	NAVUpdatesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "amc_nav_updates_total",
			Help: "Scheme NAV mutations",
		},
		[]string{"category"},
	)

	AUMGauge = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "amc_assets_under_management_inr",
			Help: "Sum of holding current values at the last reconciliation",
		},
	)

	// System metrics
	DatabaseQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "amc_database_query_duration_seconds",
			Help:    "Database query duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 5.0},
		},
		[]string{"operation", "table"},
	)

	CircuitBreakerStateGauge = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "amc_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"service"},
	)
)

// RecordHTTPRequest records HTTP request metrics
func RecordHTTPRequest(method, endpoint, statusCode string, duration float64) {
	HTTPRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(duration)
}

// RecordTick records one firing of a recurring simulation task
func RecordTick(task, result string, duration float64) {
	SimulationTicksTotal.WithLabelValues(task, result).Inc()
	if result != "skipped" {
		SimulationTickDuration.WithLabelValues(task).Observe(duration)
	}
}

// RecordEntityCreated increments the created counter for an entity kind
func RecordEntityCreated(entity string) {
	EntitiesCreatedTotal.WithLabelValues(entity).Inc()
}

// RecordTransactionSubmitted records a new transaction and its amount
func RecordTransactionSubmitted(mode string, amount float64) {
	EntitiesCreatedTotal.WithLabelValues("transaction").Inc()
	if amount > 0 {
		TransactionAmount.WithLabelValues(mode).Observe(amount)
	}
}

// RecordSettlementOutcome records a registrar outcome
func RecordSettlementOutcome(outcome string) {
	SettlementOutcomesTotal.WithLabelValues(outcome).Inc()
}

// RecordSIPExecution records a SIP instalment result
func RecordSIPExecution(result string) {
	SIPExecutionsTotal.WithLabelValues(result).Inc()
}

// RecordNAVUpdate records a NAV mutation for a scheme category
func RecordNAVUpdate(category string) {
	NAVUpdatesTotal.WithLabelValues(category).Inc()
}

// SetSimulationState publishes the orchestrator state
func SetSimulationState(state float64) {
	SimulationStateGauge.Set(state)
}

// SetAUM publishes assets under management
func SetAUM(aum float64) {
	AUMGauge.Set(aum)
}

// RecordDatabaseQuery records database query metrics
func RecordDatabaseQuery(operation, table string, duration float64) {
	DatabaseQueryDuration.WithLabelValues(operation, table).Observe(duration)
}

// UpdateCircuitBreakerState updates circuit breaker state
func UpdateCircuitBreakerState(service string, state float64) {
	CircuitBreakerStateGauge.WithLabelValues(service).Set(state)
}
