package telemetry

import (
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const (
	meterName = "github.com/wolfeidau/deskbook"
)

// Metrics holds all the OpenTelemetry metric instruments
type Metrics struct {
	// Transactional store metrics
	TransactionsTotal   metric.Int64Counter
	TransactionDuration metric.Float64Histogram

	// Key ring metrics
	KeyRingRefreshTotal metric.Int64Counter
	KeyRingKeys         metric.Int64UpDownCounter

	// Authorization metrics
	AuthDeniedTotal metric.Int64Counter
}

var (
	once    sync.Once
	metrics *Metrics
)

// GetMetrics returns the singleton Metrics instance, initializing it if necessary
func GetMetrics() *Metrics {
	once.Do(func() {
		metrics = initMetrics()
	})
	return metrics
}

// initMetrics creates and registers all metric instruments
func initMetrics() *Metrics {
	meter := otel.GetMeterProvider().Meter(meterName)

	m := &Metrics{}

	m.TransactionsTotal, _ = meter.Int64Counter(
		"deskbook.transactions.total",
		metric.WithDescription("Total number of transactional store operations by outcome"),
		metric.WithUnit("{transaction}"),
	)

	m.TransactionDuration, _ = meter.Float64Histogram(
		"deskbook.transactions.duration",
		metric.WithDescription("Duration of transactional store operations including the read phase"),
		metric.WithUnit("ms"),
	)

	m.KeyRingRefreshTotal, _ = meter.Int64Counter(
		"deskbook.keyring.refresh.total",
		metric.WithDescription("Total number of signing key refresh attempts by outcome"),
		metric.WithUnit("{refresh}"),
	)

	m.KeyRingKeys, _ = meter.Int64UpDownCounter(
		"deskbook.keyring.keys",
		metric.WithDescription("Number of signing keys in the current key ring snapshot"),
		metric.WithUnit("{key}"),
	)

	m.AuthDeniedTotal, _ = meter.Int64Counter(
		"deskbook.auth.denied.total",
		metric.WithDescription("Total number of rejected requests by reason"),
		metric.WithUnit("{request}"),
	)

	return m
}
