package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

func TestGetMetrics(t *testing.T) {
	m := GetMetrics()
	require.Same(t, m, GetMetrics())

	require.NotNil(t, m.TransactionsTotal)
	require.NotNil(t, m.TransactionDuration)
	require.NotNil(t, m.KeyRingRefreshTotal)
	require.NotNil(t, m.KeyRingKeys)
	require.NotNil(t, m.AuthDeniedTotal)

	// recording against the default no-op provider must not panic
	ctx := context.Background()
	m.TransactionsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "ok")))
	m.KeyRingKeys.Add(ctx, -1)
}

func TestConfigDefaults(t *testing.T) {
	cfg := Config{SampleRatio: 5}
	cfg.applyDefaults()
	require.InDelta(t, 1.0, cfg.SampleRatio, 0)
	require.Equal(t, 10*time.Second, cfg.MetricInterval)

	cfg = Config{SampleRatio: 0.25, MetricInterval: time.Minute}
	cfg.applyDefaults()
	require.InDelta(t, 0.25, cfg.SampleRatio, 0)
	require.Equal(t, time.Minute, cfg.MetricInterval)
}
