package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestInitDisabledWithoutEndpoint(t *testing.T) {
	shutdown, err := Init(context.Background(), "", "radiant", "test", true)
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}

func TestRegisterPoolMetrics(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer func() { _ = mp.Shutdown(context.Background()) }()

	stat := PoolStat{Acquired: 3, Idle: 2, Total: 5, Max: 10}
	reg, err := RegisterPoolMetrics(mp.Meter("test"), func() PoolStat { return stat })
	require.NoError(t, err)
	defer func() { _ = reg.Unregister() }()

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	require.Len(t, rm.ScopeMetrics, 1)

	got := map[string]int64{}
	for _, m := range rm.ScopeMetrics[0].Metrics {
		g, ok := m.Data.(metricdata.Gauge[int64])
		require.True(t, ok, m.Name)
		require.Len(t, g.DataPoints, 1)
		got[m.Name] = g.DataPoints[0].Value
	}
	assert.Equal(t, map[string]int64{
		"radiant.db.pool.acquired": 3,
		"radiant.db.pool.idle":     2,
		"radiant.db.pool.total":    5,
		"radiant.db.pool.max":      10,
	}, got)
}
