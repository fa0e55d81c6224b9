package observability

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMetrics_RegistersCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.ReportsSubmitted.WithLabelValues("Critical").Inc()
	m.UploadBytes.Add(42)

	families, err := reg.Gather()
	require.NoError(t, err)

	names := make(map[string]bool)
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["disaster_reports_reports_submitted_total"])
	assert.True(t, names["disaster_reports_upload_bytes_total"])
	assert.Equal(t, float64(42), testutil.ToFloat64(m.UploadBytes))
}

func TestNewMetrics_DoubleRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewMetrics(reg)
	assert.Panics(t, func() { NewMetrics(reg) })
}

func TestNewMetricsForTesting_Unregistered(t *testing.T) {
	a := NewMetricsForTesting()
	b := NewMetricsForTesting()
	a.UploadsStored.Inc()
	assert.Equal(t, float64(1), testutil.ToFloat64(a.UploadsStored))
	assert.Equal(t, float64(0), testutil.ToFloat64(b.UploadsStored))
}
