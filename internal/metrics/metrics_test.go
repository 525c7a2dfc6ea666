package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRegisters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := New(reg)
	require.NoError(t, err)

	m.ObserveTick(5 * time.Millisecond)
	m.IncTrigger("daily")
	m.IncTrigger("daily")
	m.IncTrigger("once")
	m.SetActive(3)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.ticks))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.triggers.WithLabelValues("daily")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.triggers.WithLabelValues("once")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.activeReminders))
}

func TestDuplicateRegistrationFails(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := New(reg)
	require.NoError(t, err)

	_, err = New(reg)
	assert.Error(t, err)
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveTick(time.Second)
	m.IncTrigger("weekly")
	m.IncEvalFailure()
	m.IncMarkerFailure()
	m.IncDispatchFailure()
	m.SetActive(1)
}
