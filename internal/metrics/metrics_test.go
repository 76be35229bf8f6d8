package metrics

import (
	"testing"
	"time"

	"bootfit/internal/bootstrap"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBootstrapMetricsCounts(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := New(reg)
	require.NoError(t, err)

	m.AttemptFinished(bootstrap.Accepted)
	m.AttemptFinished(bootstrap.Accepted)
	m.AttemptFinished(bootstrap.Rejected)
	m.AttemptFinished(bootstrap.Failed)
	m.WorkerFinished(false)
	m.WorkerFinished(true)
	m.RunFinished(&bootstrap.Result{NumIteration: 7, Partial: true}, 2*time.Second)
	m.RunStarted()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.AttemptsTotal.WithLabelValues("accepted")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AttemptsTotal.WithLabelValues("rejected")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AttemptsTotal.WithLabelValues("failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.WorkersTotal.WithLabelValues("failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RunsTotal.WithLabelValues("partial")))
	assert.Equal(t, 7.0, testutil.ToFloat64(m.IterationsTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ActiveRuns))

	m.RunStopped()
	assert.Equal(t, 0.0, testutil.ToFloat64(m.ActiveRuns))
	assert.Equal(t, 1, testutil.CollectAndCount(m.RunDuration))
}

func TestNewRejectsDuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := New(reg)
	require.NoError(t, err)
	_, err = New(reg)
	assert.Error(t, err)
}
