package metrics_test

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/stackDawg/skylark2/internal/metrics"
)

func TestPrometheusRecorder(t *testing.T) {
	reg := prometheus.NewPedanticRegistry()
	p, err := metrics.NewPrometheus(reg, "")
	require.NoError(t, err)

	p.ConflictsDetected("double_booking_pilot", 2)
	p.ValidationDone("pilot", false)
	p.AssignmentCommitted("drone", true)
	p.PlanProposed(3, 1)

	n, err := testutil.GatherAndCount(reg)
	require.NoError(t, err)
	require.Equal(t, 6, n)

	_, err = metrics.NewPrometheus(reg, "")
	require.Error(t, err, "registering twice must fail")
}

func TestNopRecorder(t *testing.T) {
	var r metrics.Recorder = metrics.Nop{}
	r.ConflictsDetected("x", 1)
	r.PlanProposed(0, 0)
}
