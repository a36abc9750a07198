package observer

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrometheusRecorder(t *testing.T) {
	ctx := context.Background()
	p := NewPrometheus(false)

	p.ObserveJob(ctx, "SUCCESS", 1.5, 20, 3, 2.5)
	p.ObserveJob(ctx, "TIMEOUT", 0.1, 5, 5, 0)
	p.ObserveCPUSource(ctx, "floor")
	p.ObserveKill(ctx, "TIMEOUT", nil)
	p.ObserveKill(ctx, "ABORTED", errors.New("eperm"))
	p.ObserveLedger(ctx, "debit", nil)

	assert.Equal(t, 1.0, testutil.ToFloat64(p.jobs.WithLabelValues("SUCCESS")))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.jobs.WithLabelValues("TIMEOUT")))
	assert.Equal(t, 2.5, testutil.ToFloat64(p.cost))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.cpuSources.WithLabelValues("floor")))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.kills.WithLabelValues("ABORTED", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.ledgerOps.WithLabelValues("debit", "ok")))
}

func TestWriteTextfile(t *testing.T) {
	p := NewPrometheus(false)
	p.ObserveJob(context.Background(), "SUCCESS", 1, 1, 1, 1)

	path := filepath.Join(t.TempDir(), "fms.prom")
	require.NoError(t, p.WriteTextfile(path))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `fms_jobs_total{outcome="SUCCESS"} 1`)
}

func TestRecordersAreIndependent(t *testing.T) {
	a := NewPrometheus(true)
	b := NewPrometheus(true)
	a.ObserveCPUSource(context.Background(), "native")
	assert.Equal(t, 0.0, testutil.ToFloat64(b.cpuSources.WithLabelValues("native")))
}
