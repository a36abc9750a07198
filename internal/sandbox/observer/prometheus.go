package observer

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus records metrics into its own registry.
//
// Metrics:
//   - fms_jobs_total{outcome}
//   - fms_job_cpu_seconds, fms_job_max_memory_mb, fms_job_wall_seconds (histograms)
//   - fms_job_cost_credits_total
//   - fms_cpu_source_total{source} - final CPU strategy per job
//   - fms_kills_total{reason,result}
//   - fms_ledger_ops_total{op,result}
type Prometheus struct {
	registry *prometheus.Registry

	jobs       *prometheus.CounterVec
	cpu        prometheus.Histogram
	memory     prometheus.Histogram
	wall       prometheus.Histogram
	cost       prometheus.Counter
	cpuSources *prometheus.CounterVec
	kills      *prometheus.CounterVec
	ledgerOps  *prometheus.CounterVec
}

// NewPrometheus creates a recorder. withRuntime adds the Go and process
// collectors, which long-running servers want and one-shot CLI runs do not.
func NewPrometheus(withRuntime bool) *Prometheus {
	reg := prometheus.NewRegistry()
	if withRuntime {
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	f := promauto.With(reg)
	return &Prometheus{
		registry: reg,
		jobs: f.NewCounterVec(prometheus.CounterOpts{
			Name: "fms_jobs_total",
			Help: "Total number of supervised jobs by outcome",
		}, []string{"outcome"}),
		cpu: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "fms_job_cpu_seconds",
			Help:    "CPU seconds consumed per job",
			Buckets: prometheus.ExponentialBuckets(0.01, 4, 8),
		}),
		memory: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "fms_job_max_memory_mb",
			Help:    "Peak resident memory per job in MB",
			Buckets: prometheus.ExponentialBuckets(1, 4, 8),
		}),
		wall: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "fms_job_wall_seconds",
			Help:    "Wall-clock duration per job",
			Buckets: prometheus.ExponentialBuckets(0.1, 3, 8),
		}),
		cost: f.NewCounter(prometheus.CounterOpts{
			Name: "fms_job_cost_credits_total",
			Help: "Total credits charged for jobs",
		}),
		cpuSources: f.NewCounterVec(prometheus.CounterOpts{
			Name: "fms_cpu_source_total",
			Help: "CPU measurement strategy that produced each job's final total",
		}, []string{"source"}),
		kills: f.NewCounterVec(prometheus.CounterOpts{
			Name: "fms_kills_total",
			Help: "Process tree terminations by reason",
		}, []string{"reason", "result"}),
		ledgerOps: f.NewCounterVec(prometheus.CounterOpts{
			Name: "fms_ledger_ops_total",
			Help: "Ledger operations by result",
		}, []string{"op", "result"}),
	}
}

// Gatherer exposes the registry for HTTP handlers.
func (p *Prometheus) Gatherer() prometheus.Gatherer { return p.registry }

// WriteTextfile dumps the registry in the node_exporter textfile format.
func (p *Prometheus) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, p.registry)
}

func (p *Prometheus) ObserveJob(_ context.Context, outcome string, cpuSeconds, maxMemoryMB, wallSeconds, cost float64) {
	p.jobs.WithLabelValues(outcome).Inc()
	p.cpu.Observe(cpuSeconds)
	p.memory.Observe(maxMemoryMB)
	p.wall.Observe(wallSeconds)
	if cost > 0 {
		p.cost.Add(cost)
	}
}

func (p *Prometheus) ObserveCPUSource(_ context.Context, source string) {
	p.cpuSources.WithLabelValues(source).Inc()
}

func (p *Prometheus) ObserveKill(_ context.Context, reason string, err error) {
	p.kills.WithLabelValues(reason, resultLabel(err)).Inc()
}

func (p *Prometheus) ObserveLedger(_ context.Context, op string, err error) {
	p.ledgerOps.WithLabelValues(op, resultLabel(err)).Inc()
}

func resultLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
