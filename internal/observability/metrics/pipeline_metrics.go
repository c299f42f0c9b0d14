package metrics

import (
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// PipelineMetrics tracks capture throughput and the enrichment backlog.
type PipelineMetrics struct {
	capturesTotal     *prometheus.CounterVec
	memosTotal        *prometheus.CounterVec
	tasksEnqueued     *prometheus.CounterVec
	tasksProcessed    *prometheus.CounterVec
	enrichmentBacklog prometheus.Gauge
}

var (
	pipelineMetricsOnce sync.Once
	pipelineMetrics     *PipelineMetrics
)

// Pipeline returns the process-wide pipeline metrics, registering them on
// first use.
func Pipeline() *PipelineMetrics {
	return PipelineWithConfig(Config{})
}

func PipelineWithConfig(cfg Config) *PipelineMetrics {
	pipelineMetricsOnce.Do(func() {
		pipelineMetrics = newPipelineMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return pipelineMetrics
}

func ResetPipelineMetricsForTest() {
	pipelineMetricsOnce = sync.Once{}
	pipelineMetrics = nil
}

func newPipelineMetrics(registerer prometheus.Registerer, cfg Config) *PipelineMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "halfnote"
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "unknown"
	}

	constLabels := prometheus.Labels{
		"service": serviceName,
		"env":     environment,
	}

	capturesTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name:        "halfnote_captures_total",
			Help:        "Total pipeline runs by result.",
			ConstLabels: constLabels,
		},
		[]string{"result"}, // ok | validation | provider | persistence
	)

	memosTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name:        "halfnote_memos_total",
			Help:        "Total memos persisted by category.",
			ConstLabels: constLabels,
		},
		[]string{"category"},
	)

	tasksEnqueued := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name:        "halfnote_enrichment_tasks_enqueued_total",
			Help:        "Total enrichment tasks handed to the queue.",
			ConstLabels: constLabels,
		},
		[]string{"kind"},
	)

	tasksProcessed := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name:        "halfnote_enrichment_tasks_processed_total",
			Help:        "Total enrichment tasks completed by the worker.",
			ConstLabels: constLabels,
		},
		[]string{"kind", "result"}, // done | dropped | failed
	)

	enrichmentBacklog := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name:        "halfnote_enrichment_backlog_total",
			Help:        "Memos pending enrichment at the last backfill sweep.",
			ConstLabels: constLabels,
		},
	)

	registerer.MustRegister(
		capturesTotal,
		memosTotal,
		tasksEnqueued,
		tasksProcessed,
		enrichmentBacklog,
	)

	return &PipelineMetrics{
		capturesTotal:     capturesTotal,
		memosTotal:        memosTotal,
		tasksEnqueued:     tasksEnqueued,
		tasksProcessed:    tasksProcessed,
		enrichmentBacklog: enrichmentBacklog,
	}
}

func (m *PipelineMetrics) IncCapture(result string) {
	if m == nil {
		return
	}
	m.capturesTotal.WithLabelValues(result).Inc()
}

func (m *PipelineMetrics) IncMemo(category string) {
	if m == nil {
		return
	}
	m.memosTotal.WithLabelValues(category).Inc()
}

func (m *PipelineMetrics) AddTasksEnqueued(kind string, count int) {
	if m == nil || count <= 0 {
		return
	}
	m.tasksEnqueued.WithLabelValues(kind).Add(float64(count))
}

func (m *PipelineMetrics) IncTaskProcessed(kind, result string) {
	if m == nil {
		return
	}
	m.tasksProcessed.WithLabelValues(kind, result).Inc()
}

func (m *PipelineMetrics) SetBacklog(value int) {
	if m == nil {
		return
	}
	m.enrichmentBacklog.Set(float64(value))
}
