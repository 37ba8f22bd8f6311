package monitor

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/argusvision/framesched/internal/model"
	"github.com/argusvision/framesched/internal/scheduler"
)

// StatsSource is the slice of the scheduler the exporter reads from.
type StatsSource interface {
	Stats() scheduler.StatsSnapshot
}

// Exporter publishes scheduler statistics as Prometheus metrics. All
// collectors are GaugeFuncs over Stats() snapshots, so scraping is the only
// cost and the scheduler carries no exporter state.
type Exporter struct {
	source   StatsSource
	registry *prometheus.Registry
}

// NewExporter creates an exporter over the given stats source.
func NewExporter(source StatsSource) *Exporter {
	e := &Exporter{
		source:   source,
		registry: prometheus.NewRegistry(),
	}
	e.register()
	return e
}

func (e *Exporter) register() {
	e.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "framesched_frames_processed_total",
			Help: "Total frames processed across all streams",
		},
		func() float64 { return float64(e.source.Stats().Global.TotalFramesProcessed) },
	))

	e.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "framesched_queue_overflows_total",
			Help: "Frames rejected because their priority queue was full",
		},
		func() float64 { return float64(e.source.Stats().Global.QueueOverflows) },
	))

	e.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "framesched_retries_exceeded_total",
			Help: "Tasks dropped after exhausting dispatch retries",
		},
		func() float64 { return float64(e.source.Stats().Global.RetriesExceeded) },
	))

	e.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "framesched_errors_total",
			Help: "Algorithm execution errors",
		},
		func() float64 { return float64(e.source.Stats().Global.Errors) },
	))

	e.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "framesched_avg_latency_seconds",
			Help: "Smoothed frame processing latency",
		},
		func() float64 { return e.source.Stats().Global.AvgLatency },
	))

	e.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "framesched_throughput_fps",
			Help: "Frames processed per second since start",
		},
		func() float64 { return e.source.Stats().Global.Throughput },
	))

	queueDepth := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "framesched_queue_depth",
			Help: "Current depth of each priority queue",
		},
		[]string{"priority"},
	)
	e.registry.MustRegister(&snapshotCollector{
		source: e.source,
		vec:    queueDepth,
		update: func(snap scheduler.StatsSnapshot, vec *prometheus.GaugeVec) {
			for _, class := range model.PriorityClasses {
				vec.WithLabelValues(class.String()).Set(float64(snap.QueueDepths[class]))
			}
		},
	})

	processorLoad := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "framesched_processor_load",
			Help: "Average load per resource type",
		},
		[]string{"resource_type"},
	)
	e.registry.MustRegister(&snapshotCollector{
		source: e.source,
		vec:    processorLoad,
		update: func(snap scheduler.StatsSnapshot, vec *prometheus.GaugeVec) {
			for rtype, ts := range snap.ProcessorTypes {
				vec.WithLabelValues(string(rtype)).Set(ts.AvgLoad)
			}
		},
	})
}

// snapshotCollector refreshes a labeled gauge vec from a stats snapshot at
// scrape time.
type snapshotCollector struct {
	source StatsSource
	vec    *prometheus.GaugeVec
	update func(scheduler.StatsSnapshot, *prometheus.GaugeVec)
}

func (c *snapshotCollector) Describe(ch chan<- *prometheus.Desc) {
	c.vec.Describe(ch)
}

func (c *snapshotCollector) Collect(ch chan<- prometheus.Metric) {
	c.update(c.source.Stats(), c.vec)
	c.vec.Collect(ch)
}

// Handler returns the HTTP handler serving the metrics endpoint.
func (e *Exporter) Handler() http.Handler {
	return promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{})
}
