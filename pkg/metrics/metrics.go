// Package metrics defines the Prometheus collectors for a retrieval run. A
// run is a batch job, so collectors live in their own registry which is
// exported once at the end: written to a node-exporter textfile and/or
// pushed to a Pushgateway.
package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Metrics holds all Prometheus collectors for a run. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	Registry *prometheus.Registry

	DocsIndexed       prometheus.Gauge
	VocabularySize    prometheus.Gauge
	IndexBuildSeconds prometheus.Gauge
	SnapshotLoads     *prometheus.CounterVec
	QueriesTotal      *prometheus.CounterVec
	QueryLatency      *prometheus.HistogramVec
	ResultsPerQuery   *prometheus.HistogramVec
	CacheHitsTotal    prometheus.Counter
	CacheMissesTotal  prometheus.Counter
	RunFilesWritten   *prometheus.CounterVec
	StageSeconds      *prometheus.GaugeVec
	LastCompletion    prometheus.Gauge
}

func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		DocsIndexed: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "cranfield_documents_indexed",
			Help: "Documents in the index used for the run.",
		}),
		VocabularySize: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "cranfield_vocabulary_size",
			Help: "Distinct terms in the index.",
		}),
		IndexBuildSeconds: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "cranfield_index_build_seconds",
			Help: "Wall time spent building or loading the index.",
		}),
		SnapshotLoads: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cranfield_index_snapshot_total",
				Help: "Index snapshot lookups by outcome (loaded, built).",
			},
			[]string{"outcome"},
		),
		QueriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cranfield_queries_total",
				Help: "Ranked queries by model and status (ok, empty, error).",
			},
			[]string{"model", "status"},
		),
		QueryLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "cranfield_query_latency_seconds",
				Help:    "Per-query ranking latency in seconds.",
				Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.5},
			},
			[]string{"model", "cache_status"},
		),
		ResultsPerQuery: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "cranfield_results_per_query",
				Help:    "Number of ranked documents returned per query.",
				Buckets: []float64{0, 1, 5, 10, 25, 50, 100, 500},
			},
			[]string{"model"},
		),
		CacheHitsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cranfield_cache_hits_total",
			Help: "Ranked-result cache hits.",
		}),
		CacheMissesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cranfield_cache_misses_total",
			Help: "Ranked-result cache misses.",
		}),
		RunFilesWritten: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cranfield_run_files_written_total",
				Help: "Run files written by model.",
			},
			[]string{"model"},
		),
		StageSeconds: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "cranfield_stage_seconds",
				Help: "Duration of each pipeline stage in the last run.",
			},
			[]string{"stage"},
		),
		LastCompletion: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "cranfield_last_completion_timestamp_seconds",
			Help: "Unix time the last run finished.",
		}),
	}
	m.Registry.MustRegister(
		m.DocsIndexed,
		m.VocabularySize,
		m.IndexBuildSeconds,
		m.SnapshotLoads,
		m.QueriesTotal,
		m.QueryLatency,
		m.ResultsPerQuery,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.RunFilesWritten,
		m.StageSeconds,
		m.LastCompletion,
	)
	return m
}

// ObserveQuery records one ranked query.
func (m *Metrics) ObserveQuery(model, status string, cached bool, elapsed time.Duration, results int) {
	if m == nil {
		return
	}
	cacheStatus := "miss"
	if cached {
		cacheStatus = "hit"
		m.CacheHitsTotal.Inc()
	}
	m.QueriesTotal.WithLabelValues(model, status).Inc()
	m.QueryLatency.WithLabelValues(model, cacheStatus).Observe(elapsed.Seconds())
	if status != "error" {
		m.ResultsPerQuery.WithLabelValues(model).Observe(float64(results))
	}
}

// ObserveCacheMiss counts a lookup that fell through to ranking.
func (m *Metrics) ObserveCacheMiss() {
	if m == nil {
		return
	}
	m.CacheMissesTotal.Inc()
}

func (m *Metrics) ObserveIndex(docs, vocabulary int, elapsed time.Duration, fromSnapshot bool) {
	if m == nil {
		return
	}
	m.DocsIndexed.Set(float64(docs))
	m.VocabularySize.Set(float64(vocabulary))
	m.IndexBuildSeconds.Set(elapsed.Seconds())
	if fromSnapshot {
		m.SnapshotLoads.WithLabelValues("loaded").Inc()
	} else {
		m.SnapshotLoads.WithLabelValues("built").Inc()
	}
}

func (m *Metrics) ObserveRunFile(model string) {
	if m == nil {
		return
	}
	m.RunFilesWritten.WithLabelValues(model).Inc()
}

// ObserveStages sets the stage duration gauges.
func (m *Metrics) ObserveStages(stages map[string]time.Duration) {
	if m == nil {
		return
	}
	for stage, d := range stages {
		m.StageSeconds.WithLabelValues(stage).Set(d.Seconds())
	}
}

// Export stamps the completion time and ships the registry to the
// configured sinks. Either sink may be empty.
func (m *Metrics) Export(ctx context.Context, textfile, pushgatewayURL, job string) error {
	if m == nil {
		return nil
	}
	m.LastCompletion.SetToCurrentTime()
	if textfile != "" {
		if err := prometheus.WriteToTextfile(textfile, m.Registry); err != nil {
			return fmt.Errorf("writing metrics textfile: %w", err)
		}
	}
	if pushgatewayURL != "" {
		pusher := push.New(pushgatewayURL, job).Gatherer(m.Registry)
		if err := pusher.PushContext(ctx); err != nil {
			return fmt.Errorf("pushing metrics to %s: %w", pushgatewayURL, err)
		}
	}
	return nil
}
