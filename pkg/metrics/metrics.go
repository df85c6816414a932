// Package metrics exposes Prometheus instrumentation for the dataset
// pipeline, the map engine and the data server.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "pricemap"

var (
	datasetLoads = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "dataset",
		Name:      "loads_total",
		Help:      "Dataset loads by kind and outcome (fetched, shared, failed).",
	}, []string{"kind", "outcome"})

	prefetches = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "dataset",
		Name:      "prefetches_total",
		Help:      "Speculative neighbor loads issued by the prefetcher.",
	})

	crossfades = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "engine",
		Name:      "crossfades_total",
		Help:      "Crossfade animations by kind (started, retargeted, completed).",
	}, []string{"kind"})

	featureWrites = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "engine",
		Name:      "feature_state_writes_total",
		Help:      "Per-feature state writes applied to the render surface.",
	})

	lookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "selection",
		Name:      "lookups_total",
		Help:      "Detail lookups by outcome (applied, stale, failed, shortcircuit).",
	}, []string{"outcome"})

	httpRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Server requests by route and status class.",
	}, []string{"route", "status"})

	httpDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "Server request latency by route.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"route"})
)

func RecordDatasetLoad(kind, outcome string) { datasetLoads.WithLabelValues(kind, outcome).Inc() }
func RecordPrefetch()                        { prefetches.Inc() }
func RecordCrossfade(kind string)            { crossfades.WithLabelValues(kind).Inc() }
func RecordFeatureWrite()                    { featureWrites.Inc() }
func RecordLookup(outcome string)            { lookups.WithLabelValues(outcome).Inc() }

func RecordHTTPRequest(route, status string, seconds float64) {
	httpRequests.WithLabelValues(route, status).Inc()
	httpDuration.WithLabelValues(route).Observe(seconds)
}
