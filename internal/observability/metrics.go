package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics definitions
var (
	DiscoveryDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "lattice_discovery_seconds",
		Help:    "Wall time for a full discovery walk.",
		Buckets: prometheus.DefBuckets,
	})

	ParsingDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "lattice_parsing_seconds",
		Help:    "Time spent parsing a single source file.",
		Buckets: prometheus.DefBuckets,
	}, []string{"analyzer"})

	CacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lattice_cache_hits_total",
		Help: "Total number of snapshot cache hits during discovery.",
	})

	CacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lattice_cache_misses_total",
		Help: "Total number of snapshot cache misses during discovery.",
	})

	GraphNodes = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "lattice_graph_nodes_total",
		Help: "Number of files in the current dependency graph.",
	})

	GraphEdges = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "lattice_graph_edges_total",
		Help: "Number of edges in the current dependency graph.",
	})

	EvaluationIssuesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lattice_evaluation_issues_total",
		Help: "Total number of module evaluation issues by severity.",
	}, []string{"severity"})

	UpdatesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lattice_session_updates_total",
		Help: "Total number of session updates by kind (incremental or full rebuild).",
	}, []string{"kind"})

	WatcherEventsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lattice_watcher_events_total",
		Help: "Total number of file system events received by the watcher.",
	})
)
