// Package metrics exposes the pipeline's Prometheus instruments. It
// replaces a much larger, hand-rolled text-exposition engine with the
// standard client_golang registry and promhttp handler: every instrument
// here is a real collector, not reimplemented exposition logic.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry bundles every collector the pipeline emits, grouped by the
// stage that writes to it.
type Registry struct {
	reg *prometheus.Registry

	StageDuration   *prometheus.HistogramVec
	StageErrors     *prometheus.CounterVec
	DocumentsIngested prometheus.Counter

	ChunksPerDocument    prometheus.Histogram
	MentionsLinked       *prometheus.CounterVec // by decision: accept|review|nil
	ClaimsExtracted      prometheus.Counter
	ClaimsDeduplicated   prometheus.Counter
	PredicatesGoverned   *prometheus.CounterVec // by outcome: standard|mapped|other
	ThemesBuilt          prometheus.Histogram

	GraphSyncDuration *prometheus.HistogramVec // by target: postgres|neo4j
	GraphSyncErrors   *prometheus.CounterVec

	QueryLatency      prometheus.Histogram
	QueryHopsExpanded prometheus.Histogram

	IsolatedNodeRatio   *prometheus.GaugeVec // by build_version
	AvgDegree           *prometheus.GaugeVec
	OtherPredicateRatio *prometheus.GaugeVec
	AliasCount          *prometheus.GaugeVec
	Modularity          *prometheus.GaugeVec
}

// New builds a fresh, isolated registry (not the global DefaultRegisterer)
// so tests can construct independent instances without collector-already-
// registered panics.
func New() *Registry {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Registry{
		reg: reg,

		StageDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name: "graphrag_stage_duration_seconds",
			Help: "Duration of one pipeline stage run, by stage name.",
			Buckets: prometheus.DefBuckets,
		}, []string{"stage"}),

		StageErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "graphrag_stage_errors_total",
			Help: "Count of stage failures, by stage name.",
		}, []string{"stage"}),

		DocumentsIngested: factory.NewCounter(prometheus.CounterOpts{
			Name: "graphrag_documents_ingested_total",
			Help: "Count of documents that completed ingestion.",
		}),

		ChunksPerDocument: factory.NewHistogram(prometheus.HistogramOpts{
			Name: "graphrag_chunks_per_document",
			Help: "Chunk count produced per document.",
			Buckets: prometheus.LinearBuckets(1, 5, 10),
		}),

		MentionsLinked: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "graphrag_mentions_linked_total",
			Help: "Entity mentions by linking decision.",
		}, []string{"decision"}),

		ClaimsExtracted: factory.NewCounter(prometheus.CounterOpts{
			Name: "graphrag_claims_extracted_total",
			Help: "Claims extracted before dedup.",
		}),

		ClaimsDeduplicated: factory.NewCounter(prometheus.CounterOpts{
			Name: "graphrag_claims_deduplicated_total",
			Help: "Claims redirected to a canonical claim during dedup.",
		}),

		PredicatesGoverned: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "graphrag_predicates_governed_total",
			Help: "Claim-relation predicates by governance outcome.",
		}, []string{"outcome"}),

		ThemesBuilt: factory.NewHistogram(prometheus.HistogramOpts{
			Name: "graphrag_themes_per_document",
			Help: "Theme (community) count produced per document.",
			Buckets: prometheus.LinearBuckets(1, 2, 10),
		}),

		GraphSyncDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name: "graphrag_graph_sync_duration_seconds",
			Help: "Duration of a graph sync, by target store.",
			Buckets: prometheus.DefBuckets,
		}, []string{"target"}),

		GraphSyncErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "graphrag_graph_sync_errors_total",
			Help: "Graph sync failures, by target store.",
		}, []string{"target"}),

		QueryLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name: "graphrag_query_latency_seconds",
			Help: "End-to-end hybrid retrieval latency.",
			Buckets: prometheus.DefBuckets,
		}),

		QueryHopsExpanded: factory.NewHistogram(prometheus.HistogramOpts{
			Name: "graphrag_query_hops_expanded",
			Help: "Graph hops actually traversed per query.",
			Buckets: []float64{0, 1, 2},
		}),

		IsolatedNodeRatio: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "graphrag_isolated_node_ratio",
			Help: "Fraction of nodes with no edges, by build version.",
		}, []string{"build_version"}),

		AvgDegree: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "graphrag_avg_degree",
			Help: "Average node degree, by build version.",
		}, []string{"build_version"}),

		OtherPredicateRatio: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "graphrag_other_predicate_ratio",
			Help: "Fraction of candidate predicates rejected as OTHER, by build version.",
		}, []string{"build_version"}),

		AliasCount: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "graphrag_alias_count",
			Help: "Total registered aliases, by build version.",
		}, []string{"build_version"}),

		Modularity: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "graphrag_theme_modularity",
			Help: "Louvain modularity of the latest theme build, by build version.",
		}, []string{"build_version"}),
	}
}

// Handler returns the promhttp handler to mount at /metrics.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}
