// Package telemetry holds argus's metrics: a miss-counter gauge for the
// state cache, a retry counter for the RPC backoff policy, and
// density/conflict histograms for the analyzer's output, all exported
// over a dedicated Prometheus registry.
package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry isolates argus's metrics from whatever default registry a host
// process might already have populated, matching the "one command, one
// registry, scraped or printed once" shape of a short-lived CLI run.
var Registry = prometheus.NewRegistry()

var factory = promauto.With(Registry)

var (
	// StateCacheMisses counts absent-key lookups answered with the zero
	// value, labeled by block. A high count is reported but never aborts
	// analysis.
	StateCacheMisses = factory.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "argus",
		Subsystem: "state_cache",
		Name:      "misses",
		Help:      "Absent-key lookups answered with the zero value, by block.",
	}, []string{"block"})

	// RPCRetries counts transient-error retries issued by
	// internal/rpcclient, labeled by the JSON-RPC method retried.
	RPCRetries = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "argus",
		Subsystem: "rpc",
		Name:      "retries_total",
		Help:      "Transient RPC errors retried with backoff, by method.",
	}, []string{"method"})

	// ConflictsPerBlock records the total conflict count for each
	// analyzed block.
	ConflictsPerBlock = factory.NewHistogram(prometheus.HistogramOpts{
		Namespace: "argus",
		Subsystem: "analyzer",
		Name:      "conflicts_per_block",
		Help:      "Total conflicts emitted by the analyzer for one block.",
		Buckets:   prometheus.ExponentialBuckets(1, 4, 8),
	})

	// ContentionDensity records each emitted ContentionEvent's density, for
	// tracking how contention severity is distributed across runs.
	ContentionDensity = factory.NewHistogram(prometheus.HistogramOpts{
		Namespace: "argus",
		Subsystem: "analyzer",
		Name:      "contention_density",
		Help:      "Per-contract conflict_count/affected_tx_count density.",
		Buckets:   []float64{0.5, 1, 2, 3, 4, 5, 8, 13, 21},
	})
)

// Handler exposes the argus registry for scraping, for a caller that wants
// to run it alongside a long-lived `analyze` invocation (e.g. batch
// backfills) rather than just logging the numbers at exit.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}
