package query

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// queryCacheHits tracks Query calls answered from a fresh cached result.
	queryCacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "replay_query_cache_hits_total",
			Help: "Total number of query cache hits",
		},
	)

	// queryCacheMisses tracks Query calls that had to run the fetch.
	queryCacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "replay_query_cache_misses_total",
			Help: "Total number of query cache misses",
		},
	)

	// queryInvalidations tracks explicit cache invalidations.
	queryInvalidations = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "replay_query_invalidations_total",
			Help: "Total number of query cache invalidations",
		},
	)

	// queryFetchesDeduped tracks fetches collapsed into a shared flight.
	queryFetchesDeduped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "replay_query_fetches_deduped_total",
			Help: "Total number of concurrent fetches collapsed by singleflight",
		},
	)
)
