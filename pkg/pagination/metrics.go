package pagination

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// batchFetchesTotal tracks parallel-by-count fetches by outcome.
	batchFetchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "replay_batch_fetches_total",
			Help: "Total number of parallel-by-count collection fetches",
		},
		[]string{"status"},
	)

	// batchPagesFetched tracks pages retrieved by the parallel strategy.
	batchPagesFetched = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "replay_batch_pages_fetched_total",
			Help: "Total number of pages fetched by the parallel strategy",
		},
	)

	// cursorFetchesTotal tracks sequential-by-cursor fetches by outcome.
	cursorFetchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "replay_cursor_fetches_total",
			Help: "Total number of sequential-by-cursor collection fetches",
		},
		[]string{"status"},
	)
)
