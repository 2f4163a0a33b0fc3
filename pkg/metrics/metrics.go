// Package metrics provides the centralized Prometheus metrics registry for
// the replay client. All metrics are defined in their respective packages
// (client, cache, pagination, query, ratelimit) to maintain modularity and
// avoid circular dependencies.
//
// This package provides documentation and reference for all available metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry is the default Prometheus registry used by the replay client.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Metrics Documentation
//
// Rate Limit Metrics (pkg/ratelimit):
//   - replay_requests_remaining (Gauge): Remaining request budget in the current window
//   - replay_rate_limit_blocks_total (Counter): Requests blocked due to critical budget
//   - replay_rate_limit_throttles_total (Counter): Requests throttled due to low budget
//
// HTTP Cache Metrics (pkg/cache):
//   - replay_http_cache_hits_total{layer="redis"} (Counter): Cache hits by layer
//   - replay_http_cache_misses_total (Counter): Cache misses
//   - replay_http_cache_size_bytes{layer="redis"} (Gauge): Current cache size in bytes
//   - replay_http_304_responses_total (Counter): 304 Not Modified responses
//   - replay_http_conditional_requests_total (Counter): Conditional requests sent with If-None-Match
//   - replay_http_cache_errors_total{operation} (Counter): Cache operation errors
//
// Request Metrics (pkg/client):
//   - replay_requests_total{endpoint, status} (Counter): Total requests by endpoint and HTTP status
//   - replay_request_duration_seconds{endpoint} (Histogram): Request duration by endpoint
//   - replay_request_errors_total{class} (Counter): Errors by class (client, server, rate_limit, network)
//
// Retry Metrics (pkg/client):
//   - replay_retries_total{error_class} (Counter): Retry attempts by error class
//   - replay_retry_backoff_seconds{error_class} (Histogram): Backoff duration by error class
//   - replay_retry_exhausted_total{error_class} (Counter): Requests that exhausted max retries
//
// Pagination Metrics (pkg/pagination):
//   - replay_batch_fetches_total{status} (Counter): Parallel batch fetches by outcome
//   - replay_batch_pages_fetched_total (Counter): Pages fetched by parallel batches
//   - replay_cursor_fetches_total{status} (Counter): Sequential cursor fetches by outcome
//
// Query Cache Metrics (pkg/query):
//   - replay_query_cache_hits_total (Counter): Fresh query cache hits
//   - replay_query_cache_misses_total (Counter): Query cache misses
//   - replay_query_invalidations_total (Counter): Query cache invalidations
//   - replay_query_fetches_deduped_total (Counter): Fetches coalesced into an in-flight call
//
// Example Prometheus Queries:
//
//   # HTTP Cache Hit Rate
//   sum(rate(replay_http_cache_hits_total[5m])) /
//   (sum(rate(replay_http_cache_hits_total[5m])) + sum(rate(replay_http_cache_misses_total[5m])))
//
//   # Budget Status
//   replay_requests_remaining < 20
//
//   # Request Error Rate
//   rate(replay_request_errors_total[5m])
//
//   # P95 Request Latency
//   histogram_quantile(0.95, rate(replay_request_duration_seconds_bucket[5m]))
//
//   # 304 Response Rate
//   rate(replay_http_304_responses_total[5m]) / rate(replay_requests_total[5m])
