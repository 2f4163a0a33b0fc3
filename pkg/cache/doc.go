// Package cache provides backend response caching with a Redis backend.
//
// The cache manager implements HTTP response caching with the following features:
//
// - Respect for backend expires headers
// - ETag support for conditional requests (If-None-Match)
// - Last-Modified support (If-Modified-Since)
// - Automatic TTL management based on the expires header
// - Prometheus metrics for observability
// - Deterministic cache key generation
//
// # Basic Usage
//
//	// Create Redis client
//	redisClient := redis.NewClient(&redis.Options{
//		Addr: "localhost:6379",
//	})
//
//	// Create cache manager
//	manager := cache.NewManager(redisClient)
//
//	// Create cache key
//	key := cache.CacheKey{
//		Endpoint: "/projects/frontend/replays/r-123/",
//		QueryParams: url.Values{"per_page": []string{"100"}},
//	}
//
//	// Get from cache
//	entry, err := manager.Get(ctx, key)
//	if err == cache.ErrCacheMiss {
//		// Cache miss - fetch from the backend
//	}
//
// # HTTP Response Caching
//
//	// Convert HTTP response to cache entry
//	entry, err := cache.ResponseToEntry(resp)
//	if err != nil {
//		return err
//	}
//
//	// Store in cache
//	if err := manager.Set(ctx, key, entry); err != nil {
//		return err
//	}
//
// # Conditional Requests
//
//	// Check if we should make a conditional request
//	if cache.ShouldMakeConditionalRequest(entry) {
//		cache.AddConditionalHeaders(req, entry)
//		// Make request - the backend returns 304 if nothing changed
//	}
//
// # Metrics
//
// The cache manager exports Prometheus metrics:
//
//   - replay_http_cache_hits_total{layer="redis"} - Cache hits
//   - replay_http_cache_misses_total - Cache misses
//   - replay_http_cache_size_bytes{layer="redis"} - Cache size
//   - replay_http_304_responses_total - Conditional request successes
//   - replay_http_cache_errors_total{operation} - Cache operation errors
//
// Note that this layer caches individual HTTP responses. The per-collection
// query cache in pkg/query sits above it and is the layer the aggregator
// invalidates on retry.
package cache
