package cache

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// CacheKey represents a unique identifier for a cached backend response.
type CacheKey struct {
	// Endpoint is the backend endpoint path
	// (e.g., "/projects/{project}/replays/{replay_id}/")
	Endpoint string

	// PathParams are the path parameters
	// (e.g., {"project": "frontend", "replay_id": "r-123"})
	PathParams map[string]string

	// QueryParams are the query parameters (e.g., {"per_page": "100"})
	QueryParams url.Values

	// OrgSlug scopes the key to an organization (empty for unscoped)
	OrgSlug string
}

// String generates a deterministic cache key string.
// Format: replay:endpoint:param1=val1:param2=val2:query1=val1:org=acme
//
// Example:
//
//	replay:projects/frontend/replays/r-123:per_page=100:org=acme
func (k CacheKey) String() string {
	parts := []string{"replay"}

	// Add endpoint (normalize path)
	endpoint := strings.Trim(k.Endpoint, "/")
	if endpoint != "" {
		parts = append(parts, endpoint)
	}

	// Add path params (sorted for determinism)
	if len(k.PathParams) > 0 {
		pathKeys := make([]string, 0, len(k.PathParams))
		for key := range k.PathParams {
			pathKeys = append(pathKeys, key)
		}
		sort.Strings(pathKeys)

		for _, key := range pathKeys {
			parts = append(parts, fmt.Sprintf("%s=%s", key, k.PathParams[key]))
		}
	}

	// Add query params (sorted for determinism)
	if len(k.QueryParams) > 0 {
		queryKeys := make([]string, 0, len(k.QueryParams))
		for key := range k.QueryParams {
			queryKeys = append(queryKeys, key)
		}
		sort.Strings(queryKeys)

		for _, key := range queryKeys {
			parts = append(parts, fmt.Sprintf("%s=%s", key, k.QueryParams.Get(key)))
		}
	}

	// Add org scope if present
	if k.OrgSlug != "" {
		parts = append(parts, fmt.Sprintf("org=%s", k.OrgSlug))
	}

	return strings.Join(parts, ":")
}
