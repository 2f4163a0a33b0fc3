// Package pagination implements the two fetch plans for paginated replay
// collections.
//
// Parallel-by-count is usable when the total item count is known upfront
// (the root record reports it). Page boundaries are computed from the count,
// every page request is issued concurrently through a worker pool, and the
// results are reassembled in page-index order once all settle:
//
//	fetcher := pagination.NewBatchFetcher(client, pagination.DefaultConfig())
//	res := fetcher.FetchAll(ctx, pagination.BatchRequest{
//		Key:     keyFn,
//		Total:   250,
//		PerPage: 100,
//		Enabled: true,
//	})
//
// Sequential-by-cursor is required when the count is unknown: each response
// carries a continuation cursor in its Link header, and the next request key
// is derived from it, so pages are fetched strictly one at a time:
//
//	fetcher := pagination.NewCursorFetcher(client, pagination.DefaultCursorConfig())
//	res := fetcher.FetchAll(ctx, pagination.CursorRequest{
//		Key:     keyFn,
//		PerPage: 100,
//		Enabled: true,
//	})
//
// Neither strategy retries individual pages. A page error settles the whole
// fetch as an error (keeping the first error encountered); the caller's only
// recovery path is a coarse invalidate-and-refetch.
package pagination
