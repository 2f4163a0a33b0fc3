// Package pagination provides the two page-fetch strategies for paginated
// replay collections: parallel-by-count and sequential-by-cursor.
package pagination

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sessionkit/replay-client/pkg/query"
)

// Config holds batch fetcher configuration.
type Config struct {
	// MaxConcurrency is the maximum number of parallel page requests.
	MaxConcurrency int

	// Timeout per page fetch.
	Timeout time.Duration
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig() Config {
	return Config{
		MaxConcurrency: 10,
		Timeout:        15 * time.Second,
	}
}

// BatchRequest describes one parallel-by-count fetch of a whole collection.
type BatchRequest struct {
	// Key builds the request key for each page.
	Key KeyFunc

	// Total is the known item count, reported by the root record.
	Total int

	// PerPage is the page size.
	PerPage int

	// Enabled gates the fetch. A disabled request issues nothing and stays
	// pending; used until prerequisite data (the resolved record id) is known.
	Enabled bool
}

// BatchResult is the settled outcome of a parallel-by-count fetch.
type BatchResult struct {
	Status query.Status

	// Pages holds the fetched pages in page-index order, never arrival order.
	Pages []Page

	// Items is the concatenation of Pages in index order.
	Items []json.RawMessage

	// Err is the first page error encountered; later errors are discarded.
	Err error
}

// BatchFetcher fetches all pages of a collection concurrently. It is usable
// only when the total item count is known upfront: page boundaries are
// computed from the count, so no page depends on another's cursor.
type BatchFetcher struct {
	fetcher PageFetcher
	config  Config
}

// NewBatchFetcher creates a new batch fetcher.
func NewBatchFetcher(fetcher PageFetcher, config Config) *BatchFetcher {
	if config.MaxConcurrency <= 0 {
		config.MaxConcurrency = 10
	}
	if config.Timeout <= 0 {
		config.Timeout = 15 * time.Second
	}

	return &BatchFetcher{
		fetcher: fetcher,
		config:  config,
	}
}

// FetchAll issues ceil(Total/PerPage) page requests concurrently through a
// bounded worker pool and reassembles the results in page-index order once
// all settle. The first page is requested unconditionally, so a zero-count
// collection still costs one request. Any page error fails the whole batch
// with the first error encountered; in-flight siblings are cancelled. There
// is no per-page retry: the caller's recovery path is a full invalidate and
// refetch.
func (bf *BatchFetcher) FetchAll(ctx context.Context, req BatchRequest) BatchResult {
	if !req.Enabled {
		return BatchResult{Status: query.StatusPending}
	}

	perPage := req.PerPage
	if perPage <= 0 {
		perPage = 100
	}

	numPages := (req.Total + perPage - 1) / perPage
	if numPages < 1 {
		numPages = 1
	}

	start := time.Now()
	log.Debug().
		Int("total", req.Total).
		Int("per_page", perPage).
		Int("pages", numPages).
		Msg("Starting parallel page fetch")

	fetchCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	pages := make([]Page, numPages)
	pageQueue := make(chan int, numPages)
	for i := 0; i < numPages; i++ {
		pageQueue <- i
	}
	close(pageQueue)

	var (
		wg       sync.WaitGroup
		errOnce  sync.Once
		firstErr error
	)

	workers := bf.config.MaxConcurrency
	if workers > numPages {
		workers = numPages
	}

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range pageQueue {
				select {
				case <-fetchCtx.Done():
					return
				default:
				}

				key := req.Key(OffsetCursor(idx*perPage), perPage)

				pageCtx, cancelPage := context.WithTimeout(fetchCtx, bf.config.Timeout)
				page, err := bf.fetcher.FetchPage(pageCtx, key)
				cancelPage()

				if err != nil {
					log.Warn().
						Err(err).
						Int("page", idx).
						Str("key", key).
						Msg("Page fetch failed")
					errOnce.Do(func() {
						firstErr = err
						cancel()
					})
					return
				}

				// Distinct indices per page, no mutex needed.
				pages[idx] = page
			}
		}()
	}

	wg.Wait()

	if firstErr != nil {
		batchFetchesTotal.WithLabelValues("error").Inc()
		return BatchResult{Status: query.StatusError, Err: firstErr}
	}

	items := Flatten(pages)
	batchFetchesTotal.WithLabelValues("success").Inc()
	batchPagesFetched.Add(float64(numPages))

	log.Debug().
		Int("pages", numPages).
		Int("items", len(items)).
		Dur("duration", time.Since(start)).
		Msg("Parallel page fetch complete")

	return BatchResult{
		Status: query.StatusSuccess,
		Pages:  pages,
		Items:  items,
	}
}
