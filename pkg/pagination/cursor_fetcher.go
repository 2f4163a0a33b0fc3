package pagination

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sessionkit/replay-client/pkg/query"
)

// ErrPageLimit is returned when a cursor chain does not terminate within the
// configured page cap. It guards against a misbehaving backend cursor that
// would otherwise loop forever.
var ErrPageLimit = errors.New("page limit reached before cursor chain terminated")

// CursorConfig holds sequential fetcher configuration.
type CursorConfig struct {
	// MaxPages caps the number of requests in one cursor chain.
	MaxPages int

	// Timeout per page fetch.
	Timeout time.Duration
}

// DefaultCursorConfig returns a safe default configuration.
func DefaultCursorConfig() CursorConfig {
	return CursorConfig{
		MaxPages: 100,
		Timeout:  15 * time.Second,
	}
}

// CursorRequest describes one sequential-by-cursor fetch.
type CursorRequest struct {
	// Key builds the request key for each page.
	Key KeyFunc

	// InitialCursor is where the chain starts. Empty means the beginning of
	// the collection; a non-empty value continues past pages fetched by
	// another strategy.
	InitialCursor string

	// PerPage is the page size.
	PerPage int

	// Enabled gates the fetch, as in BatchRequest.
	Enabled bool
}

// CursorResult is the settled outcome of a sequential-by-cursor fetch.
type CursorResult struct {
	Status query.Status

	// Pages holds the fetched pages in fetch order.
	Pages []Page

	// Items is the concatenation of Pages in fetch order.
	Items []json.RawMessage

	// Requests is the number of page requests issued.
	Requests int

	Err error
}

// CursorFetcher fetches a collection strictly one page at a time, following
// the continuation cursor each response carries. Required when the total
// count is unknown or only partially known: page N+1's request key is derived
// from page N's response, so requests cannot overlap.
type CursorFetcher struct {
	fetcher PageFetcher
	config  CursorConfig
}

// NewCursorFetcher creates a new sequential fetcher.
func NewCursorFetcher(fetcher PageFetcher, config CursorConfig) *CursorFetcher {
	if config.MaxPages <= 0 {
		config.MaxPages = 100
	}
	if config.Timeout <= 0 {
		config.Timeout = 15 * time.Second
	}

	return &CursorFetcher{
		fetcher: fetcher,
		config:  config,
	}
}

// FetchAll follows the cursor chain until a response carries no further
// continuation. A first page without a continuation is a normal
// single-request success, even with zero items. An error on any page stops
// the chain; later pages are not attempted. A chain longer than MaxPages
// fails with ErrPageLimit.
func (cf *CursorFetcher) FetchAll(ctx context.Context, req CursorRequest) CursorResult {
	if !req.Enabled {
		return CursorResult{Status: query.StatusPending}
	}

	perPage := req.PerPage
	if perPage <= 0 {
		perPage = 100
	}

	start := time.Now()
	cursor := req.InitialCursor

	var pages []Page
	requests := 0

	for {
		if requests >= cf.config.MaxPages {
			log.Warn().
				Int("max_pages", cf.config.MaxPages).
				Str("cursor", cursor).
				Msg("Cursor chain exceeded page limit")
			cursorFetchesTotal.WithLabelValues("error").Inc()
			return CursorResult{
				Status:   query.StatusError,
				Pages:    pages,
				Items:    Flatten(pages),
				Requests: requests,
				Err:      fmt.Errorf("%w: %d pages", ErrPageLimit, requests),
			}
		}

		key := req.Key(cursor, perPage)

		pageCtx, cancel := context.WithTimeout(ctx, cf.config.Timeout)
		page, err := cf.fetcher.FetchPage(pageCtx, key)
		cancel()
		requests++

		if err != nil {
			log.Warn().
				Err(err).
				Int("request", requests).
				Str("key", key).
				Msg("Page fetch failed, stopping cursor chain")
			cursorFetchesTotal.WithLabelValues("error").Inc()
			return CursorResult{
				Status:   query.StatusError,
				Pages:    pages,
				Items:    Flatten(pages),
				Requests: requests,
				Err:      err,
			}
		}

		pages = append(pages, page)

		if page.Next == nil || !page.Next.HasMore {
			break
		}
		cursor = page.Next.Value
	}

	items := Flatten(pages)
	cursorFetchesTotal.WithLabelValues("success").Inc()

	log.Debug().
		Int("requests", requests).
		Int("items", len(items)).
		Dur("duration", time.Since(start)).
		Msg("Cursor chain complete")

	return CursorResult{
		Status:   query.StatusSuccess,
		Pages:    pages,
		Items:    items,
		Requests: requests,
	}
}
