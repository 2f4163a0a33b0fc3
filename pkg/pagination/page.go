package pagination

import (
	"context"
	"encoding/json"
	"fmt"
)

// Page is one response's worth of items from a paginated collection, plus an
// optional continuation cursor. Items preserve backend-assigned order;
// concatenating pages in fetch order reconstructs the collection's order.
type Page struct {
	Items []json.RawMessage
	Next  *Cursor
}

// Cursor is an opaque continuation token parsed from a Link response header.
type Cursor struct {
	// Value is the raw cursor token for the next page request.
	Value string

	// HasMore reports whether the backend claims more results remain.
	HasMore bool
}

// KeyFunc builds the request key for a single page from a cursor and page
// size. The key is an endpoint path plus encoded query parameters.
type KeyFunc func(cursor string, perPage int) string

// PageFetcher fetches a single page by request key.
type PageFetcher interface {
	FetchPage(ctx context.Context, key string) (Page, error)
}

// OffsetCursor builds the offset-style cursor used when the total item count
// is known in advance and page boundaries can be computed upfront.
func OffsetCursor(offset int) string {
	return fmt.Sprintf("0:%d:0", offset)
}

// Flatten concatenates the items of pages in slice order.
func Flatten(pages []Page) []json.RawMessage {
	total := 0
	for _, p := range pages {
		total += len(p.Items)
	}
	items := make([]json.RawMessage, 0, total)
	for _, p := range pages {
		items = append(items, p.Items...)
	}
	return items
}
