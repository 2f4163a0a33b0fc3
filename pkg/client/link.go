package client

import (
	"net/http"
	"strings"

	"github.com/sessionkit/replay-client/pkg/pagination"
)

// ParseLinkCursor extracts the "next" continuation cursor from a Link
// response header. The backend emits headers of the form:
//
//	<https://host/path?cursor=0:100:0>; rel="next"; results="true"; cursor="0:100:0"
//
// Multiple entries are comma-separated (rel="previous" is ignored). Returns
// nil when the header is absent or carries no next entry; a next entry with
// results="false" is returned with HasMore unset, which terminates a
// sequential cursor chain.
func ParseLinkCursor(header http.Header) *pagination.Cursor {
	link := header.Get("Link")
	if link == "" {
		return nil
	}

	for _, part := range strings.Split(link, ",") {
		params := strings.Split(part, ";")

		var rel, cursor, results string
		for _, p := range params[1:] {
			key, value, ok := strings.Cut(strings.TrimSpace(p), "=")
			if !ok {
				continue
			}
			value = strings.Trim(value, `"`)
			switch key {
			case "rel":
				rel = value
			case "cursor":
				cursor = value
			case "results":
				results = value
			}
		}

		if rel != "next" {
			continue
		}
		return &pagination.Cursor{
			Value:   cursor,
			HasMore: results == "true",
		}
	}

	return nil
}
