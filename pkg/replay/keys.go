package replay

import (
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/sessionkit/replay-client/pkg/pagination"
)

// Scope identifies the (org, project, replay) tuple every collection key is
// derived from. Query-cache keys built from a Scope are stable: the same
// scope always yields the same key, so cache lookups for changed parameters
// naturally miss.
type Scope struct {
	Org      string
	Project  string
	ReplayID string
}

// RecordKey is the query-cache key and endpoint of the root replay record.
// The aggregator and the poller share this key; a poll tick refreshes the
// aggregator's root dependency with no other coordination channel.
func (s Scope) RecordKey() string {
	return fmt.Sprintf("/organizations/%s/replays/%s/", s.Org, s.ReplayID)
}

// SegmentsKey is the collection-level query-cache key for recording segments.
func (s Scope) SegmentsKey() string {
	return fmt.Sprintf("/projects/%s/%s/replays/%s/recording-segments/", s.Org, s.Project, s.ReplayID)
}

// ErrorsKey is the collection-level query-cache key for one error dataset.
// The discover dataset appears twice with distinct variants: the initial
// parallel pages and the sequential overflow continuation.
func (s Scope) ErrorsKey(dataset, variant string) string {
	return fmt.Sprintf("/organizations/%s/replays-events-meta/?dataset=%s&replay_id=%s#%s",
		s.Org, dataset, s.ReplayID, variant)
}

// FeedbackKey is the query-cache key of the derived feedback lookup. It is
// keyed by the id count, not the id list: reordering the same set of ids
// must not change the key, while a changed count must.
func (s Scope) FeedbackKey(idCount int) string {
	return fmt.Sprintf("/organizations/%s/feedback-events/?project=%s&replay_id=%s&count=%d",
		s.Org, s.Project, s.ReplayID, idCount)
}

// SegmentPageKey builds the request key for one segments page.
func (s Scope) SegmentPageKey(cursor string, perPage int) string {
	return fmt.Sprintf("/projects/%s/%s/replays/%s/recording-segments/?cursor=%s&per_page=%d",
		s.Org, s.Project, s.ReplayID, url.QueryEscape(cursor), perPage)
}

// ErrorPageKey builds the request-key constructor for one error dataset.
func (s Scope) ErrorPageKey(dataset string) pagination.KeyFunc {
	return func(cursor string, perPage int) string {
		return fmt.Sprintf("/organizations/%s/replays-events-meta/?dataset=%s&replay_id=%s&cursor=%s&per_page=%d",
			s.Org, dataset, s.ReplayID, url.QueryEscape(cursor), perPage)
	}
}

// FeedbackEndpoint builds the request endpoint for the derived feedback
// lookup. The ids are sorted so the same set always produces the same
// request regardless of merge order.
func (s Scope) FeedbackEndpoint(ids []string) string {
	sorted := make([]string, len(ids))
	copy(sorted, ids)
	sort.Strings(sorted)
	return fmt.Sprintf("/organizations/%s/feedback-events/?project=%s&replay_id=%s&ids=%s",
		s.Org, s.Project, s.ReplayID, url.QueryEscape(strings.Join(sorted, ",")))
}
