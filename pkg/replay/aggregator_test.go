package replay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sessionkit/replay-client/pkg/pagination"
	"github.com/sessionkit/replay-client/pkg/query"
)

var errBackendDown = errors.New("backend down")

// fakeBackend serves a replay's collections from memory and counts requests
// per endpoint path.
type fakeBackend struct {
	mu       sync.Mutex
	requests map[string]int

	record   Record
	segments []json.RawMessage
	discover []ReplayError
	platform []ReplayError
	feedback []FeedbackEvent

	failRecord   bool
	failSegments bool
	recordDelay  time.Duration
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		requests: make(map[string]int),
	}
}

func (f *fakeBackend) count(path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[path]
}

func (f *fakeBackend) track(path string) {
	f.mu.Lock()
	f.requests[path]++
	f.mu.Unlock()
}

func (f *fakeBackend) GetBody(ctx context.Context, endpoint string) ([]byte, http.Header, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, nil, err
	}
	f.track(u.Path)

	switch {
	case strings.Contains(u.Path, "/feedback-events/"):
		f.mu.Lock()
		events := f.feedback
		f.mu.Unlock()
		body, _ := json.Marshal(map[string]interface{}{"data": events})
		return body, http.Header{}, nil

	case strings.Contains(u.Path, "/replays/"):
		f.mu.Lock()
		fail := f.failRecord
		delay := f.recordDelay
		rec := f.record
		f.mu.Unlock()
		if delay > 0 {
			time.Sleep(delay)
		}
		if fail {
			return nil, nil, errBackendDown
		}
		body, _ := json.Marshal(map[string]interface{}{"data": rec})
		return body, http.Header{}, nil
	}

	return nil, nil, fmt.Errorf("unexpected endpoint %q", endpoint)
}

func (f *fakeBackend) FetchPage(ctx context.Context, key string) (pagination.Page, error) {
	u, err := url.Parse(key)
	if err != nil {
		return pagination.Page{}, err
	}
	f.track(u.Path)

	q := u.Query()
	perPage := 100
	fmt.Sscanf(q.Get("per_page"), "%d", &perPage)
	offset := 0
	if cursor := q.Get("cursor"); cursor != "" {
		fmt.Sscanf(cursor, "0:%d:0", &offset)
	}

	var items []json.RawMessage
	switch {
	case strings.Contains(u.Path, "recording-segments"):
		f.mu.Lock()
		fail := f.failSegments
		items = f.segments
		f.mu.Unlock()
		if fail {
			return pagination.Page{}, errBackendDown
		}
	case q.Get("dataset") == DatasetDiscover:
		f.mu.Lock()
		items = marshalErrors(f.discover)
		f.mu.Unlock()
	case q.Get("dataset") == DatasetIssuePlatform:
		f.mu.Lock()
		items = marshalErrors(f.platform)
		f.mu.Unlock()
	default:
		return pagination.Page{}, fmt.Errorf("unexpected page key %q", key)
	}

	end := offset + perPage
	if end > len(items) {
		end = len(items)
	}
	var pageItems []json.RawMessage
	if offset < len(items) {
		pageItems = items[offset:end]
	}

	return pagination.Page{
		Items: pageItems,
		Next: &pagination.Cursor{
			Value:   pagination.OffsetCursor(end),
			HasMore: end < len(items),
		},
	}, nil
}

func marshalErrors(errs []ReplayError) []json.RawMessage {
	items := make([]json.RawMessage, len(errs))
	for i, e := range errs {
		items[i], _ = json.Marshal(e)
	}
	return items
}

func rawSegments(n int) []json.RawMessage {
	items := make([]json.RawMessage, n)
	for i := range items {
		items[i] = json.RawMessage(fmt.Sprintf(`{"segment_id": %d}`, i))
	}
	return items
}

func testScope() Scope {
	return Scope{Org: "acme", Project: "frontend", ReplayID: "r-123"}
}

func newTestAggregator(backend *fakeBackend) (*Aggregator, *query.Cache) {
	cache := query.NewCache()
	agg := NewAggregator(backend, cache, Config{
		Scope:   testScope(),
		PerPage: 100,
	})
	return agg, cache
}

func TestFetch_AssemblesAggregate(t *testing.T) {
	backend := newFakeBackend()
	backend.record = Record{
		ID:            "r-123",
		ProjectSlug:   "frontend",
		CountSegments: 250,
		CountErrors:   5,
	}
	backend.segments = rawSegments(250)
	backend.discover = []ReplayError{
		{ID: "e-1", Title: "TypeError: x is undefined"},
		{ID: "e-2", Title: "User Feedback"},
		{ID: "e-3", Title: "Network timeout"},
		{ID: "e-4", Title: "Special User Feedback entry"},
		{ID: "e-5", Title: "Panic"},
	}
	backend.platform = []ReplayError{
		{ID: "p-1", Title: "Slow DB query"},
	}
	backend.feedback = []FeedbackEvent{
		{ID: "e-2", Title: "User Feedback", Message: "broken page"},
		{ID: "e-4", Title: "User Feedback", Message: "cannot log in"},
	}

	agg, _ := newTestAggregator(backend)
	result := agg.Fetch(context.Background())

	if result.Status != query.StatusSuccess {
		t.Fatalf("Status = %v, want success (fetchErr=%v segErr=%v)",
			result.Status, result.FetchError, result.SegmentsError)
	}
	if result.Record == nil || result.Record.ID != "r-123" {
		t.Fatalf("Record = %+v", result.Record)
	}
	if len(result.Segments) != 250 {
		t.Errorf("Segments = %d, want 250", len(result.Segments))
	}
	// 250 items at page size 100 means exactly 3 segment page requests.
	segPath := "/projects/acme/frontend/replays/r-123/recording-segments/"
	if got := backend.count(segPath); got != 3 {
		t.Errorf("Segment page requests = %d, want 3", got)
	}
	// 5 discover errors + 1 platform error, duplicates retained,
	// source-priority order.
	if len(result.Errors) != 6 {
		t.Fatalf("Errors = %d, want 6", len(result.Errors))
	}
	if result.Errors[0].ID != "e-1" || result.Errors[5].ID != "p-1" {
		t.Errorf("Merge order wrong: first=%s last=%s", result.Errors[0].ID, result.Errors[5].ID)
	}
	if len(result.Feedback) != 2 {
		t.Errorf("Feedback = %d, want 2", len(result.Feedback))
	}
}

func TestFetch_RootErrorGatesEverything(t *testing.T) {
	backend := newFakeBackend()
	backend.failRecord = true

	agg, _ := newTestAggregator(backend)
	result := agg.Fetch(context.Background())

	if result.Status != query.StatusError {
		t.Fatalf("Status = %v, want error", result.Status)
	}
	if !errors.Is(result.FetchError, errBackendDown) {
		t.Errorf("FetchError = %v, want backend down", result.FetchError)
	}
	if result.SegmentsError != nil {
		t.Errorf("SegmentsError = %v, want nil (never attempted)", result.SegmentsError)
	}
	segPath := "/projects/acme/frontend/replays/r-123/recording-segments/"
	if got := backend.count(segPath); got != 0 {
		t.Errorf("Segment requests = %d, want 0 while gated off", got)
	}
}

func TestFetch_SegmentsErrorIsDistinct(t *testing.T) {
	backend := newFakeBackend()
	backend.record = Record{ID: "r-123", ProjectSlug: "frontend", CountSegments: 10}
	backend.failSegments = true

	agg, _ := newTestAggregator(backend)
	result := agg.Fetch(context.Background())

	if result.Status != query.StatusError {
		t.Fatalf("Status = %v, want error", result.Status)
	}
	if result.FetchError != nil {
		t.Errorf("FetchError = %v, want nil (root succeeded)", result.FetchError)
	}
	if !errors.Is(result.SegmentsError, errBackendDown) {
		t.Errorf("SegmentsError = %v, want backend down", result.SegmentsError)
	}
	if result.Record == nil {
		t.Error("Record should still be exposed when only segments failed")
	}
}

func TestFetch_ZeroErrorCountSingleCheck(t *testing.T) {
	backend := newFakeBackend()
	backend.record = Record{ID: "r-123", ProjectSlug: "frontend", CountErrors: 0}

	agg, _ := newTestAggregator(backend)
	result := agg.Fetch(context.Background())

	if result.Status != query.StatusSuccess {
		t.Fatalf("Status = %v, want success", result.Status)
	}
	if len(result.Errors) != 0 {
		t.Errorf("Errors = %d, want 0", len(result.Errors))
	}
	// Zero reported errors still costs one unconditional initial page plus
	// one overflow cursor check.
	metaPath := "/organizations/acme/replays-events-meta/"
	if got := backend.count(metaPath); got != 3 {
		// 1 discover initial + 1 discover overflow + 1 platform
		t.Errorf("Error page requests = %d, want 3", got)
	}
}

func TestRetry_RefetchesEverySource(t *testing.T) {
	backend := newFakeBackend()
	backend.record = Record{ID: "r-123", ProjectSlug: "frontend", CountErrors: 1}
	backend.discover = []ReplayError{{ID: "e-1", Title: "User Feedback"}}
	backend.feedback = []FeedbackEvent{{ID: "e-1", Title: "User Feedback"}}

	agg, _ := newTestAggregator(backend)
	first := agg.Fetch(context.Background())
	if first.Status != query.StatusSuccess {
		t.Fatalf("First fetch status = %v", first.Status)
	}

	recordPath := "/organizations/acme/replays/r-123/"
	metaPath := "/organizations/acme/replays-events-meta/"
	feedbackPath := "/organizations/acme/feedback-events/"
	recordBefore := backend.count(recordPath)
	metaBefore := backend.count(metaPath)
	feedbackBefore := backend.count(feedbackPath)

	// New platform error arrives; retry must pick it up, because every
	// contributing source is invalidated, secondary dataset included.
	backend.mu.Lock()
	backend.platform = []ReplayError{{ID: "p-1", Title: "Slow DB query"}}
	backend.mu.Unlock()

	result := agg.Retry(context.Background())

	if result.Status != query.StatusSuccess {
		t.Fatalf("Retry status = %v", result.Status)
	}
	if len(result.Errors) != 2 {
		t.Errorf("Errors = %d, want 2 after retry", len(result.Errors))
	}
	if backend.count(recordPath) != recordBefore+1 {
		t.Errorf("Record requests = %d, want %d", backend.count(recordPath), recordBefore+1)
	}
	if backend.count(metaPath) <= metaBefore {
		t.Error("Error sources were not refetched on retry")
	}
	if backend.count(feedbackPath) <= feedbackBefore {
		t.Error("Feedback lookup was not refetched on retry")
	}
}

func TestRetry_ConcurrentCallsCollapse(t *testing.T) {
	backend := newFakeBackend()
	backend.record = Record{ID: "r-123", ProjectSlug: "frontend"}

	agg, _ := newTestAggregator(backend)
	if res := agg.Fetch(context.Background()); res.Status != query.StatusSuccess {
		t.Fatalf("Initial fetch status = %v", res.Status)
	}

	recordPath := "/organizations/acme/replays/r-123/"
	before := backend.count(recordPath)

	backend.mu.Lock()
	backend.recordDelay = 100 * time.Millisecond
	backend.mu.Unlock()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		agg.Retry(context.Background())
	}()
	go func() {
		defer wg.Done()
		// Second retry lands while the first retry's root fetch is still
		// in flight and must join it instead of issuing its own.
		time.Sleep(20 * time.Millisecond)
		agg.Retry(context.Background())
	}()
	wg.Wait()

	if got := backend.count(recordPath); got != before+1 {
		t.Errorf("Record requests after two concurrent retries = %d, want %d", got, before+1)
	}
}

func TestFetch_FeedbackIdentityStability(t *testing.T) {
	backend := newFakeBackend()
	backend.record = Record{ID: "r-123", ProjectSlug: "frontend", CountErrors: 2}
	backend.discover = []ReplayError{
		{ID: "e-1", Title: "User Feedback"},
		{ID: "e-2", Title: "User Feedback"},
	}
	backend.feedback = []FeedbackEvent{
		{ID: "e-1", Title: "User Feedback"},
		{ID: "e-2", Title: "User Feedback"},
	}

	agg, cache := newTestAggregator(backend)
	first := agg.Fetch(context.Background())
	if len(first.Feedback) != 2 {
		t.Fatalf("Feedback = %d, want 2", len(first.Feedback))
	}

	// Reorder the same two feedback errors and drop the error caches so the
	// merge re-runs. Same id count: the exposed feedback slice must keep
	// its identity.
	backend.mu.Lock()
	backend.discover = []ReplayError{
		{ID: "e-2", Title: "User Feedback"},
		{ID: "e-1", Title: "User Feedback"},
	}
	backend.mu.Unlock()
	scope := testScope()
	cache.Invalidate(
		scope.ErrorsKey(DatasetDiscover, "initial"),
		scope.ErrorsKey(DatasetDiscover, "overflow"),
		scope.ErrorsKey(DatasetIssuePlatform, "all"),
	)

	second := agg.Fetch(context.Background())
	if len(second.Feedback) != 2 {
		t.Fatalf("Feedback after reorder = %d, want 2", len(second.Feedback))
	}
	if &first.Feedback[0] != &second.Feedback[0] {
		t.Error("Feedback slice identity changed although the id count did not")
	}

	// A third feedback error is a material change: new identity, new count.
	backend.mu.Lock()
	backend.record.CountErrors = 3
	backend.discover = append(backend.discover, ReplayError{ID: "e-3", Title: "User Feedback"})
	backend.feedback = append(backend.feedback, FeedbackEvent{ID: "e-3", Title: "User Feedback"})
	backend.mu.Unlock()

	third := agg.Retry(context.Background())
	if len(third.Feedback) != 3 {
		t.Fatalf("Feedback after growth = %d, want 3", len(third.Feedback))
	}
}

func TestSnapshot_BeforeFetchIsPending(t *testing.T) {
	backend := newFakeBackend()
	agg, _ := newTestAggregator(backend)

	snap := agg.Snapshot()
	if snap.Status != query.StatusPending {
		t.Errorf("Status = %v, want pending before any fetch", snap.Status)
	}
	if snap.Record != nil {
		t.Errorf("Record = %+v, want nil", snap.Record)
	}
}

func TestFetch_EmptyProjectGatesSegments(t *testing.T) {
	backend := newFakeBackend()
	backend.record = Record{ID: "r-123", ProjectSlug: "frontend", CountSegments: 10}
	backend.segments = rawSegments(10)

	cache := query.NewCache()
	agg := NewAggregator(backend, cache, Config{
		Scope:   Scope{Org: "acme", Project: "", ReplayID: "r-123"},
		PerPage: 100,
	})

	result := agg.Fetch(context.Background())

	segPath := "/projects/acme//replays/r-123/recording-segments/"
	if got := backend.count(segPath); got != 0 {
		t.Errorf("Segment requests = %d, want 0 with unresolved project", got)
	}
	// Segments never enabled: it is skipped by the reduction, not counted
	// as pending.
	if result.Status != query.StatusSuccess {
		t.Errorf("Status = %v, want success with segments gated off", result.Status)
	}
	if len(result.Segments) != 0 {
		t.Errorf("Segments = %d, want 0", len(result.Segments))
	}
}
