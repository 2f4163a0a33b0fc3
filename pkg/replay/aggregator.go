package replay

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/sessionkit/replay-client/pkg/pagination"
	"github.com/sessionkit/replay-client/pkg/query"
)

// Error dataset names.
const (
	DatasetDiscover      = "discover"
	DatasetIssuePlatform = "issuePlatform"
)

// Backend is the HTTP surface the aggregator consumes. *client.Client
// implements it.
type Backend interface {
	pagination.PageFetcher
	GetBody(ctx context.Context, endpoint string) ([]byte, http.Header, error)
}

// Node indices of the aggregator's fetch graph, in contribution order.
const (
	nodeRoot = iota
	nodeSegments
	nodeErrorsInitial
	nodeErrorsOverflow
	nodeErrorsPlatform
	nodeFeedback
	nodeCount
)

// nodeState records where a node's result lives and whether the node was
// ever enabled. Nodes that were never enabled are skipped by the status
// reduction.
type nodeState struct {
	key     string
	enabled bool
}

// Config holds aggregator configuration.
type Config struct {
	// Scope identifies the replay to assemble.
	Scope Scope

	// PerPage is the page size for every paginated collection.
	PerPage int

	// Batch configures the parallel-by-count strategy.
	Batch pagination.Config

	// Cursor configures the sequential-by-cursor strategy.
	Cursor pagination.CursorConfig
}

// Aggregate is one consistent snapshot of the assembled replay.
type Aggregate struct {
	Record   *Record
	Segments []json.RawMessage
	Errors   []ReplayError
	Feedback []FeedbackEvent

	// Status is the reduction over every contributing fetch: error if any
	// errored, else pending if any is unsettled, else success.
	Status query.Status

	// FetchError is the root record's error, exposed separately so callers
	// can message it differently.
	FetchError error

	// SegmentsError is the segments fetch's error, also exposed separately.
	// All other errors are folded into Status.
	SegmentsError error
}

// Aggregator assembles a replay from its contributing fetches. The fetches
// form a small dependency graph: the root record gates everything, the
// discover dataset's overflow continuation follows its initial pages, and
// the feedback lookup derives from the merged error collection. Each node's
// enabled predicate is evaluated against upstream results on every Fetch.
type Aggregator struct {
	backend Backend
	cache   *query.Cache
	batch   *pagination.BatchFetcher
	cursor  *pagination.CursorFetcher
	scope   Scope
	perPage int
	logger  zerolog.Logger

	mu               sync.Mutex
	nodes            [nodeCount]nodeState
	record           *Record
	segments         []json.RawMessage
	discoverInitial  []ReplayError
	discoverOverflow []ReplayError
	platform         []ReplayError
	feedback         []FeedbackEvent
	feedbackIDCount  int
}

// NewAggregator creates an aggregator for one replay. The query cache may be
// shared with other consumers (the poller); coordination happens through
// cache-key identity.
func NewAggregator(backend Backend, cache *query.Cache, cfg Config) *Aggregator {
	perPage := cfg.PerPage
	if perPage <= 0 {
		perPage = 100
	}

	a := &Aggregator{
		backend: backend,
		cache:   cache,
		batch:   pagination.NewBatchFetcher(backend, cfg.Batch),
		cursor:  pagination.NewCursorFetcher(backend, cfg.Cursor),
		scope:   cfg.Scope,
		perPage: perPage,
		logger: log.With().
			Str("component", "replay-aggregator").
			Str("replay_id", cfg.Scope.ReplayID).
			Logger(),
		feedbackIDCount: -1,
	}

	a.nodes[nodeRoot] = nodeState{key: a.scope.RecordKey()}
	a.nodes[nodeSegments] = nodeState{key: a.scope.SegmentsKey()}
	a.nodes[nodeErrorsInitial] = nodeState{key: a.scope.ErrorsKey(DatasetDiscover, "initial")}
	a.nodes[nodeErrorsOverflow] = nodeState{key: a.scope.ErrorsKey(DatasetDiscover, "overflow")}
	a.nodes[nodeErrorsPlatform] = nodeState{key: a.scope.ErrorsKey(DatasetIssuePlatform, "all")}
	return a
}

// Fetch walks the fetch graph once: root record, then the gated collection
// fetches, then the derived feedback lookup. Already-settled nodes are
// served from the query cache, so Fetch is cheap to call again after a poll
// tick or partial settlement. The returned snapshot reflects every node's
// state after the walk.
func (a *Aggregator) Fetch(ctx context.Context) Aggregate {
	rootRes := a.queryNode(ctx, nodeRoot, true, RecordFetch(a.backend, a.scope))

	var rec *Record
	if rootRes.Status == query.StatusSuccess {
		rec, _ = ParseRecord(rootRes.Data)
		a.mu.Lock()
		a.record = rec
		a.mu.Unlock()
	}
	rootOK := rec != nil

	// Middle tier: segments and both error datasets run concurrently once
	// the root record is available. The discover overflow continuation
	// additionally waits for the initial discover pages, because its start
	// cursor is computed from their page boundaries.
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		enabled := rootOK && a.scope.Project != "" && a.scope.ReplayID != ""
		var total int
		if rec != nil {
			total = rec.CountSegments
		}
		res := a.queryNode(ctx, nodeSegments, enabled,
			a.batchFetch(a.scope.SegmentPageKey, total))
		if res.Status == query.StatusSuccess {
			var items []json.RawMessage
			if err := json.Unmarshal(res.Data, &items); err == nil {
				a.mu.Lock()
				a.segments = items
				a.mu.Unlock()
			}
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		var total int
		if rec != nil {
			total = rec.CountErrors
		}
		res := a.queryNode(ctx, nodeErrorsInitial, rootOK,
			a.batchFetch(a.scope.ErrorPageKey(DatasetDiscover), total))
		if res.Status != query.StatusSuccess {
			return
		}
		if errs, err := decodeErrors(res.Data); err == nil {
			a.mu.Lock()
			a.discoverInitial = errs
			a.mu.Unlock()
		}

		// Overflow continuation: always attempted once the initial pages
		// settle, even when the reported count is zero, so late-arriving
		// errors past the counted boundary are still picked up.
		initialPages := pagesFor(total, a.perPage)
		overflowRes := a.queryNode(ctx, nodeErrorsOverflow, true,
			a.cursorFetch(a.scope.ErrorPageKey(DatasetDiscover),
				pagination.OffsetCursor(initialPages*a.perPage)))
		if overflowRes.Status != query.StatusSuccess {
			return
		}
		if errs, err := decodeErrors(overflowRes.Data); err == nil {
			a.mu.Lock()
			a.discoverOverflow = errs
			a.mu.Unlock()
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		res := a.queryNode(ctx, nodeErrorsPlatform, rootOK,
			a.cursorFetch(a.scope.ErrorPageKey(DatasetIssuePlatform), ""))
		if res.Status != query.StatusSuccess {
			return
		}
		if errs, err := decodeErrors(res.Data); err == nil {
			a.mu.Lock()
			a.platform = errs
			a.mu.Unlock()
		}
	}()

	wg.Wait()

	a.fetchFeedback(ctx, rec)

	return a.Snapshot()
}

// fetchFeedback runs the derived lookup once every error source has settled
// successfully. The lookup is keyed by the id count, so re-merging the same
// set of ids in a different order hits the same cache entry and the exposed
// feedback slice keeps its identity; only a changed count forces a new
// lookup.
func (a *Aggregator) fetchFeedback(ctx context.Context, rec *Record) {
	a.mu.Lock()
	initialKey := a.nodes[nodeErrorsInitial].key
	overflowKey := a.nodes[nodeErrorsOverflow].key
	platformKey := a.nodes[nodeErrorsPlatform].key
	merged := MergeErrors(a.discoverInitial, a.discoverOverflow, a.platform)
	lastCount := a.feedbackIDCount
	a.mu.Unlock()

	enabled := rec != nil &&
		a.nodeSettled(initialKey) &&
		a.nodeSettled(overflowKey) &&
		a.nodeSettled(platformKey)
	ids := FeedbackIDs(merged)

	a.mu.Lock()
	a.nodes[nodeFeedback].key = a.scope.FeedbackKey(len(ids))
	a.mu.Unlock()

	res := a.queryNode(ctx, nodeFeedback, enabled, a.feedbackFetch(ids))
	if res.Status != query.StatusSuccess {
		return
	}

	// Same id count as last time: keep the previous slice identity so
	// downstream consumers see no material change.
	if len(ids) == lastCount {
		return
	}

	var items []json.RawMessage
	if err := json.Unmarshal(res.Data, &items); err != nil {
		return
	}
	events, err := ParseFeedback(items)
	if err != nil {
		return
	}

	a.mu.Lock()
	a.feedback = events
	a.feedbackIDCount = len(ids)
	a.mu.Unlock()
}

// Snapshot returns the current assembled state without issuing any fetches.
func (a *Aggregator) Snapshot() Aggregate {
	a.mu.Lock()
	defer a.mu.Unlock()

	agg := Aggregate{
		Record:   a.record,
		Segments: a.segments,
		Errors:   MergeErrors(a.discoverInitial, a.discoverOverflow, a.platform),
		Feedback: a.feedback,
	}

	if !a.nodes[nodeRoot].enabled {
		// Nothing has been fetched yet.
		agg.Status = query.StatusPending
		return agg
	}

	statuses := make([]query.Status, 0, nodeCount)
	for i, n := range a.nodes {
		if !n.enabled {
			continue
		}
		res, _ := a.cache.Get(n.key)
		statuses = append(statuses, res.Status)
		switch i {
		case nodeRoot:
			agg.FetchError = res.Err
		case nodeSegments:
			agg.SegmentsError = res.Err
		}
	}
	agg.Status = query.Reduce(statuses...)
	return agg
}

// Retry drops the cached results of every contributing fetch and re-runs the
// whole graph from scratch. Every contributing key is invalidated, including
// the secondary dataset and the derived lookup, so a retry can never expose
// stale secondary errors or stale feedback. Concurrent retries collapse into
// one set of fetches through the query cache's single-flight grouping, so
// Retry is safe to call repeatedly.
func (a *Aggregator) Retry(ctx context.Context) Aggregate {
	a.mu.Lock()
	keys := make([]string, 0, nodeCount)
	for _, n := range a.nodes {
		if n.key != "" {
			keys = append(keys, n.key)
		}
	}
	a.record = nil
	a.segments = nil
	a.discoverInitial = nil
	a.discoverOverflow = nil
	a.platform = nil
	a.feedback = nil
	a.feedbackIDCount = -1
	a.mu.Unlock()

	a.logger.Info().Msg("Retrying replay aggregate")
	a.cache.Invalidate(keys...)

	return a.Fetch(ctx)
}

// queryNode runs one node's fetch through the query cache, recording whether
// the node has ever been enabled.
func (a *Aggregator) queryNode(ctx context.Context, node int, enabled bool, fetch query.FetchFunc) query.Result {
	a.mu.Lock()
	if enabled {
		a.nodes[node].enabled = true
	}
	key := a.nodes[node].key
	a.mu.Unlock()

	return a.cache.Query(ctx, key, fetch, query.Options{Enabled: enabled})
}

func (a *Aggregator) nodeSettled(key string) bool {
	res, _ := a.cache.Get(key)
	return res.Status == query.StatusSuccess
}

// batchFetch wraps a parallel-by-count fetch as a query FetchFunc. The
// settled item list is stored marshaled, keeping the query cache's payload
// type uniform.
func (a *Aggregator) batchFetch(key pagination.KeyFunc, total int) query.FetchFunc {
	return func(ctx context.Context) ([]byte, error) {
		res := a.batch.FetchAll(ctx, pagination.BatchRequest{
			Key:     key,
			Total:   total,
			PerPage: a.perPage,
			Enabled: true,
		})
		if res.Err != nil {
			return nil, res.Err
		}
		return json.Marshal(res.Items)
	}
}

// cursorFetch wraps a sequential-by-cursor fetch as a query FetchFunc.
func (a *Aggregator) cursorFetch(key pagination.KeyFunc, initialCursor string) query.FetchFunc {
	return func(ctx context.Context) ([]byte, error) {
		res := a.cursor.FetchAll(ctx, pagination.CursorRequest{
			Key:           key,
			InitialCursor: initialCursor,
			PerPage:       a.perPage,
			Enabled:       true,
		})
		if res.Err != nil {
			return nil, res.Err
		}
		return json.Marshal(res.Items)
	}
}

// feedbackFetch wraps the derived feedback lookup as a query FetchFunc.
func (a *Aggregator) feedbackFetch(ids []string) query.FetchFunc {
	return func(ctx context.Context) ([]byte, error) {
		body, _, err := a.backend.GetBody(ctx, a.scope.FeedbackEndpoint(ids))
		if err != nil {
			return nil, err
		}
		var payload struct {
			Data []json.RawMessage `json:"data"`
		}
		if err := json.Unmarshal(body, &payload); err != nil {
			return nil, fmt.Errorf("decode feedback lookup: %w", err)
		}
		return json.Marshal(payload.Data)
	}
}

// RecordFetch builds the root record's FetchFunc. The aggregator and the
// poller both use it against the same cache key.
func RecordFetch(backend Backend, scope Scope) query.FetchFunc {
	return func(ctx context.Context) ([]byte, error) {
		body, _, err := backend.GetBody(ctx, scope.RecordKey())
		if err != nil {
			return nil, err
		}
		if _, err := ParseRecord(body); err != nil {
			return nil, err
		}
		return body, nil
	}
}

func decodeErrors(data []byte) ([]ReplayError, error) {
	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, err
	}
	return ParseErrors(items)
}

// pagesFor is the number of pages a parallel-by-count fetch issues: always
// at least one, the first page being unconditional.
func pagesFor(total, perPage int) int {
	if total <= 0 {
		return 1
	}
	return (total + perPage - 1) / perPage
}
