// Package query implements a keyed in-memory query cache with explicit
// subscriptions. Every fetch result is stored under a stable string key;
// invalidation (drop and refetch) is the only mutation primitive. Concurrent
// fetches for the same key are collapsed into a single flight, so callers may
// retry aggressively without issuing duplicate requests.
package query

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

// Status is the lifecycle state of a single keyed fetch.
type Status int

const (
	// StatusPending means the fetch has not settled yet (or was never enabled).
	StatusPending Status = iota

	// StatusError means the fetch settled with an error.
	StatusError

	// StatusSuccess means the fetch settled successfully.
	StatusSuccess
)

// String returns the lowercase name of the status.
func (s Status) String() string {
	switch s {
	case StatusError:
		return "error"
	case StatusSuccess:
		return "success"
	default:
		return "pending"
	}
}

// Reduce derives a single aggregate status from the statuses of every
// contributing fetch: error dominates, then pending, else success.
// Reducing zero statuses yields success.
func Reduce(statuses ...Status) Status {
	pending := false
	for _, s := range statuses {
		switch s {
		case StatusError:
			return StatusError
		case StatusPending:
			pending = true
		}
	}
	if pending {
		return StatusPending
	}
	return StatusSuccess
}

// FetchFunc produces the raw payload for a query key.
type FetchFunc func(ctx context.Context) ([]byte, error)

// Options controls how a single Query call behaves.
type Options struct {
	// Enabled gates the fetch. A disabled query issues no request and
	// reports StatusPending indefinitely.
	Enabled bool

	// StaleTime is how long a settled result stays fresh. Zero means the
	// result never goes stale on its own; only Invalidate drops it.
	StaleTime time.Duration

	// RefetchInterval, when positive, re-runs the fetch on a fixed interval
	// while at least one subscriber is attached to the key. The interval
	// ignores window/process focus entirely.
	RefetchInterval time.Duration
}

// Result is the observable state of a keyed fetch.
type Result struct {
	Data      []byte
	Status    Status
	Err       error
	FetchedAt time.Time
}

type entry struct {
	result       Result
	fetch        FetchFunc
	refetchEvery time.Duration
	subscribers  map[int]func(Result)
	nextSubID    int
	stopPoll     chan struct{}
}

// Cache is a keyed query cache. The zero value is not usable; use NewCache.
type Cache struct {
	mu      sync.Mutex
	entries map[string]*entry
	group   singleflight.Group
	logger  zerolog.Logger
}

// NewCache creates an empty query cache.
func NewCache() *Cache {
	return &Cache{
		entries: make(map[string]*entry),
		logger:  log.With().Str("component", "query-cache").Logger(),
	}
}

// Query returns the cached result for key, fetching it first if the key is
// missing, stale, or was invalidated. The call blocks until the fetch
// settles. Concurrent calls for the same key share one fetch. A disabled
// query returns a pending result without touching the network.
func (c *Cache) Query(ctx context.Context, key string, fetch FetchFunc, opts Options) Result {
	if !opts.Enabled {
		return Result{Status: StatusPending}
	}

	c.mu.Lock()
	e := c.ensureEntryLocked(key)
	e.fetch = fetch
	if opts.RefetchInterval > 0 {
		e.refetchEvery = opts.RefetchInterval
		c.maybeStartPollLocked(key, e)
	}
	res := e.result
	c.mu.Unlock()

	if res.Status != StatusPending && !isStale(res, opts.StaleTime) {
		queryCacheHits.Inc()
		return res
	}
	queryCacheMisses.Inc()

	return c.runFetch(ctx, key, fetch)
}

// Get returns the current result for key without triggering a fetch.
// The second return value reports whether the key has an entry at all.
func (c *Cache) Get(key string) (Result, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return Result{Status: StatusPending}, false
	}
	return e.result, true
}

// Refetch re-runs the stored fetch for key in place and notifies
// subscribers. It is a no-op for keys that were never queried.
func (c *Cache) Refetch(ctx context.Context, key string) Result {
	c.mu.Lock()
	e, ok := c.entries[key]
	if !ok || e.fetch == nil {
		c.mu.Unlock()
		return Result{Status: StatusPending}
	}
	fetch := e.fetch
	c.mu.Unlock()

	return c.runFetch(ctx, key, fetch)
}

// Invalidate drops the cached results for the given keys and notifies their
// subscribers with a pending result. Subscriptions and stored fetch
// functions survive invalidation, so a subsequent Query or Refetch re-runs
// from scratch.
func (c *Cache) Invalidate(keys ...string) {
	for _, key := range keys {
		c.mu.Lock()
		e, ok := c.entries[key]
		if !ok {
			c.mu.Unlock()
			continue
		}
		e.result = Result{Status: StatusPending}
		subs := subscriberList(e)
		c.mu.Unlock()

		queryInvalidations.Inc()
		c.logger.Debug().Str("key", key).Msg("Query invalidated")

		for _, fn := range subs {
			fn(Result{Status: StatusPending})
		}
	}
}

// Subscribe attaches fn to key; fn is called with every subsequent state
// transition of the key (settle, invalidate, poll refresh). The returned
// function detaches the subscriber. Interval refetching for the key runs
// only while at least one subscriber is attached.
func (c *Cache) Subscribe(key string, fn func(Result)) (unsubscribe func()) {
	c.mu.Lock()
	e := c.ensureEntryLocked(key)
	id := e.nextSubID
	e.nextSubID++
	e.subscribers[id] = fn
	c.maybeStartPollLocked(key, e)
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		e, ok := c.entries[key]
		if !ok {
			return
		}
		delete(e.subscribers, id)
		if len(e.subscribers) == 0 && e.stopPoll != nil {
			close(e.stopPoll)
			e.stopPoll = nil
		}
	}
}

// runFetch executes fetch through the singleflight group, stores the settled
// result, and notifies subscribers.
func (c *Cache) runFetch(ctx context.Context, key string, fetch FetchFunc) Result {
	v, err, shared := c.group.Do(key, func() (interface{}, error) {
		data, err := fetch(ctx)
		return data, err
	})
	if shared {
		queryFetchesDeduped.Inc()
	}

	res := Result{FetchedAt: time.Now()}
	if err != nil {
		res.Status = StatusError
		res.Err = err
	} else {
		res.Status = StatusSuccess
		res.Data, _ = v.([]byte)
	}

	c.mu.Lock()
	e := c.ensureEntryLocked(key)
	e.fetch = fetch
	e.result = res
	subs := subscriberList(e)
	c.mu.Unlock()

	if err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("Query fetch failed")
	}

	for _, fn := range subs {
		fn(res)
	}
	return res
}

// maybeStartPollLocked starts the interval refetch loop for an entry that
// has both a positive interval and at least one subscriber. Caller holds mu.
func (c *Cache) maybeStartPollLocked(key string, e *entry) {
	if e.refetchEvery <= 0 || len(e.subscribers) == 0 || e.stopPoll != nil {
		return
	}
	stop := make(chan struct{})
	e.stopPoll = stop
	interval := e.refetchEvery

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				c.Refetch(context.Background(), key)
			}
		}
	}()
}

func (c *Cache) ensureEntryLocked(key string) *entry {
	e, ok := c.entries[key]
	if !ok {
		e = &entry{
			result:      Result{Status: StatusPending},
			subscribers: make(map[int]func(Result)),
		}
		c.entries[key] = e
	}
	return e
}

func subscriberList(e *entry) []func(Result) {
	if len(e.subscribers) == 0 {
		return nil
	}
	subs := make([]func(Result), 0, len(e.subscribers))
	for _, fn := range e.subscribers {
		subs = append(subs, fn)
	}
	return subs
}

func isStale(res Result, staleTime time.Duration) bool {
	if staleTime <= 0 {
		return false
	}
	return time.Since(res.FetchedAt) > staleTime
}
