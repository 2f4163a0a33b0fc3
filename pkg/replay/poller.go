package replay

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/sessionkit/replay-client/pkg/query"
)

// DefaultPollInterval is how often the poller re-fetches the root record.
const DefaultPollInterval = 30 * time.Second

// Poller re-fetches only the root replay record on a fixed interval,
// independent of the aggregator. It shares the aggregator's record cache
// key, so a poll tick refreshes the aggregator's root dependency with no
// explicit coordination channel; the shared cache entry and its subscriber
// list are the whole contract.
type Poller struct {
	cache       *query.Cache
	scope       Scope
	fetch       query.FetchFunc
	interval    time.Duration
	logger      zerolog.Logger
	unsubscribe func()
}

// NewPoller creates a poller for one replay's root record. A non-positive
// interval falls back to DefaultPollInterval.
func NewPoller(backend Backend, cache *query.Cache, scope Scope, interval time.Duration) *Poller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}

	return &Poller{
		cache:    cache,
		scope:    scope,
		fetch:    RecordFetch(backend, scope),
		interval: interval,
		logger: log.With().
			Str("component", "replay-poller").
			Str("replay_id", scope.ReplayID).
			Logger(),
	}
}

// Start issues the initial record fetch and keeps the interval refetch loop
// alive until Stop. onUpdate, if non-nil, observes every state transition of
// the record entry, including transitions caused by other consumers.
func (p *Poller) Start(ctx context.Context, onUpdate func(*Record)) query.Result {
	key := p.scope.RecordKey()

	p.unsubscribe = p.cache.Subscribe(key, func(res query.Result) {
		if onUpdate == nil {
			return
		}
		var rec *Record
		if res.Status == query.StatusSuccess {
			rec, _ = ParseRecord(res.Data)
		}
		onUpdate(rec)
	})

	p.logger.Debug().Dur("interval", p.interval).Msg("Starting record poll")

	return p.cache.Query(ctx, key, p.fetch, query.Options{
		Enabled:         true,
		RefetchInterval: p.interval,
	})
}

// Stop detaches the poller's subscription. The interval loop ends once the
// record entry has no subscribers left.
func (p *Poller) Stop() {
	if p.unsubscribe != nil {
		p.unsubscribe()
		p.unsubscribe = nil
	}
	p.logger.Debug().Msg("Stopped record poll")
}
