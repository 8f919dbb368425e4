// Package coalesce implements single-flight deduplication of concurrent origin
// fetches by cache key (SPEC_FULL.md §4.E), composing golang.org/x/sync/singleflight
// (the actual call-dedup primitive) with a TTL bookkeeping layer built on
// patrickmn/go-cache, since singleflight.Group alone exposes neither reference counts
// nor eviction introspection. The bookkeeping map has no size limit and no LRU
// eviction: an entry leaves it when its last caller releases it or when its TTL
// expires.
package coalesce

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"

	"github.com/livepeer/videogw/config"
	"github.com/livepeer/videogw/log"
	"github.com/livepeer/videogw/metrics"
)

// Result is the shared outcome of one coalesced origin fetch. It is handed to every
// caller sharing a key (singleflight.Group.Do returns the same value to leader and
// joiners alike), so it carries only data that is identical for all of them — which
// caller initiated the fetch is tracked separately by Execute's return value.
type Result struct {
	Body       []byte
	StatusCode int
	Header     map[string][]string
}

// entry is the bookkeeping record kept in the TTL map (§3 InFlightEntry).
type entry struct {
	startTime      time.Time
	requestURL     string
	isRangeRequest bool
	refCount       int
}

// Coalescer deduplicates concurrent fetches for identical cache keys.
type Coalescer struct {
	group    singleflight.Group
	mu       sync.Mutex
	inFlight *cache.Cache
	sem      chan struct{}
}

// New builds a Coalescer with config.InFlightTTL per tracked entry and at most
// config.MaxConcurrentOrigin concurrent origin fetches. The number of tracked keys is
// not capped; config.MaxInFlightEntries is not applied here.
func New() *Coalescer {
	c := &Coalescer{
		inFlight: cache.New(config.InFlightTTL, config.InFlightTTL/2),
		sem:      make(chan struct{}, config.MaxConcurrentOrigin),
	}
	// A TTL-driven eviction while refCount > 0 means some caller never released its
	// reference — leave() is the only other deletion path, and it only deletes once
	// refCount reaches zero.
	c.inFlight.OnEvicted(func(key string, value interface{}) {
		e := value.(*entry)
		if e.refCount > 0 {
			log.LogNoRequestID("in-flight entry evicted while still referenced", "key", key, "ref_count", e.refCount, "age", time.Since(e.startTime))
		}
	})
	return c
}

// ErrTooManyInFlight is returned when the concurrency limit is exceeded.
type ErrTooManyInFlight struct{ Key string }

func (e ErrTooManyInFlight) Error() string {
	return fmt.Sprintf("coalesce: too many concurrent origin fetches for key %q", e.Key)
}

// Execute runs fetch() at most once per concurrently-active key, fanning its single
// result out to every caller sharing that key. Range-ness is recorded for diagnostics
// but does not segregate coalescing (§4.E). The returned bool is true for exactly one
// caller per in-flight key: whichever one's join() call found no existing entry and
// created it. This is tracked independently of singleflight's own leader/follower
// split, since group.Do hands the same *Result to every caller and so cannot be used
// to tell them apart.
func (c *Coalescer) Execute(ctx context.Context, key, requestURL string, isRangeRequest bool, fetch func(ctx context.Context) (*Result, error)) (*Result, bool, error) {
	select {
	case c.sem <- struct{}{}:
		defer func() { <-c.sem }()
	default:
		return nil, false, ErrTooManyInFlight{Key: key}
	}

	isFirst := c.join(key, requestURL, isRangeRequest)
	defer c.leave(key)

	v, err, shared := c.group.Do(key, func() (interface{}, error) {
		metrics.Metrics.Coalesce.Leader.Inc()
		return fetch(ctx)
	})
	if shared {
		metrics.Metrics.Coalesce.Joined.Inc()
	}
	if err != nil {
		return nil, false, err
	}
	return v.(*Result), isFirst, nil
}

// join registers the caller against key's in-flight entry, creating it if absent, and
// reports whether this call was the one that created it.
func (c *Coalescer) join(key, requestURL string, isRangeRequest bool) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if existing, ok := c.inFlight.Get(key); ok {
		e := existing.(*entry)
		e.refCount++
		c.inFlight.Set(key, e, config.InFlightTTL)
		return false
	}

	e := &entry{startTime: config.Clock.GetTime(), requestURL: requestURL, isRangeRequest: isRangeRequest, refCount: 1}
	c.inFlight.Set(key, e, config.InFlightTTL)
	c.updateGauge()
	return true
}

func (c *Coalescer) leave(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	existing, ok := c.inFlight.Get(key)
	if !ok {
		return
	}
	e := existing.(*entry)
	e.refCount--
	if e.refCount <= 0 {
		c.inFlight.Delete(key)
		c.updateGauge()
		return
	}
	c.inFlight.Set(key, e, config.InFlightTTL)
}

func (c *Coalescer) updateGauge() {
	metrics.Metrics.Coalesce.InFlightGauge.Set(float64(c.inFlight.ItemCount()))
}

