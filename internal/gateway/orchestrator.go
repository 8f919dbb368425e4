// Package gateway implements the cache orchestrator: the read-through path that ties
// the cache key builder, request coalescer, chunked KV store, and version service
// together (SPEC_FULL.md §4.G).
package gateway

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strconv"

	"github.com/livepeer/videogw/internal/coalesce"
	"github.com/livepeer/videogw/internal/kvstore"
	"github.com/livepeer/videogw/internal/rangeio"
	"github.com/livepeer/videogw/internal/version"
	"github.com/livepeer/videogw/log"
)

// Response is the orchestrator's http-agnostic result shape; rangeio.Response is
// reused directly since the range handler operates on exactly this shape.
type Response = rangeio.Response

// Handler is the caller-supplied closure that performs the actual transform-invoker
// pipeline (origin resolution, backend call) on a cache miss.
type Handler func(ctx context.Context) (*Response, error)

// BypassQueryKeys are the query parameters that, when present with any value, skip
// the cache entirely regardless of HTTP method (§4.G step 2, §6 "nocache", "bypass").
var BypassQueryKeys = []string{"nocache", "bypass"}

// Result is the outcome of WithCaching: the response to return to the client plus
// cache bookkeeping the caller (handler entry, §4.M) needs for response headers.
type Result struct {
	Response *Response
	CacheHit bool
	Version  int
	// IsFirstRequest is true only for the caller that created the coalescer's
	// in-flight entry for the key, mirroring scenario S3's diagnostics tag.
	IsFirstRequest bool
}

// Orchestrator composes the coalescer, KV store, and version service into the
// read-through caching contract of §4.G.
type Orchestrator struct {
	kv        *kvstore.Store
	coalescer *coalesce.Coalescer
	versions  *version.Service
}

// New builds an Orchestrator. kv or versions may be nil to disable durable caching
// entirely (e.g. cache.enableKVCache=false); the coalescer is always required since
// it also protects against duplicate concurrent origin fetches when KV is off.
func New(kv *kvstore.Store, coalescer *coalesce.Coalescer, versions *version.Service) *Orchestrator {
	return &Orchestrator{kv: kv, coalescer: coalescer, versions: versions}
}

// ShouldBypass reports whether req should skip the cache entirely: non-GET methods,
// or any configured bypass query key present (§4.G step 2, §8 property 6).
func ShouldBypass(method string, query map[string][]string) bool {
	if method != http.MethodGet {
		return true
	}
	for _, key := range BypassQueryKeys {
		if _, present := query[key]; present {
			return true
		}
	}
	return false
}

// WithCaching implements §4.G's contract: bypass check is the caller's responsibility
// via ShouldBypass (handler entry decides whether to call WithCaching at all); this
// method performs the read-through: KV → coalesced origin fetch → write-back.
func (o *Orchestrator) WithCaching(ctx context.Context, key, requestURL string, isRangeRequest bool, ttlSeconds int, cacheTags []string, handler Handler) (*Result, error) {
	if o.kv != nil {
		if res, ver, ok := o.readHit(ctx, key); ok {
			return &Result{Response: res, CacheHit: true, Version: ver}, nil
		}
	}

	fetchResult, isFirst, err := o.coalescer.Execute(ctx, key, requestURL, isRangeRequest, func(ctx context.Context) (*coalesce.Result, error) {
		res, err := handler(ctx)
		if err != nil {
			return nil, err
		}
		return &coalesce.Result{Body: res.Body, StatusCode: res.StatusCode, Header: res.Header}, nil
	})
	if err != nil {
		return nil, err
	}

	resp := &Response{StatusCode: fetchResult.StatusCode, Header: http.Header(fetchResult.Header), Body: fetchResult.Body}

	ver := 1
	if o.versions != nil {
		if v, err := o.versions.Next(ctx, key, false); err == nil {
			ver = v
		} else {
			log.LogNoRequestID("version service error, defaulting to v1", "key", key, "error", err)
		}
	}

	if o.kv != nil && fetchResult.StatusCode == http.StatusOK {
		o.persistInBackground(key, resp, ttlSeconds, ver, cacheTags)
	}

	return &Result{Response: resp, CacheHit: false, Version: ver, IsFirstRequest: isFirst}, nil
}

// PersistFallback schedules a fire-and-forget KV write-back for a response obtained
// outside the normal coalesced fetch path — the §4.K fallback fetch — so a repeat
// request for the same key is served from cache instead of re-triggering the
// already-failing backend. Mirrors the version-advance-then-persist sequencing
// WithCaching uses for an ordinary miss.
func (o *Orchestrator) PersistFallback(ctx context.Context, key string, resp *Response, ttlSeconds int, cacheTags []string) {
	if o.kv == nil {
		return
	}
	ver := 1
	if o.versions != nil {
		if v, err := o.versions.Next(ctx, key, false); err == nil {
			ver = v
		} else {
			log.LogNoRequestID("version service error, defaulting to v1", "key", key, "error", err)
		}
	}
	o.persistInBackground(key, resp, ttlSeconds, ver, cacheTags)
}

// readHit attempts a KV read-through. Any cache-layer error is swallowed: the caller
// falls through to the coalesced origin fetch (§7 propagation policy).
func (o *Orchestrator) readHit(ctx context.Context, key string) (*Response, int, bool) {
	body, manifest, err := o.kv.Get(ctx, key)
	if err != nil {
		return nil, 0, false
	}
	defer body.Close()

	data, err := io.ReadAll(body)
	if err != nil {
		log.LogNoRequestID("cache read error, falling through to origin", "key", key, "error", err)
		return nil, 0, false
	}

	header := http.Header{}
	header.Set("Content-Type", manifest.ContentType)
	header.Set("Content-Length", strconv.FormatInt(manifest.TotalSize, 10))
	return &Response{StatusCode: http.StatusOK, Header: header, Body: data}, manifest.Version, true
}

// persistInBackground schedules the fire-and-forget KV write-back. The response
// returned to the client already owns resp.Body (a fully materialized byte slice),
// so the background write is free to read it concurrently.
func (o *Orchestrator) persistInBackground(key string, resp *Response, ttlSeconds, ver int, cacheTags []string) {
	body := resp.Body
	contentType := resp.Header.Get("Content-Type")
	go func() {
		ctx := context.Background()
		_, err := o.kv.Put(ctx, key, bytes.NewReader(body), int64(len(body)), contentType, ttlSeconds, ver, cacheTags)
		if err != nil {
			log.LogNoRequestID("cache write-back failed", "key", key, "error", err)
		}
	}()
}
