// Package handlers wires the request-handling pipeline together: parameter
// translation, origin resolution, options resolution, cache orchestration, range
// servicing, and diagnostics (SPEC_FULL.md §4.M).
package handlers

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/julienschmidt/httprouter"

	"github.com/livepeer/videogw/clients"
	"github.com/livepeer/videogw/config"
	xerrors "github.com/livepeer/videogw/errors"
	"github.com/livepeer/videogw/internal/cachekey"
	"github.com/livepeer/videogw/internal/classify"
	"github.com/livepeer/videogw/internal/diagnostics"
	cacheorch "github.com/livepeer/videogw/internal/gateway"
	"github.com/livepeer/videogw/internal/origin"
	"github.com/livepeer/videogw/internal/rangeio"
	"github.com/livepeer/videogw/internal/transform"
	"github.com/livepeer/videogw/internal/translate"
	"github.com/livepeer/videogw/internal/voptions"
	"github.com/livepeer/videogw/log"
	"github.com/livepeer/videogw/requests"
)

// GatewayHandler composes components A through L into the top-level request
// pipeline (§4.M). Built once at startup; safe for concurrent use.
type GatewayHandler struct {
	Origins      *origin.Table
	Orchestrator *cacheorch.Orchestrator
	Invoker      *transform.Invoker
	Config       *config.GatewayConfig
	Breakpoints  []voptions.Breakpoint
	// OriginClient performs the §4.K fallback fetch directly against a resolved
	// remote/fallback source, bypassing Invoker entirely. Defaults to
	// http.DefaultClient when nil.
	OriginClient *http.Client
}

// responseMeta carries the per-request context writeResponse needs to populate the
// core response headers (§6) regardless of whether resp came from the cache, a fresh
// backend invocation, or a fallback fetch.
type responseMeta struct {
	Origin       *origin.Origin
	Source       *origin.ResolvedSource
	UsingIMQuery bool
	CacheHit     bool
	Version      int
	ExtraHeaders map[string]string
}

// Handle is the httprouter.Handle for GET /<path>.
func (g *GatewayHandler) Handle(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	requestID := requests.GetRequestId(r)
	rec := diagnostics.NewRecord(requestID, r.URL.String())
	start := time.Now()
	defer func() { rec.AddTiming("total", time.Since(start)) }()

	query := r.URL.Query()
	rec.OriginalParams = map[string][]string(query)

	canonical, hints, warnings := translate.Translate(query)
	rec.TranslatedParams = map[string][]string(canonical)
	for _, warn := range warnings {
		rec.AddWarning(warn)
	}

	o, captures, err := g.Origins.Resolve(r.URL.Path)
	if err != nil {
		g.finish(w, r, rec, err)
		return
	}
	rec.OriginName = o.Name

	derivatives := map[string]map[string]interface{}{}
	if g.Config != nil {
		derivatives = g.Config.Video.Derivatives
	}
	opts, err := voptions.Resolve(o, derivatives, g.Breakpoints, canonical, hints)
	if err != nil {
		g.finish(w, r, rec, err)
		return
	}

	source, err := o.SelectSource(r.URL.Path, captures, nil)
	if err != nil {
		g.finish(w, r, rec, err)
		return
	}
	rec.SourceType = string(source.Type)
	rec.ResolvedPath = source.ResolvedPath

	cacheKey := cachekey.Build(r.URL.Path, cachekey.Options{
		Derivative: opts.Derivative,
		Width:      opts.Width,
		Height:     opts.Height,
		IMWidth:    atoiSilent(query.Get("imwidth")),
		IMHeight:   atoiSilent(query.Get("imheight")),
		Version:    opts.Version,
	})

	bypass := cacheorch.ShouldBypass(r.Method, query)
	rangeHeader := r.Header.Get("Range")
	ttlSeconds := g.ttlFor(o)
	tags := cacheTagsFor(r.URL.Path, opts.Derivative)
	usingIMQuery := translate.UsingIMQuery(query)

	handlerFn := func(ctx context.Context) (*cacheorch.Response, error) {
		return g.invokeBackend(ctx, opts, source, r.Header.Get("Accept"), rec)
	}

	var resp *cacheorch.Response
	var cacheHit bool
	var version int

	if bypass {
		resp, err = handlerFn(r.Context())
		if err != nil {
			g.applyFallback(w, r, rec, o, source, usingIMQuery, cacheKey, ttlSeconds, tags, err)
			return
		}
	} else {
		result, err := g.Orchestrator.WithCaching(r.Context(), cacheKey, r.URL.String(), rangeHeader != "", ttlSeconds, tags, handlerFn)
		if err != nil {
			g.applyFallback(w, r, rec, o, source, usingIMQuery, cacheKey, ttlSeconds, tags, err)
			return
		}
		resp = result.Response
		cacheHit = result.CacheHit
		version = result.Version
		rec.IsFirstRequest = result.IsFirstRequest
	}
	rec.CacheHit = cacheHit
	rec.Version = version

	if rangeHeader != "" {
		resp = rangeio.Serve(resp, rangeHeader)
	}

	meta := responseMeta{Origin: o, Source: source, UsingIMQuery: usingIMQuery, CacheHit: cacheHit, Version: version}
	g.writeResponse(w, r, rec, resp, meta)
}

func atoiSilent(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}

// invokeBackend builds and issues the backend transformation request (§4.J),
// classifying responses with status 400 or above via the backend error-code header
// (§4.K).
func (g *GatewayHandler) invokeBackend(ctx context.Context, opts voptions.TransformOptions, source *origin.ResolvedSource, accept string, rec *diagnostics.Record) (*cacheorch.Response, error) {
	sourceURL, err := g.resolveSourceURL(source)
	if err != nil {
		return nil, xerrors.NewOriginError(xerrors.SourceResolutionFailed, source.BucketBinding, err.Error(), err)
	}

	httpResp, err := g.Invoker.Invoke(ctx, opts, sourceURL, accept, transform.QualityMedium)
	if err != nil {
		return nil, xerrors.NewFetchFailed(0, err)
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, xerrors.NewFetchFailed(httpResp.StatusCode, err)
	}

	if httpResp.StatusCode >= 400 {
		code := parseErrCode(httpResp.Header.Get("Cf-Resized"))
		verdict := classify.ClassifyCode(code)
		rec.AddError(verdict.Description)
		return nil, &backendError{statusCode: httpResp.StatusCode, verdict: verdict, body: body}
	}

	return &cacheorch.Response{StatusCode: httpResp.StatusCode, Header: httpResp.Header, Body: body}, nil
}

// resolveSourceURL turns a resolved source into a URL the transform backend can fetch.
// Remote/fallback sources already carry one; bucket sources are presigned against
// their configured binding (§4.C, via the clients package).
func (g *GatewayHandler) resolveSourceURL(source *origin.ResolvedSource) (string, error) {
	if source.Type == origin.SourceBucket {
		osURL := ""
		if g.Config != nil {
			osURL = g.Config.BucketBindings[source.BucketBinding]
		}
		if osURL == "" {
			return "", fmt.Errorf("no bucket binding configured for %q", source.BucketBinding)
		}
		full, err := url.Parse(strings.TrimSuffix(osURL, "/") + "/" + strings.TrimPrefix(source.ResolvedPath, "/"))
		if err != nil {
			return "", fmt.Errorf("invalid bucket URL for binding %q: %w", source.BucketBinding, err)
		}
		return clients.SignURL(full)
	}
	if source.URL != "" {
		return source.URL, nil
	}
	return source.ResolvedPath, nil
}

// fetchDirect implements §4.K's fallback fetch: a request against the resolved
// source itself, bypassing the transform backend entirely. Routing the fallback
// through Invoker would just replay BuildURL against the same backend that already
// failed, with degenerate empty transform parameters — not the direct origin fetch
// the fallback contract calls for.
func (g *GatewayHandler) fetchDirect(ctx context.Context, source *origin.ResolvedSource) (*cacheorch.Response, error) {
	if source.Type == origin.SourceBucket {
		osURL := ""
		if g.Config != nil {
			osURL = g.Config.BucketBindings[source.BucketBinding]
		}
		if osURL == "" {
			return nil, fmt.Errorf("no bucket binding configured for %q", source.BucketBinding)
		}
		full := strings.TrimSuffix(osURL, "/") + "/" + strings.TrimPrefix(source.ResolvedPath, "/")
		body, err := clients.DownloadOSURL(ctx, full)
		if err != nil {
			return nil, err
		}
		defer body.Close()
		data, err := io.ReadAll(body)
		if err != nil {
			return nil, err
		}
		return &cacheorch.Response{StatusCode: http.StatusOK, Header: http.Header{}, Body: data}, nil
	}

	sourceURL := source.URL
	if sourceURL == "" {
		sourceURL = source.ResolvedPath
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sourceURL, nil)
	if err != nil {
		return nil, fmt.Errorf("building fallback request for %q: %w", sourceURL, err)
	}

	client := g.OriginClient
	if client == nil {
		client = http.DefaultClient
	}
	httpResp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	data, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, err
	}
	return &cacheorch.Response{StatusCode: httpResp.StatusCode, Header: httpResp.Header, Body: data}, nil
}

// backendError carries the classification needed to decide on fallback (§4.K).
type backendError struct {
	statusCode int
	verdict    classify.CodeClassification
	body       []byte
}

func (e *backendError) Error() string {
	return e.verdict.Description
}

func parseErrCode(header string) int {
	const prefix = "err="
	idx := strings.Index(header, prefix)
	if idx < 0 {
		return 0
	}
	n, _ := strconv.Atoi(header[idx+len(prefix):])
	return n
}

// applyFallback implements §4.K's fallback contract: on a shouldFallback verdict for
// a 400-class error (when fallback.enabled and, if badRequestOnly, restricted to
// 400-class), fetch the resolved source directly — not through the transform
// backend that just failed — and return it with diagnostic headers. The fallback
// fetch is itself persisted to KV so a repeat request is served from cache instead
// of re-triggering the broken backend. Otherwise the error is surfaced to the
// client as structured JSON.
func (g *GatewayHandler) applyFallback(w http.ResponseWriter, r *http.Request, rec *diagnostics.Record, o *origin.Origin, source *origin.ResolvedSource, usingIMQuery bool, cacheKey string, ttlSeconds int, tags []string, err error) {
	var be *backendError
	fallbackCfg := config.FallbackConfig{}
	if g.Config != nil {
		fallbackCfg = g.Config.Cache.Fallback
	}

	if be2, ok := err.(*backendError); ok {
		be = be2
	}

	if be != nil && fallbackCfg.Enabled && be.verdict.ShouldFallback {
		if fallbackCfg.BadRequestOnly && be.statusCode >= 500 {
			g.writeErrorResponse(w, r, rec, be.statusCode, err)
			return
		}

		fallbackResp, ferr := g.fetchDirect(r.Context(), source)
		if ferr == nil {
			extra := map[string]string{
				"X-Fallback-Applied":    "true",
				"X-Fallback-Reason":     be.verdict.Description,
				"X-Original-Error-Type": strings.ToUpper(strings.ReplaceAll(be.verdict.Description, " ", "_")),
			}
			for _, h := range fallbackCfg.PreserveHeaders {
				if v := fallbackResp.Header.Get(h); v != "" {
					extra[h] = v
				}
			}
			rec.FallbackApplied = true

			g.Orchestrator.PersistFallback(context.Background(), cacheKey, fallbackResp, ttlSeconds, tags)

			meta := responseMeta{Origin: o, Source: source, UsingIMQuery: usingIMQuery, ExtraHeaders: extra}
			g.writeResponse(w, r, rec, fallbackResp, meta)
			return
		}
	}

	g.writeErrorResponse(w, r, rec, statusFor(err), err)
}

func statusFor(err error) int {
	if be, ok := err.(*backendError); ok {
		return be.verdict.HTTPStatus
	}
	return http.StatusInternalServerError
}

// writeErrorResponse commits a structured JSON error. Diagnostic headers for a
// header-style debug mode are set first, since the JSON envelope below commits the
// response (WriteHeader) and Header().Set calls are no-ops afterwards; debug=view
// is not honored on this path since the JSON body has already committed by the time
// an HTML shell could be written, so it would only corrupt the error body.
func (g *GatewayHandler) writeErrorResponse(w http.ResponseWriter, r *http.Request, rec *diagnostics.Record, status int, err error) {
	g.emitHeaderDiagnostics(w, r, rec)
	if be, ok := err.(*backendError); ok {
		xerrors.WriteHTTPStatus(w, be.verdict.Description, nil, status, "BACKEND_ERROR")
		return
	}
	xerrors.WriteAPIError(w, err)
}

func (g *GatewayHandler) finish(w http.ResponseWriter, r *http.Request, rec *diagnostics.Record, err error) {
	g.emitHeaderDiagnostics(w, r, rec)
	apiErr := xerrors.WriteAPIError(w, err)
	rec.AddError(apiErr.Msg)
}

// writeResponse commits the single response a client receives, folding in both the
// core §6 headers and any debug diagnostics. debug=view replaces the body entirely
// with an HTML shell, so the two are mutually exclusive within one WriteHeader/Write
// pair instead of the HTML being appended after the video body has already shipped.
func (g *GatewayHandler) writeResponse(w http.ResponseWriter, r *http.Request, rec *diagnostics.Record, resp *cacheorch.Response, meta responseMeta) {
	for k, vs := range resp.Header {
		for _, v := range vs {
			w.Header().Add(k, v)
		}
	}
	w.Header().Set("Accept-Ranges", "bytes")
	if meta.CacheHit {
		w.Header().Set("X-Cache", "KV-HIT")
	} else {
		w.Header().Set("X-Cache", "KV-MISS")
	}
	w.Header().Set("X-Cache-Version", "v"+strconv.Itoa(meta.Version))
	if meta.Origin != nil {
		w.Header().Set("X-Cache-TTL", strconv.Itoa(g.ttlFor(meta.Origin)))
		w.Header().Set("X-Origin-Name", meta.Origin.Name)
		if meta.Origin.Matcher != nil {
			w.Header().Set("X-Origin-Matcher", meta.Origin.Matcher.String())
		}
	}
	if meta.Source != nil {
		w.Header().Set("X-Source-Type", string(meta.Source.Type))
		w.Header().Set("X-Source-Path", meta.Source.ResolvedPath)
	}
	w.Header().Set("X-Using-IMQuery", strconv.FormatBool(meta.UsingIMQuery))
	for k, v := range meta.ExtraHeaders {
		w.Header().Set(k, v)
	}

	mode := g.debugMode(r)
	if mode != diagnostics.DebugOff && mode != diagnostics.DebugView {
		if derr := diagnostics.Emit(w, rec, mode); derr != nil {
			log.Log(rec.RequestID, "failed to emit diagnostics", "error", derr)
		}
	}

	if mode == diagnostics.DebugView {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Del("Content-Length")
		w.WriteHeader(resp.StatusCode)
		if derr := diagnostics.Emit(w, rec, mode); derr != nil {
			log.Log(rec.RequestID, "failed to emit diagnostics", "error", derr)
		}
		return
	}

	w.Header().Set("Content-Length", strconv.Itoa(len(resp.Body)))
	w.WriteHeader(resp.StatusCode)
	_, _ = w.Write(resp.Body)
}

// debugMode resolves the effective diagnostics mode for a request (§4.L), gated on
// the debug surface being enabled at all.
func (g *GatewayHandler) debugMode(r *http.Request) diagnostics.DebugMode {
	if g.Config == nil || !g.Config.Debug.Enabled {
		return diagnostics.DebugOff
	}
	mode := diagnostics.DebugMode(r.URL.Query().Get("debug"))
	if mode == "true" {
		mode = diagnostics.DebugHeaders
	}
	if g.Config.Debug.Verbose && mode != diagnostics.DebugOff {
		mode = diagnostics.DebugAll
	}
	return mode
}

// emitHeaderDiagnostics sets header-style diagnostics before a caller commits its own
// response body via one of the xerrors writers; debug=view is skipped since those
// writers already own the body and status for this response.
func (g *GatewayHandler) emitHeaderDiagnostics(w http.ResponseWriter, r *http.Request, rec *diagnostics.Record) {
	mode := g.debugMode(r)
	if mode == diagnostics.DebugOff || mode == diagnostics.DebugView {
		return
	}
	if err := diagnostics.Emit(w, rec, mode); err != nil {
		log.Log(rec.RequestID, "failed to emit diagnostics", "error", err)
	}
}

func (g *GatewayHandler) ttlFor(o *origin.Origin) int {
	if o.TTL.OK > 0 {
		return o.TTL.OK
	}
	if g.Config != nil && g.Config.Cache.DefaultMaxAge > 0 {
		return g.Config.Cache.DefaultMaxAge
	}
	return config.DefaultMaxAge
}

func cacheTagsFor(path, derivative string) []string {
	normalized := strings.Trim(strings.ReplaceAll(strings.TrimPrefix(path, "/"), "/", "-"), "-")
	tags := []string{"prefix-path-" + normalized}
	if derivative != "" {
		tags = append(tags, "prefix-path-"+normalized+"-derivative-"+derivative)
	}
	return tags
}

// BuildBreakpoints derives a responsive breakpoint table from a video config's
// derivative presets: any derivative whose preset carries a numeric "width" becomes
// one breakpoint entry, ordered ascending (§4.B, §9 open question on the breakpoint
// table — resolved here by deriving it from configuration rather than a fixed table).
func BuildBreakpoints(derivatives map[string]map[string]interface{}) []voptions.Breakpoint {
	var breakpoints []voptions.Breakpoint
	for name, preset := range derivatives {
		raw, ok := preset["width"]
		if !ok {
			continue
		}
		var width int
		switch v := raw.(type) {
		case float64:
			width = int(v)
		case int:
			width = v
		case string:
			width = atoiSilent(v)
		}
		if width > 0 {
			breakpoints = append(breakpoints, voptions.Breakpoint{ViewWidth: width, Derivative: name})
		}
	}
	sort.Slice(breakpoints, func(i, j int) bool { return breakpoints[i].ViewWidth < breakpoints[j].ViewWidth })
	return breakpoints
}
