// Package transform builds the backend media-transformation URL from canonical
// TransformOptions and invokes it (SPEC_FULL.md §4.J).
package transform

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/livepeer/videogw/internal/voptions"
	"github.com/livepeer/videogw/metrics"
)

// NetworkQuality is the categorical client-side indicator used to modulate the
// estimated target bitrate (glossary).
type NetworkQuality string

const (
	QualitySlow      NetworkQuality = "slow"
	QualityMedium    NetworkQuality = "medium"
	QualityFast      NetworkQuality = "fast"
	QualityUltrafast NetworkQuality = "ultrafast"
)

// bitrateTable maps network quality to a bits-per-pixel multiplier; the estimated
// bitrate in kbps is width*height*multiplier/1000.
var bitrateTable = map[NetworkQuality]float64{
	QualitySlow:      0.02,
	QualityMedium:    0.05,
	QualityFast:      0.10,
	QualityUltrafast: 0.20,
}

// EstimateBitrateKbps estimates a target bitrate in kbps from the requested
// dimensions and a categorical network-quality indicator. Falls back to
// QualityMedium for an unrecognized category.
func EstimateBitrateKbps(width, height int, quality NetworkQuality) int {
	multiplier, ok := bitrateTable[quality]
	if !ok {
		multiplier = bitrateTable[QualityMedium]
	}
	if width == 0 || height == 0 {
		return 0
	}
	return int(float64(width*height) * multiplier / 1000)
}

// Invoker issues the backend transformation request.
type Invoker struct {
	baseURL string
	client  *retryablehttp.Client
}

// NewInvoker builds an Invoker around a retryablehttp client configured with the
// given leveled logger (the teacher's pattern, see log.NewRetryableHTTPLogger).
// baseURL is the scheme+host of the transformation backend (config.Cli.BackendBaseURL);
// BuildURL's path is resolved against it to form the request URL. timeout of zero
// leaves the underlying http.Client's default (no timeout).
func NewInvoker(baseURL string, timeout time.Duration, logger retryablehttp.LeveledLogger) *Invoker {
	client := retryablehttp.NewClient()
	client.Logger = logger
	client.RetryMax = 2
	client.HTTPClient.Timeout = timeout
	client.CheckRetry = metrics.HttpRetryHook
	return &Invoker{baseURL: strings.TrimSuffix(baseURL, "/"), client: client}
}

// SetTransport overrides the underlying HTTP transport, for tests that substitute a
// fake backend.
func (inv *Invoker) SetTransport(rt http.RoundTripper) {
	inv.client.HTTPClient.Transport = rt
}

// BuildURL synthesizes the backend transformation URL of the form
// /cdn-cgi/media/<k=v,...>/<sourceURL> from canonical options.
func BuildURL(opts voptions.TransformOptions, sourceURL string, accept string, quality NetworkQuality) string {
	params := optionParams(opts)

	if opts.Format == "" {
		if format := negotiateFormat(accept); format != "" {
			params = append(params, kv{"format", format})
		}
	}

	if _, has := hasKey(params, "bitrate"); !has && opts.Width > 0 && opts.Height > 0 {
		bitrate := EstimateBitrateKbps(opts.Width, opts.Height, quality)
		if bitrate > 0 {
			params = append(params, kv{"bitrate", strconv.Itoa(bitrate)})
		}
	}

	sort.Slice(params, func(i, j int) bool { return params[i].key < params[j].key })

	pairs := make([]string, 0, len(params))
	for _, p := range params {
		pairs = append(pairs, p.key+"="+p.value)
	}

	return "/cdn-cgi/media/" + strings.Join(pairs, ",") + "/" + sourceURL
}

type kv struct{ key, value string }

func hasKey(params []kv, key string) (kv, bool) {
	for _, p := range params {
		if p.key == key {
			return p, true
		}
	}
	return kv{}, false
}

func optionParams(opts voptions.TransformOptions) []kv {
	var params []kv
	add := func(key, value string) {
		if value != "" {
			params = append(params, kv{key, value})
		}
	}
	if opts.Mode != "" {
		add("mode", string(opts.Mode))
	}
	if opts.Width > 0 {
		add("width", strconv.Itoa(opts.Width))
	}
	if opts.Height > 0 {
		add("height", strconv.Itoa(opts.Height))
	}
	add("fit", opts.Fit)
	add("format", opts.Format)
	add("time", opts.Time)
	add("duration", opts.Duration)
	if opts.HasAudio {
		add("audio", strconv.FormatBool(opts.Audio))
	}
	add("quality", opts.Quality)
	add("compression", opts.Compression)
	if opts.Loop {
		add("loop", "true")
	}
	if opts.Autoplay {
		add("autoplay", "true")
	}
	if opts.Muted {
		add("muted", "true")
	}
	add("preload", opts.Preload)
	return params
}

// negotiateFormat picks mp4 or webm from the client's Accept header when the
// caller did not specify a format explicitly.
func negotiateFormat(accept string) string {
	lower := strings.ToLower(accept)
	switch {
	case strings.Contains(lower, "video/webm"):
		return "webm"
	case strings.Contains(lower, "video/mp4"):
		return "mp4"
	default:
		return ""
	}
}

// Invoke issues a GET against the synthesized transformation URL, recording retry
// count, failure count and duration against the transform client metrics.
func (inv *Invoker) Invoke(ctx context.Context, opts voptions.TransformOptions, sourceURL, accept string, quality NetworkQuality) (*http.Response, error) {
	target := inv.baseURL + BuildURL(opts, sourceURL, accept, quality)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("transform: building request for %q: %w", target, err)
	}
	return metrics.MonitorRequest(metrics.Metrics.TransformClient, inv.client.StandardClient(), req)
}
