// Package translate maps the legacy query-parameter dialect onto the canonical
// dialect consumed by internal/voptions (SPEC_FULL.md §4.A).
package translate

import (
	"net/url"
	"strconv"
)

// ClientHints carries the synthetic "client hints" produced from the legacy
// im-viewwidth, im-viewheight and im-density query parameters (§4.A). The caller
// passes them to voptions.Resolve for breakpoint selection; they are not added to any
// request header.
type ClientHints struct {
	ViewWidth  string
	ViewHeight string
	DPR        string
}

// fieldMapping names the canonical parameter a legacy parameter name translates to.
var fieldMapping = map[string]string{
	"w":              "width",
	"h":              "height",
	"q":              "quality",
	"f":              "format",
	"start":          "time",
	"dur":            "duration",
	"mute":           "audio", // inverted, see valueMappers
	"bitrate":        "bitrate",
	"fps":            "fps",
	"speed":          "speed",
	"crop":           "crop",
	"rotate":         "rotate",
	"compress":       "compression",
	"loop":           "loop",
	"preload":        "preload",
	"autoplay":       "autoplay",
	"muted":          "muted",
	"obj-fit":        "fit",
	"im-viewwidth":   "viewwidth",
	"im-viewheight":  "viewheight",
	"im-density":     "dpr",
}

// responsiveHintFields are translated into a canonical width/height field only; they
// do not set any ClientHints field.
var responsiveHintFields = map[string]string{
	"imwidth":  "width",
	"imheight": "height",
}

// valueMappers holds the small set of parameters whose VALUES (not just names) need
// translation, keyed by legacy parameter name.
var valueMappers = map[string]func(string) string{
	"mute": invertBool,
	"obj-fit": func(v string) string {
		switch v {
		case "crop":
			return "cover"
		case "fill":
			return "contain"
		default:
			return v
		}
	},
}

func invertBool(v string) string {
	b, err := strconv.ParseBool(v)
	if err != nil {
		return v
	}
	return strconv.FormatBool(!b)
}

// Translate converts a legacy-dialect query into canonical query values, a
// ClientHints bag for responsive hints, and a list of warnings for any legacy
// parameter name that could not be mapped.
func Translate(values url.Values) (url.Values, ClientHints, []string) {
	canonical := url.Values{}
	var hints ClientHints
	var warnings []string

	for name, vs := range values {
		if len(vs) == 0 {
			continue
		}
		v := vs[0]

		if canonicalName, ok := responsiveHintFields[name]; ok {
			canonical.Set(canonicalName, v)
			continue
		}
		switch name {
		case "im-viewwidth":
			hints.ViewWidth = v
			continue
		case "im-viewheight":
			hints.ViewHeight = v
			continue
		case "im-density":
			hints.DPR = v
			continue
		}

		canonicalName, ok := fieldMapping[name]
		if !ok {
			if isCanonicalPassthrough(name) {
				canonical.Set(name, v)
				continue
			}
			warnings = append(warnings, "unknown legacy parameter: "+name)
			continue
		}

		if mapper, ok := valueMappers[name]; ok {
			v = mapper(v)
		}
		canonical.Set(canonicalName, v)
	}

	return canonical, hints, warnings
}

// imQueryKeys are the legacy Akamai Image & Video Manager responsive-hint parameters;
// their presence on a request is surfaced to the client via X-Using-IMQuery (§6).
var imQueryKeys = []string{"imwidth", "imheight", "im-viewwidth", "im-viewheight", "im-density"}

// UsingIMQuery reports whether the request used any legacy IMQuery responsive hint.
func UsingIMQuery(query url.Values) bool {
	for _, k := range imQueryKeys {
		if _, ok := query[k]; ok {
			return true
		}
	}
	return false
}

// isCanonicalPassthrough lists the canonical TransformOptions field names accepted
// unchanged when a client sends them directly instead of through the legacy dialect.
func isCanonicalPassthrough(name string) bool {
	switch name {
	case "width", "height", "fit", "format", "time", "duration", "audio", "quality",
		"compression", "loop", "autoplay", "muted", "preload", "derivative", "version",
		"debug", "nocache", "bypass":
		return true
	default:
		return false
	}
}
