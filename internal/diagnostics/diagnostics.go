// Package diagnostics accumulates a per-request structured record and renders it
// either as response headers or as an injected debug HTML shell (SPEC_FULL.md §4.L).
package diagnostics

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"
)

// DebugMode controls how a finalized Record is surfaced to the caller.
type DebugMode string

const (
	DebugOff     DebugMode = ""
	DebugView    DebugMode = "view"
	DebugHeaders DebugMode = "headers"
	DebugConfig  DebugMode = "config"
	DebugAll     DebugMode = "all"
)

// StageTiming records how long one named pipeline stage took.
type StageTiming struct {
	Stage      string  `json:"stage"`
	DurationMs float64 `json:"durationMs"`
}

// Record is the append-only per-request diagnostics bag built up by every
// component (§3 DiagnosticsRecord). Every field is written at most once per
// component; nothing downstream reads it back during the request.
type Record struct {
	RequestID    string              `json:"requestId"`
	OriginalURL  string              `json:"originalUrl"`
	OriginName   string              `json:"originName,omitempty"`
	Captures     map[string]string   `json:"captures,omitempty"`
	SourceType   string              `json:"sourceType,omitempty"`
	ResolvedPath string              `json:"resolvedPath,omitempty"`
	BackendURL   string              `json:"backendUrl,omitempty"`
	Timings      []StageTiming       `json:"timings,omitempty"`
	OriginalParams   map[string][]string `json:"originalAkamaiParams,omitempty"`
	TranslatedParams map[string][]string `json:"translatedCloudflareParams,omitempty"`
	Warnings     []string            `json:"warnings,omitempty"`
	Errors       []string            `json:"errors,omitempty"`
	CacheHit     bool                `json:"cacheHit"`
	Version      int                 `json:"version,omitempty"`
	FallbackApplied bool             `json:"fallbackApplied"`
	IsFirstRequest  bool             `json:"isFirstRequest"`
}

// NewRecord starts a Record for one request.
func NewRecord(requestID, originalURL string) *Record {
	return &Record{RequestID: requestID, OriginalURL: originalURL}
}

// AddTiming appends a stage timing entry.
func (r *Record) AddTiming(stage string, d time.Duration) {
	r.Timings = append(r.Timings, StageTiming{Stage: stage, DurationMs: float64(d) / float64(time.Millisecond)})
}

// AddWarning appends a warning message.
func (r *Record) AddWarning(msg string) {
	r.Warnings = append(r.Warnings, msg)
}

// AddError appends an error message.
func (r *Record) AddError(msg string) {
	r.Errors = append(r.Errors, msg)
}

const debugShellPlaceholder = "__DIAGNOSTICS_JSON__"

// debugShell is a minimal static HTML page that embeds the diagnostics JSON via
// placeholder substitution; the full dashboard is an external collaborator (§1).
const debugShell = `<!DOCTYPE html>
<html><head><title>videogw diagnostics</title></head>
<body><pre id="diagnostics">` + debugShellPlaceholder + `</pre></body></html>`

// Emit finalizes a Record according to mode: DebugView injects it into a static
// HTML shell; any other non-off mode adds an opt-in set of diagnostic response
// headers; DebugOff writes nothing.
func Emit(w http.ResponseWriter, r *Record, mode DebugMode) error {
	if mode == DebugOff {
		return nil
	}

	body, err := json.Marshal(r)
	if err != nil {
		return err
	}

	if mode == DebugView {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, err := w.Write([]byte(strings.Replace(debugShell, debugShellPlaceholder, string(body), 1)))
		return err
	}

	w.Header().Set("X-Diagnostics-Origin", r.OriginName)
	w.Header().Set("X-Diagnostics-Source-Type", r.SourceType)
	if len(r.Warnings) > 0 {
		w.Header().Set("X-Translation-Warnings", strings.Join(r.Warnings, "; "))
	}
	if mode == DebugAll {
		w.Header().Set("X-Diagnostics-Json", string(body))
	}
	return nil
}
