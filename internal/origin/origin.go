// Package origin matches a request path against an ordered set of origin patterns
// and resolves the highest-priority usable source (SPEC_FULL.md §4.C).
package origin

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/livepeer/videogw/config"
	xerrors "github.com/livepeer/videogw/errors"
)

// SourceType enumerates the tagged Source variants of §3.
type SourceType string

const (
	SourceBucket   SourceType = "bucket"
	SourceRemote   SourceType = "remote"
	SourceFallback SourceType = "fallback"
)

// TTL holds the per-status-class cache lifetimes an origin advertises (§3 Origin.ttl).
type TTL struct {
	OK          int
	Redirects   int
	ClientError int
	ServerError int
}

// Source is one entry in an Origin's prioritized source list.
type Source struct {
	Type          SourceType
	Priority      int
	PathTemplate  string
	BucketBinding string // resolved KV-store/bucket handle name for type=bucket
	BaseURL       string // for type=remote/fallback
	AuthType      string
}

// Origin is one entry in the ordered pattern table.
type Origin struct {
	Name              string
	Matcher           *regexp.Regexp
	CaptureGroups     []string
	Sources           []Source
	TTL               TTL
	TransformDefaults map[string]interface{}
}

// Captures maps both positional ("1", "2", ...) and named capture groups to their
// matched values.
type Captures map[string]string

// ResolvedSource is the outcome of selecting and templating a Source.
type ResolvedSource struct {
	Type         SourceType
	ResolvedPath string
	URL          string // populated for remote/fallback
	BucketBinding string
	AuthType     string
}

// Table is the ordered, atomically swappable set of configured origins (§3
// Ownership: "Origin and Source tables are shared read-only after configuration
// load; replacement is atomic").
type Table struct {
	ptr atomic.Pointer[[]Origin]
}

// NewTable builds a Table from an ordered origin list.
func NewTable(origins []Origin) *Table {
	t := &Table{}
	t.Store(origins)
	return t
}

// CompileConfig converts a parsed OriginConfig document entry into a runtime Origin,
// compiling its matcher pattern (§4.C, consumed by the binary's cold-start wiring).
func CompileConfig(oc config.OriginConfig) (Origin, error) {
	matcher, err := regexp.Compile(oc.Matcher)
	if err != nil {
		return Origin{}, fmt.Errorf("compiling matcher %q: %w", oc.Matcher, err)
	}

	sources := make([]Source, 0, len(oc.Sources))
	for _, sc := range oc.Sources {
		sources = append(sources, Source{
			Type:          SourceType(sc.Type),
			Priority:      sc.Priority,
			PathTemplate:  sc.PathTemplate,
			BucketBinding: sc.BucketBinding,
			BaseURL:       sc.URL,
			AuthType:      sc.AuthType,
		})
	}

	return Origin{
		Name:          oc.Name,
		Matcher:       matcher,
		CaptureGroups: oc.CaptureGroups,
		Sources:       sources,
		TTL: TTL{
			OK:          oc.TTL.OK,
			Redirects:   oc.TTL.Redirects,
			ClientError: oc.TTL.ClientError,
			ServerError: oc.TTL.ServerError,
		},
		TransformDefaults: oc.TransformDefaults,
	}, nil
}

// Store atomically replaces the whole origin list.
func (t *Table) Store(origins []Origin) {
	cp := make([]Origin, len(origins))
	copy(cp, origins)
	t.ptr.Store(&cp)
}

// Resolve matches path against origins in declaration order, returning the first
// match plus its capture set. Returns an OriginError{OriginNotFound} when nothing
// matches.
func (t *Table) Resolve(path string) (*Origin, Captures, error) {
	origins := t.ptr.Load()
	if origins == nil {
		return nil, nil, xerrors.NewOriginError(xerrors.OriginNotFound, "", fmt.Sprintf("no origins configured for %q", path), nil)
	}
	for i := range *origins {
		o := &(*origins)[i]
		m := o.Matcher.FindStringSubmatch(path)
		if m == nil {
			continue
		}
		captures := Captures{}
		for idx, val := range m[1:] {
			captures[strconv.Itoa(idx+1)] = val
			if idx < len(o.CaptureGroups) && o.CaptureGroups[idx] != "" {
				captures[o.CaptureGroups[idx]] = val
			}
		}
		return o, captures, nil
	}
	return nil, nil, xerrors.NewOriginError(xerrors.OriginNotFound, "", fmt.Sprintf("no origin matches %q", path), nil)
}

// SourceTypeFilter restricts SelectSource to a subset of source types; nil/empty
// means any type is acceptable.
type SourceTypeFilter []SourceType

func (f SourceTypeFilter) allows(t SourceType) bool {
	if len(f) == 0 {
		return true
	}
	for _, allowed := range f {
		if allowed == t {
			return true
		}
	}
	return false
}

// SelectSource iterates the origin's sources in priority order (ascending; ties keep
// declaration order) and returns the first one that yields a usable resolved path.
func (o *Origin) SelectSource(path string, captures Captures, filter SourceTypeFilter) (*ResolvedSource, error) {
	if len(o.Sources) == 0 {
		return nil, xerrors.NewOriginError(xerrors.SourceResolutionFailed, o.Name, "origin has no sources", nil)
	}

	ordered := make([]Source, len(o.Sources))
	copy(ordered, o.Sources)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Priority < ordered[j].Priority })

	var lastErr error
	for _, s := range ordered {
		if !filter.allows(s.Type) {
			continue
		}
		switch s.Type {
		case SourceBucket, SourceRemote, SourceFallback:
		default:
			lastErr = xerrors.NewOriginError(xerrors.SourceTypeNotSupported, o.Name, fmt.Sprintf("unsupported source type %q", s.Type), nil)
			continue
		}

		resolvedPath, err := templatePath(s.PathTemplate, path, captures)
		if err != nil {
			lastErr = xerrors.NewOriginError(xerrors.PathResolutionFailed, o.Name, err.Error(), err)
			continue
		}

		rs := &ResolvedSource{Type: s.Type, ResolvedPath: resolvedPath, BucketBinding: s.BucketBinding, AuthType: s.AuthType}
		if s.Type == SourceRemote || s.Type == SourceFallback {
			if s.BaseURL == "" {
				lastErr = xerrors.NewOriginError(xerrors.SourceResolutionFailed, o.Name, "remote/fallback source missing base_url", nil)
				continue
			}
			rs.URL = strings.TrimSuffix(s.BaseURL, "/") + "/" + strings.TrimPrefix(resolvedPath, "/")
		}
		return rs, nil
	}

	if lastErr != nil {
		return nil, lastErr
	}
	return nil, xerrors.NewOriginError(xerrors.SourceResolutionFailed, o.Name, "no source satisfied the requested filter", nil)
}

var templateTokenRe = regexp.MustCompile(`\$(\d+)|\$\{([a-zA-Z0-9_]+)\}`)

// templatePath replaces $N / ${name} tokens in tmpl with their captured values. When
// tmpl is empty, the matched request path (sans leading slash) is used verbatim.
func templatePath(tmpl, path string, captures Captures) (string, error) {
	if tmpl == "" {
		return strings.TrimPrefix(path, "/"), nil
	}

	var resolveErr error
	resolved := templateTokenRe.ReplaceAllStringFunc(tmpl, func(tok string) string {
		m := templateTokenRe.FindStringSubmatch(tok)
		key := m[1]
		if key == "" {
			key = m[2]
		}
		val, ok := captures[key]
		if !ok {
			resolveErr = fmt.Errorf("path template references unknown capture %q", key)
			return tok
		}
		return val
	})
	if resolveErr != nil {
		return "", resolveErr
	}
	return resolved, nil
}
