// Package cachekey builds the canonical cache key shared identically by the request
// coalescer and the KV store (SPEC_FULL.md §4.D, §8 property 1).
package cachekey

import (
	"fmt"
	"strconv"
	"strings"
)

// Options is the minimal subset of TransformOptions the cache key is derived from.
type Options struct {
	Derivative string
	Width      int
	Height     int
	IMWidth    int
	IMHeight   int
	Version    int
}

// Build emits segments in fixed order: "video:", path with its leading slash
// stripped, then optional ":derivative=", ":width=", ":height=", ":imwidth=",
// ":imheight=", then ":v<version>".
func Build(path string, opts Options) string {
	var b strings.Builder
	b.WriteString("video:")
	b.WriteString(strings.TrimPrefix(path, "/"))

	if opts.Derivative != "" {
		b.WriteString(":derivative=")
		b.WriteString(opts.Derivative)
	}
	if opts.Width > 0 {
		b.WriteString(":width=")
		b.WriteString(strconv.Itoa(opts.Width))
	}
	if opts.Height > 0 {
		b.WriteString(":height=")
		b.WriteString(strconv.Itoa(opts.Height))
	}
	if opts.IMWidth > 0 {
		b.WriteString(":imwidth=")
		b.WriteString(strconv.Itoa(opts.IMWidth))
	}
	if opts.IMHeight > 0 {
		b.WriteString(":imheight=")
		b.WriteString(strconv.Itoa(opts.IMHeight))
	}

	version := opts.Version
	if version < 1 {
		version = 1
	}
	fmt.Fprintf(&b, ":v%d", version)

	return b.String()
}
