// Package rangeio turns a full response into a 206 Partial Content response given a
// client Range header, degrading gracefully on any parse/stream failure
// (SPEC_FULL.md §4.H).
package rangeio

import (
	"net/http"
	"strconv"
	"strings"
)

// Response is the minimal response shape rangeio operates on and produces; the
// gateway orchestrator adapts its own Response type to/from this one.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Fallback reasons surfaced via the X-Range-Fallback diagnostic header (§4.H).
const (
	ReasonInvalidHeader  = "invalid-range-header"
	ReasonMissingLength  = "missing-content-length"
	ReasonBufferError    = "buffer-processing-error"
	ReasonGeneralFailure = "general-processing-failure"
)

// Serve produces a 206 Partial Content response from full given a client Range
// header. Any failure degrades to returning full unmodified, annotated with
// X-Range-Fallback describing which branch failed; it never fails the request.
func Serve(full *Response, rangeHeader string) *Response {
	if rangeHeader == "" {
		return full
	}

	contentLengthStr := full.Header.Get("Content-Length")
	if contentLengthStr == "" {
		return fallback(full, ReasonMissingLength)
	}
	totalLen, err := strconv.ParseInt(contentLengthStr, 10, 64)
	if err != nil || totalLen < 0 {
		return fallback(full, ReasonMissingLength)
	}

	start, end, ok := parseRange(rangeHeader, totalLen)
	if !ok {
		return fallback(full, ReasonInvalidHeader)
	}

	if end >= int64(len(full.Body)) || start > end {
		return fallback(full, ReasonBufferError)
	}

	sliced := make([]byte, end-start+1)
	n := copy(sliced, full.Body[start:end+1])
	if int64(n) != end-start+1 {
		return fallback(full, ReasonGeneralFailure)
	}

	header := cloneHeader(full.Header)
	header.Set("Content-Range", "bytes "+strconv.FormatInt(start, 10)+"-"+strconv.FormatInt(end, 10)+"/"+strconv.FormatInt(totalLen, 10))
	header.Set("Content-Length", strconv.FormatInt(end-start+1, 10))
	header.Set("Accept-Ranges", "bytes")

	return &Response{StatusCode: http.StatusPartialContent, Header: header, Body: sliced}
}

// parseRange parses a single "bytes=start-end" range against totalLen, per §8
// property 7: only a single, fully-specified, in-bounds range is accepted; anything
// else (multi-range, open-ended, out-of-bounds) is rejected so the caller can degrade.
func parseRange(rangeHeader string, totalLen int64) (start, end int64, ok bool) {
	const prefix = "bytes="
	if !strings.HasPrefix(rangeHeader, prefix) {
		return 0, 0, false
	}
	spec := strings.TrimPrefix(rangeHeader, prefix)
	if strings.Contains(spec, ",") {
		return 0, 0, false
	}
	parts := strings.SplitN(spec, "-", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return 0, 0, false
	}
	start, errA := strconv.ParseInt(parts[0], 10, 64)
	end, errB := strconv.ParseInt(parts[1], 10, 64)
	if errA != nil || errB != nil {
		return 0, 0, false
	}
	if start < 0 || end < start || end >= totalLen {
		return 0, 0, false
	}
	return start, end, true
}

func fallback(full *Response, reason string) *Response {
	header := cloneHeader(full.Header)
	header.Set("X-Range-Fallback", reason)
	return &Response{StatusCode: full.StatusCode, Header: header, Body: full.Body}
}

func cloneHeader(h http.Header) http.Header {
	out := make(http.Header, len(h))
	for k, vs := range h {
		cp := make([]string, len(vs))
		copy(cp, vs)
		out[k] = cp
	}
	return out
}
