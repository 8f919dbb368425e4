package rangeio

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func fullResponse(body []byte) *Response {
	h := http.Header{}
	h.Set("Content-Type", "video/mp4")
	h.Set("Content-Length", itoa(len(body)))
	return &Response{StatusCode: http.StatusOK, Header: h, Body: body}
}

func itoa(n int) string {
	return (func() string {
		if n == 0 {
			return "0"
		}
		var b []byte
		for n > 0 {
			b = append([]byte{byte('0' + n%10)}, b...)
			n /= 10
		}
		return string(b)
	})()
}

func TestServeReturnsFullWhenNoRangeHeader(t *testing.T) {
	full := fullResponse(make([]byte, 100))
	res := Serve(full, "")
	require.Equal(t, http.StatusOK, res.StatusCode)
}

func TestServeProducesPartialContent(t *testing.T) {
	body := make([]byte, 2097152)
	for i := range body {
		body[i] = byte(i % 256)
	}
	full := fullResponse(body)
	res := Serve(full, "bytes=0-1023")
	require.Equal(t, http.StatusPartialContent, res.StatusCode)
	require.Equal(t, "1024", res.Header.Get("Content-Length"))
	require.Equal(t, "bytes 0-1023/2097152", res.Header.Get("Content-Range"))
	require.Equal(t, body[0:1024], res.Body)
}

func TestServeFallsBackOnInvalidRangeHeader(t *testing.T) {
	full := fullResponse(make([]byte, 10))
	res := Serve(full, "bytes=abc-def")
	require.Equal(t, http.StatusOK, res.StatusCode)
	require.Equal(t, ReasonInvalidHeader, res.Header.Get("X-Range-Fallback"))
}

func TestServeFallsBackOnMissingContentLength(t *testing.T) {
	h := http.Header{}
	full := &Response{StatusCode: http.StatusOK, Header: h, Body: []byte("hello")}
	res := Serve(full, "bytes=0-1")
	require.Equal(t, ReasonMissingLength, res.Header.Get("X-Range-Fallback"))
}

func TestServeFallsBackOnOutOfBoundsRange(t *testing.T) {
	full := fullResponse(make([]byte, 10))
	res := Serve(full, "bytes=5-20")
	require.Equal(t, http.StatusOK, res.StatusCode)
	require.NotEmpty(t, res.Header.Get("X-Range-Fallback"))
}

func TestServeRejectsMultiRange(t *testing.T) {
	full := fullResponse(make([]byte, 100))
	res := Serve(full, "bytes=0-10,20-30")
	require.Equal(t, ReasonInvalidHeader, res.Header.Get("X-Range-Fallback"))
}
