package classify

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClassifyTextRecognizesKnownPatterns(t *testing.T) {
	cases := map[string]TextCategory{
		"seek time out of range":         SeekTimeError,
		"Invalid mode requested":         InvalidModeError,
		"source file is not readable":    VideoNotReadable,
		"invalid parameter: width":       InvalidParameterError,
		"unsupported codec hevc":         CodecError,
		"time format could not be read":  TimeFormatError,
		"hit a resource limit":           ResourceLimitError,
		"exceeds duration limit":         DurationLimit,
		"file size exceeds the maximum":  FileSizeLimit,
	}
	for msg, want := range cases {
		got := ClassifyText(msg)
		require.Equal(t, want, got.Category, msg)
	}
}

func TestClassifyTextUnknownFallsBack(t *testing.T) {
	got := ClassifyText("something entirely unrecognized happened")
	require.Equal(t, UnknownTextError, got.Category)
}

func TestClassifyCodeKnownCodes(t *testing.T) {
	c := ClassifyCode(9401)
	require.False(t, c.Retryable)
	require.True(t, c.ShouldFallback)
	require.Equal(t, 400, c.HTTPStatus)

	c = ClassifyCode(9517)
	require.True(t, c.Retryable)
	require.False(t, c.ShouldFallback)
}

func TestClassifyCodeUnknownIsFailSafe(t *testing.T) {
	c := ClassifyCode(1234)
	require.True(t, c.Retryable)
	require.True(t, c.ShouldFallback)
}
