package transform

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/livepeer/videogw/internal/voptions"
)

func TestBuildURLIncludesCanonicalOptions(t *testing.T) {
	opts := voptions.TransformOptions{Mode: voptions.ModeVideo, Width: 640, Height: 360, Fit: "contain"}
	url := BuildURL(opts, "https://bucket.example/videos/a.mp4", "", QualityMedium)
	require.True(t, strings.HasPrefix(url, "/cdn-cgi/media/"))
	require.Contains(t, url, "width=640")
	require.Contains(t, url, "height=360")
	require.True(t, strings.HasSuffix(url, "/https://bucket.example/videos/a.mp4"))
}

func TestBuildURLNegotiatesFormatFromAccept(t *testing.T) {
	opts := voptions.TransformOptions{Mode: voptions.ModeVideo}
	url := BuildURL(opts, "https://bucket.example/a.mp4", "video/webm,video/*;q=0.8", QualityMedium)
	require.Contains(t, url, "format=webm")
}

func TestBuildURLExplicitFormatWins(t *testing.T) {
	opts := voptions.TransformOptions{Mode: voptions.ModeVideo, Format: "mp4"}
	url := BuildURL(opts, "https://bucket.example/a.mp4", "video/webm", QualityMedium)
	require.Contains(t, url, "format=mp4")
	require.NotContains(t, url, "format=webm")
}

func TestBuildURLEstimatesBitrateWhenDimensionsKnown(t *testing.T) {
	opts := voptions.TransformOptions{Mode: voptions.ModeVideo, Width: 1920, Height: 1080}
	url := BuildURL(opts, "https://bucket.example/a.mp4", "", QualityFast)
	require.Contains(t, url, "bitrate=")
}

func TestEstimateBitrateScalesWithQuality(t *testing.T) {
	slow := EstimateBitrateKbps(1280, 720, QualitySlow)
	fast := EstimateBitrateKbps(1280, 720, QualityFast)
	require.Greater(t, fast, slow)
}

func TestEstimateBitrateZeroWithoutDimensions(t *testing.T) {
	require.Equal(t, 0, EstimateBitrateKbps(0, 0, QualityMedium))
}
