package voptions

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/livepeer/videogw/internal/origin"
	"github.com/livepeer/videogw/internal/translate"
)

func TestResolveAppliesOriginDefaults(t *testing.T) {
	o := &origin.Origin{TransformDefaults: map[string]interface{}{"quality": "high"}}
	opts, err := Resolve(o, nil, nil, url.Values{}, translate.ClientHints{})
	require.NoError(t, err)
	require.Equal(t, "high", opts.Quality)
}

func TestResolveDerivativePresetOverlaysDefaults(t *testing.T) {
	o := &origin.Origin{TransformDefaults: map[string]interface{}{"quality": "high", "width": "640"}}
	derivatives := map[string]map[string]interface{}{
		"mobile": {"width": "320", "height": "240"},
	}
	q := url.Values{"derivative": {"mobile"}}
	opts, err := Resolve(o, derivatives, nil, q, translate.ClientHints{})
	require.NoError(t, err)
	require.Equal(t, 320, opts.Width)
	require.Equal(t, 240, opts.Height)
	require.Equal(t, "high", opts.Quality)
	require.Equal(t, "mobile", opts.Derivative)
}

func TestResolveExplicitParamsOverrideDerivative(t *testing.T) {
	derivatives := map[string]map[string]interface{}{
		"mobile": {"width": "320"},
	}
	q := url.Values{"derivative": {"mobile"}, "width": {"480"}}
	opts, err := Resolve(nil, derivatives, nil, q, translate.ClientHints{})
	require.NoError(t, err)
	require.Equal(t, 480, opts.Width)
}

func TestResolveResponsiveHeuristicPicksNearestBreakpoint(t *testing.T) {
	derivatives := map[string]map[string]interface{}{
		"small":  {"width": "320"},
		"medium": {"width": "768"},
		"large":  {"width": "1920"},
	}
	breakpoints := []Breakpoint{
		{ViewWidth: 320, Derivative: "small"},
		{ViewWidth: 768, Derivative: "medium"},
		{ViewWidth: 1920, Derivative: "large"},
	}
	hints := translate.ClientHints{ViewWidth: "800", DPR: "1"}
	opts, err := Resolve(nil, derivatives, breakpoints, url.Values{}, hints)
	require.NoError(t, err)
	require.Equal(t, "medium", opts.Derivative)
	require.Equal(t, 768, opts.Width)
}

func TestResolveResponsiveHeuristicSkippedWhenWidthExplicit(t *testing.T) {
	breakpoints := []Breakpoint{{ViewWidth: 320, Derivative: "small"}}
	q := url.Values{"width": {"500"}}
	hints := translate.ClientHints{ViewWidth: "800"}
	opts, err := Resolve(nil, nil, breakpoints, q, hints)
	require.NoError(t, err)
	require.Equal(t, 500, opts.Width)
	require.Empty(t, opts.Derivative)
}

func TestResolveFrameModeRequiresTime(t *testing.T) {
	q := url.Values{"mode": {"frame"}}
	_, err := Resolve(nil, nil, nil, q, translate.ClientHints{})
	require.Error(t, err)
}

func TestResolveFrameModeWithTimeSucceeds(t *testing.T) {
	q := url.Values{"mode": {"frame"}, "time": {"5s"}}
	opts, err := Resolve(nil, nil, nil, q, translate.ClientHints{})
	require.NoError(t, err)
	require.Equal(t, ModeFrame, opts.Mode)
}

func TestResolveSpritesheetForbidsQuality(t *testing.T) {
	q := url.Values{"mode": {"spritesheet"}, "quality": {"high"}}
	_, err := Resolve(nil, nil, nil, q, translate.ClientHints{})
	require.Error(t, err)
}

func TestResolveSpritesheetForbidsAudio(t *testing.T) {
	q := url.Values{"mode": {"spritesheet"}, "audio": {"true"}}
	_, err := Resolve(nil, nil, nil, q, translate.ClientHints{})
	require.Error(t, err)
}

func TestResolveRejectsOutOfRangeWidth(t *testing.T) {
	q := url.Values{"width": {"5"}}
	_, err := Resolve(nil, nil, nil, q, translate.ClientHints{})
	require.Error(t, err)

	q = url.Values{"width": {"4000"}}
	_, err = Resolve(nil, nil, nil, q, translate.ClientHints{})
	require.Error(t, err)
}

func TestResolveDefaultsToVersion1(t *testing.T) {
	opts, err := Resolve(nil, nil, nil, url.Values{}, translate.ClientHints{})
	require.NoError(t, err)
	require.Equal(t, 1, opts.Version)
}
