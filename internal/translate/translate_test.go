package translate

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMuteInversion(t *testing.T) {
	canonical, _, warnings := Translate(url.Values{"mute": {"true"}})
	require.Empty(t, warnings)
	require.Equal(t, "false", canonical.Get("audio"))

	canonical, _, warnings = Translate(url.Values{"mute": {"false"}})
	require.Empty(t, warnings)
	require.Equal(t, "true", canonical.Get("audio"))
}

func TestObjFitRenames(t *testing.T) {
	canonical, _, _ := Translate(url.Values{"obj-fit": {"crop"}})
	require.Equal(t, "cover", canonical.Get("fit"))

	canonical, _, _ = Translate(url.Values{"obj-fit": {"fill"}})
	require.Equal(t, "contain", canonical.Get("fit"))

	canonical, _, _ = Translate(url.Values{"obj-fit": {"something-else"}})
	require.Equal(t, "something-else", canonical.Get("fit"))
}

func TestResponsiveHintsTranslateWidthAndHeight(t *testing.T) {
	canonical, hints, warnings := Translate(url.Values{
		"imwidth":      {"800"},
		"imheight":     {"600"},
		"im-viewwidth": {"1024"},
		"im-density":   {"2"},
	})
	require.Empty(t, warnings)
	require.Equal(t, "800", canonical.Get("width"))
	require.Equal(t, "600", canonical.Get("height"))
	require.Equal(t, "1024", hints.ViewWidth)
	require.Equal(t, "2", hints.DPR)
}

// TestLegacyDialectScenario mirrors SPEC_FULL.md scenario S6.
func TestLegacyDialectScenario(t *testing.T) {
	canonical, _, warnings := Translate(url.Values{
		"w":       {"800"},
		"h":       {"600"},
		"mute":    {"true"},
		"obj-fit": {"crop"},
	})
	require.Empty(t, warnings)
	require.Equal(t, "800", canonical.Get("width"))
	require.Equal(t, "600", canonical.Get("height"))
	require.Equal(t, "false", canonical.Get("audio"))
	require.Equal(t, "cover", canonical.Get("fit"))
}

func TestUnknownLegacyParamRecordsWarning(t *testing.T) {
	_, _, warnings := Translate(url.Values{"totally-unknown-param": {"1"}})
	require.Len(t, warnings, 1)
	require.Contains(t, warnings[0], "totally-unknown-param")
}

func TestUsingIMQueryDetectsResponsiveHints(t *testing.T) {
	require.True(t, UsingIMQuery(url.Values{"imwidth": {"800"}}))
	require.True(t, UsingIMQuery(url.Values{"im-density": {"2"}}))
	require.False(t, UsingIMQuery(url.Values{"w": {"800"}}))
	require.False(t, UsingIMQuery(url.Values{}))
}

func TestCanonicalParamsPassThroughUnchanged(t *testing.T) {
	canonical, _, warnings := Translate(url.Values{"width": {"640"}, "derivative": {"mobile"}})
	require.Empty(t, warnings)
	require.Equal(t, "640", canonical.Get("width"))
	require.Equal(t, "mobile", canonical.Get("derivative"))
}
