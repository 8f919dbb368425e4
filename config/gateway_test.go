package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFromJSONParsesOrigins(t *testing.T) {
	raw := []byte(`{
		"origins": [
			{"name": "videos", "matcher": "^/videos/(.+)$", "sources": [{"type": "remote", "url": "https://origin.example.com"}]}
		],
		"cache": {"defaultMaxAge": 300}
	}`)

	cfg, err := FromJSON(raw)
	require.NoError(t, err)
	require.Len(t, cfg.Origins, 1)
	require.Equal(t, "videos", cfg.Origins[0].Name)
	require.Equal(t, 300, cfg.Cache.DefaultMaxAge)
}

func TestFromJSONConvertsLegacyDocument(t *testing.T) {
	raw := []byte(`{
		"pathPatterns": {"clips": "^/clips/(.+)$"},
		"pathTransforms": {"clips": "$1"},
		"storage": {"clips": "https://legacy.example.com"}
	}`)

	cfg, err := FromJSON(raw)
	require.NoError(t, err)
	require.Len(t, cfg.Origins, 1)
	require.Equal(t, "clips", cfg.Origins[0].Name)
	require.Equal(t, "^/clips/(.+)$", cfg.Origins[0].Matcher)
	require.Equal(t, "https://legacy.example.com", cfg.Origins[0].Sources[0].URL)
}

func TestFromJSONAppliesDefaultPreserveHeaders(t *testing.T) {
	raw := []byte(`{
		"origins": [{"name": "videos", "matcher": "^/videos/(.+)$", "sources": [{"type": "remote", "url": "https://origin.example.com"}]}],
		"cache": {"fallback": {"enabled": true}}
	}`)

	cfg, err := FromJSON(raw)
	require.NoError(t, err)
	require.Equal(t, []string{"Content-Type", "Content-Length"}, cfg.Cache.Fallback.PreserveHeaders)
}

func TestFromJSONRejectsOriginWithoutSources(t *testing.T) {
	raw := []byte(`{"origins": [{"name": "videos", "matcher": "^/videos/(.+)$"}]}`)

	_, err := FromJSON(raw)
	require.Error(t, err)
}

func TestFromJSONRejectsUnsupportedSourceType(t *testing.T) {
	raw := []byte(`{"origins": [{"name": "videos", "matcher": "^/videos/(.+)$", "sources": [{"type": "smoke-signal"}]}]}`)

	_, err := FromJSON(raw)
	require.Error(t, err)
}
