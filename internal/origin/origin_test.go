package origin

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/livepeer/videogw/config"
)

func mustOrigin(t *testing.T, name, pattern string, sources []Source) Origin {
	t.Helper()
	return Origin{Name: name, Matcher: regexp.MustCompile(pattern), Sources: sources}
}

func TestResolveMatchesFirstDeclaredOrigin(t *testing.T) {
	table := NewTable([]Origin{
		mustOrigin(t, "videos", `^/videos/(.+)$`, []Source{{Type: SourceBucket, Priority: 0}}),
		mustOrigin(t, "catchall", `^/.*$`, []Source{{Type: SourceBucket, Priority: 0}}),
	})

	o, captures, err := table.Resolve("/videos/a.mp4")
	require.NoError(t, err)
	require.Equal(t, "videos", o.Name)
	require.Equal(t, "a.mp4", captures["1"])
}

func TestResolveReturnsOriginNotFound(t *testing.T) {
	table := NewTable([]Origin{mustOrigin(t, "videos", `^/videos/(.+)$`, nil)})

	_, _, err := table.Resolve("/images/a.jpg")
	require.Error(t, err)
}

func TestSelectSourcePicksLowestPriority(t *testing.T) {
	o := mustOrigin(t, "videos", `^/videos/(.+)$`, []Source{
		{Type: SourceRemote, Priority: 10, BaseURL: "https://slow.example.com"},
		{Type: SourceBucket, Priority: 0, BucketBinding: "main-bucket"},
	})

	rs, err := o.SelectSource("videos/a.mp4", Captures{"1": "a.mp4"}, nil)
	require.NoError(t, err)
	require.Equal(t, SourceBucket, rs.Type)
	require.Equal(t, "main-bucket", rs.BucketBinding)
}

func TestSelectSourceTemplatesPathFromCaptures(t *testing.T) {
	o := mustOrigin(t, "videos", `^/videos/([a-z]+)/([0-9]+)$`, []Source{
		{Type: SourceRemote, Priority: 0, BaseURL: "https://origin.example.com", PathTemplate: "media/${name}/$2.mp4"},
	})
	o.CaptureGroups = []string{"name", ""}

	rs, err := o.SelectSource("videos/clip/42", Captures{"1": "clip", "2": "42", "name": "clip"}, nil)
	require.NoError(t, err)
	require.Equal(t, "https://origin.example.com/media/clip/42.mp4", rs.URL)
}

func TestSelectSourceFiltersByType(t *testing.T) {
	o := mustOrigin(t, "videos", `^/videos/(.+)$`, []Source{
		{Type: SourceBucket, Priority: 0, BucketBinding: "b"},
		{Type: SourceFallback, Priority: 1, BaseURL: "https://fallback.example.com"},
	})

	rs, err := o.SelectSource("videos/a.mp4", Captures{"1": "a.mp4"}, SourceTypeFilter{SourceFallback})
	require.NoError(t, err)
	require.Equal(t, SourceFallback, rs.Type)
}

func TestSelectSourceNoSourcesErrors(t *testing.T) {
	o := mustOrigin(t, "videos", `^/videos/(.+)$`, nil)
	_, err := o.SelectSource("videos/a.mp4", Captures{"1": "a.mp4"}, nil)
	require.Error(t, err)
}

func TestCompileConfigCompilesMatcherAndSources(t *testing.T) {
	oc := config.OriginConfig{
		Name:          "videos",
		Matcher:       `^/videos/(.+)$`,
		CaptureGroups: []string{"path"},
		Sources: []config.SourceConfig{
			{Type: "remote", Priority: 1, PathTemplate: "$1", URL: "https://origin.example.com"},
		},
		TTL: config.TTLConfig{OK: 600},
	}

	o, err := CompileConfig(oc)
	require.NoError(t, err)
	require.Equal(t, "videos", o.Name)
	require.True(t, o.Matcher.MatchString("/videos/a.mp4"))
	require.Equal(t, 600, o.TTL.OK)
	require.Len(t, o.Sources, 1)
	require.Equal(t, SourceRemote, o.Sources[0].Type)
	require.Equal(t, "https://origin.example.com", o.Sources[0].BaseURL)
}

func TestCompileConfigRejectsInvalidMatcher(t *testing.T) {
	_, err := CompileConfig(config.OriginConfig{Name: "bad", Matcher: `(unterminated`})
	require.Error(t, err)
}
