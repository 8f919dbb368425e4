package clients

import (
	"context"
	"io"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

const exampleFileContents = "hello from the origin bucket"

func TestItCanDownloadAnOSURL(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "asset*.mp4")
	require.NoError(t, err)

	_, err = f.WriteString(exampleFileContents)
	require.NoError(t, err)

	rc, err := DownloadOSURL(context.Background(), f.Name())
	require.NoError(t, err)
	defer rc.Close()

	buf := new(strings.Builder)
	_, err = io.Copy(buf, rc)
	require.NoError(t, err)
	require.Equal(t, exampleFileContents, buf.String())
}

func TestItFailsWithInvalidURLs(t *testing.T) {
	_, err := DownloadOSURL(context.Background(), "s4+htps://123/456.mp4")
	require.Error(t, err)
	require.Contains(t, err.Error(), "failed to parse OS URL")
}

func TestItFailsWithMissingFile(t *testing.T) {
	_, err := DownloadOSURL(context.Background(), "/tmp/this/should/not/exist.mp4")
	require.Error(t, err)
	require.Contains(t, err.Error(), "failed to read from OS URL")
}

func TestUploadThenDownloadRoundTrips(t *testing.T) {
	dir := t.TempDir()

	err := UploadToOSURL(context.Background(), dir, "config.json", strings.NewReader(`{"origins":[]}`), 0)
	require.NoError(t, err)

	rc, err := DownloadOSURL(context.Background(), dir+"/config.json")
	require.NoError(t, err)
	defer rc.Close()

	buf := new(strings.Builder)
	_, err = io.Copy(buf, rc)
	require.NoError(t, err)
	require.Equal(t, `{"origins":[]}`, buf.String())
}
