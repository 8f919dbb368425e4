package diagnostics

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestEmitOffWritesNothing(t *testing.T) {
	rec := NewRecord("req-1", "/videos/a.mp4")
	w := httptest.NewRecorder()
	require.NoError(t, Emit(w, rec, DebugOff))
	require.Empty(t, w.Body.String())
	require.Empty(t, w.Header().Get("X-Diagnostics-Json"))
}

func TestEmitViewInjectsJSONIntoShell(t *testing.T) {
	rec := NewRecord("req-1", "/videos/a.mp4")
	rec.OriginName = "videos"
	w := httptest.NewRecorder()
	require.NoError(t, Emit(w, rec, DebugView))
	require.Contains(t, w.Body.String(), "videos")
	require.Contains(t, w.Body.String(), "<html>")
}

func TestEmitAllSetsDiagnosticHeaders(t *testing.T) {
	rec := NewRecord("req-1", "/videos/a.mp4")
	rec.AddTiming("origin-resolve", 2*time.Millisecond)
	rec.AddWarning("unknown legacy parameter: zzz")
	w := httptest.NewRecorder()
	require.NoError(t, Emit(w, rec, DebugAll))
	require.NotEmpty(t, w.Header().Get("X-Diagnostics-Json"))
	require.Equal(t, "unknown legacy parameter: zzz", w.Header().Get("X-Translation-Warnings"))
}

func TestEmitHeadersModeOmitsJSONBody(t *testing.T) {
	rec := NewRecord("req-1", "/videos/a.mp4")
	rec.OriginName = "videos"
	w := httptest.NewRecorder()
	require.NoError(t, Emit(w, rec, DebugHeaders))
	require.Equal(t, "videos", w.Header().Get("X-Diagnostics-Origin"))
}
