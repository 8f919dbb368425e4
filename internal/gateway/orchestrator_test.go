package gateway

import (
	"context"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/livepeer/videogw/internal/coalesce"
	"github.com/livepeer/videogw/internal/kvstore"
	"github.com/livepeer/videogw/internal/version"
)

func newTestOrchestrator(t *testing.T) (*Orchestrator, *kvstore.Store) {
	kv, err := kvstore.New(t.TempDir())
	require.NoError(t, err)
	return New(kv, coalesce.New(), version.NewService(kv)), kv
}

func TestWithCachingMissThenHit(t *testing.T) {
	orch, _ := newTestOrchestrator(t)
	var calls int32

	handler := func(ctx context.Context) (*Response, error) {
		atomic.AddInt32(&calls, 1)
		h := http.Header{}
		h.Set("Content-Type", "video/mp4")
		return &Response{StatusCode: http.StatusOK, Header: h, Body: []byte("payload")}, nil
	}

	res1, err := orch.WithCaching(context.Background(), "video:a.mp4:v1", "/videos/a.mp4", false, 300, nil, handler)
	require.NoError(t, err)
	require.False(t, res1.CacheHit)
	require.Equal(t, "payload", string(res1.Response.Body))

	require.Eventually(t, func() bool {
		_, _, ok := orch.readHit(context.Background(), "video:a.mp4:v1")
		return ok
	}, time.Second, 10*time.Millisecond)

	res2, err := orch.WithCaching(context.Background(), "video:a.mp4:v1", "/videos/a.mp4", false, 300, nil, handler)
	require.NoError(t, err)
	require.True(t, res2.CacheHit)
	require.Equal(t, "payload", string(res2.Response.Body))
	require.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestWithCachingCoalescesConcurrentMisses(t *testing.T) {
	orch, _ := newTestOrchestrator(t)
	var calls int32

	handler := func(ctx context.Context) (*Response, error) {
		atomic.AddInt32(&calls, 1)
		time.Sleep(50 * time.Millisecond)
		return &Response{StatusCode: http.StatusOK, Header: http.Header{}, Body: []byte("payload")}, nil
	}

	results := make(chan *Result, 3)
	for i := 0; i < 3; i++ {
		go func() {
			res, err := orch.WithCaching(context.Background(), "video:b.mp4:v1", "/videos/b.mp4", false, 300, nil, handler)
			require.NoError(t, err)
			results <- res
		}()
	}
	for i := 0; i < 3; i++ {
		res := <-results
		require.Equal(t, "payload", string(res.Response.Body))
	}
}

func TestShouldBypassOnNonGET(t *testing.T) {
	require.True(t, ShouldBypass(http.MethodPost, nil))
}

func TestShouldBypassOnBypassQueryKey(t *testing.T) {
	require.True(t, ShouldBypass(http.MethodGet, map[string][]string{"nocache": {"1"}}))
	require.False(t, ShouldBypass(http.MethodGet, map[string][]string{}))
}
