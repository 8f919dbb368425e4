package coalesce

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// TestExecuteRunsHandlerExactlyOnce mirrors SPEC_FULL.md scenario S3.
func TestExecuteRunsHandlerExactlyOnce(t *testing.T) {
	c := New()
	var calls int32

	fetch := func(ctx context.Context) (*Result, error) {
		atomic.AddInt32(&calls, 1)
		time.Sleep(100 * time.Millisecond)
		return &Result{Body: []byte("payload"), StatusCode: 200}, nil
	}

	results := make(chan *Result, 3)
	for i := 0; i < 3; i++ {
		go func() {
			res, _, err := c.Execute(context.Background(), "video:a.mp4:v1", "/videos/a.mp4", false, fetch)
			require.NoError(t, err)
			results <- res
		}()
	}

	for i := 0; i < 3; i++ {
		res := <-results
		require.Equal(t, "payload", string(res.Body))
	}
	require.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

// TestExecuteMarksExactlyOneCallerAsFirst mirrors scenario S3's requirement that
// concurrent joiners on the same key agree on a single initiator.
func TestExecuteMarksExactlyOneCallerAsFirst(t *testing.T) {
	c := New()

	fetch := func(ctx context.Context) (*Result, error) {
		time.Sleep(80 * time.Millisecond)
		return &Result{Body: []byte("payload"), StatusCode: 200}, nil
	}

	var firstCount int32
	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, isFirst, err := c.Execute(context.Background(), "video:shared.mp4:v1", "/videos/shared.mp4", false, fetch)
			require.NoError(t, err)
			if isFirst {
				atomic.AddInt32(&firstCount, 1)
			}
		}()
	}
	wg.Wait()
	require.Equal(t, int32(1), atomic.LoadInt32(&firstCount))
}

func TestExecutePropagatesErrorToAllJoiners(t *testing.T) {
	c := New()
	wantErr := errors.New("origin unreachable")

	fetch := func(ctx context.Context) (*Result, error) {
		time.Sleep(20 * time.Millisecond)
		return nil, wantErr
	}

	errs := make(chan error, 3)
	for i := 0; i < 3; i++ {
		go func() {
			_, _, err := c.Execute(context.Background(), "video:b.mp4:v1", "/videos/b.mp4", false, fetch)
			errs <- err
		}()
	}
	for i := 0; i < 3; i++ {
		err := <-errs
		require.ErrorIs(t, err, wantErr)
	}
}

func TestExecuteRejectsOverConcurrencyLimit(t *testing.T) {
	c := New()
	c.sem = make(chan struct{}, 1)

	release := make(chan struct{})
	fetch := func(ctx context.Context) (*Result, error) {
		<-release
		return &Result{Body: []byte("ok")}, nil
	}

	go func() {
		_, _, _ = c.Execute(context.Background(), "video:slow.mp4:v1", "/videos/slow.mp4", false, fetch)
	}()
	time.Sleep(10 * time.Millisecond)

	_, _, err := c.Execute(context.Background(), "video:other.mp4:v1", "/videos/other.mp4", false, func(ctx context.Context) (*Result, error) {
		return &Result{}, nil
	})
	require.Error(t, err)
	close(release)
}

func TestInFlightEntryRemovedAfterLastJoinerLeaves(t *testing.T) {
	c := New()
	_, _, err := c.Execute(context.Background(), "video:c.mp4:v1", "/videos/c.mp4", false, func(ctx context.Context) (*Result, error) {
		return &Result{Body: []byte("x")}, nil
	})
	require.NoError(t, err)
	require.Equal(t, 0, c.inFlight.ItemCount())
}
